package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingHandler struct {
	slog.Handler
}

func (failingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (failingHandler) Handle(context.Context, slog.Record) error {
	return errors.New("sink down")
}

func textSink(buf *bytes.Buffer, lvl slog.Leveler) Sink {
	return Sink{Handler: slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}), Level: lvl}
}

func TestFanout_PerSinkLevel(t *testing.T) {
	var all, warnOnly bytes.Buffer
	logger := slog.New(NewFanout(textSink(&all, nil), textSink(&warnOnly, slog.LevelWarn)))

	logger.Debug("movement update")
	logger.Warn("teleport ack mismatch")

	assert.Contains(t, all.String(), "movement update")
	assert.Contains(t, all.String(), "teleport ack mismatch")
	assert.NotContains(t, warnOnly.String(), "movement update")
	assert.Contains(t, warnOnly.String(), "teleport ack mismatch")
}

func TestFanout_Enabled(t *testing.T) {
	ctx := context.Background()

	warn := NewFanout(textSink(&bytes.Buffer{}, slog.LevelWarn))
	assert.False(t, warn.Enabled(ctx, slog.LevelInfo))
	assert.True(t, warn.Enabled(ctx, slog.LevelError))

	mixed := NewFanout(textSink(&bytes.Buffer{}, slog.LevelWarn), textSink(&bytes.Buffer{}, slog.LevelDebug))
	assert.True(t, mixed.Enabled(ctx, slog.LevelDebug))

	assert.False(t, NewFanout().Enabled(ctx, slog.LevelError))
}

func TestFanout_SkipsNilHandlers(t *testing.T) {
	var buf bytes.Buffer
	f := NewFanout(Sink{}, textSink(&buf, nil), Sink{Level: slog.LevelError})
	require.Len(t, f.(*fanout).sinks, 1)

	slog.New(f).Info("works")
	assert.Contains(t, buf.String(), "works")
}

func TestFanout_FailingSinkDoesNotBlockOthers(t *testing.T) {
	var buf bytes.Buffer
	f := NewFanout(Sink{Handler: failingHandler{}}, textSink(&buf, nil))

	r := slog.NewRecord(time.Now(), slog.LevelInfo, "still delivered", 0)
	err := f.Handle(context.Background(), r)

	assert.EqualError(t, err, "sink down")
	assert.Contains(t, buf.String(), "still delivered")
}

func TestFanout_AttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	f := NewFanout(textSink(&buf, slog.LevelInfo))

	slog.New(f.WithAttrs([]slog.Attr{slog.String("component", "scheduler")})).Info("with attrs")
	slog.New(f.WithGroup("tick")).Info("grouped", "overrun", true)

	assert.Contains(t, buf.String(), "component=scheduler")
	assert.Contains(t, buf.String(), "tick.overrun=true")
	assert.Same(t, f, f.WithGroup(""))
}

func TestWithRealmContext_EvaluatedPerRecord(t *testing.T) {
	var buf bytes.Buffer
	tick := uint64(0)
	h := WithRealmContext(slog.NewTextHandler(&buf, nil), func() []slog.Attr {
		tick++
		return []slog.Attr{slog.String("realm", "Stormrage"), slog.Uint64("tick", tick), {}}
	})
	logger := slog.New(h)

	logger.Info("first")
	logger.Info("second")

	out := buf.String()
	assert.Contains(t, out, "realm=Stormrage")
	assert.Contains(t, out, "tick=1")
	assert.Contains(t, out, "tick=2")
	assert.NotContains(t, out, "!BADKEY")
}

func TestWithRealmContext_NilProvider(t *testing.T) {
	inner := slog.NewTextHandler(&bytes.Buffer{}, nil)
	assert.Same(t, inner, WithRealmContext(inner, nil))
}

func TestWithRealmContext_KeepsProviderThroughDerive(t *testing.T) {
	var buf bytes.Buffer
	h := WithRealmContext(slog.NewTextHandler(&buf, nil), func() []slog.Attr {
		return []slog.Attr{slog.Int("online", 4)}
	})

	slog.New(h.WithAttrs([]slog.Attr{slog.String("component", "console")})).Info("derived")

	assert.Contains(t, buf.String(), "component=console")
	assert.Contains(t, buf.String(), "online=4")
}
