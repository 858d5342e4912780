package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberrealm/worldserver/internal/config"
	"github.com/emberrealm/worldserver/pkg/core"
)

const period = 100 * time.Millisecond

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// recorder plays every pass and logs the call order. Each pass costs a
// fixed amount of fake time.
type recorder struct {
	clock *fakeClock
	calls []string

	clientDTs []time.Duration
	worldDTs  []time.Duration

	clientErr error
	queueErr  error
	worldErr  error
	worldCost time.Duration
	pending   int
}

func (r *recorder) Tick(ctx context.Context, dt time.Duration) error {
	r.calls = append(r.calls, "clients")
	r.clientDTs = append(r.clientDTs, dt)
	r.clock.advance(5 * time.Millisecond)
	return r.clientErr
}

func (r *recorder) Len() int { return 2 }

type packets struct{ *recorder }

func (p packets) HandleQueue(ctx context.Context) error {
	p.calls = append(p.calls, "queue")
	p.clock.advance(5 * time.Millisecond)
	return p.queueErr
}

func (p packets) Pending() int { return p.pending }

type worldPass struct{ *recorder }

func (w worldPass) Tick(ctx context.Context, dt time.Duration) error {
	w.calls = append(w.calls, "world")
	w.worldDTs = append(w.worldDTs, dt)
	w.clock.advance(w.worldCost)
	return w.worldErr
}

func (w worldPass) Population() int { return 7 }

func newTestLoop(t *testing.T, r *recorder, ticks int) (*Loop, *[]core.TickSample) {
	t.Helper()

	running := &atomic.Bool{}
	running.Store(true)

	samples := &[]core.TickSample{}
	l, err := New(Dependencies{
		Config:  config.TickConfig{Period: period, StallTimeout: time.Second},
		Clients: r,
		Packets: packets{r},
		World:   worldPass{r},
		Running: running,
		Observers: []Observer{func(s core.TickSample) {
			*samples = append(*samples, s)
			if len(*samples) >= ticks {
				running.Store(false)
			}
		}},
	})
	require.NoError(t, err)

	l.now = r.clock.now
	l.sleep = func(_ context.Context, d time.Duration) {
		r.calls = append(r.calls, "sleep")
		r.clock.advance(d)
	}
	return l, samples
}

func newRecorder() *recorder {
	return &recorder{clock: &fakeClock{t: time.Unix(1000, 0)}, worldCost: 20 * time.Millisecond}
}

func TestRun_PassOrder(t *testing.T) {
	r := newRecorder()
	l, _ := newTestLoop(t, r, 2)

	require.NoError(t, l.Run(context.Background()))

	assert.Equal(t, []string{
		"clients", "queue", "world", "sleep",
		"clients", "queue", "world", "sleep",
	}, r.calls)
}

func TestRun_PacesToPeriod(t *testing.T) {
	r := newRecorder()
	r.pending = 3
	l, samples := newTestLoop(t, r, 3)

	require.NoError(t, l.Run(context.Background()))
	require.Len(t, *samples, 3)

	first := (*samples)[0]
	assert.Equal(t, uint64(0), first.Tick)
	assert.Equal(t, period, first.DT, "first tick assumes one period")
	assert.Equal(t, 30*time.Millisecond, first.Work)
	assert.Equal(t, period, first.Total)
	assert.False(t, first.Overrun)
	assert.Equal(t, 2, first.Clients)
	assert.Equal(t, 3, first.QueueDepth)
	assert.Equal(t, 7, first.Population)

	for _, s := range (*samples)[1:] {
		assert.Equal(t, period, s.DT)
	}
	assert.Equal(t, []time.Duration{period, period, period}, r.clientDTs)
	assert.Equal(t, r.clientDTs, r.worldDTs, "client pass and world see the same dt")

	ticks, overruns := l.Ticks()
	assert.Equal(t, uint64(3), ticks)
	assert.Equal(t, uint64(0), overruns)
}

func TestRun_OverrunSkipsSleep(t *testing.T) {
	r := newRecorder()
	r.worldCost = 140 * time.Millisecond
	l, samples := newTestLoop(t, r, 2)

	require.NoError(t, l.Run(context.Background()))

	assert.NotContains(t, r.calls, "sleep")
	second := (*samples)[1]
	assert.True(t, second.Overrun)
	assert.Equal(t, 150*time.Millisecond, second.Work)
	assert.Equal(t, 150*time.Millisecond, second.DT, "dt is the full previous loop")

	_, overruns := l.Ticks()
	assert.Equal(t, uint64(2), overruns)
}

func TestRun_ClientErrorIsNotFatal(t *testing.T) {
	r := newRecorder()
	r.clientErr = errors.New("client 1: send buffer full")
	l, samples := newTestLoop(t, r, 2)

	require.NoError(t, l.Run(context.Background()))
	assert.Len(t, *samples, 2)
}

func TestRun_QueueErrorIsFatal(t *testing.T) {
	r := newRecorder()
	r.queueErr = errors.New("journal down")
	l, samples := newTestLoop(t, r, 5)

	err := l.Run(context.Background())
	require.ErrorIs(t, err, r.queueErr)
	assert.Empty(t, *samples)
	assert.Equal(t, []string{"clients", "queue"}, r.calls, "world is not advanced after a queue failure")
}

func TestRun_WorldErrorIsFatal(t *testing.T) {
	r := newRecorder()
	r.worldErr = errors.New("map 1 failed")
	l, _ := newTestLoop(t, r, 5)

	require.ErrorIs(t, l.Run(context.Background()), r.worldErr)
}

func TestRun_StopsOnFlagBetweenTicks(t *testing.T) {
	r := newRecorder()
	l, _ := newTestLoop(t, r, 100)
	l.running.Store(false)

	require.NoError(t, l.Run(context.Background()))
	assert.Empty(t, r.calls)
}

func TestRun_StopsOnContext(t *testing.T) {
	r := newRecorder()
	l, samples := newTestLoop(t, r, 100)

	ctx, cancel := context.WithCancel(context.Background())
	l.AddObserver(func(s core.TickSample) {
		if s.Tick == 1 {
			cancel()
		}
	})

	require.NoError(t, l.Run(ctx))
	assert.Len(t, *samples, 2)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Dependencies{Config: config.TickConfig{}})
	assert.Error(t, err)

	_, err = New(Dependencies{Config: config.TickConfig{Period: period, StallDetection: true}})
	assert.Error(t, err)

	l, err := New(Dependencies{Config: config.TickConfig{Period: period}})
	require.NoError(t, err)
	assert.True(t, l.running.Load(), "missing flag defaults to running")
}

// blockingWorld never finishes a tick until released.
type blockingWorld struct {
	release chan struct{}
}

func (w *blockingWorld) Tick(ctx context.Context, dt time.Duration) error {
	<-w.release
	return nil
}

func (w *blockingWorld) Population() int { return 0 }

func TestAdvanceWorld_DetectionOffWaits(t *testing.T) {
	w := &blockingWorld{release: make(chan struct{})}
	l, err := New(Dependencies{
		Config: config.TickConfig{Period: period, StallTimeout: time.Millisecond},
		World:  w,
	})
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(w.release)
	}()
	assert.NoError(t, l.advanceWorld(context.Background(), 0))
}
