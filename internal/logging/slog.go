package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// ServiceName is the instrumentation scope of the OTel bridge.
const ServiceName = "worldserver"

// stdout indirection for tests
var (
	osStdout io.Writer = os.Stdout
	osPipe             = os.Pipe
)

// Options configures SlogManager.Setup.
type Options struct {
	// File receives text logs. When nil, logs go to stdout instead.
	File  io.Writer
	Level string
	// Provider enables the OTel bridge when non-nil.
	Provider *sdklog.LoggerProvider
	// Gelf receives JSON records, one GELF message per write.
	Gelf io.Writer
	// GelfLevel overrides Level for the Gelf sink.
	GelfLevel string
	Context   ContextProvider
}

// SlogManager owns the process loggers: slog for the server itself and
// zerolog for components that take one (database, dispatcher, influx).
type SlogManager struct {
	logger      *slog.Logger
	zlog        zerolog.Logger
	logProvider *sdklog.LoggerProvider
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{zlog: zerolog.Nop()}
}

// parseLevel accepts slog level names, case-insensitive and with offsets
// such as "warn+2". Anything else is info.
func parseLevel(level string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// zerologLevel maps a slog level onto zerolog's.
func zerologLevel(lvl slog.Level) zerolog.Level {
	switch {
	case lvl <= slog.LevelDebug:
		return zerolog.DebugLevel
	case lvl <= slog.LevelInfo:
		return zerolog.InfoLevel
	case lvl <= slog.LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

// Setup builds the handler chain: text to File (or stdout), JSON to Gelf at
// GelfLevel, the OTel bridge, then the realm context on top.
func (m *SlogManager) Setup(opts Options) {
	lvl := parseLevel(opts.Level)
	m.logProvider = opts.Provider

	handlerOpts := &slog.HandlerOptions{
		Level:       lvl,
		ReplaceAttr: utcRFC3339,
	}

	out := opts.File
	if out == nil {
		out = osStdout
	}
	sinks := []Sink{{Handler: slog.NewTextHandler(out, handlerOpts)}}

	if opts.Gelf != nil {
		gelfLevel := lvl
		if opts.GelfLevel != "" {
			gelfLevel = parseLevel(opts.GelfLevel)
		}
		sinks = append(sinks, Sink{Handler: slog.NewJSONHandler(opts.Gelf, handlerOpts), Level: gelfLevel})
	}
	if opts.Provider != nil {
		sinks = append(sinks, Sink{
			Handler: otelslog.NewHandler(ServiceName, otelslog.WithLoggerProvider(opts.Provider)),
			Level:   lvl,
		})
	}

	m.logger = slog.New(WithRealmContext(NewFanout(sinks...), opts.Context))
	m.zlog = zerolog.New(out).Level(zerologLevel(lvl)).With().Timestamp().Logger()
	m.logger.Info("Logging initialized", "level", lvl.String())
}

func utcRFC3339(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.TimeKey {
		return a
	}
	if t, ok := a.Value.Any().(time.Time); ok {
		a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
	}
	return a
}

// Logger returns the configured logger, or slog.Default before Setup.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Zerolog returns a zerolog.Logger for a component, writing to the same
// destination as the text logs.
func (m *SlogManager) Zerolog(component string) zerolog.Logger {
	return m.zlog.With().Str("component", component).Logger()
}

// Flush pushes buffered OTel records.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider != nil {
		return m.logProvider.ForceFlush(ctx)
	}
	return nil
}
