package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/emberrealm/worldserver/internal/auth"
	"github.com/emberrealm/worldserver/internal/client"
	"github.com/emberrealm/worldserver/internal/config"
	"github.com/emberrealm/worldserver/internal/console"
	"github.com/emberrealm/worldserver/internal/dispatcher"
	"github.com/emberrealm/worldserver/internal/handlers"
	"github.com/emberrealm/worldserver/internal/influx"
	"github.com/emberrealm/worldserver/internal/logging"
	"github.com/emberrealm/worldserver/internal/monitor"
	intOtel "github.com/emberrealm/worldserver/internal/otel"
	"github.com/emberrealm/worldserver/internal/queue"
	"github.com/emberrealm/worldserver/internal/scheduler"
	"github.com/emberrealm/worldserver/internal/storage"
	"github.com/emberrealm/worldserver/internal/world"
	"github.com/emberrealm/worldserver/pkg/core"
)

// BuildVersion and BuildDate can be set at build time via ldflags
var (
	BuildVersion = "0.1.0"
	BuildDate    = "unknown"
)

const (
	serviceName     = "worldserver"
	shutdownTimeout = 5 * time.Second
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "worldserver:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	sessionStart := time.Now()

	flags := pflag.NewFlagSet(serviceName, pflag.ContinueOnError)
	configDir := flags.String("config-dir", ".", "directory containing "+config.ConfigFileName)
	if err := config.RegisterFlags(flags); err != nil {
		return err
	}
	if err := flags.Parse(args); err != nil {
		return err
	}

	logManager := logging.NewSlogManager()
	logManager.Setup(logging.Options{Level: "info"})
	logger := logManager.Logger()

	if err := config.Load(*configDir); err != nil {
		logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		logger.Info("Loaded config", "dir", *configDir)
	}

	realm := config.GetString("realm.name")
	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("create logs dir: %w", err)
	}

	logFilePath := logging.LogFilePath(logsDir, realm, sessionStart)
	logFile, err := os.OpenFile(logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	provider, err := newOTelProvider(logsDir, realm, sessionStart)
	if err != nil {
		logger.Warn("Failed to set up OpenTelemetry, continuing without it", "error", err)
		provider, _ = intOtel.New(intOtel.Config{})
	}

	var gelfWriter io.Writer
	gl := config.GetGraylogConfig()
	if gl.Enabled {
		w, err := logging.NewGelfWriter(gl.Address)
		if err != nil {
			logger.Warn("Failed to connect to Graylog", "address", gl.Address, "error", err)
		} else {
			gelfWriter = w
		}
	}

	// filled in once the client manager and scheduler exist
	var (
		onlineClients func() int
		currentTick   atomic.Uint64
	)
	logManager.Setup(logging.Options{
		File:      io.MultiWriter(logFile, os.Stdout),
		Level:     config.GetString("logLevel"),
		Provider:  provider.LoggerProvider(),
		Gelf:      gelfWriter,
		GelfLevel: gl.Level,
		Context: func() []slog.Attr {
			attrs := []slog.Attr{slog.String("realm", realm), slog.Uint64("tick", currentTick.Load())}
			if onlineClients != nil {
				attrs = append(attrs, slog.Int("online", onlineClients()))
			}
			return attrs
		},
	})
	logger = logManager.Logger()
	logger.Info("Starting world server", "version", BuildVersion, "buildDate", BuildDate, "realm", realm, "log", logFilePath)

	// World
	var catalog *world.Catalog
	if path := config.GetString("world.catalog"); path != "" {
		catalog, err = world.LoadCatalog(path)
		if err != nil {
			return err
		}
		logger.Info("Loaded map catalog", "path", path, "maps", catalog.Len())
	}
	w := world.New(catalog, logger.With("component", "world"))

	// Journal
	backend := initStorage(config.GetStorageConfig(), storageEnv{
		Realm:        realm,
		AuthURL:      config.GetAuthConfig().URL,
		SessionStart: sessionStart,
		Logger:       logger,
		LogManager:   logManager,
	})

	// Clients and packets
	inbound := queue.New[dispatcher.Event]()
	eventDispatcher, err := dispatcher.New(logging.NewDispatcherLogger(logManager.Zerolog("dispatcher")))
	if err != nil {
		return fmt.Errorf("create dispatcher: %w", err)
	}

	clientCfg := config.GetClientConfig()
	clients := client.NewManager(client.Config{
		SendBuffer:       clientCfg.SendBuffer,
		HeartbeatTimeout: clientCfg.HeartbeatTimeout,
	}, client.Dependencies{
		Inbound: inbound,
		Opcodes: eventDispatcher,
		Maps:    w.InstanceManager(),
		Journal: backend,
		Logger:  logger.With("component", "client"),
	})
	onlineClients = clients.Len

	packets := handlers.NewPacketHandler(handlers.Dependencies{
		Inbound:    inbound,
		Dispatcher: eventDispatcher,
		Sessions:   clients,
		Maps:       w.InstanceManager(),
		Logger:     logger.With("component", "handlers"),
	})
	packets.RegisterHandlers()

	serverCfg := config.GetServerConfig()
	srv, err := startServer(serverCfg, clients, logger)
	if err != nil {
		return err
	}

	// Observers
	monitorService := monitor.NewService(monitor.Dependencies{
		StatusFile: config.GetString("monitor.statusFile"),
		Interval:   config.GetDuration("monitor.interval"),
		Logger:     logger.With("component", "monitor"),
		QueueStats: inbound.Stats,
		Started:    sessionStart,
	})
	if err := monitorService.Start(); err != nil {
		logger.Warn("Failed to start status monitor", "error", err)
	}

	observers := []scheduler.Observer{
		func(s core.TickSample) { currentTick.Store(s.Tick) },
		monitorService.ObserveTick,
		func(s core.TickSample) {
			if err := backend.RecordTick(&s); err != nil {
				logger.Warn("Failed to journal tick", "tick", s.Tick, "error", err)
			}
		},
	}

	loopCtx, cancelLoop := context.WithCancel(context.Background())
	defer cancelLoop()

	influxManager := startInflux(loopCtx, realm, logsDir, sessionStart, logManager, logger)
	if influxManager != nil {
		observers = append(observers, func(s core.TickSample) {
			if err := influxManager.WriteTick(s); err != nil {
				logger.Debug("Failed to write tick to InfluxDB", "error", err)
			}
		})
	}

	running := &atomic.Bool{}
	running.Store(true)

	loop, err := scheduler.New(scheduler.Dependencies{
		Config:    config.GetTickConfig(),
		Clients:   clients,
		Packets:   packets,
		World:     w,
		Observers: observers,
		Running:   running,
		Logger:    logger.With("component", "scheduler"),
	})
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	// Ctrl-C and SIGTERM clear the running flag; the current tick finishes.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()
	go func() {
		select {
		case <-sigCtx.Done():
			logger.Info("Shutdown signal received")
			running.Store(false)
		case <-loopCtx.Done():
		}
	}()

	if authCfg := config.GetAuthConfig(); authCfg.Enabled {
		authClient := auth.New(authCfg.URL, authCfg.APIKey)
		if err := authClient.Healthcheck(loopCtx); err != nil {
			logger.Warn("Auth server is not reachable", "url", authCfg.URL, "error", err)
		}
		go authClient.Run(loopCtx, authCfg.Interval, func() auth.Heartbeat {
			return auth.Heartbeat{Realm: realm, Clients: clients.Len(), Population: w.Population()}
		}, logger.With("component", "auth"))
	}

	consoleDeps := console.Dependencies{
		In:       os.Stdin,
		Out:      os.Stdout,
		Running:  running,
		Inbound:  inbound,
		Sessions: clients,
		Status:   monitorService,
		Metrics:  provider,
		Logger:   logger.With("component", "console"),
	}
	if reader, ok := backend.(storage.Reader); ok {
		consoleDeps.History = reader
	}
	go func() {
		if err := console.New(consoleDeps).Run(loopCtx); err != nil {
			logger.Warn("Console stopped", "error", err)
		}
	}()

	logger.Info("World server ready", "listen", serverCfg.Listen, "path", serverCfg.Path)
	runErr := loop.Run(loopCtx)
	if errors.Is(runErr, scheduler.ErrSimulationStalled) {
		logger.Error("Simulation stalled, shutting down", "error", runErr)
	} else if runErr != nil {
		logger.Error("Scheduler failed", "error", runErr)
	}

	running.Store(false)
	cancelLoop()
	shutdown(srv, clients, eventDispatcher, monitorService, backend, influxManager, provider, logManager, logger)
	return runErr
}

func newOTelProvider(logsDir, realm string, sessionStart time.Time) (*intOtel.Provider, error) {
	otelCfg := config.GetOTelConfig()
	cfg := intOtel.Config{
		Enabled:      otelCfg.Enabled,
		ServiceName:  otelCfg.ServiceName,
		Version:      BuildVersion,
		Realm:        realm,
		BatchTimeout: otelCfg.BatchTimeout,
		Endpoint:     otelCfg.Endpoint,
		Insecure:     otelCfg.Insecure,
	}
	if otelCfg.Enabled && otelCfg.Endpoint == "" {
		f, err := os.OpenFile(
			filepath.Join(logsDir, fmt.Sprintf("%s.%s.otel.jsonl", serviceName, sessionStart.Format("20060102_150405"))),
			os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666,
		)
		if err != nil {
			return nil, fmt.Errorf("open otel log file: %w", err)
		}
		cfg.LogWriter = f
	}
	return intOtel.New(cfg)
}

func startServer(cfg config.ServerConfig, clients *client.Manager, logger *slog.Logger) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, clients)
	mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Listen, err)
	}

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Client listener failed", "error", err)
		}
	}()
	return srv, nil
}

func startInflux(ctx context.Context, realm, logsDir string, sessionStart time.Time, logManager *logging.SlogManager, logger *slog.Logger) *influx.Manager {
	influxCfg := config.GetInfluxConfig()
	if !influxCfg.Enabled {
		return nil
	}

	backupPath := filepath.Join(logsDir, fmt.Sprintf("influx_backup.%s.lp.gz", sessionStart.Format("20060102_150405")))
	m := influx.NewManager(influxCfg, realm, logManager.Zerolog("influx"), backupPath)
	if err := m.Connect(ctx); err != nil {
		logger.Warn("Failed to set up InfluxDB", "error", err)
		return nil
	}
	return m
}

func shutdown(
	srv *http.Server,
	clients *client.Manager,
	packets *dispatcher.Dispatcher,
	monitorService *monitor.Service,
	backend storage.Backend,
	influxManager *influx.Manager,
	provider *intOtel.Provider,
	logManager *logging.SlogManager,
	logger *slog.Logger,
) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("Client listener shutdown failed", "error", err)
	}
	clients.CloseAll()
	packets.Close()

	monitorService.Stop()
	if err := monitorService.WriteStatus(); err != nil {
		logger.Warn("Failed to write final status", "error", err)
	}

	if err := backend.Close(); err != nil {
		logger.Error("Failed to close storage backend", "error", err)
	}
	if influxManager != nil {
		if err := influxManager.Close(); err != nil {
			logger.Warn("Failed to close InfluxDB", "error", err)
		}
	}

	logger.Info("World server stopped")
	if err := logManager.Flush(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "flush logs:", err)
	}
	if err := provider.Shutdown(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "otel shutdown:", err)
	}
}
