package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/emberrealm/worldserver/internal/config"
	"github.com/emberrealm/worldserver/internal/logging"
	"github.com/emberrealm/worldserver/internal/storage"
	"github.com/emberrealm/worldserver/internal/storage/memory"
	pgstorage "github.com/emberrealm/worldserver/internal/storage/postgres"
	sqlitestorage "github.com/emberrealm/worldserver/internal/storage/sqlite"
	wsstorage "github.com/emberrealm/worldserver/internal/storage/websocket"
)

// storageEnv is what the journal backends need from the process.
type storageEnv struct {
	Realm        string
	AuthURL      string
	SessionStart time.Time
	Logger       *slog.Logger
	LogManager   *logging.SlogManager
}

// initStorage creates and initializes the configured journal backend. When
// it cannot be initialized the journal is kept in memory instead.
func initStorage(storageCfg config.StorageConfig, env storageEnv) storage.Backend {
	backend, err := createStorageBackend(storageCfg, env)
	if err == nil {
		err = backend.Init()
	}
	if err != nil {
		env.Logger.Error("Failed to initialize storage backend, journaling to memory", "type", storageCfg.Type, "error", err)
		backend = memory.New(storageCfg.Memory)
		_ = backend.Init()
	}
	return backend
}

func createStorageBackend(storageCfg config.StorageConfig, env storageEnv) (storage.Backend, error) {
	logger := env.Logger.With("component", "storage")

	switch strings.ToLower(storageCfg.Type) {
	case "postgres":
		logger.Info("Postgres storage backend selected")
		return pgstorage.New(pgstorage.Dependencies{
			DB:           config.GetDBConfig(),
			RealmName:    env.Realm,
			FallbackPath: sessionDBPath(storageCfg.SQLite.Path, env.SessionStart),
			Logger:       logger,
			DBLogger:     env.LogManager.Zerolog("database"),
		}), nil

	case "sqlite":
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: storageCfg.SQLite.DumpInterval,
			DumpPath:     storageCfg.SQLite.Path,
			RealmName:    env.Realm,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		logger.Info("SQLite storage backend selected", "path", storageCfg.SQLite.Path)
		return backend, nil

	case "websocket":
		wsURL := storageCfg.Websocket.URL
		if wsURL == "" {
			wsURL = httpToWS(env.AuthURL) + "/journal"
		}
		logger.Info("WebSocket storage backend selected", "url", wsURL)
		return wsstorage.New(wsstorage.Config{
			URL:       wsURL,
			Secret:    storageCfg.Websocket.Secret,
			RealmName: env.Realm,
			Logger:    logger,
		}), nil

	case "memory", "":
		logger.Info("Memory storage backend selected")
		return memory.New(storageCfg.Memory), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
	}
}

// sessionDBPath places a per-session sqlite file next to the configured one.
func sessionDBPath(configured string, start time.Time) string {
	return filepath.Join(
		filepath.Dir(configured),
		fmt.Sprintf("worldserver_%s.db", start.Format("20060102_150405")),
	)
}

// httpToWS converts an HTTP(S) URL to a WebSocket URL.
func httpToWS(httpURL string) string {
	s := strings.TrimRight(httpURL, "/")
	s = strings.Replace(s, "https://", "wss://", 1)
	s = strings.Replace(s, "http://", "ws://", 1)
	return s
}
