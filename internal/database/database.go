// Package database opens the journal databases: PostgreSQL when reachable,
// otherwise a private in-memory SQLite that can be dumped to disk.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/emberrealm/worldserver/internal/config"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	pingTimeout      = 5 * time.Second
	postgresMaxConns = 10
)

// sqlitePragmas trade durability for speed; the file copy is made by Dump.
var sqlitePragmas = []string{
	"PRAGMA user_version = 1;",
	"PRAGMA journal_mode = MEMORY;",
	"PRAGMA synchronous = OFF;",
	"PRAGMA cache_size = -32000;",
	"PRAGMA temp_store = MEMORY;",
}

// Manager resolves which database the journal writes to.
type Manager struct {
	cfg   config.DBConfig
	log   zerolog.Logger
	db    *gorm.DB
	local bool
}

func NewManager(cfg config.DBConfig, log zerolog.Logger) *Manager {
	return &Manager{cfg: cfg, log: log}
}

// Connect opens Postgres and pings it. On any failure it falls back to an
// in-memory SQLite database and reports that through Local.
func (m *Manager) Connect(ctx context.Context) error {
	gl := newGormLogger(m.log)

	db, err := openPostgres(m.cfg, gl)
	if err == nil {
		err = ping(ctx, db)
	}
	if err == nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			sqlDB.SetMaxOpenConns(postgresMaxConns)
		}
		m.db, m.local = db, false
		m.log.Info().Str("host", m.cfg.Host).Str("database", m.cfg.Database).Msg("Connected to journal database")
		return nil
	}

	m.log.Error().Err(err).Str("host", m.cfg.Host).Msg("Postgres unreachable, falling back to in-memory SQLite")
	closeQuietly(db)
	db, err = openSQLite(MemoryDSN("fallback"), gl)
	if err != nil {
		return fmt.Errorf("open fallback sqlite: %w", err)
	}
	m.db, m.local = db, true
	return nil
}

// DB returns the connected database, nil before Connect.
func (m *Manager) DB() *gorm.DB { return m.db }

// Local reports whether Connect fell back to SQLite.
func (m *Manager) Local() bool { return m.local }

// Dump copies the fallback database to path. It is a no-op on Postgres.
func (m *Manager) Dump(path string) error {
	if !m.local || m.db == nil {
		return nil
	}
	start := time.Now()
	if err := Dump(m.db, path); err != nil {
		return err
	}
	m.log.Debug().Dur("duration", time.Since(start)).Str("path", path).Msg("Dumped fallback journal")
	return nil
}

func ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("access sql interface: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

func closeQuietly(db *gorm.DB) {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func openPostgres(cfg config.DBConfig, gl logger.Interface) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.DSN(),
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        10000,
		Logger:                 gl,
	})
}

// MemoryDSN names a fresh in-memory SQLite database. Every call yields a
// separate database; connections opened with the same DSN share it.
func MemoryDSN(prefix string) string {
	return fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", prefix, uuid.NewString())
}

// OpenSQLite opens dsn (a file path or a MemoryDSN) with query logging off.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	return openSQLite(dsn, logger.Default.LogMode(logger.Silent))
}

func openSQLite(dsn string, gl logger.Interface) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		CreateBatchSize:        2000,
		Logger:                 gl,
	})
	if err != nil {
		return nil, err
	}
	for _, pragma := range sqlitePragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("set %q: %w", pragma, err)
		}
	}
	return db, nil
}
