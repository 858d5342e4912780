// Package gormstorage implements the storage.Backend interface using GORM
// with internal queues and a background DB writer goroutine.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/emberrealm/worldserver/internal/database"
	"github.com/emberrealm/worldserver/internal/model"
	"github.com/emberrealm/worldserver/internal/model/convert"
	"github.com/emberrealm/worldserver/internal/queue"
	"github.com/emberrealm/worldserver/pkg/core"

	"gorm.io/gorm"
)

// DefaultFlushInterval is how often the writer drains the queues.
const DefaultFlushInterval = 2 * time.Second

// ErrNoDatabase is returned by Init when no connection was injected.
var ErrNoDatabase = errors.New("no database connection")

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	Logger        *slog.Logger
	RealmName     string
	FlushInterval time.Duration
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	Teleports *queue.Queue[model.TeleportRecord]
	Ticks     *queue.Queue[model.TickRecord]
}

func newQueues() *queues {
	return &queues{
		Teleports: queue.New[model.TeleportRecord](),
		Ticks:     queue.New[model.TickRecord](),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps     Dependencies
	queues   *queues
	stopChan chan struct{}
	done     chan struct{}
	flushMu  sync.Mutex
	stopOnce sync.Once
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	return &Backend{
		deps:   deps,
		queues: newQueues(),
	}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init runs schema migration and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return ErrNoDatabase
	}

	b.deps.Logger.Info("Migrating schema", "dialect", b.deps.DB.Name())
	if err := database.Migrate(b.deps.DB, b.deps.RealmName); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writerLoop()
	return nil
}

// Close stops the DB writer goroutine and writes whatever is still queued.
func (b *Backend) Close() error {
	b.stopOnce.Do(func() {
		if b.stopChan != nil {
			close(b.stopChan)
			<-b.done
		}
	})
	if b.deps.DB == nil {
		return nil
	}
	b.Flush()
	if n := b.queues.Teleports.Len() + b.queues.Ticks.Len(); n > 0 {
		return fmt.Errorf("%d journal rows could not be written", n)
	}
	return nil
}

// RecordTeleport queues a teleport transition for the next write cycle.
func (b *Backend) RecordTeleport(e *core.TeleportEvent) error {
	b.queues.Teleports.Push(convert.CoreToTeleport(*e))
	return nil
}

// RecordTick queues a tick sample for the next write cycle.
func (b *Backend) RecordTick(s *core.TickSample) error {
	b.queues.Ticks.Push(convert.CoreToTick(*s))
	return nil
}

// Pending returns the number of queued rows not yet written.
func (b *Backend) Pending() int {
	return b.queues.Teleports.Len() + b.queues.Ticks.Len()
}

// RecentTeleports flushes the queues and returns up to limit transitions of guid, newest first.
func (b *Backend) RecentTeleports(guid core.GUID, limit int) ([]core.TeleportEvent, error) {
	if b.deps.DB == nil {
		return nil, ErrNoDatabase
	}
	b.Flush()

	var records []model.TeleportRecord
	err := b.deps.DB.
		Where("character_guid = ?", uint64(guid)).
		Order("id desc").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("query teleports: %w", err)
	}

	out := make([]core.TeleportEvent, 0, len(records))
	for _, r := range records {
		e, err := convert.TeleportToCore(r)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Flush synchronously writes every queued row.
func (b *Backend) Flush() {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	log := b.deps.Logger
	writeQueue(b.deps.DB, b.queues.Teleports, "teleports", log)
	writeQueue(b.deps.DB, b.queues.Ticks, "tick samples", log)
}

// writeQueue writes all items from a queue to the database in a transaction.
// On failure the items are pushed back for the next cycle.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log *slog.Logger) {
	if q.Empty() {
		return
	}

	tx := db.Begin()
	items := q.GetAndEmpty()
	if err := tx.Create(&items).Error; err != nil {
		log.Error("Error writing journal rows", "table", name, "count", len(items), "error", err)
		tx.Rollback()
		q.Push(items...)
		return
	}

	if err := tx.Commit().Error; err != nil {
		log.Error("Error committing journal rows", "table", name, "error", err)
		q.Push(items...)
		return
	}
	log.Debug("Wrote journal rows", "table", name, "count", len(items))
}

// writerLoop periodically drains the queues into the DB.
func (b *Backend) writerLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			b.Flush()
		}
	}
}
