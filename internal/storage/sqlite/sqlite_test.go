package sqlitestorage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/emberrealm/worldserver/internal/database"
	"github.com/emberrealm/worldserver/internal/model"
	"github.com/emberrealm/worldserver/internal/storage"
	"github.com/emberrealm/worldserver/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ storage.Backend = (*Backend)(nil)
	_ storage.Reader  = (*Backend)(nil)
)

func TestClose_WritesFinalDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	b, err := New(Config{DumpPath: path, RealmName: "Ember"}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())

	require.NoError(t, b.RecordTeleport(&core.TeleportEvent{
		Time:  time.Now(),
		GUID:  3,
		Phase: core.TeleportStarted,
		Kind:  core.TeleportNear,
	}))
	require.NoError(t, b.Close())

	_, err = os.Stat(path)
	require.NoError(t, err)

	db, err := database.OpenSQLite(path)
	require.NoError(t, err)
	var count int64
	require.NoError(t, db.Model(&model.TeleportRecord{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestBackends_AreIsolated(t *testing.T) {
	a, err := New(Config{}, nil)
	require.NoError(t, err)
	require.NoError(t, a.Init())
	defer a.Close()

	b, err := New(Config{}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, a.RecordTeleport(&core.TeleportEvent{GUID: 1, Phase: core.TeleportStarted}))

	got, err := b.RecentTeleports(1, 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = a.RecentTeleports(1, 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestDumpLoop_WritesPeriodically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	b, err := New(Config{DumpPath: path, DumpInterval: 20 * time.Millisecond}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	defer b.Close()

	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil && b.Dumps() > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClose_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	b, err := New(Config{DumpPath: path, DumpInterval: time.Hour}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.Equal(t, uint64(1), b.Dumps(), "only the final snapshot")
}
