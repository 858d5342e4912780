// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emberrealm/worldserver/pkg/core"
)

// JournalExport is the root JSON structure
type JournalExport struct {
	ExportedAt time.Time      `json:"exportedAt"`
	Teleports  []TeleportJSON `json:"teleports"`
	Ticks      []TickJSON     `json:"ticks"`
	Summary    map[string]any `json:"summary"`
}

// TeleportJSON is one teleport transition
type TeleportJSON struct {
	ID    uint              `json:"id"`
	Time  time.Time         `json:"time"`
	GUID  core.GUID         `json:"guid"`
	Name  string            `json:"name"`
	Phase string            `json:"phase"`
	Kind  string            `json:"kind"`
	From  core.ZoneLocation `json:"from"`
	To    core.ZoneLocation `json:"to"`
}

// TickJSON is one tick sample with durations in milliseconds
type TickJSON struct {
	Tick       uint64    `json:"tick"`
	Time       time.Time `json:"time"`
	DTMs       float64   `json:"dtMs"`
	WorkMs     float64   `json:"workMs"`
	Overrun    bool      `json:"overrun"`
	Clients    int       `json:"clients"`
	QueueDepth int       `json:"queueDepth"`
}

// ExportToDir writes the journal to a timestamped file in dir
func (b *Backend) ExportToDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	name := fmt.Sprintf("journal_%s.json", time.Now().UTC().Format("20060102_150405"))
	if b.cfg.CompressOutput {
		name += ".gz"
	}
	path := filepath.Join(dir, name)
	if err := b.Export(path); err != nil {
		return "", err
	}
	return path, nil
}

// Export writes the journal to path, gzipped if the name ends in .gz
func (b *Backend) Export(path string) error {
	export := b.buildExport()

	var err error
	if strings.HasSuffix(path, ".gz") {
		err = writeGzipJSON(path, export)
	} else {
		err = writeJSON(path, export)
	}
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.lastExportPath = path
	b.mu.Unlock()
	return nil
}

func (b *Backend) buildExport() JournalExport {
	teleports := b.Teleports()
	ticks := b.Ticks()

	export := JournalExport{
		ExportedAt: time.Now().UTC(),
		Teleports:  make([]TeleportJSON, 0, len(teleports)),
		Ticks:      make([]TickJSON, 0, len(ticks)),
	}

	far := 0
	for _, t := range teleports {
		if t.Kind == core.TeleportFar && t.Phase == core.TeleportCompleted {
			far++
		}
		export.Teleports = append(export.Teleports, TeleportJSON{
			ID:    t.ID,
			Time:  t.Time,
			GUID:  t.GUID,
			Name:  t.Name,
			Phase: string(t.Phase),
			Kind:  string(t.Kind),
			From:  t.From,
			To:    t.To,
		})
	}

	overruns := 0
	for _, s := range ticks {
		if s.Overrun {
			overruns++
		}
		export.Ticks = append(export.Ticks, TickJSON{
			Tick:       s.Tick,
			Time:       s.Time,
			DTMs:       float64(s.DT) / float64(time.Millisecond),
			WorkMs:     float64(s.Work) / float64(time.Millisecond),
			Overrun:    s.Overrun,
			Clients:    s.Clients,
			QueueDepth: s.QueueDepth,
		})
	}

	export.Summary = map[string]any{
		"teleports":         len(teleports),
		"completedFarTrips": far,
		"ticks":             len(ticks),
		"overruns":          overruns,
	}
	return export
}

func writeJSON(path string, data JournalExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(data)
}

func writeGzipJSON(path string, data JournalExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}
