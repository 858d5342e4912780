// Package monitor keeps a rolling view of scheduler health and mirrors it
// into a JSON status file for operators and supervisors.
package monitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/emberrealm/worldserver/pkg/core"
)

// ErrNoStatusFile is returned by Start when no status file is configured.
var ErrNoStatusFile = errors.New("monitor: no status file configured")

type Dependencies struct {
	StatusFile string
	Interval   time.Duration
	Logger     *slog.Logger
	// QueueStats reports total pushed packets and the largest backlog seen.
	QueueStats func() (pushed uint64, highWater int)
	Started    time.Time
}

// Status is the content of the status file.
type Status struct {
	Uptime         string  `json:"uptime"`
	Tick           uint64  `json:"tick"`
	LastDTMs       float64 `json:"lastDtMs"`
	LastWorkMs     float64 `json:"lastWorkMs"`
	PeakWorkMs     float64 `json:"peakWorkMs"`
	Overruns       uint64  `json:"overruns"`
	Clients        int     `json:"clients"`
	Population     int     `json:"population"`
	QueueDepth     int     `json:"queueDepth"`
	PacketsTotal   uint64  `json:"packetsTotal"`
	QueueHighWater int     `json:"queueHighWater"`
}

// tickStats is what the scheduler feeds in each iteration.
type tickStats struct {
	last     core.TickSample
	peakWork time.Duration
	overruns uint64
}

func (t *tickStats) observe(s core.TickSample) {
	t.last = s
	t.peakWork = max(t.peakWork, s.Work)
	if s.Overrun {
		t.overruns++
	}
}

// Service periodically rewrites the status file from observed ticks.
type Service struct {
	deps Dependencies

	mu    sync.Mutex
	ticks tickStats
	stop  chan struct{}
	done  chan struct{}
}

func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	if deps.Started.IsZero() {
		deps.Started = time.Now()
	}
	return &Service{deps: deps}
}

// ObserveTick is a scheduler observer.
func (s *Service) ObserveTick(sample core.TickSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks.observe(sample)
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// GetStatus snapshots the current health figures.
func (s *Service) GetStatus() Status {
	s.mu.Lock()
	t := s.ticks
	s.mu.Unlock()

	st := Status{
		Uptime:     time.Since(s.deps.Started).Round(time.Second).String(),
		Tick:       t.last.Tick,
		LastDTMs:   ms(t.last.DT),
		LastWorkMs: ms(t.last.Work),
		PeakWorkMs: ms(t.peakWork),
		Overruns:   t.overruns,
		Clients:    t.last.Clients,
		Population: t.last.Population,
		QueueDepth: t.last.QueueDepth,
	}
	if s.deps.QueueStats != nil {
		st.PacketsTotal, st.QueueHighWater = s.deps.QueueStats()
	}
	return st
}

// WriteStatus replaces the status file through a rename so readers never see
// a half-written document.
func (s *Service) WriteStatus() error {
	data, err := json.MarshalIndent(s.GetStatus(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.deps.StatusFile), ".status-*")
	if err != nil {
		return fmt.Errorf("create status file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write status file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write status file: %w", err)
	}
	return os.Rename(tmp.Name(), s.deps.StatusFile)
}

// IsRunning reports whether the periodic writer is active.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}

// Start launches the periodic writer. Starting twice is a no-op.
func (s *Service) Start() error {
	if s.deps.StatusFile == "" {
		return ErrNoStatusFile
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return nil
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(s.stop, s.done)
	return nil
}

func (s *Service) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	s.deps.Logger.Debug("Status monitor started", "file", s.deps.StatusFile, "interval", s.deps.Interval)

	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.WriteStatus(); err != nil {
				s.deps.Logger.Error("Error writing status file", "error", err)
			}
		}
	}
}

// Stop ends the periodic writer and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}
