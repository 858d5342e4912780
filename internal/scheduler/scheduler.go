// Package scheduler runs the fixed-period server tick: client pass, inbound
// packet drain, world advance, then pacing.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/emberrealm/worldserver/internal/config"
	"github.com/emberrealm/worldserver/pkg/core"
)

const instrumentationName = "github.com/emberrealm/worldserver/internal/scheduler"

// ErrSimulationStalled is returned when the world advance does not finish
// within the stall timeout. The simulation cannot continue after it.
var ErrSimulationStalled = errors.New("simulation stalled")

// ClientPass is the per-tick client manager step.
type ClientPass interface {
	Tick(ctx context.Context, dt time.Duration) error
	Len() int
}

// PacketPass drains the inbound packet queue.
type PacketPass interface {
	HandleQueue(ctx context.Context) error
	Pending() int
}

// WorldPass advances the shared world.
type WorldPass interface {
	Tick(ctx context.Context, dt time.Duration) error
	Population() int
}

// Observer receives the sample of every finished tick on the scheduler
// goroutine. It must not block.
type Observer func(core.TickSample)

// Dependencies holds everything the loop drives.
type Dependencies struct {
	Config    config.TickConfig
	Clients   ClientPass
	Packets   PacketPass
	World     WorldPass
	Observers []Observer
	Running   *atomic.Bool
	Logger    *slog.Logger
}

// Loop is the tick scheduler. Run it on exactly one goroutine.
type Loop struct {
	cfg       config.TickConfig
	clients   ClientPass
	packets   PacketPass
	world     WorldPass
	observers []Observer
	running   *atomic.Bool
	logger    *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)

	tick     uint64
	overruns uint64

	tickDuration metric.Float64Histogram
	tickCount    metric.Int64Counter
	overrunCount metric.Int64Counter
}

// New creates a scheduler loop. Metrics use the global OTel meter.
func New(deps Dependencies) (*Loop, error) {
	if deps.Config.Period <= 0 {
		return nil, fmt.Errorf("tick period must be positive, got %s", deps.Config.Period)
	}
	if deps.Config.StallDetection && deps.Config.StallTimeout <= 0 {
		return nil, fmt.Errorf("stall timeout must be positive, got %s", deps.Config.StallTimeout)
	}
	if deps.Running == nil {
		deps.Running = &atomic.Bool{}
		deps.Running.Store(true)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	l := &Loop{
		cfg:       deps.Config,
		clients:   deps.Clients,
		packets:   deps.Packets,
		world:     deps.World,
		observers: deps.Observers,
		running:   deps.Running,
		logger:    logger,
		now:       time.Now,
		sleep:     sleepContext,
	}

	m := otel.Meter(instrumentationName)
	var err error

	l.tickDuration, err = m.Float64Histogram(
		"scheduler.tick.duration",
		metric.WithDescription("Work time of one tick before pacing"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tick duration histogram: %w", err)
	}

	l.tickCount, err = m.Int64Counter(
		"scheduler.ticks",
		metric.WithDescription("Total ticks run"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tick counter: %w", err)
	}

	l.overrunCount, err = m.Int64Counter(
		"scheduler.tick.overruns",
		metric.WithDescription("Ticks whose work exceeded the tick period"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating overrun counter: %w", err)
	}

	return l, nil
}

// AddObserver registers an observer. Call it before Run.
func (l *Loop) AddObserver(o Observer) {
	l.observers = append(l.observers, o)
}

// Ticks returns the number of finished ticks and how many of them overran.
// It is only safe to call from an observer or after Run returns.
func (l *Loop) Ticks() (ticks, overruns uint64) {
	return l.tick, l.overruns
}

// Run ticks until the running flag is cleared or ctx is done. The flag is
// only checked between iterations, so a started tick always finishes. A
// client pass failure is logged; a queue or world failure ends the loop.
func (l *Loop) Run(ctx context.Context) error {
	// The first tick has no previous loop to measure; assume one period.
	dt := l.cfg.Period

	l.logger.Info("Scheduler started", "period", l.cfg.Period, "stallDetection", l.cfg.StallDetection)
	defer l.logger.Info("Scheduler stopped", "ticks", l.tick, "overruns", l.overruns)

	for l.running.Load() {
		if ctx.Err() != nil {
			return nil
		}

		t0 := l.now()

		if err := l.clients.Tick(ctx, dt); err != nil {
			l.logger.Warn("Client pass failed", "tick", l.tick, "error", err)
		}

		depth := l.packets.Pending()
		if err := l.packets.HandleQueue(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("tick %d: handle queue: %w", l.tick, err)
		}

		if err := l.advanceWorld(ctx, dt); err != nil {
			if errors.Is(err, ErrSimulationStalled) {
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("tick %d: %w", l.tick, err)
		}

		work := l.now().Sub(t0)
		overrun := work >= l.cfg.Period
		if overrun {
			l.overruns++
			l.logger.Warn("Tick took too long", "tick", l.tick, "work", work, "period", l.cfg.Period)
		} else {
			l.sleep(ctx, l.cfg.Period-work)
		}

		total := l.now().Sub(t0)
		l.finish(ctx, core.TickSample{
			Time:       t0,
			Tick:       l.tick,
			DT:         dt,
			Work:       work,
			Total:      total,
			Overrun:    overrun,
			Clients:    l.clients.Len(),
			QueueDepth: depth,
			Population: l.world.Population(),
		})
		dt = total
	}
	return nil
}

// advanceWorld runs the world tick, bounded by the stall timeout when stall
// detection is on.
func (l *Loop) advanceWorld(ctx context.Context, dt time.Duration) error {
	if !l.cfg.StallDetection {
		return l.world.Tick(ctx, dt)
	}

	done := make(chan error, 1)
	go func() {
		done <- l.world.Tick(ctx, dt)
	}()

	timer := time.NewTimer(l.cfg.StallTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		l.logger.Error("World tick stalled", "tick", l.tick, "timeout", l.cfg.StallTimeout)
		return stallTripped(l.tick, l.cfg.StallTimeout)
	}
}

func (l *Loop) finish(ctx context.Context, s core.TickSample) {
	l.tickDuration.Record(ctx, float64(s.Work)/float64(time.Millisecond))
	l.tickCount.Add(ctx, 1)
	if s.Overrun {
		l.overrunCount.Add(ctx, 1)
	}

	l.tick++
	for _, o := range l.observers {
		o(s)
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
