// Package world holds the shared map instance registry and advances every
// live map once per server tick.
package world

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// World is the root of the shared simulation state.
type World struct {
	instances *InstanceManager
	logger    *slog.Logger
}

// New creates a World. catalog may be nil.
func New(catalog *Catalog, logger *slog.Logger) *World {
	if logger == nil {
		logger = slog.Default()
	}
	return &World{
		instances: NewInstanceManager(catalog),
		logger:    logger,
	}
}

// InstanceManager returns the map registry.
func (w *World) InstanceManager() *InstanceManager {
	return w.instances
}

// Tick advances every live map instance by dt. Instances tick concurrently;
// the first failure cancels the rest.
func (w *World) Tick(ctx context.Context, dt time.Duration) error {
	instances := w.instances.Instances()
	if len(instances) == 0 {
		return ctx.Err()
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, inst := range instances {
		g.Go(func() error {
			if err := inst.Tick(gctx, dt); err != nil {
				return fmt.Errorf("map %d: %w", inst.ID(), err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("world tick: %w", err)
	}

	w.logger.Debug("World ticked", "instances", len(instances), "dt", dt)
	return nil
}

// Population returns the number of objects across all instances.
func (w *World) Population() int {
	total := 0
	for _, inst := range w.instances.Instances() {
		total += inst.Len()
	}
	return total
}
