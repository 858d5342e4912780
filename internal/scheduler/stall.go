//go:build !debug

package scheduler

import (
	"fmt"
	"time"
)

// stallTripped ends the loop with ErrSimulationStalled; the process is
// expected to shut down.
func stallTripped(tick uint64, timeout time.Duration) error {
	return fmt.Errorf("tick %d: world advance exceeded %s: %w", tick, timeout, ErrSimulationStalled)
}
