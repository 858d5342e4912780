//go:build debug

package scheduler

import (
	"fmt"
	"runtime/debug"
	"time"
)

// stallTripped crashes with every goroutine's stack so the deadlock can be
// read from the trace.
func stallTripped(tick uint64, timeout time.Duration) error {
	debug.SetTraceback("all")
	panic(fmt.Sprintf("tick %d: world advance exceeded %s: %v", tick, timeout, ErrSimulationStalled))
}
