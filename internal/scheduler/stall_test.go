//go:build !debug

package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberrealm/worldserver/internal/config"
)

func TestRun_StallEndsLoop(t *testing.T) {
	r := newRecorder()
	w := &blockingWorld{release: make(chan struct{})}
	defer close(w.release)

	l, err := New(Dependencies{
		Config:  config.TickConfig{Period: period, StallTimeout: 20 * time.Millisecond, StallDetection: true},
		Clients: r,
		Packets: packets{r},
		World:   w,
	})
	require.NoError(t, err)
	l.now = r.clock.now

	err = l.Run(context.Background())
	require.ErrorIs(t, err, ErrSimulationStalled)
	assert.Contains(t, err.Error(), "tick 0")
}

func TestAdvanceWorld_FinishesInTime(t *testing.T) {
	r := newRecorder()
	l, err := New(Dependencies{
		Config: config.TickConfig{Period: period, StallTimeout: time.Second, StallDetection: true},
		World:  worldPass{r},
	})
	require.NoError(t, err)

	assert.NoError(t, l.advanceWorld(context.Background(), 0))
	assert.Equal(t, []string{"world"}, r.calls)
}
