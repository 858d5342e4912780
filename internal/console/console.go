// Package console reads operator commands from a line-oriented stream,
// usually stdin.
package console

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/emberrealm/worldserver/internal/client"
	"github.com/emberrealm/worldserver/internal/dispatcher"
	"github.com/emberrealm/worldserver/internal/geo"
	"github.com/emberrealm/worldserver/internal/monitor"
	intOtel "github.com/emberrealm/worldserver/internal/otel"
	"github.com/emberrealm/worldserver/internal/queue"
	"github.com/emberrealm/worldserver/internal/storage"
	"github.com/emberrealm/worldserver/pkg/core"
	"github.com/emberrealm/worldserver/pkg/protocol"
)

const defaultHistoryLimit = 10

var errUsage = errors.New("usage")

// StatusSource reports the live server status.
type StatusSource interface {
	GetStatus() monitor.Status
}

// MetricsSource collects the current metric values.
type MetricsSource interface {
	Snapshot(ctx context.Context) ([]intOtel.MetricValue, error)
}

// Sessions finds the session of an online character.
type Sessions interface {
	FindByGUID(guid core.GUID) (*client.Client, bool)
}

// Dependencies holds what the commands reach into. Nil optional sources
// disable their commands.
type Dependencies struct {
	In       io.Reader
	Out      io.Writer
	Running  *atomic.Bool
	Inbound  *queue.Queue[dispatcher.Event]
	Sessions Sessions
	Status   StatusSource
	History  storage.Reader
	Metrics  MetricsSource
	Logger   *slog.Logger
}

// Console executes one command per input line.
type Console struct {
	deps Dependencies
	now  func() time.Time
}

// New creates a console.
func New(deps Dependencies) *Console {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Console{deps: deps, now: time.Now}
}

// Run reads commands until shutdown is requested, the input ends or ctx is
// done. Closing the input does not stop the server.
func (c *Console) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(c.deps.In)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		if quit := c.Execute(ctx, scanner.Text()); quit {
			return nil
		}
	}
	return scanner.Err()
}

// Execute runs a single command line. It reports whether the console should
// stop reading.
func (c *Console) Execute(ctx context.Context, line string) bool {
	args := strings.Fields(line)
	if len(args) == 0 {
		return false
	}

	var err error
	switch strings.ToLower(args[0]) {
	case "shutdown", "exit", "quit":
		c.deps.Logger.Info("Shutdown requested from console")
		c.deps.Running.Store(false)
		return true
	case "help":
		c.help()
	case "status":
		err = c.status()
	case "teleport", "tele":
		err = c.teleport(args[1:])
	case "history":
		err = c.history(args[1:])
	case "metrics":
		err = c.metrics(ctx)
	default:
		err = fmt.Errorf("unknown command %q, try help", args[0])
	}

	if err != nil {
		c.println(err.Error())
	}
	return false
}

func (c *Console) println(a ...any) {
	_, _ = fmt.Fprintln(c.deps.Out, a...)
}

func (c *Console) help() {
	w := tabwriter.NewWriter(c.deps.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "status\tserver tick, client and queue counters")
	fmt.Fprintln(w, "teleport <guid> <map> <x,y,z> [orientation]\tqueue a teleport for an online character")
	fmt.Fprintln(w, "history <guid> [limit]\trecent journaled teleports")
	fmt.Fprintln(w, "metrics\tcurrent metric values")
	fmt.Fprintln(w, "shutdown\tstop the server after the current tick")
	_ = w.Flush()
}

func (c *Console) status() error {
	if c.deps.Status == nil {
		return errors.New("status is not available")
	}
	data, err := json.MarshalIndent(c.deps.Status.GetStatus(), "", "  ")
	if err != nil {
		return err
	}
	c.println(string(data))
	return nil
}

// teleport queues a teleport_request packet on behalf of the character's
// session so it is applied on the scheduler goroutine.
func (c *Console) teleport(args []string) error {
	if len(args) < 3 || len(args) > 4 {
		return fmt.Errorf("%w: teleport <guid> <map> <x,y,z> [orientation]", errUsage)
	}
	guid, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid guid %q", args[0])
	}
	mapID, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid map %q", args[1])
	}
	pos, err := geo.VectorFromString(args[2])
	if err != nil {
		return err
	}
	var orientation float64
	if len(args) == 4 {
		if orientation, err = strconv.ParseFloat(args[3], 32); err != nil {
			return fmt.Errorf("invalid orientation %q", args[3])
		}
	}

	if c.deps.Sessions == nil || c.deps.Inbound == nil {
		return errors.New("teleport is not available")
	}
	session, ok := c.deps.Sessions.FindByGUID(core.GUID(guid))
	if !ok {
		return fmt.Errorf("character %d is not online", guid)
	}

	payload, err := json.Marshal(protocol.TeleportRequestPayload{
		Far: &core.ZoneLocation{Map: core.MapID(mapID), Position: pos, Orientation: float32(orientation)},
	})
	if err != nil {
		return err
	}
	c.deps.Inbound.Push(dispatcher.Event{
		Opcode:    protocol.CmsgTeleportRequest,
		Client:    session.ID(),
		Payload:   payload,
		Timestamp: c.now(),
	})

	c.deps.Logger.Info("Console teleport queued", "guid", guid, "map", mapID, "position", pos)
	c.println("teleport queued")
	return nil
}

func (c *Console) history(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("%w: history <guid> [limit]", errUsage)
	}
	if c.deps.History == nil {
		return errors.New("history is not available for this storage backend")
	}
	guid, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid guid %q", args[0])
	}
	limit := defaultHistoryLimit
	if len(args) == 2 {
		if limit, err = strconv.Atoi(args[1]); err != nil || limit <= 0 {
			return fmt.Errorf("invalid limit %q", args[1])
		}
	}

	events, err := c.deps.History.RecentTeleports(core.GUID(guid), limit)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	if len(events) == 0 {
		c.println("no teleports recorded")
		return nil
	}

	w := tabwriter.NewWriter(c.deps.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tPHASE\tKIND\tFROM\tTO")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d %s\t%d %s\n",
			e.Time.UTC().Format(time.RFC3339), e.Phase, e.Kind,
			e.From.Map, e.From.Position, e.To.Map, e.To.Position)
	}
	return w.Flush()
}

func (c *Console) metrics(ctx context.Context) error {
	if c.deps.Metrics == nil {
		return errors.New("metrics are not available")
	}
	values, err := c.deps.Metrics.Snapshot(ctx)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		c.println("no metrics recorded")
		return nil
	}

	w := tabwriter.NewWriter(c.deps.Out, 0, 4, 2, ' ', 0)
	for _, v := range values {
		fmt.Fprintf(w, "%s\t%g\n", v.Name, v.Value)
	}
	return w.Flush()
}
