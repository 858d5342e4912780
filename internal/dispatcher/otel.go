package dispatcher

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/emberrealm/worldserver/internal/dispatcher"

// instruments counts packet outcomes per opcode.
type instruments struct {
	processed metric.Int64Counter
	dropped   metric.Int64Counter
	failed    metric.Int64Counter
}

// newInstruments registers the packet counters and a backlog gauge fed by depths.
func newInstruments(depths func() map[string]int) (instruments, error) {
	m := otel.Meter(instrumentationName)
	var (
		in  instruments
		err error
	)

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&in.processed, "dispatcher.events.processed", "Packets handled"},
		{&in.dropped, "dispatcher.events.dropped", "Packets dropped on a full handler buffer"},
		{&in.failed, "dispatcher.events.failed", "Packets whose handler returned an error"},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return instruments{}, fmt.Errorf("creating %s: %w", c.name, err)
		}
	}

	backlog, err := m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Packets waiting in a buffered handler"),
	)
	if err != nil {
		return instruments{}, fmt.Errorf("creating dispatcher.queue.size: %w", err)
	}
	_, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for opcode, n := range depths() {
			o.ObserveInt64(backlog, int64(n), opcodeAttr(opcode))
		}
		return nil
	}, backlog)
	if err != nil {
		return instruments{}, fmt.Errorf("registering backlog callback: %w", err)
	}
	return in, nil
}

func opcodeAttr(opcode string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("opcode", opcode))
}

func (in instruments) handled(opcode string) {
	in.processed.Add(context.Background(), 1, opcodeAttr(opcode))
}

func (in instruments) drop(opcode string) {
	in.dropped.Add(context.Background(), 1, opcodeAttr(opcode))
}

func (in instruments) failure(opcode string) {
	in.failed.Add(context.Background(), 1, opcodeAttr(opcode))
}
