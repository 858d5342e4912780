package otel

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// MetricValue is one collected data point, flattened for display.
type MetricValue struct {
	Name  string
	Value float64
}

// Snapshot collects every instrument currently recorded, sorted by name.
// Points of one instrument are summed across attributes. Histograms are
// reported as <name>.count and <name>.mean.
func (p *Provider) Snapshot(ctx context.Context) ([]MetricValue, error) {
	if p.reader == nil {
		return nil, nil
	}

	var rm metricdata.ResourceMetrics
	if err := p.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("collect metrics: %w", err)
	}

	totals := make(map[string]float64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			flatten(totals, m)
		}
	}

	out := make([]MetricValue, 0, len(totals))
	for name, v := range totals {
		out = append(out, MetricValue{Name: name, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func flatten(totals map[string]float64, m metricdata.Metrics) {
	switch data := m.Data.(type) {
	case metricdata.Sum[int64]:
		totals[m.Name] += sumPoints(data.DataPoints)
	case metricdata.Sum[float64]:
		totals[m.Name] += sumPoints(data.DataPoints)
	case metricdata.Gauge[int64]:
		totals[m.Name] += sumPoints(data.DataPoints)
	case metricdata.Gauge[float64]:
		totals[m.Name] += sumPoints(data.DataPoints)
	case metricdata.Histogram[float64]:
		var count uint64
		var sum float64
		for _, dp := range data.DataPoints {
			count += dp.Count
			sum += dp.Sum
		}
		totals[m.Name+".count"] = float64(count)
		if count > 0 {
			totals[m.Name+".mean"] = sum / float64(count)
		}
	}
}

func sumPoints[N int64 | float64](points []metricdata.DataPoint[N]) float64 {
	var total float64
	for _, dp := range points {
		total += float64(dp.Value)
	}
	return total
}
