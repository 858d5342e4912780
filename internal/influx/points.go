package influx

import (
	"time"

	"github.com/emberrealm/worldserver/pkg/core"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Bucket names used by the world server.
const (
	BucketServerPerformance = "server_performance"
	BucketRealmPopulation   = "realm_population"
)

// DefaultBucketNames are the buckets created on connect.
var DefaultBucketNames = []string{
	BucketServerPerformance,
	BucketRealmPopulation,
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// TickPoint is the timing of one scheduler iteration.
func TickPoint(realm string, s core.TickSample) *write.Point {
	return influxdb2.NewPoint(
		"tick_timing",
		map[string]string{"realm": realm},
		map[string]any{
			"tick":     int64(s.Tick),
			"dt_ms":    ms(s.DT),
			"work_ms":  ms(s.Work),
			"total_ms": ms(s.Total),
			"overrun":  s.Overrun,
			"queue":    s.QueueDepth,
		},
		s.Time,
	)
}

// PopulationPoint counts connected sessions and characters in the world.
func PopulationPoint(realm string, s core.TickSample) *write.Point {
	return influxdb2.NewPoint(
		"population",
		map[string]string{"realm": realm},
		map[string]any{
			"clients":    s.Clients,
			"characters": s.Population,
		},
		s.Time,
	)
}
