// Package influx ships per-tick server metrics to InfluxDB, or to a gzipped
// line-protocol file when the server cannot be reached.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/emberrealm/worldserver/internal/config"
	"github.com/emberrealm/worldserver/pkg/core"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"
)

const bucketRetention = 90 * 24 * time.Hour

var (
	// ErrDisabled is returned by Connect when influx.enabled is false.
	ErrDisabled = errors.New("influxdb is disabled")
	// ErrNotConnected is returned by writes before Connect chose a sink.
	ErrNotConnected = errors.New("influxdb not connected and no backup file")
)

// sink receives points for a bucket.
type sink interface {
	write(bucket string, p *write.Point) error
	close() error
}

// Manager writes tick samples to whichever sink Connect selected.
type Manager struct {
	cfg        config.InfluxConfig
	realm      string
	backupPath string
	buckets    []string
	log        zerolog.Logger

	mu     sync.Mutex
	client influxdb2.Client
	out    sink
}

func NewManager(cfg config.InfluxConfig, realm string, log zerolog.Logger, backupPath string) *Manager {
	return &Manager{
		cfg:        cfg,
		realm:      realm,
		backupPath: backupPath,
		buckets:    DefaultBucketNames,
		log:        log,
	}
}

// Connect pings the server and prepares the org, buckets and writers. An
// unreachable server switches to the backup file instead of failing.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(
		m.cfg.ServerURL(),
		m.cfg.Token,
		influxdb2.DefaultOptions().SetBatchSize(2500).SetFlushInterval(1000),
	)

	if running, err := client.Ping(ctx); err != nil || !running {
		client.Close()
		m.log.Warn().Err(err).Str("backupPath", m.backupPath).Msg("InfluxDB unreachable, writing line protocol to backup file")
		backup, err := openBackup(m.backupPath)
		if err != nil {
			return err
		}
		m.setSink(nil, backup)
		return nil
	}

	if err := m.ensureBuckets(ctx, client); err != nil {
		client.Close()
		return err
	}
	m.setSink(client, newAPISink(client, m.cfg.Org, m.buckets, m.log))
	m.log.Info().Str("url", m.cfg.ServerURL()).Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) setSink(client influxdb2.Client, out sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.client, m.out = client, out
}

// Live reports whether points go to the server rather than the backup file.
func (m *Manager) Live() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client != nil
}

func (m *Manager) ensureBuckets(ctx context.Context, client influxdb2.Client) error {
	orgs := client.OrganizationsAPI()
	org, err := orgs.FindOrganizationByName(ctx, m.cfg.Org)
	if err != nil {
		m.log.Info().Str("org", m.cfg.Org).Msg("Organization not found, creating")
		if org, err = orgs.CreateOrganizationWithName(ctx, m.cfg.Org); err != nil {
			return fmt.Errorf("create organization %s: %w", m.cfg.Org, err)
		}
	}

	buckets := client.BucketsAPI()
	expire := domain.RetentionRuleTypeExpire
	for _, name := range m.buckets {
		if _, err := buckets.FindBucketByName(ctx, name); err == nil {
			continue
		}
		m.log.Info().Str("bucket", name).Msg("Bucket not found, creating")
		_, err := buckets.CreateBucketWithName(ctx, org, name, domain.RetentionRule{
			Type:         &expire,
			EverySeconds: int64(bucketRetention / time.Second),
		})
		if err != nil {
			return fmt.Errorf("create bucket %s: %w", name, err)
		}
	}
	return nil
}

// WritePoint sends p to bucket on the current sink.
func (m *Manager) WritePoint(bucket string, p *write.Point) error {
	m.mu.Lock()
	out := m.out
	m.mu.Unlock()
	if out == nil {
		return ErrNotConnected
	}
	return out.write(bucket, p)
}

// WriteTick records one tick sample in both buckets. It has the shape of a
// scheduler observer.
func (m *Manager) WriteTick(s core.TickSample) error {
	return errors.Join(
		m.WritePoint(BucketServerPerformance, TickPoint(m.realm, s)),
		m.WritePoint(BucketRealmPopulation, PopulationPoint(m.realm, s)),
	)
}

// Close flushes and releases the sink.
func (m *Manager) Close() error {
	m.mu.Lock()
	out, client := m.out, m.client
	m.out, m.client = nil, nil
	m.mu.Unlock()

	var err error
	if out != nil {
		err = out.close()
	}
	if client != nil {
		client.Close()
	}
	return err
}

// apiSink writes through one non-blocking WriteAPI per bucket.
type apiSink struct {
	writers map[string]api.WriteAPI
}

func newAPISink(client influxdb2.Client, org string, buckets []string, log zerolog.Logger) *apiSink {
	s := &apiSink{writers: make(map[string]api.WriteAPI, len(buckets))}
	for _, bucket := range buckets {
		w := client.WriteAPI(org, bucket)
		s.writers[bucket] = w
		go func(bucket string, errs <-chan error) {
			for err := range errs {
				log.Error().Err(err).Str("bucket", bucket).Msg("Error sending data to InfluxDB")
			}
		}(bucket, w.Errors())
	}
	return s
}

func (s *apiSink) write(bucket string, p *write.Point) error {
	w, ok := s.writers[bucket]
	if !ok {
		return fmt.Errorf("influxDB bucket %q not registered", bucket)
	}
	w.WritePoint(p)
	return nil
}

func (s *apiSink) close() error {
	for _, w := range s.writers {
		w.Flush()
	}
	return nil
}

// backupSink appends line protocol to a gzip stream, one point per line.
type backupSink struct {
	mu   sync.Mutex
	file *os.File
	gz   *gzip.Writer
}

func openBackup(path string) (*backupSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("error creating backup file: %w", err)
	}
	return &backupSink{file: f, gz: gzip.NewWriter(f)}, nil
}

func (s *backupSink) write(_ string, p *write.Point) error {
	line := write.PointToLineProtocol(p, time.Nanosecond)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.gz.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

func (s *backupSink) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.gz.Close(), s.file.Close())
}
