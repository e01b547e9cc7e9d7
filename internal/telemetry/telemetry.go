// Package telemetry exports targeting pipeline measurements to InfluxDB.
// When the database is unreachable, points are appended to a gzip backup
// file in line protocol so no data is lost.
package telemetry

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/dtiendzai123/newheadlockengine/internal/aimlock"
	"github.com/dtiendzai123/newheadlockengine/internal/queue"
	"github.com/dtiendzai123/newheadlockengine/pkg/core"
)

// Bucket names for targeting telemetry.
const (
	BucketTicks      = "targeting_ticks"
	BucketLockEvents = "lock_events"
	BucketAimSamples = "aim_samples"
)

// DefaultBucketNames are the buckets ensured on connect.
var DefaultBucketNames = []string{
	BucketTicks,
	BucketLockEvents,
	BucketAimSamples,
}

// Manager handles InfluxDB connections and writes.
type Manager struct {
	Client       influxdb2.Client
	Writers      map[string]influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	BucketNames  []string
	Logger       zerolog.Logger
	BackupPath   string

	// backupQueue spools line protocol records so WritePoint stays safe to
	// call from the tick loop and the monitor concurrently. A single
	// flusher goroutine drains it into the gzip writer.
	backupQueue *queue.Queue[string]
	flushStop   chan struct{}
	flushDone   chan struct{}
}

// NewManager creates a new telemetry manager.
func NewManager(log zerolog.Logger, backupPath string) *Manager {
	return &Manager{
		Writers:     make(map[string]influxdb2_api.WriteAPI),
		IsValid:     false,
		BucketNames: DefaultBucketNames,
		Logger:      log,
		BackupPath:  backupPath,
	}
}

// Connect establishes a connection to InfluxDB.
func (m *Manager) Connect() error {
	if !viper.GetBool("influx.enabled") {
		return errors.New("influx.enabled is false")
	}

	m.Client = influxdb2.NewClientWithOptions(
		fmt.Sprintf(
			"%s://%s:%s",
			viper.GetString("influx.protocol"),
			viper.GetString("influx.host"),
			viper.GetString("influx.port"),
		),
		viper.GetString("influx.token"),
		influxdb2.DefaultOptions().
			SetBatchSize(2500).
			SetFlushInterval(1000),
	)

	// validate client connection health
	running, err := m.Client.Ping(context.Background())

	if err != nil || !running {
		m.IsValid = false
		// create backup writer
		if m.BackupWriter == nil {
			m.Logger.Info().Str("backupPath", m.BackupPath).
				Msg("Failed to initialize InfluxDB client, writing to backup file")

			file, err := os.OpenFile(m.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return fmt.Errorf("error creating backup file: %v", err)
			}
			m.BackupWriter = gzip.NewWriter(file)
			m.backupQueue = queue.New[string]()
			m.flushStop = make(chan struct{})
			m.flushDone = make(chan struct{})
			go m.flushBackupLoop()
		}
	} else {
		m.IsValid = true
	}

	if m.IsValid {
		err = m.setupOrganizationAndBuckets()
		if err != nil {
			return err
		}
		m.CreateWriters()
		m.Logger.Info().Msg("InfluxDB client initialized")
	} else {
		m.Logger.Warn().Msg("InfluxDB client failed to initialize, using backup writer")
	}

	return nil
}

func (m *Manager) setupOrganizationAndBuckets() error {
	ctx := context.Background()
	orgName := viper.GetString("influx.org")

	// ensure org exists
	_, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Info().Str("org", orgName).Msg("Organization not found, creating")
		_, err = m.Client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			m.Logger.Error().Err(err).Str("org", orgName).Msg("Error creating organization")
			return err
		}
	}

	influxOrg, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Error().Err(err).Str("org", orgName).Msg("Error getting organization")
		return err
	}

	// ensure buckets exist with 90 day retention
	for _, bucket := range m.BucketNames {
		_, err = m.Client.BucketsAPI().FindBucketByName(ctx, bucket)
		if err != nil {
			m.Logger.Info().Str("bucket", bucket).Msg("Bucket not found, creating")

			rule := domain.RetentionRuleTypeExpire
			_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, influxOrg, bucket, domain.RetentionRule{
				Type:         &rule,
				EverySeconds: 60 * 60 * 24 * 90, // 90 days
			})
			if err != nil {
				m.Logger.Error().Err(err).Str("bucket", bucket).Msg("Error creating bucket")
				return err
			}
		}
	}

	return nil
}

// CreateWriters creates write APIs for all configured buckets.
func (m *Manager) CreateWriters() {
	orgName := viper.GetString("influx.org")
	for _, bucket := range m.BucketNames {
		m.Logger.Trace().Str("bucket", bucket).Msg("Creating InfluxDB writer")
		m.Writers[bucket] = m.Client.WriteAPI(orgName, bucket)

		errorsCh := m.Writers[bucket].Errors()
		go func(bucketName string, errorsCh <-chan error) {
			for writeErr := range errorsCh {
				m.Logger.Error().Err(writeErr).Str("bucket", bucketName).
					Msg("Error sending data to InfluxDB")
			}
		}(bucket, errorsCh)

		m.Logger.Trace().Str("bucket", bucket).Msg("InfluxDB writer created")
	}

	m.Logger.Debug().Msg("InfluxDB writers initialized")
}

// WritePoint writes a point to InfluxDB or the backup file.
func (m *Manager) WritePoint(ctx context.Context, bucket string, point *influxdb2_write.Point) error {
	if m.IsValid {
		if _, ok := m.Writers[bucket]; !ok {
			return fmt.Errorf("influxDB bucket '%s' not registered", bucket)
		}
		m.Writers[bucket].WritePoint(point)
	} else {
		if m.backupQueue == nil {
			return fmt.Errorf("influxDB client not initialized and backup writer not available")
		}

		lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Duration(1*time.Nanosecond))
		m.backupQueue.Push(lineProtocol + "\n")
	}

	return nil
}

// flushBackupLoop drains the backup queue into the gzip writer once a
// second and performs a final drain on shutdown.
func (m *Manager) flushBackupLoop() {
	defer close(m.flushDone)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.drainBackupQueue()
		case <-m.flushStop:
			m.drainBackupQueue()
			return
		}
	}
}

func (m *Manager) drainBackupQueue() {
	for _, line := range m.backupQueue.GetAndEmpty() {
		if _, err := m.BackupWriter.Write([]byte(line)); err != nil {
			m.Logger.Error().Err(err).Msg("Error writing to InfluxDB backup file")
			return
		}
	}
}

// WriteTickStats records a snapshot of controller statistics.
func (m *Manager) WriteTickStats(ctx context.Context, session string, stats core.SessionStats) error {
	point := influxdb2_write.NewPointWithMeasurement("tick_stats").
		AddTag("session", session).
		AddField("ticks", int(stats.Ticks)).
		AddField("locks_acquired", int(stats.LocksAcquired)).
		AddField("active_seconds", stats.ActiveTime.Seconds()).
		AddField("locks_per_second", stats.LocksPerSecond).
		SetTime(time.Now())
	return m.WritePoint(ctx, BucketTicks, point)
}

// WriteLockEvent records a lock state transition.
func (m *Manager) WriteLockEvent(ctx context.Context, session string, ev aimlock.Event) error {
	entityID := ""
	if ev.Target != nil && ev.Target.Entity != nil {
		entityID = ev.Target.Entity.ID
	}
	point := influxdb2_write.NewPointWithMeasurement("lock_event").
		AddTag("session", session).
		AddTag("kind", string(ev.Kind)).
		AddTag("entity", entityID).
		AddField("reason", ev.Reason).
		SetTime(ev.At)
	return m.WritePoint(ctx, BucketLockEvents, point)
}

// WriteAimSample records the outcome of one aim update.
func (m *Manager) WriteAimSample(ctx context.Context, session string, res core.AimResult) error {
	entityID := ""
	if res.Target != nil && res.Target.Entity != nil {
		entityID = res.Target.Entity.ID
	}
	point := influxdb2_write.NewPointWithMeasurement("aim_sample").
		AddTag("session", session).
		AddTag("entity", entityID).
		AddField("yaw", res.Delta.Yaw).
		AddField("pitch", res.Delta.Pitch).
		AddField("strength", res.Strength).
		AddField("lock_age_ms", float64(res.LockAge.Milliseconds())).
		SetTime(time.Now())
	return m.WritePoint(ctx, BucketAimSamples, point)
}

// Close flushes writers and releases resources.
func (m *Manager) Close() {
	if m.flushStop != nil {
		close(m.flushStop)
		<-m.flushDone
	}
	if m.BackupWriter != nil {
		_ = m.BackupWriter.Close()
	}
	if m.Client != nil {
		for _, w := range m.Writers {
			w.Flush()
		}
		m.Client.Close()
	}
}
