// Package monitor periodically snapshots pipeline status to a file and,
// when telemetry is available, pushes the same snapshot to InfluxDB.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dtiendzai123/newheadlockengine/internal/cache"
	"github.com/dtiendzai123/newheadlockengine/internal/controller"
	"github.com/dtiendzai123/newheadlockengine/internal/logging"
	"github.com/dtiendzai123/newheadlockengine/internal/session"
	"github.com/dtiendzai123/newheadlockengine/internal/telemetry"
	"github.com/dtiendzai123/newheadlockengine/pkg/core"
)

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	LogManager *logging.SlogManager
	Session    *session.Context
	Controller func() *controller.Controller
	Cache      *cache.EntityCache
	Telemetry  *telemetry.Manager
	StatusDir  string
}

// Status is the snapshot written on every monitor interval.
type Status struct {
	Time           time.Time         `json:"time"`
	Session        core.Session      `json:"session"`
	Active         bool              `json:"active"`
	Locked         bool              `json:"locked"`
	TrackedEntity  string            `json:"trackedEntity,omitempty"`
	CachedEntities int               `json:"cachedEntities"`
	Stats          core.SessionStats `json:"stats"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	interval  time.Duration
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	return &Service{
		deps:     deps,
		interval: time.Second,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Snapshot builds the current status.
func (s *Service) Snapshot() Status {
	ctl := s.deps.Controller()
	st := Status{
		Time:           time.Now(),
		Active:         ctl.IsActive(),
		Stats:          ctl.Stats(),
		CachedEntities: s.deps.Cache.Len(),
	}
	if sess := s.deps.Session.Session(); sess != nil {
		st.Session = *sess
	}
	if t, ok := ctl.CurrentTarget(); ok {
		st.Locked = true
		if t.Entity != nil {
			st.TrackedEntity = t.Entity.ID
		}
	}
	return st
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.LogManager.Logger()
		logger.Debug("Starting status monitor goroutine", "function", "startStatusMonitor")

		statusFile, err := os.Create(filepath.Join(s.deps.StatusDir, "status.json"))
		if err != nil {
			logger.Error("Error creating status file", "error", err)
		}
		defer statusFile.Close()

		for {
			select {
			case <-s.stopChan:
				return
			default:
				time.Sleep(s.interval)

				status := s.Snapshot()

				if statusFile != nil {
					raw, err := json.MarshalIndent(status, "", "  ")
					if err != nil {
						raw = []byte(fmt.Sprintf(`{"error": %q}`, err.Error()))
					}
					statusFile.Truncate(0)
					statusFile.Seek(0, 0)
					statusFile.Write(raw)
					statusFile.WriteString("\n")
				}

				if s.deps.Telemetry != nil && s.deps.Telemetry.IsValid {
					err := s.deps.Telemetry.WriteTickStats(
						context.Background(), status.Session.SessionName, status.Stats)
					if err != nil {
						logger.Error("Error writing tick stats", "error", err)
					}
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		close(s.stopChan)
		s.isRunning = false
	}
}
