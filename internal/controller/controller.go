// Package controller orchestrates the detector and aim lock on a fixed
// tick cadence and emits the resulting aim output to the input sink.
package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/dtiendzai123/newheadlockengine/internal/aimlock"
	"github.com/dtiendzai123/newheadlockengine/internal/clock"
	"github.com/dtiendzai123/newheadlockengine/internal/detector"
	"github.com/dtiendzai123/newheadlockengine/internal/sink"
	"github.com/dtiendzai123/newheadlockengine/pkg/core"
)

// triggerThreshold is the residual aim error (world units) below which
// the trigger-assist emits a fire signal.
const triggerThreshold = 2.0

// Config holds controller tuning.
type Config struct {
	// AutoLock acquires a lock automatically on the best scanned target.
	AutoLock bool
	// UpdateInterval gates tick processing.
	UpdateInterval time.Duration
	// TriggerBot fires when the aim error drops below the threshold.
	TriggerBot bool
}

// DefaultConfig returns the stock controller tuning.
func DefaultConfig() Config {
	return Config{
		AutoLock:       true,
		UpdateInterval: 16 * time.Millisecond,
		TriggerBot:     false,
	}
}

// Validate rejects configurations that cannot produce a working controller.
func (c Config) Validate() error {
	if c.UpdateInterval <= 0 {
		return fmt.Errorf("updateInterval must be positive, got %v", c.UpdateInterval)
	}
	return nil
}

// Option configures optional controller collaborators.
type Option func(*Controller)

// WithClock injects the time source used for the tick gate and stats.
func WithClock(c clock.Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

// Controller drives the targeting pipeline. Its public methods are safe
// for concurrent use: the tick loop, the feed's command handlers and the
// status monitor all call in from their own goroutines, and the mutex
// serializes them over the controller, detector and lock state.
type Controller struct {
	cfg    Config
	det    *detector.Detector
	lock   *aimlock.Lock
	driver sink.Driver
	clock  clock.Clock

	mu           sync.Mutex
	active       bool
	lastTick     time.Time
	activatedAt  time.Time
	fireInFlight bool

	stats struct {
		locksAcquired  uint64
		ticks          uint64
		activeTime     time.Duration
		lastActivation time.Time
	}

	// OTEL metrics
	locksCounter    metric.Int64Counter
	ticksCounter    metric.Int64Counter
	firesCounter    metric.Int64Counter
	fireErrsCounter metric.Int64Counter
	aimErrorHist    metric.Float64Histogram
}

// New creates a Controller wired to its collaborators.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(cfg Config, det *detector.Detector, lock *aimlock.Lock, driver sink.Driver, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("controller config: %w", err)
	}
	if det == nil || lock == nil || driver == nil {
		return nil, fmt.Errorf("controller requires detector, lock and driver")
	}

	ctl := &Controller{
		cfg:    cfg,
		det:    det,
		lock:   lock,
		driver: driver,
		clock:  clock.System(),
	}
	for _, opt := range opts {
		opt(ctl)
	}

	m := meter()

	var err error
	ctl.locksCounter, err = m.Int64Counter(
		"headlock.locks.acquired",
		metric.WithDescription("Total aim locks acquired"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating locks counter: %w", err)
	}
	ctl.ticksCounter, err = m.Int64Counter(
		"headlock.ticks.processed",
		metric.WithDescription("Total controller ticks processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating ticks counter: %w", err)
	}
	ctl.firesCounter, err = m.Int64Counter(
		"headlock.fires.delivered",
		metric.WithDescription("Trigger signals acknowledged by the injector"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating fires counter: %w", err)
	}
	ctl.fireErrsCounter, err = m.Int64Counter(
		"headlock.fires.failed",
		metric.WithDescription("Trigger signals rejected or unacknowledged"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating fire errors counter: %w", err)
	}
	ctl.aimErrorHist, err = m.Float64Histogram(
		"headlock.aim.error",
		metric.WithDescription("Residual aim error per tick, world units"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating aim error histogram: %w", err)
	}

	return ctl, nil
}

// IsActive reports whether the controller is processing ticks.
func (ctl *Controller) IsActive() bool {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	return ctl.active
}

// CurrentTarget returns the locked target, if any.
func (ctl *Controller) CurrentTarget() (*core.Target, bool) {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	t := ctl.lock.Target()
	return t, t != nil
}

// Activate turns tick processing on. Edge-triggered; activating an
// already-active controller does nothing.
func (ctl *Controller) Activate() {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	if ctl.active {
		return
	}
	ctl.active = true
	ctl.activatedAt = ctl.clock.Now()
	ctl.stats.lastActivation = ctl.activatedAt
}

// Deactivate turns tick processing off, force-releases any active lock
// and accrues the active duration into stats. Edge-triggered.
func (ctl *Controller) Deactivate() {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	if !ctl.active {
		return
	}
	ctl.active = false
	ctl.lock.ReleaseLock()
	ctl.stats.activeTime += ctl.clock.Now().Sub(ctl.activatedAt)
}

// Tick runs one pipeline pass: scan, select/lock, update, emit. It is a
// no-op when inactive or when called before UpdateInterval has elapsed
// since the previous processed tick. The mutex is held for the whole
// pass, so a concurrent Deactivate cannot release the lock mid-update.
func (ctl *Controller) Tick(viewer core.ViewerState, entities []*core.Entity) *core.AimResult {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	if !ctl.active {
		return nil
	}
	now := ctl.clock.Now()
	if !ctl.lastTick.IsZero() && now.Sub(ctl.lastTick) < ctl.cfg.UpdateInterval {
		return nil
	}

	deltaTime := ctl.cfg.UpdateInterval.Seconds()
	if !ctl.lastTick.IsZero() {
		deltaTime = now.Sub(ctl.lastTick).Seconds()
	}
	ctl.lastTick = now
	ctl.stats.ticks++
	ctl.ticksCounter.Add(context.Background(), 1)

	targets := ctl.det.ScanArea(viewer, entities)

	if ctl.lock.IsLocked() {
		// Re-confirm the locked target from this scan so staleness only
		// trips when the entity genuinely left the detector's view.
		locked := ctl.lock.Target()
		for i := range targets {
			if locked.SameEntity(&targets[i]) {
				ctl.lock.Refresh(&targets[i])
				break
			}
		}
	} else if ctl.cfg.AutoLock && len(targets) > 0 {
		best := ctl.SelectBestTarget(targets)
		if best != nil && ctl.lock.LockOnTarget(best, viewer.Position) {
			ctl.stats.locksAcquired++
			ctl.locksCounter.Add(context.Background(), 1)
		}
	}

	result := ctl.lock.UpdateAimLock(viewer.Position, deltaTime)
	if result == nil {
		return nil
	}

	if err := ctl.driver.SendDelta(result.Delta); err != nil {
		// Output failure is not fatal to the pipeline; the next tick
		// recomputes a fresh delta.
		return result
	}

	aimError := result.AimPosition.DistanceTo(result.Target.AimPosition)
	ctl.aimErrorHist.Record(context.Background(), aimError)

	if ctl.cfg.TriggerBot && aimError < triggerThreshold && !ctl.fireInFlight {
		// SendFire waits for the injector's ack, so it runs off the tick
		// path. One signal in flight at a time; re-fires wait for the ack.
		ctl.fireInFlight = true
		go ctl.deliverFire()
	}

	return result
}

func (ctl *Controller) deliverFire() {
	err := ctl.driver.SendFire()

	ctl.mu.Lock()
	ctl.fireInFlight = false
	ctl.mu.Unlock()

	if err != nil {
		ctl.fireErrsCounter.Add(context.Background(), 1)
		return
	}
	ctl.firesCounter.Add(context.Background(), 1)
}

// SelectBestTarget applies the strict tie-break chain: higher confidence,
// then higher priority, then smaller distance, otherwise the incumbent.
func (ctl *Controller) SelectBestTarget(targets []core.Target) *core.Target {
	if len(targets) == 0 {
		return nil
	}
	best := &targets[0]
	for i := 1; i < len(targets); i++ {
		c := &targets[i]
		switch {
		case c.Confidence > best.Confidence:
			best = c
		case c.Confidence < best.Confidence:
		case c.Priority > best.Priority:
			best = c
		case c.Priority < best.Priority:
		case c.Distance < best.Distance:
			best = c
		}
	}
	return best
}

// Stats returns a read-only snapshot of the cumulative counters,
// including active time accrued in the current activation.
func (ctl *Controller) Stats() core.SessionStats {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	activeTime := ctl.stats.activeTime
	if ctl.active {
		activeTime += ctl.clock.Now().Sub(ctl.activatedAt)
	}

	s := core.SessionStats{
		LocksAcquired:  ctl.stats.locksAcquired,
		Ticks:          ctl.stats.ticks,
		ActiveTime:     activeTime,
		LastActivation: ctl.stats.lastActivation,
	}
	if secs := activeTime.Seconds(); secs > 0 {
		s.LocksPerSecond = float64(s.LocksAcquired) / secs
	}
	return s
}
