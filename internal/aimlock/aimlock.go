// Package aimlock holds at most one locked target and converts it into a
// smoothed, predicted, humanized aim direction each tick.
package aimlock

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/dtiendzai123/newheadlockengine/internal/channel"
	"github.com/dtiendzai123/newheadlockengine/internal/clock"
	"github.com/dtiendzai123/newheadlockengine/pkg/core"
	"github.com/dtiendzai123/newheadlockengine/pkg/vmath"
)

const (
	// bulletSpeed is the fixed projectile speed assumed by the
	// first-order lead prediction, in world units per second.
	bulletSpeed = 1000.0

	// staleAfter drops a lock whose target has not been re-confirmed by
	// a scan within this window.
	staleAfter = time.Second

	// Auto aim-bone switches to the chest point beyond this distance or
	// above this target speed.
	autoChestDistance = 200.0
	autoChestSpeed    = 5.0
)

// Aim bone selection modes.
const (
	BoneHead  = "head"
	BoneChest = "chest"
	BoneAuto  = "auto"
)

// HumanizationConfig tunes the temporally correlated jitter applied to
// the aim output.
type HumanizationConfig struct {
	Enabled bool
	// Jitter is the peak offset magnitude per axis; each tick draws a
	// new jitter goal uniformly in [-Jitter/2, +Jitter/2].
	Jitter float64
	// Delay is the decay rate reference in ms.
	Delay float64
	// Variation is reserved; the update math does not consume it yet.
	Variation float64
}

// Config holds aim-lock tuning.
type Config struct {
	// LockStrength scales the emitted yaw/pitch delta.
	LockStrength float64
	// Smoothing is the exponential approach coefficient.
	Smoothing float64
	// MaxLockDistance gates lock acquisition.
	MaxLockDistance float64
	// LockDuration expires a lock regardless of target validity.
	LockDuration time.Duration
	// EnablePrediction turns on constant-velocity lead compensation.
	EnablePrediction bool
	// PredictionMultiplier scales the lead estimate.
	PredictionMultiplier float64
	// AimBone selects the tracked point: head, chest or auto.
	AimBone string

	Humanization HumanizationConfig
}

// DefaultConfig returns the stock aim-lock tuning.
func DefaultConfig() Config {
	return Config{
		LockStrength:         0.8,
		Smoothing:            0.15,
		MaxLockDistance:      150.0,
		LockDuration:         3 * time.Second,
		EnablePrediction:     true,
		PredictionMultiplier: 1.0,
		AimBone:              BoneHead,
		Humanization: HumanizationConfig{
			Enabled:   true,
			Jitter:    0.5,
			Delay:     50,
			Variation: 0.3,
		},
	}
}

// Validate rejects configurations that cannot produce a working lock.
func (c Config) Validate() error {
	if c.LockStrength <= 0 {
		return fmt.Errorf("lockStrength must be positive, got %g", c.LockStrength)
	}
	if c.Smoothing <= 0 {
		return fmt.Errorf("smoothing must be positive, got %g", c.Smoothing)
	}
	if c.MaxLockDistance <= 0 {
		return fmt.Errorf("maxLockDistance must be positive, got %g", c.MaxLockDistance)
	}
	if c.LockDuration <= 0 {
		return fmt.Errorf("lockDuration must be positive, got %v", c.LockDuration)
	}
	switch c.AimBone {
	case BoneHead, BoneChest, BoneAuto:
	default:
		return fmt.Errorf("aimBone must be head, chest or auto, got %q", c.AimBone)
	}
	if c.Humanization.Jitter < 0 {
		return fmt.Errorf("humanization jitter must not be negative, got %g", c.Humanization.Jitter)
	}
	return nil
}

// EventKind classifies a lock state transition.
type EventKind string

const (
	EventLocked   EventKind = "locked"
	EventReleased EventKind = "released"
)

// Release reasons carried on EventReleased events.
const (
	ReasonManual  = "manual"
	ReasonExpired = "expired"
	ReasonStale   = "stale"
	ReasonInvalid = "invalid"
)

// Event is a structured lock state transition. Transitions are emitted
// through a channel rather than logged so the core stays free of I/O.
type Event struct {
	Kind   EventKind
	Target *core.Target
	Reason string
	At     time.Time
}

// Option configures optional lock collaborators.
type Option func(*Lock)

// WithClock injects the time source used for lock age and staleness.
func WithClock(c clock.Clock) Option {
	return func(l *Lock) { l.clock = c }
}

// WithRand injects the randomness source for humanization jitter.
func WithRand(r *rand.Rand) Option {
	return func(l *Lock) { l.rng = r }
}

// WithEvents attaches a sink for lock state transition events.
func WithEvents(events channel.Sender[Event]) Option {
	return func(l *Lock) { l.events = events }
}

// Lock is the aim-lock state machine. It owns its state exclusively and
// must be driven serially; in the assembled pipeline the controller's
// mutex provides that.
type Lock struct {
	cfg    Config
	clock  clock.Clock
	rng    *rand.Rand
	events channel.Sender[Event]

	locked      bool
	target      *core.Target
	lockStart   time.Time
	lastAim     vmath.Vector
	humanOffset vmath.Vector
}

// New creates a Lock, validating the configuration up front.
func New(cfg Config, opts ...Option) (*Lock, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("aimlock config: %w", err)
	}
	l := &Lock{
		cfg:   cfg,
		clock: clock.System(),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Config returns the lock's configuration.
func (l *Lock) Config() Config { return l.cfg }

// IsLocked reports whether a lock is active.
func (l *Lock) IsLocked() bool { return l.locked }

// Target returns the currently locked target, or nil.
func (l *Lock) Target() *core.Target {
	if !l.locked {
		return nil
	}
	return l.target
}

// LockOnTarget acquires a lock on the target. It fails, leaving state
// unchanged, when a lock is already active or the target's aim position
// is beyond MaxLockDistance. On success the smoothing baseline is seeded
// to the target's current aim position so the first update cannot snap
// from a stale previous aim.
func (l *Lock) LockOnTarget(target *core.Target, viewerPos vmath.Vector) bool {
	if l.locked || target == nil {
		return false
	}
	if viewerPos.DistanceTo(target.AimPosition) > l.cfg.MaxLockDistance {
		return false
	}

	l.locked = true
	l.target = target
	l.lockStart = l.clock.Now()
	l.lastAim = target.AimPosition
	l.humanOffset = vmath.Vector{}

	l.emit(Event{Kind: EventLocked, Target: target, At: l.lockStart})
	return true
}

// ReleaseLock drops the active lock. Idempotent.
func (l *Lock) ReleaseLock() {
	l.release(ReasonManual)
}

// Refresh replaces the locked target wholesale with a newer scan record
// for the same entity. Records for other entities are ignored; the lock
// never partially updates a target.
func (l *Lock) Refresh(target *core.Target) {
	if !l.locked || target == nil {
		return
	}
	if !l.target.SameEntity(target) {
		return
	}
	l.target = target
}

// UpdateAimLock advances the lock by deltaTime seconds and returns the
// resulting aim bundle, or nil when unlocked. The lock self-releases when
// its duration elapses or the target goes invalid or stale.
func (l *Lock) UpdateAimLock(viewerPos vmath.Vector, deltaTime float64) *core.AimResult {
	if !l.locked {
		return nil
	}

	now := l.clock.Now()
	age := now.Sub(l.lockStart)
	if age > l.cfg.LockDuration {
		l.release(ReasonExpired)
		return nil
	}
	if reason, ok := l.targetInvalid(now); ok {
		l.release(reason)
		return nil
	}

	aim := l.resolveAimPoint(viewerPos)

	if l.cfg.EnablePrediction {
		speed := l.target.Velocity.Length()
		if speed > 0.1 {
			flight := aim.DistanceTo(viewerPos) / bulletSpeed
			aim = aim.Add(l.target.Velocity.Mul(flight * l.cfg.PredictionMultiplier))
		}
	}

	factor := math.Min(deltaTime*l.cfg.Smoothing*10, 1.0)
	smoothed := l.lastAim.Lerp(aim, factor)

	final := smoothed
	if l.cfg.Humanization.Enabled {
		final = smoothed.Add(l.nextHumanOffset(deltaTime))
	}
	l.lastAim = final

	return &core.AimResult{
		Target:      l.target,
		AimPosition: final,
		Delta:       l.toAimDelta(final, viewerPos),
		Strength:    l.cfg.LockStrength,
		LockAge:     age,
	}
}

// resolveAimPoint picks the tracked point per the configured aim bone.
// Auto mode prefers the larger, more stable chest point on far or fast
// targets.
func (l *Lock) resolveAimPoint(viewerPos vmath.Vector) vmath.Vector {
	chest := func() vmath.Vector {
		if l.target.Entity != nil && l.target.Entity.Position != nil {
			return l.target.Entity.Position.Add(vmath.Vector{Y: 1})
		}
		return l.target.AimPosition
	}

	switch l.cfg.AimBone {
	case BoneChest:
		return chest()
	case BoneAuto:
		distance := l.target.AimPosition.DistanceTo(viewerPos)
		if distance > autoChestDistance || l.target.Velocity.Length() > autoChestSpeed {
			return chest()
		}
		return l.target.AimPosition
	default:
		return l.target.AimPosition
	}
}

// nextHumanOffset blends the persisted offset toward a freshly drawn
// jitter goal, producing temporally correlated noise instead of
// uncorrelated per-frame jitter.
func (l *Lock) nextHumanOffset(deltaTime float64) vmath.Vector {
	j := l.cfg.Humanization.Jitter
	goal := vmath.Vector{
		X: (l.rng.Float64() - 0.5) * j,
		Y: (l.rng.Float64() - 0.5) * j,
		Z: (l.rng.Float64() - 0.5) * j,
	}
	l.humanOffset = l.humanOffset.Lerp(goal, math.Min(deltaTime*5, 1.0))
	return l.humanOffset
}

// toAimDelta decomposes the aim direction into yaw/pitch deltas scaled by
// lock strength. The spherical decomposition keeps the delta independent
// of target distance.
func (l *Lock) toAimDelta(aim, viewerPos vmath.Vector) core.AimDelta {
	dir := aim.Sub(viewerPos).Normalize()
	return core.AimDelta{
		Yaw:   math.Atan2(dir.X, dir.Z) * l.cfg.LockStrength,
		Pitch: math.Asin(vmath.Clamp(-dir.Y, -1, 1)) * l.cfg.LockStrength,
	}
}

// targetInvalid checks the locked target's validity: the entity reference
// must be present and alive, and the target must have been re-confirmed
// by a scan within the staleness window.
func (l *Lock) targetInvalid(now time.Time) (string, bool) {
	if l.target == nil || l.target.Entity == nil {
		return ReasonInvalid, true
	}
	if !l.target.Entity.Alive {
		return ReasonInvalid, true
	}
	if now.Sub(l.target.LastSeen) >= staleAfter {
		return ReasonStale, true
	}
	return "", false
}

func (l *Lock) release(reason string) {
	if !l.locked {
		return
	}
	target := l.target
	l.locked = false
	l.target = nil
	l.lockStart = time.Time{}
	l.humanOffset = vmath.Vector{}

	l.emit(Event{Kind: EventReleased, Target: target, Reason: reason, At: l.clock.Now()})
}

func (l *Lock) emit(e Event) {
	if l.events != nil {
		l.events.TrySend(e)
	}
}
