// Package detector scores and ranks candidate entities against a viewer
// pose, producing the Target records the aim lock tracks.
package detector

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/dtiendzai123/newheadlockengine/internal/clock"
	"github.com/dtiendzai123/newheadlockengine/internal/zone"
	"github.com/dtiendzai123/newheadlockengine/pkg/core"
	"github.com/dtiendzai123/newheadlockengine/pkg/vmath"
)

// Confidence signal weights. Each signal is independently bounded and the
// accumulated confidence is clamped to 1.0.
const (
	sizeWeight        = 0.2
	proximityWeight   = 0.3
	motionWeight      = 0.2
	visibilityWeight  = 0.3
	priorityTypeBonus = 0.1

	// Priority scoring, unbounded and used for ordering only.
	priorityTypeScore = 100.0
	lowHealthScore    = 50.0

	// Entities slower than this are treated as stationary.
	minMotionSpeed = 0.1

	defaultSize = 1.0
	headMargin  = 0.1
)

// Config holds detector tuning. All fields have working defaults from
// DefaultConfig.
type Config struct {
	// ScanRadius is the distance cutoff in world units.
	ScanRadius float64
	// ScanFOV is the full cone angle in degrees; the geometric gate uses
	// its half-angle.
	ScanFOV float64
	// DetectionThreshold is the minimum confidence (exclusive) a target
	// must exceed to be kept.
	DetectionThreshold float64
	// MinTargetSize / MaxTargetSize bound the plausible target extent.
	MinTargetSize float64
	MaxTargetSize float64
	// PriorityTargets are type labels that outrank everything else.
	PriorityTargets []string
	// IgnoredTargets are type labels never considered.
	IgnoredTargets []string
	// ScanCooldown rate-limits scans; calls inside the window return the
	// cached result unchanged.
	ScanCooldown time.Duration
	// HeadOffset is the fallback aim offset from the entity position when
	// no pose hints are available.
	HeadOffset vmath.Vector
}

// DefaultConfig returns the stock detector tuning.
func DefaultConfig() Config {
	return Config{
		ScanRadius:         100.0,
		ScanFOV:            90.0,
		DetectionThreshold: 0.7,
		MinTargetSize:      0.5,
		MaxTargetSize:      3.0,
		PriorityTargets:    []string{"enemy", "player"},
		IgnoredTargets:     []string{"teammate", "neutral"},
		ScanCooldown:       100 * time.Millisecond,
		HeadOffset:         vmath.Vector{Y: 1.7},
	}
}

// Validate rejects configurations that cannot produce a working detector.
func (c Config) Validate() error {
	if c.ScanRadius <= 0 {
		return fmt.Errorf("scanRadius must be positive, got %g", c.ScanRadius)
	}
	if c.ScanFOV <= 0 || c.ScanFOV > 360 {
		return fmt.Errorf("scanFOV must be in (0, 360], got %g", c.ScanFOV)
	}
	if c.DetectionThreshold < 0 || c.DetectionThreshold > 1 {
		return fmt.Errorf("detectionThreshold must be in [0, 1], got %g", c.DetectionThreshold)
	}
	if c.MinTargetSize < 0 || c.MaxTargetSize < c.MinTargetSize {
		return fmt.Errorf("target size bounds invalid: min %g, max %g", c.MinTargetSize, c.MaxTargetSize)
	}
	if c.ScanCooldown < 0 {
		return fmt.Errorf("scanCooldown must not be negative, got %v", c.ScanCooldown)
	}
	return nil
}

// OcclusionChecker answers whether a world point is visible from the
// viewer. The default implementation reports everything visible;
// unknown visibility is treated as visible.
type OcclusionChecker interface {
	IsVisible(point, viewerPos vmath.Vector) bool
}

type alwaysVisible struct{}

func (alwaysVisible) IsVisible(_, _ vmath.Vector) bool { return true }

// Option configures optional detector collaborators.
type Option func(*Detector)

// WithClock injects the time source used for cooldown and LastSeen stamps.
func WithClock(c clock.Clock) Option {
	return func(d *Detector) { d.clock = c }
}

// WithOcclusion injects a real visibility check.
func WithOcclusion(o OcclusionChecker) Option {
	return func(d *Detector) { d.occlusion = o }
}

// WithZone restricts scanning to an engagement zone.
func WithZone(z *zone.Zone) Option {
	return func(d *Detector) { d.zone = z }
}

// Detector scans entity lists and produces ranked targets. It owns its
// scan cache exclusively; ScanArea must be invoked serially.
type Detector struct {
	cfg       Config
	clock     clock.Clock
	occlusion OcclusionChecker
	zone      *zone.Zone

	priority map[string]struct{}
	ignored  map[string]struct{}

	lastScan  time.Time
	hasCached bool
	cached    []core.Target
}

// New creates a Detector, validating the configuration up front.
func New(cfg Config, opts ...Option) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("detector config: %w", err)
	}
	d := &Detector{
		cfg:       cfg,
		clock:     clock.System(),
		occlusion: alwaysVisible{},
		priority:  make(map[string]struct{}, len(cfg.PriorityTargets)),
		ignored:   make(map[string]struct{}, len(cfg.IgnoredTargets)),
	}
	for _, t := range cfg.PriorityTargets {
		d.priority[t] = struct{}{}
	}
	for _, t := range cfg.IgnoredTargets {
		d.ignored[t] = struct{}{}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Config returns the detector's configuration.
func (d *Detector) Config() Config { return d.cfg }

// ScanArea filters, scores and ranks the candidate entities for the given
// viewer pose. Results are sorted by priority descending and cached for
// the cooldown window: a call inside the window returns the previous
// slice unchanged, regardless of the entity list passed in.
func (d *Detector) ScanArea(viewer core.ViewerState, entities []*core.Entity) []core.Target {
	now := d.clock.Now()
	if d.hasCached && now.Sub(d.lastScan) < d.cfg.ScanCooldown {
		return d.cached
	}

	halfFOV := d.cfg.ScanFOV * math.Pi / 180 / 2
	viewerDir := viewer.Direction.Normalize()

	targets := make([]core.Target, 0, len(entities))
	for _, e := range entities {
		if e == nil || !e.Alive || e.Position == nil {
			continue
		}
		if e.ID == viewer.EntityID {
			continue
		}
		if _, skip := d.ignored[e.Type]; skip {
			continue
		}

		toEntity := e.Position.Sub(viewer.Position)
		distance := toEntity.Length()
		if distance > d.cfg.ScanRadius {
			continue
		}
		if viewerDir.AngleTo(toEntity.Normalize()) > halfFOV {
			continue
		}
		if !d.zone.Contains(*e.Position) {
			continue
		}

		t := d.AnalyzeEntity(e, viewer.Position, now)
		if t.Confidence > d.cfg.DetectionThreshold {
			targets = append(targets, t)
		}
	}

	// Priority is the sole sort key; confidence only gates inclusion.
	// This lets priority-type targets outrank higher-raw-confidence ones.
	sort.SliceStable(targets, func(i, j int) bool {
		return targets[i].Priority > targets[j].Priority
	})

	d.cached = targets
	d.lastScan = now
	d.hasCached = true
	return targets
}

// AnalyzeEntity scores a single entity from the viewer position.
// Confidence accumulates from independent bounded signals and is clamped
// to 1.0; priority is computed separately and left unbounded.
func (d *Detector) AnalyzeEntity(e *core.Entity, viewerPos vmath.Vector, now time.Time) core.Target {
	head := d.EstimateHeadPosition(e)
	distance := e.Position.DistanceTo(viewerPos)

	var confidence float64

	size := EstimateSize(e)
	if size >= d.cfg.MinTargetSize && size <= d.cfg.MaxTargetSize {
		confidence += sizeWeight
	}

	confidence += math.Max(0, 1-distance/d.cfg.ScanRadius) * proximityWeight

	speed := e.Velocity.Length()
	if speed > minMotionSpeed {
		confidence += math.Min(speed*0.1, motionWeight)
	}

	if d.occlusion.IsVisible(head, viewerPos) {
		confidence += visibilityWeight
	}

	var priority float64
	if _, ok := d.priority[e.Type]; ok {
		priority += priorityTypeScore
		confidence += priorityTypeBonus
	}
	if e.Health != nil && e.Health.Max > 0 {
		frac := vmath.Clamp(e.Health.Current/e.Health.Max, 0, 1)
		priority += lowHealthScore * (1 - frac)
	}

	return core.Target{
		Entity:      e,
		AimPosition: head,
		Distance:    distance,
		Velocity:    e.Velocity,
		Confidence:  vmath.Clamp(confidence, 0, 1),
		Priority:    priority,
		Type:        e.Type,
		LastSeen:    now,
	}
}

// EstimateHeadPosition resolves the aim point for an entity using the
// documented hint priority: explicit head, skeleton "head" joint,
// bounding-box top, then position plus the configured head offset.
func (d *Detector) EstimateHeadPosition(e *core.Entity) vmath.Vector {
	if e.Hints.Head != nil {
		return *e.Hints.Head
	}
	if joint, ok := e.Hints.Skeleton["head"]; ok {
		return joint
	}
	if e.Hints.Bounds != nil {
		return vmath.Vector{
			X: e.Position.X,
			Y: e.Hints.Bounds.Max.Y - headMargin,
			Z: e.Position.Z,
		}
	}
	return e.Position.Add(d.cfg.HeadOffset)
}

// EstimateSize returns the entity's plausible extent: max bounding-box
// axis, explicit size hint, or the default of 1.0.
func EstimateSize(e *core.Entity) float64 {
	if e.Hints.Bounds != nil {
		return e.Hints.Bounds.MaxExtent()
	}
	if e.Hints.SizeHint != nil {
		return *e.Hints.SizeHint
	}
	return defaultSize
}
