package detector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtiendzai123/newheadlockengine/internal/clock"
	"github.com/dtiendzai123/newheadlockengine/internal/zone"
	"github.com/dtiendzai123/newheadlockengine/pkg/core"
	"github.com/dtiendzai123/newheadlockengine/pkg/vmath"
)

type blockedSight struct{}

func (blockedSight) IsVisible(_, _ vmath.Vector) bool { return false }

func ptr(v vmath.Vector) *vmath.Vector { return &v }

func testEntity(id, typ string, pos vmath.Vector) *core.Entity {
	return &core.Entity{
		ID:       id,
		Type:     typ,
		Alive:    true,
		Position: ptr(pos),
	}
}

func testViewer() core.ViewerState {
	return core.ViewerState{
		EntityID:  "viewer",
		Position:  vmath.Vector{},
		Direction: vmath.Vector{Z: 1},
	}
}

func newTestDetector(t *testing.T, cfg Config, opts ...Option) *Detector {
	t.Helper()
	d, err := New(cfg, opts...)
	require.NoError(t, err)
	return d
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero radius", func(c *Config) { c.ScanRadius = 0 }, true},
		{"negative radius", func(c *Config) { c.ScanRadius = -5 }, true},
		{"zero fov", func(c *Config) { c.ScanFOV = 0 }, true},
		{"fov above 360", func(c *Config) { c.ScanFOV = 400 }, true},
		{"threshold above one", func(c *Config) { c.DetectionThreshold = 1.5 }, true},
		{"negative threshold", func(c *Config) { c.DetectionThreshold = -0.1 }, true},
		{"inverted size bounds", func(c *Config) { c.MinTargetSize = 3; c.MaxTargetSize = 1 }, true},
		{"negative cooldown", func(c *Config) { c.ScanCooldown = -time.Second }, true},
		{"zero cooldown ok", func(c *Config) { c.ScanCooldown = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestScanArea_Gating(t *testing.T) {
	deadEntity := testEntity("dead", "enemy", vmath.New(0, 0, 10))
	deadEntity.Alive = false

	noPosition := testEntity("nopos", "enemy", vmath.Vector{})
	noPosition.Position = nil

	tests := []struct {
		name   string
		entity *core.Entity
	}{
		{"nil entity", nil},
		{"dead", deadEntity},
		{"missing position", noPosition},
		{"viewer itself", testEntity("viewer", "enemy", vmath.New(0, 0, 10))},
		{"ignored type", testEntity("t1", "teammate", vmath.New(0, 0, 10))},
		{"beyond radius", testEntity("far", "enemy", vmath.New(0, 0, 500))},
		{"outside fov", testEntity("behind", "enemy", vmath.New(0, 0, -10))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDetector(t, DefaultConfig())
			targets := d.ScanArea(testViewer(), []*core.Entity{tt.entity})
			assert.Empty(t, targets)
		})
	}
}

func TestScanArea_DetectsEnemyAhead(t *testing.T) {
	d := newTestDetector(t, DefaultConfig())
	e := testEntity("e1", "enemy", vmath.New(0, 0, 10))

	targets := d.ScanArea(testViewer(), []*core.Entity{e})

	require.Len(t, targets, 1)
	got := targets[0]
	assert.Same(t, e, got.Entity)
	assert.Equal(t, "enemy", got.Type)
	assert.InDelta(t, 10.0, got.Distance, 1e-9)
	// size 0.2 + proximity 0.27 + visibility 0.3 + priority bonus 0.1
	assert.InDelta(t, 0.87, got.Confidence, 1e-9)
	assert.InDelta(t, 100.0, got.Priority, 1e-9)
}

func TestScanArea_ThresholdIsExclusive(t *testing.T) {
	// A plain visible stationary entity at the radius edge scores exactly
	// size + visibility = 0.5.
	cfg := DefaultConfig()
	cfg.DetectionThreshold = 0.5
	d := newTestDetector(t, cfg)
	e := testEntity("e1", "crate", vmath.New(0, 0, cfg.ScanRadius))

	assert.Empty(t, d.ScanArea(testViewer(), []*core.Entity{e}))

	cfg.DetectionThreshold = 0.49
	d = newTestDetector(t, cfg)
	assert.Len(t, d.ScanArea(testViewer(), []*core.Entity{e}), 1)
}

func TestScanArea_OcclusionDropsVisibilityWeight(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DetectionThreshold = 0
	d := newTestDetector(t, cfg, WithOcclusion(blockedSight{}))
	e := testEntity("e1", "enemy", vmath.New(0, 0, 10))

	targets := d.ScanArea(testViewer(), []*core.Entity{e})

	require.Len(t, targets, 1)
	// same as the visible case minus the 0.3 visibility weight
	assert.InDelta(t, 0.57, targets[0].Confidence, 1e-9)
}

func TestScanArea_ZoneGate(t *testing.T) {
	z, err := zone.FromWKT("POLYGON((0 0, 5 0, 5 5, 0 5, 0 0))")
	require.NoError(t, err)
	d := newTestDetector(t, DefaultConfig(), WithZone(z))

	inside := testEntity("in", "enemy", vmath.New(2, 0, 2))
	outside := testEntity("out", "enemy", vmath.New(2, 0, 50))

	targets := d.ScanArea(testViewer(), []*core.Entity{inside, outside})

	require.Len(t, targets, 1)
	assert.Equal(t, "in", targets[0].Entity.ID)
}

func TestScanArea_CooldownReturnsCachedSlice(t *testing.T) {
	fake := clock.NewFake(time.Unix(1000, 0))
	d := newTestDetector(t, DefaultConfig(), WithClock(fake))

	first := d.ScanArea(testViewer(), []*core.Entity{
		testEntity("e1", "enemy", vmath.New(0, 0, 10)),
	})
	require.Len(t, first, 1)

	// inside the cooldown the previous slice comes back untouched,
	// regardless of the entity list passed in
	fake.Advance(50 * time.Millisecond)
	second := d.ScanArea(testViewer(), []*core.Entity{
		testEntity("e2", "enemy", vmath.New(0, 0, 20)),
	})
	require.Len(t, second, 1)
	assert.Same(t, &first[0], &second[0])
	assert.Equal(t, "e1", second[0].Entity.ID)

	// past the cooldown a fresh scan runs
	fake.Advance(60 * time.Millisecond)
	third := d.ScanArea(testViewer(), []*core.Entity{
		testEntity("e2", "enemy", vmath.New(0, 0, 20)),
	})
	require.Len(t, third, 1)
	assert.Equal(t, "e2", third[0].Entity.ID)
}

func TestScanArea_SortsByPriorityDescending(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DetectionThreshold = 0
	d := newTestDetector(t, cfg)

	plain := testEntity("plain", "crate", vmath.New(0, 0, 10))
	enemy := testEntity("enemy", "enemy", vmath.New(0, 0, 20))
	wounded := testEntity("wounded", "enemy", vmath.New(0, 0, 30))
	wounded.Health = &core.HealthState{Current: 20, Max: 100}

	targets := d.ScanArea(testViewer(), []*core.Entity{plain, enemy, wounded})

	require.Len(t, targets, 3)
	assert.Equal(t, "wounded", targets[0].Entity.ID) // 100 + 50*0.8 = 140
	assert.Equal(t, "enemy", targets[1].Entity.ID)   // 100
	assert.Equal(t, "plain", targets[2].Entity.ID)   // 0
}

func TestAnalyzeEntity_MotionContribution(t *testing.T) {
	cfg := DefaultConfig()
	d := newTestDetector(t, cfg)
	now := time.Now()

	e := testEntity("e1", "crate", vmath.New(0, 0, cfg.ScanRadius))
	base := d.AnalyzeEntity(e, vmath.Vector{}, now).Confidence

	e.Velocity = vmath.Vector{X: 1}
	slow := d.AnalyzeEntity(e, vmath.Vector{}, now).Confidence
	assert.InDelta(t, base+0.1, slow, 1e-9)

	// motion contribution caps at its weight
	e.Velocity = vmath.Vector{X: 50}
	fast := d.AnalyzeEntity(e, vmath.Vector{}, now).Confidence
	assert.InDelta(t, base+0.2, fast, 1e-9)
}

func TestAnalyzeEntity_ConfidenceClamped(t *testing.T) {
	d := newTestDetector(t, DefaultConfig())
	e := testEntity("e1", "enemy", vmath.New(0, 0, 1))
	e.Velocity = vmath.Vector{X: 10}

	got := d.AnalyzeEntity(e, vmath.Vector{}, time.Now())
	assert.LessOrEqual(t, got.Confidence, 1.0)
}

func TestAnalyzeEntity_PriorityUnbounded(t *testing.T) {
	d := newTestDetector(t, DefaultConfig())
	e := testEntity("e1", "enemy", vmath.New(0, 0, 10))
	e.Health = &core.HealthState{Current: 0, Max: 100}

	got := d.AnalyzeEntity(e, vmath.Vector{}, time.Now())
	assert.InDelta(t, 150.0, got.Priority, 1e-9)
}

func TestEstimateHeadPosition_HintPriority(t *testing.T) {
	d := newTestDetector(t, DefaultConfig())
	pos := vmath.New(10, 0, 10)

	explicit := testEntity("e", "enemy", pos)
	explicit.Hints.Head = ptr(vmath.New(10, 1.8, 10))
	explicit.Hints.Skeleton = map[string]vmath.Vector{"head": vmath.New(9, 9, 9)}

	skeleton := testEntity("e", "enemy", pos)
	skeleton.Hints.Skeleton = map[string]vmath.Vector{"head": vmath.New(10, 1.75, 10)}
	skeleton.Hints.Bounds = &core.BoundingBox{Min: pos, Max: vmath.New(10.5, 2.0, 10.5)}

	bounds := testEntity("e", "enemy", pos)
	bounds.Hints.Bounds = &core.BoundingBox{Min: pos, Max: vmath.New(10.5, 2.0, 10.5)}

	bare := testEntity("e", "enemy", pos)

	tests := []struct {
		name   string
		entity *core.Entity
		want   vmath.Vector
	}{
		{"explicit head wins", explicit, vmath.New(10, 1.8, 10)},
		{"skeleton joint next", skeleton, vmath.New(10, 1.75, 10)},
		{"bbox top minus margin", bounds, vmath.New(10, 1.9, 10)},
		{"fallback head offset", bare, vmath.New(10, 1.7, 10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.EstimateHeadPosition(tt.entity))
		})
	}
}

func TestEstimateSize(t *testing.T) {
	withBounds := testEntity("e", "enemy", vmath.Vector{})
	withBounds.Hints.Bounds = &core.BoundingBox{
		Min: vmath.Vector{},
		Max: vmath.New(0.5, 1.8, 0.5),
	}

	hint := 2.5
	withHint := testEntity("e", "enemy", vmath.Vector{})
	withHint.Hints.SizeHint = &hint

	assert.Equal(t, 1.8, EstimateSize(withBounds))
	assert.Equal(t, 2.5, EstimateSize(withHint))
	assert.Equal(t, 1.0, EstimateSize(testEntity("e", "enemy", vmath.Vector{})))
}
