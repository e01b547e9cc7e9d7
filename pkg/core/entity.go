// pkg/core/entity.go
package core

import "github.com/dtiendzai123/newheadlockengine/pkg/vmath"

// Entity is a host-simulation object as seen by the targeting pipeline.
// The host owns its lifecycle entirely; the pipeline never mutates one.
type Entity struct {
	ID       string
	Type     string
	Alive    bool
	IsPlayer bool

	// Position is required for targeting. A nil position marks a
	// malformed record; the detector skips it rather than aborting.
	Position *vmath.Vector

	// Velocity is the zero vector when the host reports none.
	Velocity vmath.Vector

	// Health is optional; absent health data disables the low-health
	// priority bonus.
	Health *HealthState

	Hints PoseHints
}

// Clone returns a deep copy of the entity. Pointer fields and the
// skeleton map are duplicated so the copy shares no memory with the
// original.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	out := *e
	if e.Position != nil {
		p := *e.Position
		out.Position = &p
	}
	if e.Health != nil {
		h := *e.Health
		out.Health = &h
	}
	out.Hints = e.Hints.clone()
	return &out
}

func (h PoseHints) clone() PoseHints {
	out := h
	if h.Head != nil {
		v := *h.Head
		out.Head = &v
	}
	if h.Skeleton != nil {
		out.Skeleton = make(map[string]vmath.Vector, len(h.Skeleton))
		for k, v := range h.Skeleton {
			out.Skeleton[k] = v
		}
	}
	if h.Bounds != nil {
		b := *h.Bounds
		out.Bounds = &b
	}
	if h.SizeHint != nil {
		s := *h.SizeHint
		out.SizeHint = &s
	}
	return out
}

// HealthState carries current and maximum health as reported by the host.
type HealthState struct {
	Current float64
	Max     float64
}

// PoseHints holds the optional geometry the host may attach to an entity.
// Fields are resolved in a fixed priority order by the detector: explicit
// head, then skeleton "head" joint, then bounding box, then a configured
// offset from the entity position.
type PoseHints struct {
	Head     *vmath.Vector
	Skeleton map[string]vmath.Vector
	Bounds   *BoundingBox
	SizeHint *float64
}

// BoundingBox is an axis-aligned box in world space.
type BoundingBox struct {
	Min vmath.Vector
	Max vmath.Vector
}

// MaxExtent returns the largest axis extent of the box.
func (b BoundingBox) MaxExtent() float64 {
	d := b.Max.Sub(b.Min)
	extent := d.X
	if d.Y > extent {
		extent = d.Y
	}
	if d.Z > extent {
		extent = d.Z
	}
	return extent
}

// ViewerState is the observer pose the controller ticks against.
// EntityID identifies the viewer among the scanned entities so the
// detector can exclude it from its own results.
type ViewerState struct {
	EntityID  string
	Position  vmath.Vector
	Direction vmath.Vector
}
