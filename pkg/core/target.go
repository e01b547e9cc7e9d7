package core

import (
	"time"

	"github.com/dtiendzai123/newheadlockengine/pkg/vmath"
)

// Target is a scored candidate derived from one entity during a scan.
// A Target is created fresh on every scan and never mutated afterwards;
// a stale Target is discarded and recomputed, not patched. Identity for
// validity checks is the underlying entity ID: scans see per-tick entity
// snapshots, so the same entity arrives behind a different pointer each
// scan.
type Target struct {
	Entity *Entity

	// AimPosition is the resolved head/aim point at scan time.
	AimPosition vmath.Vector

	// Distance from the viewer at scan time.
	Distance float64

	// Velocity snapshot taken at scan time.
	Velocity vmath.Vector

	// Confidence is a bounded [0,1] plausibility score.
	Confidence float64

	// Priority is unbounded and comparative only; it is never folded
	// into the confidence bound.
	Priority float64

	Type     string
	LastSeen time.Time
}

// SameEntity reports whether both targets were derived from the same entity.
func (t *Target) SameEntity(o *Target) bool {
	if t == nil || o == nil {
		return false
	}
	return t.Entity != nil && o.Entity != nil && t.Entity.ID == o.Entity.ID
}

// AimDelta is a two-axis aim adjustment in radians, scaled by lock
// strength. Yaw/pitch decomposition keeps the delta independent of
// target distance.
type AimDelta struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
}

// AimResult is the per-tick output of an active lock.
type AimResult struct {
	Target      *Target
	AimPosition vmath.Vector
	Delta       AimDelta
	Strength    float64
	LockAge     time.Duration
}
