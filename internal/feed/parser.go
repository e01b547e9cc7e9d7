// Package feed ingests host-simulation telemetry and maintains the live
// entity set the targeting pipeline scans.
package feed

import (
	"fmt"
	"log/slog"

	"github.com/dtiendzai123/newheadlockengine/internal/zone"
	"github.com/dtiendzai123/newheadlockengine/pkg/core"
	"github.com/dtiendzai123/newheadlockengine/pkg/streaming"
	"github.com/dtiendzai123/newheadlockengine/pkg/vmath"
)

// Parser converts wire records into domain entities. Malformed records
// produce errors for the caller to log and skip; a bad entity never
// aborts a frame.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a Parser.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// ParseEntity builds a core.Entity from one wire record.
func (p *Parser) ParseEntity(rec streaming.EntityRecord) (*core.Entity, error) {
	if rec.ID == "" {
		return nil, fmt.Errorf("entity record missing id")
	}

	e := &core.Entity{
		ID:       rec.ID,
		Type:     rec.Type,
		Alive:    rec.Alive,
		IsPlayer: rec.IsPlayer,
	}

	if rec.Position != "" {
		pos, err := zone.ParseVector(rec.Position)
		if err != nil {
			return nil, fmt.Errorf("entity %s: parsing position %q: %w", rec.ID, rec.Position, err)
		}
		e.Position = &pos
	}

	if rec.Velocity != "" {
		vel, err := zone.ParseVector(rec.Velocity)
		if err != nil {
			return nil, fmt.Errorf("entity %s: parsing velocity %q: %w", rec.ID, rec.Velocity, err)
		}
		e.Velocity = vel
	}

	if rec.Health != nil && rec.MaxHealth != nil && *rec.MaxHealth > 0 {
		e.Health = &core.HealthState{Current: *rec.Health, Max: *rec.MaxHealth}
	}

	hints, err := p.parseHints(rec)
	if err != nil {
		return nil, err
	}
	e.Hints = hints

	return e, nil
}

// parseHints resolves the optional pose geometry on a record.
func (p *Parser) parseHints(rec streaming.EntityRecord) (core.PoseHints, error) {
	var hints core.PoseHints

	if rec.Head != "" {
		head, err := zone.ParseVector(rec.Head)
		if err != nil {
			return hints, fmt.Errorf("entity %s: parsing head %q: %w", rec.ID, rec.Head, err)
		}
		hints.Head = &head
	}

	if len(rec.Skeleton) > 0 {
		hints.Skeleton = make(map[string]vmath.Vector, len(rec.Skeleton))
		for joint, coords := range rec.Skeleton {
			v, err := zone.ParseVector(coords)
			if err != nil {
				return hints, fmt.Errorf("entity %s: parsing joint %q: %w", rec.ID, joint, err)
			}
			hints.Skeleton[joint] = v
		}
	}

	if rec.BoundsMin != "" && rec.BoundsMax != "" {
		min, err := zone.ParseVector(rec.BoundsMin)
		if err != nil {
			return hints, fmt.Errorf("entity %s: parsing boundsMin %q: %w", rec.ID, rec.BoundsMin, err)
		}
		max, err := zone.ParseVector(rec.BoundsMax)
		if err != nil {
			return hints, fmt.Errorf("entity %s: parsing boundsMax %q: %w", rec.ID, rec.BoundsMax, err)
		}
		hints.Bounds = &core.BoundingBox{Min: min, Max: max}
	}

	hints.SizeHint = rec.SizeHint
	return hints, nil
}

// ParseViewer builds a ViewerState from the wire message.
func (p *Parser) ParseViewer(msg streaming.ViewerStateMessage) (core.ViewerState, error) {
	pos, err := zone.ParseVector(msg.Position)
	if err != nil {
		return core.ViewerState{}, fmt.Errorf("parsing viewer position %q: %w", msg.Position, err)
	}
	dir, err := zone.ParseVector(msg.Direction)
	if err != nil {
		return core.ViewerState{}, fmt.Errorf("parsing viewer direction %q: %w", msg.Direction, err)
	}
	return core.ViewerState{
		EntityID:  msg.EntityID,
		Position:  pos,
		Direction: dir,
	}, nil
}
