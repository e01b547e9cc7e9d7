// Package zone provides engagement-zone gating and coordinate string
// parsing for the entity feed.
//
// Zones are 2D polygons in the host's flat world space (XZ plane viewed
// from above maps to the polygon's XY). Elevation is ignored: a zone
// restricts where on the map targeting is allowed, not how high.
package zone

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/dtiendzai123/newheadlockengine/pkg/vmath"
)

// ErrInvalidCoordinates is returned when a coordinate string cannot be parsed.
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// Zone is an optional engagement area. The zero value (or nil) gates nothing.
type Zone struct {
	polygon geom.Polygon
	active  bool
}

// FromWKT parses a WKT polygon, e.g.
// "POLYGON((0 0, 100 0, 100 100, 0 100, 0 0))".
// An empty string yields an inactive zone that admits every position.
func FromWKT(wkt string) (*Zone, error) {
	if strings.TrimSpace(wkt) == "" {
		return &Zone{}, nil
	}
	g, err := geom.UnmarshalWKT(wkt)
	if err != nil {
		return nil, fmt.Errorf("parsing zone WKT: %w", err)
	}
	poly, ok := g.AsPolygon()
	if !ok {
		return nil, fmt.Errorf("zone WKT must be a polygon, got %s", g.Type())
	}
	return &Zone{polygon: poly, active: true}, nil
}

// Active reports whether the zone actually gates positions.
func (z *Zone) Active() bool {
	return z != nil && z.active
}

// Contains reports whether the world position falls inside the zone.
// Inactive zones contain everything. Containment is evaluated on the
// horizontal plane (X, Z); elevation is ignored.
func (z *Zone) Contains(p vmath.Vector) bool {
	if !z.Active() {
		return true
	}
	point, err := geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: p.X, Y: p.Z},
		Type: geom.DimXY,
	})
	if err != nil {
		// A position that cannot form a point (NaN/Inf components) is
		// never inside an active zone.
		return false
	}
	return geom.Intersects(z.polygon.AsGeometry(), point.AsGeometry())
}

// ParseVector parses an "x,y,z" coordinate string from the host feed.
// A two-component "x,y" string is accepted with zero elevation.
func ParseVector(coords string) (vmath.Vector, error) {
	parts := strings.Split(strings.TrimSpace(coords), ",")
	if len(parts) < 2 {
		return vmath.Vector{}, ErrInvalidCoordinates
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return vmath.Vector{}, ErrInvalidCoordinates
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return vmath.Vector{}, ErrInvalidCoordinates
	}
	var z float64
	if len(parts) > 2 {
		z, err = strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil {
			return vmath.Vector{}, ErrInvalidCoordinates
		}
	}
	return vmath.Vector{X: x, Y: y, Z: z}, nil
}

// FormatVector renders a vector as the host's "x,y,z" wire format.
func FormatVector(v vmath.Vector) string {
	return fmt.Sprintf("%g,%g,%g", v.X, v.Y, v.Z)
}
