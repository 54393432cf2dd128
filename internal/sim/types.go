package sim

import "math"

// Position is a point on the ground plane. Y is kept for compatibility
// with terrain elevation but the economy only cares about X/Z distance.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Pos is shorthand for a ground-level position.
func Pos(x, z float64) Position { return Position{X: x, Y: 1.0, Z: z} }

// DistanceTo returns the planar distance between two positions.
func (p Position) DistanceTo(o Position) float64 {
	dx := p.X - o.X
	dz := p.Z - o.Z
	return math.Sqrt(dx*dx + dz*dz)
}

// StepToward moves p by at most speed units toward target and returns
// the new position. Elevation is untouched.
func (p Position) StepToward(target Position, speed float64) Position {
	dx := target.X - p.X
	dz := target.Z - p.Z
	dist := math.Sqrt(dx*dx + dz*dz)
	if dist <= speed || dist < 1e-9 {
		return Position{X: target.X, Y: p.Y, Z: target.Z}
	}
	return Position{X: p.X + dx/dist*speed, Y: p.Y, Z: p.Z + dz/dist*speed}
}

// Resource enumerates the tradeable resource types.
type Resource uint8

const (
	Wood Resource = iota
	Stone
	Iron
	Food
)

// NumResources is the number of resource types.
const NumResources = 4

// AllResources lists every resource type in enumeration order.
func AllResources() [NumResources]Resource {
	return [NumResources]Resource{Wood, Stone, Iron, Food}
}

var resourceNames = [NumResources]string{"wood", "stone", "iron", "food"}

// Name returns the lower-case name of the resource.
func (r Resource) Name() string {
	if int(r) < len(resourceNames) {
		return resourceNames[r]
	}
	return "unknown"
}

func (r Resource) MarshalText() ([]byte, error) { return []byte(r.Name()), nil }

func (r *Resource) UnmarshalText(b []byte) error {
	for i, n := range resourceNames {
		if n == string(b) {
			*r = Resource(i)
			return nil
		}
	}
	// Unknown names map to Wood rather than erroring; config validation
	// catches genuine typos before this path is reachable.
	*r = Wood
	return nil
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
