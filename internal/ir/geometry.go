package ir

import (
	"encoding/json"
	"fmt"
)

// Vec3 is an integer grid coordinate or extent.
// It encodes as a three-element JSON array.
type Vec3 struct {
	X, Y, Z int
}

// V is a shorthand constructor for Vec3.
func V(x, y, z int) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

// Add returns v+o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Sub returns v-o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Scale returns v*k.
func (v Vec3) Scale(k int) Vec3 {
	return Vec3{v.X * k, v.Y * k, v.Z * k}
}

// Cross returns the cross product v×o.
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

// Within reports whether v lies inside the inclusive box [lo, hi].
func (v Vec3) Within(lo, hi Vec3) bool {
	return v.X >= lo.X && v.X <= hi.X &&
		v.Y >= lo.Y && v.Y <= hi.Y &&
		v.Z >= lo.Z && v.Z <= hi.Z
}

// Less orders vectors by X, then Y, then Z.
func (v Vec3) Less(o Vec3) bool {
	if v.X != o.X {
		return v.X < o.X
	}
	if v.Y != o.Y {
		return v.Y < o.Y
	}
	return v.Z < o.Z
}

func (v Vec3) String() string {
	return fmt.Sprintf("[%d,%d,%d]", v.X, v.Y, v.Z)
}

// MarshalJSON implements json.Marshaler.
func (v Vec3) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]int{v.X, v.Y, v.Z})
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Vec3) UnmarshalJSON(data []byte) error {
	var arr []int
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("vec3: %w", err)
	}
	if len(arr) != 3 {
		return fmt.Errorf("vec3: want 3 components, got %d", len(arr))
	}
	*v = Vec3{arr[0], arr[1], arr[2]}
	return nil
}

// Direction is one of the six axis-aligned grid directions.
// The zero value is unset.
type Direction int8

const (
	Forward  Direction = iota + 1 // +Z
	Backward                      // -Z
	Left                          // -X
	Right                         // +X
	Up                            // +Y
	Down                          // -Y
)

var directionNames = map[Direction]string{
	Forward:  "forward",
	Backward: "backward",
	Left:     "left",
	Right:    "right",
	Up:       "up",
	Down:     "down",
}

// ParseDirection parses a lower-case direction name.
func ParseDirection(s string) (Direction, error) {
	for d, name := range directionNames {
		if name == s {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

func (d Direction) String() string {
	if name, ok := directionNames[d]; ok {
		return name
	}
	return "unset"
}

// Vector returns the unit vector for d. Unset yields the zero vector.
func (d Direction) Vector() Vec3 {
	switch d {
	case Forward:
		return Vec3{0, 0, 1}
	case Backward:
		return Vec3{0, 0, -1}
	case Left:
		return Vec3{-1, 0, 0}
	case Right:
		return Vec3{1, 0, 0}
	case Up:
		return Vec3{0, 1, 0}
	case Down:
		return Vec3{0, -1, 0}
	}
	return Vec3{}
}

// MarshalJSON implements json.Marshaler.
func (d Direction) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Direction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" || s == "unset" {
		*d = 0
		return nil
	}
	parsed, err := ParseDirection(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Orientation is a grid-aligned rotation given by where the local forward
// (+Z) and up (+Y) axes point. The zero Orientation is the identity, and so
// is any orientation whose axes are unset or parallel.
type Orientation struct {
	Forward Direction `json:"forward"`
	Up      Direction `json:"up"`
}

// Identity is the orientation with local axes equal to grid axes.
var Identity = Orientation{Forward: Forward, Up: Up}

func (o Orientation) normalized() Orientation {
	f, u := o.Forward.Vector(), o.Up.Vector()
	if f == (Vec3{}) || u == (Vec3{}) || f.Cross(u) == (Vec3{}) {
		return Identity
	}
	return o
}

// Rotate maps a local offset into grid space.
func (o Orientation) Rotate(local Vec3) Vec3 {
	n := o.normalized()
	fwd, up := n.Forward.Vector(), n.Up.Vector()
	right := up.Cross(fwd)
	return right.Scale(local.X).Add(up.Scale(local.Y)).Add(fwd.Scale(local.Z))
}
