package ir

// UnitKey is the stable identity of one structural unit. It is unique
// within the owning container and never reused by the host.
type UnitKey string

// DefaultIntegrity is the integrity a unit starts with when the host does
// not set one.
const DefaultIntegrity int64 = 100

// Unit is a snapshot of one structural unit as seen by the host.
type Unit struct {
	Key       UnitKey `json:"key"`
	Type      string  `json:"type"`
	Container string  `json:"container"`

	// Position is the unit's minimum grid cell.
	Position Vec3 `json:"position"`

	// Size is the grid-space extent; the zero value means a single cell.
	Size Vec3 `json:"size"`

	Orientation Orientation `json:"orientation"`

	// Integrity at or below zero means the unit was destroyed rather than
	// dismantled.
	Integrity int64 `json:"integrity"`
}

// Min returns the lowest occupied cell.
func (u Unit) Min() Vec3 {
	return u.Position
}

// Max returns the highest occupied cell.
func (u Unit) Max() Vec3 {
	size := u.Size
	if size.X < 1 {
		size.X = 1
	}
	if size.Y < 1 {
		size.Y = 1
	}
	if size.Z < 1 {
		size.Z = 1
	}
	return u.Position.Add(size).Sub(Vec3{1, 1, 1})
}

// Occupies reports whether cell p is inside the unit's bounds.
func (u Unit) Occupies(p Vec3) bool {
	return p.Within(u.Min(), u.Max())
}

// Destroyed reports whether the unit's integrity is exhausted.
func (u Unit) Destroyed() bool {
	return u.Integrity <= 0
}

// Container describes one structure that holds units.
// Non-physical containers are placeholders (projections, previews) and are
// never scanned.
type Container struct {
	ID       string `json:"id"`
	Physical bool   `json:"physical"`
}

// DefinitionSpec is the compiled, declarative form of an assembly family.
type DefinitionSpec struct {
	Name string `json:"name"`

	// Allowed lists the part types eligible to join.
	Allowed []string `json:"allowed"`

	// Anchor, when set, is the part type every assembly must contain.
	Anchor string `json:"anchor,omitempty"`

	// PropagateProperties copies properties of absorbed assemblies into
	// the survivor on merge.
	PropagateProperties bool `json:"propagate_properties,omitempty"`

	// Connections maps a part type to its connection rules. A type without
	// an entry connects to any registered neighbor.
	Connections map[string][]ConnectionRule `json:"connections,omitempty"`
}

// ConnectionRule is one mount point of a part type: a local offset and the
// neighbor types accepted there. An empty Allow never connects; "*" accepts
// any type.
type ConnectionRule struct {
	Offset Vec3     `json:"offset"`
	Allow  []string `json:"allow"`
}

// AnyType is the Allow wildcard.
const AnyType = "*"
