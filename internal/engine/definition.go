package engine

import (
	"slices"

	"github.com/roach88/assemblies/internal/ir"
)

// Definition is a registered rule set: which part types may join an
// assembly family and at which offsets they connect.
//
// Definitions are immutable after construction and safe to share.
type Definition struct {
	Name                string
	Anchor              string
	PropagateProperties bool

	spec    ir.DefinitionSpec
	hash    string
	allowed map[string]bool
	rules   map[string][]ir.ConnectionRule
}

// NewDefinition builds a Definition from a compiled DefinitionSpec.
// The input is copied; later changes to it have no effect.
func NewDefinition(spec ir.DefinitionSpec) *Definition {
	d := &Definition{
		Name:                spec.Name,
		Anchor:              spec.Anchor,
		PropagateProperties: spec.PropagateProperties,
		hash:                ir.DefinitionHash(spec),
		allowed:             make(map[string]bool, len(spec.Allowed)),
		rules:               make(map[string][]ir.ConnectionRule, len(spec.Connections)),
	}
	for _, t := range spec.Allowed {
		d.allowed[t] = true
	}
	for typ, rules := range spec.Connections {
		copied := make([]ir.ConnectionRule, len(rules))
		for i, r := range rules {
			copied[i] = ir.ConnectionRule{Offset: r.Offset, Allow: slices.Clone(r.Allow)}
		}
		d.rules[typ] = copied
	}
	d.spec = ir.DefinitionSpec{
		Name:                spec.Name,
		Allowed:             slices.Clone(spec.Allowed),
		Anchor:              spec.Anchor,
		PropagateProperties: spec.PropagateProperties,
		Connections:         d.rules,
	}
	return d
}

// Spec returns the DefinitionSpec the definition was built from.
func (d *Definition) Spec() ir.DefinitionSpec {
	return d.spec
}

// Hash returns the definition fingerprint.
func (d *Definition) Hash() string {
	return d.hash
}

// HasAnchor reports whether assemblies of this family require an anchor.
func (d *Definition) HasAnchor() bool {
	return d.Anchor != ""
}

// IsTypeAllowed reports whether parts of typ may join this family.
func (d *Definition) IsTypeAllowed(typ string) bool {
	return d.allowed[typ]
}

// Connects reports whether a and b are connected under this definition.
// Both sides must accept the other; the relation is symmetric and pure.
func (d *Definition) Connects(a, b ir.Unit) bool {
	if a.Key == b.Key {
		return false
	}
	return d.allows(a, b) && d.allows(b, a)
}

// allows reports whether a accepts b. A type with no rule list accepts
// any neighbor. Otherwise some rule must name b's type (or the wildcard)
// and its offset, rotated into a's orientation, must land inside b.
func (d *Definition) allows(a, b ir.Unit) bool {
	rules, ok := d.rules[a.Type]
	if !ok {
		return true
	}
	for _, r := range rules {
		if len(r.Allow) == 0 {
			continue
		}
		if !slices.Contains(r.Allow, b.Type) && !slices.Contains(r.Allow, ir.AnyType) {
			continue
		}
		point := a.Position.Add(a.Orientation.Rotate(r.Offset))
		if b.Occupies(point) {
			return true
		}
	}
	return false
}
