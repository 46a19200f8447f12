package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/assemblies/internal/ir"
)

func blockAt(key string, typ string, x, y, z int) ir.Unit {
	return ir.Unit{Key: ir.UnitKey(key), Type: typ, Container: "c1", Position: ir.V(x, y, z), Integrity: ir.DefaultIntegrity}
}

func TestConnects_DefaultAllow(t *testing.T) {
	d := NewDefinition(ir.DefinitionSpec{Name: "any", Allowed: []string{"block"}})

	a := blockAt("a", "block", 0, 0, 0)
	b := blockAt("b", "block", 1, 0, 0)
	assert.True(t, d.Connects(a, b))
	assert.True(t, d.Connects(b, a))
	assert.False(t, d.Connects(a, a), "a unit never connects to itself")
}

func TestConnects_RequiresBothSides(t *testing.T) {
	d := NewDefinition(ir.DefinitionSpec{
		Name:    "pipes",
		Allowed: []string{"pipe", "tank"},
		Connections: map[string][]ir.ConnectionRule{
			// Pipes connect forward (+Z) only.
			"pipe": {{Offset: ir.V(0, 0, 1), Allow: []string{"pipe", "tank"}}},
		},
	})

	pipe := blockAt("p", "pipe", 0, 0, 0)
	ahead := blockAt("t", "tank", 0, 0, 1)
	beside := blockAt("s", "tank", 1, 0, 0)
	assert.True(t, d.Connects(pipe, ahead), "tank has no rules and accepts anything")
	assert.False(t, d.Connects(pipe, beside), "offset does not reach the side")

	// Two pipes facing each other: only the one behind reaches forward.
	back := blockAt("p2", "pipe", 0, 0, -1)
	assert.False(t, d.Connects(pipe, back), "p2 reaches p but p does not reach p2")
}

func TestConnects_Rotation(t *testing.T) {
	d := NewDefinition(ir.DefinitionSpec{
		Name:    "rot",
		Allowed: []string{"pipe"},
		Connections: map[string][]ir.ConnectionRule{
			"pipe": {
				{Offset: ir.V(0, 0, 1), Allow: []string{"pipe"}},
				{Offset: ir.V(0, 0, -1), Allow: []string{"pipe"}},
			},
		},
	})

	east := ir.Orientation{Forward: ir.Right, Up: ir.Up}
	a := blockAt("a", "pipe", 0, 0, 0)
	a.Orientation = east
	b := blockAt("b", "pipe", 1, 0, 0)
	b.Orientation = east
	assert.True(t, d.Connects(a, b))

	c := blockAt("c", "pipe", 0, 0, 1)
	c.Orientation = east
	assert.False(t, d.Connects(a, c), "rotated pipes no longer connect along Z")
}

func TestConnects_EmptyAllowAndWildcard(t *testing.T) {
	d := NewDefinition(ir.DefinitionSpec{
		Name:    "w",
		Allowed: []string{"a", "b"},
		Connections: map[string][]ir.ConnectionRule{
			"a": {{Offset: ir.V(1, 0, 0), Allow: nil}},
			"b": {{Offset: ir.V(-1, 0, 0), Allow: []string{ir.AnyType}}},
		},
	})

	a := blockAt("a", "a", 0, 0, 0)
	b := blockAt("b", "b", 1, 0, 0)
	assert.False(t, d.Connects(a, b), "an empty allow list never connects")

	b2 := blockAt("b2", "b", 0, 0, 0)
	b3 := blockAt("b3", "b", -1, 0, 0)
	assert.True(t, d.allows(b2, b3), "wildcard admits any type")
}

func TestConnects_MultiCellTarget(t *testing.T) {
	d := NewDefinition(ir.DefinitionSpec{
		Name:    "big",
		Allowed: []string{"node", "hull"},
		Connections: map[string][]ir.ConnectionRule{
			"node": {{Offset: ir.V(0, 1, 0), Allow: []string{"hull"}}},
		},
	})

	node := blockAt("n", "node", 2, 0, 0)
	hull := blockAt("h", "hull", 0, 1, 0)
	hull.Size = ir.V(3, 1, 1)
	assert.True(t, d.Connects(node, hull), "offset lands inside the hull's bounds")
}

func TestDefinition_Accessors(t *testing.T) {
	spec := ir.DefinitionSpec{Name: "grid", Allowed: []string{"pole", "wire"}, Anchor: "pole"}
	d := NewDefinition(spec)

	assert.True(t, d.HasAnchor())
	assert.True(t, d.IsTypeAllowed("wire"))
	assert.False(t, d.IsTypeAllowed("rock"))
	assert.Equal(t, ir.DefinitionHash(spec), d.Hash())

	spec.Allowed[0] = "changed"
	assert.Equal(t, "pole", d.Spec().Allowed[0], "spec is copied")
}
