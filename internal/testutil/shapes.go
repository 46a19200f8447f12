package testutil

import (
	"fmt"

	"github.com/roach88/assemblies/internal/ir"
)

// UnitKey names the unit at p as "<prefix>@x,y,z".
func UnitKey(prefix string, p ir.Vec3) ir.UnitKey {
	return ir.UnitKey(fmt.Sprintf("%s@%d,%d,%d", prefix, p.X, p.Y, p.Z))
}

// Line builds n unit-sized parts of one type starting at from and stepping
// along dir. Keys come from UnitKey.
func Line(container, typ, prefix string, from ir.Vec3, dir ir.Direction, n int) []ir.Unit {
	units := make([]ir.Unit, 0, max(n, 0))
	step := dir.Vector()
	for i := 0; i < n; i++ {
		p := from.Add(step.Scale(i))
		units = append(units, ir.Unit{
			Key:       UnitKey(prefix, p),
			Type:      typ,
			Container: container,
			Position:  p,
		})
	}
	return units
}

// Box fills every cell of the inclusive box lo..hi with unit-sized parts,
// x fastest. An inverted box is empty.
func Box(container, typ, prefix string, lo, hi ir.Vec3) []ir.Unit {
	var units []ir.Unit
	for z := lo.Z; z <= hi.Z; z++ {
		for y := lo.Y; y <= hi.Y; y++ {
			for x := lo.X; x <= hi.X; x++ {
				p := ir.V(x, y, z)
				units = append(units, ir.Unit{
					Key:       UnitKey(prefix, p),
					Type:      typ,
					Container: container,
					Position:  p,
				})
			}
		}
	}
	return units
}
