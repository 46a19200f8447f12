package engine

import (
	"context"

	"github.com/roach88/assemblies/internal/ir"
)

// World is the host's view of structural units.
//
// Implementations must be safe for concurrent reads: registration scans
// call Units from several goroutines at once.
type World interface {
	// Unit returns the current snapshot of a unit.
	Unit(key ir.UnitKey) (ir.Unit, bool)

	// Neighbors returns the units spatially adjacent to key, in any order.
	Neighbors(key ir.UnitKey) []ir.Unit

	// Units returns every unit on a container.
	Units(container string) []ir.Unit

	// Containers lists all containers, physical or not.
	Containers() []ir.Container
}

// RecordStore loads and saves per-container assembly records.
// Implemented by persist.Serializer.
type RecordStore interface {
	LoadRecords(ctx context.Context, container string) ([]ir.AssemblyRecord, error)
	SaveRecords(ctx context.Context, rec ir.ContainerRecord) error
}

// Recorder receives every dispatched notification.
// Implemented by store.Store (event log).
type Recorder interface {
	RecordEvent(ctx context.Context, ev ir.AssemblyEvent) error
}
