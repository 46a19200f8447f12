package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/assemblies/internal/ir"
)

// ContainerRecords captures the assemblies on a container in their
// persisted form, members identified by position.
func (e *Engine) ContainerRecords(container string) []ir.AssemblyRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.containerRecords(container)
}

func (e *Engine) containerRecords(container string) []ir.AssemblyRecord {
	var out []ir.AssemblyRecord
	for _, id := range e.sortedAssemblyIDs() {
		a := e.liveAssembly(id)
		if a == nil || e.assemblyContainer(a) != container {
			continue
		}
		rec := e.recordOf(a, nil)
		if len(rec.Positions) == 0 {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// recordOf captures a. With keys == nil members are recorded by position;
// otherwise by key, restricted to keys.
func (e *Engine) recordOf(a *Assembly, keys map[ir.UnitKey]bool) ir.AssemblyRecord {
	rec := ir.AssemblyRecord{
		Definition:     a.Definition.Name,
		DefinitionHash: a.Definition.Hash(),
	}
	for _, k := range a.members {
		if keys != nil {
			if keys[k] {
				rec.Members = append(rec.Members, k)
			}
			continue
		}
		if u, ok := e.world.Unit(k); ok {
			rec.Positions = append(rec.Positions, u.Position)
		}
	}
	rec.SetProperties(a.properties)
	return rec
}

// RestoreAssembly rebuilds an assembly on container from a record. Parts
// are created as needed; units already in a live assembly of the same
// definition are left where they are. Restored members are queued for a
// connectivity check rather than verified here.
func (e *Engine) RestoreAssembly(container string, rec ir.AssemblyRecord) (AssemblyID, error) {
	e.mu.Lock()
	id, err := e.restoreLocked(container, rec)
	e.mu.Unlock()

	e.flush(context.Background())
	return id, err
}

func (e *Engine) restoreLocked(container string, rec ir.AssemblyRecord) (AssemblyID, error) {
	def := e.defs[rec.Definition]
	if def == nil {
		return 0, NewInvalidRecordError(container, rec.Definition, ErrUnknownDefinition)
	}
	if rec.DefinitionHash != "" && rec.DefinitionHash != def.Hash() {
		slog.Warn("record written under a different definition",
			"definition", def.Name,
			"container", container,
			"record_hash", rec.DefinitionHash,
			"definition_hash", def.Hash(),
		)
	}

	var parts []*Part
	for _, u := range e.resolveUnits(container, rec) {
		if !def.IsTypeAllowed(u.Type) {
			continue
		}
		p := e.addPart(def, u)
		if p.assembly != 0 {
			continue
		}
		parts = append(parts, p)
	}
	if len(parts) == 0 {
		return 0, NewInvalidRecordError(container, def.Name, ErrNoMembers)
	}
	if def.HasAnchor() {
		i := slices.IndexFunc(parts, func(p *Part) bool { return p.IsAnchor })
		if i < 0 {
			return 0, NewInvalidRecordError(container, def.Name, fmt.Errorf("%w: anchor %s missing", ErrNoMembers, def.Anchor))
		}
		parts[0], parts[i] = parts[i], parts[0]
	}

	a, err := e.newAssembly(parts[0])
	if err != nil {
		return 0, err
	}
	for _, p := range parts[1:] {
		e.addMember(a, p)
	}
	for _, p := range parts {
		e.refreshAdjacency(p)
		e.queueConnectivity(p)
	}
	for k, v := range rec.Properties() {
		a.setProperty(k, v)
	}

	slog.Debug("assembly restored",
		"assembly_id", a.ID,
		"definition", def.Name,
		"container", container,
		"members", len(a.members),
	)
	return a.ID, nil
}

// resolveUnits maps a record's member keys or positions to the units
// currently on container. Unmatched entries are dropped.
func (e *Engine) resolveUnits(container string, rec ir.AssemblyRecord) []ir.Unit {
	var out []ir.Unit
	for _, k := range rec.Members {
		if u, ok := e.world.Unit(k); ok && u.Container == container {
			out = append(out, u)
		}
	}
	if len(rec.Positions) == 0 {
		return out
	}
	byPos := make(map[ir.Vec3]ir.Unit)
	for _, u := range e.world.Units(container) {
		byPos[u.Position] = u
	}
	for _, pos := range rec.Positions {
		if u, ok := byPos[pos]; ok {
			out = append(out, u)
		}
	}
	return out
}

// containerAdded loads a physical container's records, then queues every
// unit on it. Caller holds e.mu.
func (e *Engine) containerAdded(ctx context.Context, c ir.Container) error {
	if !c.Physical {
		return nil
	}
	var loadErr error
	if e.records != nil {
		recs, err := e.records.LoadRecords(ctx, c.ID)
		if err != nil {
			loadErr = fmt.Errorf("load records for %s: %w", c.ID, err)
		}
		for _, rec := range recs {
			if _, err := e.restoreLocked(c.ID, rec); err != nil {
				slog.Warn("skipping record",
					"container", c.ID,
					"definition", rec.Definition,
					"error", err,
				)
			}
		}
	}
	e.queueContainer(c.ID)
	return loadErr
}

// containerSplit hands the moved units over to a new container. Every
// assembly with a moved member is captured by key, the moved parts are
// removed from the source, and the captured records are restored on the
// target before its units are queued. Caller holds e.mu.
func (e *Engine) containerSplit(from string, to ir.Container, moved []ir.UnitKey) {
	movedSet := make(map[ir.UnitKey]bool, len(moved))
	for _, k := range moved {
		movedSet[k] = true
	}

	var carried []ir.AssemblyRecord
	for _, id := range e.sortedAssemblyIDs() {
		a := e.liveAssembly(id)
		if a == nil || !slices.ContainsFunc(a.members, func(k ir.UnitKey) bool { return movedSet[k] }) {
			continue
		}
		carried = append(carried, e.recordOf(a, movedSet))
	}

	for _, name := range slices.Clone(e.defOrder) {
		for _, k := range moved {
			p := e.lookupPart(name, k)
			if p == nil || p.Container != from {
				continue
			}
			last, ok := e.world.Unit(k)
			if !ok {
				last = ir.Unit{Key: k, Integrity: ir.DefaultIntegrity}
			}
			e.removePart(p, last, true)
		}
	}

	if to.Physical {
		for _, rec := range carried {
			if _, err := e.restoreLocked(to.ID, rec); err != nil {
				slog.Warn("assembly not carried over split",
					"container", from,
					"target", to.ID,
					"definition", rec.Definition,
					"error", err,
				)
			}
		}
		e.queueContainer(to.ID)
	}

	slog.Debug("container split",
		"container", from,
		"target", to.ID,
		"moved", len(moved),
		"carried", len(carried),
		"tick", e.tick,
	)
}

// Checkpoint saves the records of every physical container through the
// record store. All containers are attempted; errors are joined.
func (e *Engine) Checkpoint(ctx context.Context) error {
	if e.records == nil {
		return nil
	}

	var containers []string
	for _, c := range e.world.Containers() {
		if c.Physical {
			containers = append(containers, c.ID)
		}
	}
	slices.Sort(containers)

	e.mu.RLock()
	batch := make([]ir.ContainerRecord, len(containers))
	for i, id := range containers {
		batch[i] = ir.ContainerRecord{
			Version:    ir.RecordVersion,
			Container:  id,
			Session:    e.session,
			Tick:       e.tick,
			Assemblies: e.containerRecords(id),
		}
	}
	e.mu.RUnlock()

	var errs []error
	for _, rec := range batch {
		if err := e.records.SaveRecords(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("save %s: %w", rec.Container, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	slog.Debug("checkpoint saved", "containers", len(batch))
	return nil
}
