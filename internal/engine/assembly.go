package engine

import (
	"log/slog"
	"slices"

	"github.com/roach88/assemblies/internal/ir"
)

// Assembly is a connected component of parts under one definition.
type Assembly struct {
	ID         AssemblyID
	Definition *Definition

	// anchor is the required anchor member, empty for anchor-less
	// definitions.
	anchor ir.UnitKey

	members    []ir.UnitKey // join order
	memberSet  map[ir.UnitKey]struct{}
	properties map[string]ir.IRValue
	closing    bool
	closed     bool
}

func (a *Assembly) has(key ir.UnitKey) bool {
	_, ok := a.memberSet[key]
	return ok
}

func (a *Assembly) drop(key ir.UnitKey) bool {
	if !a.has(key) {
		return false
	}
	delete(a.memberSet, key)
	a.members = slices.DeleteFunc(a.members, func(k ir.UnitKey) bool { return k == key })
	return true
}

// Size returns the member count.
func (a *Assembly) Size() int {
	return len(a.members)
}

// liveAssembly returns the registered assembly for id, or nil.
func (e *Engine) liveAssembly(id AssemblyID) *Assembly {
	if id == 0 {
		return nil
	}
	a := e.assemblies[id]
	if a == nil || a.closed {
		return nil
	}
	return a
}

// newAssembly creates an assembly with a fresh id and first as its first
// member.
func (e *Engine) newAssembly(first *Part) (*Assembly, error) {
	return e.newAssemblyWithID(AssemblyID(e.ids.Next()), first)
}

// newAssemblyWithID registers an assembly under id. An id already in the
// registry is an invariant violation: construction is aborted and the
// existing entry is left alone.
func (e *Engine) newAssemblyWithID(id AssemblyID, first *Part) (*Assembly, error) {
	if _, exists := e.assemblies[id]; exists {
		err := NewDuplicateAssemblyError(id, first.Definition.Name)
		slog.Error("duplicate assembly id",
			"assembly_id", id,
			"definition", first.Definition.Name,
			"unit", first.Key,
		)
		return nil, err
	}
	a := &Assembly{
		ID:         id,
		Definition: first.Definition,
		memberSet:  make(map[ir.UnitKey]struct{}),
		properties: make(map[string]ir.IRValue),
	}
	if first.IsAnchor {
		a.anchor = first.Key
	}
	e.assemblies[id] = a
	e.addMember(a, first)

	slog.Debug("assembly created",
		"assembly_id", id,
		"definition", a.Definition.Name,
		"unit", first.Key,
		"tick", e.tick,
	)
	return a, nil
}

// addMember appends p to a. A part still in another live assembly is
// removed from it first. Part-added fires unless p already announced a.
func (e *Engine) addMember(a *Assembly, p *Part) {
	if a.closed || a.has(p.Key) || p.detached {
		return
	}
	if old := e.liveAssembly(p.assembly); old != nil && old != a && !old.closing {
		e.removeMember(old, p)
		e.relinkAdjacency(p)
	}

	a.members = append(a.members, p.Key)
	a.memberSet[p.Key] = struct{}{}
	p.assembly = a.ID
	if p.lastAssembly != a.ID {
		e.emit(ir.EventPartAdded, a.Definition.Name, a.ID, p.Key, p.IsAnchor)
	}
	p.lastAssembly = a.ID
}

// removeMember takes p out of a and drops the back-edges to it. The
// assembly closes when it empties or loses its anchor. Otherwise, if p
// joined two or more members, a split check runs.
func (e *Engine) removeMember(a *Assembly, p *Part) {
	if !a.drop(p.Key) {
		return
	}
	if p.assembly == a.ID {
		p.assembly = 0
	}

	var formers []ir.UnitKey
	for _, k := range sortedKeySet(p.adjacency) {
		if n := e.lookupPart(a.Definition.Name, k); n != nil {
			delete(n.adjacency, p.Key)
		}
		if a.has(k) {
			formers = append(formers, k)
		}
	}

	if len(a.members) == 0 || (a.anchor != "" && a.anchor == p.Key) {
		e.closeAssembly(a)
		return
	}
	if len(formers) <= 1 {
		return
	}
	e.splitCheck(a, formers)
}

// splitCheck flood-fills from each former neighbor over member adjacency.
// With more than one distinct partition one is kept (the anchor's when
// the assembly has one, else the strictly largest) and every other member
// is evicted and queued, so later checks rebuild the fragments into new
// assemblies.
func (e *Engine) splitCheck(a *Assembly, starts []ir.UnitKey) {
	var partitions []map[ir.UnitKey]struct{}
	assigned := make(map[ir.UnitKey]bool)
	for _, s := range starts {
		if assigned[s] {
			continue
		}
		part := e.floodFill(a, s)
		for k := range part {
			assigned[k] = true
		}
		partitions = append(partitions, part)
	}
	if len(partitions) <= 1 {
		return
	}

	keep := largestPartition(partitions)
	if a.anchor != "" {
		// Only the anchor's side can stay an assembly.
		keep = nil
		for _, part := range partitions {
			if _, ok := part[a.anchor]; ok {
				keep = part
				break
			}
		}
	}

	var evicted int
	for _, k := range slices.Clone(a.members) {
		if _, ok := keep[k]; ok {
			continue
		}
		a.drop(k)
		evicted++
		m := e.lookupPart(a.Definition.Name, k)
		if m == nil {
			continue
		}
		m.assembly = 0
		e.dropAdjacency(m)
		e.emit(ir.EventPartRemoved, a.Definition.Name, a.ID, m.Key, m.IsAnchor)
		m.lastAssembly = 0
		e.queueConnectivity(m)
	}

	slog.Debug("assembly split",
		"assembly_id", a.ID,
		"definition", a.Definition.Name,
		"partitions", len(partitions),
		"evicted", evicted,
		"tick", e.tick,
	)
	if len(a.members) == 0 {
		e.closeAssembly(a)
	}
}

// largestPartition returns the strictly largest partition. A tie for
// largest returns nil: every member is evicted and the assembly closes, so
// no fragment inherits the id arbitrarily.
func largestPartition(partitions []map[ir.UnitKey]struct{}) map[ir.UnitKey]struct{} {
	keep := partitions[0]
	tied := false
	for _, part := range partitions[1:] {
		switch {
		case len(part) > len(keep):
			keep, tied = part, false
		case len(part) == len(keep):
			tied = true
		}
	}
	if tied {
		return nil
	}
	return keep
}

// floodFill returns the members of a reachable from start.
func (e *Engine) floodFill(a *Assembly, start ir.UnitKey) map[ir.UnitKey]struct{} {
	seen := map[ir.UnitKey]struct{}{start: {}}
	work := []ir.UnitKey{start}
	for len(work) > 0 {
		cur := work[len(work)-1]
		work = work[:len(work)-1]
		p := e.lookupPart(a.Definition.Name, cur)
		if p == nil {
			continue
		}
		for k := range p.adjacency {
			if _, ok := seen[k]; ok || !a.has(k) {
				continue
			}
			seen[k] = struct{}{}
			work = append(work, k)
		}
	}
	return seen
}

// closeAssembly tears a down: assembly-closed fires, every member still
// pointing here is released with part-removed, and the id is
// deregistered. Members already moved elsewhere by a merge are skipped.
func (e *Engine) closeAssembly(a *Assembly) {
	if a.closed {
		return
	}
	a.closing = true
	e.emit(ir.EventAssemblyClosed, a.Definition.Name, a.ID, "", false)

	for _, k := range a.members {
		m := e.lookupPart(a.Definition.Name, k)
		if m == nil || m.assembly != a.ID {
			continue
		}
		m.assembly = 0
		e.dropAdjacency(m)
		e.emit(ir.EventPartRemoved, a.Definition.Name, a.ID, m.Key, m.IsAnchor)
		m.lastAssembly = 0
	}
	a.members = nil
	clear(a.memberSet)
	a.closed = true
	delete(e.assemblies, a.ID)

	slog.Debug("assembly closed",
		"assembly_id", a.ID,
		"definition", a.Definition.Name,
		"tick", e.tick,
	)
}

// mergeInto moves every member of src into dst and closes src. src is
// marked closing first so moving members does not trigger split checks on
// it. Properties cross over only when the definition propagates them, and
// never overwrite a key dst already has.
func (e *Engine) mergeInto(src, dst *Assembly) {
	if dst == nil || src == dst || src.closing {
		return
	}
	src.closing = true

	for _, k := range slices.Clone(src.members) {
		if m := e.lookupPart(src.Definition.Name, k); m != nil {
			e.addMember(dst, m)
		}
	}
	if dst.anchor == "" && src.anchor != "" && dst.has(src.anchor) {
		dst.anchor = src.anchor
	}
	if src.Definition.PropagateProperties {
		for k, v := range src.properties {
			if _, ok := dst.properties[k]; !ok {
				dst.properties[k] = v
			}
		}
	}
	e.closeAssembly(src)

	slog.Debug("assemblies merged",
		"assembly_id", dst.ID,
		"absorbed", src.ID,
		"definition", dst.Definition.Name,
		"size", len(dst.members),
		"tick", e.tick,
	)
}

func (a *Assembly) property(key string) (ir.IRValue, bool) {
	v, ok := a.properties[key]
	return v, ok
}

// setProperty stores v under key; nil or IRNull deletes. Values of kinds
// other than string, int, float, bool and bytes are refused.
func (a *Assembly) setProperty(key string, v ir.IRValue) bool {
	if v == nil {
		delete(a.properties, key)
		return true
	}
	if _, isNull := v.(ir.IRNull); isNull {
		delete(a.properties, key)
		return true
	}
	if _, ok := ir.KindOf(v); !ok {
		return false
	}
	a.properties[key] = v
	return true
}

func (a *Assembly) propertyKeys() []string {
	keys := make([]string, 0, len(a.properties))
	for k := range a.properties {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
