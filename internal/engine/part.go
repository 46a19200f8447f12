package engine

import (
	"log/slog"
	"slices"

	"github.com/roach88/assemblies/internal/ir"
)

// AssemblyID identifies an assembly for the life of the engine.
// Ids start at 1; 0 means "no assembly".
type AssemblyID int64

// Part is one unit viewed under one definition.
type Part struct {
	Key        ir.UnitKey
	Type       string
	Container  string
	Definition *Definition
	IsAnchor   bool

	adjacency map[ir.UnitKey]struct{}
	assembly  AssemblyID

	// lastAssembly suppresses a second part-added notification when a
	// part is folded back into the id it already announced.
	lastAssembly AssemblyID

	// detached is set once the part is deregistered.
	detached bool
}

func (p *Part) ref() partRef {
	return partRef{def: p.Definition.Name, key: p.Key}
}

// Assembly returns the owning assembly id, or 0.
func (p *Part) Assembly() AssemblyID {
	return p.assembly
}

// Adjacent returns the cached adjacency, sorted.
func (p *Part) Adjacent() []ir.UnitKey {
	return sortedKeySet(p.adjacency)
}

func sortedKeySet(s map[ir.UnitKey]struct{}) []ir.UnitKey {
	keys := make([]ir.UnitKey, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// addPart registers a part for u under def and queues it. Idempotent: an
// existing part for the same (definition, key) is returned unchanged.
// Caller holds e.mu.
func (e *Engine) addPart(def *Definition, u ir.Unit) *Part {
	parts := e.parts[def.Name]
	if p, ok := parts[u.Key]; ok {
		return p
	}
	p := &Part{
		Key:        u.Key,
		Type:       u.Type,
		Container:  u.Container,
		Definition: def,
		IsAnchor:   def.HasAnchor() && u.Type == def.Anchor,
		adjacency:  make(map[ir.UnitKey]struct{}),
	}
	parts[u.Key] = p
	e.queueConnectivity(p)
	return p
}

// lookupPart returns the registered part, or nil.
func (e *Engine) lookupPart(def string, key ir.UnitKey) *Part {
	return e.parts[def][key]
}

// validNeighbors returns the registered parts connected to p, sorted by
// key. Read-only.
func (e *Engine) validNeighbors(p *Part) []*Part {
	u, ok := e.world.Unit(p.Key)
	if !ok {
		return nil
	}
	var out []*Part
	for _, n := range e.world.Neighbors(p.Key) {
		np := e.lookupPart(p.Definition.Name, n.Key)
		if np == nil || np.detached {
			continue
		}
		if !p.Definition.Connects(u, n) {
			continue
		}
		out = append(out, np)
	}
	slices.SortFunc(out, func(a, b *Part) int {
		switch {
		case a.Key < b.Key:
			return -1
		case a.Key > b.Key:
			return 1
		}
		return 0
	})
	return slices.CompactFunc(out, func(a, b *Part) bool { return a.Key == b.Key })
}

// refreshAdjacency recomputes p's adjacency and mirrors the change on both
// the new and the former neighbors.
//
// The world can run ahead of the event queue: a unit may already be gone
// while its removal is still queued. Such parts keep their edges until
// the removal is processed, so removeMember still sees every neighbor it
// joined. A part whose own unit is gone is left untouched.
func (e *Engine) refreshAdjacency(p *Part) []*Part {
	if _, ok := e.world.Unit(p.Key); !ok {
		return nil
	}
	neighbors := e.validNeighbors(p)
	next := make(map[ir.UnitKey]struct{}, len(neighbors))
	for _, n := range neighbors {
		next[n.Key] = struct{}{}
		n.adjacency[p.Key] = struct{}{}
	}
	for k := range p.adjacency {
		if _, still := next[k]; still {
			continue
		}
		n := e.lookupPart(p.Definition.Name, k)
		if n == nil {
			continue
		}
		if e.removalPending(n) {
			next[k] = struct{}{}
			continue
		}
		delete(n.adjacency, p.Key)
	}
	p.adjacency = next
	return neighbors
}

// removalPending reports whether p is still registered but its unit has
// already left the world.
func (e *Engine) removalPending(p *Part) bool {
	if p.detached {
		return false
	}
	_, ok := e.world.Unit(p.Key)
	return !ok
}

// dropAdjacency clears p's adjacency and the back-edges pointing at it.
func (e *Engine) dropAdjacency(p *Part) {
	for k := range p.adjacency {
		if n := e.lookupPart(p.Definition.Name, k); n != nil {
			delete(n.adjacency, p.Key)
		}
	}
	clear(p.adjacency)
}

// relinkAdjacency restores back-edges from p's neighbors.
func (e *Engine) relinkAdjacency(p *Part) {
	for k := range p.adjacency {
		if n := e.lookupPart(p.Definition.Name, k); n != nil && !n.detached {
			n.adjacency[p.Key] = struct{}{}
		}
	}
}

type checkStep struct {
	part      *Part
	cascading bool
}

// checkConnectivity re-evaluates a part's membership.
//
// A part with no assembled neighbor starts its own assembly when allowed
// to (no anchor required, or it is the anchor). Otherwise every distinct
// neighboring assembly, and the part's own, is merged into the largest
// and the part joins it. Anchors and cascading checks then queue each
// still unassembled neighbor on the work list; visited guards against
// checking a part twice in one call.
func (e *Engine) checkConnectivity(start *Part, cascading bool) {
	work := []checkStep{{part: start, cascading: cascading}}
	visited := map[ir.UnitKey]bool{start.Key: true}

	for len(work) > 0 {
		step := work[0]
		work[0] = checkStep{}
		work = work[1:]

		p := step.part
		if p.detached || e.removalPending(p) {
			continue
		}

		neighbors := e.refreshAdjacency(p)
		mayStart := !p.Definition.HasAnchor() || p.IsAnchor

		var candidates []*Assembly
		seen := make(map[AssemblyID]bool)
		for _, n := range neighbors {
			if a := e.liveAssembly(n.assembly); a != nil && !seen[a.ID] {
				seen[a.ID] = true
				candidates = append(candidates, a)
			}
		}

		if len(candidates) == 0 {
			if p.assembly == 0 {
				if !mayStart {
					continue
				}
				if _, err := e.newAssembly(p); err != nil {
					slog.Error("assembly construction aborted",
						"definition", p.Definition.Name,
						"unit", p.Key,
						"error", err,
					)
					continue
				}
			}
		} else {
			if own := e.liveAssembly(p.assembly); own != nil && !seen[own.ID] {
				candidates = append(candidates, own)
			}
			survivor := e.mergeCandidates(candidates)
			e.addMember(survivor, p)
		}

		if !(p.IsAnchor || step.cascading) || p.assembly == 0 {
			continue
		}
		for _, n := range neighbors {
			if n.assembly != 0 || visited[n.Key] {
				continue
			}
			visited[n.Key] = true
			work = append(work, checkStep{part: n, cascading: true})
		}
	}
}

// mergeCandidates folds every candidate into the largest one, ties going
// to the lowest id, and returns the survivor. Candidates are folded in
// (size desc, id asc) order.
func (e *Engine) mergeCandidates(candidates []*Assembly) *Assembly {
	slices.SortFunc(candidates, func(a, b *Assembly) int {
		if len(a.members) != len(b.members) {
			return len(b.members) - len(a.members)
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	survivor := candidates[0]
	for _, other := range candidates[1:] {
		e.mergeInto(other, survivor)
	}
	return survivor
}

// removePart detaches and deregisters a part. When notify is set,
// part-removed is emitted, followed by part-destroyed when the unit's
// integrity is exhausted. A part outside any assembly reports id 0.
func (e *Engine) removePart(p *Part, last ir.Unit, notify bool) {
	id := p.assembly
	if a := e.liveAssembly(id); a != nil {
		e.removeMember(a, p)
	}
	e.dropAdjacency(p)
	p.detached = true
	p.assembly = 0
	e.pending.Remove(p.ref())
	delete(e.parts[p.Definition.Name], p.Key)

	if notify {
		e.emit(ir.EventPartRemoved, p.Definition.Name, id, p.Key, p.IsAnchor)
		if last.Destroyed() {
			e.emit(ir.EventPartDestroyed, p.Definition.Name, id, p.Key, p.IsAnchor)
		}
	}
}

// queueConnectivity marks p for a check on the next tick.
func (e *Engine) queueConnectivity(p *Part) {
	if e.pending.Add(p.ref()) {
		e.queue.Notify()
	}
}
