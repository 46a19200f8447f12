package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/assemblies/internal/ir"
)

// PartInfo is a read-only snapshot of one part.
type PartInfo struct {
	Definition string       `json:"definition"`
	Unit       ir.UnitKey   `json:"unit"`
	Type       string       `json:"type"`
	Container  string       `json:"container"`
	Assembly   AssemblyID   `json:"assembly"`
	IsAnchor   bool         `json:"anchor"`
	Adjacent   []ir.UnitKey `json:"adjacent"`
}

// Parts returns every registered part, ordered by definition then key.
func (e *Engine) Parts() []PartInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []PartInfo
	for _, name := range e.defOrder {
		for _, p := range e.parts[name] {
			out = append(out, PartInfo{
				Definition: name,
				Unit:       p.Key,
				Type:       p.Type,
				Container:  p.Container,
				Assembly:   p.assembly,
				IsAnchor:   p.IsAnchor,
				Adjacent:   p.Adjacent(),
			})
		}
	}
	slices.SortFunc(out, func(a, b PartInfo) int {
		if c := strings.Compare(a.Definition, b.Definition); c != 0 {
			return c
		}
		return strings.Compare(string(a.Unit), string(b.Unit))
	})
	return out
}

// Assemblies returns the ids of every live assembly, ascending.
func (e *Engine) Assemblies() []AssemblyID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sortedAssemblyIDs()
}

// Members returns an assembly's members in join order, or nil.
func (e *Engine) Members(id AssemblyID) []ir.UnitKey {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if a := e.liveAssembly(id); a != nil {
		return slices.Clone(a.members)
	}
	return nil
}

// Anchor returns an assembly's anchor unit, or "" when it has none.
func (e *Engine) Anchor(id AssemblyID) ir.UnitKey {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if a := e.liveAssembly(id); a != nil {
		return a.anchor
	}
	return ""
}

// AssemblyDefinition returns the definition name of an assembly, or "".
func (e *Engine) AssemblyDefinition(id AssemblyID) string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if a := e.liveAssembly(id); a != nil {
		return a.Definition.Name
	}
	return ""
}

// Container returns the container holding an assembly, or "".
func (e *Engine) Container(id AssemblyID) string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if a := e.liveAssembly(id); a != nil {
		return e.assemblyContainer(a)
	}
	return ""
}

// assemblyContainer is the container of the first member.
func (e *Engine) assemblyContainer(a *Assembly) string {
	for _, k := range a.members {
		if p := e.lookupPart(a.Definition.Name, k); p != nil {
			return p.Container
		}
	}
	return ""
}

// ConnectedNeighbors returns the parts connected to unit under def,
// sorted. With useCache the stored adjacency is returned; otherwise it is
// recomputed from the world without touching the cache.
func (e *Engine) ConnectedNeighbors(unit ir.UnitKey, def string, useCache bool) []ir.UnitKey {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p := e.lookupPart(def, unit)
	if p == nil {
		return nil
	}
	if useCache {
		return p.Adjacent()
	}
	neighbors := e.validNeighbors(p)
	out := make([]ir.UnitKey, len(neighbors))
	for i, n := range neighbors {
		out[i] = n.Key
	}
	return out
}

// ContainingAssembly returns the assembly holding unit under def, or 0.
func (e *Engine) ContainingAssembly(unit ir.UnitKey, def string) AssemblyID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if p := e.lookupPart(def, unit); p != nil {
		return p.assembly
	}
	return 0
}

// RecreateAssembly closes an assembly and queues every former member, so
// the next tick rebuilds it from scratch. Returns false for unknown ids.
func (e *Engine) RecreateAssembly(id AssemblyID) bool {
	e.mu.Lock()
	a := e.liveAssembly(id)
	if a == nil {
		e.mu.Unlock()
		return false
	}
	members := slices.Clone(a.members)
	def := a.Definition.Name
	e.closeAssembly(a)
	for _, k := range members {
		if p := e.lookupPart(def, k); p != nil {
			e.queueConnectivity(p)
		}
	}
	e.mu.Unlock()

	e.flush(context.Background())
	return true
}

// RecreateConnections takes one part out of its assembly, clears its
// adjacency and queues it. Returns false for unknown parts.
func (e *Engine) RecreateConnections(unit ir.UnitKey, def string) bool {
	e.mu.Lock()
	p := e.lookupPart(def, unit)
	if p == nil {
		e.mu.Unlock()
		return false
	}
	if a := e.liveAssembly(p.assembly); a != nil {
		e.removeMember(a, p)
		e.emit(ir.EventPartRemoved, def, a.ID, p.Key, p.IsAnchor)
		p.lastAssembly = 0
	}
	e.dropAdjacency(p)
	e.queueConnectivity(p)
	e.mu.Unlock()

	e.flush(context.Background())
	return true
}

// Property returns an assembly property.
func (e *Engine) Property(id AssemblyID, key string) (ir.IRValue, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if a := e.liveAssembly(id); a != nil {
		return a.property(key)
	}
	return nil, false
}

// SetProperty stores a property; a nil or IRNull value deletes it.
// Returns false for unknown ids or unsupported value kinds.
func (e *Engine) SetProperty(id AssemblyID, key string, v ir.IRValue) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if a := e.liveAssembly(id); a != nil {
		return a.setProperty(key, v)
	}
	return false
}

// PropertyKeys returns an assembly's property keys, sorted.
func (e *Engine) PropertyKeys(id AssemblyID) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if a := e.liveAssembly(id); a != nil {
		return a.propertyKeys()
	}
	return nil
}

// CheckInvariants verifies the graph's structural invariants and returns
// the first violation found. Intended for tests and the inspect command.
func (e *Engine) CheckInvariants() error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for id, a := range e.assemblies {
		if a.ID != id {
			return fmt.Errorf("assembly %d registered under id %d", a.ID, id)
		}
		if a.closed {
			return fmt.Errorf("assembly %d closed but still registered", id)
		}
		if len(a.members) == 0 {
			return fmt.Errorf("assembly %d has no members", id)
		}
		if len(a.members) != len(a.memberSet) {
			return fmt.Errorf("assembly %d member list and set disagree", id)
		}
		if a.Definition.HasAnchor() && !a.has(a.anchor) {
			return fmt.Errorf("assembly %d of %s has no anchor member", id, a.Definition.Name)
		}
		for _, k := range a.members {
			p := e.lookupPart(a.Definition.Name, k)
			if p == nil {
				return fmt.Errorf("assembly %d member %s is not registered", id, k)
			}
			if p.assembly != id {
				return fmt.Errorf("assembly %d member %s points at %d", id, k, p.assembly)
			}
		}
	}

	for name, parts := range e.parts {
		for key, p := range parts {
			if p.detached {
				return fmt.Errorf("part %s/%s detached but registered", name, key)
			}
			if p.assembly != 0 {
				a := e.liveAssembly(p.assembly)
				if a == nil || !a.has(key) {
					return fmt.Errorf("part %s/%s points at assembly %d which does not list it", name, key, p.assembly)
				}
			}
			for k := range p.adjacency {
				n := parts[k]
				if n == nil {
					return fmt.Errorf("part %s/%s adjacent to unregistered %s", name, key, k)
				}
				if _, ok := n.adjacency[key]; !ok {
					return fmt.Errorf("adjacency %s/%s -> %s is not symmetric", name, key, k)
				}
			}
		}
	}
	return nil
}
