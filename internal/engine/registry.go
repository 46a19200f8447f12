package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/assemblies/internal/compiler"
	"github.com/roach88/assemblies/internal/ir"
)

// RegisterDefinition adds definitions and scans existing physical
// containers for matching units.
//
// Each spec is validated on its own. A spec with validation errors, or
// whose name is already registered (or repeated in the call), is rejected
// and reported in the returned *RegistrationError; the rest are
// registered. Accepted names are returned in argument order.
//
// The scan reads the world in parallel, one goroutine per container up to
// GOMAXPROCS. Parts are then constructed serially under the engine lock
// and queued for connectivity.
func (e *Engine) RegisterDefinition(ctx context.Context, specs ...ir.DefinitionSpec) ([]string, error) {
	var (
		accepted []*Definition
		rejected []Rejection
	)

	e.mu.Lock()
	for i := range specs {
		spec := &specs[i]
		if _, exists := e.defs[spec.Name]; exists {
			rejected = append(rejected, Rejection{Name: spec.Name, Reason: "already registered"})
			continue
		}
		if errs := compiler.Validate(spec, nil); compiler.HasErrors(errs) {
			rejected = append(rejected, Rejection{Name: spec.Name, Reason: firstError(errs)})
			continue
		}
		def := NewDefinition(*spec)
		e.defs[def.Name] = def
		e.defOrder = append(e.defOrder, def.Name)
		e.parts[def.Name] = make(map[ir.UnitKey]*Part)
		accepted = append(accepted, def)
	}
	e.mu.Unlock()

	for _, r := range rejected {
		slog.Warn("definition rejected", "definition", r.Name, "reason", r.Reason)
	}

	names := make([]string, len(accepted))
	for i, d := range accepted {
		names[i] = d.Name
	}

	if len(accepted) > 0 {
		found, err := e.scanContainers(ctx, accepted)
		if err != nil {
			return names, fmt.Errorf("scan containers: %w", err)
		}
		e.mu.Lock()
		for _, u := range found {
			// The unit may have gone while the scan ran.
			cur, ok := e.world.Unit(u.Key)
			if !ok || cur.Container != u.Container {
				continue
			}
			for _, def := range accepted {
				if e.defs[def.Name] == def && def.IsTypeAllowed(cur.Type) {
					e.addPart(def, cur)
				}
			}
		}
		e.mu.Unlock()

		slog.Info("definitions registered",
			"definitions", names,
			"units", len(found),
		)
	}

	if len(rejected) > 0 {
		return names, &RegistrationError{Rejected: rejected}
	}
	return names, nil
}

// scanContainers collects the units of every physical container that at
// least one of defs admits, in container order. Read-only.
func (e *Engine) scanContainers(ctx context.Context, defs []*Definition) ([]ir.Unit, error) {
	var physical []string
	for _, c := range e.world.Containers() {
		if c.Physical {
			physical = append(physical, c.ID)
		}
	}
	slices.Sort(physical)

	results := make([][]ir.Unit, len(physical))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, id := range physical {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for _, u := range e.world.Units(id) {
				for _, def := range defs {
					if def.IsTypeAllowed(u.Type) {
						results[i] = append(results[i], u)
						break
					}
				}
			}
			slices.SortFunc(results[i], func(a, b ir.Unit) int {
				return strings.Compare(string(a.Key), string(b.Key))
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return slices.Concat(results...), nil
}

// UnregisterDefinition removes a definition. Its assemblies close with
// the usual notifications; its parts and pending checks are dropped.
// Returns false if name is not registered.
func (e *Engine) UnregisterDefinition(name string) bool {
	e.mu.Lock()
	def, ok := e.defs[name]
	if !ok {
		e.mu.Unlock()
		return false
	}
	for _, id := range e.sortedAssemblyIDs() {
		if a := e.liveAssembly(id); a != nil && a.Definition == def {
			e.closeAssembly(a)
		}
	}
	for _, p := range e.parts[name] {
		p.detached = true
		p.assembly = 0
		clear(p.adjacency)
	}
	delete(e.parts, name)
	delete(e.defs, name)
	e.defOrder = slices.DeleteFunc(e.defOrder, func(n string) bool { return n == name })
	e.pending.RemoveDefinition(name)
	e.mu.Unlock()

	e.flush(context.Background())
	slog.Info("definition unregistered", "definition", name)
	return true
}

// Definitions returns registered definition names in registration order.
func (e *Engine) Definitions() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.defOrder)
}

// Definition returns the registered definition for name, or nil.
func (e *Engine) Definition(name string) *Definition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.defs[name]
}

func (e *Engine) sortedAssemblyIDs() []AssemblyID {
	ids := make([]AssemblyID, 0, len(e.assemblies))
	for id := range e.assemblies {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func firstError(errs []compiler.ValidationError) string {
	for _, err := range errs {
		if !err.IsWarning() {
			return err.Error()
		}
	}
	return ""
}
