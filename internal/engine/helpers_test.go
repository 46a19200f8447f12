package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/assemblies/internal/ir"
	"github.com/roach88/assemblies/internal/world"
)

var (
	blocks = ir.DefinitionSpec{Name: "blocks", Allowed: []string{"block"}}
	grid   = ir.DefinitionSpec{Name: "grid", Allowed: []string{"core", "block"}, Anchor: "core"}
)

// eventLog collects notifications as short strings.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
}

func (l *eventLog) handlers() Handlers {
	return Handlers{
		PartAdded:      func(ev PartEvent) { l.add("added %d %s", ev.AssemblyID, ev.Unit) },
		PartRemoved:    func(ev PartEvent) { l.add("removed %d %s", ev.AssemblyID, ev.Unit) },
		PartDestroyed:  func(ev PartEvent) { l.add("destroyed %d %s", ev.AssemblyID, ev.Unit) },
		AssemblyClosed: func(id AssemblyID) { l.add("closed %d", id) },
	}
}

// take returns and clears the collected events.
func (l *eventLog) take() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.events
	l.events = nil
	return out
}

func newTestEngine(t *testing.T, specs ...ir.DefinitionSpec) (*Engine, *world.World, *eventLog) {
	t.Helper()
	return newTestEngineWith(t, nil, specs...)
}

func newTestEngineWith(t *testing.T, opts []EngineOption, specs ...ir.DefinitionSpec) (*Engine, *world.World, *eventLog) {
	t.Helper()
	w := world.New()
	require.NoError(t, w.AddContainer("c1", true))

	base := []EngineOption{
		WithSessionGenerator(NewFixedGenerator("test-session")),
		WithSaveEvery(0),
	}
	e := New(w, append(base, opts...)...)
	w.Subscribe(e)

	_, err := e.RegisterDefinition(context.Background(), specs...)
	require.NoError(t, err)

	log := &eventLog{}
	e.Subscribe("", log.handlers())
	return e, w, log
}

// settle ticks until no work is left.
func settle(t *testing.T, e *Engine) {
	t.Helper()
	for i := 0; i < 100; i++ {
		require.NoError(t, e.Tick(context.Background()))
		if events, checks := e.Pending(); events == 0 && checks == 0 {
			return
		}
	}
	t.Fatal("engine did not settle")
}

func place(t *testing.T, w *world.World, key, typ string, x, y, z int) {
	t.Helper()
	require.NoError(t, w.Place(ir.Unit{
		Key:       ir.UnitKey(key),
		Type:      typ,
		Container: "c1",
		Position:  ir.V(x, y, z),
	}))
}

func remove(t *testing.T, w *world.World, key string) {
	t.Helper()
	_, err := w.Remove(ir.UnitKey(key))
	require.NoError(t, err)
}

// partition returns every assembly's members as sorted strings, sorted.
func partition(e *Engine) []string {
	var out []string
	for _, id := range e.Assemblies() {
		keys := make([]string, 0)
		for _, k := range e.Members(id) {
			keys = append(keys, string(k))
		}
		slices.Sort(keys)
		out = append(out, e.AssemblyDefinition(id)+":"+strings.Join(keys, ","))
	}
	slices.Sort(out)
	return out
}

// components computes connected components of def straight from the
// world, for comparison with the engine's incremental result.
func components(w *world.World, def *Definition, container string) []string {
	seen := make(map[ir.UnitKey]bool)
	var out []string
	for _, u := range w.Units(container) {
		if seen[u.Key] || !def.IsTypeAllowed(u.Type) {
			continue
		}
		seen[u.Key] = true
		var keys []string
		work := []ir.Unit{u}
		for len(work) > 0 {
			cur := work[len(work)-1]
			work = work[:len(work)-1]
			keys = append(keys, string(cur.Key))
			for _, n := range w.Neighbors(cur.Key) {
				if seen[n.Key] || !def.IsTypeAllowed(n.Type) || !def.Connects(cur, n) {
					continue
				}
				seen[n.Key] = true
				work = append(work, n)
			}
		}
		slices.Sort(keys)
		out = append(out, def.Name+":"+strings.Join(keys, ","))
	}
	slices.Sort(out)
	return out
}

// memRecords is an in-memory RecordStore.
type memRecords struct {
	mu    sync.Mutex
	saved map[string]ir.ContainerRecord
	saves int
}

func newMemRecords() *memRecords {
	return &memRecords{saved: make(map[string]ir.ContainerRecord)}
}

func (m *memRecords) LoadRecords(_ context.Context, container string) ([]ir.AssemblyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[container].Assemblies, nil
}

func (m *memRecords) SaveRecords(_ context.Context, rec ir.ContainerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[rec.Container] = rec
	m.saves++
	return nil
}

// memRecorder keeps every recorded notification.
type memRecorder struct {
	mu     sync.Mutex
	events []ir.AssemblyEvent
}

func (m *memRecorder) RecordEvent(_ context.Context, ev ir.AssemblyEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// lateRemovals forwards world notifications to an engine but holds unit
// removals back until release, as a host delivering them from another
// goroutine might.
type lateRemovals struct {
	*Engine

	mu   sync.Mutex
	held []ir.Unit
}

func (l *lateRemovals) OnUnitRemoved(last ir.Unit) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = append(l.held, last)
	return true
}

func (l *lateRemovals) release() {
	l.mu.Lock()
	held := l.held
	l.held = nil
	l.mu.Unlock()
	for _, u := range held {
		l.Engine.OnUnitRemoved(u)
	}
}
