// Package world is an in-memory voxel model of containers and units.
//
// It implements the read side the engine consumes (Unit, Neighbors,
// Units, Containers) and reports every structural change to its
// listeners. It is the reference host for tests, scenarios and the CLI.
//
// Thread-safety: World is safe for concurrent use. Listeners are called
// after the world lock is released, in the order changes were made.
package world

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/assemblies/internal/ir"
)

var (
	ErrUnknownContainer   = errors.New("unknown container")
	ErrDuplicateContainer = errors.New("container already exists")
	ErrUnknownUnit        = errors.New("unknown unit")
	ErrDuplicateUnit      = errors.New("unit already exists")
	ErrOccupied           = errors.New("cell occupied")
)

// Listener receives structural notifications. engine.Engine satisfies it.
type Listener interface {
	OnUnitAdded(u ir.Unit) bool
	OnUnitRemoved(last ir.Unit) bool
	OnContainerAdded(c ir.Container) bool
	OnContainerRemoved(c ir.Container) bool
	OnContainerSplit(from, to ir.Container, moved []ir.UnitKey) bool
}

type container struct {
	info  ir.Container
	units map[ir.UnitKey]struct{}
	cells map[ir.Vec3]ir.UnitKey
}

// World holds containers and the units placed on them.
type World struct {
	mu         sync.RWMutex
	containers map[string]*container
	units      map[ir.UnitKey]ir.Unit
	listeners  []Listener

	notifyMu sync.Mutex
}

// New creates an empty world.
func New() *World {
	return &World{
		containers: make(map[string]*container),
		units:      make(map[ir.UnitKey]ir.Unit),
	}
}

// Subscribe adds a listener. It does not see changes made before.
func (w *World) Subscribe(l Listener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, l)
}

// notify runs fn for every listener outside the world lock.
func (w *World) notify(fn func(Listener)) {
	w.mu.RLock()
	ls := slices.Clone(w.listeners)
	w.mu.RUnlock()

	w.notifyMu.Lock()
	defer w.notifyMu.Unlock()
	for _, l := range ls {
		fn(l)
	}
}

// AddContainer creates an empty container.
func (w *World) AddContainer(id string, physical bool) error {
	c := ir.Container{ID: id, Physical: physical}
	w.mu.Lock()
	if _, ok := w.containers[id]; ok {
		w.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateContainer, id)
	}
	w.containers[id] = newContainer(c)
	w.mu.Unlock()

	w.notify(func(l Listener) { l.OnContainerAdded(c) })
	return nil
}

func newContainer(c ir.Container) *container {
	return &container{
		info:  c,
		units: make(map[ir.UnitKey]struct{}),
		cells: make(map[ir.Vec3]ir.UnitKey),
	}
}

// Load adds a container together with its units, as when a saved
// structure streams in. Only the container-added notification fires; the
// units are discovered by scanning it.
func (w *World) Load(c ir.Container, units []ir.Unit) error {
	w.mu.Lock()
	if _, ok := w.containers[c.ID]; ok {
		w.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateContainer, c.ID)
	}
	dst := newContainer(c)
	for _, u := range units {
		if u.Integrity == 0 {
			u.Integrity = ir.DefaultIntegrity
		}
		u.Container = c.ID
		_, exists := w.units[u.Key]
		_, repeated := dst.units[u.Key]
		if exists || repeated {
			w.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrDuplicateUnit, u.Key)
		}
		for _, cell := range cellsOf(u) {
			if other, taken := dst.cells[cell]; taken {
				w.mu.Unlock()
				return fmt.Errorf("%w: %s held by %s", ErrOccupied, cell, other)
			}
		}
		for _, cell := range cellsOf(u) {
			dst.cells[cell] = u.Key
		}
		dst.units[u.Key] = struct{}{}
	}
	for _, u := range units {
		if u.Integrity == 0 {
			u.Integrity = ir.DefaultIntegrity
		}
		u.Container = c.ID
		w.units[u.Key] = u
	}
	w.containers[c.ID] = dst
	w.mu.Unlock()

	w.notify(func(l Listener) { l.OnContainerAdded(c) })
	return nil
}

// RemoveContainer closes a container and drops its units without
// per-unit notifications.
func (w *World) RemoveContainer(id string) error {
	w.mu.Lock()
	c, ok := w.containers[id]
	if !ok {
		w.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownContainer, id)
	}
	for k := range c.units {
		delete(w.units, k)
	}
	delete(w.containers, id)
	w.mu.Unlock()

	w.notify(func(l Listener) { l.OnContainerRemoved(c.info) })
	return nil
}

// Place adds a unit. A zero Integrity is replaced by the default. Every
// cell the unit covers must be free.
func (w *World) Place(u ir.Unit) error {
	if u.Integrity == 0 {
		u.Integrity = ir.DefaultIntegrity
	}

	w.mu.Lock()
	c, ok := w.containers[u.Container]
	if !ok {
		w.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownContainer, u.Container)
	}
	if _, exists := w.units[u.Key]; exists {
		w.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateUnit, u.Key)
	}
	cells := cellsOf(u)
	for _, cell := range cells {
		if other, taken := c.cells[cell]; taken {
			w.mu.Unlock()
			return fmt.Errorf("%w: %s held by %s", ErrOccupied, cell, other)
		}
	}
	for _, cell := range cells {
		c.cells[cell] = u.Key
	}
	c.units[u.Key] = struct{}{}
	w.units[u.Key] = u
	physical := c.info.Physical
	w.mu.Unlock()

	if physical {
		w.notify(func(l Listener) { l.OnUnitAdded(u) })
	}
	return nil
}

// Remove dismantles a unit and returns its last snapshot.
func (w *World) Remove(key ir.UnitKey) (ir.Unit, error) {
	w.mu.Lock()
	u, ok := w.units[key]
	if !ok {
		w.mu.Unlock()
		return ir.Unit{}, fmt.Errorf("%w: %s", ErrUnknownUnit, key)
	}
	physical := w.detach(u)
	w.mu.Unlock()

	if physical {
		w.notify(func(l Listener) { l.OnUnitRemoved(u) })
	}
	return u, nil
}

// Damage lowers a unit's integrity. A unit brought to zero or below is
// removed as destroyed. Returns the updated snapshot.
func (w *World) Damage(key ir.UnitKey, amount int64) (ir.Unit, error) {
	w.mu.Lock()
	u, ok := w.units[key]
	if !ok {
		w.mu.Unlock()
		return ir.Unit{}, fmt.Errorf("%w: %s", ErrUnknownUnit, key)
	}
	u.Integrity -= amount
	if !u.Destroyed() {
		w.units[key] = u
		w.mu.Unlock()
		return u, nil
	}
	physical := w.detach(u)
	w.mu.Unlock()

	if physical {
		w.notify(func(l Listener) { l.OnUnitRemoved(u) })
	}
	return u, nil
}

// Destroy removes a unit as destroyed.
func (w *World) Destroy(key ir.UnitKey) (ir.Unit, error) {
	w.mu.RLock()
	u, ok := w.units[key]
	w.mu.RUnlock()
	if !ok {
		return ir.Unit{}, fmt.Errorf("%w: %s", ErrUnknownUnit, key)
	}
	return w.Damage(key, max(u.Integrity, 1))
}

// detach drops u from the indexes. Caller holds w.mu.
func (w *World) detach(u ir.Unit) bool {
	delete(w.units, u.Key)
	c, ok := w.containers[u.Container]
	if !ok {
		return false
	}
	delete(c.units, u.Key)
	for _, cell := range cellsOf(u) {
		if c.cells[cell] == u.Key {
			delete(c.cells, cell)
		}
	}
	return c.info.Physical
}

// Split moves units from one container into a new one, as when a
// structure breaks in two. Unknown keys or keys on another container are
// an error and nothing moves.
func (w *World) Split(from, to string, keys []ir.UnitKey, physical bool) error {
	w.mu.Lock()
	src, ok := w.containers[from]
	if !ok {
		w.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownContainer, from)
	}
	if _, exists := w.containers[to]; exists {
		w.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateContainer, to)
	}
	for _, k := range keys {
		if _, ok := src.units[k]; !ok {
			w.mu.Unlock()
			return fmt.Errorf("%w: %s not on %s", ErrUnknownUnit, k, from)
		}
	}

	dst := newContainer(ir.Container{ID: to, Physical: physical})
	w.containers[to] = dst
	moved := slices.Clone(keys)
	slices.Sort(moved)
	moved = slices.Compact(moved)
	for _, k := range moved {
		u := w.units[k]
		delete(src.units, k)
		for _, cell := range cellsOf(u) {
			delete(src.cells, cell)
			dst.cells[cell] = k
		}
		u.Container = to
		w.units[k] = u
		dst.units[k] = struct{}{}
	}
	fromInfo, toInfo := src.info, dst.info
	w.mu.Unlock()

	w.notify(func(l Listener) { l.OnContainerSplit(fromInfo, toInfo, moved) })
	return nil
}

// Unit returns the current snapshot of a unit.
func (w *World) Unit(key ir.UnitKey) (ir.Unit, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	u, ok := w.units[key]
	return u, ok
}

// Neighbors returns the units occupying a cell face-adjacent to any cell
// of key, sorted by key.
func (w *World) Neighbors(key ir.UnitKey) []ir.Unit {
	w.mu.RLock()
	defer w.mu.RUnlock()

	u, ok := w.units[key]
	if !ok {
		return nil
	}
	c := w.containers[u.Container]
	if c == nil {
		return nil
	}
	seen := make(map[ir.UnitKey]bool)
	var out []ir.Unit
	for _, cell := range cellsOf(u) {
		for _, d := range faces {
			other, taken := c.cells[cell.Add(d)]
			if !taken || other == key || seen[other] {
				continue
			}
			seen[other] = true
			out = append(out, w.units[other])
		}
	}
	sortUnits(out)
	return out
}

// Units returns every unit on a container, sorted by key.
func (w *World) Units(id string) []ir.Unit {
	w.mu.RLock()
	defer w.mu.RUnlock()

	c, ok := w.containers[id]
	if !ok {
		return nil
	}
	out := make([]ir.Unit, 0, len(c.units))
	for k := range c.units {
		out = append(out, w.units[k])
	}
	sortUnits(out)
	return out
}

// Containers lists every container, sorted by id.
func (w *World) Containers() []ir.Container {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]ir.Container, 0, len(w.containers))
	for _, c := range w.containers {
		out = append(out, c.info)
	}
	slices.SortFunc(out, func(a, b ir.Container) int { return strings.Compare(a.ID, b.ID) })
	return out
}

var faces = []ir.Vec3{
	{X: 1}, {X: -1},
	{Y: 1}, {Y: -1},
	{Z: 1}, {Z: -1},
}

func cellsOf(u ir.Unit) []ir.Vec3 {
	lo, hi := u.Min(), u.Max()
	var cells []ir.Vec3
	for x := lo.X; x <= hi.X; x++ {
		for y := lo.Y; y <= hi.Y; y++ {
			for z := lo.Z; z <= hi.Z; z++ {
				cells = append(cells, ir.Vec3{X: x, Y: y, Z: z})
			}
		}
	}
	return cells
}

func sortUnits(us []ir.Unit) {
	slices.SortFunc(us, func(a, b ir.Unit) int { return strings.Compare(string(a.Key), string(b.Key)) })
}
