package engine

import (
	"slices"
	"sync"

	"github.com/roach88/assemblies/internal/ir"
)

// EventType distinguishes structural event kinds.
type EventType int

const (
	// EventUnitAdded reports a unit placed on a physical container.
	EventUnitAdded EventType = iota + 1
	// EventUnitRemoved reports a unit that left its container.
	EventUnitRemoved
	// EventContainerAdded reports a new physical container.
	EventContainerAdded
	// EventContainerRemoved reports a container that was closed.
	EventContainerRemoved
	// EventContainerSplit reports units moved into a new container.
	EventContainerSplit
)

func (t EventType) String() string {
	switch t {
	case EventUnitAdded:
		return "unit_added"
	case EventUnitRemoved:
		return "unit_removed"
	case EventContainerAdded:
		return "container_added"
	case EventContainerRemoved:
		return "container_removed"
	case EventContainerSplit:
		return "container_split"
	}
	return "unknown"
}

// Event is one structural change reported by the host.
//
// Unit is set for unit events; for removals it is the last snapshot, so
// its integrity tells dismantling from destruction. Container is set for
// container events; for a split it is the source and Target the new
// container, with Moved listing the units that changed hands.
type Event struct {
	Type      EventType
	Unit      ir.Unit
	Container ir.Container
	Target    ir.Container
	Moved     []ir.UnitKey
}

// eventQueue is a thread-safe FIFO queue for structural events.
//
// Host notifications may arrive from any goroutine; the tick drain is the
// only consumer. The signal channel lets Run wake early when work arrives.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.events = append(q.events, e)

	// Non-blocking; the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front event without blocking.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}
	e := q.events[0]
	// Clear the slot so the backing array does not pin Moved slices.
	q.events[0] = Event{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return e, true
}

// Wait returns a channel that signals when events may be available.
// It is closed when the queue closes.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Notify wakes a waiter without enqueuing, e.g. when only connectivity
// work is pending.
func (q *eventQueue) Notify() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close stops further enqueues and wakes waiters.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// partRef addresses a part by definition and unit key.
type partRef struct {
	def string
	key ir.UnitKey
}

// pendingSet is the deduplicated, insertion-ordered set of parts awaiting
// a connectivity check. It holds references, not parts, so it can be
// touched without the graph lock.
type pendingSet struct {
	mu    sync.Mutex
	order []partRef
	set   map[partRef]struct{}
}

func newPendingSet() *pendingSet {
	return &pendingSet{set: make(map[partRef]struct{})}
}

// Add queues ref. Returns false if it was already pending.
func (s *pendingSet) Add(ref partRef) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.set[ref]; ok {
		return false
	}
	s.set[ref] = struct{}{}
	s.order = append(s.order, ref)
	return true
}

// Remove unqueues ref.
func (s *pendingSet) Remove(ref partRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.set[ref]; !ok {
		return
	}
	delete(s.set, ref)
	if i := slices.Index(s.order, ref); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
}

// RemoveDefinition unqueues every ref of def.
func (s *pendingSet) RemoveDefinition(def string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = slices.DeleteFunc(s.order, func(ref partRef) bool {
		if ref.def != def {
			return false
		}
		delete(s.set, ref)
		return true
	})
}

// Contains reports whether ref is pending.
func (s *pendingSet) Contains(ref partRef) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.set[ref]
	return ok
}

// Snapshot returns the pending refs in insertion order and clears the set.
func (s *pendingSet) Snapshot() []partRef {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := slices.Clone(s.order)
	clear(s.set)
	s.order = s.order[:0]
	return out
}

// Len returns the number of pending refs.
func (s *pendingSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.set)
}
