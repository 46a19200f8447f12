package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/assemblies/internal/ir"
)

// DefaultTickInterval is one tick per 60 Hz frame.
const DefaultTickInterval = time.Second / 60

// DefaultSaveEvery is the number of ticks between record checkpoints.
const DefaultSaveEvery = 127

// Engine owns every part and assembly for one session.
//
// Thread-safety model:
//   - On* notifications and QueueConnectivity: safe from any goroutine,
//     they only enqueue
//   - Tick and Run: one goroutine at a time
//   - queries: safe from any goroutine, including inside handlers
//   - control and registration calls: safe from any goroutine, serialized
//     with Tick by the engine lock
type Engine struct {
	world    World
	records  RecordStore
	recorder Recorder
	session  string

	tickInterval time.Duration
	saveEvery    int64

	queue   *eventQueue
	pending *pendingSet

	// mu guards the graph below.
	mu         sync.RWMutex
	defs       map[string]*Definition
	defOrder   []string
	parts      map[string]map[ir.UnitKey]*Part
	assemblies map[AssemblyID]*Assembly
	ids        *Clock
	seq        *Clock
	tick       int64
	outbox     []ir.AssemblyEvent

	subMu   sync.Mutex
	subs    map[string][]subscription
	nextSub int

	dispatchMu sync.Mutex

	done     chan struct{}
	stopOnce sync.Once
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithTickInterval sets the Run loop period. Zero makes Run tick only
// when work is queued.
func WithTickInterval(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.tickInterval = d
	}
}

// WithRecordStore enables loading records when a container appears and
// periodic checkpoints.
func WithRecordStore(rs RecordStore) EngineOption {
	return func(e *Engine) {
		e.records = rs
	}
}

// WithSaveEvery sets the checkpoint period in ticks. Zero disables
// periodic checkpoints.
func WithSaveEvery(ticks int64) EngineOption {
	return func(e *Engine) {
		e.saveEvery = ticks
	}
}

// WithRecorder sends every dispatched notification to r.
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithSessionGenerator overrides the UUIDv7 session token source.
func WithSessionGenerator(g SessionGenerator) EngineOption {
	return func(e *Engine) {
		e.session = g.Generate()
	}
}

// New creates an Engine over world. No definitions are registered.
func New(world World, opts ...EngineOption) *Engine {
	e := &Engine{
		world:        world,
		tickInterval: DefaultTickInterval,
		saveEvery:    DefaultSaveEvery,
		queue:        newEventQueue(),
		pending:      newPendingSet(),
		defs:         make(map[string]*Definition),
		parts:        make(map[string]map[ir.UnitKey]*Part),
		assemblies:   make(map[AssemblyID]*Assembly),
		ids:          NewClock(),
		seq:          NewClock(),
		subs:         make(map[string][]subscription),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.session == "" {
		e.session = UUIDv7Generator{}.Generate()
	}
	return e
}

// Session returns the session token for this engine.
func (e *Engine) Session() string {
	return e.session
}

// CurrentTick returns the number of ticks started so far.
func (e *Engine) CurrentTick() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tick
}

// OnUnitAdded reports a unit placed on a physical container.
// Returns false once the engine is stopped.
func (e *Engine) OnUnitAdded(u ir.Unit) bool {
	return e.queue.Enqueue(Event{Type: EventUnitAdded, Unit: u})
}

// OnUnitRemoved reports a unit that left. last is its final snapshot.
func (e *Engine) OnUnitRemoved(last ir.Unit) bool {
	return e.queue.Enqueue(Event{Type: EventUnitRemoved, Unit: last})
}

// OnContainerAdded reports a new container. Placeholders are ignored.
func (e *Engine) OnContainerAdded(c ir.Container) bool {
	return e.queue.Enqueue(Event{Type: EventContainerAdded, Container: c})
}

// OnContainerRemoved reports a closed container.
func (e *Engine) OnContainerRemoved(c ir.Container) bool {
	return e.queue.Enqueue(Event{Type: EventContainerRemoved, Container: c})
}

// OnContainerSplit reports that moved units now live on to. It stands in
// for to's container-added notification.
func (e *Engine) OnContainerSplit(from, to ir.Container, moved []ir.UnitKey) bool {
	return e.queue.Enqueue(Event{
		Type:      EventContainerSplit,
		Container: from,
		Target:    to,
		Moved:     append([]ir.UnitKey(nil), moved...),
	})
}

// QueueConnectivity schedules a check of the part for key under def.
// Returns false if it was already pending. Unknown parts are skipped at
// drain time.
func (e *Engine) QueueConnectivity(def string, key ir.UnitKey) bool {
	if !e.pending.Add(partRef{def: def, key: key}) {
		return false
	}
	e.queue.Notify()
	return true
}

// Tick runs one batch: it drains the structural events queued so far, then
// checks every part pending at that point, then checkpoints when due.
//
// ERROR HANDLING: a failing or panicking event is logged with its context
// and skipped ("log and continue"). Only checkpoint errors are returned.
func (e *Engine) Tick(ctx context.Context) error {
	e.mu.Lock()
	e.tick++
	tick := e.tick
	e.mu.Unlock()

	n := e.queue.Len()
	for i := 0; i < n; i++ {
		ev, ok := e.queue.TryDequeue()
		if !ok {
			break
		}
		if err := e.processEvent(ctx, ev); err != nil {
			logEventError(ev, tick, err)
		}
		e.flush(ctx)
	}

	for _, ref := range e.pending.Snapshot() {
		if err := e.checkRef(ref); err != nil {
			slog.Error("connectivity check failed",
				"definition", ref.def,
				"unit", ref.key,
				"tick", tick,
				"error", err,
			)
		}
		e.flush(ctx)
	}

	if e.records != nil && e.saveEvery > 0 && tick%e.saveEvery == 0 {
		if err := e.Checkpoint(ctx); err != nil {
			return fmt.Errorf("checkpoint at tick %d: %w", tick, err)
		}
	}
	return nil
}

// Pending reports queued structural events and connectivity checks.
func (e *Engine) Pending() (events, checks int) {
	return e.queue.Len(), e.pending.Len()
}

// Run ticks every TickInterval until ctx is cancelled or Stop is called.
// With a zero interval it ticks whenever work is queued.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting", "session", e.session, "tick_interval", e.tickInterval)

	var tickC <-chan time.Time
	if e.tickInterval > 0 {
		ticker := time.NewTicker(e.tickInterval)
		defer ticker.Stop()
		tickC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.done:
			slog.Info("engine stopping: stopped")
			return nil

		case <-tickC:
			if err := e.Tick(ctx); err != nil {
				slog.Error("tick failed", "error", err)
			}

		case <-e.queue.Wait():
			if e.tickInterval > 0 {
				continue
			}
			if err := e.Tick(ctx); err != nil {
				slog.Error("tick failed", "error", err)
			}
		}
	}
}

// Stop makes Run return and refuses further notifications.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.queue.Close()
		close(e.done)
	})
}

// checkRef runs the connectivity check for one pending part.
func (e *Engine) checkRef(ref partRef) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = &RuntimeError{
				Code:       ErrCodeEventFailed,
				Message:    fmt.Sprintf("panic: %v", r),
				Definition: ref.def,
			}
		}
	}()

	p := e.lookupPart(ref.def, ref.key)
	if p == nil || p.detached {
		return nil
	}
	e.checkConnectivity(p, false)
	return nil
}

// processEvent applies one structural event under the engine lock.
// Panics are recovered and returned as errors. Graph changes made before
// the panic are kept, not rolled back; the parts involved are rechecked
// the next time anything queues them.
func (e *Engine) processEvent(ctx context.Context, ev Event) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = &RuntimeError{
				Code:    ErrCodeEventFailed,
				Message: fmt.Sprintf("panic: %v", r),
				Details: map[string]string{"event": ev.Type.String()},
			}
		}
	}()

	switch ev.Type {
	case EventUnitAdded:
		e.unitAdded(ev.Unit)
	case EventUnitRemoved:
		e.unitRemoved(ev.Unit)
	case EventContainerAdded:
		return e.containerAdded(ctx, ev.Container)
	case EventContainerRemoved:
		e.containerRemoved(ev.Container.ID)
	case EventContainerSplit:
		e.containerSplit(ev.Container.ID, ev.Target, ev.Moved)
	default:
		return fmt.Errorf("unknown event type: %d", ev.Type)
	}
	return nil
}

func (e *Engine) unitAdded(u ir.Unit) {
	for _, name := range e.defOrder {
		def := e.defs[name]
		if def.IsTypeAllowed(u.Type) {
			e.addPart(def, u)
		}
	}
}

func (e *Engine) unitRemoved(last ir.Unit) {
	for _, name := range e.defOrder {
		if p := e.lookupPart(name, last.Key); p != nil {
			e.removePart(p, last, true)
		}
	}
}

// queueContainer registers and queues every matching unit on a container.
func (e *Engine) queueContainer(container string) {
	for _, u := range e.world.Units(container) {
		e.unitAdded(u)
	}
}

// containerRemoved closes the container's assemblies and drops its parts
// without per-part notifications.
func (e *Engine) containerRemoved(container string) {
	for _, id := range e.sortedAssemblyIDs() {
		if a := e.liveAssembly(id); a != nil && e.assemblyContainer(a) == container {
			e.closeAssembly(a)
		}
	}
	for _, name := range e.defOrder {
		for _, p := range e.parts[name] {
			if p.Container == container {
				e.removePart(p, ir.Unit{}, false)
			}
		}
	}
	slog.Debug("container removed", "container", container, "tick", e.tick)
}

func logEventError(ev Event, tick int64, err error) {
	attrs := []any{
		"error", err,
		"event", ev.Type.String(),
		"tick", tick,
	}
	switch ev.Type {
	case EventUnitAdded, EventUnitRemoved:
		attrs = append(attrs, "unit", ev.Unit.Key, "container", ev.Unit.Container)
	case EventContainerSplit:
		attrs = append(attrs, "container", ev.Container.ID, "target", ev.Target.ID, "moved", len(ev.Moved))
	default:
		attrs = append(attrs, "container", ev.Container.ID)
	}
	slog.Error("structural event failed", attrs...)
}
