package engine

import (
	"context"
	"log/slog"
	"slices"

	"github.com/roach88/assemblies/internal/ir"
)

// PartEvent describes a part joining or leaving an assembly.
type PartEvent struct {
	Definition string
	AssemblyID AssemblyID
	Unit       ir.UnitKey
	IsAnchor   bool
}

// Handlers receives notifications for one definition. Nil fields are
// skipped.
type Handlers struct {
	PartAdded      func(PartEvent)
	PartRemoved    func(PartEvent)
	PartDestroyed  func(PartEvent)
	AssemblyClosed func(AssemblyID)
}

type subscription struct {
	id int
	h  Handlers
}

// Subscribe registers h for notifications about def. An empty def
// subscribes to every definition. The returned func unsubscribes and is
// safe to call more than once.
func (e *Engine) Subscribe(def string, h Handlers) func() {
	e.subMu.Lock()
	e.nextSub++
	id := e.nextSub
	e.subs[def] = append(e.subs[def], subscription{id: id, h: h})
	e.subMu.Unlock()

	return func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		e.subs[def] = slices.DeleteFunc(e.subs[def], func(s subscription) bool { return s.id == id })
		if len(e.subs[def]) == 0 {
			delete(e.subs, def)
		}
	}
}

// emit buffers a notification. Caller holds e.mu; the outbox is
// dispatched by flush once the lock is released.
func (e *Engine) emit(kind ir.EventKind, def string, id AssemblyID, unit ir.UnitKey, anchor bool) {
	e.outbox = append(e.outbox, ir.AssemblyEvent{
		Seq:        e.seq.Next(),
		Session:    e.session,
		Tick:       e.tick,
		Kind:       kind,
		Definition: def,
		AssemblyID: int64(id),
		Unit:       unit,
		Anchor:     anchor,
	})
}

// takeOutbox detaches the buffered notifications.
func (e *Engine) takeOutbox() []ir.AssemblyEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.outbox
	e.outbox = nil
	return out
}

// flush dispatches buffered notifications in order. Must be called
// without e.mu held. A handler that mutates the engine produces more
// notifications; the outer flush picks them up, and a nested flush
// returns at once so delivery order is preserved.
func (e *Engine) flush(ctx context.Context) {
	for {
		if !e.dispatchMu.TryLock() {
			return
		}
		events := e.takeOutbox()
		for _, ev := range events {
			e.dispatch(ctx, ev)
		}
		e.dispatchMu.Unlock()

		e.mu.RLock()
		more := len(e.outbox) > 0
		e.mu.RUnlock()
		if !more {
			return
		}
	}
}

// dispatch delivers one notification to the recorder and to every
// matching handler. Handler panics are recovered and logged.
func (e *Engine) dispatch(ctx context.Context, ev ir.AssemblyEvent) {
	if e.recorder != nil {
		if err := e.recorder.RecordEvent(ctx, ev); err != nil {
			slog.Warn("failed to record event",
				"seq", ev.Seq,
				"kind", ev.Kind,
				"assembly_id", ev.AssemblyID,
				"error", err,
			)
		}
	}

	e.subMu.Lock()
	subs := append(slices.Clone(e.subs[ev.Definition]), e.subs[""]...)
	e.subMu.Unlock()

	pe := PartEvent{
		Definition: ev.Definition,
		AssemblyID: AssemblyID(ev.AssemblyID),
		Unit:       ev.Unit,
		IsAnchor:   ev.Anchor,
	}
	for _, s := range subs {
		e.callHandler(ev, func() {
			switch ev.Kind {
			case ir.EventPartAdded:
				if s.h.PartAdded != nil {
					s.h.PartAdded(pe)
				}
			case ir.EventPartRemoved:
				if s.h.PartRemoved != nil {
					s.h.PartRemoved(pe)
				}
			case ir.EventPartDestroyed:
				if s.h.PartDestroyed != nil {
					s.h.PartDestroyed(pe)
				}
			case ir.EventAssemblyClosed:
				if s.h.AssemblyClosed != nil {
					s.h.AssemblyClosed(pe.AssemblyID)
				}
			}
		})
	}
}

func (e *Engine) callHandler(ev ir.AssemblyEvent, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("notification handler panicked",
				"kind", ev.Kind,
				"definition", ev.Definition,
				"assembly_id", ev.AssemblyID,
				"unit", ev.Unit,
				"panic", r,
			)
		}
	}()
	fn()
}
