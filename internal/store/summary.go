package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/assemblies/internal/ir"
)

// SessionState summarizes one session's event log by replaying it.
type SessionState struct {
	Session   string
	Events    int
	LastSeq   int64
	LastTick  int64
	Created   int // distinct assembly ids ever announced
	Closed    int
	Destroyed int

	// Open lists assemblies that were announced and never closed, with
	// their member count at the end of the log.
	Open map[int64]int
}

// OpenIDs returns the open assembly ids, ascending.
func (st SessionState) OpenIDs() []int64 {
	ids := make([]int64, 0, len(st.Open))
	for id := range st.Open {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// GetSessionState replays a session's events into a summary.
func (s *Store) GetSessionState(ctx context.Context, session string) (SessionState, error) {
	events, err := s.ReadEvents(ctx, EventFilter{Session: session})
	if err != nil {
		return SessionState{}, fmt.Errorf("get session state: %w", err)
	}
	return Summarize(session, events), nil
}

// Summarize folds events, in seq order, into a SessionState.
func Summarize(session string, events []ir.AssemblyEvent) SessionState {
	st := SessionState{Session: session, Open: make(map[int64]int)}
	seen := make(map[int64]bool)
	for _, ev := range events {
		st.Events++
		st.LastSeq = max(st.LastSeq, ev.Seq)
		st.LastTick = max(st.LastTick, ev.Tick)

		switch ev.Kind {
		case ir.EventPartAdded:
			if !seen[ev.AssemblyID] {
				seen[ev.AssemblyID] = true
				st.Created++
			}
			st.Open[ev.AssemblyID]++
		case ir.EventPartRemoved:
			if n, ok := st.Open[ev.AssemblyID]; ok && n > 0 {
				st.Open[ev.AssemblyID] = n - 1
			}
		case ir.EventPartDestroyed:
			st.Destroyed++
		case ir.EventAssemblyClosed:
			st.Closed++
			delete(st.Open, ev.AssemblyID)
		}
	}
	return st
}
