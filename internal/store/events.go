package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/assemblies/internal/ir"
)

// RecordEvent appends a notification to the event log.
// Uses ON CONFLICT(session, seq) DO NOTHING, so re-recording the same
// event is a no-op.
func (s *Store) RecordEvent(ctx context.Context, ev ir.AssemblyEvent) error {
	anchor := 0
	if ev.Anchor {
		anchor = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assembly_events
		(session, seq, tick, kind, definition, assembly_id, unit, anchor)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session, seq) DO NOTHING
	`,
		ev.Session,
		ev.Seq,
		ev.Tick,
		string(ev.Kind),
		ev.Definition,
		ev.AssemblyID,
		string(ev.Unit),
		anchor,
	)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// EventFilter narrows ReadEvents. Zero fields match everything.
type EventFilter struct {
	Session    string
	Definition string
	AssemblyID int64
	Unit       ir.UnitKey
}

// ReadEvents returns matching events ordered by session, then seq.
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) ReadEvents(ctx context.Context, f EventFilter) ([]ir.AssemblyEvent, error) {
	var (
		where []string
		args  []any
	)
	if f.Session != "" {
		where = append(where, "session = ?")
		args = append(args, f.Session)
	}
	if f.Definition != "" {
		where = append(where, "definition = ?")
		args = append(args, f.Definition)
	}
	if f.AssemblyID != 0 {
		where = append(where, "assembly_id = ?")
		args = append(args, f.AssemblyID)
	}
	if f.Unit != "" {
		where = append(where, "unit = ?")
		args = append(args, string(f.Unit))
	}

	query := `
		SELECT session, seq, tick, kind, definition, assembly_id, unit, anchor
		FROM assembly_events`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\t\tORDER BY session COLLATE BINARY ASC, seq ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []ir.AssemblyEvent{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (ir.AssemblyEvent, error) {
	var (
		ev     ir.AssemblyEvent
		kind   string
		unit   string
		anchor int
	)
	if err := rows.Scan(&ev.Session, &ev.Seq, &ev.Tick, &kind, &ev.Definition, &ev.AssemblyID, &unit, &anchor); err != nil {
		return ir.AssemblyEvent{}, fmt.Errorf("scan event: %w", err)
	}
	ev.Kind = ir.EventKind(kind)
	ev.Unit = ir.UnitKey(unit)
	ev.Anchor = anchor != 0
	return ev, nil
}

// ListSessions returns every session in the log. UUIDv7 tokens sort in
// start order.
func (s *Store) ListSessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT session FROM assembly_events
		ORDER BY session COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []string{}
	for rows.Next() {
		var session string
		if err := rows.Scan(&session); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// LastSeq returns the highest seq recorded for a session, or 0.
func (s *Store) LastSeq(ctx context.Context, session string) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(seq) FROM assembly_events WHERE session = ?
	`, session).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}
