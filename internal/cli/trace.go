package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/assemblies/internal/harness"
	"github.com/roach88/assemblies/internal/ir"
	"github.com/roach88/assemblies/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database   string
	Session    string // empty means the most recent session
	Definition string
	Assembly   int64
	Unit       string
}

// EventLine is one notification as the CLI prints it.
type EventLine struct {
	Seq        int64  `json:"seq"`
	Tick       int64  `json:"tick"`
	Kind       string `json:"kind"`
	Definition string `json:"definition"`
	AssemblyID int64  `json:"assembly_id"`
	Unit       string `json:"unit,omitempty"`
	Anchor     bool   `json:"anchor,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Session  string      `json:"session"`
	Timeline []EventLine `json:"timeline"`
	Stats    TraceStats  `json:"stats"`
}

// TraceStats summarizes the whole session, regardless of filters.
type TraceStats struct {
	TotalEvents int            `json:"total_events"`
	LastTick    int64          `json:"last_tick"`
	Created     int            `json:"created"`
	Closed      int            `json:"closed"`
	Destroyed   int            `json:"destroyed"`
	Open        []OpenAssembly `json:"open"`
}

// OpenAssembly is an assembly still alive at the end of the log.
type OpenAssembly struct {
	ID      int64 `json:"id"`
	Members int   `json:"members"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show recorded assembly notifications",
		Long: `Show the notification log recorded in a database.

Without --session the most recent session is shown (UUIDv7 sessions sort
in start order). The timeline can be narrowed to one definition, one
assembly id or one unit; the stats always cover the whole session.

Examples:
  assemblies trace --db ./assemblies.db
  assemblies trace --db ./assemblies.db --assembly 3
  assemblies trace --db ./assemblies.db --unit B --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session to show (default: most recent)")
	cmd.Flags().StringVar(&opts.Definition, "definition", "", "only events of this definition")
	cmd.Flags().Int64Var(&opts.Assembly, "assembly", 0, "only events of this assembly id")
	cmd.Flags().StringVar(&opts.Unit, "unit", "", "only events about this unit key")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := openExisting(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, err.Error(), nil)
	}
	defer st.Close()

	session := opts.Session
	if session == "" {
		sessions, err := st.ListSessions(ctx)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, err.Error(), nil)
		}
		if len(sessions) > 0 {
			session = sessions[len(sessions)-1]
		}
	}

	result := TraceResult{Session: session, Timeline: []EventLine{}, Stats: TraceStats{Open: []OpenAssembly{}}}
	if session != "" {
		events, err := st.ReadEvents(ctx, store.EventFilter{
			Session:    session,
			Definition: opts.Definition,
			AssemblyID: opts.Assembly,
			Unit:       ir.UnitKey(opts.Unit),
		})
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, err.Error(), nil)
		}
		state, err := st.GetSessionState(ctx, session)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, err.Error(), nil)
		}
		result.Timeline = eventLines(events)
		result.Stats = traceStats(state)
	}

	if formatter.JSON() {
		return formatter.Encode(CLIResponse{Status: "ok", Data: result})
	}
	if session == "" || result.Stats.TotalEvents == 0 {
		fmt.Fprintln(formatter.Writer, "No events found")
		return nil
	}
	outputTraceText(formatter, result)
	return nil
}

func traceStats(state store.SessionState) TraceStats {
	stats := TraceStats{
		TotalEvents: state.Events,
		LastTick:    state.LastTick,
		Created:     state.Created,
		Closed:      state.Closed,
		Destroyed:   state.Destroyed,
		Open:        []OpenAssembly{},
	}
	for _, id := range state.OpenIDs() {
		stats.Open = append(stats.Open, OpenAssembly{ID: id, Members: state.Open[id]})
	}
	return stats
}

func eventLines(events []ir.AssemblyEvent) []EventLine {
	lines := make([]EventLine, len(events))
	for i, ev := range events {
		lines[i] = EventLine{
			Seq:        ev.Seq,
			Tick:       ev.Tick,
			Kind:       string(ev.Kind),
			Definition: ev.Definition,
			AssemblyID: ev.AssemblyID,
			Unit:       string(ev.Unit),
			Anchor:     ev.Anchor,
		}
	}
	return lines
}

// printEventLines writes one line per event, in the same
// "kind unit #id" form scenario assertions use.
func printEventLines(w io.Writer, lines []EventLine, verbose bool) {
	if len(lines) == 0 {
		fmt.Fprintln(w, "  (no events)")
		return
	}
	for _, l := range lines {
		desc := harness.DescribeEvent(ir.AssemblyEvent{
			Kind:       ir.EventKind(l.Kind),
			AssemblyID: l.AssemblyID,
			Unit:       ir.UnitKey(l.Unit),
		})
		fmt.Fprintf(w, "  [%d] t=%d %s (%s)", l.Seq, l.Tick, desc, l.Definition)
		if verbose && l.Anchor {
			fmt.Fprint(w, " anchor")
		}
		fmt.Fprintln(w)
	}
}

func outputTraceText(formatter *OutputFormatter, result TraceResult) {
	w := formatter.Writer
	fmt.Fprintf(w, "Trace for Session: %s\n", result.Session)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	printEventLines(w, result.Timeline, formatter.Verbose)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Last Tick:    %d\n", result.Stats.LastTick)
	fmt.Fprintf(w, "  Created:      %d\n", result.Stats.Created)
	fmt.Fprintf(w, "  Closed:       %d\n", result.Stats.Closed)
	fmt.Fprintf(w, "  Destroyed:    %d\n", result.Stats.Destroyed)
	for _, o := range result.Stats.Open {
		fmt.Fprintf(w, "  Open #%d: %d member(s)\n", o.ID, o.Members)
	}
}
