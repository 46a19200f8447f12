package cli

import (
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/assemblies/internal/persist"
	"github.com/roach88/assemblies/internal/store"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Database string
}

// InspectResult is the overview of a database.
type InspectResult struct {
	Containers []ContainerInfo `json:"containers"`
	Sessions   []string        `json:"sessions"`
}

// ContainerInfo describes one stored container blob.
type ContainerInfo struct {
	Container string    `json:"container"`
	Size      int       `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ContainerDetail is a decoded container blob.
type ContainerDetail struct {
	Container  string         `json:"container"`
	Version    string         `json:"version"`
	Session    string         `json:"session"`
	Tick       int64          `json:"tick"`
	Assemblies []AssemblyInfo `json:"assemblies"`
	Skipped    []string       `json:"skipped,omitempty"`
}

// AssemblyInfo summarizes one stored assembly record.
type AssemblyInfo struct {
	Definition string   `json:"definition"`
	Members    int      `json:"members"`
	Properties []string `json:"properties,omitempty"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect [container]",
		Short: "Show saved containers and recorded sessions",
		Long: `Show what a database holds.

Without arguments, lists every saved container blob and every recorded
session. With a container id, decodes that container's saved assembly
records and reports entries that would be skipped on load.

Examples:
  assemblies inspect --db ./assemblies.db
  assemblies inspect --db ./assemblies.db station`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runInspectContainer(opts, args[0], cmd)
			}
			return runInspect(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

// openExisting opens a database that must already exist. store.Open would
// silently create an empty one.
func openExisting(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("database not found: %s", path)
	}
	return store.Open(path)
}

func runInspect(opts *InspectOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := commandContext(cmd)

	st, err := openExisting(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, err.Error(), nil)
	}
	defer st.Close()

	metas, err := st.ListBlobs(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, err.Error(), nil)
	}
	sessions, err := st.ListSessions(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, err.Error(), nil)
	}

	result := InspectResult{Containers: make([]ContainerInfo, len(metas)), Sessions: sessions}
	for i, m := range metas {
		result.Containers[i] = ContainerInfo{Container: m.Container, Size: m.Size, UpdatedAt: m.UpdatedAt.UTC()}
	}

	if formatter.JSON() {
		return formatter.Encode(CLIResponse{Status: "ok", Data: result})
	}

	w := formatter.Writer
	fmt.Fprintln(w, "=== Containers ===")
	if len(result.Containers) == 0 {
		fmt.Fprintln(w, "  (none saved)")
	}
	for _, c := range result.Containers {
		fmt.Fprintf(w, "  %s  %d bytes  %s\n", c.Container, c.Size, c.UpdatedAt.Format(time.RFC3339))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Sessions ===")
	if len(result.Sessions) == 0 {
		fmt.Fprintln(w, "  (none recorded)")
	}
	for _, s := range result.Sessions {
		fmt.Fprintf(w, "  %s\n", s)
	}
	return nil
}

func runInspectContainer(opts *InspectOptions, container string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := commandContext(cmd)

	st, err := openExisting(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, err.Error(), nil)
	}
	defer st.Close()

	blob, err := st.LoadBlob(ctx, container)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, err.Error(), nil)
	}
	if blob == nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("no saved records for container %s", container), nil)
	}

	rec, skipped, err := persist.Decode(blob)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeBadRecord, err.Error(), nil)
	}

	detail := ContainerDetail{
		Container:  rec.Container,
		Version:    rec.Version,
		Session:    rec.Session,
		Tick:       rec.Tick,
		Assemblies: make([]AssemblyInfo, len(rec.Assemblies)),
	}
	for i, a := range rec.Assemblies {
		info := AssemblyInfo{Definition: a.Definition, Members: max(len(a.Members), len(a.Positions))}
		for k := range a.Properties() {
			info.Properties = append(info.Properties, k)
		}
		slices.Sort(info.Properties)
		detail.Assemblies[i] = info
	}
	for _, e := range skipped {
		detail.Skipped = append(detail.Skipped, e.Error())
	}

	if formatter.JSON() {
		return formatter.Encode(CLIResponse{Status: "ok", Data: detail})
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Container: %s\n", detail.Container)
	fmt.Fprintf(w, "Version:   %s\n", detail.Version)
	fmt.Fprintf(w, "Session:   %s\n", detail.Session)
	fmt.Fprintf(w, "Tick:      %d\n", detail.Tick)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Assemblies ===")
	if len(detail.Assemblies) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for i, a := range detail.Assemblies {
		fmt.Fprintf(w, "  [%d] %s: %d member(s)", i, a.Definition, a.Members)
		if len(a.Properties) > 0 {
			fmt.Fprintf(w, " properties=%v", a.Properties)
		}
		fmt.Fprintln(w)
	}
	for _, s := range detail.Skipped {
		fmt.Fprintf(w, "  skipped: %s\n", s)
	}
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
