package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/assemblies/internal/engine"
	"github.com/roach88/assemblies/internal/harness"
	"github.com/roach88/assemblies/internal/testutil"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Session  string

	// SessionGenerator overrides session tokens (for testing). If nil and
	// --session is empty, defaults to UUIDv7Generator.
	SessionGenerator engine.SessionGenerator
}

// RunOutput is the JSON payload of the run command.
type RunOutput struct {
	Scenario  string      `json:"scenario"`
	Session   string      `json:"session"`
	Pass      bool        `json:"pass"`
	Ticks     int64       `json:"ticks"`
	Partition []string    `json:"partition"`
	Trace     []EventLine `json:"trace"`
	Errors    []string    `json:"errors,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Run one scenario and print its partition and trace",
		Long: `Run a single YAML scenario against a live engine and print the final
assembly partition and every notification it produced.

With --db the run records into a SQLite file instead of memory, so the
trace and checkpointed containers can be examined later with trace and
inspect. Each run into a file gets its own UUIDv7 session unless
--session is given.

Examples:
  assemblies run ./testdata/scenarios/split_chain.yaml
  assemblies run --db ./assemblies.db ./testdata/scenarios/reload.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "record into this SQLite database instead of memory")
	cmd.Flags().StringVar(&opts.Session, "session", "", "fixed session token")

	return cmd
}

func runScenario(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeLoadFailed, err.Error(), nil)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var runOpts []harness.Option
	switch {
	case opts.SessionGenerator != nil:
		runOpts = append(runOpts, harness.WithSessionGenerator(opts.SessionGenerator))
	case opts.Session != "":
		runOpts = append(runOpts, harness.WithSessionGenerator(testutil.NewFixedSessionGenerator(opts.Session)))
	case opts.Database != "":
		runOpts = append(runOpts, harness.WithSessionGenerator(engine.UUIDv7Generator{}))
	}
	if opts.Database != "" {
		slog.Info("recording run", "db", opts.Database, "scenario", scenario.Name)
		runOpts = append(runOpts, harness.WithDatabase(opts.Database))
	}

	result, err := harness.RunContext(ctx, scenario, runOpts...)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeGeneric, fmt.Sprintf("scenario %s failed to run: %v", scenario.Name, err), nil)
	}

	out := RunOutput{
		Scenario:  scenario.Name,
		Pass:      result.Pass,
		Ticks:     result.Ticks,
		Partition: result.Partition,
		Trace:     eventLines(result.Trace),
		Errors:    result.Errors,
	}
	if len(result.Trace) > 0 {
		out.Session = result.Trace[0].Session
	}

	if formatter.JSON() {
		resp := CLIResponse{Status: "ok", Data: out}
		if !out.Pass {
			resp.Status = "error"
			resp.Error = &CLIError{Code: "E_TEST_FAILED", Message: "scenario assertions failed", Details: out.Errors}
		}
		if err := formatter.Encode(resp); err != nil {
			return err
		}
	} else {
		printRun(formatter, out)
	}

	if !out.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}
	return nil
}

func printRun(formatter *OutputFormatter, out RunOutput) {
	w := formatter.Writer
	fmt.Fprintf(w, "Scenario: %s\n", out.Scenario)
	if out.Session != "" {
		fmt.Fprintf(w, "Session:  %s\n", out.Session)
	}
	fmt.Fprintf(w, "Ticks:    %d\n", out.Ticks)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Partition ===")
	if len(out.Partition) == 0 {
		fmt.Fprintln(w, "  (no assemblies)")
	}
	for _, p := range out.Partition {
		fmt.Fprintf(w, "  %s\n", p)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Trace ===")
	printEventLines(w, out.Trace, formatter.Verbose)
	fmt.Fprintln(w)

	if out.Pass {
		fmt.Fprintln(w, "✓ assertions passed")
		return
	}
	fmt.Fprintln(w, "✗ assertions failed")
	for _, e := range out.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}
