package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/assemblies/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool
	Filter string
}

// TestResult holds the results of running the scenario suite.
type TestResult struct {
	Total     int              `json:"total"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Scenarios []ScenarioResult `json:"scenarios"`
}

// ScenarioResult holds the result of a single scenario.
type ScenarioResult struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	Ticks  int64    `json:"ticks,omitempty"`
	Events int      `json:"events,omitempty"`
	Golden string   `json:"golden,omitempty"` // "match", "updated" or "" when none exists
	Errors []string `json:"errors,omitempty"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios>",
		Short: "Run scenario files",
		Long: `Run YAML scenarios and check their assertions and golden traces.

<scenarios> is a scenario file or a directory searched recursively for
.yaml/.yml files. Each scenario runs against a fresh in-memory database.

When golden/<scenario-file>.golden exists next to a scenario, the
scenario's canonical trace must match it byte for byte. Use --update to
write or overwrite golden files from the current run.

Examples:
  assemblies test ./testdata/scenarios
  assemblies test ./testdata/scenarios --filter split
  assemblies test ./testdata/scenarios --update`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "update golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "run only scenarios whose name or file contains this string")

	return cmd
}

func runTests(opts *TestOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	files, err := scenarioFiles(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil)
	}

	// Load everything up front so --filter can match scenario names.
	// Files that fail to load are kept; RunSuite reports them.
	names := make(map[string]string, len(files))
	var selected []string
	for _, f := range files {
		name := strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
		if s, err := harness.LoadScenario(f); err == nil {
			name = s.Name
		}
		if opts.Filter != "" && !strings.Contains(name, opts.Filter) && !strings.Contains(f, opts.Filter) {
			continue
		}
		names[f] = name
		selected = append(selected, f)
	}

	if len(selected) == 0 {
		if formatter.JSON() {
			return formatter.Encode(CLIResponse{Status: "ok", Data: TestResult{Scenarios: []ScenarioResult{}}})
		}
		fmt.Fprintln(formatter.Writer, "No scenarios found")
		return nil
	}
	formatter.VerboseLog("Running %d scenario(s)", len(selected))

	suite := harness.RunSuite(cmd.Context(), selected)
	failures := make(map[string][]string, len(suite.Failures))
	for _, f := range suite.Failures {
		failures[f.ScenarioPath] = append(failures[f.ScenarioPath], f.Error)
	}

	result := TestResult{Scenarios: make([]ScenarioResult, 0, len(selected))}
	for _, f := range selected {
		sr := ScenarioResult{Name: names[f], File: f, Errors: failures[f]}
		if run, ok := suite.Results[f]; ok {
			sr.Ticks = run.Ticks
			sr.Events = len(run.Trace)
			sr.Errors = append(sr.Errors, checkGolden(&sr, run, opts.Update)...)
		}
		sr.Pass = len(sr.Errors) == 0
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Total++
		result.Scenarios = append(result.Scenarios, sr)
		if !formatter.JSON() {
			printScenario(formatter, sr)
		}
	}

	if formatter.JSON() {
		return outputTestJSON(formatter, result)
	}
	return outputTestText(formatter, result)
}

// scenarioFiles resolves the argument to a sorted list of scenario files.
func scenarioFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("scenarios not found: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("error accessing scenarios: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	return harness.FindScenarios(path)
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile string) string {
	dir := filepath.Dir(scenarioFile)
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+".golden")
}

// checkGolden compares or rewrites the scenario's golden trace and returns
// any mismatch as an error message.
func checkGolden(sr *ScenarioResult, run *harness.Result, update bool) []string {
	snapshot, err := harness.TraceSnapshot(sr.Name, run)
	if err != nil {
		return []string{fmt.Sprintf("failed to render trace: %v", err)}
	}
	goldenPath := goldenFilePath(sr.File)

	if update {
		if err := os.MkdirAll(filepath.Dir(goldenPath), 0o755); err != nil {
			return []string{fmt.Sprintf("failed to create golden directory: %v", err)}
		}
		if err := os.WriteFile(goldenPath, snapshot, 0o644); err != nil {
			return []string{fmt.Sprintf("failed to write golden file: %v", err)}
		}
		sr.Golden = "updated"
		return nil
	}

	want, err := os.ReadFile(goldenPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return []string{fmt.Sprintf("failed to read golden file: %v", err)}
	}
	if !bytes.Equal(want, snapshot) {
		return []string{"trace does not match golden file (run with --update to regenerate)"}
	}
	sr.Golden = "match"
	return nil
}

func printScenario(formatter *OutputFormatter, sr ScenarioResult) {
	w := formatter.Writer
	if !sr.Pass {
		fmt.Fprintf(w, "✗ %s\n", sr.Name)
		for _, e := range sr.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
		return
	}
	if sr.Golden == "updated" {
		fmt.Fprintf(w, "✓ %s (golden updated)\n", sr.Name)
		return
	}
	fmt.Fprintf(w, "✓ %s\n", sr.Name)
	formatter.VerboseLog("  %s: %d tick(s), %d event(s)", sr.File, sr.Ticks, sr.Events)
}

func outputTestJSON(formatter *OutputFormatter, result TestResult) error {
	resp := CLIResponse{Status: "ok", Data: result}
	if result.Failed > 0 {
		resp.Status = "error"
		resp.Error = &CLIError{
			Code:    "E_TEST_FAILED",
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}
	if err := formatter.Encode(resp); err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

func outputTestText(formatter *OutputFormatter, result TestResult) error {
	w := formatter.Writer
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
