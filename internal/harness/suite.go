package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// SuiteResult summarizes a directory of scenarios.
type SuiteResult struct {
	Total    int            `json:"total"`
	Passed   int            `json:"passed"`
	Failed   int            `json:"failed"`
	Failures []SuiteFailure `json:"failures,omitempty"`

	// Results holds each scenario's result by file path. Scenarios that
	// failed to load or run have no entry.
	Results map[string]*Result `json:"-"`
}

// SuiteFailure is one scenario that did not pass.
type SuiteFailure struct {
	ScenarioPath string `json:"scenario_path"`
	Scenario     string `json:"scenario,omitempty"`
	Error        string `json:"error"`
}

// FindScenarios returns every .yaml or .yml file under dir, sorted.
func FindScenarios(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			files = append(files, path)
		}
		return nil
	})
	slices.Sort(files)
	return files, err
}

// RunSuite loads and runs each scenario file in order. Load and run
// failures are reported per scenario; they never stop the suite.
func RunSuite(ctx context.Context, paths []string) *SuiteResult {
	result := &SuiteResult{Results: make(map[string]*Result)}
	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		result.Total++

		scenario, err := LoadScenario(path)
		if err != nil {
			result.fail(path, "", fmt.Sprintf("failed to load scenario: %v", err))
			continue
		}
		run, err := RunContext(ctx, scenario)
		if err != nil {
			result.fail(path, scenario.Name, fmt.Sprintf("scenario execution failed: %v", err))
			continue
		}
		result.Results[path] = run
		if !run.Pass {
			result.fail(path, scenario.Name, fmt.Sprintf("scenario assertions failed: %v", run.Errors))
			continue
		}
		result.Passed++
	}
	return result
}

func (r *SuiteResult) fail(path, name, msg string) {
	r.Failed++
	r.Failures = append(r.Failures, SuiteFailure{ScenarioPath: path, Scenario: name, Error: msg})
}
