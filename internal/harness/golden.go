package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/assemblies/internal/ir"
)

// GoldenDir is where golden traces live, relative to the test's package.
const GoldenDir = "testdata/golden"

// TraceSnapshot renders a result as canonical JSON: the scenario name,
// the final partition and every event without its session token, so
// snapshots compare equal across runs.
func TraceSnapshot(scenarioName string, result *Result) ([]byte, error) {
	trace := make(ir.IRArray, len(result.Trace))
	for i, ev := range result.Trace {
		trace[i] = ev.ToIR()
	}
	partition := make(ir.IRArray, len(result.Partition))
	for i, p := range result.Partition {
		partition[i] = ir.IRString(p)
	}
	return ir.MarshalCanonical(ir.IRObject{
		"scenario":  ir.IRString(scenarioName),
		"partition": partition,
		"trace":     trace,
	})
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()
	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()
	data, err := TraceSnapshot(scenarioName, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
