package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindScenarios(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	for _, name := range []string{"b.yaml", "a.yml", "notes.txt", "nested/c.YAML"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}

	paths, err := FindScenarios(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yml"),
		filepath.Join(dir, "b.yaml"),
		filepath.Join(dir, "nested", "c.YAML"),
	}, paths)
}

func TestRunSuite(t *testing.T) {
	dir := t.TempDir()
	writeDefs(t, dir)
	pass := filepath.Join(dir, "pass.yaml")
	fail := filepath.Join(dir, "fail.yaml")
	broken := filepath.Join(dir, "broken.yaml")

	body := `
description: d
definitions: [blocks.cue]
containers: [{id: c}]
steps:
  - place: {key: A, type: Block, at: [0, 0, 0]}
assertions:
`
	require.NoError(t, os.WriteFile(pass, []byte("name: pass"+body+"  - type: assembly_count\n    count: 1\n"), 0o644))
	require.NoError(t, os.WriteFile(fail, []byte("name: fail"+body+"  - type: assembly_count\n    count: 2\n"), 0o644))
	require.NoError(t, os.WriteFile(broken, []byte("name: [unterminated"), 0o644))

	res := RunSuite(context.Background(), []string{broken, fail, pass})
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 1, res.Passed)
	assert.Equal(t, 2, res.Failed)
	require.Len(t, res.Failures, 2)
	assert.Contains(t, res.Failures[0].Error, "failed to load scenario")
	assert.Equal(t, "fail", res.Failures[1].Scenario)
	assert.Contains(t, res.Failures[1].Error, "assertions failed")
	assert.Contains(t, res.Results, pass)
	assert.Contains(t, res.Results, fail)
}

func TestRunSuiteStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := RunSuite(ctx, []string{"a.yaml", "b.yaml"})
	assert.Equal(t, 0, res.Total)
}
