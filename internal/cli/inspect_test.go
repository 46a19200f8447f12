package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/assemblies/internal/store"
)

func TestInspectOverview(t *testing.T) {
	dbPath := recordRun(t, "reload-1")

	out, err := runCommand(t, "json", "inspect", "--db", dbPath)
	require.NoError(t, err, out)

	var resp struct {
		Status string        `json:"status"`
		Data   InspectResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Containers, 1)
	assert.Equal(t, "station", resp.Data.Containers[0].Container)
	assert.Positive(t, resp.Data.Containers[0].Size)
	assert.Equal(t, []string{"reload-1"}, resp.Data.Sessions)

	out, err = runCommand(t, "text", "inspect", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "=== Containers ===")
	assert.Contains(t, out, "  station  ")
	assert.Contains(t, out, "  reload-1\n")
}

func TestInspectContainer(t *testing.T) {
	dbPath := recordRun(t, "reload-1")

	out, err := runCommand(t, "json", "inspect", "--db", dbPath, "station")
	require.NoError(t, err, out)

	var resp struct {
		Data ContainerDetail `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	detail := resp.Data
	assert.Equal(t, "station", detail.Container)
	assert.Equal(t, "reload-1", detail.Session)
	require.Len(t, detail.Assemblies, 1)
	assert.Equal(t, AssemblyInfo{Definition: "grid", Members: 5, Properties: []string{"label", "level"}}, detail.Assemblies[0])
	assert.Empty(t, detail.Skipped)

	out, err = runCommand(t, "text", "inspect", "--db", dbPath, "station")
	require.NoError(t, err)
	assert.Contains(t, out, "[0] grid: 5 member(s) properties=[label level]")
}

func TestInspectReportsSkippedEntries(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "broken.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	blob := `{"assemblies":[{"definition":"grid","members":["a"]},{"definition":""}],"container":"dock","session":"s","tick":4,"version":"1"}`
	require.NoError(t, st.SaveBlob(context.Background(), "dock", []byte(blob)))
	require.NoError(t, st.Close())

	out, err := runCommand(t, "text", "inspect", "--db", dbPath, "dock")
	require.NoError(t, err, out)
	assert.Contains(t, out, "[0] grid: 1 member(s)")
	assert.Contains(t, out, "skipped: assembly[1]: missing definition")
}

func TestInspectBadVersion(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "old.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.SaveBlob(context.Background(), "dock", []byte(`{"version":"0","assemblies":[]}`)))
	require.NoError(t, st.Close())

	_, err = runCommand(t, "text", "inspect", "--db", dbPath, "dock")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeBadRecord)
}

func TestInspectUnknownContainer(t *testing.T) {
	dbPath := recordRun(t, "reload-1")

	_, err := runCommand(t, "text", "inspect", "--db", dbPath, "nowhere")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no saved records for container nowhere")
}
