package persist

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/assemblies/internal/engine"
	"github.com/roach88/assemblies/internal/ir"
	"github.com/roach88/assemblies/internal/store"
	"github.com/roach88/assemblies/internal/world"
)

func TestSerializerOverSQLite(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	s := NewSerializer(st)
	ctx := context.Background()
	rec := sampleRecord()

	require.NoError(t, s.SaveRecords(ctx, rec))
	rec.Tick = 254
	rec.Assemblies = rec.Assemblies[:1]
	require.NoError(t, s.SaveRecords(ctx, rec))

	got, err := s.LoadRecords(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, rec.Assemblies, got)

	blob, err := st.LoadBlob(ctx, "c1")
	require.NoError(t, err)
	decoded, skipped, err := Decode(blob)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	assert.Equal(t, int64(254), decoded.Tick)
}

func TestEngineCheckpointAndReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "world.db")
	grid := ir.DefinitionSpec{Name: "grid", Allowed: []string{"core", "block"}, Anchor: "core"}
	units := []ir.Unit{
		{Key: "core", Type: "core", Container: "ship", Position: ir.V(0, 0, 0)},
		{Key: "b1", Type: "block", Container: "ship", Position: ir.V(1, 0, 0)},
		{Key: "b2", Type: "block", Container: "ship", Position: ir.V(1, 1, 0)},
	}

	// First session builds the ship and checkpoints it.
	st, err := store.Open(path)
	require.NoError(t, err)
	w := world.New()
	e := engine.New(w, engine.WithRecordStore(NewSerializer(st)), engine.WithRecorder(st), engine.WithSaveEvery(0))
	w.Subscribe(e)
	_, err = e.RegisterDefinition(ctx, grid)
	require.NoError(t, err)
	require.NoError(t, w.AddContainer("ship", true))
	for _, u := range units {
		require.NoError(t, w.Place(u))
	}
	drain(t, e)
	require.Len(t, e.Assemblies(), 1)
	require.True(t, e.SetProperty(e.Assemblies()[0], "label", ir.IRString("scout")))
	require.NoError(t, e.Checkpoint(ctx))

	events, err := st.ReadEvents(ctx, store.EventFilter{Session: e.Session()})
	require.NoError(t, err)
	assert.Len(t, events, 3)
	require.NoError(t, st.Close())

	// Second session reopens the database and streams the ship back in.
	st, err = store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	w = world.New()
	e = engine.New(w, engine.WithRecordStore(NewSerializer(st)), engine.WithSaveEvery(0))
	w.Subscribe(e)
	_, err = e.RegisterDefinition(ctx, grid)
	require.NoError(t, err)
	require.NoError(t, w.Load(ir.Container{ID: "ship", Physical: true}, units))
	drain(t, e)

	ids := e.Assemblies()
	require.Len(t, ids, 1)
	assert.Equal(t, ir.UnitKey("core"), e.Anchor(ids[0]))
	assert.ElementsMatch(t, []ir.UnitKey{"core", "b1", "b2"}, e.Members(ids[0]))
	v, ok := e.Property(ids[0], "label")
	require.True(t, ok)
	assert.Equal(t, ir.IRString("scout"), v)
	require.NoError(t, e.CheckInvariants())
}

func drain(t *testing.T, e *engine.Engine) {
	t.Helper()
	for i := 0; i < 100; i++ {
		require.NoError(t, e.Tick(context.Background()))
		if events, checks := e.Pending(); events == 0 && checks == 0 {
			return
		}
	}
	t.Fatal("engine did not settle")
}
