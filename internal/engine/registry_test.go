package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/assemblies/internal/ir"
	"github.com/roach88/assemblies/internal/world"
)

func TestRegisterScansExistingContainers(t *testing.T) {
	defer goleak.VerifyNone(t)

	w := world.New()
	for _, id := range []string{"c1", "c2", "c3"} {
		require.NoError(t, w.AddContainer(id, true))
	}
	require.NoError(t, w.AddContainer("preview", false))
	for _, c := range []string{"c1", "c2", "c3", "preview"} {
		require.NoError(t, w.Place(ir.Unit{Key: ir.UnitKey(c + "-a"), Type: "block", Container: c}))
		require.NoError(t, w.Place(ir.Unit{Key: ir.UnitKey(c + "-b"), Type: "block", Container: c, Position: ir.V(1, 0, 0)}))
		require.NoError(t, w.Place(ir.Unit{Key: ir.UnitKey(c + "-r"), Type: "rock", Container: c, Position: ir.V(2, 0, 0)}))
	}

	e := New(w, WithSaveEvery(0))
	names, err := e.RegisterDefinition(context.Background(), blocks)
	require.NoError(t, err)
	assert.Equal(t, []string{"blocks"}, names)
	settle(t, e)

	assert.Len(t, e.Parts(), 6, "placeholder containers are not scanned")
	assert.Equal(t, []string{"blocks:c1-a,c1-b", "blocks:c2-a,c2-b", "blocks:c3-a,c3-b"}, partition(e))
}

func TestRegisterRejectsDuplicatesAndInvalid(t *testing.T) {
	e, _, _ := newTestEngine(t, blocks)

	names, err := e.RegisterDefinition(context.Background(),
		blocks,
		ir.DefinitionSpec{Name: "empty"},
		ir.DefinitionSpec{Name: "pipes", Allowed: []string{"pipe"}},
		ir.DefinitionSpec{Name: "pipes", Allowed: []string{"pipe"}},
		ir.DefinitionSpec{Name: "bad anchor", Allowed: []string{"a"}, Anchor: "b"},
	)

	assert.Equal(t, []string{"pipes"}, names)
	var regErr *RegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, []string{"blocks", "empty", "pipes", "bad anchor"}, regErr.Names())
	assert.Equal(t, []string{"blocks", "pipes"}, e.Definitions())
}

func TestUnregisterClosesAssemblies(t *testing.T) {
	e, w, log := newTestEngine(t, blocks, grid)

	place(t, w, "A", "block", 0, 0, 0)
	place(t, w, "B", "block", 1, 0, 0)
	settle(t, e)
	log.take()

	assert.False(t, e.UnregisterDefinition("nope"))
	require.True(t, e.UnregisterDefinition("blocks"))

	assert.Equal(t, []string{"closed 1", "removed 1 A", "removed 1 B"}, log.take())
	assert.Equal(t, []string{"grid"}, e.Definitions())
	assert.Nil(t, e.Definition("blocks"))
	for _, p := range e.Parts() {
		assert.Equal(t, "grid", p.Definition)
	}
	require.NoError(t, e.CheckInvariants())

	// New units are no longer seen by the removed definition.
	place(t, w, "C", "block", 2, 0, 0)
	settle(t, e)
	assert.Empty(t, e.Assemblies())
}

func TestReregisterAfterUnregister(t *testing.T) {
	e, w, _ := newTestEngine(t, blocks)
	place(t, w, "A", "block", 0, 0, 0)
	settle(t, e)

	require.True(t, e.UnregisterDefinition("blocks"))
	_, err := e.RegisterDefinition(context.Background(), blocks)
	require.NoError(t, err)
	settle(t, e)

	assert.Equal(t, []AssemblyID{2}, e.Assemblies(), "ids are never reused")
}
