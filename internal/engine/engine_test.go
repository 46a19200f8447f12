package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/assemblies/internal/ir"
	"github.com/roach88/assemblies/internal/world"
)

func TestSingleUnitStartsAssembly(t *testing.T) {
	e, w, log := newTestEngine(t, blocks)

	place(t, w, "a", "block", 0, 0, 0)
	settle(t, e)

	require.Equal(t, []AssemblyID{1}, e.Assemblies())
	assert.Equal(t, []ir.UnitKey{"a"}, e.Members(1))
	assert.Equal(t, AssemblyID(1), e.ContainingAssembly("a", "blocks"))
	assert.Equal(t, "c1", e.Container(1))
	assert.Equal(t, []string{"added 1 a"}, log.take())
	require.NoError(t, e.CheckInvariants())
}

func TestTypeNotAllowedIsIgnored(t *testing.T) {
	e, w, _ := newTestEngine(t, blocks)

	place(t, w, "r", "rock", 0, 0, 0)
	settle(t, e)

	assert.Empty(t, e.Parts())
	assert.Empty(t, e.Assemblies())
}

func TestSplitTieClosesAssembly(t *testing.T) {
	e, w, log := newTestEngine(t, blocks)

	place(t, w, "A", "block", 0, 0, 0)
	place(t, w, "B", "block", 1, 0, 0)
	place(t, w, "C", "block", 2, 0, 0)
	settle(t, e)
	require.Equal(t, []AssemblyID{1}, e.Assemblies())
	assert.Equal(t, []ir.UnitKey{"A", "B", "C"}, e.Members(1))
	log.take()

	remove(t, w, "B")
	settle(t, e)

	assert.Equal(t, []string{
		"removed 1 A",
		"removed 1 C",
		"closed 1",
		"removed 1 B",
		"added 2 A",
		"added 3 C",
	}, log.take())
	assert.Equal(t, []AssemblyID{2, 3}, e.Assemblies())
	assert.NotEqual(t, e.ContainingAssembly("A", "blocks"), e.ContainingAssembly("C", "blocks"))
	require.NoError(t, e.CheckInvariants())
}

func TestLateRemovalStillSplits(t *testing.T) {
	ctx := context.Background()
	w := world.New()
	require.NoError(t, w.AddContainer("c1", true))
	e := New(w, WithSessionGenerator(NewFixedGenerator("test-session")), WithSaveEvery(0))
	late := &lateRemovals{Engine: e}
	w.Subscribe(late)
	_, err := e.RegisterDefinition(ctx, blocks)
	require.NoError(t, err)

	place(t, w, "A", "block", 0, 0, 0)
	place(t, w, "B", "block", 1, 0, 0)
	place(t, w, "C", "block", 2, 0, 0)
	settle(t, e)
	require.Equal(t, []ir.UnitKey{"A", "B", "C"}, e.Members(1))

	// B is gone from the world but the engine has not heard yet; checks
	// run in between must not forget that B joined A and C.
	remove(t, w, "B")
	e.QueueConnectivity("blocks", "A")
	e.QueueConnectivity("blocks", "B")
	require.NoError(t, e.Tick(ctx))
	assert.Equal(t, []ir.UnitKey{"A", "B", "C"}, e.Members(1))
	assert.Equal(t, []ir.UnitKey{"B"}, e.ConnectedNeighbors("A", "blocks", true))

	late.release()
	settle(t, e)

	assert.Equal(t, components(w, e.Definition("blocks"), "c1"), partition(e))
	assert.Equal(t, []string{"blocks:A", "blocks:C"}, partition(e))
	require.NoError(t, e.CheckInvariants())
}

func TestSplitKeepsLargestPartition(t *testing.T) {
	e, w, log := newTestEngine(t, blocks)

	// A-B-C-D-E with C removed leaves {A,B} and {D,E}; add F so the
	// right side is larger.
	for i, k := range []string{"A", "B", "C", "D", "E", "F"} {
		place(t, w, k, "block", i, 0, 0)
	}
	settle(t, e)
	require.Equal(t, []AssemblyID{1}, e.Assemblies())
	log.take()

	remove(t, w, "C")
	settle(t, e)

	assert.Equal(t, []ir.UnitKey{"D", "E", "F"}, e.Members(1), "largest side keeps the id")
	assert.Equal(t, AssemblyID(2), e.ContainingAssembly("A", "blocks"))
	assert.Equal(t, AssemblyID(2), e.ContainingAssembly("B", "blocks"))
	assert.Equal(t, []string{
		"removed 1 A",
		"removed 1 B",
		"removed 1 C",
		"added 2 A",
		"added 2 B",
	}, log.take())
	require.NoError(t, e.CheckInvariants())
}

func TestRemoveLeafDoesNotSplit(t *testing.T) {
	e, w, log := newTestEngine(t, blocks)

	place(t, w, "A", "block", 0, 0, 0)
	place(t, w, "B", "block", 1, 0, 0)
	place(t, w, "C", "block", 2, 0, 0)
	settle(t, e)
	log.take()

	remove(t, w, "C")
	settle(t, e)

	assert.Equal(t, []string{"removed 1 C"}, log.take())
	assert.Equal(t, []ir.UnitKey{"A", "B"}, e.Members(1))
}

func TestLoopRemovalKeepsAssembly(t *testing.T) {
	e, w, log := newTestEngine(t, blocks)

	// 2x2 ring: removing one corner leaves the rest connected.
	place(t, w, "A", "block", 0, 0, 0)
	place(t, w, "B", "block", 1, 0, 0)
	place(t, w, "C", "block", 1, 1, 0)
	place(t, w, "D", "block", 0, 1, 0)
	settle(t, e)
	log.take()

	remove(t, w, "A")
	settle(t, e)

	assert.Equal(t, []string{"removed 1 A"}, log.take())
	assert.Equal(t, []ir.UnitKey{"B", "C", "D"}, e.Members(1))
}

func TestMergeTieGoesToLowestID(t *testing.T) {
	e, w, log := newTestEngine(t, blocks)

	place(t, w, "A", "block", 0, 0, 0)
	place(t, w, "B", "block", 1, 0, 0)
	place(t, w, "C", "block", 3, 0, 0)
	place(t, w, "D", "block", 4, 0, 0)
	settle(t, e)
	require.Equal(t, []AssemblyID{1, 2}, e.Assemblies())
	log.take()

	place(t, w, "E", "block", 2, 0, 0)
	settle(t, e)

	assert.Equal(t, []string{
		"added 1 C",
		"added 1 D",
		"closed 2",
		"added 1 E",
	}, log.take())
	assert.Equal(t, []AssemblyID{1}, e.Assemblies())
	assert.Equal(t, []ir.UnitKey{"A", "B", "C", "D", "E"}, e.Members(1))
	require.NoError(t, e.CheckInvariants())
}

func TestMergeLargestSurvives(t *testing.T) {
	e, w, _ := newTestEngine(t, blocks)

	place(t, w, "D", "block", 0, 0, 0)
	settle(t, e)
	place(t, w, "A", "block", 2, 0, 0)
	place(t, w, "B", "block", 3, 0, 0)
	place(t, w, "C", "block", 4, 0, 0)
	settle(t, e)
	require.Equal(t, []AssemblyID{1, 2}, e.Assemblies())

	place(t, w, "E", "block", 1, 0, 0)
	settle(t, e)

	assert.Equal(t, []AssemblyID{2}, e.Assemblies(), "the larger assembly absorbs the smaller")
	assert.Len(t, e.Members(2), 5)
}

func TestMergePropagatesProperties(t *testing.T) {
	spec := blocks
	spec.PropagateProperties = true
	e, w, _ := newTestEngine(t, spec)

	place(t, w, "A", "block", 0, 0, 0)
	place(t, w, "B", "block", 2, 0, 0)
	settle(t, e)
	require.True(t, e.SetProperty(1, "name", ir.IRString("left")))
	require.True(t, e.SetProperty(2, "name", ir.IRString("right")))
	require.True(t, e.SetProperty(2, "power", ir.IRInt(7)))

	place(t, w, "C", "block", 1, 0, 0)
	settle(t, e)

	require.Equal(t, []AssemblyID{1}, e.Assemblies())
	v, ok := e.Property(1, "name")
	require.True(t, ok)
	assert.Equal(t, ir.IRString("left"), v, "survivor keeps its own value")
	v, ok = e.Property(1, "power")
	require.True(t, ok)
	assert.Equal(t, ir.IRInt(7), v)
}

func TestMergeDropsPropertiesWithoutPropagation(t *testing.T) {
	e, w, _ := newTestEngine(t, blocks)

	place(t, w, "A", "block", 0, 0, 0)
	place(t, w, "B", "block", 2, 0, 0)
	settle(t, e)
	require.True(t, e.SetProperty(2, "power", ir.IRInt(7)))

	place(t, w, "C", "block", 1, 0, 0)
	settle(t, e)

	_, ok := e.Property(1, "power")
	assert.False(t, ok)
}

func TestAnchorCascade(t *testing.T) {
	e, w, log := newTestEngine(t, grid)

	place(t, w, "Y", "block", 1, 0, 0)
	place(t, w, "Z", "block", 2, 0, 0)
	settle(t, e)
	assert.Empty(t, e.Assemblies(), "no assembly without an anchor")
	assert.Empty(t, log.take())

	place(t, w, "X", "core", 0, 0, 0)
	require.NoError(t, e.Tick(context.Background()))

	require.Equal(t, []AssemblyID{1}, e.Assemblies(), "one tick pulls the whole chain in")
	assert.Equal(t, []ir.UnitKey{"X", "Y", "Z"}, e.Members(1))
	assert.Equal(t, ir.UnitKey("X"), e.Anchor(1))
	assert.Equal(t, []string{"added 1 X", "added 1 Y", "added 1 Z"}, log.take())
	require.NoError(t, e.CheckInvariants())
}

func TestAnchorCascadeBothNeighbors(t *testing.T) {
	e, w, _ := newTestEngine(t, grid)

	place(t, w, "Y", "block", -1, 0, 0)
	place(t, w, "Z", "block", 1, 0, 0)
	place(t, w, "X", "core", 0, 0, 0)
	settle(t, e)

	require.Equal(t, []AssemblyID{1}, e.Assemblies())
	assert.Equal(t, ir.UnitKey("X"), e.Members(1)[0])
	assert.ElementsMatch(t, []ir.UnitKey{"X", "Y", "Z"}, e.Members(1))
}

func TestAnchorRemovalCloses(t *testing.T) {
	e, w, log := newTestEngine(t, grid)

	place(t, w, "X", "core", 0, 0, 0)
	place(t, w, "Y", "block", 1, 0, 0)
	place(t, w, "Z", "block", 2, 0, 0)
	settle(t, e)
	require.Equal(t, []AssemblyID{1}, e.Assemblies())
	log.take()

	remove(t, w, "X")
	settle(t, e)

	assert.Equal(t, []string{
		"closed 1",
		"removed 1 Y",
		"removed 1 Z",
		"removed 1 X",
	}, log.take())
	assert.Empty(t, e.Assemblies())
	assert.Equal(t, AssemblyID(0), e.ContainingAssembly("Y", "grid"))

	// A new anchor rebuilds under a fresh id and announces every member.
	place(t, w, "X2", "core", 3, 0, 0)
	settle(t, e)
	assert.Equal(t, []AssemblyID{2}, e.Assemblies())
	assert.Equal(t, []string{"added 2 X2", "added 2 Z", "added 2 Y"}, log.take())
	require.NoError(t, e.CheckInvariants())
}

func TestDestroyedUnitNotifies(t *testing.T) {
	e, w, log := newTestEngine(t, blocks)

	place(t, w, "A", "block", 0, 0, 0)
	place(t, w, "B", "block", 1, 0, 0)
	settle(t, e)
	log.take()

	_, err := w.Destroy("B")
	require.NoError(t, err)
	settle(t, e)

	assert.Equal(t, []string{"removed 1 B", "destroyed 1 B"}, log.take())
}

func TestUnassembledRemovalReportsNoAssembly(t *testing.T) {
	e, w, log := newTestEngine(t, grid)

	place(t, w, "Y", "block", 0, 0, 0)
	settle(t, e)
	require.Empty(t, log.take())
	remove(t, w, "Y")
	settle(t, e)

	assert.Equal(t, []string{"removed 0 Y"}, log.take())
	assert.Empty(t, e.Parts())
}

func TestUnassembledDestroyNotifies(t *testing.T) {
	e, w, log := newTestEngine(t, grid)

	place(t, w, "Y", "block", 0, 0, 0)
	settle(t, e)
	_, err := w.Destroy("Y")
	require.NoError(t, err)
	settle(t, e)

	assert.Equal(t, []string{"removed 0 Y", "destroyed 0 Y"}, log.take())
	assert.Empty(t, e.Assemblies())
}

func TestPartConstructionIsIdempotent(t *testing.T) {
	e, w, log := newTestEngine(t, blocks)

	place(t, w, "A", "block", 0, 0, 0)
	settle(t, e)
	u, ok := w.Unit("A")
	require.True(t, ok)

	e.OnUnitAdded(u)
	e.OnUnitAdded(u)
	settle(t, e)

	assert.Len(t, e.Parts(), 1)
	assert.Equal(t, []string{"added 1 A"}, log.take())
}

func TestQueueConnectivityDeduplicates(t *testing.T) {
	e, w, _ := newTestEngine(t, blocks)

	place(t, w, "A", "block", 0, 0, 0)
	settle(t, e)

	assert.True(t, e.QueueConnectivity("blocks", "A"))
	assert.False(t, e.QueueConnectivity("blocks", "A"))
	assert.True(t, e.QueueConnectivity("blocks", "missing"), "unknown parts are skipped at drain time")
	settle(t, e)
	assert.Equal(t, []AssemblyID{1}, e.Assemblies())
}

func TestOrderIndependence(t *testing.T) {
	layout := map[string]ir.Vec3{
		"a": ir.V(0, 0, 0), "b": ir.V(1, 0, 0), "c": ir.V(2, 0, 0),
		"d": ir.V(5, 0, 0), "e": ir.V(5, 1, 0), "f": ir.V(5, 1, 1),
		"g": ir.V(9, 9, 9),
	}
	orders := [][]string{
		{"a", "b", "c", "d", "e", "f", "g"},
		{"g", "f", "e", "d", "c", "b", "a"},
		{"c", "a", "f", "d", "b", "g", "e"},
	}

	var want []string
	for i, order := range orders {
		for _, perTick := range []bool{false, true} {
			e, w, _ := newTestEngine(t, blocks)
			for _, k := range order {
				p := layout[k]
				place(t, w, k, "block", p.X, p.Y, p.Z)
				if perTick {
					settle(t, e)
				}
			}
			settle(t, e)
			got := partition(e)
			require.NoError(t, e.CheckInvariants())
			if i == 0 && !perTick {
				want = got
				continue
			}
			assert.Equal(t, want, got, "order %v per-tick=%v", order, perTick)
		}
	}
	assert.Equal(t, []string{"blocks:a,b,c", "blocks:d,e,f", "blocks:g"}, want)
}

func TestMultipleDefinitionsAreIndependent(t *testing.T) {
	e, w, _ := newTestEngine(t, blocks, grid)

	place(t, w, "A", "block", 0, 0, 0)
	place(t, w, "B", "block", 1, 0, 0)
	settle(t, e)
	assert.Equal(t, []string{"blocks:A,B"}, partition(e), "grid needs an anchor")

	place(t, w, "X", "core", 2, 0, 0)
	settle(t, e)
	assert.Equal(t, []string{"blocks:A,B", "grid:A,B,X"}, partition(e))
	assert.Len(t, e.Parts(), 5)
}

func TestConnectionRulesLimitMembership(t *testing.T) {
	pipes := ir.DefinitionSpec{
		Name:    "pipes",
		Allowed: []string{"pipe"},
		Connections: map[string][]ir.ConnectionRule{
			"pipe": {
				{Offset: ir.V(0, 0, 1), Allow: []string{"pipe"}},
				{Offset: ir.V(0, 0, -1), Allow: []string{"pipe"}},
			},
		},
	}
	e, w, _ := newTestEngine(t, pipes)

	place(t, w, "p1", "pipe", 0, 0, 0)
	place(t, w, "p2", "pipe", 0, 0, 1)
	place(t, w, "side", "pipe", 1, 0, 0)
	settle(t, e)

	assert.Equal(t, []string{"pipes:p1,p2", "pipes:side"}, partition(e))
	assert.Equal(t, []ir.UnitKey{"p2"}, e.ConnectedNeighbors("p1", "pipes", true))
	assert.Equal(t, []ir.UnitKey{"p2"}, e.ConnectedNeighbors("p1", "pipes", false))
	assert.Nil(t, e.ConnectedNeighbors("p1", "nope", false))
}

func TestLargeClusterCascade(t *testing.T) {
	if testing.Short() {
		t.Skip("large cluster")
	}
	e, w, _ := newTestEngine(t, grid)

	const n = 5000
	for i := 1; i <= n; i++ {
		place(t, w, fmt.Sprintf("b%05d", i), "block", i, 0, 0)
	}
	settle(t, e)
	require.Empty(t, e.Assemblies())

	place(t, w, "core", "core", 0, 0, 0)
	require.NoError(t, e.Tick(context.Background()))

	require.Equal(t, []AssemblyID{1}, e.Assemblies())
	assert.Len(t, e.Members(1), n+1)
	require.NoError(t, e.CheckInvariants())

	// Cutting the chain in the middle keeps the anchored half, even on a
	// tie for size.
	remove(t, w, fmt.Sprintf("b%05d", n/2))
	settle(t, e)
	require.NoError(t, e.CheckInvariants())
	assert.Equal(t, []AssemblyID{1}, e.Assemblies())
	assert.Equal(t, ir.UnitKey("core"), e.Anchor(1))
	assert.Len(t, e.Members(1), n/2)
}

func TestRandomEditsMatchComponents(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	e, w, _ := newTestEngine(t, blocks)
	def := e.Definition("blocks")

	occupied := make(map[ir.Vec3]string)
	next := 0
	for step := 0; step < 400; step++ {
		pos := ir.V(rng.IntN(5), rng.IntN(5), rng.IntN(2))
		if key, ok := occupied[pos]; ok {
			if rng.IntN(3) == 0 {
				_, err := w.Destroy(ir.UnitKey(key))
				require.NoError(t, err)
			} else {
				remove(t, w, key)
			}
			delete(occupied, pos)
		} else {
			next++
			key := fmt.Sprintf("u%03d", next)
			place(t, w, key, "block", pos.X, pos.Y, pos.Z)
			occupied[pos] = key
		}

		if rng.IntN(4) == 0 {
			settle(t, e)
			require.NoError(t, e.CheckInvariants(), "step %d", step)
			require.Equal(t, components(w, def, "c1"), partition(e), "step %d", step)
		}
	}
	settle(t, e)
	require.NoError(t, e.CheckInvariants())
	assert.Equal(t, components(w, def, "c1"), partition(e))
}

func TestRecreateAssembly(t *testing.T) {
	e, w, log := newTestEngine(t, blocks)

	place(t, w, "A", "block", 0, 0, 0)
	place(t, w, "B", "block", 1, 0, 0)
	settle(t, e)
	log.take()

	assert.False(t, e.RecreateAssembly(99))
	require.True(t, e.RecreateAssembly(1))
	assert.Equal(t, []string{"closed 1", "removed 1 A", "removed 1 B"}, log.take())

	settle(t, e)
	assert.Equal(t, []AssemblyID{2}, e.Assemblies())
	assert.Equal(t, []string{"added 2 A", "added 2 B"}, log.take())
}

func TestRecreateConnections(t *testing.T) {
	e, w, log := newTestEngine(t, blocks)

	place(t, w, "A", "block", 0, 0, 0)
	place(t, w, "B", "block", 1, 0, 0)
	place(t, w, "C", "block", 2, 0, 0)
	settle(t, e)
	log.take()

	assert.False(t, e.RecreateConnections("nope", "blocks"))
	require.True(t, e.RecreateConnections("C", "blocks"))
	assert.Equal(t, []string{"removed 1 C"}, log.take())
	assert.Empty(t, e.ConnectedNeighbors("C", "blocks", true))

	settle(t, e)
	assert.Equal(t, []string{"added 1 C"}, log.take())
	assert.Equal(t, []ir.UnitKey{"A", "B", "C"}, e.Members(1))
	require.NoError(t, e.CheckInvariants())
}

func TestProperties(t *testing.T) {
	e, w, _ := newTestEngine(t, blocks)
	place(t, w, "A", "block", 0, 0, 0)
	settle(t, e)

	assert.True(t, e.SetProperty(1, "name", ir.IRString("tank")))
	assert.True(t, e.SetProperty(1, "level", ir.IRInt(3)))
	assert.True(t, e.SetProperty(1, "on", ir.IRBool(true)))
	assert.True(t, e.SetProperty(1, "blob", ir.IRBytes{1, 2}))
	assert.True(t, e.SetProperty(1, "ratio", ir.IRFloat(0.75)))
	assert.False(t, e.SetProperty(1, "list", ir.IRArray{ir.IRInt(1)}), "arrays are not a property kind")
	assert.False(t, e.SetProperty(1, "bad", ir.IRFloat(math.NaN())), "non-finite floats are refused")
	assert.False(t, e.SetProperty(42, "name", ir.IRString("x")))

	assert.Equal(t, []string{"blob", "level", "name", "on", "ratio"}, e.PropertyKeys(1))

	assert.True(t, e.SetProperty(1, "level", ir.IRNull{}))
	_, ok := e.Property(1, "level")
	assert.False(t, ok)
	assert.Nil(t, e.PropertyKeys(42))
}

func TestDuplicateAssemblyIDIsRejected(t *testing.T) {
	e, w, _ := newTestEngine(t, blocks)
	place(t, w, "A", "block", 0, 0, 0)
	place(t, w, "Z", "block", 9, 9, 9)
	settle(t, e)

	e.mu.Lock()
	p := e.lookupPart("blocks", "Z")
	require.NotNil(t, p)
	before := e.assemblies[1]
	_, err := e.newAssemblyWithID(1, p)
	after := e.assemblies[1]
	e.mu.Unlock()

	require.Error(t, err)
	assert.True(t, IsDuplicateAssemblyError(err))
	assert.ErrorIs(t, err, ErrDuplicateAssembly)
	assert.Same(t, before, after, "registry entry must not be overwritten")
}

// panicWorld panics on neighbor lookups for one unit.
type panicWorld struct {
	*world.World
	bad ir.UnitKey
}

func (p panicWorld) Neighbors(key ir.UnitKey) []ir.Unit {
	if key == p.bad {
		panic("neighbor lookup exploded")
	}
	return p.World.Neighbors(key)
}

func TestPanicInCheckIsContained(t *testing.T) {
	w := world.New()
	require.NoError(t, w.AddContainer("c1", true))
	e := New(panicWorld{World: w, bad: "boom"}, WithSaveEvery(0))
	w.Subscribe(e)
	_, err := e.RegisterDefinition(context.Background(), blocks)
	require.NoError(t, err)

	place(t, w, "boom", "block", 0, 0, 0)
	place(t, w, "ok", "block", 5, 5, 5)
	require.NoError(t, e.Tick(context.Background()))

	assert.Equal(t, AssemblyID(0), e.ContainingAssembly("boom", "blocks"))
	assert.NotZero(t, e.ContainingAssembly("ok", "blocks"), "other checks still run")
	require.NoError(t, e.CheckInvariants())
}

func TestContainerRemovedDropsEverything(t *testing.T) {
	e, w, log := newTestEngine(t, blocks)
	place(t, w, "A", "block", 0, 0, 0)
	place(t, w, "B", "block", 1, 0, 0)
	settle(t, e)
	log.take()

	require.NoError(t, w.RemoveContainer("c1"))
	settle(t, e)

	assert.Equal(t, []string{"closed 1", "removed 1 A", "removed 1 B"}, log.take())
	assert.Empty(t, e.Parts())
	assert.Empty(t, e.Assemblies())
}

func TestContainerSplitCarriesAssemblies(t *testing.T) {
	e, w, log := newTestEngine(t, blocks)
	for i, k := range []string{"A", "B", "C", "D"} {
		place(t, w, k, "block", i, 0, 0)
	}
	settle(t, e)
	require.True(t, e.SetProperty(1, "name", ir.IRString("hull")))
	log.take()

	require.NoError(t, w.Split("c1", "c2", []ir.UnitKey{"C", "D"}, true))
	settle(t, e)

	assert.Equal(t, []string{"blocks:A,B", "blocks:C,D"}, partition(e))
	assert.Equal(t, "c1", e.Container(1))
	moved := e.ContainingAssembly("C", "blocks")
	require.NotZero(t, moved)
	assert.Equal(t, "c2", e.Container(moved))
	v, ok := e.Property(moved, "name")
	require.True(t, ok, "properties travel with the split")
	assert.Equal(t, ir.IRString("hull"), v)
	require.NoError(t, e.CheckInvariants())

	events := log.take()
	assert.Contains(t, events, "removed 1 C")
	assert.Contains(t, events, fmt.Sprintf("added %d C", moved))
}

func TestTickCheckpoints(t *testing.T) {
	store := newMemRecords()
	e, w, _ := newTestEngineWith(t, []EngineOption{WithRecordStore(store), WithSaveEvery(2)}, blocks)
	place(t, w, "A", "block", 0, 0, 0)

	require.NoError(t, e.Tick(context.Background()))
	assert.Equal(t, 0, store.saves)
	require.NoError(t, e.Tick(context.Background()))
	assert.Equal(t, 1, store.saves)

	rec := store.saved["c1"]
	assert.Equal(t, ir.RecordVersion, rec.Version)
	assert.Equal(t, "test-session", rec.Session)
	assert.Equal(t, int64(2), rec.Tick)
	require.Len(t, rec.Assemblies, 1)
	assert.Equal(t, []ir.Vec3{ir.V(0, 0, 0)}, rec.Assemblies[0].Positions)
}

func TestAnchoredSplitKeepsAnchorSide(t *testing.T) {
	e, w, log := newTestEngine(t, grid)

	place(t, w, "X", "core", 0, 0, 0)
	place(t, w, "Y", "block", 1, 0, 0)
	place(t, w, "Z", "block", 2, 0, 0)
	place(t, w, "W", "block", 3, 0, 0)
	settle(t, e)
	log.take()

	remove(t, w, "Y")
	settle(t, e)

	assert.Equal(t, []ir.UnitKey{"X"}, e.Members(1), "the smaller anchored side keeps the id")
	assert.Equal(t, AssemblyID(0), e.ContainingAssembly("Z", "grid"))
	assert.Equal(t, []string{"removed 1 Z", "removed 1 W", "removed 1 Y"}, log.take())
	require.NoError(t, e.CheckInvariants())
}
