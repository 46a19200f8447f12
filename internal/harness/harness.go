package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/assemblies/internal/compiler"
	"github.com/roach88/assemblies/internal/engine"
	"github.com/roach88/assemblies/internal/ir"
	"github.com/roach88/assemblies/internal/persist"
	"github.com/roach88/assemblies/internal/store"
	"github.com/roach88/assemblies/internal/testutil"
	"github.com/roach88/assemblies/internal/world"
)

// MaxSettleTicks bounds a settle step. A scenario that still has work
// queued after this many ticks fails.
const MaxSettleTicks = 1000

// Harness drives one scenario against a real world, engine and in-memory
// store.
type Harness struct {
	store  *store.Store
	world  *world.World
	engine *engine.Engine
	logger *slog.Logger

	defaultContainer string
	ticks            int64
}

// Option configures a scenario run.
type Option func(*runConfig)

type runConfig struct {
	dbPath   string
	sessions engine.SessionGenerator
}

// WithDatabase records the run into a SQLite file instead of memory.
func WithDatabase(path string) Option {
	return func(c *runConfig) {
		c.dbPath = path
	}
}

// WithSessionGenerator replaces the scenario's fixed session token.
// Needed when several runs share one database file.
func WithSessionGenerator(g engine.SessionGenerator) Option {
	return func(c *runConfig) {
		c.sessions = g
	}
}

// Run executes a scenario and returns the result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	return RunContext(context.Background(), scenario, opts...)
}

// RunContext executes a scenario.
//
// By default each run gets a fresh in-memory database, a fixed session
// token and a deterministic store clock, so the same scenario always
// records the same trace. After the last step the engine is settled before assertions are
// evaluated.
func RunContext(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{
		dbPath:   ":memory:",
		sessions: testutil.NewFixedSessionGenerator(scenario.Session),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	set, err := loadDefinitions(scenario.Definitions)
	if err != nil {
		return nil, err
	}

	clock := testutil.NewDeterministicClock()
	st, err := store.Open(cfg.dbPath, store.WithClock(clock.Now))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	w := world.New()
	eng := engine.New(w,
		engine.WithSessionGenerator(cfg.sessions),
		engine.WithRecordStore(persist.NewSerializer(st)),
		engine.WithRecorder(st),
		engine.WithSaveEvery(0),
		engine.WithTickInterval(0),
	)
	w.Subscribe(eng)

	if _, err := eng.RegisterDefinition(ctx, set.Definitions...); err != nil {
		return nil, fmt.Errorf("failed to register definitions: %w", err)
	}

	h := &Harness{
		store:  st,
		world:  w,
		engine: eng,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, c := range scenario.Containers {
		if err := w.AddContainer(c.ID, c.IsPhysical()); err != nil {
			return nil, fmt.Errorf("container %s: %w", c.ID, err)
		}
	}
	if len(scenario.Containers) > 0 {
		h.defaultContainer = scenario.Containers[0].ID
	}

	for i, step := range scenario.Steps {
		if err := h.apply(ctx, step); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.kind(), err)
		}
		h.logger.Info("step applied", "step", i, "kind", step.kind())
	}
	if err := h.settle(ctx); err != nil {
		return nil, err
	}

	result := NewResult()
	result.Ticks = h.ticks
	result.Partition = Partition(eng)
	result.Trace, err = st.ReadEvents(ctx, store.EventFilter{Session: eng.Session()})
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}

	actx := &AssertionContext{Engine: eng, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// loadDefinitions compiles and validates every definition file.
func loadDefinitions(paths []string) (*compiler.DefinitionSet, error) {
	set := &compiler.DefinitionSet{}
	for _, p := range paths {
		one, err := compiler.LoadFile(p)
		if err != nil {
			return nil, err
		}
		set.Merge(one)
	}
	for _, e := range compiler.ValidateSet(set.Definitions, set.Catalog) {
		if !e.IsWarning() {
			return nil, fmt.Errorf("invalid definitions: %w", e)
		}
	}
	return set, nil
}

func (h *Harness) container(c string) string {
	if c == "" {
		return h.defaultContainer
	}
	return c
}

func (h *Harness) apply(ctx context.Context, s Step) error {
	switch s.kind() {
	case "place":
		return h.place(s.Place)
	case "line":
		from, _ := vec(s.Line.From, "from")
		dir, _ := ir.ParseDirection(s.Line.Dir)
		return h.placeAll(testutil.Line(h.container(s.Line.Container), s.Line.Type, prefix(s.Line.Prefix, s.Line.Type), from, dir, s.Line.Count))
	case "box":
		lo, _ := vec(s.Box.Lo, "lo")
		hi, _ := vec(s.Box.Hi, "hi")
		return h.placeAll(testutil.Box(h.container(s.Box.Container), s.Box.Type, prefix(s.Box.Prefix, s.Box.Type), lo, hi))
	case "remove":
		_, err := h.world.Remove(ir.UnitKey(s.Remove))
		return err
	case "destroy":
		_, err := h.world.Destroy(ir.UnitKey(s.Destroy))
		return err
	case "damage":
		_, err := h.world.Damage(ir.UnitKey(s.Damage.Key), s.Damage.Amount)
		return err
	case "split":
		keys := make([]ir.UnitKey, len(s.Split.Keys))
		for i, k := range s.Split.Keys {
			keys[i] = ir.UnitKey(k)
		}
		physical := s.Split.Physical == nil || *s.Split.Physical
		return h.world.Split(s.Split.From, s.Split.To, keys, physical)
	case "add_container":
		return h.world.AddContainer(s.AddContainer.ID, s.AddContainer.IsPhysical())
	case "remove_container":
		return h.world.RemoveContainer(s.RemoveContainer)
	case "reload":
		return h.reload(ctx, s.Reload)
	case "checkpoint":
		return h.engine.Checkpoint(ctx)
	case "settle":
		return h.settle(ctx)
	case "tick":
		for i := 0; i < s.Tick; i++ {
			if err := h.tick(ctx); err != nil {
				return err
			}
		}
		return nil
	case "set_property":
		v, err := toIRValue(s.SetProperty.Value)
		if err != nil {
			return err
		}
		if !h.engine.SetProperty(engine.AssemblyID(s.SetProperty.Assembly), s.SetProperty.Key, v) {
			return fmt.Errorf("assembly %d: property %q not set", s.SetProperty.Assembly, s.SetProperty.Key)
		}
		return nil
	case "recreate_assembly":
		if !h.engine.RecreateAssembly(engine.AssemblyID(s.RecreateAssembly)) {
			return fmt.Errorf("assembly %d not found", s.RecreateAssembly)
		}
		return nil
	case "recreate_connections":
		rc := s.RecreateConnections
		if !h.engine.RecreateConnections(ir.UnitKey(rc.Unit), rc.Definition) {
			return fmt.Errorf("no %s part for %s", rc.Definition, rc.Unit)
		}
		return nil
	case "unregister":
		if !h.engine.UnregisterDefinition(s.Unregister) {
			return fmt.Errorf("definition %s not registered", s.Unregister)
		}
		return nil
	}
	return fmt.Errorf("unknown step")
}

func prefix(p, typ string) string {
	if p == "" {
		return typ
	}
	return p
}

func (h *Harness) place(p *PlaceStep) error {
	at, err := vec(p.At, "at")
	if err != nil {
		return err
	}
	u := ir.Unit{
		Key:       ir.UnitKey(p.Key),
		Type:      p.Type,
		Container: h.container(p.Container),
		Position:  at,
		Integrity: p.Integrity,
	}
	if p.Size != nil {
		if u.Size, err = vec(p.Size, "size"); err != nil {
			return err
		}
	}
	if p.Facing != "" {
		if u.Orientation.Forward, err = ir.ParseDirection(p.Facing); err != nil {
			return err
		}
	}
	if p.Up != "" {
		if u.Orientation.Up, err = ir.ParseDirection(p.Up); err != nil {
			return err
		}
	}
	return h.world.Place(u)
}

func (h *Harness) placeAll(units []ir.Unit) error {
	for _, u := range units {
		if err := h.world.Place(u); err != nil {
			return err
		}
	}
	return nil
}

// reload checkpoints a container, removes it and streams its units back
// in, as when a structure is unloaded and loaded again.
func (h *Harness) reload(ctx context.Context, id string) error {
	var info ir.Container
	found := false
	for _, c := range h.world.Containers() {
		if c.ID == id {
			info, found = c, true
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", world.ErrUnknownContainer, id)
	}
	if err := h.settle(ctx); err != nil {
		return err
	}
	if err := h.engine.Checkpoint(ctx); err != nil {
		return err
	}
	units := h.world.Units(id)
	if err := h.world.RemoveContainer(id); err != nil {
		return err
	}
	return h.world.Load(info, units)
}

func (h *Harness) tick(ctx context.Context) error {
	h.ticks++
	return h.engine.Tick(ctx)
}

// settle ticks until nothing is queued.
func (h *Harness) settle(ctx context.Context) error {
	for i := 0; i < MaxSettleTicks; i++ {
		if events, checks := h.engine.Pending(); events == 0 && checks == 0 {
			return nil
		}
		if err := h.tick(ctx); err != nil {
			return err
		}
	}
	return fmt.Errorf("engine did not settle within %d ticks", MaxSettleTicks)
}

// Partition describes every live assembly as "definition:key,key" with
// sorted keys, the entries themselves sorted.
func Partition(e *engine.Engine) []string {
	out := []string{}
	for _, id := range e.Assemblies() {
		members := e.Members(id)
		keys := make([]string, len(members))
		for i, k := range members {
			keys[i] = string(k)
		}
		slices.Sort(keys)
		out = append(out, e.AssemblyDefinition(id)+":"+strings.Join(keys, ","))
	}
	slices.Sort(out)
	return out
}
