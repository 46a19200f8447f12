package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/assemblies/internal/ir"
)

// Scenario is one scripted run: definitions to register, containers to
// start with, structural steps to apply, and assertions on the outcome.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Definitions lists CUE files holding definition sets, relative to the
	// scenario's base path.
	Definitions []string `yaml:"definitions"`

	// Containers are created, empty, before the first step.
	Containers []ContainerStep `yaml:"containers,omitempty"`

	// Steps are applied in order. Structural work is only processed by
	// settle and tick steps, and by the final settle before assertions.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and final engine state.
	Assertions []Assertion `yaml:"assertions"`

	// Session is the fixed session token. Empty means
	// testutil.DefaultSession.
	Session string `yaml:"session,omitempty"`
}

// ContainerStep declares a container.
type ContainerStep struct {
	ID       string `yaml:"id"`
	Physical *bool  `yaml:"physical,omitempty"`
}

// IsPhysical defaults to true.
func (c ContainerStep) IsPhysical() bool {
	return c.Physical == nil || *c.Physical
}

// Step is one action. Exactly one field is set.
type Step struct {
	Place               *PlaceStep      `yaml:"place,omitempty"`
	Line                *LineStep       `yaml:"line,omitempty"`
	Box                 *BoxStep        `yaml:"box,omitempty"`
	Remove              string          `yaml:"remove,omitempty"`
	Destroy             string          `yaml:"destroy,omitempty"`
	Damage              *DamageStep     `yaml:"damage,omitempty"`
	Split               *SplitStep      `yaml:"split,omitempty"`
	AddContainer        *ContainerStep  `yaml:"add_container,omitempty"`
	RemoveContainer     string          `yaml:"remove_container,omitempty"`
	Reload              string          `yaml:"reload,omitempty"`
	Checkpoint          bool            `yaml:"checkpoint,omitempty"`
	Settle              bool            `yaml:"settle,omitempty"`
	Tick                int             `yaml:"tick,omitempty"`
	SetProperty         *PropertyStep   `yaml:"set_property,omitempty"`
	RecreateAssembly    int64           `yaml:"recreate_assembly,omitempty"`
	RecreateConnections *ConnectionStep `yaml:"recreate_connections,omitempty"`
	Unregister          string          `yaml:"unregister,omitempty"`
}

// kind names the single populated field, or "" when none or several are.
func (s Step) kind() string {
	var kinds []string
	add := func(set bool, name string) {
		if set {
			kinds = append(kinds, name)
		}
	}
	add(s.Place != nil, "place")
	add(s.Line != nil, "line")
	add(s.Box != nil, "box")
	add(s.Remove != "", "remove")
	add(s.Destroy != "", "destroy")
	add(s.Damage != nil, "damage")
	add(s.Split != nil, "split")
	add(s.AddContainer != nil, "add_container")
	add(s.RemoveContainer != "", "remove_container")
	add(s.Reload != "", "reload")
	add(s.Checkpoint, "checkpoint")
	add(s.Settle, "settle")
	add(s.Tick > 0, "tick")
	add(s.SetProperty != nil, "set_property")
	add(s.RecreateAssembly > 0, "recreate_assembly")
	add(s.RecreateConnections != nil, "recreate_connections")
	add(s.Unregister != "", "unregister")
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// PlaceStep places one unit. Container defaults to the first declared
// container.
type PlaceStep struct {
	Key       string `yaml:"key"`
	Type      string `yaml:"type"`
	Container string `yaml:"container,omitempty"`
	At        []int  `yaml:"at"`
	Size      []int  `yaml:"size,omitempty"`
	Integrity int64  `yaml:"integrity,omitempty"`
	Facing    string `yaml:"facing,omitempty"`
	Up        string `yaml:"up,omitempty"`
}

// LineStep places Count unit-sized parts along Dir. Keys are
// "<prefix>@x,y,z".
type LineStep struct {
	Type      string `yaml:"type"`
	Prefix    string `yaml:"prefix"`
	Container string `yaml:"container,omitempty"`
	From      []int  `yaml:"from"`
	Dir       string `yaml:"dir"`
	Count     int    `yaml:"count"`
}

// BoxStep fills the inclusive box Lo..Hi.
type BoxStep struct {
	Type      string `yaml:"type"`
	Prefix    string `yaml:"prefix"`
	Container string `yaml:"container,omitempty"`
	Lo        []int  `yaml:"lo"`
	Hi        []int  `yaml:"hi"`
}

// DamageStep lowers a unit's integrity by Amount.
type DamageStep struct {
	Key    string `yaml:"key"`
	Amount int64  `yaml:"amount"`
}

// SplitStep moves Keys from one container into a new one.
type SplitStep struct {
	From     string   `yaml:"from"`
	To       string   `yaml:"to"`
	Keys     []string `yaml:"keys"`
	Physical *bool    `yaml:"physical,omitempty"`
}

// PropertyStep sets an assembly property. Value must be a string, a
// number or a bool.
type PropertyStep struct {
	Assembly int64 `yaml:"assembly"`
	Key      string `yaml:"key"`
	Value    any    `yaml:"value"`
}

// ConnectionStep names one part.
type ConnectionStep struct {
	Unit       string `yaml:"unit"`
	Definition string `yaml:"definition"`
}

// Assertion validates the trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Expect lists partition entries ("definition:key,key") for partition.
	Expect []string `yaml:"expect,omitempty"`

	// Events lists "kind unit" or "kind #id" entries for event_order.
	Events []string `yaml:"events,omitempty"`

	// Kind, Unit, Definition and Assembly filter events for event_count
	// and event_contains. Definition also filters assembly_count.
	Kind       string `yaml:"kind,omitempty"`
	Unit       string `yaml:"unit,omitempty"`
	Definition string `yaml:"definition,omitempty"`
	Assembly   int64  `yaml:"assembly,omitempty"`

	// Count is the expected number of matches.
	Count int `yaml:"count,omitempty"`

	// Key and Value describe an assembly property for property.
	Key   string `yaml:"key,omitempty"`
	Value any    `yaml:"value,omitempty"`
}

// Assertion type constants.
const (
	AssertPartition     = "partition"
	AssertAssemblyCount = "assembly_count"
	AssertEventCount    = "event_count"
	AssertEventContains = "event_contains"
	AssertEventOrder    = "event_order"
	AssertProperty      = "property"
	AssertInvariants    = "invariants"
)

// LoadScenario reads and parses a scenario YAML file, resolving
// definition paths relative to the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving definition paths relative to basePath. Unknown fields are
// rejected so typos fail loudly.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	scenario, err := ParseScenario(data, basePath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML held in memory.
func ParseScenario(data []byte, basePath string) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i, p := range scenario.Definitions {
		if !filepath.IsAbs(p) && basePath != "" {
			scenario.Definitions[i] = filepath.Join(basePath, p)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Definitions) == 0 {
		return fmt.Errorf("definitions list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for _, p := range s.Definitions {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return fmt.Errorf("definition file not found: %s", p)
		}
	}
	for i, c := range s.Containers {
		if c.ID == "" {
			return fmt.Errorf("containers[%d]: id is required", i)
		}
	}
	for i, step := range s.Steps {
		if err := validateStep(i, step, len(s.Containers) > 0); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, s Step, haveDefault bool) error {
	kind := s.kind()
	if kind == "" {
		return fmt.Errorf("steps[%d]: exactly one action is required", index)
	}
	needContainer := func(c string) error {
		if c == "" && !haveDefault {
			return fmt.Errorf("steps[%d]: %s needs a container (none declared)", index, kind)
		}
		return nil
	}
	switch kind {
	case "place":
		if s.Place.Key == "" || s.Place.Type == "" {
			return fmt.Errorf("steps[%d]: place needs key and type", index)
		}
		if _, err := vec(s.Place.At, "at"); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
		if s.Place.Size != nil {
			if _, err := vec(s.Place.Size, "size"); err != nil {
				return fmt.Errorf("steps[%d]: %w", index, err)
			}
		}
		return needContainer(s.Place.Container)
	case "line":
		if s.Line.Type == "" || s.Line.Count <= 0 {
			return fmt.Errorf("steps[%d]: line needs type and a positive count", index)
		}
		if _, err := ir.ParseDirection(s.Line.Dir); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
		if _, err := vec(s.Line.From, "from"); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
		return needContainer(s.Line.Container)
	case "box":
		if s.Box.Type == "" {
			return fmt.Errorf("steps[%d]: box needs type", index)
		}
		if _, err := vec(s.Box.Lo, "lo"); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
		if _, err := vec(s.Box.Hi, "hi"); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
		return needContainer(s.Box.Container)
	case "damage":
		if s.Damage.Key == "" {
			return fmt.Errorf("steps[%d]: damage needs key", index)
		}
	case "split":
		if s.Split.From == "" || s.Split.To == "" || len(s.Split.Keys) == 0 {
			return fmt.Errorf("steps[%d]: split needs from, to and keys", index)
		}
	case "add_container":
		if s.AddContainer.ID == "" {
			return fmt.Errorf("steps[%d]: add_container needs id", index)
		}
	case "set_property":
		if s.SetProperty.Key == "" || s.SetProperty.Assembly <= 0 {
			return fmt.Errorf("steps[%d]: set_property needs assembly and key", index)
		}
		if _, err := toIRValue(s.SetProperty.Value); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
	case "recreate_connections":
		if s.RecreateConnections.Unit == "" || s.RecreateConnections.Definition == "" {
			return fmt.Errorf("steps[%d]: recreate_connections needs unit and definition", index)
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	switch a.Type {
	case AssertPartition:
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for partition (use [] for none)", index)
		}
	case AssertAssemblyCount, AssertEventCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertEventContains:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for event_contains", index)
		}
	case AssertEventOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for event_order", index)
		}
	case AssertProperty:
		if a.Assembly <= 0 || a.Key == "" {
			return fmt.Errorf("assertions[%d]: assembly and key are required for property", index)
		}
	case AssertInvariants:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// vec converts a YAML coordinate list.
func vec(xs []int, field string) (ir.Vec3, error) {
	if len(xs) != 3 {
		return ir.Vec3{}, fmt.Errorf("%s must have 3 coordinates, got %d", field, len(xs))
	}
	return ir.V(xs[0], xs[1], xs[2]), nil
}

// toIRValue converts a YAML scalar to a property value. Nulls and
// non-finite floats are refused.
func toIRValue(v any) (ir.IRValue, error) {
	switch val := v.(type) {
	case string:
		return ir.IRString(val), nil
	case int:
		return ir.IRInt(int64(val)), nil
	case int64:
		return ir.IRInt(val), nil
	case float64:
		if _, ok := ir.KindOf(ir.IRFloat(val)); !ok {
			return nil, fmt.Errorf("unsupported property value %v", val)
		}
		return ir.IRFloat(val), nil
	case bool:
		return ir.IRBool(val), nil
	case nil:
		return nil, fmt.Errorf("null property values are not allowed")
	default:
		return nil, fmt.Errorf("unsupported property value %v (%T)", v, v)
	}
}
