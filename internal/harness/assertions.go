package harness

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/assemblies/internal/engine"
	"github.com/roach88/assemblies/internal/ir"
)

// AssertionContext gives assertions access to the final engine state.
type AssertionContext struct {
	Engine *engine.Engine
	Ctx    context.Context
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []ir.AssemblyEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] tick %d %s %s\n", ev.Seq, ev.Tick, ev.Definition, DescribeEvent(ev))
		}
	}
	return buf.String()
}

// DescribeEvent renders an event the way event_order entries are written:
// "part_added A #1", or "assembly_closed #1".
func DescribeEvent(ev ir.AssemblyEvent) string {
	if ev.Unit == "" {
		return fmt.Sprintf("%s #%d", ev.Kind, ev.AssemblyID)
	}
	return fmt.Sprintf("%s %s #%d", ev.Kind, ev.Unit, ev.AssemblyID)
}

// eventPattern is a parsed event_order entry. Zero fields match anything.
type eventPattern struct {
	kind     ir.EventKind
	unit     ir.UnitKey
	assembly int64
}

func parseEventPattern(s string) (eventPattern, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return eventPattern{}, fmt.Errorf("empty event pattern")
	}
	p := eventPattern{kind: ir.EventKind(fields[0])}
	for _, f := range fields[1:] {
		if id, ok := strings.CutPrefix(f, "#"); ok {
			n, err := strconv.ParseInt(id, 10, 64)
			if err != nil {
				return eventPattern{}, fmt.Errorf("bad assembly id in %q", s)
			}
			p.assembly = n
			continue
		}
		p.unit = ir.UnitKey(f)
	}
	return p, nil
}

func (p eventPattern) matches(ev ir.AssemblyEvent) bool {
	return ev.Kind == p.kind &&
		(p.unit == "" || ev.Unit == p.unit) &&
		(p.assembly == 0 || ev.AssemblyID == p.assembly)
}

// matchesFilter applies the kind/unit/definition/assembly filter of an
// event_count or event_contains assertion.
func matchesFilter(ev ir.AssemblyEvent, a Assertion) bool {
	return (a.Kind == "" || string(ev.Kind) == a.Kind) &&
		(a.Unit == "" || string(ev.Unit) == a.Unit) &&
		(a.Definition == "" || ev.Definition == a.Definition) &&
		(a.Assembly == 0 || ev.AssemblyID == a.Assembly)
}

func filterDesc(a Assertion) string {
	var parts []string
	if a.Kind != "" {
		parts = append(parts, "kind="+a.Kind)
	}
	if a.Unit != "" {
		parts = append(parts, "unit="+a.Unit)
	}
	if a.Definition != "" {
		parts = append(parts, "definition="+a.Definition)
	}
	if a.Assembly != 0 {
		parts = append(parts, fmt.Sprintf("assembly=%d", a.Assembly))
	}
	if len(parts) == 0 {
		return "any event"
	}
	return strings.Join(parts, " ")
}

func assertPartition(result *Result, a Assertion) error {
	want := slices.Clone(a.Expect)
	slices.Sort(want)
	if want == nil {
		want = []string{}
	}
	if diff := cmp.Diff(want, result.Partition); diff != "" {
		return &AssertionError{
			Type:     AssertPartition,
			Expected: fmt.Sprintf("%v", want),
			Actual:   fmt.Sprintf("%v (-want +got):\n%s", result.Partition, diff),
		}
	}
	return nil
}

func assertAssemblyCount(e *engine.Engine, a Assertion) error {
	count := 0
	for _, id := range e.Assemblies() {
		if a.Definition == "" || e.AssemblyDefinition(id) == a.Definition {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertAssemblyCount,
			Expected: fmt.Sprintf("%d assemblies", a.Count),
			Actual:   fmt.Sprintf("%d assemblies", count),
		}
	}
	return nil
}

func assertEventCount(trace []ir.AssemblyEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if matchesFilter(ev, a) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d of %s", a.Count, filterDesc(a)),
			Actual:   fmt.Sprintf("%d", count),
			Trace:    trace,
		}
	}
	return nil
}

func assertEventContains(trace []ir.AssemblyEvent, a Assertion) error {
	for _, ev := range trace {
		if matchesFilter(ev, a) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertEventContains,
		Expected: filterDesc(a),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertEventOrder checks that the patterns match events in order.
// Unmatched events may appear in between.
func assertEventOrder(trace []ir.AssemblyEvent, a Assertion) error {
	next := 0
	for i, entry := range a.Events {
		p, err := parseEventPattern(entry)
		if err != nil {
			return err
		}
		found := false
		for ; next < len(trace); next++ {
			if p.matches(trace[next]) {
				found = true
				next++
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertEventOrder,
				Expected: fmt.Sprintf("events in order: %v", a.Events),
				Actual:   fmt.Sprintf("no %q after entry %d", entry, i),
				Trace:    trace,
			}
		}
	}
	return nil
}

func assertProperty(e *engine.Engine, a Assertion) error {
	want, err := toIRValue(a.Value)
	if err != nil {
		return err
	}
	got, ok := e.Property(engine.AssemblyID(a.Assembly), a.Key)
	if !ok {
		return &AssertionError{
			Type:     AssertProperty,
			Expected: fmt.Sprintf("assembly %d %s = %v", a.Assembly, a.Key, want),
			Actual:   "not set",
		}
	}
	if !cmp.Equal(want, got) {
		return &AssertionError{
			Type:     AssertProperty,
			Expected: fmt.Sprintf("assembly %d %s = %v", a.Assembly, a.Key, want),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

// EvaluateAssertions runs every assertion and returns the failure
// messages. All assertions run; none stops the others.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertPartition:
			err = assertPartition(result, a)
		case AssertAssemblyCount:
			err = assertAssemblyCount(actx.Engine, a)
		case AssertEventCount:
			err = assertEventCount(result.Trace, a)
		case AssertEventContains:
			err = assertEventContains(result.Trace, a)
		case AssertEventOrder:
			err = assertEventOrder(result.Trace, a)
		case AssertProperty:
			err = assertProperty(actx.Engine, a)
		case AssertInvariants:
			err = actx.Engine.CheckInvariants()
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}
