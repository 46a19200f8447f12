package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/assemblies/internal/ir"
)

// RuleWarning reports a connection rule that can never take effect, or a
// part type that can never reach an anchor.
//
// These are warnings, not errors: a definition set may be shared across
// catalogs where some types are simply absent.
type RuleWarning struct {
	Path    []string `json:"path"`
	Message string   `json:"message"`
	Level   string   `json:"level"`
}

// AnalyzeRules performs static analysis of a definition's connection rules
// at the type level (offsets and orientations are ignored).
//
//  1. A rule on A admitting B is one-sided when B declares rules and none
//     of them admit A; the connection needs both sides.
//  2. With an anchor, every allowed type must be reachable from the anchor
//     type over mutually admitted pairs, otherwise parts of that type can
//     never join an assembly.
func AnalyzeRules(spec *ir.DefinitionSpec) []RuleWarning {
	warnings := []RuleWarning{}

	for _, a := range sortedKeys(spec.Connections) {
		for _, b := range admitted(spec, a) {
			if b == a || admits(spec, b, a) {
				continue
			}
			warnings = append(warnings, RuleWarning{
				Path:    []string{spec.Name, a, b},
				Message: fmt.Sprintf("%s admits %s but %s never admits %s", a, b, b, a),
				Level:   "warning",
			})
		}
	}

	if spec.Anchor == "" {
		return warnings
	}

	reach := map[string]bool{spec.Anchor: true}
	work := []string{spec.Anchor}
	for len(work) > 0 {
		cur := work[0]
		work = work[1:]
		for _, next := range spec.Allowed {
			if reach[next] || !admits(spec, cur, next) || !admits(spec, next, cur) {
				continue
			}
			reach[next] = true
			work = append(work, next)
		}
	}
	for _, typ := range spec.Allowed {
		if !reach[typ] {
			warnings = append(warnings, RuleWarning{
				Path:    []string{spec.Name, spec.Anchor, typ},
				Message: fmt.Sprintf("%s can never connect to anchor %s", typ, spec.Anchor),
				Level:   "warning",
			})
		}
	}
	return warnings
}

// admits reports whether type a accepts type b on at least one offset.
// A type without rules accepts everything.
func admits(spec *ir.DefinitionSpec, a, b string) bool {
	rules, ok := spec.Connections[a]
	if !ok {
		return true
	}
	for _, r := range rules {
		if slices.Contains(r.Allow, b) || slices.Contains(r.Allow, ir.AnyType) {
			return true
		}
	}
	return false
}

// admitted lists the allowed types a accepts, sorted.
func admitted(spec *ir.DefinitionSpec, a string) []string {
	var out []string
	for _, b := range spec.Allowed {
		if admits(spec, a, b) {
			out = append(out, b)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// FormatRuleWarning renders a warning as "path: message".
func FormatRuleWarning(w RuleWarning) string {
	return strings.Join(w.Path, " -> ") + ": " + w.Message
}
