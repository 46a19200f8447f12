package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/assemblies/internal/ir"
)

// CompileDefinition parses a CUE value into a DefinitionSpec.
// The value is the definition struct itself, labelled by its name:
//
//	definition: Conveyor: {
//		allowed: ["Belt", "Junction"]
//		anchor: "Junction"
//		propagate_properties: true
//		connections: Belt: [{offset: [0, 0, 1], allow: ["Belt"]}]
//	}
func CompileDefinition(v cue.Value) (*ir.DefinitionSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.DefinitionSpec{}
	if labels := v.Path().Selectors(); len(labels) > 0 {
		spec.Name = labels[len(labels)-1].String()
	}

	allowedVal := v.LookupPath(cue.ParsePath("allowed"))
	if !allowedVal.Exists() {
		return nil, &CompileError{
			Field:   "allowed",
			Message: "allowed is required",
			Pos:     v.Pos(),
		}
	}
	allowed, err := stringList(allowedVal, "allowed")
	if err != nil {
		return nil, err
	}
	spec.Allowed = allowed

	if anchorVal := v.LookupPath(cue.ParsePath("anchor")); anchorVal.Exists() {
		anchor, err := anchorVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		spec.Anchor = anchor
	}

	if propVal := v.LookupPath(cue.ParsePath("propagate_properties")); propVal.Exists() {
		propagate, err := propVal.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		spec.PropagateProperties = propagate
	}

	spec.Connections, err = parseConnections(v)
	if err != nil {
		return nil, err
	}
	return spec, nil
}

// CompileDefinitions compiles every field under the top-level "definition"
// struct, in source order.
func CompileDefinitions(root cue.Value) ([]ir.DefinitionSpec, error) {
	defsVal := root.LookupPath(cue.ParsePath("definition"))
	if !defsVal.Exists() {
		return nil, nil
	}
	iter, err := defsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var specs []ir.DefinitionSpec
	for iter.Next() {
		spec, err := CompileDefinition(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("definition %s: %w", iter.Label(), err)
		}
		specs = append(specs, *spec)
	}
	return specs, nil
}

// CompileCatalog reads the optional top-level "catalog" list of known part
// types. A missing catalog yields nil, which disables catalog checks.
func CompileCatalog(root cue.Value) ([]string, error) {
	catVal := root.LookupPath(cue.ParsePath("catalog"))
	if !catVal.Exists() {
		return nil, nil
	}
	return stringList(catVal, "catalog")
}

func parseConnections(v cue.Value) (map[string][]ir.ConnectionRule, error) {
	connVal := v.LookupPath(cue.ParsePath("connections"))
	if !connVal.Exists() {
		return nil, nil
	}
	iter, err := connVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	conns := make(map[string][]ir.ConnectionRule)
	for iter.Next() {
		typ := iter.Label()
		list, err := iter.Value().List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		rules := []ir.ConnectionRule{}
		for i := 0; list.Next(); i++ {
			rule, err := parseRule(list.Value(), fmt.Sprintf("connections.%s[%d]", typ, i))
			if err != nil {
				return nil, err
			}
			rules = append(rules, rule)
		}
		conns[typ] = rules
	}
	return conns, nil
}

func parseRule(v cue.Value, field string) (ir.ConnectionRule, error) {
	var rule ir.ConnectionRule

	offVal := v.LookupPath(cue.ParsePath("offset"))
	if !offVal.Exists() {
		return rule, &CompileError{Field: field + ".offset", Message: "offset is required", Pos: v.Pos()}
	}
	iter, err := offVal.List()
	if err != nil {
		return rule, formatCUEError(err)
	}
	var comps []int
	for iter.Next() {
		n, err := iter.Value().Int64()
		if err != nil {
			return rule, &CompileError{Field: field + ".offset", Message: "offset components must be integers", Pos: iter.Value().Pos()}
		}
		comps = append(comps, int(n))
	}
	if len(comps) != 3 {
		return rule, &CompileError{
			Field:   field + ".offset",
			Message: fmt.Sprintf("offset must have 3 components, got %d", len(comps)),
			Pos:     offVal.Pos(),
		}
	}
	rule.Offset = ir.V(comps[0], comps[1], comps[2])

	if allowVal := v.LookupPath(cue.ParsePath("allow")); allowVal.Exists() {
		allow, err := stringList(allowVal, field+".allow")
		if err != nil {
			return rule, err
		}
		rule.Allow = allow
	}
	return rule, nil
}

func stringList(v cue.Value, field string) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	out := []string{}
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{Field: field, Message: "entries must be strings", Pos: iter.Value().Pos()}
		}
		out = append(out, s)
	}
	return out, nil
}
