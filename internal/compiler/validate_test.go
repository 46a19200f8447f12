package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/assemblies/internal/ir"
)

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidateValid(t *testing.T) {
	spec := &ir.DefinitionSpec{
		Name:    "Conveyor",
		Allowed: []string{"Belt", "Junction"},
		Anchor:  "Junction",
		Connections: map[string][]ir.ConnectionRule{
			"Belt": {{Offset: ir.V(0, 0, 1), Allow: []string{"Belt", "*"}}},
		},
	}
	assert.Empty(t, Validate(spec, []string{"Belt", "Junction"}))
}

func TestValidateFindings(t *testing.T) {
	tests := []struct {
		name string
		spec ir.DefinitionSpec
		want []string
	}{
		{
			name: "bad name",
			spec: ir.DefinitionSpec{Name: "has space", Allowed: []string{"A"}},
			want: []string{ErrDefinitionName},
		},
		{
			name: "no types",
			spec: ir.DefinitionSpec{Name: "D"},
			want: []string{ErrDefinitionNoTypes},
		},
		{
			name: "anchor outside allowed",
			spec: ir.DefinitionSpec{Name: "D", Allowed: []string{"A"}, Anchor: "B"},
			want: []string{ErrAnchorNotAllowed},
		},
		{
			name: "duplicate and empty type",
			spec: ir.DefinitionSpec{Name: "D", Allowed: []string{"A", "A", " "}},
			want: []string{ErrDuplicateName, ErrEmptyType},
		},
		{
			name: "rules for foreign type",
			spec: ir.DefinitionSpec{Name: "D", Allowed: []string{"A"}, Connections: map[string][]ir.ConnectionRule{
				"B": {{Allow: []string{"A"}}},
			}},
			want: []string{ErrRuleTypeNotAllowed},
		},
		{
			name: "rule admits foreign type",
			spec: ir.DefinitionSpec{Name: "D", Allowed: []string{"A"}, Connections: map[string][]ir.ConnectionRule{
				"A": {{Allow: []string{"Z"}}},
			}},
			want: []string{ErrRuleAllowNotAllowed},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, codes(Validate(&tt.spec, nil)))
		})
	}
}

func TestValidateCatalogWarnings(t *testing.T) {
	spec := &ir.DefinitionSpec{Name: "D", Allowed: []string{"A", "Ghost"}}
	errs := Validate(spec, []string{"A"})
	assert.Equal(t, []string{ErrUnknownPartType}, codes(errs))
	assert.True(t, errs[0].IsWarning())
	assert.False(t, HasErrors(errs))

	assert.Empty(t, Validate(spec, nil), "nil catalog disables the check")
}

func TestValidateSetDuplicateNames(t *testing.T) {
	specs := []ir.DefinitionSpec{
		{Name: "D", Allowed: []string{"A"}},
		{Name: "D", Allowed: []string{"B"}},
	}
	errs := ValidateSet(specs, nil)
	assert.Equal(t, []string{ErrDuplicateName}, codes(errs))
	assert.True(t, HasErrors(errs))
	assert.Contains(t, errs[0].Error(), "duplicate definition name")
}
