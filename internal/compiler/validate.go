package compiler

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/assemblies/internal/ir"
)

// Validation error codes (E100-E199)
const (
	ErrDefinitionName      = "E101" // name empty or not an identifier
	ErrDefinitionNoTypes   = "E102" // allowed is empty
	ErrAnchorNotAllowed    = "E103" // anchor type missing from allowed
	ErrRuleTypeNotAllowed  = "E104" // connections keyed by a type outside allowed
	ErrDuplicateName       = "E105" // duplicate definition name or allowed type
	ErrUnknownPartType     = "E106" // type not in catalog (warning)
	ErrRuleAllowNotAllowed = "E107" // rule admits a type that can never be a member (warning)
	ErrEmptyType           = "E108" // empty type string
)

// Severity distinguishes hard errors from advisory findings.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ValidationError represents a definition validation finding.
type ValidationError struct {
	Definition string   `json:"definition"`
	Field      string   `json:"field"`
	Message    string   `json:"message"`
	Code       string   `json:"code"`
	Severity   Severity `json:"severity"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Definition != "" {
		return fmt.Sprintf("[%s] %s.%s: %s", e.Code, e.Definition, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// IsWarning reports whether the finding is advisory only.
func (e ValidationError) IsWarning() bool {
	return e.Severity == SeverityWarning
}

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)

// Validate checks one definition. When catalog is non-nil, part types not
// listed in it are reported as warnings. Returns all findings (does not
// fail-fast).
func Validate(spec *ir.DefinitionSpec, catalog []string) []ValidationError {
	var errs []ValidationError
	add := func(field, code string, sev Severity, format string, args ...any) {
		errs = append(errs, ValidationError{
			Definition: spec.Name,
			Field:      field,
			Message:    fmt.Sprintf(format, args...),
			Code:       code,
			Severity:   sev,
		})
	}

	if !namePattern.MatchString(spec.Name) {
		add("name", ErrDefinitionName, SeverityError, "invalid definition name %q", spec.Name)
	}
	if len(spec.Allowed) == 0 {
		add("allowed", ErrDefinitionNoTypes, SeverityError, "at least one allowed type is required")
	}

	allowed := make(map[string]bool, len(spec.Allowed))
	for i, typ := range spec.Allowed {
		field := fmt.Sprintf("allowed[%d]", i)
		if strings.TrimSpace(typ) == "" {
			add(field, ErrEmptyType, SeverityError, "part type must be non-empty")
			continue
		}
		if allowed[typ] {
			add(field, ErrDuplicateName, SeverityError, "duplicate allowed type %q", typ)
		}
		allowed[typ] = true
		if catalog != nil && !slices.Contains(catalog, typ) {
			add(field, ErrUnknownPartType, SeverityWarning, "part type %q is not in the catalog", typ)
		}
	}

	if spec.Anchor != "" && !allowed[spec.Anchor] {
		add("anchor", ErrAnchorNotAllowed, SeverityError, "anchor type %q must be listed in allowed", spec.Anchor)
	}

	for _, typ := range sortedKeys(spec.Connections) {
		if !allowed[typ] {
			add("connections."+typ, ErrRuleTypeNotAllowed, SeverityError, "connections declared for type %q which is not allowed", typ)
		}
		for i, rule := range spec.Connections[typ] {
			for _, a := range rule.Allow {
				if a == ir.AnyType {
					continue
				}
				if !allowed[a] {
					add(fmt.Sprintf("connections.%s[%d].allow", typ, i), ErrRuleAllowNotAllowed, SeverityWarning,
						"type %q can never be a member, rule entry has no effect", a)
				}
			}
		}
	}

	return errs
}

// ValidateSet validates every definition and reports duplicate names
// across the set.
func ValidateSet(specs []ir.DefinitionSpec, catalog []string) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool, len(specs))
	for i := range specs {
		if seen[specs[i].Name] {
			errs = append(errs, ValidationError{
				Definition: specs[i].Name,
				Field:      "name",
				Message:    fmt.Sprintf("duplicate definition name %q", specs[i].Name),
				Code:       ErrDuplicateName,
				Severity:   SeverityError,
			})
		}
		seen[specs[i].Name] = true
		errs = append(errs, Validate(&specs[i], catalog)...)
	}
	return errs
}

// HasErrors reports whether any finding is an error rather than a warning.
func HasErrors(errs []ValidationError) bool {
	for _, e := range errs {
		if !e.IsWarning() {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
