package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/assemblies/internal/compiler"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Strict bool
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid        bool                       `json:"valid"`
	Definitions  []string                   `json:"definitions"`
	Errors       []compiler.ValidationError `json:"errors,omitempty"`
	Warnings     []compiler.ValidationError `json:"warnings,omitempty"`
	RuleWarnings []compiler.RuleWarning     `json:"rule_warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <defs>",
		Short: "Check assembly definitions",
		Long: `Compile and check CUE assembly definitions without running anything.

<defs> is a .cue file or a directory searched recursively. Every file is
compiled, then the merged set is checked: names, allowed types, anchors,
connection rules and, when a catalog is declared, unknown part types.
Rules that can never take effect are reported as warnings.

Examples:
  assemblies validate ./testdata/defs
  assemblies validate --strict --format json ./defs/grid.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "treat warnings as errors")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	loadResult, loadErrors := LoadDefinitions(path, LoadModeCollectAll)
	if loadResult == nil {
		return failLoad(formatter, loadErrors)
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", len(loadResult.Files), path)

	result := validateSet(loadResult.Set, formatter)
	for _, err := range loadErrors {
		result.Errors = append(result.Errors, loadValidationError(err))
	}
	result.Valid = len(result.Errors) == 0 && (!opts.Strict || len(result.Warnings)+len(result.RuleWarnings) == 0)

	return outputValidation(formatter, result)
}

// validateSet runs set-level checks and rule analysis over compiled
// definitions.
func validateSet(set *compiler.DefinitionSet, formatter *OutputFormatter) ValidationResult {
	result := ValidationResult{Definitions: []string{}}
	for _, e := range compiler.ValidateSet(set.Definitions, set.Catalog) {
		if e.IsWarning() {
			result.Warnings = append(result.Warnings, e)
		} else {
			result.Errors = append(result.Errors, e)
		}
	}
	for i := range set.Definitions {
		def := &set.Definitions[i]
		formatter.VerboseLog("Validating definition: %s", def.Name)
		result.Definitions = append(result.Definitions, def.Name)
		result.RuleWarnings = append(result.RuleWarnings, compiler.AnalyzeRules(def)...)
	}
	return result
}

func loadValidationError(err error) compiler.ValidationError {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return compiler.ValidationError{
			Definition: loadErr.File,
			Field:      "load",
			Message:    loadErr.Error(),
			Code:       loadErr.Code,
			Severity:   compiler.SeverityError,
		}
	}
	return compiler.ValidationError{
		Field:    "load",
		Message:  err.Error(),
		Code:     ErrCodeGeneric,
		Severity: compiler.SeverityError,
	}
}

// failLoad reports a load that produced nothing at all (missing path, no
// files). These are command errors, not validation failures.
func failLoad(formatter *OutputFormatter, errs []error) error {
	var loadErr *LoadError
	if errors.As(errs[0], &loadErr) {
		return formatter.Fail(ExitCommandError, loadErr.Code, loadErr.Message, nil)
	}
	return formatter.Fail(ExitCommandError, ErrCodeGeneric, errs[0].Error(), nil)
}

func outputValidation(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.JSON() {
		resp := CLIResponse{Status: "ok", Data: result}
		if !result.Valid {
			resp.Status = "error"
			resp.Error = validationCLIError(result)
		}
		if err := formatter.Encode(resp); err != nil {
			return err
		}
	} else {
		outputValidationText(formatter, result)
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
	}
	return nil
}

func validationCLIError(result ValidationResult) *CLIError {
	if len(result.Errors) > 0 {
		return &CLIError{Code: result.Errors[0].Code, Message: result.Errors[0].Message}
	}
	return &CLIError{Code: ErrCodeGeneric, Message: "warnings reported in strict mode"}
}

func outputValidationText(formatter *OutputFormatter, result ValidationResult) {
	w := formatter.Writer
	for _, e := range result.Warnings {
		fmt.Fprintf(w, "warning %s\n", e.Error())
	}
	for _, rw := range result.RuleWarnings {
		fmt.Fprintf(w, "warning %s\n", compiler.FormatRuleWarning(rw))
	}

	if result.Valid {
		fmt.Fprintf(w, "✓ %d definition(s) valid\n", len(result.Definitions))
		return
	}

	fmt.Fprintln(w, "✗ Validation failed")
	for _, e := range result.Errors {
		fmt.Fprintf(w, "  %s\n", e.Error())
	}
}
