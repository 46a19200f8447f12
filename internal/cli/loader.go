package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/assemblies/internal/compiler"
)

// LoadMode controls how errors are handled during definition loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the definitions found under a path.
type LoadResult struct {
	Set   *compiler.DefinitionSet
	Files []string
}

// LoadError represents an error that occurred during definition loading.
type LoadError struct {
	Code    string
	Message string
	File    string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	if e.File != "" {
		return fmt.Sprintf("%s: %s: %s", e.File, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Line returns the CUE source line, or 0 when unknown.
func (e *LoadError) Line() int {
	if e.Pos.IsValid() {
		return e.Pos.Line()
	}
	return 0
}

// LoadDefinitions compiles every .cue file under path (a file or a
// directory) and merges them into one set.
//
// Each file is built as its own CUE instance, so two files may each carry
// a catalog without their lists having to unify. With LoadModeFailFast the
// first broken file ends the load; with LoadModeCollectAll every file is
// tried and the result holds whatever compiled.
func LoadDefinitions(path string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("definitions not found: %s", path)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing definitions: %v", err)}}
	}

	files := []string{path}
	if info.IsDir() {
		files, err = FindCUEFiles(path)
		if err != nil {
			return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
		}
	}
	if len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}}
	}

	result := &LoadResult{Set: &compiler.DefinitionSet{}, Files: files}
	var errs []error
	for _, file := range files {
		set, err := loadFile(file)
		if err != nil {
			errs = append(errs, err)
			if mode == LoadModeFailFast {
				return result, errs
			}
			continue
		}
		result.Set.Merge(set)
	}

	if len(result.Set.Definitions) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoDefinitions, Message: "no definitions found"})
	}
	return result, errs
}

func loadFile(file string) (*compiler.DefinitionSet, error) {
	cfg := &load.Config{Dir: filepath.Dir(file)}
	instances := load.Instances([]string{filepath.Base(file)}, cfg)
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, File: file, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, File: file, Message: fmt.Sprintf("loading CUE file: %v", inst.Err)}
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, convertCompileError(err, file)
	}
	set, err := compiler.CompileSet(value)
	if err != nil {
		return nil, convertCompileError(err, file)
	}
	return set, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, file string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Message,
			File:    file,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeBuildFailed,
		Message: err.Error(),
		File:    file,
	}
}

// Error code constants - unified across all CLI commands. Definition
// findings reuse the compiler's E1xx codes.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeScanError     = "E002" // Directory scan error
	ErrCodeNoFiles       = "E003" // No CUE files found
	ErrCodeLoadFailed    = "E004" // CUE load failed
	ErrCodeNotFound      = "E005" // Path not found
	ErrCodeBuildFailed   = "E006" // CUE build failed
	ErrCodeWriteFailed   = "E007" // File write error
	ErrCodeNoDefinitions = "E008" // CUE compiled but declared no definitions
	ErrCodeStoreFailed   = "E009" // Database open or query failed
	ErrCodeBadRecord     = "E010" // Stored container blob failed to decode

	ErrCodeInvalidRule = "E109" // Malformed connection rule
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "allowed":
		return compiler.ErrDefinitionNoTypes
	case field == "cue":
		return ErrCodeBuildFailed
	case strings.HasPrefix(field, "connections."):
		return ErrCodeInvalidRule
	default:
		return ErrCodeGeneric
	}
}
