package compiler

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/assemblies/internal/ir"
)

// DefinitionSet is everything one CUE source declares: the definitions in
// source order and the optional part catalog.
type DefinitionSet struct {
	Definitions []ir.DefinitionSpec
	Catalog     []string
}

// CompileSet reads the "definition" and "catalog" fields of a built CUE
// value.
func CompileSet(root cue.Value) (*DefinitionSet, error) {
	if err := root.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	defs, err := CompileDefinitions(root)
	if err != nil {
		return nil, err
	}
	catalog, err := CompileCatalog(root)
	if err != nil {
		return nil, err
	}
	return &DefinitionSet{Definitions: defs, Catalog: catalog}, nil
}

// LoadFile compiles a single CUE file into a DefinitionSet.
// Directories with several files go through the CLI loader instead.
func LoadFile(path string) (*DefinitionSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definitions: %w", err)
	}
	v := cuecontext.New().CompileBytes(data, cue.Filename(path))
	set, err := CompileSet(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

// Merge appends other into s. Catalogs are concatenated; a nil catalog on
// both sides stays nil so catalog checks stay disabled.
func (s *DefinitionSet) Merge(other *DefinitionSet) {
	s.Definitions = append(s.Definitions, other.Definitions...)
	if other.Catalog != nil {
		s.Catalog = append(s.Catalog, other.Catalog...)
	}
}
