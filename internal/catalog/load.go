package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

//go:embed builtin.cue
var builtinSource string

var (
	builtinOnce sync.Once
	builtin     *Catalog
)

// Builtin returns the catalog of markers the mesh and object adapters
// use. It panics if the embedded declarations do not compile.
func Builtin() *Catalog {
	builtinOnce.Do(func() {
		c, err := Parse("builtin.cue", builtinSource)
		if err != nil {
			panic(fmt.Sprintf("catalog: builtin: %v", err))
		}
		builtin = c
	})
	return builtin
}

// Parse compiles and validates CUE source. filename is used in error
// positions only.
func Parse(filename, src string) (*Catalog, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	return finish(v)
}

// Load compiles a single .cue file or every .cue file in a directory.
func Load(path string) (*Catalog, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	if filepath.Ext(path) != ".cue" {
		return nil, fmt.Errorf("load catalog: %s is not a .cue file", path)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return Parse(path, string(src))
}

// LoadDir compiles the CUE package in dir.
func LoadDir(dir string) (*Catalog, error) {
	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("load catalog: no CUE instances in %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("load catalog: %w", formatCUEError(inst.Err))
	}
	return finish(ctx.BuildInstance(inst))
}

// finish compiles v and folds validation failures into one error.
func finish(v cue.Value) (*Catalog, error) {
	c, err := Compile(v)
	if err != nil {
		return nil, err
	}
	if verrs := c.Validate(); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, ve := range verrs {
			errs[i] = ve
		}
		return nil, errors.Join(errs...)
	}
	return c, nil
}
