package catalog

import (
	"errors"
	"fmt"
	"math"

	"cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/versync/internal/ir"
)

// CompileError reports a malformed declaration.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsCompileError reports whether err is or wraps a CompileError.
func IsCompileError(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce)
}

// Compile reads the node declarations under the top-level "node" field
// of v. It does not check for marker collisions; see Validate.
func Compile(v cue.Value) (*Catalog, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	nodesVal := v.LookupPath(cue.ParsePath("node"))
	if !nodesVal.Exists() {
		return New(), nil
	}
	iter, err := nodesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var nodes []Node
	for iter.Next() {
		n, err := compileNode(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return New(nodes...), nil
}

func compileNode(name string, v cue.Value) (Node, error) {
	path := "node." + name
	if err := checkFields(v, path, "type", "taggroup", "layer"); err != nil {
		return Node{}, err
	}
	ct, err := compileType(v, path)
	if err != nil {
		return Node{}, err
	}
	n := Node{Name: name, Type: ct}

	err = eachField(v, "taggroup", func(label string, gv cue.Value) error {
		g, err := compileTagGroup(path+".taggroup."+label, label, gv)
		if err != nil {
			return err
		}
		n.TagGroups = append(n.TagGroups, g)
		return nil
	})
	if err != nil {
		return Node{}, err
	}

	err = eachField(v, "layer", func(label string, lv cue.Value) error {
		lpath := path + ".layer." + label
		if err := checkFields(lv, lpath, "type", "kind", "count"); err != nil {
			return err
		}
		lt, err := compileType(lv, lpath)
		if err != nil {
			return err
		}
		shape, err := compileShape(lv, lpath)
		if err != nil {
			return err
		}
		n.Layers = append(n.Layers, Layer{Name: label, Type: lt, Shape: shape})
		return nil
	})
	if err != nil {
		return Node{}, err
	}
	return n, nil
}

func compileTagGroup(path, name string, v cue.Value) (TagGroup, error) {
	if err := checkFields(v, path, "type", "tag"); err != nil {
		return TagGroup{}, err
	}
	ct, err := compileType(v, path)
	if err != nil {
		return TagGroup{}, err
	}
	g := TagGroup{Name: name, Type: ct}

	err = eachField(v, "tag", func(label string, tv cue.Value) error {
		tpath := path + ".tag." + label
		if err := checkFields(tv, tpath, "type", "kind", "count"); err != nil {
			return err
		}
		tt, err := compileType(tv, tpath)
		if err != nil {
			return err
		}
		shape, err := compileShape(tv, tpath)
		if err != nil {
			return err
		}
		g.Tags = append(g.Tags, Tag{Name: label, Type: tt, Shape: shape})
		return nil
	})
	if err != nil {
		return TagGroup{}, err
	}
	return g, nil
}

// compileType reads the required "type" field as a 16-bit marker.
func compileType(v cue.Value, path string) (ir.CustomType, error) {
	tv := v.LookupPath(cue.ParsePath("type"))
	if !tv.Exists() {
		return 0, &CompileError{Field: path + ".type", Message: "type is required", Pos: v.Pos()}
	}
	n, err := tv.Int64()
	if err != nil {
		return 0, &CompileError{Field: path + ".type", Message: "type must be an integer", Pos: tv.Pos()}
	}
	if n < 0 || n > math.MaxUint16 {
		return 0, &CompileError{
			Field:   path + ".type",
			Message: fmt.Sprintf("type %d out of range 0..%d", n, math.MaxUint16),
			Pos:     tv.Pos(),
		}
	}
	return ir.CustomType(n), nil
}

// compileShape reads the required "kind" and "count" fields.
func compileShape(v cue.Value, path string) (Shape, error) {
	kv := v.LookupPath(cue.ParsePath("kind"))
	if !kv.Exists() {
		return Shape{}, &CompileError{Field: path + ".kind", Message: "kind is required", Pos: v.Pos()}
	}
	ks, err := kv.String()
	if err != nil {
		return Shape{}, &CompileError{Field: path + ".kind", Message: "kind must be a string", Pos: kv.Pos()}
	}
	kind, err := ir.ParseValueKind(ks)
	if err != nil {
		return Shape{}, &CompileError{Field: path + ".kind", Message: err.Error(), Pos: kv.Pos()}
	}

	cv := v.LookupPath(cue.ParsePath("count"))
	if !cv.Exists() {
		return Shape{}, &CompileError{Field: path + ".count", Message: "count is required", Pos: v.Pos()}
	}
	count, err := cv.Int64()
	if err != nil {
		return Shape{}, &CompileError{Field: path + ".count", Message: "count must be an integer", Pos: cv.Pos()}
	}
	if err := ir.CheckCount(int(count)); err != nil {
		return Shape{}, &CompileError{Field: path + ".count", Message: err.Error(), Pos: cv.Pos()}
	}
	return Shape{Kind: kind, Count: int(count)}, nil
}

// checkFields rejects fields other than allowed.
func checkFields(v cue.Value, path string, allowed ...string) error {
	iter, err := v.Fields()
	if err != nil {
		return &CompileError{Field: path, Message: "must be a struct", Pos: v.Pos()}
	}
outer:
	for iter.Next() {
		for _, a := range allowed {
			if iter.Label() == a {
				continue outer
			}
		}
		return &CompileError{
			Field:   path + "." + iter.Label(),
			Message: "unknown field",
			Pos:     iter.Value().Pos(),
		}
	}
	return nil
}

// eachField calls fn for every field of the optional struct v.name.
func eachField(v cue.Value, name string, fn func(label string, v cue.Value) error) error {
	sv := v.LookupPath(cue.ParsePath(name))
	if !sv.Exists() {
		return nil
	}
	iter, err := sv.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		if err := fn(iter.Label(), iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &CompileError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}
