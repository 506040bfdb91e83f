package mesh

import (
	"fmt"

	"github.com/roach88/versync/internal/entity"
	"github.com/roach88/versync/internal/ir"
)

// Object is a view over an object node and its name tag.
type Object struct {
	node *entity.Node
}

// NewObject creates an object node named name. The info tag group and
// name tag follow the node once it is confirmed.
func NewObject(r *entity.Registry, parent *entity.Node, name string) (*Object, error) {
	n, err := r.NewNode(parent, ObjectType)
	if err != nil {
		return nil, fmt.Errorf("create object node: %w", err)
	}
	tg, err := n.NewTagGroup(InfoGroupType)
	if err != nil {
		return nil, fmt.Errorf("create info group: %w", err)
	}
	if _, err := tg.NewTag(NameTagType, ir.Texts(name)); err != nil {
		return nil, fmt.Errorf("create name tag: %w", err)
	}
	return &Object{node: n}, nil
}

// OpenObject wraps an existing object node.
func OpenObject(n *entity.Node) (*Object, error) {
	if n.CustomType() != ObjectType {
		return nil, fmt.Errorf("%w: %d", ErrWrongNodeType, n.CustomType())
	}
	return &Object{node: n}, nil
}

// Node returns the wrapped node.
func (o *Object) Node() *entity.Node { return o.node }

func (o *Object) nameTag() (*entity.Tag, bool) {
	tg, ok := o.node.TagGroupByType(InfoGroupType)
	if !ok {
		return nil, false
	}
	return tg.TagByType(NameTagType)
}

// Name returns the object name, or false when the name tag is unknown.
func (o *Object) Name() (string, bool) {
	t, ok := o.nameTag()
	if !ok {
		return "", false
	}
	v, ok := t.Value().(ir.TextValue)
	if !ok || len(v) != 1 {
		return "", false
	}
	return v[0], true
}

// SetName renames the object.
func (o *Object) SetName(name string) error {
	t, ok := o.nameTag()
	if !ok {
		return fmt.Errorf("set name: %w", ErrNoTag)
	}
	return t.SetValue(ir.Texts(name))
}
