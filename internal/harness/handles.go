package harness

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/versync/internal/entity"
	"github.com/roach88/versync/internal/ir"
)

// itemRef names one layer item.
type itemRef struct {
	layer *entity.Layer
	id    ir.ItemID
}

// Handles maps scenario names to the entities and items they created.
//
// Only touch Handles between ticks: entities belong to the engine's
// replica.
type Handles struct {
	registry *entity.Registry
	entities map[string]any
	items    map[string]itemRef
}

func newHandles(r *entity.Registry) *Handles {
	return &Handles{
		registry: r,
		entities: make(map[string]any),
		items:    make(map[string]itemRef),
	}
}

// bind records e under name. An empty name is a no-op.
func (h *Handles) bind(name string, e any) error {
	if name == "" {
		return nil
	}
	if _, dup := h.entities[name]; dup {
		return fmt.Errorf("handle %q already bound", name)
	}
	if _, dup := h.items[name]; dup {
		return fmt.Errorf("handle %q already bound", name)
	}
	h.entities[name] = e
	return nil
}

func (h *Handles) bindItem(name string, l *entity.Layer, id ir.ItemID) error {
	if name == "" {
		return nil
	}
	if _, dup := h.entities[name]; dup {
		return fmt.Errorf("handle %q already bound", name)
	}
	if _, dup := h.items[name]; dup {
		return fmt.Errorf("handle %q already bound", name)
	}
	h.items[name] = itemRef{layer: l, id: id}
	return nil
}

// Entity resolves a handle. "#<id>" names a bound node by server id.
func (h *Handles) Entity(name string) (any, error) {
	if rest, ok := strings.CutPrefix(name, "#"); ok {
		id, err := strconv.ParseUint(rest, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad node reference %q", name)
		}
		n, ok := h.registry.Node(ir.NodeID(id))
		if !ok {
			return nil, fmt.Errorf("no bound node %d", id)
		}
		return n, nil
	}
	e, ok := h.entities[name]
	if !ok {
		return nil, fmt.Errorf("unknown handle %q", name)
	}
	return e, nil
}

// Node resolves a node handle.
func (h *Handles) Node(name string) (*entity.Node, error) {
	return resolve[*entity.Node](h, name, "node")
}

// TagGroup resolves a tag group handle.
func (h *Handles) TagGroup(name string) (*entity.TagGroup, error) {
	return resolve[*entity.TagGroup](h, name, "tag group")
}

// Tag resolves a tag handle.
func (h *Handles) Tag(name string) (*entity.Tag, error) {
	return resolve[*entity.Tag](h, name, "tag")
}

// Layer resolves a layer handle.
func (h *Handles) Layer(name string) (*entity.Layer, error) {
	return resolve[*entity.Layer](h, name, "layer")
}

func (h *Handles) item(name string) (itemRef, error) {
	ref, ok := h.items[name]
	if !ok {
		return itemRef{}, fmt.Errorf("unknown item handle %q", name)
	}
	return ref, nil
}

func resolve[T any](h *Handles, name, what string) (T, error) {
	var zero T
	e, err := h.Entity(name)
	if err != nil {
		return zero, err
	}
	v, ok := e.(T)
	if !ok {
		return zero, fmt.Errorf("handle %q is not a %s", name, what)
	}
	return v, nil
}

// stateOf returns the lifecycle state of any entity.
func stateOf(e any) (entity.State, bool) {
	s, ok := e.(interface{ State() entity.State })
	if !ok {
		return 0, false
	}
	return s.State(), true
}

// boundID returns an entity's server id as an int.
func boundID(e any) (int, bool) {
	switch v := e.(type) {
	case *entity.Node:
		id, ok := v.ID()
		return int(id), ok
	case *entity.TagGroup:
		id, ok := v.ID()
		return int(id), ok
	case *entity.Tag:
		id, ok := v.ID()
		return int(id), ok
	case *entity.Layer:
		id, ok := v.ID()
		return int(id), ok
	default:
		return 0, false
	}
}
