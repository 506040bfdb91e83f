package entity

import (
	"log/slog"

	"github.com/roach88/versync/internal/ir"
)

// Tag is a single typed value in a tag group. Its kind and arity are fixed
// at construction.
type Tag struct {
	EntityState

	group      *TagGroup
	id         ir.TagID
	customType ir.CustomType
	valueKind  ir.ValueKind
	count      int
	value      ir.Value
	createSent bool
}

// NewTag creates a tag locally with an initial value. The value fixes the
// tag's kind and arity. The create command is sent once the group has an
// id; the latest value follows the create confirmation.
func (tg *TagGroup) NewTag(ct ir.CustomType, initial ir.Value) (*Tag, error) {
	if !tg.acceptsChildren() {
		return nil, &StateError{Kind: ir.KindTagGroup, State: tg.state, Transition: TransitionCreate}
	}
	if initial == nil {
		return nil, &ir.ValueError{Code: ir.ErrCodeEmptyTuple, Message: "tag needs an initial value"}
	}
	if err := ir.CheckCount(initial.Count()); err != nil {
		return nil, err
	}
	if err := tg.checkSchema(ct, initial.Kind(), initial.Count()); err != nil {
		return nil, err
	}
	if _, dup := tg.pendingTags[ct]; dup {
		return nil, &MarkerError{Scope: tg.scope(), Marker: ct}
	}

	t := &Tag{
		group:      tg,
		customType: ct,
		valueKind:  initial.Kind(),
		count:      initial.Count(),
		value:      ir.CloneValue(initial),
	}
	if err := t.create(t); err != nil {
		return nil, err
	}
	tg.pendingTags[ct] = t
	return t, nil
}

// BindTag creates a tag whose id the server already knows. Its value is
// zero until set.
func (tg *TagGroup) BindTag(id ir.TagID, ct ir.CustomType, kind ir.ValueKind, count int) (*Tag, error) {
	if !tg.live() {
		return nil, &StateError{Kind: ir.KindTagGroup, State: tg.state, Transition: TransitionCreate}
	}
	if existing, ok := tg.tags[id]; ok {
		return nil, &StateError{Kind: ir.KindTag, State: existing.state, Transition: TransitionCreate}
	}
	zero, err := ir.ZeroValue(kind, count)
	if err != nil {
		return nil, err
	}
	if err := tg.checkSchema(ct, kind, count); err != nil {
		return nil, err
	}

	t := &Tag{group: tg, id: id, customType: ct, valueKind: kind, count: count, value: zero}
	t.bound = true
	t.flushed = true
	if err := t.create(t); err != nil {
		return nil, err
	}
	tg.tags[id] = t
	return t, nil
}

func (tg *TagGroup) checkSchema(ct ir.CustomType, kind ir.ValueKind, count int) error {
	schema := tg.node.reg.schema
	if schema == nil {
		return nil
	}
	wantKind, wantCount, ok := schema.TagShape(tg.node.customType, tg.customType, ct)
	if !ok {
		return nil
	}
	zero, err := ir.ZeroValue(kind, count)
	if err != nil {
		return err
	}
	return ir.CheckShape(zero, wantKind, wantCount)
}

// ID returns the server id and whether it has been assigned.
func (t *Tag) ID() (ir.TagID, bool) { return t.id, t.bound }

// Group returns the owning tag group.
func (t *Tag) Group() *TagGroup { return t.group }

// CustomType returns the tag marker.
func (t *Tag) CustomType() ir.CustomType { return t.customType }

// Kind returns the fixed value kind.
func (t *Tag) Kind() ir.ValueKind { return t.valueKind }

// Count returns the fixed value arity.
func (t *Tag) Count() int { return t.count }

// Value returns a copy of the current value.
func (t *Tag) Value() ir.Value { return ir.CloneValue(t.value) }

// SetValue replaces the value. It is sent immediately when the tag is
// bound; otherwise it replaces the value sent after confirmation.
func (t *Tag) SetValue(v ir.Value) error {
	switch t.state {
	case Creating, Created, Assumed:
	default:
		return &StateError{Kind: ir.KindTag, State: t.state, Transition: TransitionSetValue}
	}
	if err := ir.CheckShape(v, t.valueKind, t.count); err != nil {
		return err
	}
	t.value = ir.CloneValue(v)
	if !t.live() {
		return nil
	}
	return t.sendValue()
}

// Destroy requests destruction.
func (t *Tag) Destroy() error {
	return t.destroy(t)
}

func (t *Tag) sendValue() error {
	n := t.group.node
	return n.reg.send(ir.Message{
		Op:       ir.OpTagSetValue,
		Node:     n.id,
		TagGroup: t.group.id,
		Tag:      t.id,
		Value:    ir.CloneValue(t.value),
	})
}

func (t *Tag) flushCreate() error {
	if t.createSent {
		return nil
	}
	return t.sendCreate()
}

func (t *Tag) entityKind() ir.EntityKind { return ir.KindTag }

func (t *Tag) sendCreate() error {
	if !t.group.live() {
		return nil
	}
	n := t.group.node
	err := n.reg.send(ir.Message{
		Op:         ir.OpTagCreate,
		Node:       n.id,
		TagGroup:   t.group.id,
		Kind:       t.valueKind,
		Count:      t.count,
		CustomType: t.customType,
	})
	if err != nil {
		return err
	}
	t.createSent = true
	return nil
}

func (t *Tag) sendDestroy() error {
	n := t.group.node
	return n.reg.send(ir.Message{Op: ir.OpTagDestroy, Node: n.id, TagGroup: t.group.id, Tag: t.id})
}

// sendSubscribe is a no-op: tag data arrives through the group subscription.
func (t *Tag) sendSubscribe() error { return nil }

func (t *Tag) clean() {
	tg := t.group
	if t.bound {
		if tg.tags[t.id] == t {
			delete(tg.tags, t.id)
		}
		tg.node.reg.notify(Change{Type: ChangeDestroyed, Kind: ir.KindTag, Node: tg.node.id, TagGroup: tg.id, Tag: t.id})
		return
	}
	if tg.pendingTags[t.customType] == t {
		delete(tg.pendingTags, t.customType)
	}
}

// ReceiveTagCreate binds a tag confirmation. A reconciled local tag sends
// its pending value right after.
func (r *Registry) ReceiveTagCreate(node ir.NodeID, group ir.TagGroupID, id ir.TagID, kind ir.ValueKind, count int, ct ir.CustomType) error {
	tg, ok := r.lookupTagGroup(node, group)
	if !ok {
		return nil
	}

	if t, ok := tg.tags[id]; ok {
		if !t.reconfirmable() {
			slog.Debug("duplicate tag create ignored", "node", node, "taggroup", group, "tag", id)
			return nil
		}
		return r.confirmTag(t)
	}

	t, pending := tg.pendingTags[ct]
	if pending {
		delete(tg.pendingTags, ct)
	} else {
		zero, err := ir.ZeroValue(kind, count)
		if err != nil {
			slog.Warn("tag create with invalid shape ignored", "node", node, "taggroup", group, "tag", id, "error", err)
			return nil
		}
		t = &Tag{group: tg, customType: ct, valueKind: kind, count: count, value: zero}
	}
	t.id = id
	t.bound = true
	t.createSent = true
	tg.tags[id] = t
	// Only a reconciled local tag has a value to send after confirmation.
	t.flushed = !pending
	return r.confirmTag(t)
}

func (r *Registry) confirmTag(t *Tag) error {
	if t.state != Created {
		if err := t.receiveCreate(t); err != nil {
			return err
		}
		n := t.group.node
		r.notify(Change{Type: ChangeBound, Kind: ir.KindTag, Node: n.id, TagGroup: t.group.id, Tag: t.id})
		if t.state != Created || t.flushed {
			return nil
		}
	}
	if err := t.sendValue(); err != nil {
		return err
	}
	t.flushed = true
	return nil
}

// ReceiveTagSetValue applies a remote value. Values of the wrong shape are
// logged and dropped.
func (r *Registry) ReceiveTagSetValue(node ir.NodeID, group ir.TagGroupID, id ir.TagID, v ir.Value) error {
	tg, ok := r.lookupTagGroup(node, group)
	if !ok {
		return nil
	}
	t, ok := tg.tags[id]
	if !ok {
		slog.Debug("value for unknown tag ignored", "node", node, "taggroup", group, "tag", id)
		return nil
	}
	if err := ir.CheckShape(v, t.valueKind, t.count); err != nil {
		slog.Warn("tag value with wrong shape ignored", "node", node, "taggroup", group, "tag", id, "error", err)
		return nil
	}
	t.value = ir.CloneValue(v)
	r.notify(Change{Type: ChangeValue, Kind: ir.KindTag, Node: node, TagGroup: group, Tag: id})
	return nil
}

// ReceiveTagDestroy finalizes a tag destroy.
func (r *Registry) ReceiveTagDestroy(node ir.NodeID, group ir.TagGroupID, id ir.TagID) error {
	tg, ok := r.lookupTagGroup(node, group)
	if !ok {
		return nil
	}
	t, ok := tg.tags[id]
	if !ok {
		slog.Debug("destroy for unknown tag ignored", "node", node, "taggroup", group, "tag", id)
		return nil
	}
	return t.receiveDestroy(t)
}
