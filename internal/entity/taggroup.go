package entity

import (
	"log/slog"

	"github.com/roach88/versync/internal/ir"
)

// TagGroup is a named collection of tags owned by a node.
type TagGroup struct {
	EntityState

	node       *Node
	id         ir.TagGroupID
	customType ir.CustomType
	createSent bool

	tags        map[ir.TagID]*Tag
	pendingTags map[ir.CustomType]*Tag
}

func newTagGroup(n *Node, ct ir.CustomType) *TagGroup {
	return &TagGroup{
		node:        n,
		customType:  ct,
		tags:        make(map[ir.TagID]*Tag),
		pendingTags: make(map[ir.CustomType]*Tag),
	}
}

// NewTagGroup creates a tag group locally. The create command is sent as
// soon as the node has an id.
func (n *Node) NewTagGroup(ct ir.CustomType) (*TagGroup, error) {
	if !n.acceptsChildren() {
		return nil, &StateError{Kind: ir.KindNode, State: n.state, Transition: TransitionCreate}
	}
	if _, dup := n.pendingTagGroups[ct]; dup {
		return nil, &MarkerError{Scope: n.scope(ir.KindTagGroup), Marker: ct}
	}

	tg := newTagGroup(n, ct)
	if err := tg.create(tg); err != nil {
		return nil, err
	}
	n.pendingTagGroups[ct] = tg
	return tg, nil
}

// BindTagGroup creates a tag group whose id the server already knows and
// subscribes to it.
func (n *Node) BindTagGroup(id ir.TagGroupID, ct ir.CustomType) (*TagGroup, error) {
	if !n.live() {
		return nil, &StateError{Kind: ir.KindNode, State: n.state, Transition: TransitionCreate}
	}
	if existing, ok := n.tagGroups[id]; ok {
		return nil, &StateError{Kind: ir.KindTagGroup, State: existing.state, Transition: TransitionCreate}
	}

	tg := newTagGroup(n, ct)
	tg.id = id
	tg.bound = true
	if err := tg.create(tg); err != nil {
		return nil, err
	}
	n.tagGroups[id] = tg
	return tg, nil
}

func (n *Node) scope(kind ir.EntityKind) ir.Scope {
	return ir.Scope{Kind: kind, Node: n.id, Bound: n.bound}
}

// ID returns the server id and whether it has been assigned.
func (tg *TagGroup) ID() (ir.TagGroupID, bool) { return tg.id, tg.bound }

// Node returns the owning node.
func (tg *TagGroup) Node() *Node { return tg.node }

// CustomType returns the tag group marker.
func (tg *TagGroup) CustomType() ir.CustomType { return tg.customType }

// Tag returns the bound tag with the given id.
func (tg *TagGroup) Tag(id ir.TagID) (*Tag, bool) {
	t, ok := tg.tags[id]
	return t, ok
}

// PendingTag returns the pending tag for a marker.
func (tg *TagGroup) PendingTag(ct ir.CustomType) (*Tag, bool) {
	t, ok := tg.pendingTags[ct]
	return t, ok
}

// TagByType returns the first tag with the marker, bound tags (lowest id)
// before a pending one.
func (tg *TagGroup) TagByType(ct ir.CustomType) (*Tag, bool) {
	for _, t := range tg.Tags() {
		if t.customType == ct {
			return t, true
		}
	}
	return tg.PendingTag(ct)
}

// Tags returns the bound tags ordered by id.
func (tg *TagGroup) Tags() []*Tag {
	out := make([]*Tag, 0, len(tg.tags))
	for _, id := range sortedKeys(tg.tags) {
		out = append(out, tg.tags[id])
	}
	return out
}

// Destroy requests destruction.
func (tg *TagGroup) Destroy() error {
	return tg.destroy(tg)
}

func (tg *TagGroup) acceptsChildren() bool {
	switch tg.state {
	case Creating, Created, Assumed:
		return true
	default:
		return false
	}
}

func (tg *TagGroup) scope() ir.Scope {
	return ir.Scope{Kind: ir.KindTag, Node: tg.node.id, TagGroup: tg.id, Bound: tg.bound}
}

// flushCreate sends a create that was deferred while the node had no id.
func (tg *TagGroup) flushCreate() error {
	if tg.createSent {
		return nil
	}
	return tg.sendCreate()
}

// confirmed flushes tag creates that waited for the group's id.
func (tg *TagGroup) confirmed() error {
	for _, ct := range sortedKeys(tg.pendingTags) {
		if err := tg.pendingTags[ct].flushCreate(); err != nil {
			return err
		}
	}
	return nil
}

func (tg *TagGroup) entityKind() ir.EntityKind { return ir.KindTagGroup }

func (tg *TagGroup) sendCreate() error {
	if !tg.node.live() {
		return nil
	}
	err := tg.node.reg.send(ir.Message{
		Op:         ir.OpTagGroupCreate,
		Node:       tg.node.id,
		CustomType: tg.customType,
	})
	if err != nil {
		return err
	}
	tg.createSent = true
	return nil
}

func (tg *TagGroup) sendDestroy() error {
	return tg.node.reg.send(ir.Message{Op: ir.OpTagGroupDestroy, Node: tg.node.id, TagGroup: tg.id})
}

func (tg *TagGroup) sendSubscribe() error {
	return tg.node.reg.send(ir.Message{
		Op:       ir.OpTagGroupSubscribe,
		Node:     tg.node.id,
		TagGroup: tg.id,
		Version:  tg.version,
		CRC32:    tg.crc32,
	})
}

func (tg *TagGroup) clean() {
	n := tg.node
	if tg.bound {
		if n.tagGroups[tg.id] == tg {
			delete(n.tagGroups, tg.id)
		}
	} else if n.pendingTagGroups[tg.customType] == tg {
		delete(n.pendingTagGroups, tg.customType)
	}
	tg.dropTags()
	if tg.bound {
		n.reg.notify(Change{Type: ChangeDestroyed, Kind: ir.KindTagGroup, Node: n.id, TagGroup: tg.id})
	}
}

func (tg *TagGroup) dropTags() {
	for _, t := range tg.tags {
		t.drop()
	}
	for _, t := range tg.pendingTags {
		t.drop()
	}
	clear(tg.tags)
	clear(tg.pendingTags)
}

// ReceiveTagGroupCreate binds a tag group confirmation, reconciling a
// pending group with the same marker or creating a remote one.
func (r *Registry) ReceiveTagGroupCreate(node ir.NodeID, id ir.TagGroupID, ct ir.CustomType) error {
	n, ok := r.nodes[node]
	if !ok {
		slog.Debug("tag group create for unknown node ignored", "node", node, "taggroup", id)
		return nil
	}

	if tg, ok := n.tagGroups[id]; ok {
		if !tg.reconfirmable() {
			slog.Debug("duplicate tag group create ignored", "node", node, "taggroup", id)
			return nil
		}
		return r.confirmTagGroup(tg)
	}

	tg, pending := n.pendingTagGroups[ct]
	if pending {
		delete(n.pendingTagGroups, ct)
	} else {
		tg = newTagGroup(n, ct)
	}
	tg.id = id
	tg.bound = true
	tg.createSent = true
	n.tagGroups[id] = tg
	return r.confirmTagGroup(tg)
}

func (r *Registry) confirmTagGroup(tg *TagGroup) error {
	if tg.state != Created {
		if err := tg.receiveCreate(tg); err != nil {
			return err
		}
		r.notify(Change{Type: ChangeBound, Kind: ir.KindTagGroup, Node: tg.node.id, TagGroup: tg.id})
		if tg.state != Created {
			return nil
		}
	}
	if err := tg.confirmed(); err != nil {
		return err
	}
	tg.flushed = true
	return nil
}

// ReceiveTagGroupDestroy finalizes a tag group destroy.
func (r *Registry) ReceiveTagGroupDestroy(node ir.NodeID, id ir.TagGroupID) error {
	tg, ok := r.lookupTagGroup(node, id)
	if !ok {
		return nil
	}
	return tg.receiveDestroy(tg)
}
