package entity

import (
	"cmp"
	"math"
	"slices"

	"github.com/roach88/versync/internal/ir"
)

// Node is a tree entity owning child nodes, tag groups and layers.
// It is the unit of identity reconciliation.
type Node struct {
	EntityState

	reg        *Registry
	id         ir.NodeID
	parent     *Node
	user       ir.UserID
	customType ir.CustomType
	priority   ir.Priority
	token      string

	// remotePriority is the priority the server last reported or was told.
	remotePriority ir.Priority

	// remoteParent is the parent the server last reported or was told.
	remoteParent ir.NodeID

	children         []*Node
	tagGroups        map[ir.TagGroupID]*TagGroup
	pendingTagGroups map[ir.CustomType]*TagGroup
	layers           map[ir.LayerID]*Layer
	pendingLayers    map[ir.CustomType]*Layer

	// nextItem is the next layer item id this node hands out.
	nextItem       ir.ItemID
	itemsExhausted bool
}

func newNode(r *Registry, parent *Node, user ir.UserID, ct ir.CustomType) *Node {
	return &Node{
		reg:              r,
		parent:           parent,
		user:             user,
		customType:       ct,
		priority:         ir.DefaultPriority,
		remotePriority:   ir.DefaultPriority,
		tagGroups:        make(map[ir.TagGroupID]*TagGroup),
		pendingTagGroups: make(map[ir.CustomType]*TagGroup),
		layers:           make(map[ir.LayerID]*Layer),
		pendingLayers:    make(map[ir.CustomType]*Layer),
	}
}

// ID returns the server id and whether it has been assigned.
func (n *Node) ID() (ir.NodeID, bool) { return n.id, n.bound }

// Parent returns the local parent, or nil for a root-level node.
func (n *Node) Parent() *Node { return n.parent }

// User returns the owner user id.
func (n *Node) User() ir.UserID { return n.user }

// CustomType returns the node marker.
func (n *Node) CustomType() ir.CustomType { return n.customType }

// Priority returns the node priority.
func (n *Node) Priority() ir.Priority { return n.priority }

// Token returns the correlation token sent with the create command.
func (n *Node) Token() string { return n.token }

// Registry returns the owning registry.
func (n *Node) Registry() *Registry { return n.reg }

// Children returns the child nodes in attachment order.
func (n *Node) Children() []*Node { return slices.Clone(n.children) }

// TagGroup returns the bound tag group with the given id.
func (n *Node) TagGroup(id ir.TagGroupID) (*TagGroup, bool) {
	tg, ok := n.tagGroups[id]
	return tg, ok
}

// PendingTagGroup returns the pending tag group for a marker.
func (n *Node) PendingTagGroup(ct ir.CustomType) (*TagGroup, bool) {
	tg, ok := n.pendingTagGroups[ct]
	return tg, ok
}

// TagGroupByType returns the first tag group with the marker, bound groups
// (lowest id) before a pending one.
func (n *Node) TagGroupByType(ct ir.CustomType) (*TagGroup, bool) {
	for _, tg := range n.TagGroups() {
		if tg.customType == ct {
			return tg, true
		}
	}
	return n.PendingTagGroup(ct)
}

// TagGroups returns the bound tag groups ordered by id.
func (n *Node) TagGroups() []*TagGroup {
	out := make([]*TagGroup, 0, len(n.tagGroups))
	for _, id := range sortedKeys(n.tagGroups) {
		out = append(out, n.tagGroups[id])
	}
	return out
}

// Layer returns the bound layer with the given id.
func (n *Node) Layer(id ir.LayerID) (*Layer, bool) {
	l, ok := n.layers[id]
	return l, ok
}

// PendingLayer returns the pending layer for a marker.
func (n *Node) PendingLayer(ct ir.CustomType) (*Layer, bool) {
	l, ok := n.pendingLayers[ct]
	return l, ok
}

// LayerByType returns the first layer with the marker, bound layers
// (lowest id) before a pending one.
func (n *Node) LayerByType(ct ir.CustomType) (*Layer, bool) {
	for _, l := range n.Layers() {
		if l.customType == ct {
			return l, true
		}
	}
	return n.PendingLayer(ct)
}

// Layers returns the bound layers ordered by id.
func (n *Node) Layers() []*Layer {
	out := make([]*Layer, 0, len(n.layers))
	for _, id := range sortedKeys(n.layers) {
		out = append(out, n.layers[id])
	}
	return out
}

// Destroy requests destruction. A node still being created is destroyed
// as soon as the server confirms it.
func (n *Node) Destroy() error {
	return n.destroy(n)
}

// SetPriority changes the node priority. The update is sent now when the
// node is bound, otherwise once it is confirmed.
func (n *Node) SetPriority(p ir.Priority) error {
	if n.state == Destroying || n.state == Destroyed {
		return &StateError{Kind: ir.KindNode, State: n.state, Transition: TransitionSetValue}
	}
	n.priority = p
	if !n.live() {
		return nil
	}
	return n.sendPriority()
}

func (n *Node) sendPriority() error {
	if err := n.reg.send(ir.Message{Op: ir.OpNodePrio, Node: n.id, Priority: n.priority}); err != nil {
		return err
	}
	n.remotePriority = n.priority
	return nil
}

// Link moves the node under parent. A link command is sent when both are
// bound; otherwise it is sent when the later of the two is confirmed.
func (n *Node) Link(parent *Node) error {
	if parent == nil || parent.reg != n.reg {
		return ErrForeignOwner
	}
	if !n.acceptsChildren() {
		return &StateError{Kind: ir.KindNode, State: n.state, Transition: TransitionLink}
	}
	if !parent.acceptsChildren() {
		return &StateError{Kind: ir.KindNode, State: parent.state, Transition: TransitionLink}
	}
	if parent == n || parent.isDescendantOf(n) {
		return ErrLinkCycle
	}
	if n.parent != parent {
		n.reparent(parent)
	}
	return n.sendLinkIfMoved()
}

// sendLinkIfMoved tells the server about a local parent it has not seen.
func (n *Node) sendLinkIfMoved() error {
	if n.parent == nil || !n.live() || !n.parent.live() || n.parent.id == n.remoteParent {
		return nil
	}
	if err := n.reg.send(ir.Message{Op: ir.OpNodeLink, Parent: n.parent.id, Node: n.id}); err != nil {
		return err
	}
	n.remoteParent = n.parent.id
	return nil
}

// confirmed flushes everything that waited for the node's id.
func (n *Node) confirmed() error {
	for _, ct := range sortedKeys(n.pendingTagGroups) {
		if err := n.pendingTagGroups[ct].flushCreate(); err != nil {
			return err
		}
	}
	if err := n.flushLayers(nil); err != nil {
		return err
	}
	if n.priority != n.remotePriority {
		if err := n.sendPriority(); err != nil {
			return err
		}
	}
	if err := n.sendLinkIfMoved(); err != nil {
		return err
	}
	for _, c := range n.children {
		if err := c.sendLinkIfMoved(); err != nil {
			return err
		}
	}
	return nil
}

// flushLayers sends deferred creates for pending layers under parent.
func (n *Node) flushLayers(parent *Layer) error {
	for _, ct := range sortedKeys(n.pendingLayers) {
		l := n.pendingLayers[ct]
		if l.parent != parent {
			continue
		}
		if err := l.flushCreate(); err != nil {
			return err
		}
	}
	return nil
}

// acceptsChildren reports whether new entities may be attached.
func (n *Node) acceptsChildren() bool {
	switch n.state {
	case Creating, Created, Assumed:
		return true
	default:
		return false
	}
}

func (n *Node) isDescendantOf(ancestor *Node) bool {
	for p := n.parent; p != nil; p = p.parent {
		if p == ancestor {
			return true
		}
	}
	return false
}

func (n *Node) addChild(c *Node) {
	n.children = append(n.children, c)
}

func (n *Node) removeChild(c *Node) {
	if i := slices.Index(n.children, c); i >= 0 {
		n.children = slices.Delete(n.children, i, i+1)
	}
}

func (n *Node) reparent(p *Node) {
	if n.parent != nil {
		n.parent.removeChild(n)
	}
	n.parent = p
	p.addChild(n)
}

// allocItem hands out the next layer item id. Ids are never reused; once
// the last id has been issued or seen, allocation fails.
func (n *Node) allocItem() (ir.ItemID, error) {
	if n.itemsExhausted {
		return 0, ErrItemsExhausted
	}
	id := n.nextItem
	if id == math.MaxUint32 {
		n.itemsExhausted = true
	} else {
		n.nextItem++
	}
	return id, nil
}

// observeItem keeps local allocation ahead of ids seen from the server.
func (n *Node) observeItem(id ir.ItemID) {
	if n.itemsExhausted || id < n.nextItem {
		return
	}
	if id == math.MaxUint32 {
		n.itemsExhausted = true
		return
	}
	n.nextItem = id + 1
}

func (n *Node) entityKind() ir.EntityKind { return ir.KindNode }

func (n *Node) sendCreate() error {
	return n.reg.send(ir.Message{
		Op:         ir.OpNodeCreate,
		Priority:   n.reg.priority,
		Parent:     n.reg.avatar,
		User:       n.user,
		CustomType: n.customType,
		Token:      n.token,
	})
}

func (n *Node) sendDestroy() error {
	return n.reg.send(ir.Message{Op: ir.OpNodeDestroy, Node: n.id})
}

func (n *Node) sendSubscribe() error {
	return n.reg.send(ir.Message{Op: ir.OpNodeSubscribe, Node: n.id, Version: n.version, CRC32: n.crc32})
}

// clean detaches the node from its parent and the registry and drops its
// whole subtree without sending commands.
func (n *Node) clean() {
	if n.parent != nil {
		n.parent.removeChild(n)
		n.parent = nil
	}
	n.dropTree()
}

func (n *Node) dropTree() {
	children := n.children
	n.children = nil
	for _, c := range children {
		c.parent = nil
		if c.createInFlight() {
			// The server places the node under the avatar, so n's
			// destroy does not reach it. Its confirmation destroys it.
			c.state = WantDestroy
			continue
		}
		c.drop()
		c.dropTree()
	}

	for _, id := range sortedKeys(n.tagGroups) {
		n.tagGroups[id].drop()
		n.tagGroups[id].dropTags()
	}
	for _, tg := range n.pendingTagGroups {
		tg.drop()
		tg.dropTags()
	}
	for _, l := range n.layers {
		l.drop()
		l.children = nil
	}
	for _, l := range n.pendingLayers {
		l.drop()
		l.children = nil
	}
	clear(n.tagGroups)
	clear(n.pendingTagGroups)
	clear(n.layers)
	clear(n.pendingLayers)

	if n.bound {
		if n.reg.nodes[n.id] == n {
			delete(n.reg.nodes, n.id)
		}
		n.reg.notify(Change{Type: ChangeDestroyed, Kind: ir.KindNode, Node: n.id})
		return
	}
	n.reg.removePending(n)
}

// createInFlight reports whether the node's create has been sent and the
// server has not confirmed it yet.
func (n *Node) createInFlight() bool {
	return !n.bound && (n.state == Creating || n.state == WantDestroy)
}

// sortedKeys returns map keys in ascending order.
func sortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
