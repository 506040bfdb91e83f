package entity

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/versync/internal/ir"
)

// Layer is a sparse collection of fixed-arity tuples owned by a node,
// addressed by append-only item ids.
type Layer struct {
	EntityState

	node       *Node
	id         ir.LayerID
	parent     *Layer
	customType ir.CustomType
	valueKind  ir.ValueKind
	count      int
	createSent bool

	children []*Layer
	items    map[ir.ItemID]ir.Value
	// unsent lists items set before the layer had an id, in insertion order.
	unsent []ir.ItemID
}

func newLayer(n *Node, parent *Layer, ct ir.CustomType, kind ir.ValueKind, count int) *Layer {
	return &Layer{
		node:       n,
		parent:     parent,
		customType: ct,
		valueKind:  kind,
		count:      count,
		items:      make(map[ir.ItemID]ir.Value),
	}
}

// NewLayer creates a layer locally. parent may be nil; when set it must
// belong to the same node. The create command is sent once the node and
// the parent layer have ids.
func (n *Node) NewLayer(parent *Layer, ct ir.CustomType, kind ir.ValueKind, count int) (*Layer, error) {
	if !n.acceptsChildren() {
		return nil, &StateError{Kind: ir.KindNode, State: n.state, Transition: TransitionCreate}
	}
	if err := n.checkLayerShape(parent, ct, kind, count); err != nil {
		return nil, err
	}
	if _, dup := n.pendingLayers[ct]; dup {
		return nil, &MarkerError{Scope: n.scope(ir.KindLayer), Marker: ct}
	}

	l := newLayer(n, parent, ct, kind, count)
	if err := l.create(l); err != nil {
		return nil, err
	}
	if parent != nil {
		parent.children = append(parent.children, l)
	}
	n.pendingLayers[ct] = l
	return l, nil
}

// BindLayer creates a layer whose id the server already knows and
// subscribes to it.
func (n *Node) BindLayer(id ir.LayerID, parent *Layer, ct ir.CustomType, kind ir.ValueKind, count int) (*Layer, error) {
	if !n.live() {
		return nil, &StateError{Kind: ir.KindNode, State: n.state, Transition: TransitionCreate}
	}
	if existing, ok := n.layers[id]; ok {
		return nil, &StateError{Kind: ir.KindLayer, State: existing.state, Transition: TransitionCreate}
	}
	if err := n.checkLayerShape(parent, ct, kind, count); err != nil {
		return nil, err
	}

	l := newLayer(n, parent, ct, kind, count)
	l.id = id
	l.bound = true
	if err := l.create(l); err != nil {
		return nil, err
	}
	if parent != nil {
		parent.children = append(parent.children, l)
	}
	n.layers[id] = l
	return l, nil
}

func (n *Node) checkLayerShape(parent *Layer, ct ir.CustomType, kind ir.ValueKind, count int) error {
	if parent != nil && parent.node != n {
		return ErrForeignOwner
	}
	zero, err := ir.ZeroValue(kind, count)
	if err != nil {
		return err
	}
	if n.reg.schema == nil {
		return nil
	}
	wantKind, wantCount, ok := n.reg.schema.LayerShape(n.customType, ct)
	if !ok {
		return nil
	}
	return ir.CheckShape(zero, wantKind, wantCount)
}

// ID returns the server id and whether it has been assigned.
func (l *Layer) ID() (ir.LayerID, bool) { return l.id, l.bound }

// Node returns the owning node.
func (l *Layer) Node() *Node { return l.node }

// Parent returns the parent layer, or nil.
func (l *Layer) Parent() *Layer { return l.parent }

// Children returns the child layers.
func (l *Layer) Children() []*Layer { return slices.Clone(l.children) }

// CustomType returns the layer marker.
func (l *Layer) CustomType() ir.CustomType { return l.customType }

// Kind returns the fixed tuple kind.
func (l *Layer) Kind() ir.ValueKind { return l.valueKind }

// Count returns the fixed tuple arity.
func (l *Layer) Count() int { return l.count }

// Len returns the number of items.
func (l *Layer) Len() int { return len(l.items) }

// Item returns a copy of the tuple stored under id.
func (l *Layer) Item(id ir.ItemID) (ir.Value, bool) {
	v, ok := l.items[id]
	if !ok {
		return nil, false
	}
	return ir.CloneValue(v), true
}

// ItemIDs returns the ids of all items in ascending order.
func (l *Layer) ItemIDs() []ir.ItemID {
	return sortedKeys(l.items)
}

// Items returns a copy of the item map.
func (l *Layer) Items() map[ir.ItemID]ir.Value {
	out := make(map[ir.ItemID]ir.Value, len(l.items))
	for id, v := range l.items {
		out[id] = ir.CloneValue(v)
	}
	return out
}

// Add stores v under a freshly allocated item id and returns the id.
// Ids come from the node's counter and are never reused.
func (l *Layer) Add(v ir.Value) (ir.ItemID, error) {
	if err := l.checkMutable(); err != nil {
		return 0, err
	}
	if err := ir.CheckShape(v, l.valueKind, l.count); err != nil {
		return 0, err
	}
	id, err := l.node.allocItem()
	if err != nil {
		return 0, err
	}
	l.items[id] = ir.CloneValue(v)
	return id, l.publish(id)
}

// Set replaces the tuple of an existing item.
func (l *Layer) Set(id ir.ItemID, v ir.Value) error {
	if err := l.checkMutable(); err != nil {
		return err
	}
	if _, ok := l.items[id]; !ok {
		return fmt.Errorf("set item %d: %w", id, ErrUnknownItem)
	}
	if err := ir.CheckShape(v, l.valueKind, l.count); err != nil {
		return err
	}
	l.items[id] = ir.CloneValue(v)
	return l.publish(id)
}

// Remove deletes an item and sends an unset when the layer is bound.
func (l *Layer) Remove(id ir.ItemID) error {
	if err := l.checkMutable(); err != nil {
		return err
	}
	if _, ok := l.items[id]; !ok {
		return fmt.Errorf("remove item %d: %w", id, ErrUnknownItem)
	}
	delete(l.items, id)
	if i := slices.Index(l.unsent, id); i >= 0 {
		l.unsent = slices.Delete(l.unsent, i, i+1)
		return nil
	}
	if !l.live() {
		return nil
	}
	return l.node.reg.send(ir.Message{Op: ir.OpLayerUnsetValue, Node: l.node.id, Layer: l.id, Item: id})
}

// Destroy requests destruction.
func (l *Layer) Destroy() error {
	return l.destroy(l)
}

func (l *Layer) checkMutable() error {
	switch l.state {
	case Creating, Created, Assumed:
		return nil
	default:
		return &StateError{Kind: ir.KindLayer, State: l.state, Transition: TransitionSetValue}
	}
}

// publish sends an item now, or queues it until the layer is confirmed.
func (l *Layer) publish(id ir.ItemID) error {
	if !l.live() {
		if !slices.Contains(l.unsent, id) {
			l.unsent = append(l.unsent, id)
		}
		return nil
	}
	return l.sendItem(id)
}

func (l *Layer) sendItem(id ir.ItemID) error {
	return l.node.reg.send(ir.Message{
		Op:    ir.OpLayerSetValue,
		Node:  l.node.id,
		Layer: l.id,
		Item:  id,
		Value: ir.CloneValue(l.items[id]),
	})
}

func (l *Layer) flushCreate() error {
	if l.createSent {
		return nil
	}
	return l.sendCreate()
}

// confirmed sends queued items and child layer creates.
func (l *Layer) confirmed() error {
	for len(l.unsent) > 0 {
		id := l.unsent[0]
		if _, ok := l.items[id]; ok {
			if err := l.sendItem(id); err != nil {
				return err
			}
		}
		l.unsent = l.unsent[1:]
	}
	l.unsent = nil
	return l.node.flushLayers(l)
}

func (l *Layer) entityKind() ir.EntityKind { return ir.KindLayer }

func (l *Layer) sendCreate() error {
	if !l.node.live() {
		return nil
	}
	parentID := ir.NoLayer
	if l.parent != nil {
		if !l.parent.live() {
			return nil
		}
		parentID = l.parent.id
	}
	err := l.node.reg.send(ir.Message{
		Op:          ir.OpLayerCreate,
		Node:        l.node.id,
		ParentLayer: parentID,
		Kind:        l.valueKind,
		Count:       l.count,
		CustomType:  l.customType,
	})
	if err != nil {
		return err
	}
	l.createSent = true
	return nil
}

func (l *Layer) sendDestroy() error {
	return l.node.reg.send(ir.Message{Op: ir.OpLayerDestroy, Node: l.node.id, Layer: l.id})
}

func (l *Layer) sendSubscribe() error {
	return l.node.reg.send(ir.Message{
		Op:      ir.OpLayerSubscribe,
		Node:    l.node.id,
		Layer:   l.id,
		Version: l.version,
		CRC32:   l.crc32,
	})
}

// clean detaches the layer and drops its child layers.
func (l *Layer) clean() {
	if l.parent != nil {
		if i := slices.Index(l.parent.children, l); i >= 0 {
			l.parent.children = slices.Delete(l.parent.children, i, i+1)
		}
	}
	l.dropTree()
}

func (l *Layer) dropTree() {
	n := l.node
	children := l.children
	l.children = nil
	for _, c := range children {
		c.drop()
		c.dropTree()
	}
	clear(l.items)
	l.unsent = nil

	if !l.bound {
		if n.pendingLayers[l.customType] == l {
			delete(n.pendingLayers, l.customType)
		}
		return
	}
	if n.layers[l.id] == l {
		delete(n.layers, l.id)
	}
	n.reg.notify(Change{Type: ChangeDestroyed, Kind: ir.KindLayer, Node: n.id, Layer: l.id})
}

// ReceiveLayerCreate binds a layer confirmation, reconciling a pending
// layer with the same marker or creating a remote one.
func (r *Registry) ReceiveLayerCreate(node ir.NodeID, id, parent ir.LayerID, kind ir.ValueKind, count int, ct ir.CustomType) error {
	n, ok := r.nodes[node]
	if !ok {
		slog.Debug("layer create for unknown node ignored", "node", node, "layer", id)
		return nil
	}

	if l, ok := n.layers[id]; ok {
		if !l.reconfirmable() {
			slog.Debug("duplicate layer create ignored", "node", node, "layer", id)
			return nil
		}
		return r.confirmLayer(l)
	}

	l, pending := n.pendingLayers[ct]
	if pending {
		delete(n.pendingLayers, ct)
	} else {
		if _, err := ir.ZeroValue(kind, count); err != nil {
			slog.Warn("layer create with invalid shape ignored", "node", node, "layer", id, "error", err)
			return nil
		}
		var parentLayer *Layer
		if parent != ir.NoLayer {
			parentLayer = n.layers[parent]
		}
		l = newLayer(n, parentLayer, ct, kind, count)
		if parentLayer != nil {
			parentLayer.children = append(parentLayer.children, l)
		}
	}
	l.id = id
	l.bound = true
	l.createSent = true
	n.layers[id] = l
	return r.confirmLayer(l)
}

func (r *Registry) confirmLayer(l *Layer) error {
	if l.state != Created {
		if err := l.receiveCreate(l); err != nil {
			return err
		}
		r.notify(Change{Type: ChangeBound, Kind: ir.KindLayer, Node: l.node.id, Layer: l.id})
		if l.state != Created {
			return nil
		}
	}
	if err := l.confirmed(); err != nil {
		return err
	}
	l.flushed = true
	return nil
}

// ReceiveLayerDestroy finalizes a layer destroy.
func (r *Registry) ReceiveLayerDestroy(node ir.NodeID, id ir.LayerID) error {
	l, ok := r.lookupLayer(node, id)
	if !ok {
		return nil
	}
	return l.receiveDestroy(l)
}

// ReceiveLayerSetValue stores a remote item. The node's item counter moves
// past the remote id so local allocations never collide with it.
func (r *Registry) ReceiveLayerSetValue(node ir.NodeID, id ir.LayerID, item ir.ItemID, v ir.Value) error {
	l, ok := r.lookupLayer(node, id)
	if !ok {
		return nil
	}
	if err := ir.CheckShape(v, l.valueKind, l.count); err != nil {
		slog.Warn("layer item with wrong shape ignored", "node", node, "layer", id, "item", item, "error", err)
		return nil
	}
	l.items[item] = ir.CloneValue(v)
	l.node.observeItem(item)
	r.notify(Change{Type: ChangeItemSet, Kind: ir.KindLayer, Node: node, Layer: id, Item: item})
	return nil
}

// ReceiveLayerUnsetValue removes a remote item.
func (r *Registry) ReceiveLayerUnsetValue(node ir.NodeID, id ir.LayerID, item ir.ItemID) error {
	l, ok := r.lookupLayer(node, id)
	if !ok {
		return nil
	}
	if _, ok := l.items[item]; !ok {
		slog.Debug("unset for unknown item ignored", "node", node, "layer", id, "item", item)
		return nil
	}
	delete(l.items, item)
	l.node.observeItem(item)
	r.notify(Change{Type: ChangeItemUnset, Kind: ir.KindLayer, Node: node, Layer: id, Item: item})
	return nil
}
