package entity

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/versync/internal/ir"
)

// Session is the outbound half of the transport. Encoding, framing and
// delivery are its concern.
type Session interface {
	Send(msg ir.Message) error
}

// SessionFunc adapts a function to Session.
type SessionFunc func(msg ir.Message) error

// Send calls f(msg).
func (f SessionFunc) Send(msg ir.Message) error { return f(msg) }

// TokenGenerator produces correlation tokens for local node creates.
// Implemented by engine.UUIDv7Generator and engine.FixedGenerator.
type TokenGenerator interface {
	Generate() string
}

// Schema constrains tag and layer shapes by marker.
// ok is false when the marker is not declared.
type Schema interface {
	TagShape(node, group, tag ir.CustomType) (kind ir.ValueKind, count int, ok bool)
	LayerShape(node, layer ir.CustomType) (kind ir.ValueKind, count int, ok bool)
}

// Registry owns the client replica: bound nodes by id and pending nodes by
// marker. Entities hold a non-owning back-reference to their registry.
type Registry struct {
	session   Session
	tokens    TokenGenerator
	schema    Schema
	observers []Observer
	priority  ir.Priority

	user      ir.UserID
	avatar    ir.NodeID
	connected bool

	nodes map[ir.NodeID]*Node
	// pending holds local nodes awaiting confirmation, per marker.
	// The last element is the most recent creation.
	pending map[ir.CustomType][]*Node
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithTokens attaches a correlation token to every local node create.
// Without a generator, confirmations are matched LIFO by marker only.
func WithTokens(g TokenGenerator) RegistryOption {
	return func(r *Registry) {
		r.tokens = g
	}
}

// WithSchema enforces declared tag and layer shapes on local construction.
func WithSchema(s Schema) RegistryOption {
	return func(r *Registry) {
		r.schema = s
	}
}

// WithObserver registers an observer. Observers are called in
// registration order.
func WithObserver(o Observer) RegistryOption {
	return func(r *Registry) {
		r.observers = append(r.observers, o)
	}
}

// WithPriority sets the transport priority of node create commands.
func WithPriority(p ir.Priority) RegistryOption {
	return func(r *Registry) {
		r.priority = p
	}
}

// WithLocalScope sets the local user and avatar node before a connect
// accept is received.
func WithLocalScope(user ir.UserID, avatar ir.NodeID) RegistryOption {
	return func(r *Registry) {
		r.user = user
		r.avatar = avatar
	}
}

// NewRegistry creates an empty replica that sends commands through session.
func NewRegistry(session Session, opts ...RegistryOption) *Registry {
	r := &Registry{
		session:  session,
		priority: ir.DefaultPriority,
		nodes:    make(map[ir.NodeID]*Node),
		pending:  make(map[ir.CustomType][]*Node),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// User returns the local user id.
func (r *Registry) User() ir.UserID { return r.user }

// Avatar returns the local avatar node id.
func (r *Registry) Avatar() ir.NodeID { return r.avatar }

// Connected reports whether a connect accept has been received and not
// yet terminated.
func (r *Registry) Connected() bool { return r.connected }

// Node returns the bound node with the given id.
func (r *Registry) Node(id ir.NodeID) (*Node, bool) {
	n, ok := r.nodes[id]
	return n, ok
}

// NodeIDs returns the ids of all bound nodes in ascending order.
func (r *Registry) NodeIDs() []ir.NodeID {
	ids := make([]ir.NodeID, 0, len(r.nodes))
	for id := range r.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Pending returns the pending nodes for a marker, most recent first.
func (r *Registry) Pending(ct ir.CustomType) []*Node {
	stack := r.pending[ct]
	out := make([]*Node, len(stack))
	for i, n := range stack {
		out[len(stack)-1-i] = n
	}
	return out
}

// PendingCount returns the number of pending nodes across all markers.
func (r *Registry) PendingCount() int {
	total := 0
	for _, stack := range r.pending {
		total += len(stack)
	}
	return total
}

// NewNode creates a node locally. The node has no id until the server
// confirms it; parent may be nil for a root-level node.
func (r *Registry) NewNode(parent *Node, ct ir.CustomType) (*Node, error) {
	if err := r.checkParent(parent); err != nil {
		return nil, err
	}

	n := newNode(r, parent, r.user, ct)
	if r.tokens != nil {
		n.token = r.tokens.Generate()
	}
	if err := n.create(n); err != nil {
		return nil, err
	}

	if parent != nil {
		parent.addChild(n)
	}
	r.pending[ct] = append(r.pending[ct], n)
	return n, nil
}

// BindNode creates a node whose id the server already knows and
// subscribes to it.
func (r *Registry) BindNode(id ir.NodeID, parent *Node, user ir.UserID, ct ir.CustomType) (*Node, error) {
	if err := r.checkParent(parent); err != nil {
		return nil, err
	}
	if existing, ok := r.nodes[id]; ok {
		return nil, &StateError{Kind: ir.KindNode, State: existing.state, Transition: TransitionCreate}
	}

	n := newNode(r, parent, user, ct)
	n.id = id
	n.bound = true
	if parent != nil {
		n.remoteParent = parent.id
	}
	if err := n.create(n); err != nil {
		return nil, err
	}

	if parent != nil {
		parent.addChild(n)
	}
	r.nodes[id] = n
	return n, nil
}

func (r *Registry) checkParent(parent *Node) error {
	if parent == nil {
		return nil
	}
	if parent.reg != r {
		return ErrForeignOwner
	}
	if !parent.acceptsChildren() {
		return &StateError{Kind: ir.KindNode, State: parent.state, Transition: TransitionCreate}
	}
	return nil
}

// Receive applies one inbound notification. Lookup misses are ignored;
// lifecycle violations are returned.
func (r *Registry) Receive(msg ir.Message) error {
	switch msg.Op {
	case ir.OpNodeCreate:
		return r.ReceiveNodeCreate(msg.Node, msg.Parent, msg.User, msg.CustomType, msg.Token)
	case ir.OpNodeDestroy:
		return r.ReceiveNodeDestroy(msg.Node)
	case ir.OpNodeLink:
		return r.ReceiveNodeLink(msg.Parent, msg.Node)
	case ir.OpNodePrio:
		return r.ReceiveNodePriority(msg.Node, msg.Priority)
	case ir.OpTagGroupCreate:
		return r.ReceiveTagGroupCreate(msg.Node, msg.TagGroup, msg.CustomType)
	case ir.OpTagGroupDestroy:
		return r.ReceiveTagGroupDestroy(msg.Node, msg.TagGroup)
	case ir.OpTagCreate:
		return r.ReceiveTagCreate(msg.Node, msg.TagGroup, msg.Tag, msg.Kind, msg.Count, msg.CustomType)
	case ir.OpTagSetValue:
		return r.ReceiveTagSetValue(msg.Node, msg.TagGroup, msg.Tag, msg.Value)
	case ir.OpTagDestroy:
		return r.ReceiveTagDestroy(msg.Node, msg.TagGroup, msg.Tag)
	case ir.OpLayerCreate:
		return r.ReceiveLayerCreate(msg.Node, msg.Layer, msg.ParentLayer, msg.Kind, msg.Count, msg.CustomType)
	case ir.OpLayerDestroy:
		return r.ReceiveLayerDestroy(msg.Node, msg.Layer)
	case ir.OpLayerSetValue:
		return r.ReceiveLayerSetValue(msg.Node, msg.Layer, msg.Item, msg.Value)
	case ir.OpLayerUnsetValue:
		return r.ReceiveLayerUnsetValue(msg.Node, msg.Layer, msg.Item)
	case ir.OpConnectAccept:
		return r.ReceiveConnectAccept(msg.User, msg.Node)
	case ir.OpConnectTerminate:
		r.ReceiveConnectTerminate()
		return nil
	default:
		return fmt.Errorf("receive: %s is not a notification", msg.Op)
	}
}

// ReceiveConnectAccept records the local scope and subscribes to the root
// node and the scene parent node.
func (r *Registry) ReceiveConnectAccept(user ir.UserID, avatar ir.NodeID) error {
	r.user = user
	r.avatar = avatar
	r.connected = true
	slog.Info("connected", "user", user, "avatar", avatar)

	root, ok := r.nodes[ir.RootNodeID]
	if !ok {
		var err error
		if root, err = r.BindNode(ir.RootNodeID, nil, 0, 0); err != nil {
			return fmt.Errorf("bind root node: %w", err)
		}
	}
	if _, ok := r.nodes[ir.SceneParentNodeID]; !ok {
		if _, err := r.BindNode(ir.SceneParentNodeID, root, 0, 0); err != nil {
			return fmt.Errorf("bind scene node: %w", err)
		}
	}
	return nil
}

// ReceiveConnectTerminate drops the whole replica without sending commands.
func (r *Registry) ReceiveConnectTerminate() {
	for _, id := range r.NodeIDs() {
		n, ok := r.nodes[id]
		if !ok {
			continue
		}
		n.drop()
		n.clean()
	}
	for ct, stack := range r.pending {
		for _, n := range slices.Clone(stack) {
			n.drop()
			n.clean()
		}
		delete(r.pending, ct)
	}
	r.connected = false
	slog.Info("connection terminated")
	r.notify(Change{Type: ChangeReset})
}

// ReceiveNodeCreate binds a node confirmation. A pending local node is
// matched by correlation token when the confirmation echoes one, otherwise
// by marker, most recent first. Anything else becomes a fresh remote node.
func (r *Registry) ReceiveNodeCreate(id, parent ir.NodeID, user ir.UserID, ct ir.CustomType, token string) error {
	if n, ok := r.nodes[id]; ok {
		if !n.reconfirmable() {
			slog.Debug("duplicate node create ignored", "node", id, "state", n.state)
			return nil
		}
		if n.state != Created {
			n.remoteParent = parent
		}
		return r.confirmNode(n)
	}

	n := r.matchPending(parent, user, ct, token)
	if n == nil {
		n = newNode(r, r.nodes[parent], user, ct)
		n.token = token
		if n.parent != nil {
			n.parent.addChild(n)
		}
	}
	n.id = id
	n.bound = true
	n.remoteParent = parent
	r.nodes[id] = n
	return r.confirmNode(n)
}

// confirmNode advances a bound node to Created and flushes what waited for
// its id. A failed send leaves the node where a redelivered confirmation
// picks it up again.
func (r *Registry) confirmNode(n *Node) error {
	if n.state != Created {
		if err := n.receiveCreate(n); err != nil {
			return err
		}
		slog.Debug("node bound", "node", n.id, "custom_type", n.customType, "state", n.state)
		r.notify(Change{Type: ChangeBound, Kind: ir.KindNode, Node: n.id})
		if n.state != Created {
			return nil
		}
	}
	if err := n.confirmed(); err != nil {
		return err
	}
	n.flushed = true
	return nil
}

// matchPending pops the local node a confirmation refers to, or returns nil.
func (r *Registry) matchPending(parent ir.NodeID, user ir.UserID, ct ir.CustomType, token string) *Node {
	if token != "" {
		for marker, stack := range r.pending {
			for i, n := range stack {
				if n.token == token {
					r.pending[marker] = slices.Delete(stack, i, i+1)
					return n
				}
			}
		}
		return nil
	}

	if user != r.user || parent != r.avatar {
		return nil
	}
	stack := r.pending[ct]
	if len(stack) == 0 {
		return nil
	}
	n := stack[len(stack)-1]
	r.pending[ct] = stack[:len(stack)-1]
	return n
}

func (r *Registry) removePending(n *Node) {
	stack := r.pending[n.customType]
	if i := slices.Index(stack, n); i >= 0 {
		r.pending[n.customType] = slices.Delete(stack, i, i+1)
	}
	if len(r.pending[n.customType]) == 0 {
		delete(r.pending, n.customType)
	}
}

// ReceiveNodeDestroy finalizes a node destroy. Unknown ids are ignored.
func (r *Registry) ReceiveNodeDestroy(id ir.NodeID) error {
	n, ok := r.nodes[id]
	if !ok {
		slog.Debug("destroy for unknown node ignored", "node", id)
		return nil
	}
	return n.receiveDestroy(n)
}

// ReceiveNodeLink moves child under parent. Unknown ids are ignored.
func (r *Registry) ReceiveNodeLink(parent, child ir.NodeID) error {
	p, okParent := r.nodes[parent]
	c, okChild := r.nodes[child]
	if !okParent || !okChild {
		slog.Debug("link for unknown node ignored", "parent", parent, "child", child)
		return nil
	}
	c.remoteParent = parent
	if c.parent == p {
		return nil
	}
	if p.isDescendantOf(c) {
		slog.Warn("link would create a cycle, ignored", "parent", parent, "child", child)
		return nil
	}
	c.reparent(p)
	r.notify(Change{Type: ChangeLinked, Kind: ir.KindNode, Node: child})
	return nil
}

// ReceiveNodePriority records a remote priority change.
func (r *Registry) ReceiveNodePriority(id ir.NodeID, prio ir.Priority) error {
	n, ok := r.nodes[id]
	if !ok {
		slog.Debug("priority for unknown node ignored", "node", id)
		return nil
	}
	n.priority = prio
	n.remotePriority = prio
	r.notify(Change{Type: ChangePriority, Kind: ir.KindNode, Node: id})
	return nil
}

// lookupTagGroup resolves a bound tag group, logging misses.
func (r *Registry) lookupTagGroup(node ir.NodeID, tg ir.TagGroupID) (*TagGroup, bool) {
	n, ok := r.nodes[node]
	if !ok {
		slog.Debug("unknown node ignored", "node", node, "taggroup", tg)
		return nil, false
	}
	group, ok := n.tagGroups[tg]
	if !ok {
		slog.Debug("unknown tag group ignored", "node", node, "taggroup", tg)
		return nil, false
	}
	return group, true
}

// lookupLayer resolves a bound layer, logging misses.
func (r *Registry) lookupLayer(node ir.NodeID, layer ir.LayerID) (*Layer, bool) {
	n, ok := r.nodes[node]
	if !ok {
		slog.Debug("unknown node ignored", "node", node, "layer", layer)
		return nil, false
	}
	l, ok := n.layers[layer]
	if !ok {
		slog.Debug("unknown layer ignored", "node", node, "layer", layer)
		return nil, false
	}
	return l, true
}

func (r *Registry) send(msg ir.Message) error {
	if err := r.session.Send(msg); err != nil {
		return fmt.Errorf("send %s: %w", msg.Op, err)
	}
	slog.Debug("sent", "op", msg.Op, "node", msg.Node)
	return nil
}

func (r *Registry) notify(c Change) {
	for _, o := range r.observers {
		o.Observe(c)
	}
}
