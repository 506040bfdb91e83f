package entity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/versync/internal/ir"
	"github.com/roach88/versync/internal/testutil"
)

func TestNode_PendingUntilConfirmed(t *testing.T) {
	r, sess := newTestRegistry(t)

	n, err := r.NewNode(nil, 126)
	require.NoError(t, err)

	assert.Equal(t, Creating, n.State())
	_, bound := n.ID()
	assert.False(t, bound)
	assert.Equal(t, []*Node{n}, r.Pending(126))
	assert.Empty(t, r.NodeIDs())
	assert.Equal(t, []ir.Message{{
		Op:         ir.OpNodeCreate,
		Priority:   ir.DefaultPriority,
		Parent:     testAvatar,
		User:       testUser,
		CustomType: 126,
	}}, sess.Messages())

	require.NoError(t, r.ReceiveNodeCreate(70, testAvatar, testUser, 126, ""))

	id, bound := n.ID()
	assert.True(t, bound)
	assert.Equal(t, ir.NodeID(70), id)
	assert.Equal(t, Created, n.State())
	assert.Empty(t, r.Pending(126))
	got, ok := r.Node(70)
	require.True(t, ok)
	assert.Same(t, n, got)
	assert.Equal(t, []ir.Op{ir.OpNodeCreate, ir.OpNodeSubscribe}, sess.Ops())
}

func TestNode_DestroyWhileCreating(t *testing.T) {
	r, sess := newTestRegistry(t)

	n, err := r.NewNode(nil, 126)
	require.NoError(t, err)
	require.NoError(t, n.Destroy())
	assert.Equal(t, WantDestroy, n.State())
	assert.Equal(t, 0, sess.Count(ir.OpNodeDestroy))

	require.NoError(t, r.ReceiveNodeCreate(70, testAvatar, testUser, 126, ""))

	assert.Equal(t, Destroying, n.State())
	assert.Equal(t, 0, sess.Count(ir.OpNodeSubscribe))
	assert.Equal(t, 1, sess.Count(ir.OpNodeDestroy))
	last, _ := sess.Last()
	assert.Equal(t, ir.Message{Op: ir.OpNodeDestroy, Node: 70}, last)

	require.NoError(t, r.ReceiveNodeDestroy(70))
	assert.Equal(t, Destroyed, n.State())
	_, ok := r.Node(70)
	assert.False(t, ok)
	assert.Equal(t, 1, sess.Count(ir.OpNodeDestroy))
}

func TestNode_DestroyDetachesSubtreeWithoutCommands(t *testing.T) {
	r, sess := newTestRegistry(t)

	parent := confirmedNode(t, r, 10, 1)
	require.NoError(t, r.ReceiveNodeCreate(11, 10, 7, 2, ""))
	require.NoError(t, r.ReceiveNodeCreate(12, 11, 7, 2, ""))
	child, _ := r.Node(11)
	grandchild, _ := r.Node(12)
	pendingChild, err := r.NewNode(parent, 5)
	require.NoError(t, err)
	require.Len(t, parent.Children(), 2)

	sess.Reset()
	require.NoError(t, parent.Destroy())
	require.NoError(t, r.ReceiveNodeDestroy(10))

	assert.Equal(t, []ir.Op{ir.OpNodeDestroy}, sess.Ops())
	for _, n := range []*Node{parent, child, grandchild} {
		assert.Equal(t, Destroyed, n.State())
	}
	assert.Empty(t, r.NodeIDs())
	assert.Empty(t, parent.Children())
	assert.Nil(t, child.Parent())

	// The pending child was created under the avatar, not under parent.
	assert.Equal(t, WantDestroy, pendingChild.State())
	assert.Nil(t, pendingChild.Parent())
	assert.Equal(t, []*Node{pendingChild}, r.Pending(5))
}

func TestNode_PendingChildOfDestroyedParentDestroyedOnConfirm(t *testing.T) {
	r, sess := newTestRegistry(t)
	parent := confirmedNode(t, r, 70, 1)
	child, err := r.NewNode(parent, 2)
	require.NoError(t, err)
	sess.Reset()

	require.NoError(t, parent.Destroy())
	require.NoError(t, r.ReceiveNodeDestroy(70))
	assert.Equal(t, WantDestroy, child.State())

	require.NoError(t, r.ReceiveNodeCreate(71, testAvatar, testUser, 2, ""))

	got, ok := r.Node(71)
	require.True(t, ok)
	assert.Same(t, child, got)
	assert.Equal(t, Destroying, child.State())
	assert.Equal(t, []ir.Message{
		{Op: ir.OpNodeDestroy, Node: 70},
		{Op: ir.OpNodeDestroy, Node: 71},
	}, sess.Messages())
	assert.Zero(t, r.PendingCount())

	require.NoError(t, r.ReceiveNodeDestroy(71))
	assert.Equal(t, Destroyed, child.State())
	assert.Empty(t, r.NodeIDs())
	assert.Zero(t, sess.Count(ir.OpNodeSubscribe))
}

func TestNode_RemoteDestroyOfCreatedNode(t *testing.T) {
	r, sess := newTestRegistry(t)
	n := confirmedNode(t, r, 70, 1)
	sess.Reset()

	require.NoError(t, r.ReceiveNodeDestroy(70))

	assert.Equal(t, Destroyed, n.State())
	assert.Empty(t, sess.Messages())
	assert.True(t, IsStateError(n.Destroy()))
}

func TestNode_DeferredChildrenFlushOnConfirm(t *testing.T) {
	r, sess := newTestRegistry(t)
	scene, err := r.BindNode(ir.SceneParentNodeID, nil, 0, 0)
	require.NoError(t, err)

	n, err := r.NewNode(scene, 126)
	require.NoError(t, err)
	tg, err := n.NewTagGroup(1)
	require.NoError(t, err)
	tag, err := tg.NewTag(0, ir.Texts("Cube"))
	require.NoError(t, err)
	l, err := n.NewLayer(nil, 0, ir.KindReal, 3)
	require.NoError(t, err)
	item, err := l.Add(ir.Reals(1, 2, 3))
	require.NoError(t, err)
	require.NoError(t, n.SetPriority(200))

	sess.Reset()
	require.NoError(t, r.ReceiveNodeCreate(70, testAvatar, testUser, 126, ""))

	assert.Equal(t, []ir.Message{
		{Op: ir.OpNodeSubscribe, Node: 70},
		{Op: ir.OpTagGroupCreate, Node: 70, CustomType: 1},
		{Op: ir.OpLayerCreate, Node: 70, ParentLayer: ir.NoLayer, Kind: ir.KindReal, Count: 3},
		{Op: ir.OpNodePrio, Node: 70, Priority: 200},
		{Op: ir.OpNodeLink, Parent: ir.SceneParentNodeID, Node: 70},
	}, sess.Messages())

	sess.Reset()
	require.NoError(t, r.ReceiveTagGroupCreate(70, 0, 1))
	require.NoError(t, r.ReceiveTagCreate(70, 0, 0, ir.KindText, 1, 0))
	require.NoError(t, r.ReceiveLayerCreate(70, 0, ir.NoLayer, ir.KindReal, 3, 0))

	assert.Equal(t, []ir.Message{
		{Op: ir.OpTagGroupSubscribe, Node: 70},
		{Op: ir.OpTagCreate, Node: 70, Kind: ir.KindText, Count: 1},
		{Op: ir.OpTagSetValue, Node: 70, Value: ir.Texts("Cube")},
		{Op: ir.OpLayerSubscribe, Node: 70},
		{Op: ir.OpLayerSetValue, Node: 70, Item: item, Value: ir.Reals(1, 2, 3)},
	}, sess.Messages())
	assert.Equal(t, Created, tg.State())
	assert.Equal(t, Created, tag.State())
	assert.Equal(t, Created, l.State())
}

func TestNode_TokenMatching(t *testing.T) {
	r, _ := newTestRegistry(t, WithTokens(testutil.NewSequenceTokens("tok")))

	a, err := r.NewNode(nil, 126)
	require.NoError(t, err)
	b, err := r.NewNode(nil, 126)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", a.Token())
	assert.Equal(t, "tok-2", b.Token())

	// The older node is confirmed first; the token wins over LIFO order.
	require.NoError(t, r.ReceiveNodeCreate(71, testAvatar, testUser, 126, "tok-1"))
	id, _ := a.ID()
	assert.Equal(t, ir.NodeID(71), id)
	assert.Equal(t, Creating, b.State())

	require.NoError(t, r.ReceiveNodeCreate(72, testAvatar, testUser, 126, "tok-2"))
	id, _ = b.ID()
	assert.Equal(t, ir.NodeID(72), id)
	assert.Zero(t, r.PendingCount())
}

func TestNode_LIFOMatchingWithoutTokens(t *testing.T) {
	r, _ := newTestRegistry(t)

	a, err := r.NewNode(nil, 126)
	require.NoError(t, err)
	b, err := r.NewNode(nil, 126)
	require.NoError(t, err)
	assert.Equal(t, []*Node{b, a}, r.Pending(126))

	require.NoError(t, r.ReceiveNodeCreate(71, testAvatar, testUser, 126, ""))

	id, _ := b.ID()
	assert.Equal(t, ir.NodeID(71), id)
	assert.Equal(t, []*Node{a}, r.Pending(126))
}

func TestNode_UnattributableConfirmationIsRemote(t *testing.T) {
	tests := []struct {
		name   string
		parent ir.NodeID
		user   ir.UserID
		token  string
	}{
		{"other user", testAvatar, 7, ""},
		{"other parent", ir.SceneParentNodeID, testUser, ""},
		{"foreign token", testAvatar, testUser, "someone-else"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRegistry(t)
			local, err := r.NewNode(nil, 126)
			require.NoError(t, err)

			require.NoError(t, r.ReceiveNodeCreate(90, tt.parent, tt.user, 126, tt.token))

			remote, ok := r.Node(90)
			require.True(t, ok)
			assert.NotSame(t, local, remote)
			assert.Equal(t, Created, remote.State())
			assert.Equal(t, Creating, local.State())
			assert.Equal(t, []*Node{local}, r.Pending(126))
		})
	}
}

func TestNode_DuplicateConfirmationIgnored(t *testing.T) {
	r, sess := newTestRegistry(t)
	n := confirmedNode(t, r, 70, 1)

	require.NoError(t, r.ReceiveNodeCreate(70, testAvatar, testUser, 1, ""))

	assert.Equal(t, Created, n.State())
	assert.Equal(t, 1, sess.Count(ir.OpNodeSubscribe))
}

func TestNode_BoundNodeConfirmation(t *testing.T) {
	r, sess := newTestRegistry(t)

	n, err := r.BindNode(40, nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, Assumed, n.State())
	assert.True(t, n.Subscribed())

	require.NoError(t, r.ReceiveNodeCreate(40, 0, 0, 0, ""))
	assert.Equal(t, Created, n.State())
	assert.Equal(t, 1, sess.Count(ir.OpNodeSubscribe))
}

func TestNode_SubscribeCarriesVersion(t *testing.T) {
	r, sess := newTestRegistry(t)

	n, err := r.NewNode(nil, 1)
	require.NoError(t, err)
	n.SetVersion(9, 0xbeef)
	require.NoError(t, r.ReceiveNodeCreate(70, testAvatar, testUser, 1, ""))

	last, _ := sess.Last()
	assert.Equal(t, ir.Message{Op: ir.OpNodeSubscribe, Node: 70, Version: 9, CRC32: 0xbeef}, last)
}

func TestNode_LinkBoundNodes(t *testing.T) {
	r, sess := newTestRegistry(t)
	a := confirmedNode(t, r, 70, 1)
	b := confirmedNode(t, r, 71, 1)
	sess.Reset()

	require.NoError(t, b.Link(a))

	assert.Same(t, a, b.Parent())
	assert.Equal(t, []*Node{b}, a.Children())
	assert.Equal(t, []ir.Message{{Op: ir.OpNodeLink, Parent: 70, Node: 71}}, sess.Messages())

	// Linking to the current parent sends nothing.
	require.NoError(t, b.Link(a))
	assert.Len(t, sess.Messages(), 1)
}

func TestNode_LinkPendingChildSentOnConfirm(t *testing.T) {
	r, sess := newTestRegistry(t)
	a := confirmedNode(t, r, 70, 1)
	b, err := r.NewNode(nil, 2)
	require.NoError(t, err)
	sess.Reset()

	require.NoError(t, b.Link(a))
	assert.Empty(t, sess.Messages())

	require.NoError(t, r.ReceiveNodeCreate(71, testAvatar, testUser, 2, ""))

	assert.Equal(t, []ir.Message{
		{Op: ir.OpNodeSubscribe, Node: 71},
		{Op: ir.OpNodeLink, Parent: 70, Node: 71},
	}, sess.Messages())
}

func TestNode_LinkChildrenOfPendingParentOnConfirm(t *testing.T) {
	r, sess := newTestRegistry(t)
	p, err := r.NewNode(nil, 1)
	require.NoError(t, err)
	c := confirmedNode(t, r, 71, 2)
	require.NoError(t, c.Link(p))
	sess.Reset()

	require.NoError(t, r.ReceiveNodeCreate(70, testAvatar, testUser, 1, ""))

	assert.Equal(t, []ir.Message{
		{Op: ir.OpNodeSubscribe, Node: 70},
		{Op: ir.OpNodeLink, Parent: 70, Node: 71},
	}, sess.Messages())
}

func TestNode_LinkRejectsCycles(t *testing.T) {
	r, _ := newTestRegistry(t)
	a := confirmedNode(t, r, 70, 1)
	b := confirmedNode(t, r, 71, 1)
	require.NoError(t, b.Link(a))

	assert.ErrorIs(t, a.Link(b), ErrLinkCycle)
	assert.ErrorIs(t, a.Link(a), ErrLinkCycle)
	assert.ErrorIs(t, a.Link(nil), ErrForeignOwner)
}

func TestNode_ReceiveLink(t *testing.T) {
	var changes []Change
	r, _ := newTestRegistry(t, WithObserver(ObserverFunc(func(c Change) {
		changes = append(changes, c)
	})))
	require.NoError(t, r.ReceiveNodeCreate(10, 0, 7, 1, ""))
	require.NoError(t, r.ReceiveNodeCreate(11, 10, 7, 1, ""))
	require.NoError(t, r.ReceiveNodeCreate(12, 10, 7, 1, ""))
	root, _ := r.Node(10)
	a, _ := r.Node(11)
	b, _ := r.Node(12)
	changes = nil

	require.NoError(t, r.ReceiveNodeLink(11, 12))

	assert.Same(t, a, b.Parent())
	assert.Equal(t, []*Node{a}, root.Children())
	assert.Equal(t, []Change{{Type: ChangeLinked, Kind: ir.KindNode, Node: 12}}, changes)

	// A cycle-forming link is ignored.
	require.NoError(t, r.ReceiveNodeLink(12, 10))
	assert.Nil(t, root.Parent())
}

func TestNode_SetPriority(t *testing.T) {
	r, sess := newTestRegistry(t)
	n := confirmedNode(t, r, 70, 1)
	sess.Reset()

	require.NoError(t, n.SetPriority(10))
	assert.Equal(t, ir.Priority(10), n.Priority())
	assert.Equal(t, []ir.Message{{Op: ir.OpNodePrio, Node: 70, Priority: 10}}, sess.Messages())

	require.NoError(t, n.Destroy())
	assert.True(t, IsStateError(n.SetPriority(20)))
}

func TestNode_SendFailureLeavesNodeUnregistered(t *testing.T) {
	r, sess := newTestRegistry(t)
	sess.FailOn(ir.OpNodeCreate, errors.New("closed"))

	_, err := r.NewNode(nil, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send node_create")
	assert.Zero(t, r.PendingCount())
}

func TestNode_FailedSubscribeRetriedOnRedelivery(t *testing.T) {
	r, sess := newTestRegistry(t)
	n, err := r.NewNode(nil, 1)
	require.NoError(t, err)
	tg, err := n.NewTagGroup(4)
	require.NoError(t, err)
	sess.FailOn(ir.OpNodeSubscribe, errors.New("down"))

	require.Error(t, r.ReceiveNodeCreate(70, testAvatar, testUser, 1, ""))
	assert.Equal(t, Creating, n.State())
	assert.False(t, n.Subscribed())
	assert.Zero(t, sess.Count(ir.OpTagGroupCreate))

	sess.FailOn(ir.OpNodeSubscribe, nil)
	require.NoError(t, r.ReceiveNodeCreate(70, testAvatar, testUser, 1, ""))
	assert.Equal(t, Created, n.State())
	assert.Equal(t, 1, sess.Count(ir.OpNodeSubscribe))
	assert.Equal(t, 1, sess.Count(ir.OpTagGroupCreate))
	assert.Equal(t, Creating, tg.State())

	// Once everything is flushed a further copy is a plain duplicate.
	require.NoError(t, r.ReceiveNodeCreate(70, testAvatar, testUser, 1, ""))
	assert.Equal(t, 1, sess.Count(ir.OpNodeSubscribe))
	assert.Equal(t, 1, sess.Count(ir.OpTagGroupCreate))
}

func TestNode_FailedFlushRetriedOnRedelivery(t *testing.T) {
	r, sess := newTestRegistry(t)
	n, err := r.NewNode(nil, 1)
	require.NoError(t, err)
	_, err = n.NewTagGroup(4)
	require.NoError(t, err)
	require.NoError(t, n.SetPriority(9))
	sess.FailOn(ir.OpTagGroupCreate, errors.New("down"))

	require.Error(t, r.ReceiveNodeCreate(70, testAvatar, testUser, 1, ""))
	assert.Equal(t, Created, n.State())
	assert.Zero(t, sess.Count(ir.OpNodePrio))

	sess.FailOn(ir.OpTagGroupCreate, nil)
	require.NoError(t, r.ReceiveNodeCreate(70, testAvatar, testUser, 1, ""))
	assert.Equal(t, 1, sess.Count(ir.OpNodeSubscribe))
	assert.Equal(t, 1, sess.Count(ir.OpTagGroupCreate))
	assert.Equal(t, 1, sess.Count(ir.OpNodePrio))
}

func TestNode_FailedDeferredDestroyRetriedOnRedelivery(t *testing.T) {
	r, sess := newTestRegistry(t)
	n, err := r.NewNode(nil, 1)
	require.NoError(t, err)
	require.NoError(t, n.Destroy())
	sess.FailOn(ir.OpNodeDestroy, errors.New("down"))

	require.Error(t, r.ReceiveNodeCreate(70, testAvatar, testUser, 1, ""))
	assert.Equal(t, WantDestroy, n.State())

	sess.FailOn(ir.OpNodeDestroy, nil)
	require.NoError(t, r.ReceiveNodeCreate(70, testAvatar, testUser, 1, ""))
	assert.Equal(t, Destroying, n.State())
	assert.Equal(t, 1, sess.Count(ir.OpNodeDestroy))
	assert.Zero(t, sess.Count(ir.OpNodeSubscribe))

	require.NoError(t, r.ReceiveNodeDestroy(70))
	assert.Equal(t, Destroyed, n.State())
}

func TestNode_ChildOfDestroyingParentRejected(t *testing.T) {
	r, _ := newTestRegistry(t)
	p := confirmedNode(t, r, 70, 1)
	require.NoError(t, p.Destroy())

	_, err := r.NewNode(p, 1)
	assert.True(t, IsStateError(err))
	_, err = p.NewTagGroup(1)
	assert.True(t, IsStateError(err))
	_, err = p.NewLayer(nil, 1, ir.KindInteger, 1)
	assert.True(t, IsStateError(err))
}
