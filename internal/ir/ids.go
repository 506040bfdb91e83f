package ir

import "fmt"

// NodeID is the server-assigned identifier of a node.
type NodeID uint32

// TagGroupID identifies a tag group within its node.
type TagGroupID uint16

// TagID identifies a tag within its tag group.
type TagID uint16

// LayerID identifies a layer within its node.
type LayerID uint16

// ItemID addresses one tuple inside a layer. Item ids are append-only.
type ItemID uint32

// UserID identifies the owner of a node.
type UserID uint16

// CustomType is the marker distinguishing the semantic kind of an entity
// within its owner's scope. Pending entities are matched on it.
type CustomType uint16

// Priority is the transport priority attached to outbound commands.
type Priority uint8

const (
	// DefaultPriority is the protocol default priority.
	DefaultPriority Priority = 128

	// RootNodeID is the root of every server graph.
	RootNodeID NodeID = 0
	// AvatarParentNodeID parents the avatar nodes of connected clients.
	AvatarParentNodeID NodeID = 1
	// UserParentNodeID parents the user nodes.
	UserParentNodeID NodeID = 2
	// SceneParentNodeID parents shared scene content.
	SceneParentNodeID NodeID = 3

	// NoLayer marks the absence of a parent layer.
	NoLayer LayerID = 0xFFFF
)

// EntityKind names the four synchronized entity kinds.
type EntityKind string

const (
	KindNode     EntityKind = "node"
	KindTagGroup EntityKind = "taggroup"
	KindTag      EntityKind = "tag"
	KindLayer    EntityKind = "layer"
)

// Scope identifies the owner scope of a pending entity for diagnostics.
// Node is the owning node; TagGroup is set for tags.
type Scope struct {
	Kind     EntityKind
	Node     NodeID
	TagGroup TagGroupID
	Bound    bool
}

func (s Scope) String() string {
	if !s.Bound {
		return fmt.Sprintf("%s(unbound owner)", s.Kind)
	}
	if s.Kind == KindTag {
		return fmt.Sprintf("%s(node=%d, taggroup=%d)", s.Kind, s.Node, s.TagGroup)
	}
	return fmt.Sprintf("%s(node=%d)", s.Kind, s.Node)
}
