// Package catalog declares the custom types a client knows about: which
// node markers exist, which tag groups, tags and layers they carry, and
// the value kind and arity of each tag and layer.
//
// Catalogs are written in CUE:
//
//	node: mesh: {
//		type: 126
//		layer: vertex: {type: 0, kind: "real", count: 3}
//	}
//	node: object: {
//		type: 125
//		taggroup: info: {
//			type: 1
//			tag: name: {type: 0, kind: "text", count: 1}
//		}
//	}
//
// A compiled Catalog implements entity.Schema, so a registry built with
// it rejects local tags and layers whose shape disagrees with the
// declaration.
package catalog

import (
	"cmp"
	"slices"

	"github.com/roach88/versync/internal/ir"
)

// Shape is the value kind and arity of a tag or layer.
type Shape struct {
	Kind  ir.ValueKind
	Count int
}

// Tag declares one tag inside a tag group.
type Tag struct {
	Name  string
	Type  ir.CustomType
	Shape Shape
}

// TagGroup declares one tag group on a node.
type TagGroup struct {
	Name string
	Type ir.CustomType
	Tags []Tag
}

// Layer declares one layer on a node.
type Layer struct {
	Name  string
	Type  ir.CustomType
	Shape Shape
}

// Node declares one node marker.
type Node struct {
	Name      string
	Type      ir.CustomType
	TagGroups []TagGroup
	Layers    []Layer
}

type tagKey struct{ node, group, tag ir.CustomType }
type layerKey struct{ node, layer ir.CustomType }

// Catalog is an immutable set of node declarations.
type Catalog struct {
	nodes  []Node
	byType map[ir.CustomType]int
	tags   map[tagKey]Shape
	layers map[layerKey]Shape
}

// New builds a catalog from declarations. Later declarations of the same
// marker path shadow earlier ones; Validate reports such collisions.
func New(nodes ...Node) *Catalog {
	c := &Catalog{
		nodes:  slices.Clone(nodes),
		byType: make(map[ir.CustomType]int, len(nodes)),
		tags:   make(map[tagKey]Shape),
		layers: make(map[layerKey]Shape),
	}
	slices.SortStableFunc(c.nodes, func(a, b Node) int {
		return cmp.Or(cmp.Compare(a.Type, b.Type), cmp.Compare(a.Name, b.Name))
	})
	for i, n := range c.nodes {
		c.byType[n.Type] = i
		for _, g := range n.TagGroups {
			for _, t := range g.Tags {
				c.tags[tagKey{n.Type, g.Type, t.Type}] = t.Shape
			}
		}
		for _, l := range n.Layers {
			c.layers[layerKey{n.Type, l.Type}] = l.Shape
		}
	}
	return c
}

// TagShape implements entity.Schema.
func (c *Catalog) TagShape(node, group, tag ir.CustomType) (ir.ValueKind, int, bool) {
	s, ok := c.tags[tagKey{node, group, tag}]
	return s.Kind, s.Count, ok
}

// LayerShape implements entity.Schema.
func (c *Catalog) LayerShape(node, layer ir.CustomType) (ir.ValueKind, int, bool) {
	s, ok := c.layers[layerKey{node, layer}]
	return s.Kind, s.Count, ok
}

// Node returns the declaration for a node marker.
func (c *Catalog) Node(ct ir.CustomType) (Node, bool) {
	i, ok := c.byType[ct]
	if !ok {
		return Node{}, false
	}
	return c.nodes[i], true
}

// NodeByName returns the declaration with the given CUE label.
func (c *Catalog) NodeByName(name string) (Node, bool) {
	for _, n := range c.nodes {
		if n.Name == name {
			return n, true
		}
	}
	return Node{}, false
}

// Nodes returns every declaration ordered by marker.
func (c *Catalog) Nodes() []Node {
	return slices.Clone(c.nodes)
}

// Len returns the number of node declarations.
func (c *Catalog) Len() int { return len(c.nodes) }

// TagGroup returns the tag group declaration with the given marker.
func (n Node) TagGroup(ct ir.CustomType) (TagGroup, bool) {
	for _, g := range n.TagGroups {
		if g.Type == ct {
			return g, true
		}
	}
	return TagGroup{}, false
}

// Layer returns the layer declaration with the given marker.
func (n Node) Layer(ct ir.CustomType) (Layer, bool) {
	for _, l := range n.Layers {
		if l.Type == ct {
			return l, true
		}
	}
	return Layer{}, false
}

// Tag returns the tag declaration with the given marker.
func (g TagGroup) Tag(ct ir.CustomType) (Tag, bool) {
	for _, t := range g.Tags {
		if t.Type == ct {
			return t, true
		}
	}
	return Tag{}, false
}
