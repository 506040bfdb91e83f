// Package mesh shares polygon meshes and named objects through a replica.
//
// A mesh node carries three layers: vertex positions, the mesh's real
// edges, and tessellated faces. Faces are triangles or quads over vertex
// item ids; a triangle stores 0 as its fourth index. Polygons rebuilds
// the original n-gons from the faces using the edge layer as boundary.
//
// Mesh and Object are thin views over entity nodes. Like the entities they
// wrap, they must only be used from the goroutine that owns the replica
// (inside an engine mutation).
package mesh

import (
	"errors"
	"fmt"

	"github.com/roach88/versync/internal/entity"
	"github.com/roach88/versync/internal/ir"
	"github.com/roach88/versync/internal/tess"
)

// Markers used by meshes and objects. They match catalog.Builtin().
const (
	MeshType   ir.CustomType = 126
	VertexType ir.CustomType = 0
	EdgeType   ir.CustomType = 1
	FaceType   ir.CustomType = 2

	ObjectType    ir.CustomType = 125
	InfoGroupType ir.CustomType = 1
	NameTagType   ir.CustomType = 0
)

var (
	// ErrWrongNodeType is returned when wrapping a node with another marker.
	ErrWrongNodeType = errors.New("node has the wrong custom type")

	// ErrNoLayer is returned by mutations when the layer has not been
	// created or announced yet.
	ErrNoLayer = errors.New("layer not available")

	// ErrNoTag is returned when the name tag is not known yet.
	ErrNoTag = errors.New("tag not available")
)

// Vertex is a position.
type Vertex [3]float64

// Mesh is a view over a mesh node.
type Mesh struct {
	node *entity.Node
}

// New creates a mesh node under parent (nil for the avatar) with its
// vertex, edge and face layers. The layers are created as soon as the
// server confirms the node.
func New(r *entity.Registry, parent *entity.Node) (*Mesh, error) {
	n, err := r.NewNode(parent, MeshType)
	if err != nil {
		return nil, fmt.Errorf("create mesh node: %w", err)
	}
	layers := []struct {
		ct    ir.CustomType
		kind  ir.ValueKind
		count int
	}{
		{VertexType, ir.KindReal, 3},
		{EdgeType, ir.KindInteger, 2},
		{FaceType, ir.KindInteger, 4},
	}
	for _, l := range layers {
		if _, err := n.NewLayer(nil, l.ct, l.kind, l.count); err != nil {
			return nil, fmt.Errorf("create mesh layer %d: %w", l.ct, err)
		}
	}
	return &Mesh{node: n}, nil
}

// Open wraps an existing mesh node, typically one created remotely.
func Open(n *entity.Node) (*Mesh, error) {
	if n.CustomType() != MeshType {
		return nil, fmt.Errorf("%w: %d", ErrWrongNodeType, n.CustomType())
	}
	return &Mesh{node: n}, nil
}

// Node returns the wrapped node.
func (m *Mesh) Node() *entity.Node { return m.node }

func (m *Mesh) layer(ct ir.CustomType) (*entity.Layer, error) {
	l, ok := m.node.LayerByType(ct)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoLayer, ct)
	}
	return l, nil
}

// AddVertex adds a vertex and returns its id.
func (m *Mesh) AddVertex(v Vertex) (tess.VertexID, error) {
	l, err := m.layer(VertexType)
	if err != nil {
		return 0, err
	}
	id, err := l.Add(ir.Reals(v[:]...))
	return tess.VertexID(id), err
}

// MoveVertex replaces a vertex position.
func (m *Mesh) MoveVertex(id tess.VertexID, v Vertex) error {
	l, err := m.layer(VertexType)
	if err != nil {
		return err
	}
	return l.Set(ir.ItemID(id), ir.Reals(v[:]...))
}

// RemoveVertex removes a vertex. Edges and faces using it are left to the
// caller.
func (m *Mesh) RemoveVertex(id tess.VertexID) error {
	l, err := m.layer(VertexType)
	if err != nil {
		return err
	}
	return l.Remove(ir.ItemID(id))
}

// AddEdge adds a mesh edge and returns its item id.
func (m *Mesh) AddEdge(a, b tess.VertexID) (ir.ItemID, error) {
	l, err := m.layer(EdgeType)
	if err != nil {
		return 0, err
	}
	return l.Add(ir.Integers(int64(a), int64(b)))
}

// AddFace adds a triangle or quad and returns its item id.
func (m *Mesh) AddFace(verts ...tess.VertexID) (ir.ItemID, error) {
	v, err := EncodeFace(verts...)
	if err != nil {
		return 0, err
	}
	l, err := m.layer(FaceType)
	if err != nil {
		return 0, err
	}
	return l.Add(v)
}

// RemoveEdge removes a mesh edge.
func (m *Mesh) RemoveEdge(id ir.ItemID) error {
	l, err := m.layer(EdgeType)
	if err != nil {
		return err
	}
	return l.Remove(id)
}

// RemoveFace removes a face.
func (m *Mesh) RemoveFace(id ir.ItemID) error {
	l, err := m.layer(FaceType)
	if err != nil {
		return err
	}
	return l.Remove(id)
}

// Vertices returns every vertex by id. Empty when the layer is missing.
func (m *Mesh) Vertices() map[tess.VertexID]Vertex {
	out := make(map[tess.VertexID]Vertex)
	l, err := m.layer(VertexType)
	if err != nil {
		return out
	}
	for id, v := range l.Items() {
		r, ok := v.(ir.RealValue)
		if !ok || len(r) != 3 {
			continue
		}
		out[tess.VertexID(id)] = Vertex{r[0], r[1], r[2]}
	}
	return out
}

// Edges returns the mesh edges in item order.
func (m *Mesh) Edges() []tess.Edge {
	l, err := m.layer(EdgeType)
	if err != nil {
		return nil
	}
	var out []tess.Edge
	for _, id := range l.ItemIDs() {
		v, _ := l.Item(id)
		iv, ok := v.(ir.IntegerValue)
		if !ok || len(iv) != 2 {
			continue
		}
		out = append(out, tess.NewEdge(tess.VertexID(iv[0]), tess.VertexID(iv[1])))
	}
	return out
}

// Faces returns the decoded faces in item order. Malformed items are
// skipped.
func (m *Mesh) Faces() [][]tess.VertexID {
	l, err := m.layer(FaceType)
	if err != nil {
		return nil
	}
	var out [][]tess.VertexID
	for _, id := range l.ItemIDs() {
		v, _ := l.Item(id)
		f, err := DecodeFace(v)
		if err != nil {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Polygons rebuilds the mesh polygons from its faces and edges.
func (m *Mesh) Polygons() ([]tess.Polygon, error) {
	return tess.Reconstruct(m.Edges(), m.Faces())
}

// EncodeFace packs a triangle or quad into a face item. A quad whose last
// vertex is 0 is rotated so 0 leads; a trailing 0 marks a triangle.
func EncodeFace(verts ...tess.VertexID) (ir.Value, error) {
	switch len(verts) {
	case 3:
		return ir.Integers(int64(verts[0]), int64(verts[1]), int64(verts[2]), 0), nil
	case 4:
		if verts[3] == 0 {
			verts = []tess.VertexID{0, verts[0], verts[1], verts[2]}
		}
		return ir.Integers(int64(verts[0]), int64(verts[1]), int64(verts[2]), int64(verts[3])), nil
	default:
		return nil, fmt.Errorf("%w: got %d", tess.ErrFragmentSize, len(verts))
	}
}

// DecodeFace unpacks a face item.
func DecodeFace(v ir.Value) ([]tess.VertexID, error) {
	iv, ok := v.(ir.IntegerValue)
	if !ok || len(iv) != 4 {
		return nil, fmt.Errorf("face must be 4 integers, got %v", v)
	}
	n := 4
	if iv[3] == 0 {
		n = 3
	}
	out := make([]tess.VertexID, n)
	for i := range out {
		if iv[i] < 0 || iv[i] > int64(^uint32(0)) {
			return nil, fmt.Errorf("face index %d out of range", iv[i])
		}
		out[i] = tess.VertexID(iv[i])
	}
	return out, nil
}
