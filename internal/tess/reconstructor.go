// Package tess rebuilds polygons from triangulated or quadrangulated
// fragments.
//
// A triangulator splits an n-gon along edges that are not part of the
// mesh's edge list. Given that edge list (the boundary) and the fragments
// in any order, Reconstructor joins fragments across their shared inner
// edges until every polygon is closed.
package tess

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
)

// VertexID indexes a mesh vertex.
type VertexID uint32

// Edge is an undirected edge. A is never greater than B.
type Edge struct {
	A, B VertexID
}

// NewEdge returns the edge between a and b.
func NewEdge(a, b VertexID) Edge {
	if a > b {
		a, b = b, a
	}
	return Edge{A: a, B: b}
}

func (e Edge) String() string { return fmt.Sprintf("(%d,%d)", e.A, e.B) }

// Polygon is a closed vertex loop. Reported polygons start at their
// lowest vertex and keep the winding of their fragments.
type Polygon []VertexID

var (
	// ErrFragmentSize is returned for fragments with fewer than 3 or more
	// than 4 vertices.
	ErrFragmentSize = errors.New("fragment must have 3 or 4 vertices")

	// ErrDegenerateFragment is returned for fragments that repeat a vertex.
	ErrDegenerateFragment = errors.New("fragment repeats a vertex")
)

type polygon struct {
	loop []VertexID
	// open holds the inner edges still waiting for their other fragment.
	open map[Edge]struct{}
}

type fragmentKey [4]VertexID

// Reconstructor assembles polygons incrementally. It is not safe for
// concurrent use.
type Reconstructor struct {
	boundary map[Edge]struct{}
	open     map[Edge]*polygon
	seen     map[fragmentKey]struct{}
	done     []Polygon
}

// NewReconstructor creates a reconstructor for a mesh with the given
// boundary edges.
func NewReconstructor(boundary ...Edge) *Reconstructor {
	r := &Reconstructor{
		boundary: make(map[Edge]struct{}, len(boundary)),
		open:     make(map[Edge]*polygon),
		seen:     make(map[fragmentKey]struct{}),
	}
	r.AddBoundary(boundary...)
	return r
}

// AddBoundary extends the boundary edge set. Fragments already added are
// not reclassified.
func (r *Reconstructor) AddBoundary(edges ...Edge) {
	for _, e := range edges {
		r.boundary[NewEdge(e.A, e.B)] = struct{}{}
	}
}

// IsBoundary reports whether e is a boundary edge.
func (r *Reconstructor) IsBoundary(e Edge) bool {
	_, ok := r.boundary[NewEdge(e.A, e.B)]
	return ok
}

// AddFragment adds one fragment. Its inner edges either wait for the
// neighbouring fragment or join it to the polygon already waiting there.
// A fragment delivered twice is ignored.
func (r *Reconstructor) AddFragment(verts ...VertexID) error {
	if len(verts) < 3 || len(verts) > 4 {
		return fmt.Errorf("%w: got %d", ErrFragmentSize, len(verts))
	}
	key := fragmentKey{}
	sorted := slices.Sorted(slices.Values(verts))
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			return fmt.Errorf("%w: %v", ErrDegenerateFragment, verts)
		}
	}
	copy(key[:], sorted)
	if len(sorted) == 3 {
		key[3] = sorted[2]
	}
	if _, dup := r.seen[key]; dup {
		return nil
	}
	r.seen[key] = struct{}{}

	p := &polygon{loop: slices.Clone(verts), open: make(map[Edge]struct{})}
	for _, e := range loopEdges(verts) {
		if r.IsBoundary(e) {
			continue
		}
		q, ok := r.open[e]
		switch {
		case !ok:
			r.open[e] = p
			p.open[e] = struct{}{}
		case q == p:
			// Both sides already belong to this polygon.
			delete(r.open, e)
			delete(p.open, e)
		default:
			delete(r.open, e)
			delete(q.open, e)
			p = r.absorb(q, p, e)
		}
	}

	if len(p.open) == 0 {
		r.done = append(r.done, normalize(p.loop))
	}
	return nil
}

// absorb splices src into dst along e and redirects src's open edges.
func (r *Reconstructor) absorb(dst, src *polygon, e Edge) *polygon {
	dst.loop = splice(dst.loop, src.loop, e)
	for oe := range src.open {
		dst.open[oe] = struct{}{}
		r.open[oe] = dst
	}
	return dst
}

// Polygons returns the closed polygons ordered by their vertex lists.
func (r *Reconstructor) Polygons() []Polygon {
	out := make([]Polygon, len(r.done))
	for i, p := range r.done {
		out[i] = slices.Clone(p)
	}
	slices.SortFunc(out, func(a, b Polygon) int { return slices.Compare(a, b) })
	return out
}

// Pending returns the polygons still waiting for fragments.
func (r *Reconstructor) Pending() []Polygon {
	var seen []*polygon
	for _, p := range r.open {
		if !slices.Contains(seen, p) {
			seen = append(seen, p)
		}
	}
	out := make([]Polygon, len(seen))
	for i, p := range seen {
		out[i] = normalize(p.loop)
	}
	slices.SortFunc(out, func(a, b Polygon) int { return slices.Compare(a, b) })
	return out
}

// OpenEdges returns the inner edges whose second fragment has not arrived.
func (r *Reconstructor) OpenEdges() []Edge {
	out := make([]Edge, 0, len(r.open))
	for e := range r.open {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b Edge) int {
		return cmp.Or(cmp.Compare(a.A, b.A), cmp.Compare(a.B, b.B))
	})
	return out
}

// Complete reports whether no inner edge is waiting.
func (r *Reconstructor) Complete() bool { return len(r.open) == 0 }

// Reconstruct runs a fresh Reconstructor over fragments.
func Reconstruct(boundary []Edge, fragments [][]VertexID) ([]Polygon, error) {
	r := NewReconstructor(boundary...)
	for i, f := range fragments {
		if err := r.AddFragment(f...); err != nil {
			return nil, fmt.Errorf("fragment %d: %w", i, err)
		}
	}
	return r.Polygons(), nil
}

func loopEdges(loop []VertexID) []Edge {
	edges := make([]Edge, len(loop))
	for i, v := range loop {
		edges[i] = NewEdge(v, loop[(i+1)%len(loop)])
	}
	return edges
}

// splice joins two loops sharing edge e into one loop without e. When the
// loops wind in opposite directions around e, b is reversed first.
func splice(a, b []VertexID, e Edge) []VertexID {
	i := edgeIndex(a, e)
	if i < 0 {
		return append(slices.Clone(a), b...)
	}
	u, v := a[i], a[(i+1)%len(a)]

	// a walked from v around to u, then b from u around to v.
	path := rotate(a, (i+1)%len(a))
	j := directedIndex(b, v, u)
	if j < 0 {
		b = slices.Clone(b)
		slices.Reverse(b)
		j = directedIndex(b, v, u)
	}
	if j < 0 {
		return append(path, b...)
	}
	rest := rotate(b, (j+1)%len(b))
	return append(path, rest[1:len(rest)-1]...)
}

// edgeIndex returns i such that loop[i] and its successor form e.
func edgeIndex(loop []VertexID, e Edge) int {
	for i, v := range loop {
		if NewEdge(v, loop[(i+1)%len(loop)]) == e {
			return i
		}
	}
	return -1
}

// directedIndex returns i such that loop[i] == from and its successor is to.
func directedIndex(loop []VertexID, from, to VertexID) int {
	for i, v := range loop {
		if v == from && loop[(i+1)%len(loop)] == to {
			return i
		}
	}
	return -1
}

func rotate(loop []VertexID, start int) []VertexID {
	out := make([]VertexID, 0, len(loop))
	out = append(out, loop[start:]...)
	return append(out, loop[:start]...)
}

func normalize(loop []VertexID) Polygon {
	if len(loop) == 0 {
		return nil
	}
	return Polygon(rotate(loop, slices.Index(loop, slices.Min(loop))))
}
