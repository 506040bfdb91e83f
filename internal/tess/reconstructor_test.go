package tess

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// permutations returns every ordering of fragments.
func permutations(fragments [][]VertexID) [][][]VertexID {
	if len(fragments) <= 1 {
		return [][][]VertexID{fragments}
	}
	var out [][][]VertexID
	for i := range fragments {
		rest := make([][]VertexID, 0, len(fragments)-1)
		rest = append(rest, fragments[:i]...)
		rest = append(rest, fragments[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([][]VertexID{fragments[i]}, p...))
		}
	}
	return out
}

func ring(n int) []Edge {
	edges := make([]Edge, n)
	for i := 0; i < n; i++ {
		edges[i] = NewEdge(VertexID(i), VertexID((i+1)%n))
	}
	return edges
}

func TestReconstruct_EveryArrivalOrder(t *testing.T) {
	tests := []struct {
		name      string
		boundary  []Edge
		fragments [][]VertexID
		want      []Polygon
	}{
		{
			name:      "quad from two triangles",
			boundary:  ring(4),
			fragments: [][]VertexID{{0, 1, 2}, {0, 2, 3}},
			want:      []Polygon{{0, 1, 2, 3}},
		},
		{
			name:      "pentagon from three triangles",
			boundary:  ring(5),
			fragments: [][]VertexID{{0, 1, 2}, {0, 2, 3}, {0, 3, 4}},
			want:      []Polygon{{0, 1, 2, 3, 4}},
		},
		{
			name:      "hexagon from triangle, quad, triangle",
			boundary:  ring(6),
			fragments: [][]VertexID{{0, 1, 2}, {0, 2, 3, 5}, {3, 4, 5}},
			want:      []Polygon{{0, 1, 2, 3, 4, 5}},
		},
		{
			name:      "heptagon fan",
			boundary:  ring(7),
			fragments: [][]VertexID{{0, 1, 2}, {0, 2, 3}, {0, 3, 4}, {0, 4, 5}, {0, 5, 6}},
			want:      []Polygon{{0, 1, 2, 3, 4, 5, 6}},
		},
		{
			name: "two quads sharing a boundary edge",
			boundary: []Edge{
				NewEdge(0, 1), NewEdge(1, 2), NewEdge(2, 3), NewEdge(3, 0),
				NewEdge(1, 4), NewEdge(4, 5), NewEdge(5, 2),
			},
			fragments: [][]VertexID{{0, 1, 2}, {0, 2, 3}, {1, 4, 5}, {1, 5, 2}},
			want:      []Polygon{{0, 1, 2, 3}, {1, 4, 5, 2}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i, order := range permutations(tt.fragments) {
				t.Run(fmt.Sprintf("order %d", i), func(t *testing.T) {
					got, err := Reconstruct(tt.boundary, order)
					require.NoError(t, err)
					assert.Equal(t, tt.want, got, "arrival order %v", order)
				})
			}
		})
	}
}

func TestReconstructor_BoundaryTriangleIsFinal(t *testing.T) {
	r := NewReconstructor(ring(3)...)

	require.NoError(t, r.AddFragment(2, 0, 1))

	assert.Equal(t, []Polygon{{0, 1, 2}}, r.Polygons())
	assert.True(t, r.Complete())
}

func TestReconstructor_OpenUntilNeighbourArrives(t *testing.T) {
	r := NewReconstructor(ring(4)...)

	require.NoError(t, r.AddFragment(0, 1, 2))
	assert.Empty(t, r.Polygons())
	assert.False(t, r.Complete())
	assert.Equal(t, []Edge{{A: 0, B: 2}}, r.OpenEdges())
	assert.Equal(t, []Polygon{{0, 1, 2}}, r.Pending())

	require.NoError(t, r.AddFragment(0, 2, 3))
	assert.Equal(t, []Polygon{{0, 1, 2, 3}}, r.Polygons())
	assert.Empty(t, r.Pending())
	assert.True(t, r.Complete())
}

func TestReconstructor_OppositeWindingIsJoined(t *testing.T) {
	r := NewReconstructor(ring(4)...)

	require.NoError(t, r.AddFragment(0, 1, 2))
	require.NoError(t, r.AddFragment(0, 3, 2))

	assert.Equal(t, []Polygon{{0, 1, 2, 3}}, r.Polygons())
}

func TestReconstructor_DuplicateFragmentIgnored(t *testing.T) {
	r := NewReconstructor(ring(4)...)

	require.NoError(t, r.AddFragment(0, 1, 2))
	require.NoError(t, r.AddFragment(1, 2, 0))
	require.NoError(t, r.AddFragment(0, 2, 3))
	require.NoError(t, r.AddFragment(0, 2, 3))

	assert.Equal(t, []Polygon{{0, 1, 2, 3}}, r.Polygons())
}

func TestReconstructor_InvalidFragments(t *testing.T) {
	r := NewReconstructor()

	assert.ErrorIs(t, r.AddFragment(0, 1), ErrFragmentSize)
	assert.ErrorIs(t, r.AddFragment(0, 1, 2, 3, 4), ErrFragmentSize)
	assert.ErrorIs(t, r.AddFragment(0, 1, 1), ErrDegenerateFragment)

	_, err := Reconstruct(nil, [][]VertexID{{0, 1, 2}, {3}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fragment 1")
}

func TestReconstructor_AddBoundaryLater(t *testing.T) {
	r := NewReconstructor()
	r.AddBoundary(Edge{A: 2, B: 0}, NewEdge(1, 2), NewEdge(0, 1))

	assert.True(t, r.IsBoundary(NewEdge(0, 2)))
	require.NoError(t, r.AddFragment(0, 1, 2))
	assert.Equal(t, []Polygon{{0, 1, 2}}, r.Polygons())
}

func TestEdge(t *testing.T) {
	assert.Equal(t, Edge{A: 1, B: 4}, NewEdge(4, 1))
	assert.Equal(t, "(1,4)", NewEdge(4, 1).String())
}
