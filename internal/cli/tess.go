package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/versync/internal/tess"
)

// TessInput is the YAML document read by the tess command.
//
//	boundary: [[0, 1], [1, 2], [2, 3], [3, 0]]
//	fragments:
//	  - [0, 1, 2]
//	  - [0, 2, 3]
type TessInput struct {
	Boundary  [][2]uint32 `yaml:"boundary"`
	Fragments [][]uint32  `yaml:"fragments"`
}

// TessResult is the reconstruction outcome.
type TessResult struct {
	Polygons  []tess.Polygon `json:"polygons"`
	Pending   []tess.Polygon `json:"pending"`
	OpenEdges []string       `json:"open_edges"`
	Complete  bool           `json:"complete"`
}

// NewTessCommand creates the tess command.
func NewTessCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tess <file.yaml>",
		Short: "Rebuild polygons from tessellated faces",
		Long: `Rebuild polygons from triangles and quads.

The input lists the mesh's boundary edges and the fragments in arrival
order. Fragments are joined across edges that are not boundary edges.
Polygons still waiting for a neighbouring fragment are reported as pending.

Exit codes:
  0 - Every polygon closed
  1 - Pending polygons remain
  2 - Command error (unreadable input, invalid fragment)

Examples:
  versync tess quad.yaml
  versync tess mesh.yaml --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTess(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runTess(opts *RootOptions, path string, cmd *cobra.Command) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read input", err)
	}
	in, err := parseTessInput(data)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to parse input", err)
	}

	r := tess.NewReconstructor()
	for _, e := range in.Boundary {
		r.AddBoundary(tess.NewEdge(tess.VertexID(e[0]), tess.VertexID(e[1])))
	}
	for i, f := range in.Fragments {
		verts := make([]tess.VertexID, len(f))
		for j, v := range f {
			verts[j] = tess.VertexID(v)
		}
		if err := r.AddFragment(verts...); err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("fragment %d", i), err)
		}
	}

	result := TessResult{
		Polygons: r.Polygons(),
		Pending:  r.Pending(),
		Complete: r.Complete(),
	}
	for _, e := range r.OpenEdges() {
		result.OpenEdges = append(result.OpenEdges, e.String())
	}

	out := opts.formatter(cmd)
	if !result.Complete {
		msg := fmt.Sprintf("%d polygon(s) still pending", len(result.Pending))
		if err := out.Fail("E_TESS_PENDING", msg, result, func(w io.Writer) { writeTess(w, result) }); err != nil {
			return err
		}
		return NewExitError(ExitFailure, msg)
	}
	return out.Emit(result, func(w io.Writer) { writeTess(w, result) })
}

func parseTessInput(data []byte) (TessInput, error) {
	var in TessInput
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&in); err != nil {
		return TessInput{}, err
	}
	return in, nil
}

func writeTess(w io.Writer, result TessResult) {
	for _, p := range result.Polygons {
		fmt.Fprintf(w, "polygon %v\n", []tess.VertexID(p))
	}
	for _, p := range result.Pending {
		fmt.Fprintf(w, "pending %v\n", []tess.VertexID(p))
	}
	if len(result.OpenEdges) > 0 {
		fmt.Fprintf(w, "open edges: %v\n", result.OpenEdges)
	}
}
