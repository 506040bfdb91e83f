package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/versync/internal/tess"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestTessCommandQuad(t *testing.T) {
	path := writeFile(t, "quad.yaml", `
boundary: [[0, 1], [1, 2], [2, 3], [3, 0]]
fragments:
  - [0, 2, 3]
  - [0, 1, 2]
`)
	out, err := runSub(t, NewTessCommand, "text", path)
	require.NoError(t, err)
	assert.Equal(t, "polygon [0 1 2 3]\n", out)
}

func TestTessCommandPending(t *testing.T) {
	path := writeFile(t, "half.yaml", `
boundary: [[0, 1], [1, 2], [2, 3], [3, 0]]
fragments:
  - [0, 1, 2]
`)
	out, err := runSub(t, NewTessCommand, "json", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TessResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Complete)
	assert.Equal(t, []tess.Polygon{{0, 1, 2}}, resp.Data.Pending)
	assert.Equal(t, []string{"(0,2)"}, resp.Data.OpenEdges)
}

func TestTessCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown field", "edges: []\n", "failed to parse input"},
		{"bad fragment", "fragments:\n  - [0, 1]\n", "fragment 0"},
		{"degenerate", "fragments:\n  - [0, 1, 1]\n", "repeats a vertex"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runSub(t, NewTessCommand, "text", writeFile(t, "in.yaml", tt.body))
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := runSub(t, NewTessCommand, "text", "/nonexistent.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read input")
}
