package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogCommandBuiltin(t *testing.T) {
	out, err := runSub(t, NewCatalogCommand, "text", "builtin")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ builtin: 2 node marker(s)")
	assert.Contains(t, out, "  object (125)\n    tag info.name(0) text×1\n")
	assert.Contains(t, out, "    layer face(2) integer×4\n")
}

func TestCatalogCommandFile(t *testing.T) {
	path := writeFile(t, "lamp.cue", `
node: lamp: {
	type: 40
	layer: glow: {type: 3, kind: "real", count: 1}
}
`)
	out, err := runSub(t, NewCatalogCommand, "json", path)
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   CatalogResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Nodes, 1)
	assert.Equal(t, CatalogNode{Name: "lamp", Type: 40, Layers: []string{"glow(3) real×1"}}, resp.Data.Nodes[0])
}

func TestCatalogCommandInvalid(t *testing.T) {
	path := writeFile(t, "dup.cue", `
node: a: type: 7
node: b: type: 7
`)
	out, err := runSub(t, NewCatalogCommand, "text", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E_CATALOG_INVALID]")
	assert.Contains(t, out, "E201")
}

func TestCatalogCommandNoSource(t *testing.T) {
	opts := &RootOptions{Format: "text"}
	cmd := NewCatalogCommand(opts)
	cmd.SetArgs([]string{})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
