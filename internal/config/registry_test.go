package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCatalog(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = LoadCatalog(CatalogBuiltin)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, 2, c.Len())

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.cue"))
	assert.Error(t, err)
}

func TestClient_RegistryOptions(t *testing.T) {
	opts, err := Client{Priority: 10, Catalog: CatalogBuiltin}.RegistryOptions()
	require.NoError(t, err)
	assert.Len(t, opts, 2)

	opts, err = Client{Priority: 10}.RegistryOptions()
	require.NoError(t, err)
	assert.Len(t, opts, 1)

	_, err = Client{Catalog: filepath.Join(t.TempDir(), "missing.cue")}.RegistryOptions()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog")
}
