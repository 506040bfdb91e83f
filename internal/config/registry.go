package config

import (
	"fmt"

	"github.com/roach88/versync/internal/catalog"
	"github.com/roach88/versync/internal/entity"
	"github.com/roach88/versync/internal/ir"
)

// LoadCatalog resolves a catalog setting: CatalogBuiltin for the embedded
// catalog, otherwise a .cue file or package directory. An empty source
// yields a nil catalog.
func LoadCatalog(source string) (*catalog.Catalog, error) {
	switch source {
	case "":
		return nil, nil
	case CatalogBuiltin:
		return catalog.Builtin(), nil
	default:
		return catalog.Load(source)
	}
}

// RegistryOptions turns the settings into replica options.
func (c Client) RegistryOptions() ([]entity.RegistryOption, error) {
	opts := []entity.RegistryOption{entity.WithPriority(ir.Priority(c.Priority))}
	cat, err := LoadCatalog(c.Catalog)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	if cat != nil {
		opts = append(opts, entity.WithSchema(cat))
	}
	return opts, nil
}
