// Package config loads versync client settings from TOML.
//
// Example:
//
//	priority = 160
//	journal = "sessions.db"
//	catalog = "markers/"
//	log_level = "debug"
//	tokens = "uuid"
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	// TokensUUID selects UUIDv7 correlation tokens.
	TokensUUID = "uuid"

	// CatalogBuiltin selects the embedded marker catalog.
	CatalogBuiltin = "builtin"
)

// Client holds the settings of one replica.
type Client struct {
	// Priority is sent with every local node create. 0..255.
	Priority int

	// Journal is the SQLite journal path. Empty disables journaling.
	Journal string

	// Catalog is a CUE file or directory, CatalogBuiltin, or empty for none.
	Catalog string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// Tokens is TokensUUID or a prefix for sequential tokens.
	Tokens string
}

// DefaultClient returns the settings used when no file is given.
func DefaultClient() Client {
	return Client{
		Priority: 128,
		Journal:  "versync.db",
		Catalog:  CatalogBuiltin,
		LogLevel: "info",
		Tokens:   TokensUUID,
	}
}

type fileConfig struct {
	Priority int    `toml:"priority"`
	Journal  string `toml:"journal"`
	Catalog  string `toml:"catalog"`
	LogLevel string `toml:"log_level"`
	Tokens   string `toml:"tokens"`
}

// LoadClient reads path over the defaults. Keys absent from the file keep
// their default; unknown keys are an error.
func LoadClient(path string) (Client, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Client{}, fmt.Errorf("load config: %w", err)
	}
	return apply(meta, raw)
}

// ParseClient is LoadClient over an in-memory document.
func ParseClient(data string) (Client, error) {
	var raw fileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return Client{}, fmt.Errorf("parse config: %w", err)
	}
	return apply(meta, raw)
}

func apply(meta toml.MetaData, raw fileConfig) (Client, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Client{}, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}

	cfg := DefaultClient()
	if meta.IsDefined("priority") {
		cfg.Priority = raw.Priority
	}
	if meta.IsDefined("journal") {
		cfg.Journal = strings.TrimSpace(raw.Journal)
	}
	if meta.IsDefined("catalog") {
		cfg.Catalog = strings.TrimSpace(raw.Catalog)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(raw.LogLevel))
	}
	if meta.IsDefined("tokens") {
		cfg.Tokens = strings.TrimSpace(raw.Tokens)
	}

	if err := cfg.Validate(); err != nil {
		return Client{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c Client) Validate() error {
	var errs []error
	if c.Priority < 0 || c.Priority > 255 {
		errs = append(errs, fmt.Errorf("priority %d out of range 0..255", c.Priority))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if c.Tokens == "" {
		errs = append(errs, errors.New("tokens must be \"uuid\" or a prefix"))
	}
	return errors.Join(errs...)
}

// Level converts LogLevel to a slog level.
func (c Client) Level() (slog.Level, error) {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
}
