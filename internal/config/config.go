// Package config loads and validates sparqlcache's configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// Backend identifies which kvstore implementation an Options resolves to.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
)

var validBackends = map[Backend]struct{}{
	BackendMemory:   {},
	BackendSQLite:   {},
	BackendPostgres: {},
}

// FileConfig mirrors the expected sparqlcache TOML schema.
type FileConfig struct {
	Backend   string `toml:"backend"`
	DSN       string `toml:"dsn"`
	Namespace string `toml:"namespace"`
	Verbose   bool   `toml:"verbose"`
}

// Options is the fully-resolved configuration: the demo binary uses it to
// pick the kvstore backend, the engine namespace, and the log verbosity.
type Options struct {
	Backend   Backend
	DSN       string
	Namespace string
	Verbose   bool
}

const defaultNamespace = "qc-"

// Load reads and validates a TOML config file at path, resolving it into
// Options. An empty path yields the default Options: in-memory backend,
// default namespace, non-verbose.
func Load(path string) (Options, error) {
	if path == "" {
		return Options{Backend: BackendMemory, Namespace: defaultNamespace}, nil
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Options{}, fmt.Errorf("read %s: %w", path, err)
	}

	var cfg FileConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Options{}, fmt.Errorf("%s: %w", path, err)
	}

	backend := Backend(cfg.Backend)
	if backend == "" {
		backend = BackendMemory
	}
	if _, ok := validBackends[backend]; !ok {
		return Options{}, fmt.Errorf("%s: unknown backend %q", path, cfg.Backend)
	}
	if backend != BackendMemory && cfg.DSN == "" {
		return Options{}, fmt.Errorf("%s: backend %q requires dsn", path, backend)
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = defaultNamespace
	}

	return Options{
		Backend:   backend,
		DSN:       cfg.DSN,
		Namespace: namespace,
		Verbose:   cfg.Verbose,
	}, nil
}
