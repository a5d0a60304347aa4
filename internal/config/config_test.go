package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTOML(t *testing.T, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "sparqlcache.toml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadEmptyPathDefaults(t *testing.T) {
	got, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	want := Options{Backend: BackendMemory, Namespace: defaultNamespace}
	if got != want {
		t.Fatalf("Load(\"\") = %+v, want %+v", got, want)
	}
}

func TestLoadDefaultsBackendToMemory(t *testing.T) {
	dir := t.TempDir()
	path := writeTOML(t, dir, `verbose = true`)

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Backend != BackendMemory {
		t.Fatalf("Backend = %q, want %q", got.Backend, BackendMemory)
	}
	if got.Namespace != defaultNamespace {
		t.Fatalf("Namespace = %q, want %q", got.Namespace, defaultNamespace)
	}
	if !got.Verbose {
		t.Fatalf("Verbose = false, want true")
	}
}

func TestLoadSQLiteRequiresDSN(t *testing.T) {
	dir := t.TempDir()
	path := writeTOML(t, dir, `backend = "sqlite"`)

	if _, err := Load(path); err == nil {
		t.Fatalf("Load with sqlite backend and no dsn: want error, got nil")
	}
}

func TestLoadSQLiteWithDSN(t *testing.T) {
	dir := t.TempDir()
	path := writeTOML(t, dir, `
backend = "sqlite"
dsn = "cache.db"
namespace = "myapp-"
`)

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Options{Backend: BackendSQLite, DSN: "cache.db", Namespace: "myapp-"}
	if got != want {
		t.Fatalf("Load = %+v, want %+v", got, want)
	}
}

func TestLoadUnknownBackend(t *testing.T) {
	dir := t.TempDir()
	path := writeTOML(t, dir, `backend = "mongodb"`)

	if _, err := Load(path); err == nil {
		t.Fatalf("Load with unknown backend: want error, got nil")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("Load of missing file: want error, got nil")
	}
}
