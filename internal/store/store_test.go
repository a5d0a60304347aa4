package store

import (
	"context"
	"testing"

	"github.com/rdfcache/sparqlcache/internal/engine"
	"github.com/rdfcache/sparqlcache/internal/kvstore"
)

type fakeAdapter struct {
	queryCalls  int
	queryResult []byte
	added       []Statement
	deleted     []Statement
}

func (f *fakeAdapter) Query(ctx context.Context, sparql string) ([]byte, error) {
	f.queryCalls++
	return f.queryResult, nil
}

func (f *fakeAdapter) AddStatements(ctx context.Context, stmts []Statement) error {
	f.added = append(f.added, stmts...)
	return nil
}

func (f *fakeAdapter) DeleteMatchingStatements(ctx context.Context, stmts []Statement) error {
	f.deleted = append(f.deleted, stmts...)
	return nil
}

func newTestStore(t *testing.T) (*Store, *fakeAdapter) {
	t.Helper()
	kv := kvstore.NewMemory()
	eng := engine.New(kv, engine.Options{})
	adapter := &fakeAdapter{queryResult: []byte("R1")}
	return New(adapter, eng, nil, nil), adapter
}

func TestQueryMemoizesOnMiss(t *testing.T) {
	ctx := context.Background()
	s, adapter := newTestStore(t)

	query := "SELECT * FROM <http://g/> WHERE { ?s ?p ?o }"

	got, err := s.Query(ctx, query)
	if err != nil {
		t.Fatalf("Query (miss): %v", err)
	}
	if string(got) != "R1" {
		t.Fatalf("Query = %q, want %q", got, "R1")
	}
	if adapter.queryCalls != 1 {
		t.Fatalf("adapter.queryCalls = %d, want 1", adapter.queryCalls)
	}

	got2, err := s.Query(ctx, query)
	if err != nil {
		t.Fatalf("Query (hit): %v", err)
	}
	if string(got2) != "R1" {
		t.Fatalf("Query (hit) = %q, want %q", got2, "R1")
	}
	if adapter.queryCalls != 1 {
		t.Fatalf("adapter.queryCalls after cache hit = %d, want 1 (no second adapter call)", adapter.queryCalls)
	}
}

func TestUpdateQueryInvalidatesGraph(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	readQuery := "SELECT * FROM <http://g/> WHERE { ?s ?p ?o }"
	if _, err := s.Query(ctx, readQuery); err != nil {
		t.Fatalf("Query (miss): %v", err)
	}

	if _, err := s.Query(ctx, "CLEAR GRAPH <http://g/>"); err != nil {
		t.Fatalf("Query (update): %v", err)
	}

	if _, ok, err := s.eng.Lookup(ctx, readQuery); err != nil || ok {
		t.Fatalf("Lookup after graph invalidation = (ok=%v, err=%v), want (false, nil)", ok, err)
	}
}

func TestAddStatementsInvalidatesMatchingPattern(t *testing.T) {
	ctx := context.Background()
	s, adapter := newTestStore(t)

	query := "SELECT * FROM <http://g/> WHERE { <http://a> <http://b> ?o }"
	if _, err := s.Query(ctx, query); err != nil {
		t.Fatalf("Query (miss): %v", err)
	}

	stmt := Statement{Graph: "http://g/", Subject: "http://a", Predicate: "http://b", Object: "http://c"}
	if err := s.AddStatements(ctx, []Statement{stmt}); err != nil {
		t.Fatalf("AddStatements: %v", err)
	}
	if len(adapter.added) != 1 {
		t.Fatalf("adapter.added = %v, want 1 statement", adapter.added)
	}

	if _, ok, err := s.eng.Lookup(ctx, query); err != nil || ok {
		t.Fatalf("Lookup after matching write = (ok=%v, err=%v), want (false, nil)", ok, err)
	}
}

func TestClearGraphUpdateInvalidatesNamedGraph(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	readQuery := "SELECT * FROM <http://g/> WHERE { ?s ?p ?o }"
	if _, err := s.Query(ctx, readQuery); err != nil {
		t.Fatalf("Query (miss): %v", err)
	}

	if _, err := s.Query(ctx, "CLEAR GRAPH <http://g/>"); err != nil {
		t.Fatalf("Query (CLEAR GRAPH): %v", err)
	}

	if _, ok, err := s.eng.Lookup(ctx, readQuery); err != nil || ok {
		t.Fatalf("Lookup after CLEAR GRAPH = (ok=%v, err=%v), want (false, nil)", ok, err)
	}
}

func TestUpdateQueryInvalidatesMatchingPatternViaPatternIndex(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	// readQuery's own FROM names a graph the update never touches; only
	// its nested GRAPH-scoped triple pattern shares the update's graph.
	// Graph-level invalidation alone can't reach it — only the pattern
	// index, keyed on the GRAPH block's own graph, can.
	readQuery := "SELECT * FROM <http://other/> WHERE { GRAPH <http://g/> { <http://a> <http://b> ?o } }"
	if _, err := s.Query(ctx, readQuery); err != nil {
		t.Fatalf("Query (miss): %v", err)
	}

	update := "INSERT DATA { GRAPH <http://g/> { <http://a> <http://b> <http://c> } }"
	if _, err := s.Query(ctx, update); err != nil {
		t.Fatalf("Query (INSERT DATA): %v", err)
	}

	if _, ok, err := s.eng.Lookup(ctx, readQuery); err != nil || ok {
		t.Fatalf("Lookup after INSERT DATA matching a nested GRAPH pattern = (ok=%v, err=%v), want (false, nil)", ok, err)
	}
}

func TestDeleteMatchingStatementsForwardsAndInvalidatesGraph(t *testing.T) {
	ctx := context.Background()
	s, adapter := newTestStore(t)

	query := "SELECT * FROM <http://g/> WHERE { ?s ?p ?o }"
	if _, err := s.Query(ctx, query); err != nil {
		t.Fatalf("Query (miss): %v", err)
	}

	stmt := Statement{Graph: "http://g/", Subject: "http://a", Predicate: "http://b", Object: "http://c"}
	if err := s.DeleteMatchingStatements(ctx, []Statement{stmt}); err != nil {
		t.Fatalf("DeleteMatchingStatements: %v", err)
	}
	if len(adapter.deleted) != 1 {
		t.Fatalf("adapter.deleted = %v, want 1 statement", adapter.deleted)
	}
	if _, ok, err := s.eng.Lookup(ctx, query); err != nil || ok {
		t.Fatalf("Lookup after delete = (ok=%v, err=%v), want (false, nil)", ok, err)
	}
}
