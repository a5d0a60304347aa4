package engine

import (
	"context"
	"testing"

	"github.com/rdfcache/sparqlcache/internal/kvstore"
)

func newTestEngine(t *testing.T) (*CacheEngine, *kvstore.Memory) {
	t.Helper()
	kv := kvstore.NewMemory()
	return New(kv, Options{}), kv
}

func mustRemember(t *testing.T, e *CacheEngine, query string, result string) {
	t.Helper()
	if err := e.Remember(context.Background(), query, []byte(result)); err != nil {
		t.Fatalf("Remember(%q): %v", query, err)
	}
}

func TestRememberThenLookup(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	mustRemember(t, e, "SELECT * FROM <http://g/> WHERE { ?s ?p ?o }", "R1")

	got, ok, err := e.Lookup(ctx, "SELECT * FROM <http://g/> WHERE { ?s ?p ?o }")
	if err != nil || !ok {
		t.Fatalf("Lookup = (ok=%v, err=%v), want (true, nil)", ok, err)
	}
	if string(got) != "R1" {
		t.Fatalf("Lookup result = %q, want %q", got, "R1")
	}
}

func TestSingleMemoizeInvalidate(t *testing.T) {
	ctx := context.Background()
	e, kv := newTestEngine(t)

	query := "SELECT * FROM <http://g/> WHERE { ?s ?p ?o }"
	mustRemember(t, e, query, "R1")

	if err := e.InvalidateByGraph(ctx, "http://g/"); err != nil {
		t.Fatalf("InvalidateByGraph: %v", err)
	}

	if _, ok, _ := kv.Get(ctx, e.QueryKey(query)); ok {
		t.Fatalf("query key still present after invalidation")
	}
	if _, ok, _ := kv.Get(ctx, e.graphKey("http://g/")); ok {
		t.Fatalf("graph key still present after invalidation")
	}
	if kv.Len() != 0 {
		t.Fatalf("kv store not empty after invalidation: %d keys remain", kv.Len())
	}
}

func TestTwoQueriesSharingOneGraph(t *testing.T) {
	ctx := context.Background()
	e, kv := newTestEngine(t)

	q1 := "SELECT * FROM <http://g/> WHERE { ?s <http://a> ?o }"
	q2 := "SELECT * FROM <http://g/> WHERE { ?s <http://b> ?o }"
	mustRemember(t, e, q1, "R1")
	mustRemember(t, e, q2, "R2")

	if err := e.InvalidateByGraph(ctx, "http://g/"); err != nil {
		t.Fatalf("InvalidateByGraph: %v", err)
	}

	for _, q := range []string{q1, q2} {
		if _, ok, _ := kv.Get(ctx, e.QueryKey(q)); ok {
			t.Fatalf("query %q still present after graph invalidation", q)
		}
	}
	if _, ok, _ := kv.Get(ctx, e.graphKey("http://g/")); ok {
		t.Fatalf("graph entry still present after invalidation")
	}
}

func TestPatternSpecificInvalidation(t *testing.T) {
	ctx := context.Background()
	e, kv := newTestEngine(t)

	query := "SELECT * FROM <http://g/> WHERE { <http://a> <http://b> ?o }"
	mustRemember(t, e, query, "R1")

	keys := e.CandidatePatternKeys("http://g/", "http://a", "http://b", "")
	var exactMatch string
	for _, k := range keys {
		if rec, ok, _ := kv.Get(ctx, k); ok {
			var pe PatternEntry
			if err := kvstore.Decode(rec, &pe); err != nil {
				t.Fatalf("decoding pattern entry: %v", err)
			}
			if pe.QueryID == e.QueryKey(query) {
				exactMatch = k
			}
		}
	}
	if exactMatch == "" {
		t.Fatalf("no pattern key among candidates %v resolved to query %q", keys, query)
	}

	missKeys := e.CandidatePatternKeys("http://g/", "http://x", "http://b", "")
	for _, k := range missKeys {
		if k == exactMatch {
			continue
		}
		if _, ok, _ := kv.Get(ctx, k); ok {
			t.Fatalf("unexpected hit for mismatched subject at key %q", k)
		}
	}
}

func TestReRememberReplaces(t *testing.T) {
	ctx := context.Background()
	e, kv := newTestEngine(t)

	query := "SELECT * FROM <http://g/> WHERE { ?s ?p ?o }"
	mustRemember(t, e, query, "R1")
	mustRemember(t, e, query, "R2")

	got, ok, err := e.Lookup(ctx, query)
	if err != nil || !ok {
		t.Fatalf("Lookup after re-remember = (ok=%v, err=%v)", ok, err)
	}
	if string(got) != "R2" {
		t.Fatalf("Lookup = %q, want %q", got, "R2")
	}

	before := kv.Len()
	mustRemember(t, e, query, "R3")
	after := kv.Len()
	if before != after {
		t.Fatalf("re-remember leaked keys: before=%d after=%d", before, after)
	}
}

func TestInvalidateByQueryIdempotent(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	query := "SELECT * FROM <http://g/> WHERE { ?s ?p ?o }"
	mustRemember(t, e, query, "R1")

	if err := e.InvalidateByQuery(ctx, query); err != nil {
		t.Fatalf("first InvalidateByQuery: %v", err)
	}
	if err := e.InvalidateByQuery(ctx, query); err != nil {
		t.Fatalf("second InvalidateByQuery (idempotence): %v", err)
	}
}

func TestRememberInvalidateRoundTripIsClean(t *testing.T) {
	ctx := context.Background()
	e, kv := newTestEngine(t)

	before := kv.Len()
	query := "SELECT * FROM <http://g/> WHERE { ?s <http://p> ?o }"
	mustRemember(t, e, query, "R1")
	if err := e.InvalidateByQuery(ctx, query); err != nil {
		t.Fatalf("InvalidateByQuery: %v", err)
	}
	after := kv.Len()
	if before != after {
		t.Fatalf("remember+invalidate left %d extra keys", after-before)
	}
}

func TestDuplicateFromGraphCollapses(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	query := "SELECT * FROM <http://g/> FROM <http://g/> WHERE { ?s ?p ?o }"
	mustRemember(t, e, query, "R1")

	q, ok, err := e.getQuery(ctx, e.QueryKey(query))
	if err != nil || !ok {
		t.Fatalf("getQuery = (ok=%v, err=%v)", ok, err)
	}
	if len(q.GraphIDs) != 1 {
		t.Fatalf("GraphIDs = %v, want exactly one entry", q.GraphIDs)
	}
}

func TestMalformedQuerySurfacesError(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	if err := e.Remember(ctx, "NOT A QUERY {", []byte("x")); err == nil {
		t.Fatalf("Remember with malformed query: want error, got nil")
	}
}

func TestInvariantViolationWhenGraphEntryMissing(t *testing.T) {
	ctx := context.Background()
	e, kv := newTestEngine(t)

	query := "SELECT * FROM <http://g/> WHERE { ?s ?p ?o }"
	mustRemember(t, e, query, "R1")

	if err := kv.Delete(ctx, e.graphKey("http://g/")); err != nil {
		t.Fatalf("deleting graph entry directly: %v", err)
	}

	err := e.InvalidateByQuery(ctx, query)
	if err == nil {
		t.Fatalf("InvalidateByQuery with missing graph entry: want error, got nil")
	}
}
