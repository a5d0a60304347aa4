// Package store implements the Store facade: it wraps an application's
// StoreAdapter, routing reads through the cache engine (and, when a
// transaction is open, through the transaction manager) and invalidating
// on writes.
package store

import (
	"context"

	"github.com/rdfcache/sparqlcache/internal/engine"
	"github.com/rdfcache/sparqlcache/internal/logging"
	"github.com/rdfcache/sparqlcache/internal/pattern"
	"github.com/rdfcache/sparqlcache/internal/txn"
)

// Statement is one concrete (subject, predicate, object) triple written to
// or deleted from a graph.
type Statement struct {
	Graph     string
	Subject   string
	Predicate string
	Object    string
}

// StoreAdapter is the RDF store this facade fronts. Errors propagate
// unchanged to the facade's caller.
type StoreAdapter interface {
	Query(ctx context.Context, sparql string) ([]byte, error)
	AddStatements(ctx context.Context, stmts []Statement) error
	DeleteMatchingStatements(ctx context.Context, stmts []Statement) error
}

// Store is the cache-fronted facade applications call instead of talking
// to their RDF store directly.
type Store struct {
	adapter StoreAdapter
	eng     *engine.CacheEngine
	txn     *txn.Manager
	log     logging.Logger
}

// New constructs a Store. txnMgr may be nil; when nil, reads and writes
// always run immediately against eng rather than through a transaction.
func New(adapter StoreAdapter, eng *engine.CacheEngine, txnMgr *txn.Manager, log logging.Logger) *Store {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Store{adapter: adapter, eng: eng, txn: txnMgr, log: log}
}

// Query runs a SPARQL query. Read queries are served from the cache when
// present; on a miss, the adapter is queried and the result memoized.
// Update queries are forwarded to the adapter and invalidate the graphs
// and patterns they touch.
func (s *Store) Query(ctx context.Context, sparql string) ([]byte, error) {
	ext, err := pattern.Extract(sparql)
	if err != nil {
		return nil, err
	}

	if ext.Kind == pattern.KindUpdate {
		result, err := s.adapter.Query(ctx, sparql)
		if err != nil {
			return nil, err
		}
		if err := s.invalidateExtraction(ctx, ext); err != nil {
			return nil, err
		}
		return result, nil
	}

	if result, ok, err := s.eng.Lookup(ctx, sparql); err != nil {
		return nil, err
	} else if ok {
		return result, nil
	}

	result, err := s.adapter.Query(ctx, sparql)
	if err != nil {
		return nil, err
	}
	if err := s.remember(ctx, sparql, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AddStatements forwards stmts to the adapter after invalidating every
// graph and concrete-triple pattern they touch.
func (s *Store) AddStatements(ctx context.Context, stmts []Statement) error {
	if err := s.invalidateStatements(ctx, stmts); err != nil {
		return err
	}
	return s.adapter.AddStatements(ctx, stmts)
}

// DeleteMatchingStatements forwards stmts to the adapter after invalidating
// every graph and concrete-triple pattern they touch.
func (s *Store) DeleteMatchingStatements(ctx context.Context, stmts []Statement) error {
	if err := s.invalidateStatements(ctx, stmts); err != nil {
		return err
	}
	return s.adapter.DeleteMatchingStatements(ctx, stmts)
}

func (s *Store) remember(ctx context.Context, query string, result []byte) error {
	if s.txn != nil {
		return s.txn.Remember(ctx, query, result)
	}
	return s.eng.Remember(ctx, query, result)
}

func (s *Store) invalidateByGraph(ctx context.Context, graphURI string) error {
	if s.txn != nil {
		return s.txn.InvalidateByGraph(ctx, graphURI)
	}
	return s.eng.InvalidateByGraph(ctx, graphURI)
}

// invalidateExtraction invalidates everything an update query touched: every
// graph named by its FROM clause or a CLEAR/DROP/CREATE GRAPH target
// (ext.Graphs) or scoping one of its triples (ext.Patterns[*].Graph), plus, via the pattern
// index, every concrete (s,p,o,graph) triple its INSERT/DELETE DATA body or
// WHERE clause named — the same pattern-key invalidation AddStatements and
// DeleteMatchingStatements perform for writes that bypass Store.Query.
func (s *Store) invalidateExtraction(ctx context.Context, ext pattern.Extraction) error {
	seenGraphs := make(map[string]bool)
	invalidateGraph := func(g string) error {
		if seenGraphs[g] {
			return nil
		}
		seenGraphs[g] = true
		return s.invalidateByGraph(ctx, g)
	}

	for _, g := range ext.Graphs {
		if err := invalidateGraph(g); err != nil {
			return err
		}
	}

	for _, tp := range ext.Patterns {
		if err := invalidateGraph(tp.Graph); err != nil {
			return err
		}
		keys := s.eng.CandidatePatternKeys(tp.Graph, termURI(tp.Subject), termURI(tp.Predicate), termURI(tp.Object))
		for _, key := range keys {
			if err := s.invalidateByPatternKey(ctx, key); err != nil {
				return err
			}
		}
	}
	return nil
}

// termURI returns t's URI value, or "" (the pattern-key wildcard position)
// when t is not a URI term.
func termURI(t pattern.Term) string {
	if t.Type != pattern.TermURI {
		return ""
	}
	return t.Value
}

// invalidateStatements invalidates by every graph the statements touch,
// plus by every pattern key a concrete (s,p,o,g) write could match, per
// spec §4.3.2's triple-level invalidation vector.
func (s *Store) invalidateStatements(ctx context.Context, stmts []Statement) error {
	seenGraphs := make(map[string]bool)
	for _, st := range stmts {
		if !seenGraphs[st.Graph] {
			seenGraphs[st.Graph] = true
			if err := s.invalidateByGraph(ctx, st.Graph); err != nil {
				return err
			}
		}

		for _, key := range s.eng.CandidatePatternKeys(st.Graph, st.Subject, st.Predicate, st.Object) {
			if err := s.invalidateByPatternKey(ctx, key); err != nil {
				return err
			}
		}
	}
	return nil
}

// invalidateByPatternKey resolves the query a pattern key currently points
// to, if any, and invalidates it.
func (s *Store) invalidateByPatternKey(ctx context.Context, patternKey string) error {
	query, ok, err := s.eng.QueryForPatternKey(ctx, patternKey)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if s.txn != nil {
		return s.txn.InvalidateByQuery(ctx, query)
	}
	return s.eng.InvalidateByQuery(ctx, query)
}
