package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/rdfcache/sparqlcache/internal/cachererr"
	"github.com/rdfcache/sparqlcache/internal/hasher"
	"github.com/rdfcache/sparqlcache/internal/kvstore"
	"github.com/rdfcache/sparqlcache/internal/logging"
	"github.com/rdfcache/sparqlcache/internal/pattern"
)

// Extractor pulls FROM graphs and WHERE triple patterns out of a query
// string. pattern.Extract satisfies this; tests may substitute a stub.
type Extractor func(query string) (pattern.Extraction, error)

// Options configures a CacheEngine.
type Options struct {
	// Namespace prefixes every short ID this engine derives. Defaults to
	// hasher.Namespace ("qc-") when empty.
	Namespace string
	// Extract overrides pattern extraction. Defaults to pattern.Extract.
	Extract Extractor
	// Logger receives structured engine logs. Defaults to a no-op logger.
	Logger logging.Logger
}

// CacheEngine maintains the query, graph, and triple-pattern indices on
// top of a KVStore, implementing Remember/InvalidateByQuery/InvalidateByGraph.
// One instance is single-threaded cooperative: every exported method that
// touches the indices takes an internal mutex, so concurrent callers observe
// outcomes equivalent to some total ordering of their calls.
type CacheEngine struct {
	mu        sync.Mutex
	kv        kvstore.KVStore
	namespace string
	extract   Extractor
	log       logging.Logger
	id        string
}

// New constructs a CacheEngine backed by kv.
func New(kv kvstore.KVStore, opts Options) *CacheEngine {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "qc-"
	}
	extract := opts.Extract
	if extract == nil {
		extract = pattern.Extract
	}
	log := opts.Logger
	if log == nil {
		log = logging.NewNopLogger()
	}
	id := uuid.NewString()
	return &CacheEngine{
		kv:        kv,
		namespace: namespace,
		extract:   extract,
		log:       log.With("engine_id", id),
		id:        id,
	}
}

// InstanceID returns this engine's instance identifier, stamped onto every
// log line it emits.
func (e *CacheEngine) InstanceID() string { return e.id }

func backendErr(op string, err error) error {
	return cachererr.New(cachererr.BackendError, op, err)
}

func invariantErr(op string, err error) error {
	return cachererr.New(cachererr.InvariantViolation, op, err)
}

func (e *CacheEngine) getQuery(ctx context.Context, key string) (*QueryEntry, bool, error) {
	rec, ok, err := e.kv.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	var q QueryEntry
	if err := kvstore.Decode(rec, &q); err != nil {
		return nil, false, err
	}
	return &q, true, nil
}

func (e *CacheEngine) putQuery(ctx context.Context, key string, q *QueryEntry) error {
	rec, err := kvstore.Encode(q)
	if err != nil {
		return err
	}
	return e.kv.Set(ctx, key, rec)
}

func (e *CacheEngine) getGraph(ctx context.Context, key string) (*GraphEntry, bool, error) {
	rec, ok, err := e.kv.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	var g GraphEntry
	if err := kvstore.Decode(rec, &g); err != nil {
		return nil, false, err
	}
	return &g, true, nil
}

func (e *CacheEngine) putGraph(ctx context.Context, key string, g *GraphEntry) error {
	rec, err := kvstore.Encode(g)
	if err != nil {
		return err
	}
	return e.kv.Set(ctx, key, rec)
}

// Remember memoizes result under query, per spec §4.3.1. If a QueryEntry
// for this query already exists it is fully invalidated first.
func (e *CacheEngine) Remember(ctx context.Context, query string, result []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remember(ctx, query, result)
}

func (e *CacheEngine) remember(ctx context.Context, query string, result []byte) error {
	const op = "engine.Remember"

	qKey := e.queryKey(query)
	if _, ok, err := e.getQuery(ctx, qKey); err != nil {
		return backendErr(op, err)
	} else if ok {
		if err := e.invalidateByQuery(ctx, query, true); err != nil {
			return err
		}
	}

	ext, err := e.extract(query)
	if err != nil {
		return err // already a cachererr.MalformedQuery from pattern.Extract
	}

	entry := &QueryEntry{
		Query:          query,
		Result:         result,
		TriplePatterns: make(map[string][]string),
	}

	for _, graphURI := range ext.Graphs {
		gKey := e.graphKey(graphURI)
		gEntry, ok, err := e.getGraph(ctx, gKey)
		if err != nil {
			return backendErr(op, err)
		}
		if !ok {
			gEntry = &GraphEntry{GraphID: gKey}
		}
		gEntry.QueryIDs = appendUnique(gEntry.QueryIDs, qKey)
		if err := e.putGraph(ctx, gKey, gEntry); err != nil {
			return backendErr(op, err)
		}
		entry.GraphIDs = appendUnique(entry.GraphIDs, gKey)
	}

	for _, tp := range ext.Patterns {
		gKey := e.graphKey(tp.Graph)
		pKey := e.patternKey(gKey, tp.Subject, tp.Predicate, tp.Object)

		pRec := &PatternEntry{PatternKey: pKey, QueryID: qKey}
		rec, err := kvstore.Encode(pRec)
		if err != nil {
			return backendErr(op, err)
		}
		if err := e.kv.Set(ctx, pKey, rec); err != nil {
			return backendErr(op, err)
		}
		entry.TriplePatterns[gKey] = appendUnique(entry.TriplePatterns[gKey], pKey)
	}

	if err := e.putQuery(ctx, qKey, entry); err != nil {
		return backendErr(op, err)
	}
	e.log.Debug("remembered query", "query_id", qKey, "graphs", len(entry.GraphIDs), "patterns", len(ext.Patterns))
	return nil
}

// InvalidateByQuery evicts the QueryEntry for query, every GraphEntry
// reference to it, every PatternEntry it installed, and (when it belongs
// to a RelatedGroup) cascades to every other member of that group.
func (e *CacheEngine) InvalidateByQuery(ctx context.Context, query string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.invalidateByQuery(ctx, query, true)
}

func (e *CacheEngine) invalidateByQuery(ctx context.Context, query string, checkForRelated bool) error {
	const op = "engine.InvalidateByQuery"

	qKey := e.queryKey(query)
	q, ok, err := e.getQuery(ctx, qKey)
	if err != nil {
		return backendErr(op, err)
	}
	if !ok {
		return nil
	}
	return e.evictQuery(ctx, qKey, q, checkForRelated, op)
}

// evictQuery removes qKey's GraphEntry references and PatternEntries,
// optionally cascades through its RelatedGroup, and deletes the
// QueryEntry itself.
func (e *CacheEngine) evictQuery(ctx context.Context, qKey string, q *QueryEntry, checkForRelated bool, op string) error {
	for _, gKey := range q.GraphIDs {
		gEntry, ok, err := e.getGraph(ctx, gKey)
		if err != nil {
			return backendErr(op, err)
		}
		if !ok {
			e.log.Error("graph entry missing for query reference", "graph_id", gKey, "query_id", qKey)
			return invariantErr(op, fmt.Errorf("graph entry %s referenced by query %s not found", gKey, qKey))
		}
		gEntry.QueryIDs = removeString(gEntry.QueryIDs, qKey)
		if len(gEntry.QueryIDs) == 0 {
			if err := e.kv.Delete(ctx, gKey); err != nil {
				return backendErr(op, err)
			}
		} else if err := e.putGraph(ctx, gKey, gEntry); err != nil {
			return backendErr(op, err)
		}
	}

	for _, keys := range q.TriplePatterns {
		for _, pKey := range keys {
			if err := e.kv.Delete(ctx, pKey); err != nil {
				return backendErr(op, err)
			}
		}
	}

	if checkForRelated && q.RelatedGroupID != "" {
		if err := e.cascadeRelatedGroup(ctx, q.RelatedGroupID, qKey, op); err != nil {
			return err
		}
	}

	if err := e.kv.Delete(ctx, qKey); err != nil {
		return backendErr(op, err)
	}
	e.log.Debug("invalidated query", "query_id", qKey)
	return nil
}

// cascadeRelatedGroup invalidates every member of the RelatedGroup at
// groupKey other than skipKey, the one already being evicted by the caller,
// with checkForRelated=false so the recursion terminates in a single sweep.
func (e *CacheEngine) cascadeRelatedGroup(ctx context.Context, groupKey, skipKey string, op string) error {
	rec, ok, err := e.kv.Get(ctx, groupKey)
	if err != nil {
		return backendErr(op, err)
	}
	if !ok {
		return nil
	}
	var group RelatedGroup
	if err := kvstore.Decode(rec, &group); err != nil {
		return backendErr(op, err)
	}
	for _, memberQKey := range group.Members {
		if memberQKey == skipKey {
			continue
		}
		member, ok, err := e.getQuery(ctx, memberQKey)
		if err != nil {
			return backendErr(op, err)
		}
		if !ok {
			continue // already invalidated earlier in this sweep
		}
		if err := e.invalidateByQuery(ctx, member.Query, false); err != nil {
			return err
		}
	}
	return nil
}

// InvalidateByGraph evicts every query referencing graphURI, per spec
// §4.3.1's invalidateByGraph, then deletes the GraphEntry itself.
func (e *CacheEngine) InvalidateByGraph(ctx context.Context, graphURI string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.invalidateByGraph(ctx, graphURI)
}

func (e *CacheEngine) invalidateByGraph(ctx context.Context, graphURI string) error {
	const op = "engine.InvalidateByGraph"

	gKey := e.graphKey(graphURI)
	gEntry, ok, err := e.getGraph(ctx, gKey)
	if err != nil {
		return backendErr(op, err)
	}
	if !ok {
		return nil
	}

	for _, qKey := range append([]string(nil), gEntry.QueryIDs...) {
		q, ok, err := e.getQuery(ctx, qKey)
		if err != nil {
			return backendErr(op, err)
		}
		if !ok {
			continue
		}
		for _, keys := range q.TriplePatterns {
			for _, pKey := range keys {
				if err := e.kv.Delete(ctx, pKey); err != nil {
					return backendErr(op, err)
				}
			}
		}
		if q.RelatedGroupID != "" {
			if err := e.cascadeRelatedGroup(ctx, q.RelatedGroupID, qKey, op); err != nil {
				return err
			}
		}
		if err := e.kv.Delete(ctx, qKey); err != nil {
			return backendErr(op, err)
		}
	}

	if err := e.kv.Delete(ctx, gKey); err != nil {
		return backendErr(op, err)
	}
	e.log.Debug("invalidated graph", "graph_id", gKey, "queries_evicted", len(gEntry.QueryIDs))
	return nil
}

// LinkRelatedGroup persists a RelatedGroup over memberQueries and stamps
// its ID onto every member QueryEntry that is still present (members
// already invalidated during the same transaction are skipped). Called by
// txn.Manager at an outermost commit.
func (e *CacheEngine) LinkRelatedGroup(ctx context.Context, memberQueries []string, skip map[string]bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	const op = "engine.LinkRelatedGroup"

	if len(memberQueries) == 0 {
		return nil
	}

	memberKeys := make([]string, 0, len(memberQueries))
	for _, q := range memberQueries {
		memberKeys = append(memberKeys, e.queryKey(q))
	}
	groupKey := e.groupKey(memberKeys)

	group := &RelatedGroup{ID: groupKey, Members: memberKeys}
	rec, err := kvstore.Encode(group)
	if err != nil {
		return backendErr(op, err)
	}
	if err := e.kv.Set(ctx, groupKey, rec); err != nil {
		return backendErr(op, err)
	}

	for i, q := range memberQueries {
		if skip[q] {
			continue
		}
		qKey := memberKeys[i]
		entry, ok, err := e.getQuery(ctx, qKey)
		if err != nil {
			return backendErr(op, err)
		}
		if !ok {
			continue
		}
		entry.RelatedGroupID = groupKey
		if err := e.putQuery(ctx, qKey, entry); err != nil {
			return backendErr(op, err)
		}
	}
	return nil
}

// QueryKey returns the KV key a query's QueryEntry would be stored under.
// Exposed so callers (store.Store, tests) can look entries up directly.
func (e *CacheEngine) QueryKey(query string) string { return e.queryKey(query) }

// Lookup returns the memoized result for query, if any.
func (e *CacheEngine) Lookup(ctx context.Context, query string) ([]byte, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	q, ok, err := e.getQuery(ctx, e.queryKey(query))
	if err != nil {
		return nil, false, backendErr("engine.Lookup", err)
	}
	if !ok {
		return nil, false, nil
	}
	return q.Result, true, nil
}

// QueryForPatternKey resolves the query text a pattern key currently maps
// to, if any. Used by store.Store to invalidate by concrete triple write.
func (e *CacheEngine) QueryForPatternKey(ctx context.Context, patternKey string) (string, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok, err := e.kv.Get(ctx, patternKey)
	if err != nil {
		return "", false, backendErr("engine.QueryForPatternKey", err)
	}
	if !ok {
		return "", false, nil
	}
	var pe PatternEntry
	if err := kvstore.Decode(rec, &pe); err != nil {
		return "", false, backendErr("engine.QueryForPatternKey", err)
	}
	q, ok, err := e.getQuery(ctx, pe.QueryID)
	if err != nil {
		return "", false, backendErr("engine.QueryForPatternKey", err)
	}
	if !ok {
		return "", false, nil
	}
	return q.Query, true, nil
}

// CandidatePatternKeys returns the up-to-8 pattern keys a concrete write of
// (s, p, o) in graphURI could match, per spec §4.3.2's invalidation vector:
// each position is either its URI's short ID or the wildcard "*".
func (e *CacheEngine) CandidatePatternKeys(graphURI, s, p, o string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	gKey := e.graphKey(graphURI)
	sHashes := []string{hasherShortIDOrWildcard(e.namespace, s)}
	pHashes := []string{hasherShortIDOrWildcard(e.namespace, p)}
	oHashes := []string{hasherShortIDOrWildcard(e.namespace, o)}
	sHashes = append(sHashes, "*")
	pHashes = append(pHashes, "*")
	oHashes = append(oHashes, "*")

	seen := make(map[string]bool)
	var out []string
	for _, sh := range sHashes {
		for _, ph := range pHashes {
			for _, oh := range oHashes {
				key := patternPrefix + gKey + "_" + sh + "_" + ph + "_" + oh
				if !seen[key] {
					seen[key] = true
					out = append(out, key)
				}
			}
		}
	}
	return out
}

// Stats formats the given index sizes as a one-line summary for this engine
// instance. Since KVStore has no iteration, the engine does not count its
// own entries: the counts come from the caller's own accounting, e.g. a
// countable KVStore such as kvstore.Memory.Len.
func (e *CacheEngine) Stats(queryCount, graphCount, patternCount int) string {
	return fmt.Sprintf("engine %s: %s queries, %s graphs, %s patterns",
		e.id, humanize.Comma(int64(queryCount)), humanize.Comma(int64(graphCount)), humanize.Comma(int64(patternCount)))
}

func hasherShortIDOrWildcard(namespace, uri string) string {
	if uri == "" {
		return "*"
	}
	return hasher.ShortID(namespace, uri)
}
