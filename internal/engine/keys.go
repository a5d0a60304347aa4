package engine

import (
	"strings"

	"github.com/rdfcache/sparqlcache/internal/hasher"
	"github.com/rdfcache/sparqlcache/internal/pattern"
)

// Distinct prefixes for each record kind, a safe divergence from the
// underscore-exclusion scheme of the source: a real key column makes the
// extra clarity free.
const (
	queryPrefix   = "q-"
	graphPrefix   = "g-"
	patternPrefix = "p-"
	groupPrefix   = "r-"
)

func (e *CacheEngine) queryKey(query string) string {
	return queryPrefix + hasher.ShortID(e.namespace, query)
}

func (e *CacheEngine) graphKey(graphURI string) string {
	return graphPrefix + hasher.ShortID(e.namespace, graphURI)
}

func (e *CacheEngine) groupKey(memberIDs []string) string {
	return groupPrefix + hasher.CanonicalSetID(e.namespace, memberIDs)
}

// patternKey builds the patternPrefix + graphId_sHash_pHash_oHash key for
// one triple pattern already scoped to a graph's short ID.
func (e *CacheEngine) patternKey(graphID string, s, p, o pattern.Term) string {
	return patternPrefix + strings.Join([]string{
		graphID,
		e.termHash(s),
		e.termHash(p),
		e.termHash(o),
	}, "_")
}

// termHash is the hash component of a pattern key for one term: the term's
// short ID when it is a URI, "*" for anything else (var, literal, bnode).
func (e *CacheEngine) termHash(t pattern.Term) string {
	if t.Type != pattern.TermURI {
		return "*"
	}
	return hasher.ShortID(e.namespace, t.Value)
}
