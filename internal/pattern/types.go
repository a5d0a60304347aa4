// Package pattern extracts the FROM graphs and WHERE triple patterns from
// the subset of SPARQL this cache needs to understand: PREFIX declarations,
// FROM / FROM NAMED, GRAPH blocks, and basic triple patterns. It does not
// implement a general SPARQL parser.
package pattern

import "github.com/rdfcache/sparqlcache/internal/cachererr"

// TermType classifies one position of a triple pattern.
type TermType int

const (
	// TermURI is a concrete, absolute-URI term.
	TermURI TermType = iota
	// TermVar is a SPARQL variable (?x or $x).
	TermVar
	// TermLiteral is a quoted literal, with any datatype/language tag discarded.
	TermLiteral
	// TermBlank is a blank node, anonymous ("[]") or a property/collection list.
	TermBlank
)

// String returns the term type's name.
func (t TermType) String() string {
	switch t {
	case TermURI:
		return "uri"
	case TermVar:
		return "var"
	case TermLiteral:
		return "literal"
	case TermBlank:
		return "bnode"
	default:
		return "unknown"
	}
}

// Term is one position (subject, predicate, or object) of a TriplePattern.
type Term struct {
	Type  TermType
	Value string
}

// TriplePattern is one triple pattern extracted from a WHERE clause, scoped
// to the graph it appeared under: a GRAPH block's URI, else a FROM graph
// (empty string for a GRAPH variable or a query with no FROM).
type TriplePattern struct {
	Graph     string
	Subject   Term
	Predicate Term
	Object    Term
}

// QueryKind distinguishes read queries (memoizable) from update queries
// (the cache engine ignores these; the facade uses Kind to decide whether
// to memoize or invalidate).
type QueryKind int

const (
	// KindRead is SELECT, ASK, CONSTRUCT, or DESCRIBE.
	KindRead QueryKind = iota
	// KindUpdate is INSERT, DELETE, CLEAR, DROP, or CREATE.
	KindUpdate
)

// String returns the query kind's name.
func (k QueryKind) String() string {
	if k == KindUpdate {
		return "update"
	}
	return "read"
}

// Extraction is the result of extracting a SPARQL query's graphs, triple
// patterns, and kind.
type Extraction struct {
	Graphs   []string
	Patterns []TriplePattern
	Kind     QueryKind
}

// malformed wraps err as a cachererr.MalformedQuery.
func malformed(err error) error {
	return cachererr.New(cachererr.MalformedQuery, "pattern.Extract", err)
}
