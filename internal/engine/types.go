// Package engine implements the query cache's three interacting indices
// (query, graph, triple-pattern) on top of a kvstore.KVStore, and the
// remember/invalidate operations that keep them consistent.
package engine


// QueryEntry is one memoized query.
type QueryEntry struct {
	Query          string              `json:"query"`
	Result         []byte              `json:"result"`
	GraphIDs       []string            `json:"graph_ids"`
	TriplePatterns map[string][]string `json:"triple_patterns"` // graphId -> patternKeys
	RelatedGroupID string              `json:"related_group_id,omitempty"`
}

// GraphEntry is one graph with at least one memoized query referencing it.
type GraphEntry struct {
	GraphID  string   `json:"graph_id"`
	QueryIDs []string `json:"query_ids"`
}

// PatternEntry records which query last installed a given triple-pattern
// key. Per spec, a collision between two queries sharing a pattern key
// resolves last-writer-wins.
type PatternEntry struct {
	PatternKey string `json:"pattern_key"`
	QueryID    string `json:"query_id"`
}

// RelatedGroup links the queries memoized together within one outermost
// transaction commit.
type RelatedGroup struct {
	ID      string   `json:"id"`
	Members []string `json:"members"`
}

// containsString reports whether v is present in s.
func containsString(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// removeString returns s with every occurrence of v removed.
func removeString(s []string, v string) []string {
	out := s[:0:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

// appendUnique appends v to s unless it is already present.
func appendUnique(s []string, v string) []string {
	if containsString(s, v) {
		return s
	}
	return append(s, v)
}
