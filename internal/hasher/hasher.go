// Package hasher derives deterministic, injection-safe KV keys from
// arbitrary strings: query text, graph URIs, and RelatedGroup member sets.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Namespace is the fixed prefix applied to every short ID. A config.Options
// may override it per engine instance; the zero value falls back to this.
const Namespace = "qc-"

// shortIDLen is the number of hex characters kept from the digest, not
// counting the namespace prefix.
const shortIDLen = 30

// ShortID returns a deterministic, collision-resistant key for s: the
// lowercase hex SHA-256 digest of s, truncated to shortIDLen characters and
// prefixed with namespace. The same (namespace, s) pair always yields the
// same key.
func ShortID(namespace, s string) string {
	if namespace == "" {
		namespace = Namespace
	}
	sum := sha256.Sum256([]byte(s))
	hexSum := hex.EncodeToString(sum[:])
	return namespace + hexSum[:shortIDLen]
}

// CanonicalSetID returns a short ID derived from the canonical JSON encoding
// of the sorted, de-duplicated ids. Used to content-address a RelatedGroup
// from its member QueryEntry IDs: identical transactions produce identical
// groups.
func CanonicalSetID(namespace string, ids []string) string {
	return ShortID(namespace, canonicalJSON(ids))
}

// canonicalJSON sorts and de-duplicates ids, then JSON-encodes them. The
// result is stable regardless of the input order.
func canonicalJSON(ids []string) string {
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	sort.Strings(unique)

	// json.Marshal on a []string cannot fail.
	data, _ := json.Marshal(unique)
	return string(data)
}
