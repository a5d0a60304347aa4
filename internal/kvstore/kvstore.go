// Package kvstore defines the KVStore contract the cache engine is built
// on, plus reference backends: an in-memory map, SQLite, and PostgreSQL.
//
// KVStore is deliberately minimal: get/set/delete on opaque string keys, no
// iteration, no TTL, no multi-key atomicity. The engine is the only thing
// that interprets the bytes stored under a key.
package kvstore

import (
	"context"
	"encoding/json"
)

// Record is the opaque value exchanged through KVStore: a JSON-shaped tree
// of {string, number, bool, array, map} values, carried as raw JSON so the
// engine's typed structs round-trip through it without this package needing
// to know their shape.
type Record = json.RawMessage

// KVStore is the external flat key/value collaborator the cache engine
// persists its three indices through.
type KVStore interface {
	// Get returns the value stored under key, or ok=false if absent.
	Get(ctx context.Context, key string) (value Record, ok bool, err error)
	// Set stores value under key, replacing any existing value.
	Set(ctx context.Context, key string, value Record) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// Encode marshals v into a Record.
func Encode(v any) (Record, error) {
	return json.Marshal(v)
}

// Decode unmarshals a Record into v.
func Decode(data Record, v any) error {
	return json.Unmarshal(data, v)
}
