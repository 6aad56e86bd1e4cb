package port

import "context"

// KVStore is the durable string-keyed storage shared by the session and
// marketplace services. Values are JSON documents. The two services write
// disjoint key sets.
type KVStore interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value under key.
	Set(ctx context.Context, key string, value []byte) error

	// SetMany stores all entries as one unit: either every key is written or none is.
	SetMany(ctx context.Context, entries map[string][]byte) error

	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
}
