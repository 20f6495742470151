// Package storage holds the persisted key-value tier: string keys mapped to
// whole JSON text blobs. Only whole-value replace and clear are supported.
package storage

import "context"

// Store is a persisted string-keyed blob store.
type Store interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set replaces the value for key.
	Set(ctx context.Context, key, value string) error

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// Clear removes every key.
	Clear(ctx context.Context) error
}
