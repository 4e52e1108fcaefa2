// Package store defines the key/value port that persisted state goes through.
package store

import (
	"context"
	"errors"
)

var ErrClosed = errors.New("store: closed")

// KV is swapped between adapters (memory, file, redis, postgres).
type KV interface {
	// Get returns the values of the keys that exist; missing keys are absent from the map.
	Get(ctx context.Context, keys ...string) (map[string][]byte, error)
	// Set writes every entry or none.
	Set(ctx context.Context, entries map[string][]byte) error
	Remove(ctx context.Context, keys ...string) error
	Close() error
}
