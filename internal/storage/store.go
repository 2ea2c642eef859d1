// Package storage is the durable key/value layer behind the history and activity caches.
package storage

import (
	"context"
	"encoding/json"
	"strings"

	"tokenclaim/internal/apperr"
)

const (
	// HistoryKey holds the deployment history list.
	HistoryKey = "tc.history"
	// ActivityKeyPrefix prefixes per-pool activity lists.
	ActivityKeyPrefix = "tc.activity."
)

// ActivityKey returns the activity list key for a contract address.
func ActivityKey(address string) string {
	return ActivityKeyPrefix + strings.ToLower(strings.TrimSpace(address))
}

// Store is a string-keyed blob store. Get reports a missing key with ok=false.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// LoadJSON decodes the value at key into out. A missing key leaves out untouched and returns false.
// Corrupt values are reported as *apperr.StorageError with Op "decode".
func LoadJSON(ctx context.Context, store Store, key string, out interface{}) (bool, error) {
	data, ok, err := store.Get(ctx, key)
	if err != nil {
		return false, &apperr.StorageError{Op: "get", Key: key, Err: err}
	}
	if !ok || len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, &apperr.StorageError{Op: "decode", Key: key, Err: err}
	}
	return true, nil
}

// SaveJSON encodes v and writes it at key.
func SaveJSON(ctx context.Context, store Store, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return &apperr.StorageError{Op: "encode", Key: key, Err: err}
	}
	if err := store.Set(ctx, key, data); err != nil {
		return &apperr.StorageError{Op: "set", Key: key, Err: err}
	}
	return nil
}

// Remove deletes key, wrapping failures as storage errors.
func Remove(ctx context.Context, store Store, key string) error {
	if err := store.Delete(ctx, key); err != nil {
		return &apperr.StorageError{Op: "delete", Key: key, Err: err}
	}
	return nil
}
