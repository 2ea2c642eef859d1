package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"tokenclaim/internal/apperr"
)

type failingStore struct{ *MemoryStore }

func (f *failingStore) Set(context.Context, string, []byte) error {
	return errors.New("quota exceeded")
}

func TestActivityKeyNormalizes(t *testing.T) {
	require.Equal(t, "tc.activity.0xabcdef", ActivityKey(" 0xAbCdEf "))
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "nested")
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	_, ok, err := store.Get(ctx, HistoryKey)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Set(ctx, HistoryKey, []byte(`[1,2]`)))
	value, ok, err := store.Get(ctx, HistoryKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `[1,2]`, string(value))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary file must be renamed away")

	require.NoError(t, store.Delete(ctx, HistoryKey))
	require.NoError(t, store.Delete(ctx, HistoryKey))
	_, ok, err = store.Get(ctx, HistoryKey)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLoadJSONReportsCorruption(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, "k", []byte("{not json")))

	var out []int
	ok, err := LoadJSON(ctx, store, "k", &out)
	require.False(t, ok)
	require.ErrorIs(t, err, apperr.ErrStorage)

	var storeErr *apperr.StorageError
	require.True(t, errors.As(err, &storeErr))
	require.Equal(t, "decode", storeErr.Op)
}

func TestSaveJSONWrapsWriteFailure(t *testing.T) {
	store := &failingStore{MemoryStore: NewMemoryStore()}
	err := SaveJSON(context.Background(), store, HistoryKey, []int{1})
	require.ErrorIs(t, err, apperr.ErrStorage)
	require.Contains(t, err.Error(), "quota exceeded")
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	value := []byte("abc")
	require.NoError(t, store.Set(ctx, "k", value))
	value[0] = 'z'

	got, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "abc", string(got))
}
