package leveldb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := OpenMemory()
	require.NoError(t, err)
	defer store.Close()

	_, ok, err := store.Get(ctx, "tc.history")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Set(ctx, "tc.history", []byte(`[]`)))
	value, ok, err := store.Get(ctx, "tc.history")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `[]`, string(value))

	require.NoError(t, store.Delete(ctx, "tc.history"))
	_, ok, err = store.Get(ctx, "tc.history")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db")

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "tc.activity.0xabc", []byte(`[{"address":"0x1"}]`)))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	value, ok, err := reopened.Get(ctx, "tc.activity.0xabc")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `[{"address":"0x1"}]`, string(value))
}
