// Package storetest holds the behavior every store.KV adapter must share.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/waterwatch/internal/store"
)

// Run exercises kv, which must start empty. It closes kv at the end.
func Run(t *testing.T, kv store.KV) {
	t.Helper()
	ctx := context.Background()

	got, err := kv.Get(ctx, "a", "b")
	require.NoError(t, err)
	assert.Empty(t, got, "fresh store has no keys")

	require.NoError(t, kv.Set(ctx, map[string][]byte{
		"a": []byte(`"one"`),
		"b": []byte(`{"x":1}`),
	}))

	got, err = kv.Get(ctx, "a", "b", "missing")
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"a": []byte(`"one"`), "b": []byte(`{"x":1}`)}, got)

	// overwrite one key, leave the other alone
	require.NoError(t, kv.Set(ctx, map[string][]byte{"a": []byte(`"two"`)}))
	got, err = kv.Get(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, []byte(`"two"`), got["a"])
	assert.Equal(t, []byte(`{"x":1}`), got["b"])

	// returned slices are not aliased to stored ones
	got["a"][0] = 'X'
	again, err := kv.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte(`"two"`), again["a"])

	require.NoError(t, kv.Remove(ctx, "a", "never-set"))
	got, err = kv.Get(ctx, "a", "b")
	require.NoError(t, err)
	_, hasA := got["a"]
	assert.False(t, hasA)
	assert.Contains(t, got, "b")

	require.NoError(t, kv.Set(ctx, map[string][]byte{}), "empty set is a no-op")
	got, err = kv.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, got, "no keys asked, none returned")

	require.NoError(t, kv.Close())
}
