// Package storagetest is a conformance suite for storage.Storage backends.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggoodman/shiprocket-mcp-go/storage"
)

// Factory returns a fresh, empty backend for one subtest.
type Factory func(t *testing.T) storage.Storage

// Run exercises every storage.Storage behavior the cache relies on.
func Run(t *testing.T, factory Factory) {
	t.Run("SetAndGet", func(t *testing.T) { testSetAndGet(t, factory(t)) })
	t.Run("GetNonExistent", func(t *testing.T) { testGetNonExistent(t, factory(t)) })
	t.Run("TTL", func(t *testing.T) { testTTL(t, factory(t)) })
	t.Run("CredentialIsolation", func(t *testing.T) { testCredentialIsolation(t, factory(t)) })
	t.Run("DeleteKey", func(t *testing.T) { testDeleteKey(t, factory(t)) })
	t.Run("DeleteNamespace", func(t *testing.T) { testDeleteNamespace(t, factory(t)) })
}

func testSetAndGet(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k", []byte("v")))

	item, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "v", string(item.Data))
	assert.Nil(t, item.ExpiresAt)
}

func testGetNonExistent(t *testing.T, s storage.Storage) {
	item, err := s.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, item)
}

func testTTL(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "short", []byte("v"), storage.WithTTL(30*time.Millisecond)))

	item, err := s.Get(ctx, "short")
	require.NoError(t, err)
	require.NotNil(t, item)
	require.NotNil(t, item.ExpiresAt)

	time.Sleep(60 * time.Millisecond)

	item, err = s.Get(ctx, "short")
	require.NoError(t, err)
	assert.Nil(t, item)
}

func testCredentialIsolation(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "track/1", []byte("alice"), storage.WithCredential("tok-a")))
	require.NoError(t, s.Set(ctx, "track/1", []byte("bob"), storage.WithCredential("tok-b")))

	a, err := s.Get(ctx, "track/1", storage.WithCredential("tok-a"))
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "alice", string(a.Data))

	b, err := s.Get(ctx, "track/1", storage.WithCredential("tok-b"))
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "bob", string(b.Data))

	g, err := s.Get(ctx, "track/1")
	require.NoError(t, err)
	assert.Nil(t, g)
}

func testDeleteKey(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	opt := storage.WithCredential("tok")
	require.NoError(t, s.Set(ctx, "a", []byte("1"), opt))
	require.NoError(t, s.Set(ctx, "b", []byte("2"), opt))

	require.NoError(t, s.Delete(ctx, opt, storage.WithKey("a")))

	item, err := s.Get(ctx, "a", opt)
	require.NoError(t, err)
	assert.Nil(t, item)
	item, err = s.Get(ctx, "b", opt)
	require.NoError(t, err)
	assert.NotNil(t, item)
}

func testDeleteNamespace(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "a", []byte("1"), storage.WithCredential("x")))
	require.NoError(t, s.Set(ctx, "b", []byte("2"), storage.WithCredential("x")))
	require.NoError(t, s.Set(ctx, "a", []byte("3"), storage.WithCredential("y")))

	require.NoError(t, s.Delete(ctx, storage.WithCredential("x")))

	for _, k := range []string{"a", "b"} {
		item, err := s.Get(ctx, k, storage.WithCredential("x"))
		require.NoError(t, err)
		assert.Nil(t, item, "key %s survived namespace delete", k)
	}
	item, err := s.Get(ctx, "a", storage.WithCredential("y"))
	require.NoError(t, err)
	assert.NotNil(t, item)
}
