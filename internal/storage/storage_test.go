package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alznet/niev/internal/types"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)

	require.NoError(t, store.Put(ctx, "k", []byte("v")))
	value, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), value)

	// Returned values are copies
	value[0] = 'x'
	value, _ = store.Get(ctx, "k")
	assert.Equal(t, []byte("v"), value)

	ok, err := store.Has(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Delete(ctx, "k"))
	ok, _ = store.Has(ctx, "k")
	assert.False(t, ok)

	require.NoError(t, store.Put(ctx, "a", nil))
	require.NoError(t, store.Put(ctx, "b", nil))
	n, _ := store.Len(ctx)
	assert.Equal(t, 2, n)
	require.NoError(t, store.Clear(ctx))
	n, _ = store.Len(ctx)
	assert.Equal(t, 0, n)
}

func TestMemoryStoreTTL(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	now := time.Unix(1700000000, 0)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Put(ctx, "k", []byte("v")))
	ok, _ := store.Has(ctx, "k")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = store.Has(ctx, "k")
	assert.False(t, ok)
	n, _ := store.Len(ctx)
	assert.Equal(t, 0, n)
}

func TestMemoryStorePutIfAbsent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	now := time.Unix(1700000000, 0)
	store.now = func() time.Time { return now }

	stored, err := store.PutIfAbsent(ctx, "k", []byte("first"))
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = store.PutIfAbsent(ctx, "k", []byte("second"))
	require.NoError(t, err)
	assert.False(t, stored)
	value, _ := store.Get(ctx, "k")
	assert.Equal(t, []byte("first"), value)

	// an expired entry can be replaced
	now = now.Add(2 * time.Minute)
	stored, err = store.PutIfAbsent(ctx, "k", []byte("third"))
	require.NoError(t, err)
	assert.True(t, stored)
	value, _ = store.Get(ctx, "k")
	assert.Equal(t, []byte("third"), value)
}

func TestMemoryStoreConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				key := fmt.Sprintf("%d-%d", i, j)
				assert.NoError(t, store.Put(ctx, key, []byte(key)))
				_, _ = store.Has(ctx, key)
			}
		}(i)
	}
	wg.Wait()

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 32*50, n)
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	store := NewRedisStore(RedisOptions{Addr: "localhost:6379", Prefix: "niev-test:"})
	if err := store.Ping(ctx); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}
	require.NoError(t, store.Clear(ctx))
	defer store.Clear(ctx)

	require.NoError(t, store.Put(ctx, "k", []byte("v")))
	value, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), value)

	ok, err := store.Has(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := store.PutIfAbsent(ctx, "k", []byte("w"))
	require.NoError(t, err)
	assert.False(t, stored)
	stored, err = store.PutIfAbsent(ctx, "n", []byte("w"))
	require.NoError(t, err)
	assert.True(t, stored)

	require.NoError(t, store.Clear(ctx))
	ok, _ = store.Has(ctx, "k")
	assert.False(t, ok)
}

func TestRecordStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewRecordStore(dir)
	require.NoError(t, err)

	older := &types.AtomicRecord{ExecutionID: "aes_1_a", Status: types.AtomicStatusConfirmed, Timestamp: time.Unix(1, 0)}
	newer := &types.AtomicRecord{ExecutionID: "aes_2_b", Status: types.AtomicStatusRolledBack, Timestamp: time.Unix(2, 0)}
	require.NoError(t, store.Save(older))
	require.NoError(t, store.Save(newer))
	assert.Error(t, store.Save(older))
	assert.Error(t, store.Save(&types.AtomicRecord{}))

	list := store.List()
	require.Len(t, list, 2)
	assert.Equal(t, "aes_2_b", list[0].ExecutionID)

	// A second store over the same directory reads from disk
	reopened, err := NewRecordStore(dir)
	require.NoError(t, err)
	loaded, err := reopened.Get("aes_2_b")
	require.NoError(t, err)
	assert.Equal(t, types.AtomicStatusRolledBack, loaded.Status)

	_, err = reopened.Get("aes_3_c")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordStoreInMemory(t *testing.T) {
	store, err := NewRecordStore("")
	require.NoError(t, err)
	require.NoError(t, store.Save(&types.AtomicRecord{ExecutionID: "x"}))

	record, err := store.Get("x")
	require.NoError(t, err)
	assert.Equal(t, "x", record.ExecutionID)

	_, err = store.Get("y")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordStoreRejectsPathIDs(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "store")
	store, err := NewRecordStore(dir)
	require.NoError(t, err)

	// a record file outside the records directory
	outside := []byte(`{"execution_id":"secret"}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.json"), outside, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "secret.json"), outside, 0644))

	for _, id := range []string{"../secret", "../../secret", "sub/secret", `..\secret`, "..", ".", ""} {
		_, err := store.Get(id)
		assert.ErrorIs(t, err, ErrInvalidID, id)
	}

	err = store.Save(&types.AtomicRecord{ExecutionID: "../escape"})
	assert.ErrorIs(t, err, ErrInvalidID)
	_, err = os.Stat(filepath.Join(dir, "escape.json"))
	assert.True(t, os.IsNotExist(err))
}
