// Package storetest holds behaviour tests shared by every coordination.Store implementation.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getpup/pupsourcing-migrator/coordination"
)

// Factory returns a fresh empty store and a function that moves its clock forward.
type Factory func(t *testing.T) (store coordination.Store, advance func(time.Duration))

// Run exercises the coordination.Store contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("SetNX only sets missing keys", func(t *testing.T) {
		s, _ := newStore(t)

		ok, err := s.SetNX(ctx, "lock", "owner-1", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.SetNX(ctx, "lock", "owner-2", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		val, err := s.Get(ctx, "lock")
		require.NoError(t, err)
		assert.Equal(t, "owner-1", val)
	})

	t.Run("keys expire after ttl", func(t *testing.T) {
		s, advance := newStore(t)

		ok, err := s.SetNX(ctx, "lock", "owner-1", 2*time.Second)
		require.NoError(t, err)
		require.True(t, ok)

		advance(3 * time.Second)

		_, err = s.Get(ctx, "lock")
		assert.ErrorIs(t, err, coordination.ErrKeyNotFound)

		ok, err = s.SetNX(ctx, "lock", "owner-2", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Get missing key", func(t *testing.T) {
		s, _ := newStore(t)

		_, err := s.Get(ctx, "missing")
		assert.ErrorIs(t, err, coordination.ErrKeyNotFound)
	})

	t.Run("Set overwrites and honours ttl", func(t *testing.T) {
		s, advance := newStore(t)

		require.NoError(t, s.Set(ctx, "flag", "true", 0))
		require.NoError(t, s.Set(ctx, "flag", "false", 0))
		val, err := s.Get(ctx, "flag")
		require.NoError(t, err)
		assert.Equal(t, "false", val)

		require.NoError(t, s.Set(ctx, "short", "x", time.Second))
		advance(2 * time.Second)
		_, err = s.Get(ctx, "short")
		assert.ErrorIs(t, err, coordination.ErrKeyNotFound)
	})

	t.Run("CompareAndDelete checks the owner", func(t *testing.T) {
		s, _ := newStore(t)
		require.NoError(t, s.Set(ctx, "lock", "owner-1", time.Minute))

		deleted, err := s.CompareAndDelete(ctx, "lock", "owner-2")
		require.NoError(t, err)
		assert.False(t, deleted)

		deleted, err = s.CompareAndDelete(ctx, "lock", "owner-1")
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = s.CompareAndDelete(ctx, "lock", "owner-1")
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("CompareAndExpire extends only the owner's key", func(t *testing.T) {
		s, advance := newStore(t)
		require.NoError(t, s.Set(ctx, "lock", "owner-1", 2*time.Second))

		extended, err := s.CompareAndExpire(ctx, "lock", "owner-2", time.Minute)
		require.NoError(t, err)
		assert.False(t, extended)

		extended, err = s.CompareAndExpire(ctx, "lock", "owner-1", time.Minute)
		require.NoError(t, err)
		assert.True(t, extended)

		advance(5 * time.Second)
		val, err := s.Get(ctx, "lock")
		require.NoError(t, err)
		assert.Equal(t, "owner-1", val)

		extended, err = s.CompareAndExpire(ctx, "missing", "owner-1", time.Minute)
		require.NoError(t, err)
		assert.False(t, extended)
	})

	t.Run("hashes", func(t *testing.T) {
		s, _ := newStore(t)

		fields, err := s.HGetAll(ctx, "status")
		require.NoError(t, err)
		assert.Empty(t, fields)

		require.NoError(t, s.HSet(ctx, "status", map[string]string{"status": "applying", "current_migration": "0001"}))
		require.NoError(t, s.HSet(ctx, "status", map[string]string{"status": "failed"}))

		fields, err = s.HGetAll(ctx, "status")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"status": "failed", "current_migration": "0001"}, fields)
	})

	t.Run("Del removes keys and ignores missing ones", func(t *testing.T) {
		s, _ := newStore(t)
		require.NoError(t, s.Set(ctx, "a", "1", 0))
		require.NoError(t, s.HSet(ctx, "b", map[string]string{"f": "v"}))

		require.NoError(t, s.Del(ctx, "a", "b", "missing"))

		_, err := s.Get(ctx, "a")
		assert.ErrorIs(t, err, coordination.ErrKeyNotFound)
		fields, err := s.HGetAll(ctx, "b")
		require.NoError(t, err)
		assert.Empty(t, fields)
	})
}
