package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreLookup(t *testing.T) {
	store := NewMemoryStore()
	store.AddIdentity(Identity{UniversalID: "id=alice,ou=user,o=root", Name: "alice"}, map[string][]string{
		"mail":                       {"alice@example.com"},
		"iplanet-am-user-alias-list": {"google-1234"},
	})

	ctx := context.Background()

	t.Run("by name", func(t *testing.T) {
		id, err := store.LookupByName(ctx, "alice", nil)
		require.NoError(t, err)
		assert.Equal(t, "alice", id.Name)
	})

	t.Run("by alias attribute", func(t *testing.T) {
		id, err := store.LookupByName(ctx, "google-1234", []string{"iplanet-am-user-alias-list"})
		require.NoError(t, err)
		assert.Equal(t, "alice", id.Name)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := store.LookupByName(ctx, "bob", nil)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMemoryStoreSetAttributeIsStagedUntilSave(t *testing.T) {
	store := NewMemoryStore()
	store.AddIdentity(Identity{Name: "alice"}, map[string][]string{"telephoneNumber": {"5551234"}})

	ctx := context.Background()
	id := &Identity{Name: "alice"}

	require.NoError(t, store.SetAttribute(ctx, id, "telephoneNumber", []string{"5559999"}))

	// Staged value is visible through GetAttribute before Save
	v, err := store.GetAttribute(ctx, id, "telephoneNumber")
	require.NoError(t, err)
	assert.Equal(t, []string{"5559999"}, v)

	require.NoError(t, store.Save(ctx, id))
	assert.Equal(t, 1, store.SaveCount())

	v, err = store.GetAttribute(ctx, id, "telephoneNumber")
	require.NoError(t, err)
	assert.Equal(t, []string{"5559999"}, v)
}

func TestMemoryStoreFailWith(t *testing.T) {
	store := NewMemoryStore()
	store.AddIdentity(Identity{Name: "alice"}, nil)
	store.FailWith(assert.AnError)

	_, err := store.LookupByName(context.Background(), "alice", nil)
	assert.ErrorIs(t, err, assert.AnError)

	store.FailWith(nil)
	_, err = store.LookupByName(context.Background(), "alice", nil)
	assert.NoError(t, err)
}
