package forum

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserPassword(t *testing.T) {
	u := NewUser("expert@example.com", "expert", false)
	assert.NotEmpty(t, u.ID)

	require.NoError(t, u.SetPassword("super-secret"))
	ok, err := u.PasswordMatches("super-secret")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = u.PasswordMatches("wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	u.Sanitize()
	assert.Nil(t, u.Hash)
}

func TestMemoryStoreSaveUserKeepsStoredID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	original := NewUser("expert@example.com", "expert", false)
	require.NoError(t, store.SaveUser(ctx, original))

	again := NewUser("Expert@example.com", "expert2", true)
	require.NoError(t, store.SaveUser(ctx, again))
	assert.Equal(t, original.ID, again.ID)

	stored, err := store.GetUserByID(ctx, original.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "expert2", stored.Handle)
	assert.True(t, stored.Admin)
}

func TestNewNotification(t *testing.T) {
	n := NewNotification("mod", "user-1", "approved", "/topics/t#post-2")
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, "user-1", n.UserID)
	assert.False(t, n.CreatedAt.IsZero())
	assert.True(t, n.ReadAt.IsZero())
}
