package service

import (
	"context"
	"testing"

	"github.com/Wyydra/pairchat/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, token, err := f.auth.Register(ctx, "Alice@Example.com", "secret1", "Alice", "https://img.test/a.png")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.NotEmpty(t, token)

	id, err := f.auth.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)

	_, _, err = f.auth.Register(ctx, "alice@example.com", "secret1", "Alice 2", "")
	assert.ErrorIs(t, err, domain.ErrUserExists)

	_, _, err = f.auth.Register(ctx, "carol@example.com", "123", "Carol", "")
	assert.ErrorIs(t, err, domain.ErrInvalidUser)

	got, _, err := f.auth.Login(ctx, "alice@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, _, err = f.auth.Login(ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, _, err = f.auth.Login(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestSearchUsersExcludesSelf(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	found, err := f.auth.SearchUsers(ctx, alice.ID, "  BOB ")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, bob.ID, found[0].ID)

	found, err = f.auth.SearchUsers(ctx, alice.ID, "alice")
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = f.auth.SearchUsers(ctx, alice.ID, "")
	require.NoError(t, err)
	assert.Empty(t, found)
}
