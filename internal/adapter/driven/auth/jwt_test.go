package auth

import (
	"testing"
	"time"

	"github.com/Wyydra/pairchat/internal/core/domain"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestTokenRoundTrip(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Unix(1_700_000_000, 0))

	issuer, err := NewTokenIssuer("secret", time.Hour, clk)
	require.NoError(t, err)

	id := domain.NewUserID()
	token, err := issuer.Issue(id)
	require.NoError(t, err)

	got, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestTokenExpires(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Unix(1_700_000_000, 0))

	issuer, err := NewTokenIssuer("secret", time.Minute, clk)
	require.NoError(t, err)
	token, err := issuer.Issue(domain.NewUserID())
	require.NoError(t, err)

	clk.Add(2 * time.Minute)
	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestTokenWrongSecret(t *testing.T) {
	a, err := NewTokenIssuer("secret-a", time.Hour, nil)
	require.NoError(t, err)
	b, err := NewTokenIssuer("secret-b", time.Hour, nil)
	require.NoError(t, err)

	token, err := a.Issue(domain.NewUserID())
	require.NoError(t, err)
	_, err = b.Verify(token)
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = a.Verify("not.a.jwt")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestNewTokenIssuerRequiresSecret(t *testing.T) {
	_, err := NewTokenIssuer("", time.Hour, nil)
	assert.ErrorIs(t, err, ErrEmptySecret)
}

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	hash, err := h.Hash("hunter22")
	require.NoError(t, err)
	assert.NoError(t, h.Compare(hash, "hunter22"))
	assert.Error(t, h.Compare(hash, "hunter23"))
}
