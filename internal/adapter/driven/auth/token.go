package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/Wyydra/pairchat/internal/core/domain"
	"github.com/benbjohnson/clock"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const issuer = "pairchat"

var ErrEmptySecret = errors.New("jwt secret must not be empty")

// TokenIssuer signs HS256 access tokens whose subject is the user id.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

func NewTokenIssuer(secret string, ttl time.Duration, clk clock.Clock) (*TokenIssuer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if clk == nil {
		clk = clock.New()
	}
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		clock:  clk,
	}, nil
}

func (i *TokenIssuer) Issue(userID domain.UserID) (string, error) {
	now := i.clock.Now()
	token, err := jwt.NewBuilder().
		Issuer(issuer).
		Subject(userID.String()).
		IssuedAt(now).
		Expiration(now.Add(i.ttl)).
		Build()
	if err != nil {
		return "", err
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, i.secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return string(signed), nil
}

func (i *TokenIssuer) Verify(raw string) (domain.UserID, error) {
	token, err := jwt.Parse([]byte(raw),
		jwt.WithKey(jwa.HS256, i.secret),
		jwt.WithValidate(true),
		jwt.WithIssuer(issuer),
		jwt.WithClock(jwt.ClockFunc(i.clock.Now)),
	)
	if err != nil {
		return domain.UserID{}, fmt.Errorf("%w: %v", domain.ErrInvalidCredentials, err)
	}
	id, err := domain.ParseUserID(token.Subject())
	if err != nil {
		return domain.UserID{}, fmt.Errorf("%w: bad subject", domain.ErrInvalidCredentials)
	}
	return id, nil
}
