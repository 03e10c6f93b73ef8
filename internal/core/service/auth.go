package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Wyydra/pairchat/internal/core/domain"
	"github.com/Wyydra/pairchat/internal/core/port"
	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
)

const minPasswordLen = 6

type AuthService struct {
	users  port.UserRepository
	hasher port.PasswordHasher
	tokens port.TokenIssuer
	clock  clock.Clock
}

func NewAuthService(users port.UserRepository, hasher port.PasswordHasher, tokens port.TokenIssuer, clk clock.Clock) *AuthService {
	if clk == nil {
		clk = clock.New()
	}
	return &AuthService{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		clock:  clk,
	}
}

func (s *AuthService) Register(ctx context.Context, email, password, displayName, photoURL string) (domain.User, string, error) {
	if len(password) < minPasswordLen {
		return domain.User{}, "", fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalidUser, minPasswordLen)
	}
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return domain.User{}, "", domain.ErrUserExists
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, "", err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	user, err := domain.NewUser(email, displayName, photoURL, hash, s.clock.Now())
	if err != nil {
		return domain.User{}, "", err
	}
	if err := s.users.Create(ctx, *user); err != nil {
		return domain.User{}, "", err
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue token: %w", err)
	}
	log.Info().Str("user_id", user.ID.String()).Msg("User registered")
	return *user, token, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (domain.User, string, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, "", domain.ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, "", err
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return domain.User{}, "", domain.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

func (s *AuthService) Authenticate(token string) (domain.UserID, error) {
	return s.tokens.Verify(token)
}

func (s *AuthService) Me(ctx context.Context, id domain.UserID) (domain.User, error) {
	return s.users.Get(ctx, id)
}

// SearchUsers matches display names case-insensitively and leaves out the
// searching user.
func (s *AuthService) SearchUsers(ctx context.Context, self domain.UserID, name string) ([]domain.UserInfo, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return []domain.UserInfo{}, nil
	}
	users, err := s.users.FindByDisplayName(ctx, name)
	if err != nil {
		return nil, err
	}
	out := make([]domain.UserInfo, 0, len(users))
	for _, u := range users {
		if u.ID == self {
			continue
		}
		out = append(out, u.Info())
	}
	return out, nil
}
