package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/Wyydra/pairchat/internal/core/domain"
)

type UserRepository struct {
	mu      sync.RWMutex
	users   map[domain.UserID]domain.User
	byEmail map[string]domain.UserID
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		users:   make(map[domain.UserID]domain.User),
		byEmail: make(map[string]domain.UserID),
	}
}

func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	email := strings.ToLower(user.Email)
	if _, ok := r.byEmail[email]; ok {
		return domain.ErrUserExists
	}
	r.users[user.ID] = user
	r.byEmail[email] = user.ID
	return nil
}

func (r *UserRepository) Get(ctx context.Context, id domain.UserID) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return r.users[id], nil
}

func (r *UserRepository) FindByDisplayName(ctx context.Context, name string) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.User
	for _, u := range r.users {
		if strings.EqualFold(u.DisplayName, name) {
			out = append(out, u)
		}
	}
	return out, nil
}
