package domain

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

type User struct {
	ID           UserID
	Email        string
	DisplayName  string
	PhotoURL     string
	PasswordHash []byte
	CreatedAt    time.Time
}

// UserInfo is what other users get to see.
type UserInfo struct {
	ID          UserID `json:"uid"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL,omitempty"`
}

func NewUser(email, displayName, photoURL string, passwordHash []byte, now time.Time) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, fmt.Errorf("%w: display name is required", ErrInvalidUser)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: bad email %q", ErrInvalidUser, email)
	}
	if len(passwordHash) == 0 {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidUser)
	}
	return &User{
		ID:           NewUserID(),
		Email:        email,
		DisplayName:  displayName,
		PhotoURL:     strings.TrimSpace(photoURL),
		PasswordHash: passwordHash,
		CreatedAt:    now,
	}, nil
}

func (u User) Info() UserInfo {
	return UserInfo{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		PhotoURL:    u.PhotoURL,
	}
}
