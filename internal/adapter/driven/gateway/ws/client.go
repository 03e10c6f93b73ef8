package ws

import "github.com/Wyydra/pairchat/internal/core/domain"

type Client interface {
	ID() string
	UserID() domain.UserID
	// Send queues event without blocking. It reports false when the client
	// cannot keep up.
	Send(event domain.Event) bool
	Close() error
}
