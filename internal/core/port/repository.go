package port

import (
	"context"

	"github.com/Wyydra/pairchat/internal/core/domain"
)

type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	Get(ctx context.Context, id domain.UserID) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	FindByDisplayName(ctx context.Context, name string) ([]domain.User, error)
}

type ChatRepository interface {
	// CreateIfMissing stores chat unless one with the same id exists and
	// returns the stored chat either way.
	CreateIfMissing(ctx context.Context, chat domain.Chat) (domain.Chat, bool, error)
	Get(ctx context.Context, id domain.ChatID) (domain.Chat, error)
	PutUserChat(ctx context.Context, owner domain.UserID, entry domain.UserChat) error
	ListUserChats(ctx context.Context, owner domain.UserID) ([]domain.UserChat, error)
}

type MessageRepository interface {
	Save(ctx context.Context, msg domain.Message) error
	Get(ctx context.Context, chatID domain.ChatID, id domain.MessageID) (domain.Message, error)
	Delete(ctx context.Context, chatID domain.ChatID, id domain.MessageID) error
	List(ctx context.Context, chatID domain.ChatID) ([]domain.Message, error)
}

// CallRepository is the shared signaling document store. Update runs fn on
// the latest version of the call and persists the result atomically, so
// concurrent writers never overwrite each other.
type CallRepository interface {
	Create(ctx context.Context, call domain.Call) error
	Get(ctx context.Context, id domain.CallID) (domain.Call, error)
	Update(ctx context.Context, id domain.CallID, fn func(*domain.Call) error) (domain.Call, error)
	ListByUser(ctx context.Context, userID domain.UserID) ([]domain.Call, error)
	// AddCandidate fails with domain.ErrCallEnded once the call is terminal.
	AddCandidate(ctx context.Context, c domain.Candidate) (domain.Candidate, error)
	ListCandidates(ctx context.Context, id domain.CallID, after int) ([]domain.Candidate, error)
}
