package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type UserID uuid.UUID
type MessageID uuid.UUID

// ChatID is derived from the two participants so both sides agree on it
// without coordination.
type ChatID string

type CallID string

func NewUserID() UserID {
	return UserID(uuid.New())
}

func ParseUserID(s string) (UserID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return UserID{}, fmt.Errorf("%w: %v", ErrInvalidUser, err)
	}
	return UserID(id), nil
}

func (id UserID) String() string {
	return uuid.UUID(id).String()
}

func (id UserID) IsZero() bool {
	return id == UserID{}
}

func (id UserID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *UserID) UnmarshalText(b []byte) error {
	parsed, err := ParseUserID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func NewMessageID() MessageID {
	return MessageID(uuid.New())
}

func ParseMessageID(s string) (MessageID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return MessageID{}, fmt.Errorf("%w: message id", ErrNotFound)
	}
	return MessageID(id), nil
}

func (id MessageID) String() string {
	return uuid.UUID(id).String()
}

func (id MessageID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *MessageID) UnmarshalText(b []byte) error {
	parsed, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = MessageID(parsed)
	return nil
}

// ChatIDFor concatenates both ids, larger first.
func ChatIDFor(a, b UserID) ChatID {
	as, bs := a.String(), b.String()
	if as > bs {
		return ChatID(as + bs)
	}
	return ChatID(bs + as)
}

func (id ChatID) String() string {
	return string(id)
}

func NewCallID(caller, callee UserID, at time.Time) CallID {
	return CallID(fmt.Sprintf("call_%s_%s_%d", caller, callee, at.UnixMilli()))
}

func (id CallID) String() string {
	return string(id)
}
