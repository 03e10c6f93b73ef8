package domain

import "time"

type Chat struct {
	ID        ChatID
	Members   [2]UserID
	CreatedAt time.Time
}

func NewChat(a, b UserID, now time.Time) (*Chat, error) {
	if a == b {
		return nil, ErrSelfChat
	}
	return &Chat{
		ID:        ChatIDFor(a, b),
		Members:   [2]UserID{a, b},
		CreatedAt: now,
	}, nil
}

func (c Chat) HasMember(id UserID) bool {
	return c.Members[0] == id || c.Members[1] == id
}

// Peer returns the member that is not id.
func (c Chat) Peer(id UserID) UserID {
	if c.Members[0] == id {
		return c.Members[1]
	}
	return c.Members[0]
}

// UserChat is one row of a user's chat list.
type UserChat struct {
	ChatID      ChatID    `json:"chatId"`
	Peer        UserInfo  `json:"userInfo"`
	LastMessage string    `json:"lastMessage"`
	Date        time.Time `json:"date"`
}
