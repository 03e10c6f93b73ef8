package memory

import (
	"context"
	"sync"

	"github.com/Wyydra/pairchat/internal/core/domain"
)

// MessageRepository keeps each chat's messages in send order.
type MessageRepository struct {
	mu       sync.Mutex
	messages map[domain.ChatID][]domain.Message
}

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{
		messages: make(map[domain.ChatID][]domain.Message),
	}
}

func (r *MessageRepository) Save(ctx context.Context, msg domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[msg.ChatID] = append(r.messages[msg.ChatID], msg)
	return nil
}

func (r *MessageRepository) Get(ctx context.Context, chatID domain.ChatID, id domain.MessageID) (domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages[chatID] {
		if m.ID == id {
			return m, nil
		}
	}
	return domain.Message{}, domain.ErrNotFound
}

func (r *MessageRepository) Delete(ctx context.Context, chatID domain.ChatID, id domain.MessageID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.messages[chatID]
	for i, m := range msgs {
		if m.ID == id {
			r.messages[chatID] = append(msgs[:i:i], msgs[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *MessageRepository) List(ctx context.Context, chatID domain.ChatID) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Message, len(r.messages[chatID]))
	copy(out, r.messages[chatID])
	return out, nil
}
