package memory

import (
	"context"
	"sync"

	"github.com/Wyydra/pairchat/internal/core/domain"
)

type ChatRepository struct {
	mu        sync.RWMutex
	chats     map[domain.ChatID]domain.Chat
	userChats map[domain.UserID]map[domain.ChatID]domain.UserChat
}

func NewChatRepository() *ChatRepository {
	return &ChatRepository{
		chats:     make(map[domain.ChatID]domain.Chat),
		userChats: make(map[domain.UserID]map[domain.ChatID]domain.UserChat),
	}
}

func (r *ChatRepository) CreateIfMissing(ctx context.Context, chat domain.Chat) (domain.Chat, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.chats[chat.ID]; ok {
		return existing, false, nil
	}
	r.chats[chat.ID] = chat
	return chat, true, nil
}

func (r *ChatRepository) Get(ctx context.Context, id domain.ChatID) (domain.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.chats[id]
	if !ok {
		return domain.Chat{}, domain.ErrNotFound
	}
	return c, nil
}

func (r *ChatRepository) PutUserChat(ctx context.Context, owner domain.UserID, entry domain.UserChat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries, ok := r.userChats[owner]
	if !ok {
		entries = make(map[domain.ChatID]domain.UserChat)
		r.userChats[owner] = entries
	}
	entries[entry.ChatID] = entry
	return nil
}

func (r *ChatRepository) ListUserChats(ctx context.Context, owner domain.UserID) ([]domain.UserChat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.UserChat, 0, len(r.userChats[owner]))
	for _, e := range r.userChats[owner] {
		out = append(out, e)
	}
	return out, nil
}
