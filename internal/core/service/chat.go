package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Wyydra/pairchat/internal/core/domain"
	"github.com/Wyydra/pairchat/internal/core/port"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const imagePrefix = "chat_images/"

// Attachment is an uploaded file attached to a message.
type Attachment struct {
	Body io.Reader
}

type ChatService struct {
	users    port.UserRepository
	chats    port.ChatRepository
	messages port.MessageRepository
	storage  port.ObjectStorage
	gateway  port.RealTimeGateway
	clock    clock.Clock

	locksMu sync.Mutex
	locks   map[domain.ChatID]*sync.Mutex
}

func NewChatService(users port.UserRepository, chats port.ChatRepository, messages port.MessageRepository, storage port.ObjectStorage, gateway port.RealTimeGateway, clk clock.Clock) *ChatService {
	if clk == nil {
		clk = clock.New()
	}
	return &ChatService{
		users:    users,
		chats:    chats,
		messages: messages,
		storage:  storage,
		gateway:  gateway,
		clock:    clk,
		locks:    make(map[domain.ChatID]*sync.Mutex),
	}
}

// lockChat serializes writes that touch a chat's message list and its
// previews, so a preview always matches the newest stored message.
func (s *ChatService) lockChat(id domain.ChatID) func() {
	s.locksMu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.locksMu.Unlock()
	l.Lock()
	return l.Unlock
}

// OpenChat creates the chat between userID and peerID along with both chat
// list entries. Opening an existing chat changes nothing.
func (s *ChatService) OpenChat(ctx context.Context, userID, peerID domain.UserID) (domain.UserChat, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return domain.UserChat{}, err
	}
	peer, err := s.users.Get(ctx, peerID)
	if err != nil {
		return domain.UserChat{}, fmt.Errorf("peer: %w", err)
	}

	now := s.clock.Now()
	chat, err := domain.NewChat(userID, peerID, now)
	if err != nil {
		return domain.UserChat{}, err
	}
	stored, created, err := s.chats.CreateIfMissing(ctx, *chat)
	if err != nil {
		return domain.UserChat{}, err
	}

	mine := domain.UserChat{ChatID: stored.ID, Peer: peer.Info(), Date: now}
	if !created {
		return s.userChat(ctx, userID, stored.ID, mine)
	}

	theirs := domain.UserChat{ChatID: stored.ID, Peer: user.Info(), Date: now}
	if err := s.chats.PutUserChat(ctx, userID, mine); err != nil {
		return domain.UserChat{}, err
	}
	if err := s.chats.PutUserChat(ctx, peerID, theirs); err != nil {
		return domain.UserChat{}, err
	}
	s.notify(ctx, userID, domain.Event{Type: domain.EventChatUpdated, Payload: mine})
	s.notify(ctx, peerID, domain.Event{Type: domain.EventChatUpdated, Payload: theirs})

	log.Info().Str("chat_id", stored.ID.String()).Msg("Chat opened")
	return mine, nil
}

// ListChats returns the chat list of userID, most recent first.
func (s *ChatService) ListChats(ctx context.Context, userID domain.UserID) ([]domain.UserChat, error) {
	entries, err := s.chats.ListUserChats(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Date.After(entries[j].Date)
	})
	return entries, nil
}

func (s *ChatService) ListMessages(ctx context.Context, userID domain.UserID, chatID domain.ChatID) ([]domain.Message, error) {
	if _, err := s.memberChat(ctx, userID, chatID); err != nil {
		return nil, err
	}
	return s.messages.List(ctx, chatID)
}

func (s *ChatService) SendMessage(ctx context.Context, senderID domain.UserID, chatID domain.ChatID, text string, attachment *Attachment) (domain.Message, error) {
	chat, err := s.memberChat(ctx, senderID, chatID)
	if err != nil {
		return domain.Message{}, err
	}
	if strings.TrimSpace(text) == "" && attachment == nil {
		return domain.Message{}, domain.ErrEmptyMessage
	}

	var imageURL, imageKey string
	if attachment != nil {
		imageKey, imageURL, err = s.storeImage(ctx, attachment)
		if err != nil {
			return domain.Message{}, err
		}
	}

	unlock := s.lockChat(chatID)
	defer unlock()

	msg, err := domain.NewMessage(senderID, chatID, text, imageURL, s.clock.Now())
	if err != nil {
		return domain.Message{}, err
	}
	msg.ImageKey = imageKey

	if err := s.messages.Save(ctx, *msg); err != nil {
		return domain.Message{}, err
	}
	if err := s.updateLastMessage(ctx, chat, msg.Preview(), msg.Date); err != nil {
		return domain.Message{}, err
	}

	for _, member := range chat.Members {
		s.notify(ctx, member, domain.Event{Type: domain.EventMessageAdded, Payload: *msg})
	}
	return *msg, nil
}

// DeleteMessage removes a message sent by userID, together with its image,
// and rewinds the chat list preview to the message before it.
func (s *ChatService) DeleteMessage(ctx context.Context, userID domain.UserID, chatID domain.ChatID, messageID domain.MessageID) error {
	chat, err := s.memberChat(ctx, userID, chatID)
	if err != nil {
		return err
	}
	msg, err := s.messages.Get(ctx, chatID, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != userID {
		return fmt.Errorf("%w: only the sender can delete a message", domain.ErrForbidden)
	}

	unlock := s.lockChat(chatID)
	defer unlock()

	if msg.ImageKey != "" {
		if err := s.storage.Delete(ctx, msg.ImageKey); err != nil {
			log.Warn().Err(err).Str("key", msg.ImageKey).Msg("Image might already be deleted")
		}
	}
	if err := s.messages.Delete(ctx, chatID, messageID); err != nil {
		return err
	}

	remaining, err := s.messages.List(ctx, chatID)
	if err != nil {
		return err
	}
	preview, date := "", s.clock.Now()
	if n := len(remaining); n > 0 {
		preview, date = remaining[n-1].Preview(), remaining[n-1].Date
	}
	if err := s.updateLastMessage(ctx, chat, preview, date); err != nil {
		return err
	}

	deleted := domain.MessageDeleted{ChatID: chatID, MessageID: messageID}
	for _, member := range chat.Members {
		s.notify(ctx, member, domain.Event{Type: domain.EventMessageDeleted, Payload: deleted})
	}
	return nil
}

func (s *ChatService) memberChat(ctx context.Context, userID domain.UserID, chatID domain.ChatID) (domain.Chat, error) {
	chat, err := s.chats.Get(ctx, chatID)
	if err != nil {
		return domain.Chat{}, err
	}
	if !chat.HasMember(userID) {
		return domain.Chat{}, fmt.Errorf("%w: not a member of chat", domain.ErrForbidden)
	}
	return chat, nil
}

func (s *ChatService) storeImage(ctx context.Context, attachment *Attachment) (key, url string, err error) {
	br := bufio.NewReaderSize(attachment.Body, 512)
	head, err := br.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", "", fmt.Errorf("read attachment: %w", err)
	}
	contentType := s.storage.DetectContentType(head)
	if !strings.HasPrefix(contentType, "image/") {
		return "", "", fmt.Errorf("%w: detected %s", domain.ErrNotImage, contentType)
	}

	key = imagePrefix + uuid.NewString()
	url, err = s.storage.Put(ctx, key, contentType, br)
	if err != nil {
		return "", "", fmt.Errorf("store image: %w", err)
	}
	return key, url, nil
}

func (s *ChatService) updateLastMessage(ctx context.Context, chat domain.Chat, preview string, date time.Time) error {
	for _, member := range chat.Members {
		peer, err := s.users.Get(ctx, chat.Peer(member))
		if err != nil {
			return err
		}
		entry := domain.UserChat{
			ChatID:      chat.ID,
			Peer:        peer.Info(),
			LastMessage: preview,
			Date:        date,
		}
		if err := s.chats.PutUserChat(ctx, member, entry); err != nil {
			return err
		}
		s.notify(ctx, member, domain.Event{Type: domain.EventChatUpdated, Payload: entry})
	}
	return nil
}

func (s *ChatService) userChat(ctx context.Context, owner domain.UserID, chatID domain.ChatID, fallback domain.UserChat) (domain.UserChat, error) {
	entries, err := s.chats.ListUserChats(ctx, owner)
	if err != nil {
		return domain.UserChat{}, err
	}
	for _, e := range entries {
		if e.ChatID == chatID {
			return e, nil
		}
	}
	if err := s.chats.PutUserChat(ctx, owner, fallback); err != nil {
		return domain.UserChat{}, err
	}
	return fallback, nil
}

// notify is best effort: the stored documents stay the source of truth and
// clients resync through the REST endpoints.
func (s *ChatService) notify(ctx context.Context, userID domain.UserID, event domain.Event) {
	if err := s.gateway.SendToUser(ctx, userID, event); err != nil {
		log.Warn().Err(err).
			Str("user_id", userID.String()).
			Str("event", string(event.Type)).
			Msg("failed to push event")
	}
}
