package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Wyydra/pairchat/internal/adapter/driven/persistence/memory"
	"github.com/Wyydra/pairchat/internal/core/domain"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

type sentEvent struct {
	to    domain.UserID
	event domain.Event
}

type fakeGateway struct {
	mu     sync.Mutex
	events []sentEvent
}

func (g *fakeGateway) SendToUser(ctx context.Context, userID domain.UserID, event domain.Event) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = append(g.events, sentEvent{to: userID, event: event})
	return nil
}

func (g *fakeGateway) count(to domain.UserID, typ domain.EventType) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, e := range g.events {
		if e.to == to && e.event.Type == typ {
			n++
		}
	}
	return n
}

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (s *fakeStorage) DetectContentType(head []byte) string {
	return http.DetectContentType(head)
}

func (s *fakeStorage) Put(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = b
	s.types[key] = contentType
	return "https://media.test/" + key, nil
}

func (s *fakeStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return domain.ErrNotFound
	}
	delete(s.objects, key)
	return nil
}

// plainHasher keeps tests fast; bcrypt is covered by the auth adapter.
type plainHasher struct{}

func (plainHasher) Hash(password string) ([]byte, error) { return []byte("h:" + password), nil }

func (plainHasher) Compare(hash []byte, password string) error {
	if !bytes.Equal(hash, []byte("h:"+password)) {
		return errors.New("mismatch")
	}
	return nil
}

type fakeTokens struct{}

func (fakeTokens) Issue(id domain.UserID) (string, error) { return "tok:" + id.String(), nil }

func (fakeTokens) Verify(raw string) (domain.UserID, error) {
	if len(raw) < 4 || raw[:4] != "tok:" {
		return domain.UserID{}, domain.ErrInvalidCredentials
	}
	return domain.ParseUserID(raw[4:])
}

type acceptAllSDP struct{}

func (acceptAllSDP) Validate(desc domain.SessionDescription) error {
	if desc.SDP == "" {
		return domain.ErrInvalidSDP
	}
	return nil
}

type fixture struct {
	clock    *clock.Mock
	users    *memory.UserRepository
	chats    *memory.ChatRepository
	messages *memory.MessageRepository
	calls    *memory.CallRepository
	storage  *fakeStorage
	gateway  *fakeGateway

	auth *AuthService
	chat *ChatService
	call *CallService
}

func newFixture(t *testing.T, opts ...CallOption) *fixture {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	f := &fixture{
		clock:    clk,
		users:    memory.NewUserRepository(),
		chats:    memory.NewChatRepository(),
		messages: memory.NewMessageRepository(),
		calls:    memory.NewCallRepository(),
		storage:  newFakeStorage(),
		gateway:  &fakeGateway{},
	}
	f.auth = NewAuthService(f.users, plainHasher{}, fakeTokens{}, clk)
	f.chat = NewChatService(f.users, f.chats, f.messages, f.storage, f.gateway, clk)
	f.call = NewCallService(f.users, f.chats, f.calls, acceptAllSDP{}, f.gateway, append([]CallOption{WithClock(clk)}, opts...)...)
	t.Cleanup(f.call.Close)
	return f
}

func (f *fixture) user(t *testing.T, name string) domain.User {
	t.Helper()
	u, _, err := f.auth.Register(context.Background(), name+"@example.com", "secret1", name, "")
	require.NoError(t, err)
	return u
}

func (f *fixture) pair(t *testing.T) (domain.User, domain.User, domain.ChatID) {
	t.Helper()
	a, b := f.user(t, "alice"), f.user(t, "bob")
	chat, err := f.chat.OpenChat(context.Background(), a.ID, b.ID)
	require.NoError(t, err)
	return a, b, chat.ChatID
}
