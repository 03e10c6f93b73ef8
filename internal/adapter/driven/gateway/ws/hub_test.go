package ws

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Wyydra/pairchat/internal/core/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	id     string
	userID domain.UserID
	events chan domain.Event

	mu     sync.Mutex
	closed bool
}

func newFakeClient(userID domain.UserID, buffer int) *fakeClient {
	return &fakeClient{
		id:     uuid.NewString(),
		userID: userID,
		events: make(chan domain.Event, buffer),
	}
}

func (c *fakeClient) ID() string             { return c.id }
func (c *fakeClient) UserID() domain.UserID { return c.userID }

func (c *fakeClient) Send(e domain.Event) bool {
	select {
	case c.events <- e:
		return true
	default:
		return false
	}
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub()
	go h.Run()
	t.Cleanup(h.Stop)
	return h
}

func TestHubDeliversToEveryConnectionOfUser(t *testing.T) {
	h := startHub(t)
	user := domain.NewUserID()
	a, b := newFakeClient(user, 1), newFakeClient(user, 1)
	other := newFakeClient(domain.NewUserID(), 1)
	h.Register(a)
	h.Register(b)
	h.Register(other)
	require.Equal(t, 2, h.Connections(user))

	ev := domain.Event{Type: domain.EventCallUpdated, Payload: "x"}
	require.NoError(t, h.SendToUser(context.Background(), user, ev))
	// round trip through the loop so the delivery has been processed
	h.Connections(user)

	assert.Equal(t, ev, <-a.events)
	assert.Equal(t, ev, <-b.events)
	assert.Empty(t, other.events)
}

func TestHubDropsSlowClient(t *testing.T) {
	h := startHub(t)
	user := domain.NewUserID()
	slow := newFakeClient(user, 0)
	h.Register(slow)

	require.NoError(t, h.SendToUser(context.Background(), user, domain.Event{Type: domain.EventChatUpdated}))
	assert.Equal(t, 0, h.Connections(user))
	assert.True(t, slow.isClosed())
}

func TestHubUnregister(t *testing.T) {
	h := startHub(t)
	user := domain.NewUserID()
	c := newFakeClient(user, 1)
	h.Register(c)
	h.Unregister(c)
	assert.Equal(t, 0, h.Connections(user))
	assert.True(t, c.isClosed())
}

func TestHubStopClosesClientsAndRejectsSends(t *testing.T) {
	h := NewHub()
	done := make(chan struct{})
	go func() {
		h.Run()
		close(done)
	}()

	c := newFakeClient(domain.NewUserID(), 1)
	h.Register(c)
	h.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
	assert.True(t, c.isClosed())
	assert.ErrorIs(t, h.SendToUser(context.Background(), c.userID, domain.Event{}), ErrHubStopped)
}
