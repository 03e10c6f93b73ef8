package ws

import (
	"context"
	"errors"
	"sync"

	"github.com/Wyydra/pairchat/internal/core/domain"
	"github.com/rs/zerolog/log"
)

var ErrHubStopped = errors.New("hub stopped")

type delivery struct {
	userID domain.UserID
	event  domain.Event
}

// Hub fans events out to every connection of a user.
// implements port.RealTimeGateway
type Hub struct {
	clients    map[domain.UserID]map[Client]struct{}
	register   chan Client
	unregister chan Client
	deliver    chan delivery
	online     chan onlineQuery
	quit       chan struct{}
	stopOnce   sync.Once
}

type onlineQuery struct {
	userID domain.UserID
	reply  chan int
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[domain.UserID]map[Client]struct{}),
		register:   make(chan Client),
		unregister: make(chan Client),
		deliver:    make(chan delivery),
		online:     make(chan onlineQuery),
		quit:       make(chan struct{}),
	}
}

func (h *Hub) SendToUser(ctx context.Context, userID domain.UserID, event domain.Event) error {
	select {
	case h.deliver <- delivery{userID: userID, event: event}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.quit:
		return ErrHubStopped
	}
}

// Connections returns how many live connections userID has.
func (h *Hub) Connections(userID domain.UserID) int {
	q := onlineQuery{userID: userID, reply: make(chan int, 1)}
	select {
	case h.online <- q:
		return <-q.reply
	case <-h.quit:
		return 0
	}
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			for userID, conns := range h.clients {
				for client := range conns {
					client.Close()
				}
				delete(h.clients, userID)
			}
			return

		case client := <-h.register:
			conns, ok := h.clients[client.UserID()]
			if !ok {
				conns = make(map[Client]struct{})
				h.clients[client.UserID()] = conns
			}
			conns[client] = struct{}{}
			log.Info().
				Str("client_id", client.ID()).
				Str("user_id", client.UserID().String()).
				Int("connections", len(conns)).
				Msg("Client registered")

		case client := <-h.unregister:
			h.remove(client)

		case d := <-h.deliver:
			for client := range h.clients[d.userID] {
				if !client.Send(d.event) {
					log.Warn().
						Str("client_id", client.ID()).
						Str("event", string(d.event.Type)).
						Msg("Client send queue full, dropping client")
					h.remove(client)
				}
			}

		case q := <-h.online:
			q.reply <- len(h.clients[q.userID])
		}
	}
}

func (h *Hub) remove(client Client) {
	conns, ok := h.clients[client.UserID()]
	if !ok {
		return
	}
	if _, ok := conns[client]; !ok {
		return
	}
	delete(conns, client)
	if len(conns) == 0 {
		delete(h.clients, client.UserID())
	}
	client.Close()
	log.Info().Str("client_id", client.ID()).Msg("Client unregistered")
}

func (h *Hub) Register(c Client) {
	select {
	case h.register <- c:
	case <-h.quit:
		c.Close()
	}
}

func (h *Hub) Unregister(c Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}
