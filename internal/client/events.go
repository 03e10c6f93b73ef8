package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Wyydra/pairchat/internal/core/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const wsWriteWait = 5 * time.Second

// Event is a server push with its payload still encoded.
type Event struct {
	Type    domain.EventType `json:"type"`
	Payload json.RawMessage  `json:"payload"`
}

func (e Event) Call() (domain.Call, error) {
	var c domain.Call
	err := json.Unmarshal(e.Payload, &c)
	return c, err
}

func (e Event) Candidate() (domain.Candidate, error) {
	var c domain.Candidate
	err := json.Unmarshal(e.Payload, &c)
	return c, err
}

func (e Event) Message() (domain.Message, error) {
	var m domain.Message
	err := json.Unmarshal(e.Payload, &m)
	return m, err
}

// Events is a live event socket.
type Events struct {
	conn *websocket.Conn
	C    <-chan Event
	done chan struct{}
	once sync.Once
}

// Subscribe opens the event socket. Events are delivered on the returned
// C until the context is cancelled or the socket closes.
func (c *Client) Subscribe(ctx context.Context) (*Events, error) {
	if c.token == "" {
		return nil, errNotLoggedIn
	}
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"token": {c.token}}.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial events: %w", err)
	}

	ch := make(chan Event, 64)
	ev := &Events{conn: conn, C: ch, done: make(chan struct{})}

	go func() {
		select {
		case <-ctx.Done():
			ev.Close()
		case <-ev.done:
		}
	}()
	go func() {
		defer close(ch)
		defer ev.Close()
		for {
			var e Event
			if err := conn.ReadJSON(&e); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Warn().Err(err).Msg("Event socket closed")
				}
				return
			}
			select {
			case ch <- e:
			case <-ev.done:
				return
			}
		}
	}()
	return ev, nil
}

func (e *Events) Close() error {
	var err error
	e.once.Do(func() {
		close(e.done)
		_ = e.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
		err = e.conn.Close()
	})
	return err
}
