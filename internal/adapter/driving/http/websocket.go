package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Wyydra/pairchat/internal/core/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const wsWriteWait = 5 * time.Second

const (
	inboundCallOffer     = "call.offer"
	inboundCallAnswer    = "call.answer"
	inboundCallCandidate = "call.candidate"
	inboundCallEnd       = "call.end"

	eventError domain.EventType = "error"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers authenticate with a bearer token, not cookies.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// inboundMessage is a signaling write sent over the socket instead of REST.
type inboundMessage struct {
	Type        string                     `json:"type"`
	CallID      domain.CallID              `json:"callId"`
	Description *domain.SessionDescription `json:"description,omitempty"`
	Revision    int                        `json:"revision,omitempty"`
	Candidate   *candidateRequest          `json:"candidate,omitempty"`
}

type wsError struct {
	Error   string        `json:"error"`
	Request string        `json:"request,omitempty"`
	CallID  domain.CallID `json:"callId,omitempty"`
}

type WSClient struct {
	id     string
	userID domain.UserID
	conn   *websocket.Conn
	send   chan domain.Event

	done      chan struct{}
	closeOnce sync.Once
}

func newWSClient(userID domain.UserID, conn *websocket.Conn, queue int) *WSClient {
	return &WSClient{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		send:   make(chan domain.Event, queue),
		done:   make(chan struct{}),
	}
}

func (c *WSClient) ID() string {
	return c.id
}

func (c *WSClient) UserID() domain.UserID {
	return c.userID
}

func (c *WSClient) Send(event domain.Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- event:
		return true
	default:
		return false
	}
}

func (c *WSClient) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *WSClient) closeWith(code int, reason string) {
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
	c.Close()
}

func (c *WSClient) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteJSON(event); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
			return
		}
	}
}

// ServeWS upgrades an authenticated request and streams the user's events.
// The token comes from the Authorization header or the token query parameter.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, err := h.AuthService.Authenticate(bearerToken(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	client := newWSClient(userID, conn, h.wsConfig.SendQueue)
	l := log.With().
		Str("client_id", client.ID()).
		Str("user_id", userID.String()).
		Logger()
	l.Info().Msg("New client connected")

	go client.writePump(h.wsConfig.PingInterval)
	h.Hub.Register(client)

	defer func() {
		l.Info().Msg("Client disconnected")
		h.Hub.Unregister(client)
		client.Close()
	}()

	conn.SetReadLimit(h.wsConfig.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(h.wsConfig.IdleTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.wsConfig.IdleTimeout))
	})

	limiter := rate.NewLimiter(rate.Limit(h.wsConfig.MessagesPerSecond), h.wsConfig.MessagesPerSecond)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Error().Err(err).Msg("Unexpected close error")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.wsConfig.IdleTimeout))

		// Read before limiting so the close frame is not lost behind unread bytes.
		if !limiter.Allow() {
			l.Warn().Msg("Client exceeded message rate")
			client.closeWith(websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}
		if msgType != websocket.TextMessage {
			client.closeWith(websocket.CloseUnsupportedData, "expected text message")
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.replyError(client, msg, fmt.Errorf("%w: %v", errBadRequest, err))
			continue
		}
		if err := h.handleInbound(r.Context(), userID, msg); err != nil {
			l.Debug().Err(err).Str("type", msg.Type).Msg("Signal rejected")
			h.replyError(client, msg, err)
		}
	}
}

func (h *Handler) handleInbound(ctx context.Context, userID domain.UserID, msg inboundMessage) error {
	switch msg.Type {
	case inboundCallOffer:
		if msg.Description == nil {
			return fmt.Errorf("%w: missing description", errBadRequest)
		}
		_, err := h.CallService.PublishOffer(ctx, userID, msg.CallID, *msg.Description)
		return err
	case inboundCallAnswer:
		if msg.Description == nil {
			return fmt.Errorf("%w: missing description", errBadRequest)
		}
		_, err := h.CallService.PublishAnswer(ctx, userID, msg.CallID, *msg.Description, msg.Revision)
		return err
	case inboundCallCandidate:
		if msg.Candidate == nil || msg.Candidate.Candidate == "" {
			return fmt.Errorf("%w: missing candidate", errBadRequest)
		}
		_, err := h.CallService.AddCandidate(ctx, userID, msg.CallID, msg.Candidate.toDomain())
		return err
	case inboundCallEnd:
		_, err := h.CallService.EndCall(ctx, userID, msg.CallID)
		return err
	default:
		return errors.Join(errBadRequest, fmt.Errorf("unknown message type %q", msg.Type))
	}
}

func (h *Handler) replyError(client *WSClient, msg inboundMessage, err error) {
	event := domain.Event{
		Type:    eventError,
		Payload: wsError{Error: err.Error(), Request: msg.Type, CallID: msg.CallID},
	}
	if !client.Send(event) {
		log.Warn().Str("client_id", client.ID()).Msg("Dropping error reply")
	}
}
