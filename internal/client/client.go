// Package client talks to a pairchat server over its REST API and event
// socket.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Wyydra/pairchat/internal/core/domain"
	"github.com/pion/webrtc/v4"
)

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Unwrap maps the response back onto the domain errors where the status and
// message identify one.
func (e *APIError) Unwrap() error {
	for _, err := range []error{
		domain.ErrStaleOffer, domain.ErrAnswerExists, domain.ErrCallBusy, domain.ErrCallEnded,
		domain.ErrNoOffer, domain.ErrInvalidTransition, domain.ErrNotFound, domain.ErrForbidden,
		domain.ErrInvalidCredentials, domain.ErrUserExists,
	} {
		if strings.Contains(e.Message, err.Error()) {
			return err
		}
	}
	return nil
}

type Client struct {
	baseURL string
	http    *http.Client
	token   string
	self    domain.UserID
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Self() domain.UserID {
	return c.self
}

func (c *Client) Token() string {
	return c.token
}

type User struct {
	ID          domain.UserID `json:"uid"`
	Email       string        `json:"email"`
	DisplayName string        `json:"displayName"`
	PhotoURL    string        `json:"photoURL,omitempty"`
}

type authResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

func (c *Client) Register(ctx context.Context, email, password, displayName string) (User, error) {
	var resp authResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/register", map[string]string{
		"email":       email,
		"password":    password,
		"displayName": displayName,
	}, &resp)
	if err != nil {
		return User{}, err
	}
	c.token, c.self = resp.Token, resp.User.ID
	return resp.User, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (User, error) {
	var resp authResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return User{}, err
	}
	c.token, c.self = resp.Token, resp.User.ID
	return resp.User, nil
}

func (c *Client) SearchUsers(ctx context.Context, name string) ([]domain.UserInfo, error) {
	var out []domain.UserInfo
	err := c.do(ctx, http.MethodGet, "/api/users?q="+url.QueryEscape(name), nil, &out)
	return out, err
}

type Presence struct {
	ID          domain.UserID `json:"uid"`
	Online      bool          `json:"online"`
	Connections int           `json:"connections"`
}

func (c *Client) Presence(ctx context.Context, id domain.UserID) (Presence, error) {
	var out Presence
	err := c.do(ctx, http.MethodGet, "/api/users/"+id.String()+"/presence", nil, &out)
	return out, err
}

type ICEServers struct {
	ICEServers []struct {
		URLs       []string `json:"urls"`
		Username   string   `json:"username,omitempty"`
		Credential string   `json:"credential,omitempty"`
	} `json:"iceServers"`
	ICECandidatePoolSize uint8 `json:"iceCandidatePoolSize"`
}

// PeerConnectionConfig fetches the server's ICE configuration.
func (c *Client) PeerConnectionConfig(ctx context.Context) (webrtc.Configuration, error) {
	var resp ICEServers
	if err := c.do(ctx, http.MethodGet, "/api/ice-servers", nil, &resp); err != nil {
		return webrtc.Configuration{}, err
	}
	cfg := webrtc.Configuration{ICECandidatePoolSize: resp.ICECandidatePoolSize}
	for _, s := range resp.ICEServers {
		server := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			server.Credential = s.Credential
		}
		cfg.ICEServers = append(cfg.ICEServers, server)
	}
	return cfg, nil
}

func (c *Client) OpenChat(ctx context.Context, peer domain.UserID) (domain.UserChat, error) {
	var out domain.UserChat
	err := c.do(ctx, http.MethodPost, "/api/chats", map[string]domain.UserID{"peerId": peer}, &out)
	return out, err
}

func (c *Client) ListChats(ctx context.Context) ([]domain.UserChat, error) {
	var out []domain.UserChat
	err := c.do(ctx, http.MethodGet, "/api/chats", nil, &out)
	return out, err
}

func (c *Client) ListMessages(ctx context.Context, chatID domain.ChatID) ([]domain.Message, error) {
	var out []domain.Message
	err := c.do(ctx, http.MethodGet, "/api/chats/"+url.PathEscape(chatID.String())+"/messages", nil, &out)
	return out, err
}

func (c *Client) SendText(ctx context.Context, chatID domain.ChatID, text string) (domain.Message, error) {
	var out domain.Message
	err := c.do(ctx, http.MethodPost, "/api/chats/"+url.PathEscape(chatID.String())+"/messages", map[string]string{"text": text}, &out)
	return out, err
}

// SendImage uploads image with an optional caption.
func (c *Client) SendImage(ctx context.Context, chatID domain.ChatID, text, filename string, image io.Reader) (domain.Message, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if text != "" {
		if err := mw.WriteField("text", text); err != nil {
			return domain.Message{}, err
		}
	}
	fw, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return domain.Message{}, err
	}
	if _, err := io.Copy(fw, image); err != nil {
		return domain.Message{}, err
	}
	if err := mw.Close(); err != nil {
		return domain.Message{}, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/chats/"+url.PathEscape(chatID.String())+"/messages", &body)
	if err != nil {
		return domain.Message{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var out domain.Message
	return out, c.send(req, &out)
}

func (c *Client) DeleteMessage(ctx context.Context, chatID domain.ChatID, id domain.MessageID) error {
	return c.do(ctx, http.MethodDelete, "/api/chats/"+url.PathEscape(chatID.String())+"/messages/"+id.String(), nil, nil)
}

func (c *Client) StartCall(ctx context.Context, callee domain.UserID) (domain.Call, error) {
	var out domain.Call
	err := c.do(ctx, http.MethodPost, "/api/calls", map[string]domain.UserID{"calleeId": callee}, &out)
	return out, err
}

func (c *Client) IncomingCalls(ctx context.Context) ([]domain.Call, error) {
	var out []domain.Call
	err := c.do(ctx, http.MethodGet, "/api/calls/incoming", nil, &out)
	return out, err
}

func (c *Client) GetCall(ctx context.Context, id domain.CallID) (domain.Call, error) {
	var out domain.Call
	err := c.do(ctx, http.MethodGet, callPath(id, ""), nil, &out)
	return out, err
}

func (c *Client) AcceptCall(ctx context.Context, id domain.CallID) (domain.Call, error) {
	var out domain.Call
	err := c.do(ctx, http.MethodPost, callPath(id, "/accept"), nil, &out)
	return out, err
}

func (c *Client) RejectCall(ctx context.Context, id domain.CallID) (domain.Call, error) {
	var out domain.Call
	err := c.do(ctx, http.MethodPost, callPath(id, "/reject"), nil, &out)
	return out, err
}

func (c *Client) EndCall(ctx context.Context, id domain.CallID) (domain.Call, error) {
	var out domain.Call
	err := c.do(ctx, http.MethodPost, callPath(id, "/end"), nil, &out)
	return out, err
}

func (c *Client) PublishOffer(ctx context.Context, id domain.CallID, offer domain.SessionDescription) (domain.Call, error) {
	var out domain.Call
	err := c.do(ctx, http.MethodPut, callPath(id, "/offer"), offer, &out)
	return out, err
}

func (c *Client) PublishAnswer(ctx context.Context, id domain.CallID, answer domain.SessionDescription, revision int) (domain.Call, error) {
	body := struct {
		domain.SessionDescription
		Revision int `json:"revision"`
	}{answer, revision}
	var out domain.Call
	err := c.do(ctx, http.MethodPut, callPath(id, "/answer"), body, &out)
	return out, err
}

func (c *Client) AddCandidate(ctx context.Context, id domain.CallID, candidate domain.Candidate) (domain.Candidate, error) {
	body := struct {
		Candidate        string  `json:"candidate"`
		SDPMid           *string `json:"sdpMid,omitempty"`
		SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
		UsernameFragment *string `json:"usernameFragment,omitempty"`
	}{candidate.Candidate, candidate.SDPMid, candidate.SDPMLineIndex, candidate.UsernameFragment}
	var out domain.Candidate
	err := c.do(ctx, http.MethodPost, callPath(id, "/candidates"), body, &out)
	return out, err
}

// ListCandidates returns the other participant's candidates with a sequence
// number above after.
func (c *Client) ListCandidates(ctx context.Context, id domain.CallID, after int) ([]domain.Candidate, error) {
	var out []domain.Candidate
	err := c.do(ctx, http.MethodGet, callPath(id, "/candidates?after="+strconv.Itoa(after)), nil, &out)
	return out, err
}

func callPath(id domain.CallID, suffix string) string {
	return "/api/calls/" + url.PathEscape(id.String()) + suffix
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&e)
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

var errNotLoggedIn = errors.New("not logged in")
