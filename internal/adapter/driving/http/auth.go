package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Wyydra/pairchat/internal/core/domain"
	"github.com/go-chi/chi/v5"
)

type ctxKey struct{}

func userFrom(ctx context.Context) domain.UserID {
	id, _ := ctx.Value(ctxKey{}).(domain.UserID)
	return id
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	if h := r.Header.Get("Authorization"); len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return r.URL.Query().Get("token")
}

func (h *Handler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, r, errors.Join(domain.ErrInvalidCredentials, errors.New("missing token")))
			return
		}
		userID, err := h.AuthService.Authenticate(token)
		if err != nil {
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, userID)))
	})
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  userPayload `json:"user"`
}

type userPayload struct {
	ID          domain.UserID `json:"uid"`
	Email       string        `json:"email"`
	DisplayName string        `json:"displayName"`
	PhotoURL    string        `json:"photoURL,omitempty"`
}

func toUserPayload(u domain.User) userPayload {
	return userPayload{ID: u.ID, Email: u.Email, DisplayName: u.DisplayName, PhotoURL: u.PhotoURL}
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	user, token, err := h.AuthService.Register(r.Context(), req.Email, req.Password, req.DisplayName, req.PhotoURL)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: toUserPayload(user)})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	user, token, err := h.AuthService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: toUserPayload(user)})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	user, err := h.AuthService.Me(r.Context(), userFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserPayload(user))
}

func (h *Handler) searchUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.AuthService.SearchUsers(r.Context(), userFrom(r.Context()), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

type presencePayload struct {
	ID          domain.UserID `json:"uid"`
	Online      bool          `json:"online"`
	Connections int           `json:"connections"`
}

// presence reports whether a user has a live event socket, so a caller can
// tell a ringing call will be pushed right away.
func (h *Handler) presence(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.AuthService.Me(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	n := h.Hub.Connections(id)
	writeJSON(w, http.StatusOK, presencePayload{ID: id, Online: n > 0, Connections: n})
}

type iceServersResponse struct {
	ICEServers           []iceServerPayload `json:"iceServers"`
	ICECandidatePoolSize uint8              `json:"iceCandidatePoolSize"`
}

type iceServerPayload struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential any      `json:"credential,omitempty"`
}

func (h *Handler) iceServerList(w http.ResponseWriter, r *http.Request) {
	resp := iceServersResponse{
		ICEServers:           make([]iceServerPayload, 0, len(h.iceServers)),
		ICECandidatePoolSize: h.icePoolSize,
	}
	for _, s := range h.iceServers {
		resp.ICEServers = append(resp.ICEServers, iceServerPayload{URLs: s.URLs, Username: s.Username, Credential: s.Credential})
	}
	writeJSON(w, http.StatusOK, resp)
}
