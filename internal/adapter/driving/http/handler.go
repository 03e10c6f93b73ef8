package http

import (
	"net/http"
	"time"

	"github.com/Wyydra/pairchat/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/pairchat/internal/config"
	"github.com/Wyydra/pairchat/internal/core/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pion/webrtc/v4"
)

type Handler struct {
	AuthService *service.AuthService
	ChatService *service.ChatService
	CallService *service.CallService
	Hub         *ws.Hub

	staticDir      string
	mediaDir       string
	maxUploadBytes int64
	iceServers     []webrtc.ICEServer
	icePoolSize    uint8
	wsConfig       config.WebSocketConfig
}

func NewHandler(authService *service.AuthService, chatService *service.ChatService, callService *service.CallService, hub *ws.Hub, cfg config.Config) *Handler {
	return &Handler{
		AuthService:    authService,
		ChatService:    chatService,
		CallService:    callService,
		Hub:            hub,
		staticDir:      cfg.StaticDir,
		mediaDir:       cfg.MediaDir,
		maxUploadBytes: cfg.MaxUploadBytes,
		iceServers:     cfg.ICEServers,
		icePoolSize:    cfg.ICECandidatePoolSize,
		wsConfig:       cfg.WebSocket,
	}
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ws", h.ServeWS)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Post("/auth/register", h.register)
		r.Post("/auth/login", h.login)

		r.Group(func(r chi.Router) {
			r.Use(h.requireUser)

			r.Get("/me", h.me)
			r.Get("/users", h.searchUsers)
			r.Get("/users/{userID}/presence", h.presence)
			r.Get("/ice-servers", h.iceServerList)

			r.Get("/chats", h.listChats)
			r.Post("/chats", h.openChat)
			r.Get("/chats/{chatID}/messages", h.listMessages)
			r.Post("/chats/{chatID}/messages", h.sendMessage)
			r.Delete("/chats/{chatID}/messages/{messageID}", h.deleteMessage)

			r.Post("/calls", h.startCall)
			r.Get("/calls/incoming", h.incomingCalls)
			r.Get("/calls/{callID}", h.getCall)
			r.Post("/calls/{callID}/accept", h.acceptCall)
			r.Post("/calls/{callID}/reject", h.rejectCall)
			r.Post("/calls/{callID}/end", h.endCall)
			r.Put("/calls/{callID}/offer", h.publishOffer)
			r.Put("/calls/{callID}/answer", h.publishAnswer)
			r.Post("/calls/{callID}/candidates", h.addCandidate)
			r.Get("/calls/{callID}/candidates", h.listCandidates)
		})
	})

	if h.mediaDir != "" {
		r.Handle("/media/*", http.StripPrefix("/media/", http.FileServer(http.Dir(h.mediaDir))))
	}
	if h.staticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(h.staticDir)))
	}

	return r
}
