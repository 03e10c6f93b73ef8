package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Wyydra/pairchat/internal/core/domain"
	"github.com/Wyydra/pairchat/internal/core/service"
	"github.com/go-chi/chi/v5"
)

type openChatRequest struct {
	PeerID domain.UserID `json:"peerId"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

func (h *Handler) listChats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.ChatService.ListChats(r.Context(), userFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

func (h *Handler) openChat(w http.ResponseWriter, r *http.Request) {
	var req openChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	chat, err := h.ChatService.OpenChat(r.Context(), userFrom(r.Context()), req.PeerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	chatID := domain.ChatID(chi.URLParam(r, "chatID"))
	messages, err := h.ChatService.ListMessages(r.Context(), userFrom(r.Context()), chatID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// sendMessage accepts either a JSON body or a multipart form with an optional
// "image" file next to the "text" field.
func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	chatID := domain.ChatID(chi.URLParam(r, "chatID"))

	var (
		text       string
		attachment *service.Attachment
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+maxJSONBody)
		if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
			writeError(w, r, errors.Join(errBadRequest, err))
			return
		}
		defer r.MultipartForm.RemoveAll()

		text = r.FormValue("text")
		file, header, err := r.FormFile("image")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			writeError(w, r, errors.Join(errBadRequest, err))
			return
		default:
			defer file.Close()
			if header.Size > h.maxUploadBytes {
				writeError(w, r, fmt.Errorf("%w: image larger than %d bytes", errBadRequest, h.maxUploadBytes))
				return
			}
			attachment = &service.Attachment{Body: file}
		}
	} else {
		var req sendMessageRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		text = req.Text
	}

	msg, err := h.ChatService.SendMessage(r.Context(), userFrom(r.Context()), chatID, text, attachment)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *Handler) deleteMessage(w http.ResponseWriter, r *http.Request) {
	chatID := domain.ChatID(chi.URLParam(r, "chatID"))
	messageID, err := domain.ParseMessageID(chi.URLParam(r, "messageID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.ChatService.DeleteMessage(r.Context(), userFrom(r.Context()), chatID, messageID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
