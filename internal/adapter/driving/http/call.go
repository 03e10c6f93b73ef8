package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Wyydra/pairchat/internal/core/domain"
	"github.com/go-chi/chi/v5"
)

type startCallRequest struct {
	CalleeID domain.UserID `json:"calleeId"`
}

type answerRequest struct {
	domain.SessionDescription
	Revision int `json:"revision"`
}

type candidateRequest struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

func callID(r *http.Request) domain.CallID {
	return domain.CallID(chi.URLParam(r, "callID"))
}

func (h *Handler) startCall(w http.ResponseWriter, r *http.Request) {
	var req startCallRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	call, err := h.CallService.StartCall(r.Context(), userFrom(r.Context()), req.CalleeID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, call)
}

func (h *Handler) incomingCalls(w http.ResponseWriter, r *http.Request) {
	calls, err := h.CallService.IncomingCalls(r.Context(), userFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, calls)
}

func (h *Handler) getCall(w http.ResponseWriter, r *http.Request) {
	call, err := h.CallService.GetCall(r.Context(), userFrom(r.Context()), callID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

func (h *Handler) acceptCall(w http.ResponseWriter, r *http.Request) {
	call, err := h.CallService.AcceptCall(r.Context(), userFrom(r.Context()), callID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

func (h *Handler) rejectCall(w http.ResponseWriter, r *http.Request) {
	call, err := h.CallService.RejectCall(r.Context(), userFrom(r.Context()), callID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

func (h *Handler) endCall(w http.ResponseWriter, r *http.Request) {
	call, err := h.CallService.EndCall(r.Context(), userFrom(r.Context()), callID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

func (h *Handler) publishOffer(w http.ResponseWriter, r *http.Request) {
	var offer domain.SessionDescription
	if err := decodeJSON(r, &offer); err != nil {
		writeError(w, r, err)
		return
	}
	call, err := h.CallService.PublishOffer(r.Context(), userFrom(r.Context()), callID(r), offer)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

func (h *Handler) publishAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	call, err := h.CallService.PublishAnswer(r.Context(), userFrom(r.Context()), callID(r), req.SessionDescription, req.Revision)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

func (h *Handler) addCandidate(w http.ResponseWriter, r *http.Request) {
	var req candidateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Candidate == "" {
		writeError(w, r, errors.Join(errBadRequest, errors.New("empty candidate")))
		return
	}
	stored, err := h.CallService.AddCandidate(r.Context(), userFrom(r.Context()), callID(r), req.toDomain())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (h *Handler) listCandidates(w http.ResponseWriter, r *http.Request) {
	after := 0
	if raw := r.URL.Query().Get("after"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, r, errors.Join(errBadRequest, errors.New("invalid after")))
			return
		}
		after = n
	}
	candidates, err := h.CallService.ListCandidates(r.Context(), userFrom(r.Context()), callID(r), after)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, candidates)
}

func (c candidateRequest) toDomain() domain.Candidate {
	return domain.Candidate{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}
