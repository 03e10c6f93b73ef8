package domain

import (
	"fmt"
	"time"
)

type CallStatus string

const (
	CallPending  CallStatus = "pending"
	CallAccepted CallStatus = "accepted"
	CallRejected CallStatus = "rejected"
	CallActive   CallStatus = "active"
	CallEnded    CallStatus = "ended"
	CallMissed   CallStatus = "missed"
)

var callTransitions = map[CallStatus][]CallStatus{
	CallPending:  {CallAccepted, CallRejected, CallEnded, CallMissed},
	CallAccepted: {CallActive, CallEnded},
	CallActive:   {CallEnded},
}

func (s CallStatus) Terminal() bool {
	return s == CallRejected || s == CallEnded || s == CallMissed
}

func (s CallStatus) CanTransition(to CallStatus) bool {
	for _, next := range callTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type SDPType string

const (
	SDPOffer  SDPType = "offer"
	SDPAnswer SDPType = "answer"
)

type SessionDescription struct {
	Type SDPType `json:"type"`
	SDP  string  `json:"sdp"`
}

// Call is the shared signaling document both participants write to.
// OfferRevision counts published offers; an answer is only valid for the
// revision it was created from.
type Call struct {
	ID             CallID              `json:"id"`
	CallerID       UserID              `json:"callerId"`
	CalleeID       UserID              `json:"calleeId"`
	Status         CallStatus          `json:"status"`
	Offer          *SessionDescription `json:"offer,omitempty"`
	OfferRevision  int                 `json:"offerRevision"`
	Answer         *SessionDescription `json:"answer,omitempty"`
	AnswerRevision int                 `json:"answerRevision"`
	CreatedAt      time.Time           `json:"createdAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`
	EndedAt        *time.Time          `json:"endedAt,omitempty"`
}

func NewCall(caller, callee UserID, now time.Time) (*Call, error) {
	if caller == callee {
		return nil, ErrSelfChat
	}
	return &Call{
		ID:        NewCallID(caller, callee, now),
		CallerID:  caller,
		CalleeID:  callee,
		Status:    CallPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (c Call) IsParticipant(id UserID) bool {
	return c.CallerID == id || c.CalleeID == id
}

// Other returns the participant on the other end from id.
func (c Call) Other(id UserID) UserID {
	if c.CallerID == id {
		return c.CalleeID
	}
	return c.CallerID
}

func (c *Call) Transition(to CallStatus, now time.Time) error {
	if c.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrCallEnded, c.Status)
	}
	if !c.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, to)
	}
	c.Status = to
	c.UpdatedAt = now
	if to.Terminal() {
		c.EndedAt = &now
	}
	return nil
}

// SetOffer records a new offer and drops the answer to the previous one.
func (c *Call) SetOffer(offer SessionDescription, now time.Time) (int, error) {
	if c.Status.Terminal() {
		return 0, fmt.Errorf("%w: %s", ErrCallEnded, c.Status)
	}
	if offer.Type != SDPOffer {
		return 0, fmt.Errorf("%w: type %q", ErrInvalidSDP, offer.Type)
	}
	c.OfferRevision++
	c.Offer = &offer
	c.Answer = nil
	c.AnswerRevision = 0
	c.UpdatedAt = now
	return c.OfferRevision, nil
}

func (c *Call) SetAnswer(answer SessionDescription, revision int, now time.Time) error {
	if c.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrCallEnded, c.Status)
	}
	if answer.Type != SDPAnswer {
		return fmt.Errorf("%w: type %q", ErrInvalidSDP, answer.Type)
	}
	if c.Status != CallAccepted && c.Status != CallActive {
		return fmt.Errorf("%w: cannot answer a %s call", ErrInvalidTransition, c.Status)
	}
	if c.Offer == nil {
		return ErrNoOffer
	}
	if revision != c.OfferRevision {
		return fmt.Errorf("%w: got %d, current %d", ErrStaleOffer, revision, c.OfferRevision)
	}
	if c.Answer != nil {
		return ErrAnswerExists
	}
	c.Answer = &answer
	c.AnswerRevision = revision
	c.Status = CallActive
	c.UpdatedAt = now
	return nil
}

type Candidate struct {
	CallID           CallID    `json:"callId"`
	Seq              int       `json:"seq"`
	From             UserID    `json:"from"`
	Candidate        string    `json:"candidate"`
	SDPMid           *string   `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16   `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string   `json:"usernameFragment,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Clone returns a copy that shares no pointers with c.
func (c Call) Clone() Call {
	out := c
	if c.Offer != nil {
		offer := *c.Offer
		out.Offer = &offer
	}
	if c.Answer != nil {
		answer := *c.Answer
		out.Answer = &answer
	}
	if c.EndedAt != nil {
		endedAt := *c.EndedAt
		out.EndedAt = &endedAt
	}
	return out
}
