// Package callpeer drives one side of a call's WebRTC negotiation from the
// call document pushed by the server.
package callpeer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Wyydra/pairchat/internal/core/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Role int

const (
	RoleCaller Role = iota
	RoleCallee
)

func (r Role) String() string {
	if r == RoleCaller {
		return "caller"
	}
	return "callee"
}

type Status string

const (
	StatusIdle          Status = "idle"
	StatusCreatingCall  Status = "creating-call"
	StatusAnsweringCall Status = "answering-call"
	StatusActive        Status = "active"
	StatusFailed        Status = "failed"
	StatusEnded         Status = "ended"
)

var ErrClosed = errors.New("negotiator closed")

// PeerConnection is the part of *webrtc.PeerConnection the negotiator uses.
type PeerConnection interface {
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	SignalingState() webrtc.SignalingState
	RemoteDescription() *webrtc.SessionDescription
	Close() error
}

// PeerEvents is the callback registration side of *webrtc.PeerConnection.
type PeerEvents interface {
	OnICECandidate(f func(*webrtc.ICECandidate))
	OnNegotiationNeeded(f func())
}

// Signaler writes to the shared call document.
type Signaler interface {
	PublishOffer(ctx context.Context, id domain.CallID, offer domain.SessionDescription) (domain.Call, error)
	PublishAnswer(ctx context.Context, id domain.CallID, answer domain.SessionDescription, revision int) (domain.Call, error)
	AddCandidate(ctx context.Context, id domain.CallID, candidate domain.Candidate) (domain.Candidate, error)
}

type Negotiator struct {
	role   Role
	callID domain.CallID
	self   domain.UserID
	pc     PeerConnection
	sig    Signaler
	log    zerolog.Logger

	mu          sync.Mutex
	status      Status
	negotiating bool
	// pending is set when renegotiation was requested mid-negotiation.
	pending bool
	closed  bool

	offerRevision    int // caller: revision of our latest published offer
	answeredRevision int // caller: latest answer revision claimed for apply
	appliedRevision  int // callee: latest offer revision set as remote
	latest          *domain.Call

	queued []webrtc.ICECandidateInit
	seen   map[int]struct{}

	onStatus func(Status)
}

type Option func(*Negotiator)

// WithStatusHandler registers fn to be called on every status change.
func WithStatusHandler(fn func(Status)) Option {
	return func(n *Negotiator) { n.onStatus = fn }
}

func New(role Role, callID domain.CallID, self domain.UserID, pc PeerConnection, sig Signaler, opts ...Option) *Negotiator {
	n := &Negotiator{
		role:   role,
		callID: callID,
		self:   self,
		pc:     pc,
		sig:    sig,
		status: StatusIdle,
		seen:   make(map[int]struct{}),
		log: log.With().
			Str("call_id", callID.String()).
			Str("role", role.String()).
			Logger(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Negotiator) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status
}

// Start sends the initial offer. It is a no-op for the callee.
func (n *Negotiator) Start(ctx context.Context) error {
	if n.role != RoleCaller {
		return nil
	}
	return n.negotiate(ctx)
}

// OnNegotiationNeeded renegotiates on the caller side. A request made while
// another negotiation is in flight is replayed once that one settles.
func (n *Negotiator) OnNegotiationNeeded(ctx context.Context) error {
	if n.role != RoleCaller {
		return nil
	}
	return n.negotiate(ctx)
}

func (n *Negotiator) negotiate(ctx context.Context) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrClosed
	}
	if n.negotiating || n.pc.SignalingState() != webrtc.SignalingStateStable {
		n.log.Debug().Msg("Negotiation in flight, queuing")
		n.pending = true
		n.mu.Unlock()
		return nil
	}
	n.negotiating = true
	if n.status == StatusIdle {
		n.setStatusLocked(StatusCreatingCall)
	}
	n.mu.Unlock()

	offer, err := n.pc.CreateOffer(nil)
	if err != nil {
		return n.fail(fmt.Errorf("create offer: %w", err))
	}
	if err := n.pc.SetLocalDescription(offer); err != nil {
		return n.fail(fmt.Errorf("set local offer: %w", err))
	}

	call, err := n.sig.PublishOffer(ctx, n.callID, fromWebRTC(offer))
	if err != nil {
		return n.fail(fmt.Errorf("publish offer: %w", err))
	}

	n.mu.Lock()
	n.offerRevision = call.OfferRevision
	latest := n.latest
	n.mu.Unlock()
	n.log.Debug().Int("revision", call.OfferRevision).Msg("Offer published")

	// The answer may have been pushed before the publish returned.
	if latest != nil && latest.AnswerRevision == call.OfferRevision {
		return n.HandleCall(ctx, *latest)
	}
	return nil
}

// HandleCall applies a call document snapshot.
func (n *Negotiator) HandleCall(ctx context.Context, call domain.Call) error {
	if call.ID != n.callID {
		return nil
	}
	if call.Status.Terminal() {
		n.log.Info().Str("status", string(call.Status)).Msg("Call finished")
		return n.Close()
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrClosed
	}
	if n.latest == nil || !call.UpdatedAt.Before(n.latest.UpdatedAt) {
		c := call.Clone()
		n.latest = &c
	}
	n.mu.Unlock()

	if n.role == RoleCaller {
		return n.applyAnswer(ctx, call)
	}
	return n.applyOffer(ctx, call)
}

func (n *Negotiator) applyAnswer(ctx context.Context, call domain.Call) error {
	n.mu.Lock()
	if call.Answer == nil || n.offerRevision == 0 || call.AnswerRevision != n.offerRevision ||
		call.AnswerRevision <= n.answeredRevision ||
		n.pc.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
		n.mu.Unlock()
		return nil
	}
	// Claimed before unlocking: the same snapshot can arrive from the event
	// socket and from the publish path at once.
	n.answeredRevision = call.AnswerRevision
	n.mu.Unlock()

	answer, err := toWebRTC(*call.Answer)
	if err != nil {
		return n.fail(err)
	}
	if err := n.pc.SetRemoteDescription(answer); err != nil {
		return n.fail(fmt.Errorf("set remote answer: %w", err))
	}
	n.log.Debug().Int("revision", call.AnswerRevision).Msg("Answer applied")
	n.flushCandidates()
	return n.settle(ctx)
}

func (n *Negotiator) applyOffer(ctx context.Context, call domain.Call) error {
	n.mu.Lock()
	if call.Offer == nil || call.OfferRevision <= n.appliedRevision || n.negotiating {
		n.mu.Unlock()
		return nil
	}
	if call.Status != domain.CallAccepted && call.Status != domain.CallActive {
		n.mu.Unlock()
		return nil
	}
	n.negotiating = true
	n.appliedRevision = call.OfferRevision
	if n.status == StatusIdle {
		n.setStatusLocked(StatusAnsweringCall)
	}
	n.mu.Unlock()

	offer, err := toWebRTC(*call.Offer)
	if err != nil {
		return n.fail(err)
	}
	if err := n.pc.SetRemoteDescription(offer); err != nil {
		return n.fail(fmt.Errorf("set remote offer: %w", err))
	}
	n.flushCandidates()

	answer, err := n.pc.CreateAnswer(nil)
	if err != nil {
		return n.fail(fmt.Errorf("create answer: %w", err))
	}
	if err := n.pc.SetLocalDescription(answer); err != nil {
		return n.fail(fmt.Errorf("set local answer: %w", err))
	}

	_, err = n.sig.PublishAnswer(ctx, n.callID, fromWebRTC(answer), call.OfferRevision)
	switch {
	case errors.Is(err, domain.ErrStaleOffer), errors.Is(err, domain.ErrAnswerExists):
		// A newer offer is on its way; the next snapshot carries it.
		n.log.Debug().Err(err).Int("revision", call.OfferRevision).Msg("Answer superseded")
	case err != nil:
		return n.fail(fmt.Errorf("publish answer: %w", err))
	}
	return n.settle(ctx)
}

// settle ends the in-flight negotiation and replays whatever arrived
// meanwhile.
func (n *Negotiator) settle(ctx context.Context) error {
	n.mu.Lock()
	n.negotiating = false
	n.setStatusLocked(StatusActive)
	replay := n.pending
	n.pending = false
	latest := n.latest
	applied := n.appliedRevision
	n.mu.Unlock()

	if n.role == RoleCaller && replay {
		n.log.Debug().Msg("Triggering queued renegotiation")
		return n.negotiate(ctx)
	}
	if n.role == RoleCallee && latest != nil && latest.OfferRevision > applied {
		return n.applyOffer(ctx, *latest)
	}
	return nil
}

// HandleCandidate applies a remote candidate, or queues it until a remote
// description is set. Candidates sent by this side are ignored.
func (n *Negotiator) HandleCandidate(c domain.Candidate) error {
	if c.CallID != n.callID || c.From == n.self {
		return nil
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrClosed
	}
	if c.Seq > 0 {
		if _, ok := n.seen[c.Seq]; ok {
			n.mu.Unlock()
			return nil
		}
		n.seen[c.Seq] = struct{}{}
	}
	init := candidateInit(c)
	if n.pc.RemoteDescription() == nil {
		n.queued = append(n.queued, init)
		n.mu.Unlock()
		return nil
	}
	n.mu.Unlock()

	if err := n.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("add candidate: %w", err)
	}
	return nil
}

func (n *Negotiator) flushCandidates() {
	n.mu.Lock()
	queued := n.queued
	n.queued = nil
	n.mu.Unlock()

	for _, c := range queued {
		if err := n.pc.AddICECandidate(c); err != nil {
			n.log.Warn().Err(err).Str("candidate", c.Candidate).Msg("Failed to add queued candidate")
		}
	}
}

// Attach hooks local candidate gathering and, on the caller, renegotiation
// requests to the negotiator. Both callbacks run on the peer connection's
// own goroutines.
func (n *Negotiator) Attach(ctx context.Context, ev PeerEvents) {
	ev.OnICECandidate(func(c *webrtc.ICECandidate) {
		if err := n.PublishLocalCandidate(ctx, c); err != nil {
			n.log.Warn().Err(err).Msg("Failed to publish candidate")
		}
	})
	if n.role != RoleCaller {
		return
	}
	ev.OnNegotiationNeeded(func() {
		if err := n.OnNegotiationNeeded(ctx); err != nil && !errors.Is(err, ErrClosed) {
			n.log.Warn().Err(err).Msg("Renegotiation failed")
		}
	})
}

// PublishLocalCandidate sends a gathered local candidate to the other side.
// Hook it to PeerConnection.OnICECandidate; a nil candidate marks the end of
// gathering and is dropped.
func (n *Negotiator) PublishLocalCandidate(ctx context.Context, c *webrtc.ICECandidate) error {
	if c == nil {
		return nil
	}
	init := c.ToJSON()
	_, err := n.sig.AddCandidate(ctx, n.callID, domain.Candidate{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	})
	return err
}

// HandleConnectionState maps peer connection state changes onto the status.
func (n *Negotiator) HandleConnectionState(state webrtc.PeerConnectionState) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	switch state {
	case webrtc.PeerConnectionStateConnected:
		n.setStatusLocked(StatusActive)
	case webrtc.PeerConnectionStateFailed:
		n.setStatusLocked(StatusFailed)
	}
}

// Close ends the session locally and closes the peer connection.
func (n *Negotiator) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.queued = nil
	n.setStatusLocked(StatusEnded)
	n.mu.Unlock()
	return n.pc.Close()
}

func (n *Negotiator) fail(err error) error {
	n.mu.Lock()
	n.negotiating = false
	if !n.closed {
		n.setStatusLocked(StatusFailed)
	}
	n.mu.Unlock()
	n.log.Error().Err(err).Msg("Negotiation failed")
	return err
}

func (n *Negotiator) setStatusLocked(s Status) {
	if n.status == s {
		return
	}
	n.status = s
	if n.onStatus != nil {
		go n.onStatus(s)
	}
}

func fromWebRTC(desc webrtc.SessionDescription) domain.SessionDescription {
	return domain.SessionDescription{Type: domain.SDPType(desc.Type.String()), SDP: desc.SDP}
}

func toWebRTC(desc domain.SessionDescription) (webrtc.SessionDescription, error) {
	switch desc.Type {
	case domain.SDPOffer:
		return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: desc.SDP}, nil
	case domain.SDPAnswer:
		return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: desc.SDP}, nil
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("%w: type %q", domain.ErrInvalidSDP, desc.Type)
	}
}

func candidateInit(c domain.Candidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}
