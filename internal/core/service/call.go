package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/pairchat/internal/core/domain"
	"github.com/Wyydra/pairchat/internal/core/port"
	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
)

const DefaultRingTimeout = 45 * time.Second

var errNoChange = errors.New("no change")

type CallOption func(*CallService)

func WithClock(clk clock.Clock) CallOption {
	return func(s *CallService) { s.clock = clk }
}

// WithRingTimeout sets how long a call may stay pending before it is marked
// missed. Zero disables the timeout.
func WithRingTimeout(d time.Duration) CallOption {
	return func(s *CallService) { s.ringTimeout = d }
}

// CallService owns the call document lifecycle. Peers never talk to each
// other directly; every offer, answer and candidate is written here and
// pushed to the other participant.
type CallService struct {
	users   port.UserRepository
	chats   port.ChatRepository
	calls   port.CallRepository
	sdp     port.SDPValidator
	gateway port.RealTimeGateway

	clock       clock.Clock
	ringTimeout time.Duration

	// startMu makes the busy check and the insert of StartCall one step.
	startMu sync.Mutex

	mu    sync.Mutex
	rings map[domain.CallID]*clock.Timer
}

func NewCallService(users port.UserRepository, chats port.ChatRepository, calls port.CallRepository, sdp port.SDPValidator, gateway port.RealTimeGateway, opts ...CallOption) *CallService {
	s := &CallService{
		users:       users,
		chats:       chats,
		calls:       calls,
		sdp:         sdp,
		gateway:     gateway,
		clock:       clock.New(),
		ringTimeout: DefaultRingTimeout,
		rings:       make(map[domain.CallID]*clock.Timer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CallService) StartCall(ctx context.Context, callerID, calleeID domain.UserID) (domain.Call, error) {
	if callerID == calleeID {
		return domain.Call{}, domain.ErrSelfChat
	}
	if _, err := s.users.Get(ctx, calleeID); err != nil {
		return domain.Call{}, fmt.Errorf("callee: %w", err)
	}
	if _, err := s.chats.Get(ctx, domain.ChatIDFor(callerID, calleeID)); err != nil {
		return domain.Call{}, fmt.Errorf("chat with callee: %w", err)
	}

	s.startMu.Lock()
	defer s.startMu.Unlock()

	for _, id := range []domain.UserID{callerID, calleeID} {
		busy, err := s.hasOpenCall(ctx, id)
		if err != nil {
			return domain.Call{}, err
		}
		if busy {
			return domain.Call{}, domain.ErrCallBusy
		}
	}

	call, err := domain.NewCall(callerID, calleeID, s.clock.Now())
	if err != nil {
		return domain.Call{}, err
	}
	if err := s.calls.Create(ctx, *call); err != nil {
		return domain.Call{}, err
	}

	log.Info().
		Str("call_id", call.ID.String()).
		Str("caller_id", callerID.String()).
		Str("callee_id", calleeID.String()).
		Msg("Call created")

	s.scheduleRing(call.ID)
	s.publish(ctx, *call)
	return *call, nil
}

func (s *CallService) AcceptCall(ctx context.Context, userID domain.UserID, id domain.CallID) (domain.Call, error) {
	return s.mutate(ctx, userID, id, func(c *domain.Call) error {
		if c.CalleeID != userID {
			return fmt.Errorf("%w: only the callee can accept", domain.ErrForbidden)
		}
		return c.Transition(domain.CallAccepted, s.clock.Now())
	})
}

func (s *CallService) RejectCall(ctx context.Context, userID domain.UserID, id domain.CallID) (domain.Call, error) {
	return s.mutate(ctx, userID, id, func(c *domain.Call) error {
		if c.CalleeID != userID {
			return fmt.Errorf("%w: only the callee can reject", domain.ErrForbidden)
		}
		return c.Transition(domain.CallRejected, s.clock.Now())
	})
}

// EndCall hangs up. Ending a call that is already over returns it unchanged.
func (s *CallService) EndCall(ctx context.Context, userID domain.UserID, id domain.CallID) (domain.Call, error) {
	call, err := s.mutate(ctx, userID, id, func(c *domain.Call) error {
		if c.Status.Terminal() {
			return errNoChange
		}
		return c.Transition(domain.CallEnded, s.clock.Now())
	})
	if errors.Is(err, errNoChange) {
		return s.GetCall(ctx, userID, id)
	}
	return call, err
}

// PublishOffer stores a new offer from the caller. The returned call carries
// the offer revision the callee has to answer.
func (s *CallService) PublishOffer(ctx context.Context, userID domain.UserID, id domain.CallID, offer domain.SessionDescription) (domain.Call, error) {
	if err := s.sdp.Validate(offer); err != nil {
		return domain.Call{}, err
	}
	return s.mutate(ctx, userID, id, func(c *domain.Call) error {
		if c.CallerID != userID {
			return fmt.Errorf("%w: only the caller sends offers", domain.ErrForbidden)
		}
		_, err := c.SetOffer(offer, s.clock.Now())
		return err
	})
}

func (s *CallService) PublishAnswer(ctx context.Context, userID domain.UserID, id domain.CallID, answer domain.SessionDescription, revision int) (domain.Call, error) {
	if err := s.sdp.Validate(answer); err != nil {
		return domain.Call{}, err
	}
	return s.mutate(ctx, userID, id, func(c *domain.Call) error {
		if c.CalleeID != userID {
			return fmt.Errorf("%w: only the callee sends answers", domain.ErrForbidden)
		}
		return c.SetAnswer(answer, revision, s.clock.Now())
	})
}

// AddCandidate stores a local ICE candidate of userID and forwards it to
// the other participant.
func (s *CallService) AddCandidate(ctx context.Context, userID domain.UserID, id domain.CallID, candidate domain.Candidate) (domain.Candidate, error) {
	call, err := s.GetCall(ctx, userID, id)
	if err != nil {
		return domain.Candidate{}, err
	}
	if call.Status.Terminal() {
		return domain.Candidate{}, fmt.Errorf("%w: %s", domain.ErrCallEnded, call.Status)
	}

	candidate.CallID = id
	candidate.From = userID
	candidate.CreatedAt = s.clock.Now()
	stored, err := s.calls.AddCandidate(ctx, candidate)
	if err != nil {
		return domain.Candidate{}, err
	}

	s.send(ctx, call.Other(userID), domain.Event{Type: domain.EventCallCandidate, Payload: stored})
	return stored, nil
}

// ListCandidates returns the other participant's candidates after seq.
func (s *CallService) ListCandidates(ctx context.Context, userID domain.UserID, id domain.CallID, after int) ([]domain.Candidate, error) {
	if _, err := s.GetCall(ctx, userID, id); err != nil {
		return nil, err
	}
	all, err := s.calls.ListCandidates(ctx, id, after)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Candidate, 0, len(all))
	for _, c := range all {
		if c.From != userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *CallService) GetCall(ctx context.Context, userID domain.UserID, id domain.CallID) (domain.Call, error) {
	call, err := s.calls.Get(ctx, id)
	if err != nil {
		return domain.Call{}, err
	}
	if !call.IsParticipant(userID) {
		return domain.Call{}, fmt.Errorf("%w: not a participant", domain.ErrForbidden)
	}
	return call, nil
}

// IncomingCalls lists calls ringing for userID.
func (s *CallService) IncomingCalls(ctx context.Context, userID domain.UserID) ([]domain.Call, error) {
	calls, err := s.calls.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Call, 0, len(calls))
	for _, c := range calls {
		if c.CalleeID == userID && c.Status == domain.CallPending {
			out = append(out, c)
		}
	}
	return out, nil
}

// Close stops pending ring timers.
func (s *CallService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.rings {
		t.Stop()
		delete(s.rings, id)
	}
}

func (s *CallService) mutate(ctx context.Context, userID domain.UserID, id domain.CallID, fn func(*domain.Call) error) (domain.Call, error) {
	call, err := s.calls.Update(ctx, id, func(c *domain.Call) error {
		if !c.IsParticipant(userID) {
			return fmt.Errorf("%w: not a participant", domain.ErrForbidden)
		}
		return fn(c)
	})
	if err != nil {
		return domain.Call{}, err
	}

	if call.Status != domain.CallPending {
		s.stopRing(call.ID)
	}
	log.Debug().
		Str("call_id", call.ID.String()).
		Str("user_id", userID.String()).
		Str("status", string(call.Status)).
		Int("offer_revision", call.OfferRevision).
		Msg("Call updated")

	s.publish(ctx, call)
	return call, nil
}

func (s *CallService) hasOpenCall(ctx context.Context, userID domain.UserID) (bool, error) {
	calls, err := s.calls.ListByUser(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, c := range calls {
		if !c.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (s *CallService) scheduleRing(id domain.CallID) {
	if s.ringTimeout <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rings[id] = s.clock.AfterFunc(s.ringTimeout, func() { s.ringExpired(id) })
}

func (s *CallService) stopRing(id domain.CallID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.rings[id]; ok {
		t.Stop()
		delete(s.rings, id)
	}
}

func (s *CallService) ringExpired(id domain.CallID) {
	s.mu.Lock()
	delete(s.rings, id)
	s.mu.Unlock()

	ctx := context.Background()
	call, err := s.calls.Update(ctx, id, func(c *domain.Call) error {
		if c.Status != domain.CallPending {
			return errNoChange
		}
		return c.Transition(domain.CallMissed, s.clock.Now())
	})
	if errors.Is(err, errNoChange) {
		return
	}
	if err != nil {
		log.Error().Err(err).Str("call_id", id.String()).Msg("failed to expire ringing call")
		return
	}
	log.Info().Str("call_id", id.String()).Msg("Call missed")
	s.publish(ctx, call)
}

func (s *CallService) publish(ctx context.Context, call domain.Call) {
	event := domain.Event{Type: domain.EventCallUpdated, Payload: call}
	s.send(ctx, call.CallerID, event)
	s.send(ctx, call.CalleeID, event)
}

func (s *CallService) send(ctx context.Context, userID domain.UserID, event domain.Event) {
	if err := s.gateway.SendToUser(ctx, userID, event); err != nil {
		log.Error().Err(err).
			Str("user_id", userID.String()).
			Str("event", string(event.Type)).
			Msg("failed to send signal to gateway")
	}
}
