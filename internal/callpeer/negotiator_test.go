package callpeer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Wyydra/pairchat/internal/core/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePC struct {
	mu         sync.Mutex
	state      webrtc.SignalingState
	remote     *webrtc.SessionDescription
	offers     int
	candidates []webrtc.ICECandidateInit
	closed     bool
}

func newFakePC() *fakePC {
	return &fakePC{state: webrtc.SignalingStateStable}
}

func (p *fakePC) CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("offer-%d", p.offers)}, nil
}

func (p *fakePC) CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != webrtc.SignalingStateHaveRemoteOffer {
		return webrtc.SessionDescription{}, errors.New("no remote offer")
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-to-" + p.remote.SDP}, nil
}

func (p *fakePC) SetLocalDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch desc.Type {
	case webrtc.SDPTypeOffer:
		p.state = webrtc.SignalingStateHaveLocalOffer
	case webrtc.SDPTypeAnswer:
		p.state = webrtc.SignalingStateStable
	}
	return nil
}

func (p *fakePC) SetRemoteDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case desc.Type == webrtc.SDPTypeAnswer && p.state == webrtc.SignalingStateHaveLocalOffer:
		p.state = webrtc.SignalingStateStable
	case desc.Type == webrtc.SDPTypeOffer && p.state == webrtc.SignalingStateStable:
		p.state = webrtc.SignalingStateHaveRemoteOffer
	default:
		return fmt.Errorf("cannot set remote %s in %s", desc.Type, p.state)
	}
	p.remote = &desc
	return nil
}

func (p *fakePC) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remote == nil {
		return errors.New("remote description not set")
	}
	p.candidates = append(p.candidates, c)
	return nil
}

func (p *fakePC) SignalingState() webrtc.SignalingState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *fakePC) RemoteDescription() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote
}

func (p *fakePC) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// slowRemotePC widens the window between the negotiator's checks and the
// remote description actually landing.
type slowRemotePC struct {
	*fakePC
	delay time.Duration
}

func (p *slowRemotePC) SetRemoteDescription(desc webrtc.SessionDescription) error {
	time.Sleep(p.delay)
	return p.fakePC.SetRemoteDescription(desc)
}

// fakeSignaler plays the server: it keeps the call document and enforces
// the offer revision rules.
type fakeSignaler struct {
	mu         sync.Mutex
	call       domain.Call
	answers    []int
	candidates []domain.Candidate
}

func (s *fakeSignaler) PublishOffer(ctx context.Context, id domain.CallID, offer domain.SessionDescription) (domain.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.call.SetOffer(offer, time.Now()); err != nil {
		return domain.Call{}, err
	}
	return s.call.Clone(), nil
}

func (s *fakeSignaler) PublishAnswer(ctx context.Context, id domain.CallID, answer domain.SessionDescription, revision int) (domain.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.call.SetAnswer(answer, revision, time.Now()); err != nil {
		return domain.Call{}, err
	}
	s.answers = append(s.answers, revision)
	return s.call.Clone(), nil
}

func (s *fakeSignaler) AddCandidate(ctx context.Context, id domain.CallID, c domain.Candidate) (domain.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Seq = len(s.candidates) + 1
	s.candidates = append(s.candidates, c)
	return c, nil
}

func (s *fakeSignaler) snapshot() domain.Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.call.Clone()
}

func (s *fakeSignaler) answer(t *testing.T, revision int) domain.Call {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NoError(t, s.call.SetAnswer(domain.SessionDescription{Type: domain.SDPAnswer, SDP: "remote-answer"}, revision, time.Now()))
	return s.call.Clone()
}

func newCall(t *testing.T) (domain.Call, domain.UserID, domain.UserID) {
	t.Helper()
	caller, callee := domain.NewUserID(), domain.NewUserID()
	call, err := domain.NewCall(caller, callee, time.Now())
	require.NoError(t, err)
	require.NoError(t, call.Transition(domain.CallAccepted, time.Now()))
	return *call, caller, callee
}

func TestCallerOfferAnswer(t *testing.T) {
	ctx := context.Background()
	call, caller, _ := newCall(t)
	pc, sig := newFakePC(), &fakeSignaler{call: call}
	n := New(RoleCaller, call.ID, caller, pc, sig)

	require.NoError(t, n.Start(ctx))
	assert.Equal(t, StatusCreatingCall, n.Status())
	assert.Equal(t, webrtc.SignalingStateHaveLocalOffer, pc.SignalingState())
	assert.Equal(t, 1, sig.snapshot().OfferRevision)

	require.NoError(t, n.HandleCall(ctx, sig.answer(t, 1)))
	assert.Equal(t, webrtc.SignalingStateStable, pc.SignalingState())
	assert.Equal(t, StatusActive, n.Status())

	// Re-delivering the same snapshot does nothing.
	require.NoError(t, n.HandleCall(ctx, sig.snapshot()))
	assert.Equal(t, webrtc.SignalingStateStable, pc.SignalingState())
}

func TestCallerAppliesConcurrentDuplicateAnswerOnce(t *testing.T) {
	ctx := context.Background()
	call, caller, _ := newCall(t)
	pc := &slowRemotePC{fakePC: newFakePC(), delay: 20 * time.Millisecond}
	sig := &fakeSignaler{call: call}
	n := New(RoleCaller, call.ID, caller, pc, sig)

	require.NoError(t, n.Start(ctx))
	snap := sig.answer(t, 1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = n.HandleCall(ctx, snap)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, webrtc.SignalingStateStable, pc.SignalingState())
	assert.Equal(t, StatusActive, n.Status())
}

func TestCallerIgnoresAnswerForOldOffer(t *testing.T) {
	ctx := context.Background()
	call, caller, _ := newCall(t)
	pc, sig := newFakePC(), &fakeSignaler{call: call}
	n := New(RoleCaller, call.ID, caller, pc, sig)

	require.NoError(t, n.Start(ctx))
	stale := sig.answer(t, 1)

	// Pretend the caller already moved on to revision 2.
	n.mu.Lock()
	n.offerRevision = 2
	n.mu.Unlock()

	require.NoError(t, n.HandleCall(ctx, stale))
	assert.Equal(t, webrtc.SignalingStateHaveLocalOffer, pc.SignalingState())
	assert.Nil(t, pc.RemoteDescription())
}

func TestRenegotiationDuringNegotiationIsReplayed(t *testing.T) {
	ctx := context.Background()
	call, caller, _ := newCall(t)
	pc, sig := newFakePC(), &fakeSignaler{call: call}
	n := New(RoleCaller, call.ID, caller, pc, sig)

	require.NoError(t, n.Start(ctx))
	require.NoError(t, n.OnNegotiationNeeded(ctx))
	assert.Equal(t, 1, sig.snapshot().OfferRevision, "second offer must wait")

	require.NoError(t, n.HandleCall(ctx, sig.answer(t, 1)))

	got := sig.snapshot()
	assert.Equal(t, 2, got.OfferRevision)
	assert.Nil(t, got.Answer)
	assert.Equal(t, webrtc.SignalingStateHaveLocalOffer, pc.SignalingState())

	require.NoError(t, n.HandleCall(ctx, sig.answer(t, 2)))
	assert.Equal(t, webrtc.SignalingStateStable, pc.SignalingState())
}

func TestCalleeAnswersEachOfferOnce(t *testing.T) {
	ctx := context.Background()
	call, _, callee := newCall(t)
	pc, sig := newFakePC(), &fakeSignaler{call: call}
	n := New(RoleCallee, call.ID, callee, pc, sig)

	require.NoError(t, n.Start(ctx))
	assert.Equal(t, StatusIdle, n.Status())

	_, err := sig.PublishOffer(ctx, call.ID, domain.SessionDescription{Type: domain.SDPOffer, SDP: "offer-1"})
	require.NoError(t, err)

	snap := sig.snapshot()
	require.NoError(t, n.HandleCall(ctx, snap))
	require.NoError(t, n.HandleCall(ctx, snap))

	assert.Equal(t, []int{1}, sig.answers)
	assert.Equal(t, domain.CallActive, sig.snapshot().Status)
	assert.Equal(t, StatusActive, n.Status())
	assert.Equal(t, "offer-1", pc.RemoteDescription().SDP)
}

func TestCalleeWaitsForAccept(t *testing.T) {
	ctx := context.Background()
	caller, callee := domain.NewUserID(), domain.NewUserID()
	call, err := domain.NewCall(caller, callee, time.Now())
	require.NoError(t, err)
	_, err = call.SetOffer(domain.SessionDescription{Type: domain.SDPOffer, SDP: "offer-1"}, time.Now())
	require.NoError(t, err)

	pc := newFakePC()
	n := New(RoleCallee, call.ID, callee, pc, &fakeSignaler{call: *call})

	require.NoError(t, n.HandleCall(ctx, *call))
	assert.Nil(t, pc.RemoteDescription())
}

func TestCandidatesQueuedUntilRemoteDescription(t *testing.T) {
	ctx := context.Background()
	call, caller, callee := newCall(t)
	pc, sig := newFakePC(), &fakeSignaler{call: call}
	n := New(RoleCaller, call.ID, caller, pc, sig)

	require.NoError(t, n.Start(ctx))

	mid := "0"
	require.NoError(t, n.HandleCandidate(domain.Candidate{CallID: call.ID, Seq: 1, From: callee, Candidate: "candidate:1", SDPMid: &mid}))
	require.NoError(t, n.HandleCandidate(domain.Candidate{CallID: call.ID, Seq: 2, From: callee, Candidate: "candidate:2", SDPMid: &mid}))
	require.NoError(t, n.HandleCandidate(domain.Candidate{CallID: call.ID, Seq: 3, From: caller, Candidate: "candidate:own"}))
	assert.Empty(t, pc.candidates)

	require.NoError(t, n.HandleCall(ctx, sig.answer(t, 1)))
	require.Len(t, pc.candidates, 2)
	assert.Equal(t, "candidate:1", pc.candidates[0].Candidate)
	assert.Equal(t, "candidate:2", pc.candidates[1].Candidate)

	// Duplicate delivery over a second channel.
	require.NoError(t, n.HandleCandidate(domain.Candidate{CallID: call.ID, Seq: 2, From: callee, Candidate: "candidate:2"}))
	require.NoError(t, n.HandleCandidate(domain.Candidate{CallID: call.ID, Seq: 4, From: callee, Candidate: "candidate:4"}))
	require.Len(t, pc.candidates, 3)
	assert.Equal(t, "candidate:4", pc.candidates[2].Candidate)
}

func TestTerminalStatusClosesSession(t *testing.T) {
	ctx := context.Background()
	call, caller, callee := newCall(t)
	pc := newFakePC()

	statuses := make(chan Status, 4)
	n := New(RoleCaller, call.ID, caller, pc, &fakeSignaler{call: call}, WithStatusHandler(func(s Status) { statuses <- s }))

	require.NoError(t, call.Transition(domain.CallEnded, time.Now()))
	require.NoError(t, n.HandleCall(ctx, call))

	assert.True(t, pc.closed)
	assert.Equal(t, StatusEnded, n.Status())
	assert.ErrorIs(t, n.Start(ctx), ErrClosed)
	assert.ErrorIs(t, n.HandleCandidate(domain.Candidate{CallID: call.ID, From: callee}), ErrClosed)

	select {
	case s := <-statuses:
		assert.Equal(t, StatusEnded, s)
	case <-time.After(time.Second):
		t.Fatal("no status notification")
	}
}

func TestConnectionFailure(t *testing.T) {
	call, caller, _ := newCall(t)
	n := New(RoleCaller, call.ID, caller, newFakePC(), &fakeSignaler{call: call})

	n.HandleConnectionState(webrtc.PeerConnectionStateConnected)
	assert.Equal(t, StatusActive, n.Status())
	n.HandleConnectionState(webrtc.PeerConnectionStateFailed)
	assert.Equal(t, StatusFailed, n.Status())
}

type fakeEvents struct {
	onCandidate   func(*webrtc.ICECandidate)
	onNegotiation func()
}

func (e *fakeEvents) OnICECandidate(f func(*webrtc.ICECandidate)) { e.onCandidate = f }
func (e *fakeEvents) OnNegotiationNeeded(f func()) { e.onNegotiation = f }

func TestAttachWiresRenegotiationOnCaller(t *testing.T) {
	ctx := context.Background()
	call, caller, _ := newCall(t)
	pc, sig := newFakePC(), &fakeSignaler{call: call}
	n := New(RoleCaller, call.ID, caller, pc, sig)

	ev := &fakeEvents{}
	n.Attach(ctx, ev)
	require.NotNil(t, ev.onCandidate)
	require.NotNil(t, ev.onNegotiation)

	require.NoError(t, n.Start(ctx))
	answered := sig.answer(t, 1)

	// Renegotiation requested from another goroutine while the answer is
	// being applied, the way pion fires it.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		ev.onNegotiation()
	}()
	go func() {
		defer wg.Done()
		assert.NoError(t, n.HandleCall(ctx, answered))
	}()
	wg.Wait()

	require.Eventually(t, func() bool { return sig.snapshot().OfferRevision == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, n.HandleCall(ctx, sig.answer(t, 2)))
	assert.Equal(t, webrtc.SignalingStateStable, pc.SignalingState())
	assert.Equal(t, StatusActive, n.Status())

	ev.onCandidate(nil)
	assert.Empty(t, sig.candidates)
}

func TestAttachLeavesRenegotiationToCaller(t *testing.T) {
	call, _, callee := newCall(t)
	n := New(RoleCallee, call.ID, callee, newFakePC(), &fakeSignaler{call: call})

	ev := &fakeEvents{}
	n.Attach(context.Background(), ev)
	assert.NotNil(t, ev.onCandidate)
	assert.Nil(t, ev.onNegotiation)
}
