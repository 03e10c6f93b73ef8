package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/Wyydra/pairchat/internal/core/domain"
)

type callRecord struct {
	call       domain.Call
	candidates []domain.Candidate
}

// CallRepository serializes every write to a call under one lock, which
// is what makes Update safe against concurrent signaling writers.
type CallRepository struct {
	mu    sync.Mutex
	calls map[domain.CallID]*callRecord
}

func NewCallRepository() *CallRepository {
	return &CallRepository{
		calls: make(map[domain.CallID]*callRecord),
	}
}

func (r *CallRepository) Create(ctx context.Context, call domain.Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.calls[call.ID]; ok {
		return domain.ErrCallBusy
	}
	r.calls[call.ID] = &callRecord{call: call.Clone()}
	return nil
}

func (r *CallRepository) Get(ctx context.Context, id domain.CallID) (domain.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.calls[id]
	if !ok {
		return domain.Call{}, domain.ErrNotFound
	}
	return rec.call.Clone(), nil
}

// Update applies fn to a copy of the call and stores it only if fn
// succeeds.
func (r *CallRepository) Update(ctx context.Context, id domain.CallID, fn func(*domain.Call) error) (domain.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.calls[id]
	if !ok {
		return domain.Call{}, domain.ErrNotFound
	}
	next := rec.call.Clone()
	if err := fn(&next); err != nil {
		return domain.Call{}, err
	}
	rec.call = next
	return next.Clone(), nil
}

func (r *CallRepository) ListByUser(ctx context.Context, userID domain.UserID) ([]domain.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Call
	for _, rec := range r.calls {
		if rec.call.IsParticipant(userID) {
			out = append(out, rec.call.Clone())
		}
	}
	return out, nil
}

// AddCandidate appends c unless the call is already over. The status check
// and the append share the lock with Update.
func (r *CallRepository) AddCandidate(ctx context.Context, c domain.Candidate) (domain.Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.calls[c.CallID]
	if !ok {
		return domain.Candidate{}, domain.ErrNotFound
	}
	if rec.call.Status.Terminal() {
		return domain.Candidate{}, fmt.Errorf("%w: %s", domain.ErrCallEnded, rec.call.Status)
	}
	c.Seq = len(rec.candidates) + 1
	rec.candidates = append(rec.candidates, c)
	return c, nil
}

func (r *CallRepository) ListCandidates(ctx context.Context, id domain.CallID, after int) ([]domain.Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.calls[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if after < 0 {
		after = 0
	}
	if after >= len(rec.candidates) {
		return []domain.Candidate{}, nil
	}
	out := make([]domain.Candidate, len(rec.candidates)-after)
	copy(out, rec.candidates[after:])
	return out, nil
}
