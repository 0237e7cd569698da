// Package memory provides an in-process implementation of
// repository.Store, used by the service and handler tests.
//
// Transactions are optimistic: each one works on a private set of staged
// writes and remembers the version of every row it read or wrote.  Commit
// takes the store lock, checks that none of those rows changed since, and
// then applies the staged writes.  A transaction that lost the race fails
// with repository.ErrConflict and leaves no trace.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/slotswap/internal/model"
	"github.com/iliyamo/slotswap/internal/repository"
)

// Store is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	slots map[string]model.Slot
	swaps map[string]model.SwapRequest

	// Now returns the timestamp stamped on writes.  Tests may override it.
	Now func() time.Time
}

func New() *Store {
	return &Store{
		slots: make(map[string]model.Slot),
		swaps: make(map[string]model.SwapRequest),
		Now:   func() time.Time { return time.Now().UTC() },
	}
}

// InTx implements repository.Store.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := &txn{
		store:     s,
		slotReads: make(map[string]uint32),
		swapReads: make(map[string]uint32),
		slots:     make(map[string]*model.Slot),
		swaps:     make(map[string]*model.SwapRequest),
	}
	if err := fn(ctx, t); err != nil {
		return err
	}
	return t.commit()
}

// txn holds the staged state of one transaction.  A nil entry in slots
// marks a deletion.  The read maps record the committed version a row had
// when this transaction first saw it; zero means the row did not exist.
type txn struct {
	store *Store

	slotReads map[string]uint32
	swapReads map[string]uint32
	slots     map[string]*model.Slot
	swaps     map[string]*model.SwapRequest
}

func (t *txn) Slots() repository.SlotStore { return slotStore{t} }
func (t *txn) Swaps() repository.SwapStore { return swapStore{t} }

func (t *txn) commit() error {
	if len(t.slots) == 0 && len(t.swaps) == 0 {
		return nil
	}
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, v := range t.slotReads {
		if s.slots[id].Version != v {
			return fmt.Errorf("commit: slot %s changed: %w", id, repository.ErrConflict)
		}
	}
	for id, v := range t.swapReads {
		if s.swaps[id].Version != v {
			return fmt.Errorf("commit: swap request %s changed: %w", id, repository.ErrConflict)
		}
	}
	for id, sl := range t.slots {
		if sl == nil {
			delete(s.slots, id)
			continue
		}
		s.slots[id] = *sl
	}
	for id, r := range t.swaps {
		s.swaps[id] = *r
	}
	return nil
}

// slot returns this transaction's view of a slot and records the read.
func (t *txn) slot(id string) (model.Slot, bool) {
	if sl, ok := t.slots[id]; ok {
		if sl == nil {
			return model.Slot{}, false
		}
		return *sl, true
	}
	t.store.mu.RLock()
	sl, ok := t.store.slots[id]
	t.store.mu.RUnlock()
	if _, seen := t.slotReads[id]; !seen {
		t.slotReads[id] = sl.Version
	}
	return sl, ok
}

func (t *txn) swap(id string) (model.SwapRequest, bool) {
	if r, ok := t.swaps[id]; ok {
		return *r, true
	}
	t.store.mu.RLock()
	r, ok := t.store.swaps[id]
	t.store.mu.RUnlock()
	if _, seen := t.swapReads[id]; !seen {
		t.swapReads[id] = r.Version
	}
	return r, ok
}

// slotView merges committed slots with this transaction's staged writes.
func (t *txn) slotView() []model.Slot {
	t.store.mu.RLock()
	out := make([]model.Slot, 0, len(t.store.slots)+len(t.slots))
	for id, sl := range t.store.slots {
		if _, staged := t.slots[id]; !staged {
			out = append(out, sl)
		}
	}
	t.store.mu.RUnlock()
	for _, sl := range t.slots {
		if sl != nil {
			out = append(out, *sl)
		}
	}
	return out
}

func (t *txn) swapView() []model.SwapRequest {
	t.store.mu.RLock()
	out := make([]model.SwapRequest, 0, len(t.store.swaps)+len(t.swaps))
	for id, r := range t.store.swaps {
		if _, staged := t.swaps[id]; !staged {
			out = append(out, r)
		}
	}
	t.store.mu.RUnlock()
	for _, r := range t.swaps {
		out = append(out, *r)
	}
	return out
}

type slotStore struct{ t *txn }

func (s slotStore) Create(_ context.Context, sl *model.Slot) error {
	if !sl.StartTime.Before(sl.EndTime) {
		return repository.ErrInvalidRange
	}
	if sl.Status == "" {
		sl.Status = model.SlotHeld
	}
	if !sl.Status.Valid() {
		return fmt.Errorf("create slot: unknown status %q", sl.Status)
	}
	now := s.t.store.Now()
	sl.ID = uuid.NewString()
	sl.StartTime, sl.EndTime = sl.StartTime.UTC(), sl.EndTime.UTC()
	sl.Version = 1
	sl.CreatedAt, sl.UpdatedAt = now, now

	s.t.slotReads[sl.ID] = 0
	cp := *sl
	s.t.slots[sl.ID] = &cp
	return nil
}

func (s slotStore) Get(_ context.Context, id string) (model.Slot, error) {
	sl, ok := s.t.slot(id)
	if !ok {
		return model.Slot{}, fmt.Errorf("slot %s: %w", id, repository.ErrNotFound)
	}
	return sl, nil
}

func (s slotStore) Lock(ctx context.Context, ids ...string) ([]model.Slot, error) {
	locked := make(map[string]model.Slot, len(ids))
	for _, id := range repository.LockOrder(ids) {
		sl, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		locked[id] = sl
	}
	out := make([]model.Slot, len(ids))
	for i, id := range ids {
		out[i] = locked[id]
	}
	return out, nil
}

func (s slotStore) ListByOwner(_ context.Context, ownerID string) ([]model.Slot, error) {
	out := []model.Slot{}
	for _, sl := range s.t.slotView() {
		if sl.OwnerID == ownerID {
			out = append(out, sl)
		}
	}
	sortSlots(out)
	return out, nil
}

func (s slotStore) ListOffered(_ context.Context, excludingOwner string) ([]model.Slot, error) {
	out := []model.Slot{}
	for _, sl := range s.t.slotView() {
		if sl.Status == model.SlotOffered && sl.OwnerID != excludingOwner {
			out = append(out, sl)
		}
	}
	sortSlots(out)
	return out, nil
}

func sortSlots(slots []model.Slot) {
	sort.Slice(slots, func(i, j int) bool {
		if !slots[i].StartTime.Equal(slots[j].StartTime) {
			return slots[i].StartTime.Before(slots[j].StartTime)
		}
		return slots[i].ID < slots[j].ID
	})
}

// stage checks the caller's version against this transaction's view and
// returns a copy ready to be modified.
func (s slotStore) stage(op string, sl *model.Slot) (*model.Slot, error) {
	cur, ok := s.t.slot(sl.ID)
	if !ok || cur.Version != sl.Version {
		return nil, fmt.Errorf("%s: %w", op, repository.ErrConflict)
	}
	cur.Version++
	cur.UpdatedAt = s.t.store.Now()
	return &cur, nil
}

func (s slotStore) SetStatus(_ context.Context, sl *model.Slot, status model.SlotStatus) error {
	if !status.Valid() {
		return fmt.Errorf("set slot status: unknown status %q", status)
	}
	next, err := s.stage("set slot status", sl)
	if err != nil {
		return err
	}
	next.Status = status
	s.t.slots[sl.ID] = next
	*sl = *next
	return nil
}

func (s slotStore) SetOwner(_ context.Context, sl *model.Slot, ownerID string) error {
	next, err := s.stage("set slot owner", sl)
	if err != nil {
		return err
	}
	next.OwnerID = ownerID
	s.t.slots[sl.ID] = next
	*sl = *next
	return nil
}

func (s slotStore) Delete(_ context.Context, sl model.Slot) error {
	if _, err := s.stage("delete slot", &sl); err != nil {
		return err
	}
	s.t.slots[sl.ID] = nil
	return nil
}

type swapStore struct{ t *txn }

func (s swapStore) Create(_ context.Context, r *model.SwapRequest) error {
	now := s.t.store.Now()
	r.ID = uuid.NewString()
	r.Status = model.SwapPending
	r.Version = 1
	r.CreatedAt, r.UpdatedAt = now, now
	r.RespondedAt = nil

	s.t.swapReads[r.ID] = 0
	cp := *r
	s.t.swaps[r.ID] = &cp
	return nil
}

func (s swapStore) Get(_ context.Context, id string) (model.SwapRequest, error) {
	r, ok := s.t.swap(id)
	if !ok {
		return model.SwapRequest{}, fmt.Errorf("swap request %s: %w", id, repository.ErrNotFound)
	}
	return r, nil
}

func (s swapStore) Lock(ctx context.Context, id string) (model.SwapRequest, error) {
	return s.Get(ctx, id)
}

func (s swapStore) ListByTarget(_ context.Context, userID string) ([]model.SwapRequest, error) {
	return s.filter(func(r model.SwapRequest) bool { return r.TargetUserID == userID }), nil
}

func (s swapStore) ListByRequester(_ context.Context, userID string) ([]model.SwapRequest, error) {
	return s.filter(func(r model.SwapRequest) bool { return r.RequesterID == userID }), nil
}

func (s swapStore) filter(keep func(model.SwapRequest) bool) []model.SwapRequest {
	out := []model.SwapRequest{}
	for _, r := range s.t.swapView() {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (s swapStore) SetStatus(_ context.Context, r *model.SwapRequest, status model.SwapStatus) error {
	if !status.Terminal() {
		return fmt.Errorf("set swap status: %q is not a resolution", status)
	}
	cur, ok := s.t.swap(r.ID)
	if !ok || cur.Version != r.Version || cur.Status != model.SwapPending {
		return fmt.Errorf("set swap status: %w", repository.ErrConflict)
	}
	now := s.t.store.Now()
	cur.Status = status
	cur.Version++
	cur.UpdatedAt = now
	cur.RespondedAt = &now
	s.t.swaps[r.ID] = &cur
	*r = cur
	return nil
}
