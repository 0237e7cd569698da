package repository

import (
	"context"
	"sort"

	"github.com/iliyamo/slotswap/internal/model"
)

// SlotStore reads and writes event slots inside a transaction.
//
// Every mutating method is conditional on the Version carried by the slot
// value the caller read earlier in the same transaction.  On success the
// value is updated in place (new Version, UpdatedAt and the changed
// field); when the row moved on the method returns ErrConflict.
type SlotStore interface {
	// Create stores a new slot.  ID, Version and timestamps are assigned by
	// the store; an empty Status defaults to SlotHeld.
	Create(ctx context.Context, s *model.Slot) error
	Get(ctx context.Context, id string) (model.Slot, error)
	// Lock loads the given slots for update, acquiring row locks in
	// ascending id order.  Results are returned in argument order.
	Lock(ctx context.Context, ids ...string) ([]model.Slot, error)
	ListByOwner(ctx context.Context, ownerID string) ([]model.Slot, error)
	ListOffered(ctx context.Context, excludingOwner string) ([]model.Slot, error)
	SetStatus(ctx context.Context, s *model.Slot, status model.SlotStatus) error
	SetOwner(ctx context.Context, s *model.Slot, ownerID string) error
	Delete(ctx context.Context, s model.Slot) error
}

// SwapStore reads and writes swap requests inside a transaction.
type SwapStore interface {
	// Create stores a new request in SwapPending status.
	Create(ctx context.Context, r *model.SwapRequest) error
	Get(ctx context.Context, id string) (model.SwapRequest, error)
	Lock(ctx context.Context, id string) (model.SwapRequest, error)
	ListByTarget(ctx context.Context, userID string) ([]model.SwapRequest, error)
	ListByRequester(ctx context.Context, userID string) ([]model.SwapRequest, error)
	// SetStatus resolves a pending request and stamps RespondedAt.  It
	// fails with ErrConflict if the request is no longer pending at the
	// version the caller read.
	SetStatus(ctx context.Context, r *model.SwapRequest, status model.SwapStatus) error
}

// Tx exposes both stores bound to one transaction.
type Tx interface {
	Slots() SlotStore
	Swaps() SwapStore
}

// Store runs fn inside a single atomic transaction.  If fn returns an error
// or the commit fails, every write made through tx is discarded.  Commit
// failures caused by concurrent writers are reported as ErrConflict.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// LockOrder returns the distinct ids in ascending order.  Both store
// implementations acquire slot locks in this order so that two commands
// touching the same pair of slots cannot deadlock each other.
func LockOrder(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
