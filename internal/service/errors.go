package service

import (
	"errors"

	"github.com/iliyamo/slotswap/internal/repository"
)

// Failures returned by the swap engine and the slot service.  Callers
// match them with errors.Is; messages carry the offending ids.
var (
	ErrNotFound         = repository.ErrNotFound
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidState     = errors.New("invalid state")
	ErrSlotNotOfferable = errors.New("slot not offerable")
	ErrAlreadyResolved  = errors.New("swap request already resolved")
	ErrConflict         = repository.ErrConflict
)

// Kind classifies an error for transport mapping and metrics labels.
type Kind int

const (
	KindNone Kind = iota
	KindNotFound
	KindForbidden
	KindInvalidState
	KindSlotNotOfferable
	KindAlreadyResolved
	KindTransactionConflict
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "ok"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindInvalidState:
		return "invalid_state"
	case KindSlotNotOfferable:
		return "slot_not_offerable"
	case KindAlreadyResolved:
		return "already_resolved"
	case KindTransactionConflict:
		return "transaction_conflict"
	case KindInternal:
		return "internal"
	}
	return "internal"
}

// Retryable reports whether the identical command may succeed if resent.
func (k Kind) Retryable() bool { return k == KindTransactionConflict }

// KindOf classifies err.  Unknown errors are KindInternal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrInvalidState), errors.Is(err, repository.ErrInvalidRange):
		return KindInvalidState
	case errors.Is(err, ErrSlotNotOfferable):
		return KindSlotNotOfferable
	case errors.Is(err, ErrAlreadyResolved):
		return KindAlreadyResolved
	case errors.Is(err, ErrConflict):
		return KindTransactionConflict
	}
	return KindInternal
}
