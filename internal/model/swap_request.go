package model

import (
	"fmt"
	"time"
)

// SwapStatus is the lifecycle state of a swap request.
type SwapStatus string

const (
	SwapPending  SwapStatus = "PENDING"
	SwapAccepted SwapStatus = "ACCEPTED"
	SwapRejected SwapStatus = "REJECTED"
)

// Valid reports whether s is a known swap status.
func (s SwapStatus) Valid() bool {
	switch s {
	case SwapPending, SwapAccepted, SwapRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s SwapStatus) Terminal() bool {
	switch s {
	case SwapAccepted, SwapRejected:
		return true
	case SwapPending:
		return false
	}
	return false
}

// Resolve returns the status a pending request moves to when the target
// answers.  Accepted and Rejected are terminal.
func (s SwapStatus) Resolve(accept bool) (SwapStatus, error) {
	switch s {
	case SwapPending:
		if accept {
			return SwapAccepted, nil
		}
		return SwapRejected, nil
	case SwapAccepted, SwapRejected:
		return "", fmt.Errorf("%w: request already %s", ErrInvalidTransition, s)
	default:
		return "", fmt.Errorf("unknown swap status %q", s)
	}
}

// SlotEvent returns the event applied to both referenced slots when a
// pending request resolves to s.
func (s SwapStatus) SlotEvent() (SlotEvent, error) {
	switch s {
	case SwapAccepted:
		return SlotEventAccept, nil
	case SwapRejected:
		return SlotEventReject, nil
	case SwapPending:
		return SlotEventPropose, nil
	}
	return 0, fmt.Errorf("unknown swap status %q", s)
}

// SwapRequest pairs a slot offered by the requester with a slot owned by
// the target user.  It mirrors the `swap_requests` table.
//
// TargetUserID is captured from the target slot's owner when the request
// is created; it does not follow later ownership changes.  RespondedAt is
// nil until the request is resolved.
type SwapRequest struct {
	ID              string     `db:"id" json:"id"`
	RequesterID     string     `db:"requester_id" json:"requester_id"`
	RequesterSlotID string     `db:"requester_slot_id" json:"requester_slot_id"`
	TargetUserID    string     `db:"target_user_id" json:"target_user_id"`
	TargetSlotID    string     `db:"target_slot_id" json:"target_slot_id"`
	Status          SwapStatus `db:"status" json:"status"`
	Version         uint32     `db:"version" json:"-"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
	RespondedAt     *time.Time `db:"responded_at" json:"responded_at,omitempty"`
}

// SlotIDs returns the two slots referenced by the request.
func (r SwapRequest) SlotIDs() (requester, target string) {
	return r.RequesterSlotID, r.TargetSlotID
}
