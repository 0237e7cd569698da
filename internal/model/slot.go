package model

import (
	"errors"
	"fmt"
	"time"
)

// SlotStatus is the availability state of an event slot.  The stored
// values match the names used by the public API.
type SlotStatus string

const (
	// SlotHeld means the owner keeps the slot; it cannot be proposed.
	SlotHeld SlotStatus = "BUSY"
	// SlotOffered means the owner is willing to swap the slot away.
	SlotOffered SlotStatus = "SWAPPABLE"
	// SlotLocked means the slot is committed to exactly one pending swap.
	SlotLocked SlotStatus = "SWAP_PENDING"
)

// SlotEvent names a transition of the slot state machine.
type SlotEvent int

const (
	SlotEventOffer    SlotEvent = iota // owner marks a held slot swappable
	SlotEventWithdraw                  // owner takes an offered slot back
	SlotEventPropose                   // slot becomes part of a new swap request
	SlotEventAccept                    // the swap holding the slot was accepted
	SlotEventReject                    // the swap holding the slot was rejected
)

func (e SlotEvent) String() string {
	switch e {
	case SlotEventOffer:
		return "offer"
	case SlotEventWithdraw:
		return "withdraw"
	case SlotEventPropose:
		return "propose"
	case SlotEventAccept:
		return "accept"
	case SlotEventReject:
		return "reject"
	}
	return fmt.Sprintf("SlotEvent(%d)", int(e))
}

// ErrInvalidTransition is returned when a status change is not part of the
// state machine.
var ErrInvalidTransition = errors.New("invalid status transition")

// ParseSlotStatus converts an API/database value into a SlotStatus.
func ParseSlotStatus(s string) (SlotStatus, error) {
	st := SlotStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown slot status %q", s)
	}
	return st, nil
}

// Valid reports whether s is one of the three known statuses.
func (s SlotStatus) Valid() bool {
	switch s {
	case SlotHeld, SlotOffered, SlotLocked:
		return true
	}
	return false
}

// Next returns the status reached from s on event e.
//
//	Held    --offer-->    Offered
//	Offered --withdraw--> Held
//	Offered --propose-->  Locked
//	Locked  --accept-->   Held
//	Locked  --reject-->   Offered
func (s SlotStatus) Next(e SlotEvent) (SlotStatus, error) {
	switch s {
	case SlotHeld:
		if e == SlotEventOffer {
			return SlotOffered, nil
		}
	case SlotOffered:
		switch e {
		case SlotEventWithdraw:
			return SlotHeld, nil
		case SlotEventPropose:
			return SlotLocked, nil
		}
	case SlotLocked:
		switch e {
		case SlotEventAccept:
			return SlotHeld, nil
		case SlotEventReject:
			return SlotOffered, nil
		}
	default:
		return "", fmt.Errorf("unknown slot status %q", s)
	}
	return "", fmt.Errorf("%w: %s on %s slot", ErrInvalidTransition, e, s)
}

// Deletable reports whether a slot in status s may be removed by its owner.
func (s SlotStatus) Deletable() bool {
	switch s {
	case SlotHeld, SlotOffered:
		return true
	case SlotLocked:
		return false
	}
	return false
}

// Slot is a time-bounded resource owned by exactly one user.  It
// corresponds to a row in the `event_slots` table.
//
// Fields:
//
//	ID        – UUID primary key.
//	Title     – human readable label.
//	StartTime – start instant (UTC), strictly before EndTime.
//	EndTime   – end instant (UTC).
//	OwnerID   – id of the user currently holding the slot.
//	Status    – BUSY, SWAPPABLE or SWAP_PENDING.
//	Version   – optimistic concurrency counter, bumped on every write.
//	CreatedAt – creation timestamp.
//	UpdatedAt – last modification timestamp.
type Slot struct {
	ID        string     `db:"id" json:"id"`
	Title     string     `db:"title" json:"title"`
	StartTime time.Time  `db:"start_time" json:"start_time"`
	EndTime   time.Time  `db:"end_time" json:"end_time"`
	OwnerID   string     `db:"owner_id" json:"owner_id"`
	Status    SlotStatus `db:"status" json:"status"`
	Version   uint32     `db:"version" json:"-"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}
