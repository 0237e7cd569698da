// Package policy holds the authorization predicates used by the swap engine
// and the slot service.  They are pure: no I/O, no side effects.
package policy

import "github.com/iliyamo/slotswap/internal/model"

// OwnsSlot reports whether actor currently owns s.
func OwnsSlot(actor string, s model.Slot) bool {
	return actor != "" && s.OwnerID == actor
}

// IsSwapTarget reports whether actor is the user who must answer r.
func IsSwapTarget(actor string, r model.SwapRequest) bool {
	return actor != "" && r.TargetUserID == actor
}

// IsSwapParty reports whether actor is either side of r.
func IsSwapParty(actor string, r model.SwapRequest) bool {
	return actor != "" && (r.RequesterID == actor || r.TargetUserID == actor)
}
