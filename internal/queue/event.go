// Package queue defines the swap event payload exchanged over RabbitMQ and
// the consumer that records those events.
package queue

import "time"

// SwapEventsQueue is the durable queue swap events are published to.
const SwapEventsQueue = "swap.events"

// Swap event types.
const (
	EventSwapProposed = "swap.proposed"
	EventSwapAccepted = "swap.accepted"
	EventSwapRejected = "swap.rejected"
)

// SwapEvent is published after a swap command commits.  It carries
// enough for downstream consumers to log or notify the parties without
// querying the primary database.
type SwapEvent struct {
	Type            string    `json:"type"`
	RequestID       string    `json:"request_id"`
	Status          string    `json:"status"`
	RequesterID     string    `json:"requester_id"`
	RequesterSlotID string    `json:"requester_slot_id"`
	TargetUserID    string    `json:"target_user_id"`
	TargetSlotID    string    `json:"target_slot_id"`
	ActorID         string    `json:"actor_id"`
	OccurredAt      time.Time `json:"occurred_at"`
}
