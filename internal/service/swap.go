package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/slotswap/internal/metrics"
	"github.com/iliyamo/slotswap/internal/model"
	"github.com/iliyamo/slotswap/internal/policy"
	"github.com/iliyamo/slotswap/internal/queue"
	"github.com/iliyamo/slotswap/internal/repository"
)

const notifyTimeout = 3 * time.Second

// SwapService is the swap negotiation engine.  It keeps no state between
// calls; every command is one read-validate-write transaction against the
// store and is safe to run concurrently.
//
// Conflicts are never retried here.  A command that fails with
// ErrConflict wrote nothing and may be resent by the caller.
type SwapService struct {
	store    repository.Store
	notifier Notifier
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// NewSwapService wires the engine.  notifier, m and log may be nil.
func NewSwapService(store repository.Store, notifier Notifier, m *metrics.Metrics, log *zap.Logger) *SwapService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SwapService{store: store, notifier: notifier, metrics: m, log: log}
}

// ProposeSwap offers the actor's slot in exchange for targetSlotID.  Both
// slots must be Offered; on success both are Locked and a Pending request
// addressed to the target slot's current owner is returned.
func (s *SwapService) ProposeSwap(ctx context.Context, actorID, offeredSlotID, targetSlotID string) (model.SwapRequest, error) {
	var req model.SwapRequest
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		slots, err := tx.Slots().Lock(ctx, offeredSlotID, targetSlotID)
		if err != nil {
			return err
		}
		offered, target := slots[0], slots[1]

		if !policy.OwnsSlot(actorID, offered) {
			return fmt.Errorf("slot %s: %w: only the owner can offer it", offered.ID, ErrForbidden)
		}
		if offeredSlotID == targetSlotID {
			return fmt.Errorf("%w: cannot swap a slot with itself", ErrInvalidState)
		}
		if policy.OwnsSlot(actorID, target) {
			return fmt.Errorf("%w: target slot %s is already yours", ErrInvalidState, target.ID)
		}
		for _, sl := range slots {
			if sl.Status != model.SlotOffered {
				return fmt.Errorf("slot %s is %s: %w", sl.ID, sl.Status, ErrSlotNotOfferable)
			}
		}

		req = model.SwapRequest{
			RequesterID:     actorID,
			RequesterSlotID: offered.ID,
			TargetUserID:    target.OwnerID,
			TargetSlotID:    target.ID,
		}
		if err := tx.Swaps().Create(ctx, &req); err != nil {
			return err
		}
		for i := range slots {
			if err := transition(ctx, tx, &slots[i], model.SlotEventPropose); err != nil {
				return err
			}
		}
		return nil
	})
	s.finish(ctx, "propose", actorID, req, err, queue.EventSwapProposed)
	if err != nil {
		return model.SwapRequest{}, err
	}
	return req, nil
}

// RespondToSwap resolves a pending request.  Only the target user may
// answer.  Accepting exchanges the owners of both slots and returns them
// to Held; rejecting returns both to Offered with owners unchanged.
func (s *SwapService) RespondToSwap(ctx context.Context, actorID, requestID string, accept bool) (model.SwapRequest, error) {
	var req model.SwapRequest
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		req, err = tx.Swaps().Lock(ctx, requestID)
		if err != nil {
			return err
		}
		if !policy.IsSwapTarget(actorID, req) {
			return fmt.Errorf("swap request %s: %w: only the target user can respond", req.ID, ErrForbidden)
		}
		if req.Status != model.SwapPending {
			return fmt.Errorf("swap request %s is %s: %w", req.ID, req.Status, ErrAlreadyResolved)
		}

		next, err := req.Status.Resolve(accept)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrAlreadyResolved, err)
		}
		ev, err := next.SlotEvent()
		if err != nil {
			return err
		}

		slots, err := tx.Slots().Lock(ctx, req.RequesterSlotID, req.TargetSlotID)
		if err != nil {
			return err
		}
		requesterSlot, targetSlot := &slots[0], &slots[1]

		if err := tx.Swaps().SetStatus(ctx, &req, next); err != nil {
			return err
		}
		if accept {
			if err := tx.Slots().SetOwner(ctx, requesterSlot, req.TargetUserID); err != nil {
				return err
			}
			if err := tx.Slots().SetOwner(ctx, targetSlot, req.RequesterID); err != nil {
				return err
			}
		}
		for i := range slots {
			if err := transition(ctx, tx, &slots[i], ev); err != nil {
				return err
			}
		}
		return nil
	})

	command, evType := "reject", queue.EventSwapRejected
	if accept {
		command, evType = "accept", queue.EventSwapAccepted
	}
	s.finish(ctx, command, actorID, req, err, evType)
	if err != nil {
		return model.SwapRequest{}, err
	}
	return req, nil
}

// GetSwapRequest returns a request visible to the actor, i.e. one where
// the actor is the requester or the target.
func (s *SwapService) GetSwapRequest(ctx context.Context, actorID, requestID string) (model.SwapRequest, error) {
	var req model.SwapRequest
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		req, err = tx.Swaps().Get(ctx, requestID)
		return err
	})
	if err != nil {
		return model.SwapRequest{}, err
	}
	if !policy.IsSwapParty(actorID, req) {
		return model.SwapRequest{}, fmt.Errorf("swap request %s: %w", requestID, ErrForbidden)
	}
	return req, nil
}

// ListIncoming returns requests addressed to the user, newest first.
func (s *SwapService) ListIncoming(ctx context.Context, userID string) ([]model.SwapRequest, error) {
	var out []model.SwapRequest
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.Swaps().ListByTarget(ctx, userID)
		return err
	})
	return out, err
}

// ListOutgoing returns requests made by the user, newest first.
func (s *SwapService) ListOutgoing(ctx context.Context, userID string) ([]model.SwapRequest, error) {
	var out []model.SwapRequest
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.Swaps().ListByRequester(ctx, userID)
		return err
	})
	return out, err
}

// transition moves sl along the slot state machine and persists it.
func transition(ctx context.Context, tx repository.Tx, sl *model.Slot, ev model.SlotEvent) error {
	next, err := sl.Status.Next(ev)
	if err != nil {
		// A Locked slot not matching its pending request means the store
		// was modified outside the engine.
		return fmt.Errorf("slot %s: %w", sl.ID, err)
	}
	return tx.Slots().SetStatus(ctx, sl, next)
}

// finish records the outcome of a command and, if it committed, notifies.
func (s *SwapService) finish(ctx context.Context, command, actorID string, req model.SwapRequest, err error, evType string) {
	kind := KindOf(err)
	s.metrics.ObserveSwapCommand(command, kind.String())

	if err != nil {
		fields := []zap.Field{
			zap.String("command", command),
			zap.String("actor_id", actorID),
			zap.String("kind", kind.String()),
			zap.Error(err),
		}
		if kind == KindInternal {
			s.log.Error("swap command failed", fields...)
		} else {
			s.log.Info("swap command refused", fields...)
		}
		return
	}

	s.log.Info("swap command committed",
		zap.String("command", command),
		zap.String("actor_id", actorID),
		zap.String("request_id", req.ID),
		zap.String("requester_slot_id", req.RequesterSlotID),
		zap.String("target_slot_id", req.TargetSlotID),
		zap.String("status", string(req.Status)),
	)

	ev := queue.SwapEvent{
		Type:            evType,
		RequestID:       req.ID,
		Status:          string(req.Status),
		RequesterID:     req.RequesterID,
		RequesterSlotID: req.RequesterSlotID,
		TargetUserID:    req.TargetUserID,
		TargetSlotID:    req.TargetSlotID,
		ActorID:         actorID,
		OccurredAt:      req.UpdatedAt,
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if nerr := s.notifier.Notify(nctx, ev); nerr != nil {
		s.metrics.PublishFailed()
		s.log.Warn("swap event not published",
			zap.String("request_id", req.ID),
			zap.String("type", evType),
			zap.Error(nerr),
		)
	}
}
