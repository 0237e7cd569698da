package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/slotswap/internal/metrics"
	"github.com/iliyamo/slotswap/internal/model"
	"github.com/iliyamo/slotswap/internal/policy"
	"github.com/iliyamo/slotswap/internal/repository"
)

// SlotService covers the slot operations that do not involve a swap:
// creating, listing, toggling between Held and Offered, and deleting.
type SlotService struct {
	store   repository.Store
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewSlotService(store repository.Store, m *metrics.Metrics, log *zap.Logger) *SlotService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SlotService{store: store, metrics: m, log: log}
}

// NewSlot is the input to CreateSlot.  An empty Status means Held.
type NewSlot struct {
	Title     string
	StartTime time.Time
	EndTime   time.Time
	Status    model.SlotStatus
}

// CreateSlot stores a slot owned by ownerID.  Only Held and Offered are
// accepted as initial status.
func (s *SlotService) CreateSlot(ctx context.Context, ownerID string, in NewSlot) (model.Slot, error) {
	sl := model.Slot{
		Title:     strings.TrimSpace(in.Title),
		StartTime: in.StartTime,
		EndTime:   in.EndTime,
		OwnerID:   ownerID,
		Status:    in.Status,
	}
	err := s.validateNew(sl)
	if err == nil {
		err = s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			return tx.Slots().Create(ctx, &sl)
		})
	}
	s.observe("create", ownerID, sl.ID, err)
	if err != nil {
		return model.Slot{}, err
	}
	return sl, nil
}

func (s *SlotService) validateNew(sl model.Slot) error {
	if sl.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidState)
	}
	if sl.StartTime.IsZero() || sl.EndTime.IsZero() {
		return fmt.Errorf("%w: start_time and end_time are required", ErrInvalidState)
	}
	if !sl.StartTime.Before(sl.EndTime) {
		return fmt.Errorf("%w: %v", ErrInvalidState, repository.ErrInvalidRange)
	}
	switch sl.Status {
	case "", model.SlotHeld, model.SlotOffered:
		return nil
	case model.SlotLocked:
		return fmt.Errorf("%w: a slot cannot be created %s", ErrInvalidState, sl.Status)
	}
	return fmt.Errorf("%w: unknown status %q", ErrInvalidState, sl.Status)
}

// ListMySlots returns the owner's slots ordered by start time.
func (s *SlotService) ListMySlots(ctx context.Context, ownerID string) ([]model.Slot, error) {
	var out []model.Slot
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.Slots().ListByOwner(ctx, ownerID)
		return err
	})
	return out, err
}

// ListOfferedSlots returns every Offered slot not owned by the caller.
func (s *SlotService) ListOfferedSlots(ctx context.Context, excludingOwner string) ([]model.Slot, error) {
	var out []model.Slot
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.Slots().ListOffered(ctx, excludingOwner)
		return err
	})
	return out, err
}

// UpdateSlotStatus is the owner's manual toggle between Held and Offered.
// Slots locked in a pending swap can only change through the engine.
func (s *SlotService) UpdateSlotStatus(ctx context.Context, actorID, slotID string, status model.SlotStatus) (model.Slot, error) {
	var sl model.Slot
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		locked, err := tx.Slots().Lock(ctx, slotID)
		if err != nil {
			return err
		}
		sl = locked[0]
		if !policy.OwnsSlot(actorID, sl) {
			return fmt.Errorf("slot %s: %w: only the owner can change it", sl.ID, ErrForbidden)
		}

		var ev model.SlotEvent
		switch status {
		case model.SlotOffered:
			ev = model.SlotEventOffer
		case model.SlotHeld:
			ev = model.SlotEventWithdraw
		case model.SlotLocked:
			return fmt.Errorf("%w: %s is only set by a swap proposal", ErrInvalidState, status)
		default:
			return fmt.Errorf("%w: unknown status %q", ErrInvalidState, status)
		}
		if sl.Status == status {
			return nil
		}
		next, err := sl.Status.Next(ev)
		if err != nil {
			return fmt.Errorf("slot %s: %w: %v", sl.ID, ErrInvalidState, err)
		}
		return tx.Slots().SetStatus(ctx, &sl, next)
	})
	s.observe("update_status", actorID, slotID, err)
	if err != nil {
		return model.Slot{}, err
	}
	return sl, nil
}

// DeleteSlot removes a slot owned by the actor.  Locked slots cannot be
// deleted because a pending request still references them.
func (s *SlotService) DeleteSlot(ctx context.Context, actorID, slotID string) error {
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		locked, err := tx.Slots().Lock(ctx, slotID)
		if err != nil {
			return err
		}
		sl := locked[0]
		if !policy.OwnsSlot(actorID, sl) {
			return fmt.Errorf("slot %s: %w: only the owner can delete it", sl.ID, ErrForbidden)
		}
		if !sl.Status.Deletable() {
			return fmt.Errorf("%w: slot %s is %s", ErrInvalidState, sl.ID, sl.Status)
		}
		return tx.Slots().Delete(ctx, sl)
	})
	s.observe("delete", actorID, slotID, err)
	return err
}

func (s *SlotService) observe(command, actorID, slotID string, err error) {
	kind := KindOf(err)
	s.metrics.ObserveSlotCommand(command, kind.String())
	switch kind {
	case KindNone:
		s.log.Debug("slot command committed",
			zap.String("command", command), zap.String("actor_id", actorID), zap.String("slot_id", slotID))
	case KindInternal:
		s.log.Error("slot command failed",
			zap.String("command", command), zap.String("actor_id", actorID), zap.String("slot_id", slotID), zap.Error(err))
	default:
		s.log.Info("slot command refused",
			zap.String("command", command), zap.String("actor_id", actorID), zap.String("slot_id", slotID),
			zap.String("kind", kind.String()), zap.Error(err))
	}
}
