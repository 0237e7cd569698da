package service_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/slotswap/internal/config"
	"github.com/iliyamo/slotswap/internal/database"
	"github.com/iliyamo/slotswap/internal/metrics"
	"github.com/iliyamo/slotswap/internal/model"
	"github.com/iliyamo/slotswap/internal/queue"
	"github.com/iliyamo/slotswap/internal/repository"
	"github.com/iliyamo/slotswap/internal/repository/memory"
	"github.com/iliyamo/slotswap/internal/service"
)

// recorder is a Notifier that keeps every event it receives.
type recorder struct {
	mu     sync.Mutex
	events []queue.SwapEvent
	err    error
}

func (r *recorder) Notify(_ context.Context, ev queue.SwapEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

// failAfter runs fn and then aborts the transaction, as if the commit had
// failed.
type failAfter struct {
	repository.Store
	err error
}

func (f failAfter) InTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return f.Store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return f.err
	})
}

type harness struct {
	store   repository.Store
	slots   *service.SlotService
	swaps   *service.SwapService
	notes   *recorder
	metrics *metrics.Metrics
}

func newHarness(t *testing.T, store repository.Store) *harness {
	t.Helper()
	h := &harness{store: store, notes: &recorder{}, metrics: metrics.New("test", nil)}
	h.slots = service.NewSlotService(store, h.metrics, nil)
	h.swaps = service.NewSwapService(store, h.notes, h.metrics, nil)
	return h
}

// backends runs fn once per store implementation.
func backends(t *testing.T, fn func(t *testing.T, h *harness)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, newHarness(t, memory.New()))
	})
	t.Run("sqlite", func(t *testing.T) {
		ctx := context.Background()
		db, err := database.Open(ctx, config.DBConfig{
			Driver: repository.DriverSQLite,
			Path:   filepath.Join(t.TempDir(), "slotswap.db"),
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		require.NoError(t, database.Migrate(ctx, db))
		fn(t, newHarness(t, repository.NewSQLStore(db)))
	})
}

var monday = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func (h *harness) slot(t *testing.T, owner string, hour int, status model.SlotStatus) model.Slot {
	t.Helper()
	sl, err := h.slots.CreateSlot(context.Background(), owner, service.NewSlot{
		Title:     fmt.Sprintf("%s at %d", owner, hour),
		StartTime: monday.Add(time.Duration(hour) * time.Hour),
		EndTime:   monday.Add(time.Duration(hour+1) * time.Hour),
		Status:    status,
	})
	require.NoError(t, err)
	return sl
}

// owned returns the user's slots keyed by id.
func (h *harness) owned(t *testing.T, owner string) map[string]model.Slot {
	t.Helper()
	list, err := h.slots.ListMySlots(context.Background(), owner)
	require.NoError(t, err)
	out := make(map[string]model.Slot, len(list))
	for _, sl := range list {
		out[sl.ID] = sl
	}
	return out
}

func (h *harness) status(t *testing.T, owner, id string) model.SlotStatus {
	t.Helper()
	sl, ok := h.owned(t, owner)[id]
	require.True(t, ok, "slot %s not owned by %s", id, owner)
	return sl.Status
}

func TestProposeAndAccept(t *testing.T) {
	backends(t, func(t *testing.T, h *harness) {
		ctx := context.Background()
		a := h.slot(t, "alice", 9, model.SlotOffered)
		b := h.slot(t, "bob", 14, model.SlotOffered)

		req, err := h.swaps.ProposeSwap(ctx, "alice", a.ID, b.ID)
		require.NoError(t, err)
		assert.Equal(t, model.SwapPending, req.Status)
		assert.Equal(t, "alice", req.RequesterID)
		assert.Equal(t, "bob", req.TargetUserID)
		assert.Equal(t, a.ID, req.RequesterSlotID)
		assert.Equal(t, b.ID, req.TargetSlotID)
		assert.Equal(t, model.SlotLocked, h.status(t, "alice", a.ID))
		assert.Equal(t, model.SlotLocked, h.status(t, "bob", b.ID))

		incoming, err := h.swaps.ListIncoming(ctx, "bob")
		require.NoError(t, err)
		require.Len(t, incoming, 1)
		assert.Equal(t, req.ID, incoming[0].ID)

		done, err := h.swaps.RespondToSwap(ctx, "bob", req.ID, true)
		require.NoError(t, err)
		assert.Equal(t, model.SwapAccepted, done.Status)
		assert.NotNil(t, done.RespondedAt)

		// owners exchanged, both back to Held
		bobs := h.owned(t, "bob")
		alices := h.owned(t, "alice")
		require.Contains(t, bobs, a.ID)
		require.Contains(t, alices, b.ID)
		assert.NotContains(t, alices, a.ID)
		assert.NotContains(t, bobs, b.ID)
		assert.Equal(t, model.SlotHeld, bobs[a.ID].Status)
		assert.Equal(t, model.SlotHeld, alices[b.ID].Status)

		_, err = h.swaps.RespondToSwap(ctx, "bob", req.ID, false)
		assert.ErrorIs(t, err, service.ErrAlreadyResolved)
		_, err = h.swaps.RespondToSwap(ctx, "bob", req.ID, true)
		assert.ErrorIs(t, err, service.ErrAlreadyResolved)

		assert.Equal(t, []string{queue.EventSwapProposed, queue.EventSwapAccepted}, h.notes.types())
		assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.SwapCommandsTotal.WithLabelValues("accept", "ok")))
		assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.SwapCommandsTotal.WithLabelValues("reject", "already_resolved")))
	})
}

func TestProposeAndReject(t *testing.T) {
	backends(t, func(t *testing.T, h *harness) {
		ctx := context.Background()
		a := h.slot(t, "alice", 9, model.SlotOffered)
		b := h.slot(t, "bob", 14, model.SlotOffered)

		req, err := h.swaps.ProposeSwap(ctx, "alice", a.ID, b.ID)
		require.NoError(t, err)

		done, err := h.swaps.RespondToSwap(ctx, "bob", req.ID, false)
		require.NoError(t, err)
		assert.Equal(t, model.SwapRejected, done.Status)

		assert.Equal(t, model.SlotOffered, h.status(t, "alice", a.ID))
		assert.Equal(t, model.SlotOffered, h.status(t, "bob", b.ID))

		// both slots may be proposed again
		again, err := h.swaps.ProposeSwap(ctx, "bob", b.ID, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", again.TargetUserID)

		outgoing, err := h.swaps.ListOutgoing(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, outgoing, 1)
		assert.Equal(t, model.SwapRejected, outgoing[0].Status)
	})
}

func TestProposeRefusals(t *testing.T) {
	backends(t, func(t *testing.T, h *harness) {
		ctx := context.Background()
		a := h.slot(t, "alice", 9, model.SlotOffered)
		a2 := h.slot(t, "alice", 10, model.SlotOffered)
		held := h.slot(t, "alice", 11, model.SlotHeld)
		b := h.slot(t, "bob", 14, model.SlotOffered)
		bHeld := h.slot(t, "bob", 15, model.SlotHeld)

		tests := []struct {
			name    string
			actor   string
			offered string
			target  string
			want    error
		}{
			{name: "not my slot", actor: "alice", offered: b.ID, target: a.ID, want: service.ErrForbidden},
			{name: "stranger", actor: "carol", offered: a.ID, target: b.ID, want: service.ErrForbidden},
			{name: "same slot", actor: "alice", offered: a.ID, target: a.ID, want: service.ErrInvalidState},
			{name: "own target", actor: "alice", offered: a.ID, target: a2.ID, want: service.ErrInvalidState},
			{name: "offered is held", actor: "alice", offered: held.ID, target: b.ID, want: service.ErrSlotNotOfferable},
			{name: "target is held", actor: "alice", offered: a.ID, target: bHeld.ID, want: service.ErrSlotNotOfferable},
			{name: "missing target", actor: "alice", offered: a.ID, target: "nope", want: service.ErrNotFound},
			{name: "missing offered", actor: "alice", offered: "nope", target: b.ID, want: service.ErrNotFound},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := h.swaps.ProposeSwap(ctx, tt.actor, tt.offered, tt.target)
				assert.ErrorIs(t, err, tt.want)
			})
		}

		// nothing was written
		assert.Equal(t, model.SlotOffered, h.status(t, "alice", a.ID))
		assert.Equal(t, model.SlotOffered, h.status(t, "bob", b.ID))
		out, err := h.swaps.ListOutgoing(ctx, "alice")
		require.NoError(t, err)
		assert.Empty(t, out)
		assert.Empty(t, h.notes.types())
	})
}

func TestLockedSlotCannotBeProposedTwice(t *testing.T) {
	backends(t, func(t *testing.T, h *harness) {
		ctx := context.Background()
		a := h.slot(t, "alice", 9, model.SlotOffered)
		b := h.slot(t, "bob", 14, model.SlotOffered)
		c := h.slot(t, "carol", 16, model.SlotOffered)

		_, err := h.swaps.ProposeSwap(ctx, "alice", a.ID, b.ID)
		require.NoError(t, err)

		_, err = h.swaps.ProposeSwap(ctx, "carol", c.ID, b.ID)
		assert.ErrorIs(t, err, service.ErrSlotNotOfferable)
		_, err = h.swaps.ProposeSwap(ctx, "alice", a.ID, c.ID)
		assert.ErrorIs(t, err, service.ErrSlotNotOfferable)

		offered, err := h.slots.ListOfferedSlots(ctx, "dave")
		require.NoError(t, err)
		require.Len(t, offered, 1)
		assert.Equal(t, c.ID, offered[0].ID)
	})
}

func TestRespondRefusals(t *testing.T) {
	backends(t, func(t *testing.T, h *harness) {
		ctx := context.Background()
		a := h.slot(t, "alice", 9, model.SlotOffered)
		b := h.slot(t, "bob", 14, model.SlotOffered)
		req, err := h.swaps.ProposeSwap(ctx, "alice", a.ID, b.ID)
		require.NoError(t, err)

		_, err = h.swaps.RespondToSwap(ctx, "alice", req.ID, true)
		assert.ErrorIs(t, err, service.ErrForbidden, "requester cannot answer")
		_, err = h.swaps.RespondToSwap(ctx, "carol", req.ID, true)
		assert.ErrorIs(t, err, service.ErrForbidden)
		_, err = h.swaps.RespondToSwap(ctx, "bob", "missing", true)
		assert.ErrorIs(t, err, service.ErrNotFound)

		got, err := h.swaps.GetSwapRequest(ctx, "alice", req.ID)
		require.NoError(t, err)
		assert.Equal(t, model.SwapPending, got.Status)
		_, err = h.swaps.GetSwapRequest(ctx, "carol", req.ID)
		assert.ErrorIs(t, err, service.ErrForbidden)
	})
}

func TestConcurrentProposalsForOneSlot(t *testing.T) {
	backends(t, func(t *testing.T, h *harness) {
		ctx := context.Background()
		target := h.slot(t, "bob", 14, model.SlotOffered)

		const n = 8
		offers := make([]model.Slot, n)
		for i := range offers {
			offers[i] = h.slot(t, fmt.Sprintf("user-%d", i), i, model.SlotOffered)
		}

		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := range offers {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = h.swaps.ProposeSwap(ctx, offers[i].OwnerID, offers[i].ID, target.ID)
			}(i)
		}
		wg.Wait()

		won := 0
		for _, err := range errs {
			switch {
			case err == nil:
				won++
			case errors.Is(err, service.ErrSlotNotOfferable), errors.Is(err, service.ErrConflict):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, won)

		incoming, err := h.swaps.ListIncoming(ctx, "bob")
		require.NoError(t, err)
		require.Len(t, incoming, 1)
		assert.Equal(t, model.SwapPending, incoming[0].Status)

		locked := 0
		for i := range offers {
			if h.status(t, offers[i].OwnerID, offers[i].ID) == model.SlotLocked {
				locked++
			}
		}
		assert.Equal(t, 1, locked)
	})
}

func TestFailedCommitLeavesNoTrace(t *testing.T) {
	backends(t, func(t *testing.T, h *harness) {
		ctx := context.Background()
		a := h.slot(t, "alice", 9, model.SlotOffered)
		b := h.slot(t, "bob", 14, model.SlotOffered)

		injected := errors.New("commit failed")
		broken := newHarness(t, failAfter{Store: h.store, err: injected})

		_, err := broken.swaps.ProposeSwap(ctx, "alice", a.ID, b.ID)
		require.ErrorIs(t, err, injected)
		assert.Equal(t, service.KindInternal, service.KindOf(err))
		assert.Equal(t, model.SlotOffered, h.status(t, "alice", a.ID))
		assert.Equal(t, model.SlotOffered, h.status(t, "bob", b.ID))
		out, err := h.swaps.ListOutgoing(ctx, "alice")
		require.NoError(t, err)
		assert.Empty(t, out)
		assert.Empty(t, broken.notes.types())

		req, err := h.swaps.ProposeSwap(ctx, "alice", a.ID, b.ID)
		require.NoError(t, err)
		_, err = broken.swaps.RespondToSwap(ctx, "bob", req.ID, true)
		require.ErrorIs(t, err, injected)

		assert.Equal(t, model.SlotLocked, h.status(t, "alice", a.ID))
		assert.Equal(t, model.SlotLocked, h.status(t, "bob", b.ID))
		got, err := h.swaps.GetSwapRequest(ctx, "bob", req.ID)
		require.NoError(t, err)
		assert.Equal(t, model.SwapPending, got.Status)
	})
}

func TestNotifierFailureDoesNotFailCommand(t *testing.T) {
	h := newHarness(t, memory.New())
	h.notes.err = errors.New("broker down")
	ctx := context.Background()
	a := h.slot(t, "alice", 9, model.SlotOffered)
	b := h.slot(t, "bob", 14, model.SlotOffered)

	req, err := h.swaps.ProposeSwap(ctx, "alice", a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SwapPending, req.Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.SwapEventsPublishFailed))

	h.notes.mu.Lock()
	ev := h.notes.events[0]
	h.notes.mu.Unlock()
	assert.Equal(t, req.ID, ev.RequestID)
	assert.Equal(t, "alice", ev.ActorID)
	assert.Equal(t, string(model.SwapPending), ev.Status)
}
