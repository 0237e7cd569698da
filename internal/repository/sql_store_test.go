package repository_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/slotswap/internal/config"
	"github.com/iliyamo/slotswap/internal/database"
	"github.com/iliyamo/slotswap/internal/model"
	"github.com/iliyamo/slotswap/internal/repository"
)

// openSQLite returns a migrated database in the test's temp dir.
func openSQLite(t *testing.T) *sqlx.DB {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, config.DBConfig{
		Driver: repository.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "slotswap.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(ctx, db))
	return db
}

// steppingClock returns strictly increasing timestamps one second apart.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

var day = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func createSlot(t *testing.T, st repository.Store, owner string, startHour int, status model.SlotStatus) model.Slot {
	t.Helper()
	sl := model.Slot{
		Title:     "slot",
		StartTime: day.Add(time.Duration(startHour) * time.Hour),
		EndTime:   day.Add(time.Duration(startHour+1) * time.Hour),
		OwnerID:   owner,
		Status:    status,
	}
	err := st.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.Slots().Create(ctx, &sl)
	})
	require.NoError(t, err)
	return sl
}

func getSlot(t *testing.T, st repository.Store, id string) (model.Slot, error) {
	t.Helper()
	var sl model.Slot
	err := st.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		var err error
		sl, err = tx.Slots().Get(ctx, id)
		return err
	})
	return sl, err
}

func TestSQLStoreSlotRoundTrip(t *testing.T) {
	st := repository.NewSQLStore(openSQLite(t))

	created := createSlot(t, st, "alice", 9, "")
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, model.SlotHeld, created.Status)
	assert.EqualValues(t, 1, created.Version)

	got, err := getSlot(t, st, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "alice", got.OwnerID)
	assert.Equal(t, model.SlotHeld, got.Status)
	assert.True(t, got.StartTime.Equal(created.StartTime), "start %v != %v", got.StartTime, created.StartTime)
	assert.True(t, got.EndTime.Equal(created.EndTime))
	assert.Equal(t, time.UTC, got.StartTime.Location())
}

func TestSQLStoreGetMissing(t *testing.T) {
	st := repository.NewSQLStore(openSQLite(t))
	_, err := getSlot(t, st, "does-not-exist")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSQLStoreRejectsEmptyRange(t *testing.T) {
	st := repository.NewSQLStore(openSQLite(t))
	err := st.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.Slots().Create(ctx, &model.Slot{Title: "x", OwnerID: "a", StartTime: day, EndTime: day})
	})
	assert.ErrorIs(t, err, repository.ErrInvalidRange)
}

func TestSQLStoreStaleVersionConflicts(t *testing.T) {
	st := repository.NewSQLStore(openSQLite(t))
	stale := createSlot(t, st, "alice", 9, model.SlotHeld)

	err := st.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		cur, err := tx.Slots().Get(ctx, stale.ID)
		if err != nil {
			return err
		}
		return tx.Slots().SetStatus(ctx, &cur, model.SlotOffered)
	})
	require.NoError(t, err)

	err = st.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		cp := stale
		return tx.Slots().SetOwner(ctx, &cp, "mallory")
	})
	assert.ErrorIs(t, err, repository.ErrConflict)

	got, err := getSlot(t, st, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.OwnerID)
	assert.Equal(t, model.SlotOffered, got.Status)
	assert.EqualValues(t, 2, got.Version)
}

func TestSQLStoreRollsBackOnError(t *testing.T) {
	st := repository.NewSQLStore(openSQLite(t))
	sl := createSlot(t, st, "alice", 9, model.SlotOffered)
	boom := errors.New("boom")

	err := st.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		cur, err := tx.Slots().Get(ctx, sl.ID)
		if err != nil {
			return err
		}
		if err := tx.Slots().SetStatus(ctx, &cur, model.SlotLocked); err != nil {
			return err
		}
		other := model.Slot{Title: "new", OwnerID: "alice", StartTime: day, EndTime: day.Add(time.Hour)}
		if err := tx.Slots().Create(ctx, &other); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := getSlot(t, st, sl.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SlotOffered, got.Status)

	var mine []model.Slot
	require.NoError(t, st.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		mine, err = tx.Slots().ListByOwner(ctx, "alice")
		return err
	}))
	assert.Len(t, mine, 1)
}

func TestSQLStoreListings(t *testing.T) {
	st := repository.NewSQLStore(openSQLite(t))
	late := createSlot(t, st, "alice", 15, model.SlotOffered)
	early := createSlot(t, st, "alice", 8, model.SlotHeld)
	bobOffered := createSlot(t, st, "bob", 11, model.SlotOffered)
	createSlot(t, st, "bob", 12, model.SlotHeld)

	var mine, offeredToAlice, offeredToCarol []model.Slot
	err := st.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		var err error
		if mine, err = tx.Slots().ListByOwner(ctx, "alice"); err != nil {
			return err
		}
		if offeredToAlice, err = tx.Slots().ListOffered(ctx, "alice"); err != nil {
			return err
		}
		offeredToCarol, err = tx.Slots().ListOffered(ctx, "carol")
		return err
	})
	require.NoError(t, err)

	require.Len(t, mine, 2)
	assert.Equal(t, early.ID, mine[0].ID)
	assert.Equal(t, late.ID, mine[1].ID)

	require.Len(t, offeredToAlice, 1)
	assert.Equal(t, bobOffered.ID, offeredToAlice[0].ID)

	require.Len(t, offeredToCarol, 2)
	assert.Equal(t, bobOffered.ID, offeredToCarol[0].ID)
	assert.Equal(t, late.ID, offeredToCarol[1].ID)
}

func TestSQLStoreLockKeepsArgumentOrder(t *testing.T) {
	st := repository.NewSQLStore(openSQLite(t))
	a := createSlot(t, st, "alice", 9, model.SlotOffered)
	b := createSlot(t, st, "bob", 10, model.SlotOffered)

	err := st.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		for _, ids := range [][]string{{a.ID, b.ID}, {b.ID, a.ID}} {
			got, err := tx.Slots().Lock(ctx, ids...)
			if err != nil {
				return err
			}
			assert.Equal(t, ids[0], got[0].ID)
			assert.Equal(t, ids[1], got[1].ID)
		}
		_, err := tx.Slots().Lock(ctx, a.ID, "missing")
		assert.ErrorIs(t, err, repository.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestSQLStoreDelete(t *testing.T) {
	st := repository.NewSQLStore(openSQLite(t))
	sl := createSlot(t, st, "alice", 9, model.SlotHeld)

	require.NoError(t, st.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.Slots().Delete(ctx, sl)
	}))
	_, err := getSlot(t, st, sl.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	err = st.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.Slots().Delete(ctx, sl)
	})
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestSQLStoreSwapRequests(t *testing.T) {
	st := repository.NewSQLStore(openSQLite(t))
	st.Now = steppingClock()

	newReq := func(requester, target string) model.SwapRequest {
		r := model.SwapRequest{
			RequesterID: requester, RequesterSlotID: requester + "-slot",
			TargetUserID: target, TargetSlotID: target + "-slot",
		}
		require.NoError(t, st.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
			return tx.Swaps().Create(ctx, &r)
		}))
		return r
	}
	first := newReq("alice", "bob")
	second := newReq("carol", "bob")
	assert.Equal(t, model.SwapPending, first.Status)
	assert.Nil(t, first.RespondedAt)

	var incoming, outgoing []model.SwapRequest
	require.NoError(t, st.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		var err error
		if incoming, err = tx.Swaps().ListByTarget(ctx, "bob"); err != nil {
			return err
		}
		outgoing, err = tx.Swaps().ListByRequester(ctx, "alice")
		return err
	}))
	require.Len(t, incoming, 2)
	assert.Equal(t, second.ID, incoming[0].ID, "newest first")
	assert.Equal(t, first.ID, incoming[1].ID)
	require.Len(t, outgoing, 1)
	assert.Equal(t, first.ID, outgoing[0].ID)

	// resolve once, then try again with the stale copy
	stale := first
	require.NoError(t, st.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		r, err := tx.Swaps().Lock(ctx, first.ID)
		if err != nil {
			return err
		}
		if err := tx.Swaps().SetStatus(ctx, &r, model.SwapAccepted); err != nil {
			return err
		}
		assert.NotNil(t, r.RespondedAt)
		return nil
	}))
	err := st.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.Swaps().SetStatus(ctx, &stale, model.SwapRejected)
	})
	assert.ErrorIs(t, err, repository.ErrConflict)

	var got model.SwapRequest
	require.NoError(t, st.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		got, err = tx.Swaps().Get(ctx, first.ID)
		return err
	}))
	assert.Equal(t, model.SwapAccepted, got.Status)
	require.NotNil(t, got.RespondedAt)

	err = st.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		r := second
		return tx.Swaps().SetStatus(ctx, &r, model.SwapPending)
	})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrConflict)
}
