package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/slotswap/internal/model"
)

// SQLStore implements Store on top of MySQL, PostgreSQL or SQLite.
// Queries are written with '?' placeholders and rebound per driver.
type SQLStore struct {
	db      *sqlx.DB
	dialect dialect

	// Now returns the timestamp stamped on writes.  Tests may override it.
	Now func() time.Time
}

// NewSQLStore wraps db.  The dialect is taken from db.DriverName().
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, dialect: dialect(db.DriverName()), Now: utcNow}
}

func utcNow() time.Time {
	// MySQL DATETIME(6) and PostgreSQL TIMESTAMPTZ keep microseconds.
	return time.Now().UTC().Truncate(time.Microsecond)
}

// InTx begins a transaction, hands it to fn and commits when fn succeeds.
// Any error from fn rolls the transaction back.
func (s *SQLStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return s.dialect.wrap("begin tx", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = sqlTx.Rollback()
		}
	}()

	t := &sqlTxn{tx: sqlTx, dialect: s.dialect, now: s.Now}
	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return s.dialect.wrap("commit", err)
	}
	committed = true
	return nil
}

type sqlTxn struct {
	tx      *sqlx.Tx
	dialect dialect
	now     func() time.Time
}

func (t *sqlTxn) Slots() SlotStore { return slotRepo{t} }
func (t *sqlTxn) Swaps() SwapStore { return swapRepo{t} }

// exec runs a conditional write and requires exactly one affected row.
func (t *sqlTxn) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(query), args...)
	if err != nil {
		return t.dialect.wrap(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return t.dialect.wrap(op, err)
	}
	if n != 1 {
		return fmt.Errorf("%s: %w", op, ErrConflict)
	}
	return nil
}

const slotColumns = "id, title, start_time, end_time, owner_id, status, version, created_at, updated_at"

type slotRepo struct{ t *sqlTxn }

func (r slotRepo) Create(ctx context.Context, s *model.Slot) error {
	if !s.StartTime.Before(s.EndTime) {
		return ErrInvalidRange
	}
	if s.Status == "" {
		s.Status = model.SlotHeld
	}
	if !s.Status.Valid() {
		return fmt.Errorf("create slot: unknown status %q", s.Status)
	}
	now := r.t.now()
	s.ID = uuid.NewString()
	s.StartTime = s.StartTime.UTC()
	s.EndTime = s.EndTime.UTC()
	s.Version = 1
	s.CreatedAt, s.UpdatedAt = now, now

	_, err := r.t.tx.NamedExecContext(ctx,
		"INSERT INTO event_slots ("+slotColumns+") VALUES "+
			"(:id, :title, :start_time, :end_time, :owner_id, :status, :version, :created_at, :updated_at)", s)
	return r.t.dialect.wrap("create slot", err)
}

func (r slotRepo) Get(ctx context.Context, id string) (model.Slot, error) {
	return r.get(ctx, id, "")
}

func (r slotRepo) get(ctx context.Context, id, suffix string) (model.Slot, error) {
	var s model.Slot
	err := r.t.tx.GetContext(ctx, &s,
		r.t.tx.Rebind("SELECT "+slotColumns+" FROM event_slots WHERE id = ?"+suffix), id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Slot{}, fmt.Errorf("slot %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Slot{}, r.t.dialect.wrap("get slot", err)
	}
	return normalizeSlot(s), nil
}

func (r slotRepo) Lock(ctx context.Context, ids ...string) ([]model.Slot, error) {
	locked := make(map[string]model.Slot, len(ids))
	for _, id := range LockOrder(ids) {
		s, err := r.get(ctx, id, r.t.dialect.lockClause())
		if err != nil {
			return nil, err
		}
		locked[id] = s
	}
	out := make([]model.Slot, len(ids))
	for i, id := range ids {
		out[i] = locked[id]
	}
	return out, nil
}

func (r slotRepo) ListByOwner(ctx context.Context, ownerID string) ([]model.Slot, error) {
	return r.list(ctx, "list slots by owner",
		"SELECT "+slotColumns+" FROM event_slots WHERE owner_id = ? ORDER BY start_time ASC, id ASC", ownerID)
}

func (r slotRepo) ListOffered(ctx context.Context, excludingOwner string) ([]model.Slot, error) {
	return r.list(ctx, "list offered slots",
		"SELECT "+slotColumns+" FROM event_slots WHERE status = ? AND owner_id <> ? ORDER BY start_time ASC, id ASC",
		model.SlotOffered, excludingOwner)
}

func (r slotRepo) list(ctx context.Context, op, query string, args ...any) ([]model.Slot, error) {
	slots := []model.Slot{}
	if err := r.t.tx.SelectContext(ctx, &slots, r.t.tx.Rebind(query), args...); err != nil {
		return nil, r.t.dialect.wrap(op, err)
	}
	for i := range slots {
		slots[i] = normalizeSlot(slots[i])
	}
	return slots, nil
}

func (r slotRepo) SetStatus(ctx context.Context, s *model.Slot, status model.SlotStatus) error {
	if !status.Valid() {
		return fmt.Errorf("set slot status: unknown status %q", status)
	}
	now := r.t.now()
	err := r.t.exec(ctx, "set slot status",
		"UPDATE event_slots SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?",
		status, now, s.ID, s.Version)
	if err != nil {
		return err
	}
	s.Status, s.Version, s.UpdatedAt = status, s.Version+1, now
	return nil
}

func (r slotRepo) SetOwner(ctx context.Context, s *model.Slot, ownerID string) error {
	now := r.t.now()
	err := r.t.exec(ctx, "set slot owner",
		"UPDATE event_slots SET owner_id = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?",
		ownerID, now, s.ID, s.Version)
	if err != nil {
		return err
	}
	s.OwnerID, s.Version, s.UpdatedAt = ownerID, s.Version+1, now
	return nil
}

func (r slotRepo) Delete(ctx context.Context, s model.Slot) error {
	return r.t.exec(ctx, "delete slot",
		"DELETE FROM event_slots WHERE id = ? AND version = ?", s.ID, s.Version)
}

// normalizeSlot forces timestamps into UTC; drivers differ in the
// location they attach on scan.
func normalizeSlot(s model.Slot) model.Slot {
	s.StartTime = s.StartTime.UTC()
	s.EndTime = s.EndTime.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s
}

const swapColumns = "id, requester_id, requester_slot_id, target_user_id, target_slot_id, status, version, created_at, updated_at, responded_at"

type swapRepo struct{ t *sqlTxn }

func (r swapRepo) Create(ctx context.Context, req *model.SwapRequest) error {
	now := r.t.now()
	req.ID = uuid.NewString()
	req.Status = model.SwapPending
	req.Version = 1
	req.CreatedAt, req.UpdatedAt = now, now
	req.RespondedAt = nil

	_, err := r.t.tx.NamedExecContext(ctx,
		"INSERT INTO swap_requests ("+swapColumns+") VALUES "+
			"(:id, :requester_id, :requester_slot_id, :target_user_id, :target_slot_id, :status, :version, :created_at, :updated_at, :responded_at)", req)
	return r.t.dialect.wrap("create swap request", err)
}

func (r swapRepo) Get(ctx context.Context, id string) (model.SwapRequest, error) {
	return r.get(ctx, id, "")
}

func (r swapRepo) Lock(ctx context.Context, id string) (model.SwapRequest, error) {
	return r.get(ctx, id, r.t.dialect.lockClause())
}

func (r swapRepo) get(ctx context.Context, id, suffix string) (model.SwapRequest, error) {
	var req model.SwapRequest
	err := r.t.tx.GetContext(ctx, &req,
		r.t.tx.Rebind("SELECT "+swapColumns+" FROM swap_requests WHERE id = ?"+suffix), id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SwapRequest{}, fmt.Errorf("swap request %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.SwapRequest{}, r.t.dialect.wrap("get swap request", err)
	}
	return normalizeSwap(req), nil
}

func (r swapRepo) ListByTarget(ctx context.Context, userID string) ([]model.SwapRequest, error) {
	return r.list(ctx, "list incoming swap requests",
		"SELECT "+swapColumns+" FROM swap_requests WHERE target_user_id = ? ORDER BY created_at DESC, id DESC", userID)
}

func (r swapRepo) ListByRequester(ctx context.Context, userID string) ([]model.SwapRequest, error) {
	return r.list(ctx, "list outgoing swap requests",
		"SELECT "+swapColumns+" FROM swap_requests WHERE requester_id = ? ORDER BY created_at DESC, id DESC", userID)
}

func (r swapRepo) list(ctx context.Context, op, query string, args ...any) ([]model.SwapRequest, error) {
	reqs := []model.SwapRequest{}
	if err := r.t.tx.SelectContext(ctx, &reqs, r.t.tx.Rebind(query), args...); err != nil {
		return nil, r.t.dialect.wrap(op, err)
	}
	for i := range reqs {
		reqs[i] = normalizeSwap(reqs[i])
	}
	return reqs, nil
}

func (r swapRepo) SetStatus(ctx context.Context, req *model.SwapRequest, status model.SwapStatus) error {
	if !status.Terminal() {
		return fmt.Errorf("set swap status: %q is not a resolution", status)
	}
	now := r.t.now()
	err := r.t.exec(ctx, "set swap status",
		"UPDATE swap_requests SET status = ?, version = version + 1, updated_at = ?, responded_at = ? "+
			"WHERE id = ? AND version = ? AND status = ?",
		status, now, now, req.ID, req.Version, model.SwapPending)
	if err != nil {
		return err
	}
	req.Status, req.Version, req.UpdatedAt = status, req.Version+1, now
	req.RespondedAt = &now
	return nil
}

func normalizeSwap(r model.SwapRequest) model.SwapRequest {
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	if r.RespondedAt != nil {
		t := r.RespondedAt.UTC()
		r.RespondedAt = &t
	}
	return r
}
