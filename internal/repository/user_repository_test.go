package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/slotswap/internal/repository"
	"github.com/iliyamo/slotswap/internal/utils"
)

func TestUserRepo(t *testing.T) {
	ctx := context.Background()
	users := repository.NewUserRepo(openSQLite(t))

	u, err := users.Create(ctx, " Alice ", "Alice@Example.com", "secret1", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "Alice", u.Name)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.True(t, utils.VerifyPassword(u.PasswordHash, "secret1"))

	_, err = users.Create(ctx, "Other", "ALICE@example.com", "secret2", bcrypt.MinCost)
	assert.ErrorIs(t, err, repository.ErrEmailExists)

	byEmail, err := users.GetByEmail(ctx, "alice@EXAMPLE.com ")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	byID, err := users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, byID.Email)

	_, err = users.GetByID(ctx, "nobody")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTokenRepo(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	u, err := repository.NewUserRepo(db).Create(ctx, "Bob", "bob@example.com", "secret1", bcrypt.MinCost)
	require.NoError(t, err)

	tokens := repository.NewTokenRepo(db)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tokens.Now = func() time.Time { return now }

	require.NoError(t, tokens.StoreRefresh(ctx, u.ID, "hash-1", now.Add(time.Hour)))
	require.NoError(t, tokens.StoreRefresh(ctx, u.ID, "hash-2", now.Add(time.Hour)))
	require.NoError(t, tokens.StoreRefresh(ctx, u.ID, "hash-old", now.Add(-time.Minute)))

	uid, err := tokens.ValidateRefresh(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, uid)

	_, err = tokens.ValidateRefresh(ctx, "hash-old")
	assert.ErrorIs(t, err, repository.ErrNotFound, "expired token")

	_, err = tokens.ValidateRefresh(ctx, "unknown")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, tokens.RevokeByHash(ctx, "hash-1"))
	_, err = tokens.ValidateRefresh(ctx, "hash-1")
	assert.ErrorIs(t, err, repository.ErrNotFound, "revoked token")

	_, err = tokens.ValidateRefresh(ctx, "hash-2")
	require.NoError(t, err)
	require.NoError(t, tokens.RevokeAllForUser(ctx, u.ID))
	_, err = tokens.ValidateRefresh(ctx, "hash-2")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
