package services

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/predikt/backend/internal/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newAPIKeyFixture(t *testing.T) *APIKeyService {
	t.Helper()
	svc := NewAPIKeyService(dbtest.NewMemStore(), 500, testLogger())
	svc.cost = bcrypt.MinCost
	return svc
}

func TestAPIKeyLifecycle(t *testing.T) {
	svc := newAPIKeyFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	created, err := svc.CreateKey(ctx, userID, "  trading bot ")
	require.NoError(t, err)
	assert.Equal(t, "trading bot", created.Label)
	assert.EqualValues(t, 500, created.HourlyLimit)
	assert.True(t, strings.HasPrefix(created.Key, created.Prefix+"."))
	assert.Len(t, created.Prefix, len(APIKeyPrefix)+2*prefixRandBytes)
	assert.NotContains(t, created.SecretHash, strings.TrimPrefix(created.Key, created.Prefix+"."))

	key, err := svc.Authenticate(ctx, created.Key)
	require.NoError(t, err)
	assert.Equal(t, created.ID, key.ID)
	assert.Equal(t, userID, key.UserID)

	_, err = svc.Authenticate(ctx, created.Prefix+".0000")
	assert.ErrorIs(t, err, ErrInvalidAPIKey)

	keys, err := svc.ListKeys(ctx, userID)
	require.NoError(t, err)
	require.Len(t, keys, 1)

	assert.ErrorIs(t, svc.RevokeKey(ctx, uuid.New(), created.ID), ErrNotFound, "only the owner can revoke")
	require.NoError(t, svc.RevokeKey(ctx, userID, created.ID))
	assert.ErrorIs(t, svc.RevokeKey(ctx, userID, created.ID), ErrNotFound)

	_, err = svc.Authenticate(ctx, created.Key)
	assert.ErrorIs(t, err, ErrInvalidAPIKey)
}

func TestAPIKey_Limits(t *testing.T) {
	svc := newAPIKeyFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := svc.CreateKey(ctx, userID, strings.Repeat("x", maxAPIKeyLabel+1))
	assert.True(t, IsValidation(err))

	for i := 0; i < maxKeysPerUser; i++ {
		_, err := svc.CreateKey(ctx, userID, "")
		require.NoError(t, err)
	}
	_, err = svc.CreateKey(ctx, userID, "")
	assert.True(t, IsValidation(err), "active key limit")
}

func TestAuthenticate_Malformed(t *testing.T) {
	svc := newAPIKeyFixture(t)
	for _, key := range []string{"", "pk_abc", "sk_abc.def", "pk_abc.", "pk_000000000000.abcdef"} {
		_, err := svc.Authenticate(context.Background(), key)
		assert.ErrorIs(t, err, ErrInvalidAPIKey, key)
	}
}
