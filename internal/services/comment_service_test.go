package services

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/predikt/backend/internal/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommentThreads(t *testing.T) {
	store := dbtest.NewMemStore()
	svc := NewCommentService(store, testLogger())
	ctx := context.Background()
	market := seedMarket(t, store, nil)
	other := seedMarket(t, store, nil)

	root, err := svc.CreateComment(ctx, "0xA1", market.ID, nil, " first ")
	require.NoError(t, err)
	assert.Equal(t, "first", root.Body)

	reply, err := svc.CreateComment(ctx, "0xB2", market.ID, &root.ID, "reply")
	require.NoError(t, err)
	_, err = svc.CreateComment(ctx, "0xA1", market.ID, &reply.ID, "nested")
	require.NoError(t, err)
	_, err = svc.CreateComment(ctx, "0xC3", market.ID, nil, "second thread")
	require.NoError(t, err)

	threads, err := svc.ListThreads(ctx, market.ID)
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, root.ID, threads[0].ID)
	require.Len(t, threads[0].Replies, 1)
	require.Len(t, threads[0].Replies[0].Replies, 1)
	assert.Equal(t, "nested", threads[0].Replies[0].Replies[0].Body)
	assert.Empty(t, threads[1].Replies)

	_, err = svc.CreateComment(ctx, "0xA1", other.ID, &root.ID, "cross-market reply")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "parent_id", verr.Field)

	missing := uuid.New()
	_, err = svc.CreateComment(ctx, "0xA1", market.ID, &missing, "orphan")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.CreateComment(ctx, "0xA1", uuid.New(), nil, "no market")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.CreateComment(ctx, "0xA1", market.ID, nil, "   ")
	assert.True(t, IsValidation(err))
	_, err = svc.CreateComment(ctx, "0xA1", market.ID, nil, strings.Repeat("é", maxCommentLength+1))
	assert.True(t, IsValidation(err))
}
