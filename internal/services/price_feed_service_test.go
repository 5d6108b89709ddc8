package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/predikt/backend/internal/db/dbtest"
	"github.com/predikt/backend/internal/pyth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceFeedPoll(t *testing.T) {
	store := dbtest.NewMemStore()
	pub := &recordingPublisher{}
	at := time.Unix(1_735_000_000, 0)
	source := &fakePrices{prices: []pyth.Price{
		{FeedID: btcFeed, Price: dec("97000.12"), Conf: dec("35.5"), Expo: -8, PublishTime: at},
	}}
	svc := NewPriceFeedService(store, source, pub, []string{"0x" + btcFeed, " "}, testLogger())
	ctx := context.Background()

	stored, err := svc.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stored)

	stored, err = svc.Poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, stored, "same publish time is stored once")

	source.prices[0].Price = dec("97100")
	source.prices[0].PublishTime = at.Add(time.Second)
	stored, err = svc.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stored)

	latest, err := svc.Latest(ctx, "0X"+btcFeed)
	require.NoError(t, err)
	assert.True(t, latest.Price.Equal(dec("97100")))

	require.Len(t, pub.events, 2)
	assert.Equal(t, PriceChannel(btcFeed), pub.events[0].channel)
	ev, ok := pub.events[1].event.(OraclePriceEvent)
	require.True(t, ok)
	assert.True(t, ev.Price.Equal(dec("97100")))

	_, err = svc.Latest(ctx, "ff")
	assert.ErrorIs(t, err, ErrNotFound)

	source.err = errors.New("hermes unavailable")
	_, err = svc.Poll(ctx)
	assert.Error(t, err)
}

func TestPriceFeedPoll_NoFeeds(t *testing.T) {
	source := &fakePrices{}
	svc := NewPriceFeedService(dbtest.NewMemStore(), source, &recordingPublisher{}, nil, testLogger())
	stored, err := svc.Poll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stored)
	assert.Zero(t, source.calls)
}
