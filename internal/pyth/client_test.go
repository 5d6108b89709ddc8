package pyth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const btcFeed = "e62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43"

func TestLatest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, latestPath, r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("parsed"))
		assert.Equal(t, []string{btcFeed}, r.URL.Query()["ids[]"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"binary": {"encoding": "hex", "data": ["00"]},
			"parsed": [{
				"id": "` + btcFeed + `",
				"price": {"price": "6140993501000", "conf": "3290000", "expo": -8, "publish_time": 1700000000},
				"ema_price": {"price": "1", "conf": "1", "expo": -8, "publish_time": 1700000000}
			}]
		}`))
	}))
	defer server.Close()

	c := NewClient(server.URL)
	prices, err := c.Latest(context.Background(), []string{"0x" + btcFeed})
	require.NoError(t, err)
	require.Len(t, prices, 1)

	p := prices[0]
	assert.Equal(t, btcFeed, p.FeedID)
	assert.Equal(t, "61409.93501", p.Price.String())
	assert.Equal(t, "0.0329", p.Conf.String())
	assert.Equal(t, int32(-8), p.Expo)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), p.PublishTime)
}

func TestLatest_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown price feed", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewClient(server.URL).Latest(context.Background(), []string{btcFeed})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestLatest_NoFeeds(t *testing.T) {
	_, err := NewClient("http://unused").Latest(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoFeeds)
}

func TestNormalizeFeedID(t *testing.T) {
	assert.Equal(t, "abcd", NormalizeFeedID(" 0xABCD "))
}
