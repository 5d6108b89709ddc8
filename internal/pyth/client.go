/**
 * @description
 * Client for the Pyth Hermes price service. Only the "latest price" endpoint is
 * used; the binary VAA payload is ignored and the parsed form is decoded.
 *
 * @dependencies
 * - github.com/go-resty/resty/v2: HTTP client with retries.
 * - golang.org/x/time/rate: client side throttling.
 * - github.com/shopspring/decimal: price scaling.
 */

package pyth

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://hermes.pyth.network"
	latestPath     = "/v2/updates/price/latest"

	defaultRetryCount = 2
	requestsPerSecond = 5
)

var ErrNoFeeds = errors.New("pyth: no feed ids requested")

// Price is one parsed Hermes price with the exponent already applied.
type Price struct {
	FeedID      string
	Price       decimal.Decimal
	Conf        decimal.Decimal
	Expo        int32
	PublishTime time.Time
}

type rawPrice struct {
	Price       string `json:"price"`
	Conf        string `json:"conf"`
	Expo        int32  `json:"expo"`
	PublishTime int64  `json:"publish_time"`
}

type latestResponse struct {
	Parsed []struct {
		ID    string   `json:"id"`
		Price rawPrice `json:"price"`
	} `json:"parsed"`
}

type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
}

func NewClient(baseURL string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(10 * time.Second).
		SetRetryCount(defaultRetryCount).
		SetRetryWaitTime(250 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})

	return &Client{
		http:    httpClient,
		limiter: rate.NewLimiter(requestsPerSecond, requestsPerSecond),
	}
}

// NormalizeFeedID lower-cases id and strips the 0x prefix, the form Hermes returns.
func NormalizeFeedID(id string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(id)), "0x")
}

// Latest fetches the most recent price for each feed id.
func (c *Client) Latest(ctx context.Context, feedIDs []string) ([]Price, error) {
	if len(feedIDs) == 0 {
		return nil, ErrNoFeeds
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("pyth: rate limiter: %w", err)
	}

	req := c.http.R().SetContext(ctx).SetQueryParam("parsed", "true")
	for _, id := range feedIDs {
		req.QueryParam.Add("ids[]", NormalizeFeedID(id))
	}

	var body latestResponse
	resp, err := req.SetResult(&body).Get(latestPath)
	if err != nil {
		return nil, fmt.Errorf("pyth: request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("pyth: status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}

	prices := make([]Price, 0, len(body.Parsed))
	for _, p := range body.Parsed {
		price, err := p.Price.scale()
		if err != nil {
			return nil, fmt.Errorf("pyth: feed %s: %w", p.ID, err)
		}
		price.FeedID = NormalizeFeedID(p.ID)
		prices = append(prices, price)
	}
	return prices, nil
}

func (r rawPrice) scale() (Price, error) {
	mantissa, err := strconv.ParseInt(r.Price, 10, 64)
	if err != nil {
		return Price{}, fmt.Errorf("price %q: %w", r.Price, err)
	}
	conf, err := strconv.ParseUint(r.Conf, 10, 64)
	if err != nil {
		return Price{}, fmt.Errorf("conf %q: %w", r.Conf, err)
	}
	return Price{
		Price:       decimal.New(mantissa, r.Expo),
		Conf:        decimal.NewFromBigInt(new(big.Int).SetUint64(conf), r.Expo),
		Expo:        r.Expo,
		PublishTime: time.Unix(r.PublishTime, 0).UTC(),
	}, nil
}
