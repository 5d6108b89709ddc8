package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
		},
		[]string{"method", "path"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests in flight",
		},
	)

	// Trading
	OrdersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_orders_placed_total",
			Help: "Orders accepted by the matching engine",
		},
		[]string{"order_type", "side"},
	)
	OrderFills = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "market_order_fills_total",
			Help: "Fills produced by the matching engine",
		},
	)
	OrdersExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "market_orders_expired_total",
			Help: "GTD orders removed by the expiry sweeper",
		},
	)
	AMMSwaps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amm_swaps_total",
			Help: "Recorded AMM swaps",
		},
		[]string{"side"},
	)
	RelayedTransactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayed_transactions_total",
			Help: "Meta-transactions submitted by the relayer",
		},
		[]string{"status"},
	)

	// Feeds
	PriceUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pyth_price_updates_total",
			Help: "New Pyth prices persisted",
		},
		[]string{"feed_id"},
	)
	MarketsResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "markets_resolved_total",
			Help: "Markets resolved, by source",
		},
		[]string{"source"},
	)

	WebsocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_clients",
			Help: "Connected websocket clients",
		},
	)
)

var initOnce sync.Once

// InitMetrics registers every collector with the default registry. Safe to call more than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(HTTPRequestsTotal)
		prometheus.MustRegister(HTTPRequestDuration)
		prometheus.MustRegister(HTTPRequestsInFlight)

		prometheus.MustRegister(OrdersPlaced)
		prometheus.MustRegister(OrderFills)
		prometheus.MustRegister(OrdersExpired)
		prometheus.MustRegister(AMMSwaps)
		prometheus.MustRegister(RelayedTransactions)

		prometheus.MustRegister(PriceUpdates)
		prometheus.MustRegister(MarketsResolved)
		prometheus.MustRegister(WebsocketClients)
	})
}

// Middleware records request count, latency and in-flight requests. The path
// label is the matched route template so ids do not blow up cardinality.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
