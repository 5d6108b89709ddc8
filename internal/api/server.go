/**
 * @description
 * This file sets up the main HTTP server for the backend service using the Gin framework.
 * It is responsible for initializing the router, setting up middleware, and defining API routes.
 *
 * Key features:
 * - Gin Router: Utilizes Gin for high-performance HTTP routing.
 * - Middleware: Panic recovery, structured request logging, Prometheus metrics and CORS.
 * - Route Grouping: Public reads, session-protected writes under `/api`, and the API-key
 *   protected read-only surface under `/api/v1/public`.
 * - Dependency Injection: The server holds the services, which are passed to HTTP handlers.
 */

package api

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/predikt/backend/internal/auth"
	"github.com/predikt/backend/internal/config"
	"github.com/predikt/backend/internal/metrics"
	"github.com/predikt/backend/internal/services"
	"github.com/predikt/backend/internal/signer"
	"github.com/predikt/backend/internal/websocket"
)

// Services bundles the business logic the handlers delegate to.
type Services struct {
	Users       *services.UserService
	Markets     *services.MarketService
	Orders      *services.OrderService
	Pools       *services.PoolService
	Relay       *services.RelayService
	Prices      *services.PriceFeedService
	Scoreboards *services.ScoreboardService
	Rewards     *services.RewardsService
	Comments    *services.CommentService
	APIKeys     *services.APIKeyService
}

// Server serves HTTP requests for the prediction market backend.
type Server struct {
	config  config.Config
	Router  *gin.Engine
	logger  *slog.Logger
	svc     Services
	tokens  *auth.JWTManager
	limiter *auth.RateLimiter
	hub     *websocket.Hub
	// nil outside development
	devSigner *signer.Signer
}

// Options carries the optional collaborators of the server.
type Options struct {
	Hub       *websocket.Hub
	DevSigner *signer.Signer
}

/**
 * @description
 * NewServer creates a new HTTP server and sets up all the necessary routing.
 *
 * @param cfg The application configuration.
 * @param svc The services backing the handlers.
 * @param tokens Issues and verifies session tokens.
 * @param limiter Counts API key requests.
 * @returns A pointer to a new Server instance.
 */
func NewServer(cfg config.Config, svc Services, tokens *auth.JWTManager, limiter *auth.RateLimiter, opts Options, logger *slog.Logger) *Server {
	registerValidators(logger)

	server := &Server{
		config:    cfg,
		logger:    logger,
		svc:       svc,
		tokens:    tokens,
		limiter:   limiter,
		hub:       opts.Hub,
		devSigner: opts.DevSigner,
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger), metrics.Middleware(), server.cors())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "success",
			"message": "Prediction market backend is healthy and running!",
		})
	})
	router.GET("/metrics", metrics.Handler())
	if server.hub != nil {
		router.GET("/ws", server.serveWs)
	}

	requireUser := auth.RequireUser(tokens, svc.Users, logger)

	api := router.Group("/api")
	{
		authRoutes := api.Group("/auth")
		authRoutes.POST("/challenge", server.createChallenge)
		authRoutes.POST("/login", server.login)

		api.GET("/users/me", requireUser, server.getMe)

		markets := api.Group("/markets")
		{
			markets.GET("", server.listMarkets)
			markets.POST("", requireUser, server.createMarket)
			markets.GET("/:id", server.getMarket)
			markets.POST("/:id/resolve", requireUser, server.resolveMarket)
			markets.GET("/:id/orders", server.listMarketOrders)
			markets.POST("/:id/orders", requireUser, server.placeOrder)
			markets.GET("/:id/orderbook", server.getOrderBook)
			markets.GET("/:id/trades", server.listTrades)
			markets.GET("/:id/history", server.getMarketHistory)
			markets.GET("/:id/ctf/calldata", server.getCTFCalldata)
			markets.POST("/:id/ctf/record", requireUser, server.recordCTFOperation)
			markets.GET("/:id/comments", server.listComments)
			markets.POST("/:id/comments", requireUser, server.createComment)
		}

		orders := api.Group("/orders")
		{
			orders.GET("/mine", requireUser, server.listMyOrders)
			orders.GET("/:id", server.getOrder)
			orders.DELETE("/:id", requireUser, server.cancelOrder)
		}

		pools := api.Group("/pool/:address")
		{
			pools.GET("/info", server.getPoolInfo)
			pools.GET("/quote", server.getPoolQuote)
			pools.GET("/swaps", server.listSwaps)
			pools.POST("/swaps", requireUser, server.recordSwap)
			pools.POST("/liquidity", requireUser, server.updateLiquidity)
			pools.GET("/liquidity/:provider", server.getLpPosition)
		}

		proxy := api.Group("/proxy")
		{
			proxy.POST("/deploy", requireUser, server.deployProxy)
			proxy.POST("/relay", requireUser, server.relay)
			proxy.GET("/:owner/balance", server.getProxyBalance)
			proxy.GET("/:owner/nonce", server.getProxyNonce)
		}

		api.GET("/prices/:feed/latest", server.getLatestPrice)
		api.GET("/sports/:sport/:league/scoreboard", server.getScoreboard)

		api.GET("/positions", requireUser, server.listPositions)
		api.GET("/rewards/me", requireUser, server.getMyRewards)
		api.GET("/rewards/leaderboard", server.getLeaderboard)

		keys := api.Group("/keys", requireUser)
		{
			keys.POST("", server.createAPIKey)
			keys.GET("", server.listAPIKeys)
			keys.DELETE("/:id", server.revokeAPIKey)
		}

		public := api.Group("/v1/public", auth.RequireAPIKey(svc.APIKeys, limiter, logger))
		{
			public.GET("/markets", server.listMarkets)
			public.GET("/markets/:id", server.getMarket)
			public.GET("/markets/:id/orderbook", server.getOrderBook)
			public.GET("/markets/:id/trades", server.listTrades)
			public.GET("/markets/:id/history", server.getMarketHistory)
		}

		if cfg.IsDevelopment() && server.devSigner != nil {
			api.POST("/dev/sign", server.devSign)
			logger.Warn("development signing endpoint enabled", "path", "/api/dev/sign")
		}
	}

	server.Router = router
	return server
}

// cors allows the configured frontend origins.
func (s *Server) cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		switch {
		case origin == "":
			// Same-origin requests and tools like curl.
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case slices.Contains(s.config.AllowedOrigins, origin):
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Add("Vary", "Origin")
		}

		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, X-API-Key, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		level := slog.LevelDebug
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
