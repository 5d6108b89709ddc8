/**
 * @description
 * This is the main entry point for the Predikt prediction market backend.
 * It is responsible for wiring every component together and starting the server.
 *
 * Key features:
 * - Configuration Loading: Loads environment variables from a .env.local file.
 * - Database Connection: Establishes a PostgreSQL pool and applies migrations.
 * - Background Workers: Starts the websocket hub, OHLCV aggregator, order expiry sweeper,
 *   Pyth price poller, market resolver and rate limiter cleanup on a shared context.
 * - Graceful Shutdown: Handles interrupt signals (like Ctrl+C) to shut down the server gracefully.
 */

package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/predikt/backend/internal/api"
	"github.com/predikt/backend/internal/auth"
	"github.com/predikt/backend/internal/chain"
	"github.com/predikt/backend/internal/clob"
	"github.com/predikt/backend/internal/config"
	"github.com/predikt/backend/internal/ctf"
	db "github.com/predikt/backend/internal/db"
	"github.com/predikt/backend/internal/espn"
	"github.com/predikt/backend/internal/metrics"
	"github.com/predikt/backend/internal/pyth"
	"github.com/predikt/backend/internal/services"
	"github.com/predikt/backend/internal/signer"
	"github.com/predikt/backend/internal/signer/vault"
	"github.com/predikt/backend/internal/websocket"
	"github.com/redis/go-redis/v9"
)

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func main() {
	// ------------------------------------------------------------------
	// Configuration Loading
	// ------------------------------------------------------------------
	cfg, err := config.LoadConfig(".")
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("cannot load config", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded successfully", "env", cfg.AppEnv, "chain_id", cfg.Deployments.ChainID)

	metrics.InitMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ------------------------------------------------------------------
	// Database & Redis
	// ------------------------------------------------------------------
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("invalid DATABASE_URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = cfg.DBMaxConns
	connPool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("cannot connect to the database", "error", err)
		os.Exit(1)
	}
	defer connPool.Close()

	if err := connPool.Ping(ctx); err != nil {
		logger.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := db.Migrate(ctx, connPool, logger); err != nil {
		logger.Error("database migration failed", "error", err)
		os.Exit(1)
	}
	logger.Info("database connection established")
	store := db.NewStore(connPool)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// Streaming and the scoreboard cache degrade; the API keeps serving.
		logger.Warn("redis ping failed", "error", err)
	}

	// ------------------------------------------------------------------
	// Keys & Chain
	// ------------------------------------------------------------------
	keyVault := vault.NewStaticVault(map[string]string{
		vault.RelayerKey: cfg.RelayerPrivateKey,
		vault.DevKey:     cfg.DevSignerKey,
	}, logger)
	sig := signer.NewSigner(keyVault, logger)

	var chainClient chain.Client = chain.Disabled{}
	if cfg.ChainEnabled() {
		var relayer *ecdsa.PrivateKey
		if keyVault.Has(vault.RelayerKey) {
			if relayer, err = sig.PrivateKey(ctx, vault.RelayerKey); err != nil {
				logger.Error("invalid RELAYER_PRIVATE_KEY", "error", err)
				os.Exit(1)
			}
		}
		client, err := chain.Dial(ctx, cfg.RPCURL, cfg.Deployments.ChainID, common.HexToAddress(cfg.Deployments.ProxyWalletFactory), relayer, logger)
		if err != nil {
			logger.Error("cannot dial RPC endpoint", "error", err)
			os.Exit(1)
		}
		chainClient = client
	} else {
		logger.Warn("RPC_URL not set, on-chain features are disabled")
	}

	// ------------------------------------------------------------------
	// Services
	// ------------------------------------------------------------------
	stream := services.NewMarketStreamService(logger, redisClient)
	aggregator := services.NewOHLCVAggregator(logger, store)
	engine := clob.NewEngine(clob.DefaultTickSize, clob.DefaultMinSize)
	exchangeDomain := ctf.Domain(ctf.ExchangeDomainName, cfg.Deployments.ChainID, cfg.Deployments.CTFExchange)

	orders := services.NewOrderService(store, engine, exchangeDomain, stream, aggregator, logger)
	restored, err := orders.LoadRestingOrders(ctx)
	if err != nil {
		logger.Error("failed to load resting orders", "error", err)
		os.Exit(1)
	}
	logger.Info("order books restored", "orders", restored)

	markets := services.NewMarketService(store, orders, stream, services.MarketContracts{
		ConditionalTokens: cfg.Deployments.ConditionalTokens,
		Collateral:        cfg.Deployments.Collateral,
	}, cfg.AMMFeeBps, logger)
	markets.SetChain(chainClient)
	markets.SetOracleFeeds(cfg.PythFeedIDs)

	espnClient := espn.NewClient(cfg.ESPNBaseURL)
	prices := services.NewPriceFeedService(store, pyth.NewClient(cfg.PythHermesURL), stream, cfg.PythFeedIDs, logger)
	resolver := services.NewResolverService(store, markets, espnClient, logger)

	tokens := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL)
	defer tokens.Close()
	if cfg.JWKSURL != "" {
		if err := tokens.WithJWKS(ctx, cfg.JWKSURL, logger); err != nil {
			logger.Error("cannot load JWKS", "url", cfg.JWKSURL, "error", err)
			os.Exit(1)
		}
	}
	limiter := auth.NewRateLimiter()

	svc := api.Services{
		Users:       services.NewUserService(store, tokens, logger),
		Markets:     markets,
		Orders:      orders,
		Pools:       services.NewPoolService(store, chainClient, stream, aggregator, logger),
		Relay:       services.NewRelayService(store, chainClient, cfg.Deployments.ChainID, cfg.Deployments.Collateral, logger),
		Prices:      prices,
		Scoreboards: services.NewScoreboardService(espnClient, redisClient, logger),
		Rewards:     services.NewRewardsService(store, logger),
		Comments:    services.NewCommentService(store, logger),
		APIKeys:     services.NewAPIKeyService(store, cfg.APIKeyHourlyLimit, logger),
	}

	for _, address := range cfg.Deployments.Pools {
		info, err := svc.Pools.Info(ctx, address)
		if err != nil {
			logger.Warn("configured pool is not usable", "pool", address, "error", err)
			continue
		}
		logger.Info("pool ready", "pool", info.Address, "market_id", info.MarketID, "source", info.Source)
	}

	hub := websocket.NewHub(ctx, logger, websocket.RedisSource{Client: redisClient, Logger: logger})
	opts := api.Options{Hub: hub}
	if cfg.IsDevelopment() && keyVault.Has(vault.DevKey) {
		opts.DevSigner = sig
	}

	// ------------------------------------------------------------------
	// Background Workers
	// ------------------------------------------------------------------
	var workers sync.WaitGroup
	start := func(name string, run func()) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			logger.Info("worker started", "worker", name)
			run()
			logger.Info("worker stopped", "worker", name)
		}()
	}
	start("websocket-hub", hub.Run)
	start("ohlcv-aggregator", func() { aggregator.Run(ctx) })
	start("expiry-sweeper", func() { orders.RunExpirySweeper(ctx, cfg.ExpirySweepInterval) })
	start("price-poller", func() { prices.Run(ctx, cfg.PythPollInterval) })
	start("resolver", func() { resolver.Run(ctx, cfg.ResolverInterval) })
	start("rate-limit-cleanup", func() { limiter.Run(ctx, 10*time.Minute, logger) })

	// ------------------------------------------------------------------
	// Start Server & Handle Graceful Shutdown
	// ------------------------------------------------------------------
	server := api.NewServer(cfg, svc, tokens, limiter, opts, logger)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", "address", httpServer.Addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
			workers.Wait()
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	}

	workers.Wait()
	logger.Info("application has shut down")
}
