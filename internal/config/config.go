/**
 * @description
 * This file is responsible for managing the application's configuration.
 * It loads environment variables from a .env file and the system environment,
 * optionally layered on top of a YAML deployments file that lists the contract
 * addresses of the target chain.
 *
 * Key features:
 * - Structured Config: Defines a `Config` struct to hold all configuration parameters.
 * - .env Loading: Uses the `godotenv` library to load variables from `.env.local` / `.env`.
 * - Deployments File: Contract addresses are read from a YAML file (`DEPLOYMENTS_FILE`);
 *   environment variables win over values found in the file.
 * - Validation: `Validate` rejects values the services cannot run with.
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	AppEnv   string
	Port     string
	LogLevel string

	DatabaseURL    string
	DBMaxConns     int32
	RedisURL       string
	JWTSecret      string
	JWTTTL         time.Duration
	JWKSURL        string
	AllowedOrigins []string

	RPCURL            string
	RelayerPrivateKey string
	DevSignerKey      string
	Deployments       Deployments

	PythHermesURL    string
	PythFeedIDs      []string
	PythPollInterval time.Duration
	ESPNBaseURL      string

	APIKeyHourlyLimit   int
	ExpirySweepInterval time.Duration
	ResolverInterval    time.Duration
	AMMFeeBps           int64
}

// Deployments lists the contracts the backend talks to on the configured chain.
type Deployments struct {
	ChainID            int64    `yaml:"chain_id"`
	ConditionalTokens  string   `yaml:"conditional_tokens"`
	CTFExchange        string   `yaml:"ctf_exchange"`
	ProxyWalletFactory string   `yaml:"proxy_wallet_factory"`
	Collateral         string   `yaml:"collateral"`
	Pools              []string `yaml:"pools"`
}

/**
 * @description
 * LoadConfig reads configuration from environment variables and/or a .env.local file
 * located in the specified path.
 *
 * @param path The path to the directory containing the .env.local file.
 * @returns A Config struct populated with the loaded values, or an error if loading fails.
 *
 * @notes
 * - It first attempts to load from a .env.local file, then .env. If neither exists, it
 *   proceeds assuming environment variables are set directly.
 */
func LoadConfig(path string) (config Config, err error) {
	if err := godotenv.Load(filepath.Join(path, ".env.local")); err != nil {
		_ = godotenv.Load(filepath.Join(path, ".env"))
	}

	config.AppEnv = getEnv("APP_ENV", "development")
	config.Port = getEnv("PORT", "8080")
	config.LogLevel = getEnv("LOG_LEVEL", "info")

	config.DatabaseURL = os.Getenv("DATABASE_URL")
	config.RedisURL = getEnv("REDIS_URL", "redis://localhost:6379/0")
	config.JWTSecret = os.Getenv("JWT_SECRET")
	config.JWKSURL = os.Getenv("JWKS_URL")
	config.AllowedOrigins = splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000"))

	config.RPCURL = os.Getenv("RPC_URL")
	config.RelayerPrivateKey = os.Getenv("RELAYER_PRIVATE_KEY")
	config.DevSignerKey = os.Getenv("DEV_SIGNER_KEY")

	config.PythHermesURL = getEnv("PYTH_HERMES_URL", "https://hermes.pyth.network")
	config.PythFeedIDs = splitList(os.Getenv("PYTH_FEED_IDS"))
	config.ESPNBaseURL = getEnv("ESPN_BASE_URL", "https://site.api.espn.com")

	maxConns, err := getInt("DB_MAX_CONNS", 10)
	if err != nil {
		return Config{}, err
	}
	config.DBMaxConns = int32(maxConns)

	if config.APIKeyHourlyLimit, err = getInt("API_KEY_HOURLY_LIMIT", 1000); err != nil {
		return Config{}, err
	}
	fee, err := getInt("AMM_FEE_BPS", 200)
	if err != nil {
		return Config{}, err
	}
	config.AMMFeeBps = int64(fee)

	if config.JWTTTL, err = getDuration("JWT_TTL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if config.PythPollInterval, err = getDuration("PYTH_POLL_INTERVAL", 10*time.Second); err != nil {
		return Config{}, err
	}
	if config.ExpirySweepInterval, err = getDuration("EXPIRY_SWEEP_INTERVAL", 30*time.Second); err != nil {
		return Config{}, err
	}
	if config.ResolverInterval, err = getDuration("RESOLVER_INTERVAL", time.Minute); err != nil {
		return Config{}, err
	}

	if file := os.Getenv("DEPLOYMENTS_FILE"); file != "" {
		deployments, err := LoadDeployments(file)
		if err != nil {
			return Config{}, err
		}
		config.Deployments = deployments
	}
	applyDeploymentOverrides(&config.Deployments)

	if config.DatabaseURL == "" {
		return Config{}, errors.New("DATABASE_URL is not set")
	}
	if config.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET is not set")
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return
}

// LoadDeployments parses a YAML deployments file.
func LoadDeployments(file string) (Deployments, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return Deployments{}, fmt.Errorf("read deployments %q: %w", file, err)
	}
	var d Deployments
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Deployments{}, fmt.Errorf("parse deployments %q: %w", file, err)
	}
	return d, nil
}

// Validate checks that numeric settings are usable.
func (c Config) Validate() error {
	if c.APIKeyHourlyLimit < 1 {
		return fmt.Errorf("API_KEY_HOURLY_LIMIT must be >= 1, got %d", c.APIKeyHourlyLimit)
	}
	if c.AMMFeeBps < 0 || c.AMMFeeBps >= 10000 {
		return fmt.Errorf("AMM_FEE_BPS must be in [0, 10000), got %d", c.AMMFeeBps)
	}
	if c.DBMaxConns < 1 {
		return errors.New("DB_MAX_CONNS must be >= 1")
	}
	if c.PythPollInterval <= 0 || c.ExpirySweepInterval <= 0 || c.ResolverInterval <= 0 {
		return errors.New("poll intervals must be positive")
	}
	if c.JWTTTL <= 0 {
		return errors.New("JWT_TTL must be positive")
	}
	if c.Deployments.ChainID < 0 {
		return errors.New("chain id must not be negative")
	}
	return nil
}

// IsDevelopment reports whether development-only helpers may be exposed.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// ChainEnabled reports whether an RPC endpoint is configured.
func (c Config) ChainEnabled() bool {
	return c.RPCURL != ""
}

func applyDeploymentOverrides(d *Deployments) {
	if v := os.Getenv("CHAIN_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			d.ChainID = id
		}
	}
	if d.ChainID == 0 {
		// Polygon Amoy testnet
		d.ChainID = 80002
	}
	if v := os.Getenv("CONDITIONAL_TOKENS_ADDRESS"); v != "" {
		d.ConditionalTokens = v
	}
	if v := os.Getenv("CTF_EXCHANGE_ADDRESS"); v != "" {
		d.CTFExchange = v
	}
	if v := os.Getenv("PROXY_WALLET_FACTORY_ADDRESS"); v != "" {
		d.ProxyWalletFactory = v
	}
	if v := os.Getenv("COLLATERAL_ADDRESS"); v != "" {
		d.Collateral = v
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
