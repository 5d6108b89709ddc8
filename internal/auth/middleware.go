/**
 * @description
 * This file contains the authentication middleware for the Gin server.
 *
 * Key features:
 * - Session Tokens: `RequireUser` validates the bearer token and injects the user id and
 *   wallet address into the Gin context for downstream handlers.
 * - API Keys: `RequireAPIKey` authenticates `X-API-Key` requests and applies the key's
 *   hourly quota, reporting it through the X-RateLimit-* headers.
 * - Error Handling: Returns 401 with a clear message when authentication fails and 429
 *   when a key's quota is used up.
 *
 * @dependencies
 * - github.com/gin-gonic/gin: The web framework.
 */

package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	db "github.com/predikt/backend/internal/db"
)

// GinContextKey is a custom type to avoid key collisions in the Gin context.
type GinContextKey string

const (
	UserIDKey GinContextKey = "userID"
	WalletKey GinContextKey = "wallet"
	APIKeyKey GinContextKey = "apiKey"
)

const APIKeyHeader = "X-API-Key"

// UserResolver maps the wallet of an externally issued token to a user.
type UserResolver interface {
	GetOrCreateUser(ctx context.Context, wallet string) (db.User, error)
}

// KeyAuthenticator resolves a plaintext API key.
type KeyAuthenticator interface {
	Authenticate(ctx context.Context, plaintext string) (db.ApiKey, error)
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "error", "message": message})
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

/**
 * @description
 * RequireUser creates a Gin middleware that validates session tokens.
 *
 * @param users Resolves users for externally issued tokens whose subject is not a user id.
 *        May be nil when JWKS is not configured.
 */
func RequireUser(tokens *JWTManager, users UserResolver, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			unauthorized(c, "Authorization header is required")
			return
		}
		raw, ok := bearerToken(c)
		if !ok {
			unauthorized(c, "Authorization header format must be Bearer {token}")
			return
		}

		claims, err := tokens.Parse(raw)
		if err != nil {
			unauthorized(c, "Invalid token")
			return
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			if users == nil {
				unauthorized(c, "Subject (sub) claim is missing or invalid in token")
				return
			}
			user, err := users.GetOrCreateUser(c.Request.Context(), claims.Wallet)
			if err != nil {
				logger.Error("failed to resolve token user", "error", err, "wallet", claims.Wallet)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Failed to resolve user"})
				return
			}
			userID = user.ID
		}

		c.Set(string(UserIDKey), userID)
		c.Set(string(WalletKey), claims.Wallet)
		c.Next()
	}
}

// RequireAPIKey authenticates API key requests and enforces the hourly quota.
func RequireAPIKey(keys KeyAuthenticator, limiter *RateLimiter, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		plaintext := c.GetHeader(APIKeyHeader)
		if plaintext == "" {
			unauthorized(c, APIKeyHeader+" header is required")
			return
		}
		key, err := keys.Authenticate(c.Request.Context(), plaintext)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Debug("api key rejected", "error", err)
			}
			unauthorized(c, "Invalid API key")
			return
		}

		d := limiter.Allow(key.ID, int(key.HourlyLimit))
		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
		if !d.Allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"status": "error", "message": "Hourly rate limit exceeded"})
			return
		}

		c.Set(string(APIKeyKey), key)
		c.Set(string(UserIDKey), key.UserID)
		c.Next()
	}
}

// UserID returns the authenticated user id.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	id, ok := c.Get(string(UserIDKey))
	if !ok {
		return uuid.Nil, false
	}
	userID, ok := id.(uuid.UUID)
	return userID, ok
}

// Wallet returns the authenticated wallet address, or "" for API key requests.
func Wallet(c *gin.Context) string {
	return c.GetString(string(WalletKey))
}
