package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	db "github.com/predikt/backend/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type staticKeys map[string]db.ApiKey

func (s staticKeys) Authenticate(_ context.Context, plaintext string) (db.ApiKey, error) {
	k, ok := s[plaintext]
	if !ok {
		return db.ApiKey{}, errors.New("unknown key")
	}
	return k, nil
}

type staticUsers struct{ id uuid.UUID }

func (s staticUsers) GetOrCreateUser(_ context.Context, wallet string) (db.User, error) {
	return db.User{ID: s.id, WalletAddress: wallet}, nil
}

func whoami(c *gin.Context) {
	id, _ := UserID(c)
	c.JSON(http.StatusOK, gin.H{"user_id": id.String(), "wallet": Wallet(c)})
}

func TestRequireUser(t *testing.T) {
	tokens := NewJWTManager("secret", time.Hour)
	r := gin.New()
	r.GET("/me", RequireUser(tokens, nil, discard), whoami)

	userID := uuid.New()
	token, _, err := tokens.Issue(userID, testWallet)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer " + token, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"garbage", "Bearer abc", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Contains(t, w.Body.String(), userID.String())
				assert.Contains(t, w.Body.String(), testWallet)
			}
		})
	}
}

func TestRequireUser_ResolvesExternalSubject(t *testing.T) {
	tokens := NewJWTManager("secret", time.Hour)
	key, err := rsaKey()
	require.NoError(t, err)
	tokens.jwks = rsaJWKS(t, "k1", key)

	signed := externalToken(t, key, "k1", "user_2abc")
	resolved := uuid.New()

	r := gin.New()
	r.GET("/me", RequireUser(tokens, staticUsers{id: resolved}, discard), whoami)
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), resolved.String())
}

func TestRequireAPIKey(t *testing.T) {
	key := db.ApiKey{ID: uuid.New(), UserID: uuid.New(), HourlyLimit: 2}
	limiter := NewRateLimiter()
	r := gin.New()
	r.GET("/public", RequireAPIKey(staticKeys{"pk_1.secret": key}, limiter, discard), whoami)

	call := func(apiKey string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/public", nil)
		if apiKey != "" {
			req.Header.Set(APIKeyHeader, apiKey)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusUnauthorized, call("").Code)
	assert.Equal(t, http.StatusUnauthorized, call("pk_2.nope").Code)

	w := call("pk_1.secret")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	assert.Contains(t, w.Body.String(), key.UserID.String())

	assert.Equal(t, http.StatusOK, call("pk_1.secret").Code)
	w = call("pk_1.secret")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
}
