/**
 * @description
 * API keys give programmatic read access to the public market routes. A key is shown
 * to its owner once, as "<prefix>.<secret>"; only the prefix and a bcrypt hash of the
 * secret are stored.
 *
 * @dependencies
 * - golang.org/x/crypto/bcrypt: Secret hashing.
 */

package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	db "github.com/predikt/backend/internal/db"
	"golang.org/x/crypto/bcrypt"
)

const (
	APIKeyPrefix    = "pk_"
	maxKeysPerUser  = 10
	maxAPIKeyLabel  = 64
	prefixRandBytes = 6
	secretRandBytes = 24
)

// CreatedAPIKey carries the plaintext key. It is never retrievable again.
type CreatedAPIKey struct {
	db.ApiKey
	Key string `json:"key"`
}

// APIKeyService manages API keys.
type APIKeyService struct {
	store       db.Querier
	hourlyLimit int32
	cost        int
	logger      *slog.Logger
}

func NewAPIKeyService(store db.Querier, hourlyLimit int, logger *slog.Logger) *APIKeyService {
	return &APIKeyService{
		store:       store,
		hourlyLimit: int32(hourlyLimit),
		cost:        bcrypt.DefaultCost,
		logger:      logger,
	}
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// CreateKey issues a new key for userID.
func (s *APIKeyService) CreateKey(ctx context.Context, userID uuid.UUID, label string) (CreatedAPIKey, error) {
	label = strings.TrimSpace(label)
	if len(label) > maxAPIKeyLabel {
		return CreatedAPIKey{}, invalid("label", "too long")
	}
	existing, err := s.store.ListApiKeysByUser(ctx, userID)
	if err != nil {
		return CreatedAPIKey{}, err
	}
	active := 0
	for _, k := range existing {
		if !k.Revoked {
			active++
		}
	}
	if active >= maxKeysPerUser {
		return CreatedAPIKey{}, invalid("label", "too many active keys")
	}

	suffix, err := randomHex(prefixRandBytes)
	if err != nil {
		return CreatedAPIKey{}, err
	}
	secret, err := randomHex(secretRandBytes)
	if err != nil {
		return CreatedAPIKey{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
	if err != nil {
		return CreatedAPIKey{}, err
	}

	prefix := APIKeyPrefix + suffix
	key, err := s.store.CreateApiKey(ctx, db.CreateApiKeyParams{
		ID:          uuid.New(),
		UserID:      userID,
		Prefix:      prefix,
		SecretHash:  string(hash),
		Label:       label,
		HourlyLimit: s.hourlyLimit,
	})
	if err != nil {
		s.logger.Error("failed to create api key", "error", err, "user_id", userID)
		return CreatedAPIKey{}, err
	}
	s.logger.Info("api key created", "user_id", userID, "prefix", prefix)
	return CreatedAPIKey{ApiKey: key, Key: prefix + "." + secret}, nil
}

func (s *APIKeyService) ListKeys(ctx context.Context, userID uuid.UUID) ([]db.ApiKey, error) {
	return s.store.ListApiKeysByUser(ctx, userID)
}

// RevokeKey revokes one of userID's keys.
func (s *APIKeyService) RevokeKey(ctx context.Context, userID, keyID uuid.UUID) error {
	rows, err := s.store.RevokeApiKey(ctx, db.RevokeApiKeyParams{ID: keyID, UserID: userID})
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	s.logger.Info("api key revoked", "user_id", userID, "key_id", keyID)
	return nil
}

// Authenticate resolves a plaintext key to its record.
func (s *APIKeyService) Authenticate(ctx context.Context, plaintext string) (db.ApiKey, error) {
	prefix, secret, ok := strings.Cut(strings.TrimSpace(plaintext), ".")
	if !ok || !strings.HasPrefix(prefix, APIKeyPrefix) || secret == "" {
		return db.ApiKey{}, ErrInvalidAPIKey
	}
	key, err := s.store.GetApiKeyByPrefix(ctx, prefix)
	if err != nil {
		if errors.Is(notFound(err), ErrNotFound) {
			return db.ApiKey{}, ErrInvalidAPIKey
		}
		return db.ApiKey{}, err
	}
	if key.Revoked {
		return db.ApiKey{}, ErrInvalidAPIKey
	}
	if err := bcrypt.CompareHashAndPassword([]byte(key.SecretHash), []byte(secret)); err != nil {
		return db.ApiKey{}, ErrInvalidAPIKey
	}
	return key, nil
}
