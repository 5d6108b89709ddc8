/**
 * @description
 * This file defines the abstraction for retrieving secrets, such as private keys.
 * The `Vault` interface decouples signing from where keys are stored.
 *
 * Key features:
 * - Interface-based Design: The `Vault` interface allows interchangeable secret
 *   backends (a static map in development, a secret manager in production).
 * - Static Implementation: `StaticVault` serves keys loaded from configuration.
 */

package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Key ids used by the backend.
const (
	RelayerKey = "relayer"
	// DevKey signs payloads for the development-only signing endpoint.
	DevKey = "dev"
)

var ErrKeyNotFound = errors.New("vault: key not found")

// Vault defines the interface for a secret store.
type Vault interface {
	// GetPrivateKey retrieves the hex private key stored under keyID.
	GetPrivateKey(ctx context.Context, keyID string) (string, error)
}

// StaticVault holds keys supplied at start-up.
type StaticVault struct {
	keys   map[string]string
	logger *slog.Logger
}

/**
 * @description
 * NewStaticVault creates a vault over a fixed set of keys. Empty values are skipped.
 *
 * @param keys Key id to hex private key.
 * @param logger A structured logger for logging vault-related events.
 */
func NewStaticVault(keys map[string]string, logger *slog.Logger) *StaticVault {
	v := &StaticVault{keys: make(map[string]string, len(keys)), logger: logger}
	for id, key := range keys {
		if key != "" {
			v.keys[id] = key
		}
	}
	logger.Info("initialized static vault", "keys", len(v.keys))
	return v
}

// GetPrivateKey returns ErrKeyNotFound when keyID was not configured.
func (v *StaticVault) GetPrivateKey(ctx context.Context, keyID string) (string, error) {
	key, ok := v.keys[keyID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, keyID)
	}
	v.logger.Debug("retrieving private key from vault", "key_id", keyID)
	return key, nil
}

// Has reports whether keyID is configured.
func (v *StaticVault) Has(keyID string) bool {
	_, ok := v.keys[keyID]
	return ok
}
