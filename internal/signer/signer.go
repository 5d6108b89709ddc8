/**
 * @description
 * This file contains the core cryptographic logic for server-held keys.
 * It is responsible for performing EIP-712 compliant typed data signing and EIP-191
 * personal message signing with keys fetched from a Vault.
 *
 * Key features:
 * - EIP-712 Signing: Signs exchange orders and proxy wallet meta-transactions.
 * - Go-Ethereum Integration: Leverages `go-ethereum` for all cryptographic operations.
 * - Vault Indirection: Callers name a key id; the private key never leaves this package.
 *
 * @dependencies
 * - github.com/ethereum/go-ethereum/crypto: For key management and signing.
 * - github.com/ethereum/go-ethereum/signer/core/apitypes: For EIP-712 data structures.
 */

package signer

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/predikt/backend/internal/ctf"
	"github.com/predikt/backend/internal/signer/vault"
)

var ErrInvalidKey = errors.New("invalid private key format")

// Signer is responsible for cryptographic operations.
type Signer struct {
	vault  vault.Vault
	logger *slog.Logger
}

/**
 * @description
 * NewSigner creates a new instance of the Signer.
 *
 * @param v The vault that resolves key ids to private keys.
 * @param logger A structured logger for logging cryptographic operations.
 * @returns A pointer to a new Signer instance.
 */
func NewSigner(v vault.Vault, logger *slog.Logger) *Signer {
	return &Signer{
		vault:  v,
		logger: logger,
	}
}

// ParsePrivateKey accepts a hex key with or without the 0x prefix.
func ParsePrivateKey(privateKeyHex string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, ErrInvalidKey
	}
	return key, nil
}

func (s *Signer) key(ctx context.Context, keyID string) (*ecdsa.PrivateKey, error) {
	hexKey, err := s.vault.GetPrivateKey(ctx, keyID)
	if err != nil {
		return nil, err
	}
	key, err := ParsePrivateKey(hexKey)
	if err != nil {
		s.logger.Error("failed to parse private key from vault", "key_id", keyID)
		return nil, err
	}
	return key, nil
}

// Address returns the address of the named key.
func (s *Signer) Address(ctx context.Context, keyID string) (common.Address, error) {
	key, err := s.key(ctx, keyID)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

// PrivateKey exposes the named key to the chain transactor.
func (s *Signer) PrivateKey(ctx context.Context, keyID string) (*ecdsa.PrivateKey, error) {
	return s.key(ctx, keyID)
}

func signDigest(digest []byte, key *ecdsa.PrivateKey) (string, error) {
	signatureBytes, err := crypto.Sign(digest, key)
	if err != nil {
		return "", fmt.Errorf("sign digest: %w", err)
	}
	if len(signatureBytes) != crypto.SignatureLength {
		return "", errors.New("signature generated with incorrect length")
	}
	// crypto.Sign returns V as 0 or 1; wallets and contracts expect 27 or 28.
	signatureBytes[64] += 27
	return hexutil.Encode(signatureBytes), nil
}

/**
 * @description
 * SignTypedData signs an EIP-712 typed data payload with the named key.
 *
 * @param keyID The vault key id.
 * @param typedData The EIP-712 typed data.
 * @returns The resulting signature as a 0x-prefixed hex string with V in {27, 28}.
 */
func (s *Signer) SignTypedData(ctx context.Context, keyID string, typedData apitypes.TypedData) (string, error) {
	key, err := s.key(ctx, keyID)
	if err != nil {
		return "", err
	}
	digest, err := ctf.HashTypedData(typedData)
	if err != nil {
		s.logger.Error("failed to hash EIP-712 payload", "error", err)
		return "", err
	}
	s.logger.Debug("generated EIP-712 signing digest", "digest_hex", hexutil.Encode(digest))

	signature, err := signDigest(digest, key)
	if err != nil {
		s.logger.Error("failed to sign the digest", "error", err)
		return "", err
	}
	s.logger.Info("signed EIP-712 payload", "key_id", keyID, "primary_type", typedData.PrimaryType)
	return signature, nil
}

// SignTypedDataJSON decodes an EIP-712 JSON payload and signs it.
func (s *Signer) SignTypedDataJSON(ctx context.Context, keyID string, payloadJSON []byte) (string, error) {
	var typedData apitypes.TypedData
	if err := json.Unmarshal(payloadJSON, &typedData); err != nil {
		s.logger.Warn("failed to unmarshal EIP-712 payload JSON", "error", err)
		return "", errors.New("invalid EIP-712 payload JSON")
	}
	return s.SignTypedData(ctx, keyID, typedData)
}

// SignPersonal signs message with the EIP-191 personal_sign prefix.
func (s *Signer) SignPersonal(ctx context.Context, keyID, message string) (string, error) {
	key, err := s.key(ctx, keyID)
	if err != nil {
		return "", err
	}
	return signDigest(accounts.TextHash([]byte(message)), key)
}

/**
 * @description
 * VerifySignature verifies an EIP-712 signature against an expected address.
 *
 * @param expected The address that should have signed.
 * @param typedData The EIP-712 typed data payload that was signed.
 * @param signatureHex The signature to verify, as a hexadecimal string.
 * @returns true if the signature is valid, false otherwise.
 */
func (s *Signer) VerifySignature(expected common.Address, typedData apitypes.TypedData, signatureHex string) (bool, error) {
	err := ctf.VerifyTypedData(typedData, signatureHex, expected)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ctf.ErrSignerMismatch):
		return false, nil
	default:
		return false, err
	}
}
