/**
 * @description
 * This file issues and verifies the session tokens handed out after a wallet signs
 * the login challenge.
 *
 * Key features:
 * - HS256 Sessions: Tokens issued by the backend are signed with JWT_SECRET and carry
 *   the user id (`sub`) and wallet address (`wallet`).
 * - JWKS Integration: When JWKS_URL is set, asymmetrically signed tokens from an external
 *   issuer are also accepted. keyfunc fetches, caches and refreshes the key set.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5: For signing and validating JWTs.
 * - github.com/MicahParks/keyfunc/v2: For fetching and managing the JWKS.
 */

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const Issuer = "predikt"

var ErrInvalidToken = errors.New("auth: invalid token")

// Claims are the claims of a session token.
type Claims struct {
	Wallet string `json:"wallet"`
	jwt.RegisteredClaims
}

// JWTManager signs and parses session tokens.
type JWTManager struct {
	secret []byte
	ttl    time.Duration
	jwks   *keyfunc.JWKS
	now    func() time.Time
}

func NewJWTManager(secret string, ttl time.Duration) *JWTManager {
	return &JWTManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

/**
 * @description
 * WithJWKS enables verification of externally issued tokens against the key set
 * published at jwksURL. The key set is refreshed in the background until ctx is done.
 */
func (m *JWTManager) WithJWKS(ctx context.Context, jwksURL string, logger *slog.Logger) error {
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			logger.Warn("jwks refresh failed", "url", jwksURL, "error", err)
		},
	})
	if err != nil {
		return fmt.Errorf("auth: load jwks: %w", err)
	}
	m.jwks = jwks
	return nil
}

// Issue signs a session token for a user.
func (m *JWTManager) Issue(userID uuid.UUID, wallet string) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.ttl)
	claims := Claims{
		Wallet: wallet,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (m *JWTManager) keyfunc(token *jwt.Token) (interface{}, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		return m.secret, nil
	case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA, *jwt.SigningMethodEd25519:
		if m.jwks == nil {
			return nil, fmt.Errorf("unexpected signing method %s", token.Method.Alg())
		}
		return m.jwks.Keyfunc(token)
	default:
		return nil, fmt.Errorf("unexpected signing method %s", token.Method.Alg())
	}
}

// Parse validates a token and returns its claims.
func (m *JWTManager) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, m.keyfunc,
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if _, isHMAC := token.Method.(*jwt.SigningMethodHMAC); isHMAC && claims.Issuer != Issuer {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidToken, claims.Issuer)
	}
	if claims.Wallet == "" {
		return nil, fmt.Errorf("%w: wallet claim is missing", ErrInvalidToken)
	}
	return claims, nil
}

// Close stops the background JWKS refresh.
func (m *JWTManager) Close() {
	if m.jwks != nil {
		m.jwks.EndBackground()
	}
}
