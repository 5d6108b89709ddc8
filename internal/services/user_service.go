/**
 * @description
 * This file contains the business logic for user-related operations.
 * Users are identified by their wallet address and sign in by signing a one-time
 * challenge message with it (EIP-191 personal_sign).
 *
 * Key features:
 * - Separation of Concerns: Keeps business logic separate from the HTTP transport layer.
 * - Database Abstraction: Interacts with the database via the `db.Store` interface,
 *   making it easy to mock for testing.
 * - Wallet Sign-in: Challenges expire after ChallengeTTL and are deleted once used.
 */

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/predikt/backend/internal/ctf"
	db "github.com/predikt/backend/internal/db"
)

// ChallengeTTL is how long a sign-in challenge can be answered.
const ChallengeTTL = 5 * time.Minute

// TokenIssuer creates session tokens for signed-in users.
type TokenIssuer interface {
	Issue(userID uuid.UUID, wallet string) (token string, expiresAt time.Time, err error)
}

// Challenge is the message a wallet must sign to log in.
type Challenge struct {
	Address   string    `json:"address"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Session is returned by a successful login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      db.User   `json:"user"`
}

// UserService provides methods for user-related business logic.
type UserService struct {
	store  db.Store
	tokens TokenIssuer
	logger *slog.Logger
	now    func() time.Time
}

/**
 * @description
 * NewUserService creates a new instance of the UserService.
 *
 * @param store The database store; logins consume challenges in a transaction.
 * @param tokens Issues the session token after a successful login.
 * @param logger A structured logger for logging service-level events.
 * @returns A pointer to a new UserService instance.
 */
func NewUserService(store db.Store, tokens TokenIssuer, logger *slog.Logger) *UserService {
	return &UserService{
		store:  store,
		tokens: tokens,
		logger: logger,
		now:    time.Now,
	}
}

// ChallengeMessage is the exact text signed for a challenge.
func ChallengeMessage(address, nonce string, expiresAt time.Time) string {
	return fmt.Sprintf("Sign in to Predikt\n\nWallet: %s\nNonce: %s\nExpires: %s",
		address, nonce, expiresAt.UTC().Format(time.RFC3339))
}

/**
 * @description
 * CreateChallenge stores a fresh nonce for address, replacing any previous one.
 *
 * @param address The wallet address that will sign the challenge.
 * @returns The message to sign and its expiry.
 */
func (s *UserService) CreateChallenge(ctx context.Context, address string) (Challenge, error) {
	wallet, err := ctf.NormalizeAddress(address)
	if err != nil {
		return Challenge{}, invalid("address", err.Error())
	}

	nonce := uuid.NewString()
	expiresAt := s.now().UTC().Add(ChallengeTTL).Truncate(time.Second)
	if err := s.store.UpsertAuthChallenge(ctx, db.UpsertAuthChallengeParams{
		Address:   wallet,
		Nonce:     nonce,
		ExpiresAt: expiresAt,
	}); err != nil {
		s.logger.Error("failed to store auth challenge", "error", err, "address", wallet)
		return Challenge{}, err
	}

	return Challenge{
		Address:   wallet,
		Message:   ChallengeMessage(wallet, nonce, expiresAt),
		ExpiresAt: expiresAt,
	}, nil
}

var errExpiredChallenge = errors.New("auth challenge expired")

/**
 * @description
 * Login verifies a signed challenge and returns a session for the wallet,
 * creating the user on first login.
 *
 * @notes
 * - A challenge can be used once. It is deleted before the token is issued.
 */
func (s *UserService) Login(ctx context.Context, address, signature string) (Session, error) {
	wallet, err := ctf.NormalizeAddress(address)
	if err != nil {
		return Session{}, invalid("address", err.Error())
	}

	// The challenge is deleted and verified in one transaction. A concurrent
	// login for the same wallet blocks on the row and then finds nothing; a
	// rejected signature rolls the delete back.
	err = s.store.ExecTx(ctx, func(q db.Querier) error {
		challenge, err := q.ConsumeAuthChallenge(ctx, wallet)
		if err != nil {
			if errors.Is(notFound(err), ErrNotFound) {
				return ErrChallengeExpired
			}
			return err
		}
		if !challenge.ExpiresAt.After(s.now()) {
			return errExpiredChallenge
		}

		message := ChallengeMessage(wallet, challenge.Nonce, challenge.ExpiresAt)
		signer, err := ctf.RecoverPersonalSigner(message, signature)
		if err != nil || signer.Hex() != wallet {
			s.logger.Warn("login signature rejected", "address", wallet)
			return ErrBadSignature
		}
		return nil
	})
	if errors.Is(err, errExpiredChallenge) {
		// expired challenges are dropped for good
		if _, derr := s.store.ConsumeAuthChallenge(ctx, wallet); derr != nil && !errors.Is(notFound(derr), ErrNotFound) {
			s.logger.Warn("failed to delete expired challenge", "address", wallet, "error", derr)
		}
		return Session{}, ErrChallengeExpired
	}
	if err != nil {
		return Session{}, err
	}

	user, err := s.GetOrCreateUser(ctx, wallet)
	if err != nil {
		return Session{}, err
	}
	token, expiresAt, err := s.tokens.Issue(user.ID, user.WalletAddress)
	if err != nil {
		s.logger.Error("failed to issue session token", "error", err, "user_id", user.ID)
		return Session{}, err
	}

	s.logger.Info("user signed in", "user_id", user.ID, "address", wallet)
	return Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// GetOrCreateUser returns the user owning wallet, creating it when missing.
func (s *UserService) GetOrCreateUser(ctx context.Context, wallet string) (db.User, error) {
	user, err := s.store.UpsertUser(ctx, db.UpsertUserParams{ID: uuid.New(), WalletAddress: wallet})
	if err != nil {
		s.logger.Error("failed to upsert user", "error", err, "address", wallet)
		return db.User{}, err
	}
	return user, nil
}

/**
 * @description
 * GetUserByID retrieves an existing user from the database by id.
 *
 * @param ctx The context for the database operation.
 * @param id The user's id, taken from the session token.
 * @returns The user record or ErrNotFound.
 */
func (s *UserService) GetUserByID(ctx context.Context, id uuid.UUID) (db.User, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return db.User{}, notFound(err)
	}
	return user, nil
}
