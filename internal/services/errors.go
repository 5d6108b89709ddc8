package services

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Pre-defined errors shared by the services. Handlers map them to HTTP status codes.
var (
	ErrNotFound             = errors.New("resource not found")
	ErrForbidden            = errors.New("not allowed to modify this resource")
	ErrMarketNotOpen        = errors.New("market is not open for trading")
	ErrWrongMarketType      = errors.New("operation not supported for this market type")
	ErrMarketResolved       = errors.New("market is already resolved")
	ErrBadSignature         = errors.New("signature does not match the signer")
	ErrInvalidNonce         = errors.New("nonce is stale or already used")
	ErrDeadlinePassed       = errors.New("signature deadline has passed")
	ErrInsufficientPosition = errors.New("position too small for this order")
	ErrOrderNotActive       = errors.New("order is no longer active")
	ErrChallengeExpired     = errors.New("sign-in challenge expired or missing")
	ErrInvalidAPIKey        = errors.New("invalid API key")
	ErrDuplicateSwap        = errors.New("swap already recorded")
	ErrTxRecorded           = errors.New("transaction already recorded")
	ErrNoProxy              = errors.New("owner has no proxy wallet")
	ErrMarketStillOpen      = errors.New("market has not reached its end time")
	ErrAutoResolved         = errors.New("market resolves from its oracle or sports event")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// notFound maps pgx.ErrNoRows to ErrNotFound and leaves other errors alone.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
