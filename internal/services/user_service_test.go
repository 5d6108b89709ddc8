package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/predikt/backend/internal/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIssuer struct {
	issued []uuid.UUID
}

func (f *fakeIssuer) Issue(userID uuid.UUID, wallet string) (string, time.Time, error) {
	f.issued = append(f.issued, userID)
	return "token-for-" + wallet, time.Now().Add(time.Hour), nil
}

func newUserFixture(t *testing.T) (*UserService, *fakeIssuer) {
	t.Helper()
	issuer := &fakeIssuer{}
	return NewUserService(dbtest.NewMemStore(), issuer, testLogger()), issuer
}

func TestChallengeMessage(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)
	msg := ChallengeMessage("0xAbC", "n-1", at)
	assert.Equal(t, "Sign in to Predikt\n\nWallet: 0xAbC\nNonce: n-1\nExpires: 2025-03-01T12:30:00Z", msg)
}

func TestLogin(t *testing.T) {
	svc, issuer := newUserFixture(t)
	ctx := context.Background()
	w := newWallet(t)

	challenge, err := svc.CreateChallenge(ctx, w.address)
	require.NoError(t, err)
	assert.Equal(t, w.address, challenge.Address)
	assert.WithinDuration(t, time.Now().Add(ChallengeTTL), challenge.ExpiresAt, 2*time.Second)

	session, err := svc.Login(ctx, w.address, w.signPersonal(t, challenge.Message))
	require.NoError(t, err)
	assert.Equal(t, "token-for-"+w.address, session.Token)
	assert.Equal(t, w.address, session.User.WalletAddress)
	assert.Equal(t, []uuid.UUID{session.User.ID}, issuer.issued)

	_, err = svc.Login(ctx, w.address, w.signPersonal(t, challenge.Message))
	assert.ErrorIs(t, err, ErrChallengeExpired, "challenges are single use")

	again, err := svc.CreateChallenge(ctx, w.address)
	require.NoError(t, err)
	second, err := svc.Login(ctx, w.address, w.signPersonal(t, again.Message))
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, second.User.ID, "the same wallet maps to the same user")

	user, err := svc.GetUserByID(ctx, session.User.ID)
	require.NoError(t, err)
	assert.Equal(t, w.address, user.WalletAddress)

	_, err = svc.GetUserByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLogin_Rejections(t *testing.T) {
	svc, issuer := newUserFixture(t)
	ctx := context.Background()
	w := newWallet(t)
	impostor := newWallet(t)

	_, err := svc.Login(ctx, w.address, "0x00")
	assert.ErrorIs(t, err, ErrChallengeExpired, "no challenge issued")

	challenge, err := svc.CreateChallenge(ctx, w.address)
	require.NoError(t, err)

	_, err = svc.Login(ctx, w.address, impostor.signPersonal(t, challenge.Message))
	assert.ErrorIs(t, err, ErrBadSignature)

	svc.now = func() time.Time { return time.Now().Add(ChallengeTTL + time.Minute) }
	_, err = svc.Login(ctx, w.address, w.signPersonal(t, challenge.Message))
	assert.ErrorIs(t, err, ErrChallengeExpired)

	_, err = svc.CreateChallenge(ctx, "not-a-wallet")
	assert.True(t, IsValidation(err))
	assert.Empty(t, issuer.issued)
}

func TestLogin_ConcurrentRedemptionSucceedsOnce(t *testing.T) {
	svc, issuer := newUserFixture(t)
	ctx := context.Background()
	w := newWallet(t)

	challenge, err := svc.CreateChallenge(ctx, w.address)
	require.NoError(t, err)
	sig := w.signPersonal(t, challenge.Message)

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := range attempts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Login(ctx, w.address, sig)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrChallengeExpired)
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, issuer.issued, 1)
}

func TestLogin_BadSignatureKeepsChallenge(t *testing.T) {
	svc, _ := newUserFixture(t)
	ctx := context.Background()
	w, impostor := newWallet(t), newWallet(t)

	challenge, err := svc.CreateChallenge(ctx, w.address)
	require.NoError(t, err)

	_, err = svc.Login(ctx, w.address, impostor.signPersonal(t, challenge.Message))
	require.ErrorIs(t, err, ErrBadSignature)

	_, err = svc.Login(ctx, w.address, w.signPersonal(t, challenge.Message))
	assert.NoError(t, err, "a rejected attempt does not burn the owner's challenge")
}
