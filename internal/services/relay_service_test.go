package services

import (
	"context"
	"errors"
	"math/big"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/predikt/backend/internal/ctf"
	"github.com/predikt/backend/internal/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testProxy = "0x7c2A57a7bD46b3F3Ab0E7a5D0C2E9F1a3B4c5D6e"

func newRelayFixture(t *testing.T) (*dbtest.MemStore, *RelayService, *fakeChain, wallet) {
	t.Helper()
	store := dbtest.NewMemStore()
	client := newFakeChain()
	owner := newWallet(t)
	client.proxies[common.HexToAddress(owner.address)] = common.HexToAddress(testProxy)
	return store, NewRelayService(store, client, testChainID, testCollateral, testLogger()), client, owner
}

func (w wallet) execute(t *testing.T, nonce int64, deadline time.Time) RelayInput {
	t.Helper()
	e := ctf.Execute{
		Owner:    w.address,
		To:       testCTF,
		Value:    "0",
		Data:     "0xdeadbeef",
		Nonce:    strconv.FormatInt(nonce, 10),
		Deadline: strconv.FormatInt(deadline.Unix(), 10),
	}
	domain := ctf.Domain(ctf.ProxyWalletDomainName, testChainID, common.HexToAddress(testProxy).Hex())
	return RelayInput{Execute: e, Signature: w.signTypedData(t, e.TypedData(domain))}
}

func TestRelay_SubmitsAndConsumesNonce(t *testing.T) {
	_, svc, client, owner := newRelayFixture(t)
	ctx := context.Background()
	deadline := time.Now().Add(time.Hour)

	res, err := svc.Relay(ctx, owner.address, owner.execute(t, 0, deadline))
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testProxy).Hex(), res.Proxy)
	assert.EqualValues(t, 0, res.Nonce)

	require.Len(t, client.executed, 1)
	call := client.executed[0]
	assert.Equal(t, common.HexToAddress(testCTF), call.To)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, call.Data)
	assert.Equal(t, big.NewInt(deadline.Unix()), call.Deadline)
	require.Len(t, call.Signature, 65)
	assert.Contains(t, []byte{27, 28}, call.Signature[64], "contracts expect v in {27, 28}")

	nonce, err := svc.Nonce(ctx, owner.address)
	require.NoError(t, err)
	assert.EqualValues(t, 1, nonce)

	_, err = svc.Relay(ctx, owner.address, owner.execute(t, 0, deadline))
	assert.ErrorIs(t, err, ErrInvalidNonce, "a nonce is only good once")
	assert.Len(t, client.executed, 1)
}

func TestRelay_FailedSubmissionKeepsNonce(t *testing.T) {
	_, svc, client, owner := newRelayFixture(t)
	ctx := context.Background()
	client.executeErr = errors.New("nonce too low")

	_, err := svc.Relay(ctx, owner.address, owner.execute(t, 0, time.Now().Add(time.Hour)))
	require.Error(t, err)

	nonce, err := svc.Nonce(ctx, owner.address)
	require.NoError(t, err)
	assert.Zero(t, nonce)

	client.executeErr = nil
	_, err = svc.Relay(ctx, owner.address, owner.execute(t, 0, time.Now().Add(time.Hour)))
	assert.NoError(t, err)
}

func TestRelay_Rejections(t *testing.T) {
	_, svc, client, owner := newRelayFixture(t)
	ctx := context.Background()
	other := newWallet(t)

	_, err := svc.Relay(ctx, owner.address, owner.execute(t, 0, time.Now().Add(-time.Minute)))
	assert.ErrorIs(t, err, ErrDeadlinePassed)

	_, err = svc.Relay(ctx, other.address, owner.execute(t, 0, time.Now().Add(time.Hour)))
	assert.ErrorIs(t, err, ErrForbidden)

	forged := owner.execute(t, 0, time.Now().Add(time.Hour))
	forged.Execute.Data = "0xfeedface"
	_, err = svc.Relay(ctx, owner.address, forged)
	assert.ErrorIs(t, err, ErrBadSignature)

	_, err = svc.Relay(ctx, other.address, other.execute(t, 0, time.Now().Add(time.Hour)))
	assert.ErrorIs(t, err, ErrNoProxy)

	assert.Empty(t, client.executed)
}

func TestBalanceAndDeploy(t *testing.T) {
	_, svc, client, owner := newRelayFixture(t)
	ctx := context.Background()
	client.balances[common.HexToAddress(testProxy)] = big.NewInt(12_500_000)

	bal, err := svc.Balance(ctx, owner.address)
	require.NoError(t, err)
	assert.True(t, bal.Balance.Equal(dec("12.5")))

	_, err = svc.DeployProxy(ctx, owner.address)
	assert.True(t, IsValidation(err), "already deployed")

	fresh := newWallet(t)
	_, err = svc.Balance(ctx, fresh.address)
	assert.ErrorIs(t, err, ErrNoProxy)

	hash, err := svc.DeployProxy(ctx, fresh.address)
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.Equal(t, []common.Address{common.HexToAddress(fresh.address)}, client.deployed)

	_, err = svc.Balance(ctx, "not-an-address")
	assert.True(t, IsValidation(err))
}
