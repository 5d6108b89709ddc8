package chain

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventLog(t *testing.T, contract abi.ABI, name string, address common.Address, topics []common.Hash, args ...any) *types.Log {
	t.Helper()
	ev, ok := contract.Events[name]
	require.True(t, ok, name)
	data, err := ev.Inputs.NonIndexed().Pack(args...)
	require.NoError(t, err)
	return &types.Log{Address: address, Topics: append([]common.Hash{ev.ID}, topics...), Data: data}
}

func addressTopic(a common.Address) common.Hash {
	return common.BytesToHash(a.Bytes())
}

func withReceipt(backend *fakeBackend, hash common.Hash, status uint64, logs ...*types.Log) {
	if backend.receipts == nil {
		backend.receipts = map[common.Hash]*types.Receipt{}
	}
	backend.receipts[hash] = &types.Receipt{Status: status, TxHash: hash, Logs: logs}
}

func TestPoolEvent_Buy(t *testing.T) {
	backend := &fakeBackend{}
	c := newTestClient(t, backend)
	hash := common.HexToHash("0xb1")
	other := common.HexToAddress("0x9999999999999999999999999999999999999999")

	withReceipt(backend, hash, types.ReceiptStatusSuccessful,
		// same event from a different contract must be skipped
		eventLog(t, poolABI, "FPMMBuy", other, []common.Hash{addressTopic(owner), common.BigToHash(big.NewInt(0))},
			big.NewInt(5), big.NewInt(1), big.NewInt(7)),
		eventLog(t, poolABI, "FPMMBuy", pool, []common.Hash{addressTopic(owner), common.BigToHash(big.NewInt(1))},
			big.NewInt(100), big.NewInt(2), big.NewInt(180)),
	)

	ev, err := c.PoolEvent(context.Background(), hash, pool)
	require.NoError(t, err)
	assert.Equal(t, PoolBuy, ev.Kind)
	assert.Equal(t, pool, ev.Pool)
	assert.Equal(t, owner, ev.Account)
	assert.Equal(t, int64(1), ev.Outcome)
	assert.Equal(t, "100", ev.Collateral.String())
	assert.Equal(t, "2", ev.Fee.String())
	assert.Equal(t, "180", ev.Tokens.String())
}

func TestPoolEvent_FundingRemoved(t *testing.T) {
	backend := &fakeBackend{}
	c := newTestClient(t, backend)
	hash := common.HexToHash("0xb2")

	withReceipt(backend, hash, types.ReceiptStatusSuccessful,
		eventLog(t, poolABI, "FPMMFundingRemoved", pool, []common.Hash{addressTopic(owner)},
			[]*big.Int{big.NewInt(40), big.NewInt(60)}, big.NewInt(3), big.NewInt(50)),
	)

	ev, err := c.PoolEvent(context.Background(), hash, pool)
	require.NoError(t, err)
	assert.Equal(t, PoolFundingRemoved, ev.Kind)
	require.Len(t, ev.Amounts, 2)
	assert.Equal(t, "60", ev.Amounts[1].String())
	assert.Equal(t, "50", ev.Shares.String())
}

func TestPoolEvent_Failures(t *testing.T) {
	backend := &fakeBackend{}
	c := newTestClient(t, backend)

	_, err := c.PoolEvent(context.Background(), common.HexToHash("0xc0"), pool)
	assert.ErrorIs(t, err, ErrTxNotFound)

	reverted := common.HexToHash("0xc1")
	withReceipt(backend, reverted, types.ReceiptStatusFailed)
	_, err = c.PoolEvent(context.Background(), reverted, pool)
	assert.ErrorIs(t, err, ErrTxFailed)

	unrelated := common.HexToHash("0xc2")
	withReceipt(backend, unrelated, types.ReceiptStatusSuccessful,
		eventLog(t, poolABI, "FPMMSell", factory, []common.Hash{addressTopic(owner), common.BigToHash(big.NewInt(0))},
			big.NewInt(10), big.NewInt(1), big.NewInt(12)),
	)
	_, err = c.PoolEvent(context.Background(), unrelated, pool)
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestPositionEvent_SplitAndMerge(t *testing.T) {
	backend := &fakeBackend{}
	c := newTestClient(t, backend)
	ctf := common.HexToAddress("0x4444444444444444444444444444444444444444")
	collateral := common.HexToAddress("0x5555555555555555555555555555555555555555")
	condition := common.HexToHash("0xab01")
	partition := []*big.Int{big.NewInt(1), big.NewInt(2)}

	split := common.HexToHash("0xd1")
	withReceipt(backend, split, types.ReceiptStatusSuccessful,
		eventLog(t, ctfABI, "PositionSplit", ctf, []common.Hash{addressTopic(owner), {}, condition},
			collateral, partition, big.NewInt(25_000_000)),
	)
	ev, err := c.PositionEvent(context.Background(), split, ctf)
	require.NoError(t, err)
	assert.Equal(t, PositionSplit, ev.Kind)
	assert.Equal(t, owner, ev.Stakeholder)
	assert.Equal(t, condition, ev.ConditionID)
	assert.Equal(t, "25000000", ev.Amount.String())

	merge := common.HexToHash("0xd2")
	withReceipt(backend, merge, types.ReceiptStatusSuccessful,
		eventLog(t, ctfABI, "PositionsMerge", ctf, []common.Hash{addressTopic(owner), {}, condition},
			collateral, partition, big.NewInt(1)),
	)
	ev, err = c.PositionEvent(context.Background(), merge, ctf)
	require.NoError(t, err)
	assert.Equal(t, PositionMerge, ev.Kind)

	_, err = c.PositionEvent(context.Background(), merge, pool)
	assert.ErrorIs(t, err, ErrEventNotFound)
}
