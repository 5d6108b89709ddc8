package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	ErrTxNotFound    = errors.New("chain: transaction is not mined")
	ErrTxFailed      = errors.New("chain: transaction reverted")
	ErrEventNotFound = errors.New("chain: transaction emitted no matching event")
)

type PoolEventKind string

const (
	PoolBuy            PoolEventKind = "buy"
	PoolSell           PoolEventKind = "sell"
	PoolFundingAdded   PoolEventKind = "funding_added"
	PoolFundingRemoved PoolEventKind = "funding_removed"
)

// PoolEvent is an AMM pool event read from a successful transaction receipt.
// Amounts are in base units. Outcome is the outcome index (0 YES, 1 NO) for
// buys and sells.
type PoolEvent struct {
	Kind    PoolEventKind
	Pool    common.Address
	Account common.Address // buyer, seller or funder
	Outcome int64

	// buy: investment including fee; sell: collateral returned to the seller
	Collateral *big.Int
	Fee        *big.Int
	Tokens     *big.Int

	// funding events: per-outcome token amounts and LP shares minted or burnt
	Amounts []*big.Int
	Shares  *big.Int
}

type PositionEventKind string

const (
	PositionSplit PositionEventKind = "split"
	PositionMerge PositionEventKind = "merge"
)

// PositionEvent is a ConditionalTokens split or merge read from a successful receipt.
type PositionEvent struct {
	Kind        PositionEventKind
	Stakeholder common.Address
	ConditionID common.Hash
	Amount      *big.Int
}

func (c *EthClient) receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	r, err := c.backend.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, ErrTxNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chain: receipt: %w", err)
	}
	if r.Status != types.ReceiptStatusSuccessful {
		return nil, ErrTxFailed
	}
	return r, nil
}

// PoolEvent returns the first swap or funding event pool emitted in the
// transaction. Logs from any other address are ignored.
func (c *EthClient) PoolEvent(ctx context.Context, hash common.Hash, pool common.Address) (PoolEvent, error) {
	r, err := c.receipt(ctx, hash)
	if err != nil {
		return PoolEvent{}, err
	}
	for _, l := range r.Logs {
		if l.Address != pool || len(l.Topics) == 0 {
			continue
		}
		ev, ok, err := decodePoolLog(l)
		if err != nil {
			return PoolEvent{}, err
		}
		if ok {
			return ev, nil
		}
	}
	return PoolEvent{}, ErrEventNotFound
}

// PositionEvent returns the first split or merge the ConditionalTokens
// contract at ctf emitted in the transaction.
func (c *EthClient) PositionEvent(ctx context.Context, hash common.Hash, ctf common.Address) (PositionEvent, error) {
	r, err := c.receipt(ctx, hash)
	if err != nil {
		return PositionEvent{}, err
	}
	for _, l := range r.Logs {
		if l.Address != ctf || len(l.Topics) == 0 {
			continue
		}
		ev, ok, err := decodePositionLog(l)
		if err != nil {
			return PositionEvent{}, err
		}
		if ok {
			return ev, nil
		}
	}
	return PositionEvent{}, ErrEventNotFound
}

func unpackLog(contract abi.ABI, l *types.Log, topics int) (*abi.Event, map[string]any, error) {
	event, err := contract.EventByID(l.Topics[0])
	if err != nil {
		return nil, nil, nil
	}
	if len(l.Topics) != topics {
		return nil, nil, fmt.Errorf("chain: %s: expected %d topics, got %d", event.Name, topics, len(l.Topics))
	}
	vals := map[string]any{}
	if err := event.Inputs.UnpackIntoMap(vals, l.Data); err != nil {
		return nil, nil, fmt.Errorf("chain: %s: unpack: %w", event.Name, err)
	}
	return event, vals, nil
}

func topicCount(contract abi.ABI, topic common.Hash) int {
	event, err := contract.EventByID(topic)
	if err != nil {
		return 0
	}
	n := 1
	for _, in := range event.Inputs {
		if in.Indexed {
			n++
		}
	}
	return n
}

func decodePoolLog(l *types.Log) (PoolEvent, bool, error) {
	event, vals, err := unpackLog(poolABI, l, topicCount(poolABI, l.Topics[0]))
	if event == nil || err != nil {
		return PoolEvent{}, false, err
	}

	ev := PoolEvent{Pool: l.Address, Account: common.BytesToAddress(l.Topics[1].Bytes())}
	switch event.Name {
	case "FPMMBuy":
		ev.Kind = PoolBuy
		ev.Outcome = new(big.Int).SetBytes(l.Topics[2].Bytes()).Int64()
		ev.Collateral = vals["investmentAmount"].(*big.Int)
		ev.Fee = vals["feeAmount"].(*big.Int)
		ev.Tokens = vals["outcomeTokensBought"].(*big.Int)
	case "FPMMSell":
		ev.Kind = PoolSell
		ev.Outcome = new(big.Int).SetBytes(l.Topics[2].Bytes()).Int64()
		ev.Collateral = vals["returnAmount"].(*big.Int)
		ev.Fee = vals["feeAmount"].(*big.Int)
		ev.Tokens = vals["outcomeTokensSold"].(*big.Int)
	case "FPMMFundingAdded":
		ev.Kind = PoolFundingAdded
		ev.Amounts = vals["amountsAdded"].([]*big.Int)
		ev.Shares = vals["sharesMinted"].(*big.Int)
	case "FPMMFundingRemoved":
		ev.Kind = PoolFundingRemoved
		ev.Amounts = vals["amountsRemoved"].([]*big.Int)
		ev.Shares = vals["sharesBurnt"].(*big.Int)
	default:
		return PoolEvent{}, false, nil
	}
	return ev, true, nil
}

func decodePositionLog(l *types.Log) (PositionEvent, bool, error) {
	event, vals, err := unpackLog(ctfABI, l, topicCount(ctfABI, l.Topics[0]))
	if event == nil || err != nil {
		return PositionEvent{}, false, err
	}

	var kind PositionEventKind
	switch event.Name {
	case "PositionSplit":
		kind = PositionSplit
	case "PositionsMerge":
		kind = PositionMerge
	default:
		return PositionEvent{}, false, nil
	}
	ev := PositionEvent{
		Kind:        kind,
		Stakeholder: common.BytesToAddress(l.Topics[1].Bytes()),
		ConditionID: l.Topics[3],
		Amount:      vals["amount"].(*big.Int),
	}
	return ev, true, nil
}
