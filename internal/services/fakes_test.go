package services

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/predikt/backend/internal/chain"
	"github.com/predikt/backend/internal/espn"
	"github.com/predikt/backend/internal/pyth"
)

type fakeChain struct {
	mu sync.Mutex

	reserves   map[common.Address][2]*big.Int
	balances   map[common.Address]*big.Int
	proxies    map[common.Address]common.Address
	executeErr error
	executed   []chain.ExecuteCall
	deployed   []common.Address

	poolEvents     map[common.Hash]chain.PoolEvent
	positionEvents map[common.Hash]chain.PositionEvent
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		reserves: map[common.Address][2]*big.Int{},
		balances: map[common.Address]*big.Int{},
		proxies:  map[common.Address]common.Address{},

		poolEvents:     map[common.Hash]chain.PoolEvent{},
		positionEvents: map[common.Hash]chain.PositionEvent{},
	}
}

var _ chain.Client = (*fakeChain)(nil)

func (c *fakeChain) GetReserves(_ context.Context, pool common.Address) (*big.Int, *big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.reserves[pool]
	if !ok {
		return nil, nil, errors.New("execution reverted")
	}
	return r[0], r[1], nil
}

func (c *fakeChain) BalanceOf(_ context.Context, _, account common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.balances[account]; ok {
		return b, nil
	}
	return big.NewInt(0), nil
}

func (c *fakeChain) ProxyFor(_ context.Context, owner common.Address) (common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.proxies[owner], nil
}

func (c *fakeChain) DeployProxy(_ context.Context, owner common.Address) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deployed = append(c.deployed, owner)
	return common.HexToHash("0xd1"), nil
}

func (c *fakeChain) Execute(_ context.Context, _ common.Address, call chain.ExecuteCall) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.executeErr != nil {
		return common.Hash{}, c.executeErr
	}
	c.executed = append(c.executed, call)
	return common.BigToHash(big.NewInt(int64(len(c.executed)))), nil
}

func (c *fakeChain) PoolEvent(_ context.Context, hash common.Hash, pool common.Address) (chain.PoolEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ev, ok := c.poolEvents[hash]
	if !ok || ev.Pool != pool {
		return chain.PoolEvent{}, chain.ErrEventNotFound
	}
	return ev, nil
}

func (c *fakeChain) PositionEvent(_ context.Context, hash common.Hash, _ common.Address) (chain.PositionEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ev, ok := c.positionEvents[hash]
	if !ok {
		return chain.PositionEvent{}, chain.ErrEventNotFound
	}
	return ev, nil
}

func (c *fakeChain) RelayerAddress() common.Address {
	return common.HexToAddress("0x00000000000000000000000000000000000000AA")
}

type fakePrices struct {
	prices []pyth.Price
	err    error
	calls  int
}

func (f *fakePrices) Latest(_ context.Context, _ []string) ([]pyth.Price, error) {
	f.calls++
	return f.prices, f.err
}

type fakeSports struct {
	competitions map[string]*espn.Competition
	boards       map[string]*espn.Scoreboard
	calls        int
}

func (f *fakeSports) Competition(_ context.Context, ref espn.EventRef) (*espn.Competition, error) {
	f.calls++
	c, ok := f.competitions[ref.String()]
	if !ok {
		return nil, espn.ErrEventNotFound
	}
	return c, nil
}

func (f *fakeSports) Scoreboard(_ context.Context, sport, league string) (*espn.Scoreboard, error) {
	f.calls++
	b, ok := f.boards[sport+"/"+league]
	if !ok {
		return nil, espn.ErrEventNotFound
	}
	return b, nil
}
