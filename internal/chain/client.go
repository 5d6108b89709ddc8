/**
 * @description
 * This file implements the on-chain client used by the pool and relay services.
 * Reads go through eth_call; writes are signed by the relayer key and submitted
 * as legacy EIP-155 transactions.
 *
 * @dependencies
 * - github.com/ethereum/go-ethereum: ABI packing, ethclient, transaction signing.
 */

package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

var (
	ErrChainDisabled = errors.New("chain: RPC_URL is not configured")
	ErrWouldRevert   = errors.New("chain: transaction would revert")
	ErrNoFactory     = errors.New("chain: proxy wallet factory address is not configured")
)

// Client is the subset of chain access the services need.
type Client interface {
	GetReserves(ctx context.Context, pool common.Address) (yes, no *big.Int, err error)
	BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error)
	ProxyFor(ctx context.Context, owner common.Address) (common.Address, error)
	DeployProxy(ctx context.Context, owner common.Address) (common.Hash, error)
	Execute(ctx context.Context, proxy common.Address, call ExecuteCall) (common.Hash, error)
	PoolEvent(ctx context.Context, hash common.Hash, pool common.Address) (PoolEvent, error)
	PositionEvent(ctx context.Context, hash common.Hash, ctf common.Address) (PositionEvent, error)
	RelayerAddress() common.Address
}

// ExecuteCall is a user-signed ProxyWallet meta-transaction.
type ExecuteCall struct {
	To        common.Address
	Value     *big.Int
	Data      []byte
	Deadline  *big.Int
	Signature []byte
}

// Backend is implemented by *ethclient.Client.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// EthClient talks to a JSON-RPC node.
type EthClient struct {
	backend Backend
	chainID *big.Int
	factory common.Address
	relayer *ecdsa.PrivateKey
	address common.Address
	logger  *slog.Logger

	// serialises nonce allocation for the relayer account
	mu sync.Mutex
}

var _ Client = (*EthClient)(nil)

// Dial connects to rpcURL.
func Dial(ctx context.Context, rpcURL string, chainID int64, factory common.Address, relayer *ecdsa.PrivateKey, logger *slog.Logger) (*EthClient, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial rpc: %w", err)
	}
	return NewEthClient(client, chainID, factory, relayer, logger), nil
}

func NewEthClient(backend Backend, chainID int64, factory common.Address, relayer *ecdsa.PrivateKey, logger *slog.Logger) *EthClient {
	return &EthClient{
		backend: backend,
		chainID: big.NewInt(chainID),
		factory: factory,
		relayer: relayer,
		address: crypto.PubkeyToAddress(relayer.PublicKey),
		logger:  logger,
	}
}

func (c *EthClient) RelayerAddress() common.Address {
	return c.address
}

// GetReserves reads the pool's outcome token reserves in base units.
func (c *EthClient) GetReserves(ctx context.Context, pool common.Address) (*big.Int, *big.Int, error) {
	data, err := poolABI.Pack("getReserves")
	if err != nil {
		return nil, nil, err
	}
	out, err := c.call(ctx, pool, data)
	if err != nil {
		return nil, nil, fmt.Errorf("getReserves: %w", err)
	}
	vals, err := poolABI.Unpack("getReserves", out)
	if err != nil || len(vals) != 2 {
		return nil, nil, fmt.Errorf("getReserves: unpack: %w", err)
	}
	return vals[0].(*big.Int), vals[1].(*big.Int), nil
}

// BalanceOf reads an ERC-20 balance in base units.
func (c *EthClient) BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", account)
	if err != nil {
		return nil, err
	}
	out, err := c.call(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("balanceOf: %w", err)
	}
	vals, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil || len(vals) == 0 {
		return nil, fmt.Errorf("balanceOf: unpack: %w", err)
	}
	return vals[0].(*big.Int), nil
}

// ProxyFor returns the owner's proxy wallet, or the zero address when none is deployed.
func (c *EthClient) ProxyFor(ctx context.Context, owner common.Address) (common.Address, error) {
	if c.factory == (common.Address{}) {
		return common.Address{}, ErrNoFactory
	}
	data, err := factoryABI.Pack("getProxy", owner)
	if err != nil {
		return common.Address{}, err
	}
	out, err := c.call(ctx, c.factory, data)
	if err != nil {
		return common.Address{}, fmt.Errorf("getProxy: %w", err)
	}
	vals, err := factoryABI.Unpack("getProxy", out)
	if err != nil || len(vals) == 0 {
		return common.Address{}, fmt.Errorf("getProxy: unpack: %w", err)
	}
	return vals[0].(common.Address), nil
}

// DeployProxy submits ProxyWalletFactory.createProxy(owner) paid by the relayer.
func (c *EthClient) DeployProxy(ctx context.Context, owner common.Address) (common.Hash, error) {
	if c.factory == (common.Address{}) {
		return common.Hash{}, ErrNoFactory
	}
	data, err := CreateProxyCalldata(owner)
	if err != nil {
		return common.Hash{}, err
	}
	return c.transact(ctx, c.factory, data)
}

// Execute relays a signed meta-transaction through the owner's proxy wallet.
func (c *EthClient) Execute(ctx context.Context, proxy common.Address, call ExecuteCall) (common.Hash, error) {
	data, err := ExecuteCalldata(call.To, call.Value, call.Data, call.Deadline, call.Signature)
	if err != nil {
		return common.Hash{}, err
	}
	return c.transact(ctx, proxy, data)
}

func (c *EthClient) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

func (c *EthClient) transact(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	nonce, err := c.backend.PendingNonceAt(ctx, c.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: nonce: %w", err)
	}

	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: gas price: %w", err)
	}
	// 10% over the suggestion for faster inclusion
	gasPrice = new(big.Int).Div(new(big.Int).Mul(gasPrice, big.NewInt(11)), big.NewInt(10))

	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:     c.address,
		To:       &to,
		GasPrice: gasPrice,
		Data:     data,
	})
	if err != nil {
		c.logger.Warn("gas estimation failed", "to", to.Hex(), "error", err)
		return common.Hash{}, fmt.Errorf("%w: %v", ErrWouldRevert, err)
	}
	gas = gas * 12 / 10

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gas, gasPrice, data)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), c.relayer)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: sign tx: %w", err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("chain: send tx: %w", err)
	}

	c.logger.Info("transaction sent", "to", to.Hex(), "nonce", nonce, "gas", gas, "tx", signed.Hash().Hex())
	return signed.Hash(), nil
}

// Disabled is used when no RPC endpoint is configured.
type Disabled struct{}

var _ Client = Disabled{}

func (Disabled) GetReserves(context.Context, common.Address) (*big.Int, *big.Int, error) {
	return nil, nil, ErrChainDisabled
}

func (Disabled) BalanceOf(context.Context, common.Address, common.Address) (*big.Int, error) {
	return nil, ErrChainDisabled
}

func (Disabled) ProxyFor(context.Context, common.Address) (common.Address, error) {
	return common.Address{}, ErrChainDisabled
}

func (Disabled) DeployProxy(context.Context, common.Address) (common.Hash, error) {
	return common.Hash{}, ErrChainDisabled
}

func (Disabled) Execute(context.Context, common.Address, ExecuteCall) (common.Hash, error) {
	return common.Hash{}, ErrChainDisabled
}

func (Disabled) PoolEvent(context.Context, common.Hash, common.Address) (PoolEvent, error) {
	return PoolEvent{}, ErrChainDisabled
}

func (Disabled) PositionEvent(context.Context, common.Hash, common.Address) (PositionEvent, error) {
	return PositionEvent{}, ErrChainDisabled
}

func (Disabled) RelayerAddress() common.Address {
	return common.Address{}
}
