package chain

// abi.go holds the contract fragments the backend calls and the calldata
// builders that do not need an RPC connection.
//
//   ConditionalTokens  splitPosition / mergePositions (collateral <-> YES+NO sets)
//                      PositionSplit / PositionsMerge events
//   AMMPool            getReserves, FPMMBuy / FPMMSell / FPMMFundingAdded / FPMMFundingRemoved events
//   ERC20              balanceOf
//   ProxyWalletFactory createProxy / getProxy
//   ProxyWallet        execute (relayed meta-transaction)

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ctfABI     abi.ABI
	poolABI    abi.ABI
	erc20ABI   abi.ABI
	factoryABI abi.ABI
	proxyABI   abi.ABI
)

func init() {
	ctfABI = mustParse("ctf", `[
		{
			"name": "splitPosition",
			"type": "function",
			"inputs": [
				{"name": "collateralToken", "type": "address"},
				{"name": "parentCollectionId", "type": "bytes32"},
				{"name": "conditionId", "type": "bytes32"},
				{"name": "partition", "type": "uint256[]"},
				{"name": "amount", "type": "uint256"}
			],
			"outputs": []
		},
		{
			"name": "mergePositions",
			"type": "function",
			"inputs": [
				{"name": "collateralToken", "type": "address"},
				{"name": "parentCollectionId", "type": "bytes32"},
				{"name": "conditionId", "type": "bytes32"},
				{"name": "partition", "type": "uint256[]"},
				{"name": "amount", "type": "uint256"}
			],
			"outputs": []
		},
		{
			"name": "PositionSplit",
			"type": "event",
			"anonymous": false,
			"inputs": [
				{"name": "stakeholder", "type": "address", "indexed": true},
				{"name": "collateralToken", "type": "address", "indexed": false},
				{"name": "parentCollectionId", "type": "bytes32", "indexed": true},
				{"name": "conditionId", "type": "bytes32", "indexed": true},
				{"name": "partition", "type": "uint256[]", "indexed": false},
				{"name": "amount", "type": "uint256", "indexed": false}
			]
		},
		{
			"name": "PositionsMerge",
			"type": "event",
			"anonymous": false,
			"inputs": [
				{"name": "stakeholder", "type": "address", "indexed": true},
				{"name": "collateralToken", "type": "address", "indexed": false},
				{"name": "parentCollectionId", "type": "bytes32", "indexed": true},
				{"name": "conditionId", "type": "bytes32", "indexed": true},
				{"name": "partition", "type": "uint256[]", "indexed": false},
				{"name": "amount", "type": "uint256", "indexed": false}
			]
		}
	]`)

	poolABI = mustParse("pool", `[
		{
			"name": "getReserves",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [
				{"name": "yesReserve", "type": "uint256"},
				{"name": "noReserve", "type": "uint256"}
			]
		},
		{
			"name": "FPMMBuy",
			"type": "event",
			"anonymous": false,
			"inputs": [
				{"name": "buyer", "type": "address", "indexed": true},
				{"name": "investmentAmount", "type": "uint256", "indexed": false},
				{"name": "feeAmount", "type": "uint256", "indexed": false},
				{"name": "outcomeIndex", "type": "uint256", "indexed": true},
				{"name": "outcomeTokensBought", "type": "uint256", "indexed": false}
			]
		},
		{
			"name": "FPMMSell",
			"type": "event",
			"anonymous": false,
			"inputs": [
				{"name": "seller", "type": "address", "indexed": true},
				{"name": "returnAmount", "type": "uint256", "indexed": false},
				{"name": "feeAmount", "type": "uint256", "indexed": false},
				{"name": "outcomeIndex", "type": "uint256", "indexed": true},
				{"name": "outcomeTokensSold", "type": "uint256", "indexed": false}
			]
		},
		{
			"name": "FPMMFundingAdded",
			"type": "event",
			"anonymous": false,
			"inputs": [
				{"name": "funder", "type": "address", "indexed": true},
				{"name": "amountsAdded", "type": "uint256[]", "indexed": false},
				{"name": "sharesMinted", "type": "uint256", "indexed": false}
			]
		},
		{
			"name": "FPMMFundingRemoved",
			"type": "event",
			"anonymous": false,
			"inputs": [
				{"name": "funder", "type": "address", "indexed": true},
				{"name": "amountsRemoved", "type": "uint256[]", "indexed": false},
				{"name": "collateralRemovedFromFeePool", "type": "uint256", "indexed": false},
				{"name": "sharesBurnt", "type": "uint256", "indexed": false}
			]
		}
	]`)

	erc20ABI = mustParse("erc20", `[
		{
			"name": "balanceOf",
			"type": "function",
			"stateMutability": "view",
			"inputs": [{"name": "account", "type": "address"}],
			"outputs": [{"name": "", "type": "uint256"}]
		}
	]`)

	factoryABI = mustParse("factory", `[
		{
			"name": "createProxy",
			"type": "function",
			"inputs": [{"name": "owner", "type": "address"}],
			"outputs": [{"name": "proxy", "type": "address"}]
		},
		{
			"name": "getProxy",
			"type": "function",
			"stateMutability": "view",
			"inputs": [{"name": "owner", "type": "address"}],
			"outputs": [{"name": "proxy", "type": "address"}]
		}
	]`)

	proxyABI = mustParse("proxy", `[
		{
			"name": "execute",
			"type": "function",
			"inputs": [
				{"name": "to", "type": "address"},
				{"name": "value", "type": "uint256"},
				{"name": "data", "type": "bytes"},
				{"name": "deadline", "type": "uint256"},
				{"name": "signature", "type": "bytes"}
			],
			"outputs": [{"name": "", "type": "bytes"}]
		}
	]`)
}

func mustParse(name, def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(name + " abi parse: " + err.Error())
	}
	return parsed
}

// binaryPartition is the index-set partition of a two-outcome condition.
func binaryPartition() []*big.Int {
	return []*big.Int{big.NewInt(1), big.NewInt(2)}
}

// SplitPositionCalldata encodes ConditionalTokens.splitPosition for a binary
// condition: amount collateral becomes amount YES plus amount NO tokens.
func SplitPositionCalldata(collateral common.Address, conditionID string, amount *big.Int) ([]byte, error) {
	return positionCalldata("splitPosition", collateral, conditionID, amount)
}

// MergePositionsCalldata encodes ConditionalTokens.mergePositions, the inverse of a split.
func MergePositionsCalldata(collateral common.Address, conditionID string, amount *big.Int) ([]byte, error) {
	return positionCalldata("mergePositions", collateral, conditionID, amount)
}

func positionCalldata(method string, collateral common.Address, conditionID string, amount *big.Int) ([]byte, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%s: amount must be positive", method)
	}
	cond, err := HexToBytes32(conditionID)
	if err != nil {
		return nil, fmt.Errorf("%s: condition id: %w", method, err)
	}
	data, err := ctfABI.Pack(method, collateral, [32]byte{}, cond, binaryPartition(), amount)
	if err != nil {
		return nil, fmt.Errorf("%s: pack: %w", method, err)
	}
	return data, nil
}

// ExecuteCalldata encodes ProxyWallet.execute.
func ExecuteCalldata(to common.Address, value *big.Int, data []byte, deadline *big.Int, signature []byte) ([]byte, error) {
	if value == nil {
		value = new(big.Int)
	}
	packed, err := proxyABI.Pack("execute", to, value, data, deadline, signature)
	if err != nil {
		return nil, fmt.Errorf("execute: pack: %w", err)
	}
	return packed, nil
}

// CreateProxyCalldata encodes ProxyWalletFactory.createProxy.
func CreateProxyCalldata(owner common.Address) ([]byte, error) {
	return factoryABI.Pack("createProxy", owner)
}

// HexToBytes32 converts a 0x-prefixed hex string to [32]byte.
func HexToBytes32(s string) ([32]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s) != 64 {
		return [32]byte{}, fmt.Errorf("expected 64 hex chars, got %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return [32]byte{}, err
	}
	var arr [32]byte
	copy(arr[:], b)
	return arr, nil
}
