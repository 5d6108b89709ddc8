/**
 * @description
 * This file defines the EIP-712 typed data used by the exchange and the proxy wallet.
 * Users sign orders and meta-transactions off-chain; the backend rebuilds the exact
 * typed data, hashes it and recovers the signer to authenticate the request.
 *
 * Key features:
 * - EIP-712 Domain: Built from configuration (name, version, chain id, verifying contract)
 *   so the same code serves every deployment.
 * - Order Type: The CTF exchange `Order` struct (salt, maker, signer, taker, tokenId,
 *   makerAmount, takerAmount, expiration, nonce, feeRateBps, side, signatureType).
 * - Execute Type: The ProxyWallet meta-transaction (owner, to, value, data, nonce, deadline).
 *
 * @dependencies
 * - github.com/ethereum/go-ethereum/signer/core/apitypes: Provides the base `TypedData` struct.
 *
 * @notes
 * - The structure of each type MUST exactly match the Solidity struct hash of the contract
 *   that verifies it, otherwise recovered addresses will not match.
 */

package ctf

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	ExchangeDomainName    = "CTF Exchange"
	ProxyWalletDomainName = "ProxyWallet"
	DomainVersion         = "1"
)

// Order sides as encoded in the signed struct.
const (
	SideBuy  = 0
	SideSell = 1
)

// Signature types understood by the exchange.
const (
	SignatureTypeEOA   = 0
	SignatureTypeProxy = 1
)

var domainType = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

// OrderTypes defines the EIP-712 message types for an exchange Order.
var OrderTypes = apitypes.Types{
	"EIP712Domain": domainType,
	"Order": {
		{Name: "salt", Type: "uint256"},
		{Name: "maker", Type: "address"},
		{Name: "signer", Type: "address"},
		{Name: "taker", Type: "address"},
		{Name: "tokenId", Type: "uint256"},
		{Name: "makerAmount", Type: "uint256"},
		{Name: "takerAmount", Type: "uint256"},
		{Name: "expiration", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "feeRateBps", Type: "uint256"},
		{Name: "side", Type: "uint8"},
		{Name: "signatureType", Type: "uint8"},
	},
}

// ExecuteTypes defines the ProxyWallet meta-transaction type.
var ExecuteTypes = apitypes.Types{
	"EIP712Domain": domainType,
	"Execute": {
		{Name: "owner", Type: "address"},
		{Name: "to", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "data", Type: "bytes"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
	},
}

// Domain builds an EIP-712 domain separator description.
func Domain(name string, chainID int64, verifyingContract string) apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:              name,
		Version:           DomainVersion,
		ChainId:           math.NewHexOrDecimal256(chainID),
		VerifyingContract: verifyingContract,
	}
}

// Order represents the EIP-712 message for an exchange order. Numeric fields
// are decimal strings so they survive JSON round trips without precision loss.
type Order struct {
	Salt          string `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenId       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          int    `json:"side"`
	SignatureType int    `json:"signatureType"`
}

// SignedOrder is an order plus its signature.
type SignedOrder struct {
	Order
	Signature string `json:"signature"`
}

// ToMessage converts the Order struct into a apitypes.TypedDataMessage,
// which is a map[string]interface{}, required for the EIP-712 signing process.
func (o Order) ToMessage() apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"salt":          o.Salt,
		"maker":         o.Maker,
		"signer":        o.Signer,
		"taker":         o.Taker,
		"tokenId":       o.TokenId,
		"makerAmount":   o.MakerAmount,
		"takerAmount":   o.TakerAmount,
		"expiration":    o.Expiration,
		"nonce":         o.Nonce,
		"feeRateBps":    o.FeeRateBps,
		"side":          new(big.Int).SetInt64(int64(o.Side)),
		"signatureType": new(big.Int).SetInt64(int64(o.SignatureType)),
	}
}

// TypedData wraps the order for hashing under domain.
func (o Order) TypedData(domain apitypes.TypedDataDomain) apitypes.TypedData {
	return apitypes.TypedData{
		Types:       OrderTypes,
		PrimaryType: "Order",
		Domain:      domain,
		Message:     o.ToMessage(),
	}
}

// Execute is the ProxyWallet meta-transaction a user signs for the relayer.
type Execute struct {
	Owner    string `json:"owner"`
	To       string `json:"to"`
	Value    string `json:"value"`
	Data     string `json:"data"`
	Nonce    string `json:"nonce"`
	Deadline string `json:"deadline"`
}

func (e Execute) ToMessage() apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"owner":    e.Owner,
		"to":       e.To,
		"value":    e.Value,
		"data":     e.Data,
		"nonce":    e.Nonce,
		"deadline": e.Deadline,
	}
}

// TypedData wraps the meta-transaction for hashing under domain.
func (e Execute) TypedData(domain apitypes.TypedDataDomain) apitypes.TypedData {
	return apitypes.TypedData{
		Types:       ExecuteTypes,
		PrimaryType: "Execute",
		Domain:      domain,
		Message:     e.ToMessage(),
	}
}
