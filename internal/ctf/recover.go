package ctf

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidSignature = errors.New("ctf: invalid signature")
	ErrSignerMismatch   = errors.New("ctf: signature does not match signer")
	ErrInvalidAmounts   = errors.New("ctf: maker and taker amounts must be positive integers")
)

// CollateralDecimals is the number of decimals of the collateral token and of
// conditional token balances.
const CollateralDecimals int32 = 6

// HashTypedData returns the EIP-712 digest: keccak256(0x1901 || domainSeparator || hashStruct(message)).
func HashTypedData(td apitypes.TypedData) ([]byte, error) {
	domainSeparator, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("hash EIP712 domain: %w", err)
	}
	messageHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return nil, fmt.Errorf("hash EIP712 message: %w", err)
	}
	prefixed := []byte{0x19, 0x01}
	prefixed = append(prefixed, domainSeparator...)
	prefixed = append(prefixed, messageHash...)
	return crypto.Keccak256(prefixed), nil
}

// NormalizeSignature decodes a 65 byte signature and maps v from {27,28} to {0,1}.
func NormalizeSignature(signatureHex string) ([]byte, error) {
	sig, err := hexutil.Decode(signatureHex)
	if err != nil || len(sig) != crypto.SignatureLength {
		return nil, ErrInvalidSignature
	}
	switch sig[64] {
	case 0, 1:
	case 27, 28:
		sig[64] -= 27
	default:
		return nil, ErrInvalidSignature
	}
	return sig, nil
}

// RecoverSigner recovers the address that produced signatureHex over digest.
func RecoverSigner(digest []byte, signatureHex string) (common.Address, error) {
	sig, err := NormalizeSignature(signatureHex)
	if err != nil {
		return common.Address{}, err
	}
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyTypedData checks that td was signed by expected.
func VerifyTypedData(td apitypes.TypedData, signatureHex string, expected common.Address) error {
	digest, err := HashTypedData(td)
	if err != nil {
		return err
	}
	signer, err := RecoverSigner(digest, signatureHex)
	if err != nil {
		return err
	}
	if signer != expected {
		return ErrSignerMismatch
	}
	return nil
}

// RecoverPersonalSigner recovers the signer of an EIP-191 personal_sign message.
func RecoverPersonalSigner(message, signatureHex string) (common.Address, error) {
	return RecoverSigner(accounts.TextHash([]byte(message)), signatureHex)
}

// NormalizeAddress returns the checksummed form of a hex address, or an error.
func NormalizeAddress(addr string) (string, error) {
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("invalid address %q", addr)
	}
	return common.HexToAddress(strings.TrimSpace(addr)).Hex(), nil
}

func parseUint(s string) (*big.Int, bool) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() <= 0 {
		return nil, false
	}
	return n, true
}

// PriceAndSize derives the limit price and share size from the signed amounts.
// A BUY pays makerAmount collateral for takerAmount shares; a SELL gives
// makerAmount shares for takerAmount collateral.
func (o Order) PriceAndSize() (price, size decimal.Decimal, err error) {
	maker, ok := parseUint(o.MakerAmount)
	if !ok {
		return decimal.Zero, decimal.Zero, ErrInvalidAmounts
	}
	taker, ok := parseUint(o.TakerAmount)
	if !ok {
		return decimal.Zero, decimal.Zero, ErrInvalidAmounts
	}
	makerDec := decimal.NewFromBigInt(maker, -CollateralDecimals)
	takerDec := decimal.NewFromBigInt(taker, -CollateralDecimals)

	if o.Side == SideBuy {
		return makerDec.Div(takerDec), takerDec, nil
	}
	return takerDec.Div(makerDec), makerDec, nil
}

// AmountsFor converts a price and size into maker/taker base-unit amounts.
func AmountsFor(side int, price, size decimal.Decimal) (makerAmount, takerAmount string) {
	shares := size.Shift(CollateralDecimals).Truncate(0)
	collateral := price.Mul(size).Shift(CollateralDecimals).Truncate(0)
	if side == SideBuy {
		return collateral.String(), shares.String()
	}
	return shares.String(), collateral.String()
}
