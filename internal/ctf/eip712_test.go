package ctf

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exchange = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"

func testOrder(maker string) Order {
	return Order{
		Salt:          "12345",
		Maker:         maker,
		Signer:        maker,
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenId:       "1001",
		MakerAmount:   "6000000",
		TakerAmount:   "10000000",
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          SideBuy,
		SignatureType: SignatureTypeEOA,
	}
}

func sign(t *testing.T, digest []byte, addV byte) (string, []byte) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sig, err := crypto.Sign(digest, key)
	require.NoError(t, err)
	sig[64] += addV
	return hexutil.Encode(sig), crypto.PubkeyToAddress(key.PublicKey).Bytes()
}

func TestRecoverSigner_OrderRoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	maker := crypto.PubkeyToAddress(key.PublicKey)

	td := testOrder(maker.Hex()).TypedData(Domain(ExchangeDomainName, 80002, exchange))
	digest, err := HashTypedData(td)
	require.NoError(t, err)

	for _, addV := range []byte{0, 27} {
		sig, err := crypto.Sign(digest, key)
		require.NoError(t, err)
		sig[64] += addV

		got, err := RecoverSigner(digest, hexutil.Encode(sig))
		require.NoError(t, err)
		assert.Equal(t, maker, got)
		assert.NoError(t, VerifyTypedData(td, hexutil.Encode(sig), maker))
	}
}

func TestVerifyTypedData_DomainMatters(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	maker := crypto.PubkeyToAddress(key.PublicKey)
	order := testOrder(maker.Hex())

	digest, err := HashTypedData(order.TypedData(Domain(ExchangeDomainName, 80002, exchange)))
	require.NoError(t, err)
	sig, err := crypto.Sign(digest, key)
	require.NoError(t, err)

	otherChain := order.TypedData(Domain(ExchangeDomainName, 137, exchange))
	assert.ErrorIs(t, VerifyTypedData(otherChain, hexutil.Encode(sig), maker), ErrSignerMismatch)

	tampered := order
	tampered.MakerAmount = "7000000"
	td := tampered.TypedData(Domain(ExchangeDomainName, 80002, exchange))
	assert.ErrorIs(t, VerifyTypedData(td, hexutil.Encode(sig), maker), ErrSignerMismatch)
}

func TestExecuteTypedData(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	owner := crypto.PubkeyToAddress(key.PublicKey)

	exec := Execute{
		Owner:    owner.Hex(),
		To:       exchange,
		Value:    "0",
		Data:     "0xdeadbeef",
		Nonce:    "3",
		Deadline: "1900000000",
	}
	td := exec.TypedData(Domain(ProxyWalletDomainName, 80002, "0x1111111111111111111111111111111111111111"))
	digest, err := HashTypedData(td)
	require.NoError(t, err)
	sig, err := crypto.Sign(digest, key)
	require.NoError(t, err)

	assert.NoError(t, VerifyTypedData(td, hexutil.Encode(sig), owner))
}

func TestNormalizeSignature(t *testing.T) {
	_, err := NormalizeSignature("0x1234")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	bad := make([]byte, 65)
	bad[64] = 5
	_, err = NormalizeSignature(hexutil.Encode(bad))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestRecoverPersonalSigner(t *testing.T) {
	msg := "Sign in to predikt\nnonce: abc"
	sig, addr := sign(t, accounts.TextHash([]byte(msg)), 27)

	got, err := RecoverPersonalSigner(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, addr, got.Bytes())
}

func TestPriceAndSize(t *testing.T) {
	buy := testOrder("0x0000000000000000000000000000000000000001")
	price, size, err := buy.PriceAndSize()
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("0.6")))
	assert.True(t, size.Equal(decimal.NewFromInt(10)))

	sell := buy
	sell.Side = SideSell
	sell.MakerAmount, sell.TakerAmount = AmountsFor(SideSell, decimal.RequireFromString("0.25"), decimal.NewFromInt(4))
	price, size, err = sell.PriceAndSize()
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("0.25")))
	assert.True(t, size.Equal(decimal.NewFromInt(4)))

	buy.MakerAmount = "0"
	_, _, err = buy.PriceAndSize()
	assert.ErrorIs(t, err, ErrInvalidAmounts)
}

func TestNormalizeAddress(t *testing.T) {
	got, err := NormalizeAddress("0x4bfb41d5b3570defd03c39a9a4d8de6bd8b8982e")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(exchange).Hex(), got)
	assert.True(t, strings.EqualFold(exchange, got))

	_, err = NormalizeAddress("nope")
	assert.Error(t, err)
}
