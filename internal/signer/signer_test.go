package signer

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/predikt/backend/internal/ctf"
	"github.com/predikt/backend/internal/signer/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSigner(t *testing.T) (*Signer, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	v := vault.NewStaticVault(map[string]string{vault.RelayerKey: hexutil.Encode(crypto.FromECDSA(key))}, logger)
	return NewSigner(v, logger), crypto.PubkeyToAddress(key.PublicKey).Hex()
}

func TestSignTypedData_Verifies(t *testing.T) {
	ctx := context.Background()
	s, addr := newTestSigner(t)

	order := ctf.Order{
		Salt: "1", Maker: addr, Signer: addr, Taker: "0x0000000000000000000000000000000000000000",
		TokenId: "7", MakerAmount: "500000", TakerAmount: "1000000", Expiration: "0", Nonce: "0", FeeRateBps: "0",
	}
	td := order.TypedData(ctf.Domain(ctf.ExchangeDomainName, 80002, "0x2222222222222222222222222222222222222222"))

	sig, err := s.SignTypedData(ctx, vault.RelayerKey, td)
	require.NoError(t, err)

	raw, err := hexutil.Decode(sig)
	require.NoError(t, err)
	assert.Contains(t, []byte{27, 28}, raw[64])

	signerAddr, err := s.Address(ctx, vault.RelayerKey)
	require.NoError(t, err)
	ok, err := s.VerifySignature(signerAddr, td, sig)
	require.NoError(t, err)
	assert.True(t, ok)

	order.Nonce = "1"
	ok, err = s.VerifySignature(signerAddr, order.TypedData(td.Domain), sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSignTypedDataJSON(t *testing.T) {
	ctx := context.Background()
	s, addr := newTestSigner(t)

	exec := ctf.Execute{Owner: addr, To: addr, Value: "0", Data: "0x", Nonce: "0", Deadline: "99"}
	payload, err := json.Marshal(exec.TypedData(ctf.Domain(ctf.ProxyWalletDomainName, 1, addr)))
	require.NoError(t, err)

	sig, err := s.SignTypedDataJSON(ctx, vault.RelayerKey, payload)
	require.NoError(t, err)
	assert.NotEmpty(t, sig)

	_, err = s.SignTypedDataJSON(ctx, vault.RelayerKey, []byte("{"))
	assert.Error(t, err)
}

func TestSignPersonal(t *testing.T) {
	ctx := context.Background()
	s, addr := newTestSigner(t)

	sig, err := s.SignPersonal(ctx, vault.RelayerKey, "hello")
	require.NoError(t, err)
	got, err := ctf.RecoverPersonalSigner("hello", sig)
	require.NoError(t, err)
	assert.Equal(t, addr, got.Hex())
}

func TestMissingKey(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewSigner(vault.NewStaticVault(map[string]string{vault.RelayerKey: ""}, logger), logger)

	_, err := s.Address(context.Background(), vault.RelayerKey)
	assert.ErrorIs(t, err, vault.ErrKeyNotFound)

	_, err = ParsePrivateKey("0xnothex")
	assert.ErrorIs(t, err, ErrInvalidKey)
}
