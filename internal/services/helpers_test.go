package services

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/google/uuid"
	"github.com/predikt/backend/internal/ctf"
	db "github.com/predikt/backend/internal/db"
	"github.com/predikt/backend/internal/db/dbtest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	testChainID  = 137
	testExchange = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
	yesToken     = "1001"
	noToken      = "1002"
	testCondID   = "0x5f65177b394277fd294cd75650044e32ba009a95022d88a0c1d565897d72f8f1"
)

var testDomain = ctf.Domain(ctf.ExchangeDomainName, testChainID, testExchange)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type published struct {
	channel string
	event   any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{channel: channel, event: event})
	return nil
}

func (p *recordingPublisher) trades() []TradeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []TradeEvent
	for _, e := range p.events {
		if t, ok := e.event.(TradeEvent); ok {
			out = append(out, t)
		}
	}
	return out
}

func (p *recordingPublisher) statuses() []MarketStatusEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []MarketStatusEvent
	for _, e := range p.events {
		if s, ok := e.event.(MarketStatusEvent); ok {
			out = append(out, s)
		}
	}
	return out
}

type wallet struct {
	key     *ecdsa.PrivateKey
	address string
}

func newWallet(t *testing.T) wallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return wallet{key: key, address: crypto.PubkeyToAddress(key.PublicKey).Hex()}
}

func (w wallet) signTypedData(t *testing.T, td apitypes.TypedData) string {
	t.Helper()
	digest, err := ctf.HashTypedData(td)
	require.NoError(t, err)
	sig, err := crypto.Sign(digest, w.key)
	require.NoError(t, err)
	sig[64] += 27
	return hexutil.Encode(sig)
}

func (w wallet) signPersonal(t *testing.T, message string) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), w.key)
	require.NoError(t, err)
	return hexutil.Encode(sig)
}

// order builds a signed order input for w.
func (w wallet) order(t *testing.T, outcome db.Outcome, side int, price, size string, typ db.OrderType) PlaceOrderInput {
	t.Helper()
	maker, taker := ctf.AmountsFor(side, dec(price), dec(size))
	token := yesToken
	if outcome == db.OutcomeNo {
		token = noToken
	}
	o := ctf.Order{
		Salt:          fmt.Sprint(time.Now().UnixNano()),
		Maker:         w.address,
		Signer:        w.address,
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenId:       token,
		MakerAmount:   maker,
		TakerAmount:   taker,
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          side,
		SignatureType: ctf.SignatureTypeEOA,
	}
	return PlaceOrderInput{
		Order:     o,
		Signature: w.signTypedData(t, o.TypedData(testDomain)),
		Outcome:   outcome,
		OrderType: typ,
	}
}

// resign refreshes the signature after a test edits the order.
func (w wallet) resign(t *testing.T, in PlaceOrderInput) PlaceOrderInput {
	in.Signature = w.signTypedData(t, in.Order.TypedData(testDomain))
	return in
}

func seedMarket(t *testing.T, store *dbtest.MemStore, mutate func(*db.CreateMarketParams)) db.Market {
	t.Helper()
	params := db.CreateMarketParams{
		ID:          uuid.New(),
		Question:    "Will it rain tomorrow?",
		Category:    "weather",
		MarketType:  db.MarketTypeCLOB,
		ConditionID: testCondID,
		YesTokenID:  yesToken,
		NoTokenID:   noToken,
		YesPrice:    dec("0.5"),
		NoPrice:     dec("0.5"),
		EndTime:     time.Now().Add(30 * 24 * time.Hour),
		CreatedBy:   "0x00000000000000000000000000000000000000C0",
	}
	if mutate != nil {
		mutate(&params)
	}
	m, err := store.CreateMarket(context.Background(), params)
	require.NoError(t, err)
	return m
}

func seedPosition(t *testing.T, store *dbtest.MemStore, marketID uuid.UUID, owner string, outcome db.Outcome, size, avg string) {
	t.Helper()
	_, err := store.UpsertPosition(context.Background(), db.UpsertPositionParams{
		MarketID:    marketID,
		Owner:       owner,
		Outcome:     outcome,
		Size:        dec(size),
		AvgPrice:    dec(avg),
		RealizedPnl: decimal.Zero,
	})
	require.NoError(t, err)
}

func position(t *testing.T, store db.Querier, marketID uuid.UUID, owner string, outcome db.Outcome) db.Position {
	t.Helper()
	pos, err := loadPosition(context.Background(), store, marketID, owner, outcome)
	require.NoError(t, err)
	return pos
}
