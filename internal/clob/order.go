/**
 * @description
 * Package clob implements the off-chain central limit order book used for CLOB markets.
 * Each (market, outcome) pair has its own book with price-time priority. Matching is
 * split into a pure planning step and a commit step so callers can persist the result
 * in a database transaction before the in-memory book changes.
 *
 * Key features:
 * - Order types: GTC, GTD (rests until expiration), FOK (all or nothing), FAK (fill and kill).
 * - Self-trade prevention: a taker never fills against its own resting orders.
 * - Crossing guard: a remainder that would cross the maker's own resting order is cancelled.
 */

package clob

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

type OrderType string

const (
	GTC OrderType = "GTC"
	GTD OrderType = "GTD"
	FOK OrderType = "FOK"
	FAK OrderType = "FAK"
)

type Status string

const (
	StatusOpen      Status = "open"
	StatusPartial   Status = "partial"
	StatusFilled    Status = "filled"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

var (
	ErrInvalidSide       = errors.New("clob: side must be BUY or SELL")
	ErrInvalidOrderType  = errors.New("clob: unknown order type")
	ErrInvalidPrice      = errors.New("clob: price must be inside (0, 1) and on the tick grid")
	ErrInvalidSize       = errors.New("clob: size below minimum")
	ErrMissingExpiration = errors.New("clob: GTD order requires an expiration")
	ErrAlreadyExpired    = errors.New("clob: order expiration is in the past")
	ErrDuplicateOrder    = errors.New("clob: order already resting")
	ErrOrderNotFound     = errors.New("clob: order not resting in any book")
	ErrMarketClosed      = errors.New("clob: market books were dropped")
)

// BookKey identifies one outcome of one market.
type BookKey struct {
	MarketID uuid.UUID
	Outcome  string
}

// Order is a limit order as seen by the engine.
type Order struct {
	ID         uuid.UUID
	Maker      string
	Side       Side
	Type       OrderType
	Price      decimal.Decimal
	Size       decimal.Decimal
	Filled     decimal.Decimal
	Status     Status
	Expiration time.Time
	CreatedAt  time.Time

	seq uint64
}

// Remaining is the unfilled size.
func (o Order) Remaining() decimal.Decimal {
	return o.Size.Sub(o.Filled)
}

func (o Order) expiredAt(now time.Time) bool {
	return !o.Expiration.IsZero() && !o.Expiration.After(now)
}

// Fill is one maker/taker match. Price is always the resting order's price.
type Fill struct {
	MakerOrderID uuid.UUID
	Maker        string
	Price        decimal.Decimal
	Size         decimal.Decimal
	MakerFilled  decimal.Decimal
	MakerSize    decimal.Decimal
}

// MakerStatus is the resting order's status after this fill is applied.
func (f Fill) MakerStatus() Status {
	if f.MakerFilled.Equal(f.MakerSize) {
		return StatusFilled
	}
	return StatusPartial
}

// Notional is price times size.
func (f Fill) Notional() decimal.Decimal {
	return f.Price.Mul(f.Size)
}

// Plan is the outcome of matching one taker order against a book.
// Taker carries the final filled amount and status.
type Plan struct {
	Key     BookKey
	Taker   Order
	Fills   []Fill
	Expired []Order
	Rest    bool

	// Reserved is the remaining size the taker's maker already has resting
	// on the taker's side of the book, before this order.
	Reserved decimal.Decimal
}

// Matched is the total size filled by the taker.
func (p Plan) Matched() decimal.Decimal {
	total := decimal.Zero
	for _, f := range p.Fills {
		total = total.Add(f.Size)
	}
	return total
}

// LastPrice is the price of the final fill, or zero when nothing matched.
func (p Plan) LastPrice() decimal.Decimal {
	if len(p.Fills) == 0 {
		return decimal.Zero
	}
	return p.Fills[len(p.Fills)-1].Price
}
