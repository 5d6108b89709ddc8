package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type MarketType string

const (
	MarketTypeCLOB MarketType = "CLOB"
	MarketTypePool MarketType = "POOL"
)

type MarketStatus string

const (
	MarketStatusOpen     MarketStatus = "open"
	MarketStatusClosed   MarketStatus = "closed"
	MarketStatusResolved MarketStatus = "resolved"
)

type Outcome string

const (
	OutcomeYes     Outcome = "YES"
	OutcomeNo      Outcome = "NO"
	OutcomeInvalid Outcome = "INVALID"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

type OrderType string

const (
	OrderTypeGTC OrderType = "GTC"
	OrderTypeGTD OrderType = "GTD"
	OrderTypeFOK OrderType = "FOK"
	OrderTypeFAK OrderType = "FAK"
)

type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusPartial   OrderStatus = "partial"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusExpired   OrderStatus = "expired"
)

type User struct {
	ID            uuid.UUID `json:"id"`
	WalletAddress string    `json:"wallet_address"`
	CreatedAt     time.Time `json:"created_at"`
}

type AuthChallenge struct {
	Address   string    `json:"address"`
	Nonce     string    `json:"nonce"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Market struct {
	ID           uuid.UUID           `json:"id"`
	Question     string              `json:"question"`
	Description  string              `json:"description"`
	Category     string              `json:"category"`
	MarketType   MarketType          `json:"market_type"`
	Status       MarketStatus        `json:"status"`
	Outcome      *Outcome            `json:"outcome,omitempty"`
	ConditionID  string              `json:"condition_id"`
	YesTokenID   string              `json:"yes_token_id"`
	NoTokenID    string              `json:"no_token_id"`
	PoolAddress  *string             `json:"pool_address,omitempty"`
	OracleFeedID *string             `json:"oracle_feed_id,omitempty"`
	StrikePrice  decimal.NullDecimal `json:"strike_price"`
	EspnEventID  *string             `json:"espn_event_id,omitempty"`
	EspnTeam     *string             `json:"espn_team,omitempty"`
	YesPrice     decimal.Decimal     `json:"yes_price"`
	NoPrice      decimal.Decimal     `json:"no_price"`
	Volume       decimal.Decimal     `json:"volume"`
	EndTime      time.Time           `json:"end_time"`
	ResolvedAt   *time.Time          `json:"resolved_at,omitempty"`
	CreatedBy    string              `json:"created_by"`
	CreatedAt    time.Time           `json:"created_at"`
}

type Order struct {
	ID         uuid.UUID       `json:"id"`
	MarketID   uuid.UUID       `json:"market_id"`
	Maker      string          `json:"maker"`
	Outcome    Outcome         `json:"outcome"`
	Side       Side            `json:"side"`
	Price      decimal.Decimal `json:"price"`
	Size       decimal.Decimal `json:"size"`
	Filled     decimal.Decimal `json:"filled"`
	OrderType  OrderType       `json:"order_type"`
	Status     OrderStatus     `json:"status"`
	Salt       string          `json:"salt"`
	Nonce      int64           `json:"nonce"`
	Expiration *time.Time      `json:"expiration,omitempty"`
	Signature  string          `json:"signature"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type OrderFill struct {
	ID           uuid.UUID       `json:"id"`
	MarketID     uuid.UUID       `json:"market_id"`
	Outcome      Outcome         `json:"outcome"`
	MakerOrderID uuid.UUID       `json:"maker_order_id"`
	TakerOrderID uuid.UUID       `json:"taker_order_id"`
	Maker        string          `json:"maker"`
	Taker        string          `json:"taker"`
	Price        decimal.Decimal `json:"price"`
	Size         decimal.Decimal `json:"size"`
	TakerSide    Side            `json:"taker_side"`
	CreatedAt    time.Time       `json:"created_at"`
}

type AmmPool struct {
	Address     string          `json:"address"`
	MarketID    uuid.UUID       `json:"market_id"`
	YesReserve  decimal.Decimal `json:"yes_reserve"`
	NoReserve   decimal.Decimal `json:"no_reserve"`
	TotalShares decimal.Decimal `json:"total_shares"`
	FeeBps      int64           `json:"fee_bps"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type AmmSwap struct {
	ID               uuid.UUID       `json:"id"`
	PoolAddress      string          `json:"pool_address"`
	MarketID         uuid.UUID       `json:"market_id"`
	Trader           string          `json:"trader"`
	Outcome          Outcome         `json:"outcome"`
	Side             Side            `json:"side"`
	CollateralAmount decimal.Decimal `json:"collateral_amount"`
	TokenAmount      decimal.Decimal `json:"token_amount"`
	Fee              decimal.Decimal `json:"fee"`
	TxHash           string          `json:"tx_hash"`
	CreatedAt        time.Time       `json:"created_at"`
}

type LpPosition struct {
	PoolAddress string          `json:"pool_address"`
	Provider    string          `json:"provider"`
	Shares      decimal.Decimal `json:"shares"`
}

type Position struct {
	MarketID    uuid.UUID       `json:"market_id"`
	Owner       string          `json:"owner"`
	Outcome     Outcome         `json:"outcome"`
	Size        decimal.Decimal `json:"size"`
	AvgPrice    decimal.Decimal `json:"avg_price"`
	RealizedPnl decimal.Decimal `json:"realized_pnl"`
}

type PythPriceUpdate struct {
	ID          int64           `json:"id"`
	FeedID      string          `json:"feed_id"`
	Price       decimal.Decimal `json:"price"`
	Conf        decimal.Decimal `json:"conf"`
	Expo        int32           `json:"expo"`
	PublishTime time.Time       `json:"publish_time"`
	CreatedAt   time.Time       `json:"created_at"`
}

type NonceKind string

const (
	NonceKindExchange NonceKind = "exchange"
	NonceKindProxy    NonceKind = "proxy"
)

type UserNonce struct {
	Address string    `json:"address"`
	Kind    NonceKind `json:"kind"`
	Nonce   int64     `json:"nonce"`
}

type RecordedTransaction struct {
	TxHash     string    `json:"tx_hash"`
	Kind       string    `json:"kind"`
	RecordedAt time.Time `json:"recorded_at"`
}

type RelayedTransaction struct {
	TxHash    string    `json:"tx_hash"`
	Owner     string    `json:"owner"`
	Target    string    `json:"target"`
	Nonce     int64     `json:"nonce"`
	CreatedAt time.Time `json:"created_at"`
}

type RewardPoints struct {
	Owner  string          `json:"owner"`
	Points decimal.Decimal `json:"points"`
}

type RewardHistory struct {
	ID        int64           `json:"id"`
	Owner     string          `json:"owner"`
	Points    decimal.Decimal `json:"points"`
	Reason    string          `json:"reason"`
	RefID     string          `json:"ref_id"`
	CreatedAt time.Time       `json:"created_at"`
}

type ApiKey struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Prefix      string    `json:"prefix"`
	SecretHash  string    `json:"-"`
	Label       string    `json:"label"`
	HourlyLimit int32     `json:"hourly_limit"`
	Revoked     bool      `json:"revoked"`
	CreatedAt   time.Time `json:"created_at"`
}

type Comment struct {
	ID        uuid.UUID     `json:"id"`
	MarketID  uuid.UUID     `json:"market_id"`
	ParentID  uuid.NullUUID `json:"parent_id"`
	Author    string        `json:"author"`
	Body      string        `json:"body"`
	CreatedAt time.Time     `json:"created_at"`
}

type MarketPriceHistory struct {
	Time       time.Time       `json:"time"`
	MarketID   string          `json:"market_id"`
	Resolution string          `json:"resolution"`
	Open       decimal.Decimal `json:"open"`
	High       decimal.Decimal `json:"high"`
	Low        decimal.Decimal `json:"low"`
	Close      decimal.Decimal `json:"close"`
	Volume     decimal.Decimal `json:"volume"`
}
