// Package dbtest provides an in-memory db.Store for service and handler tests.
package dbtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/predikt/backend/internal/db"
	"github.com/shopspring/decimal"
)

// ErrUniqueViolation mirrors a Postgres unique constraint failure.
var ErrUniqueViolation = errors.New("dbtest: unique violation")

// ErrCheckViolation mirrors a Postgres check constraint failure.
var ErrCheckViolation = errors.New("dbtest: check violation")

type noopLocker struct{}

func (noopLocker) Lock()   {}
func (noopLocker) Unlock() {}

type positionKey struct {
	market  uuid.UUID
	owner   string
	outcome db.Outcome
}

type lpKey struct {
	pool     string
	provider string
}

type nonceKey struct {
	address string
	kind    db.NonceKind
}

type historyKey struct {
	market     string
	resolution string
	time       int64
}

type memData struct {
	last time.Time

	users       map[uuid.UUID]db.User
	challenges  map[string]db.AuthChallenge
	markets     map[uuid.UUID]db.Market
	orders      map[uuid.UUID]db.Order
	fills       []db.OrderFill
	pools       map[string]db.AmmPool
	swaps       []db.AmmSwap
	lps         map[lpKey]db.LpPosition
	positions   map[positionKey]db.Position
	prices      []db.PythPriceUpdate
	nonces      map[nonceKey]int64
	relayed     map[string]db.RelayedTransaction
	claimed     map[string]db.RecordedTransaction
	points      map[string]decimal.Decimal
	rewards     []db.RewardHistory
	apiKeys     map[uuid.UUID]db.ApiKey
	comments    []db.Comment
	history     map[historyKey]db.MarketPriceHistory
	nextPriceID int64
	nextRewards int64
}

func newMemData() *memData {
	return &memData{
		users:      map[uuid.UUID]db.User{},
		challenges: map[string]db.AuthChallenge{},
		markets:    map[uuid.UUID]db.Market{},
		orders:     map[uuid.UUID]db.Order{},
		pools:      map[string]db.AmmPool{},
		lps:        map[lpKey]db.LpPosition{},
		positions:  map[positionKey]db.Position{},
		nonces:     map[nonceKey]int64{},
		relayed:    map[string]db.RelayedTransaction{},
		claimed:    map[string]db.RecordedTransaction{},
		points:     map[string]decimal.Decimal{},
		apiKeys:    map[uuid.UUID]db.ApiKey{},
		history:    map[historyKey]db.MarketPriceHistory{},
	}
}

func (d *memData) clone() *memData {
	c := *d
	c.users = cloneMap(d.users)
	c.challenges = cloneMap(d.challenges)
	c.markets = cloneMap(d.markets)
	c.orders = cloneMap(d.orders)
	c.fills = append([]db.OrderFill(nil), d.fills...)
	c.pools = cloneMap(d.pools)
	c.swaps = append([]db.AmmSwap(nil), d.swaps...)
	c.lps = cloneMap(d.lps)
	c.positions = cloneMap(d.positions)
	c.prices = append([]db.PythPriceUpdate(nil), d.prices...)
	c.nonces = cloneMap(d.nonces)
	c.relayed = cloneMap(d.relayed)
	c.claimed = cloneMap(d.claimed)
	c.points = cloneMap(d.points)
	c.rewards = append([]db.RewardHistory(nil), d.rewards...)
	c.apiKeys = cloneMap(d.apiKeys)
	c.comments = append([]db.Comment(nil), d.comments...)
	c.history = cloneMap(d.history)
	return &c
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// now returns a strictly increasing clock so insertion order is observable
// through created_at ordering.
func (d *memData) now() time.Time {
	t := time.Now().UTC()
	if !t.After(d.last) {
		t = d.last.Add(time.Microsecond)
	}
	d.last = t
	return t
}

// MemStore implements db.Store in memory. ExecTx works on a copy of the data
// and swaps it in only when the callback succeeds.
type MemStore struct {
	mu sync.Mutex
	*memQuerier

	failMu sync.Mutex
	fail   map[string]error
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	s := &MemStore{fail: map[string]error{}}
	s.memQuerier = &memQuerier{lk: &s.mu, d: newMemData(), failure: s.failure}
	return s
}

var _ db.Store = (*MemStore)(nil)

// FailOn makes the named query return err until cleared with a nil err.
func (s *MemStore) FailOn(method string, err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	if err == nil {
		delete(s.fail, method)
		return
	}
	s.fail[method] = err
}

func (s *MemStore) failure(method string) error {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	return s.fail[method]
}

func (s *MemStore) ExecTx(ctx context.Context, fn func(db.Querier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.d.clone()
	tx := &memQuerier{lk: noopLocker{}, d: snapshot, failure: s.failure}
	if err := fn(tx); err != nil {
		return err
	}
	s.d = snapshot
	return nil
}

type memQuerier struct {
	lk      sync.Locker
	d       *memData
	failure func(string) error
}

func (q *memQuerier) enter(method string) (func(), error) {
	q.lk.Lock()
	if err := q.failure(method); err != nil {
		q.lk.Unlock()
		return nil, err
	}
	return q.lk.Unlock, nil
}

func limitOf(n int32, total int) int {
	if n <= 0 || int(n) > total {
		return total
	}
	return int(n)
}

// --- users ---

func (q *memQuerier) UpsertUser(ctx context.Context, arg db.UpsertUserParams) (db.User, error) {
	unlock, err := q.enter("UpsertUser")
	if err != nil {
		return db.User{}, err
	}
	defer unlock()
	for _, u := range q.d.users {
		if u.WalletAddress == arg.WalletAddress {
			return u, nil
		}
	}
	u := db.User{ID: arg.ID, WalletAddress: arg.WalletAddress, CreatedAt: q.d.now()}
	q.d.users[u.ID] = u
	return u, nil
}

func (q *memQuerier) GetUserByID(ctx context.Context, id uuid.UUID) (db.User, error) {
	unlock, err := q.enter("GetUserByID")
	if err != nil {
		return db.User{}, err
	}
	defer unlock()
	u, ok := q.d.users[id]
	if !ok {
		return db.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (q *memQuerier) GetUserByWallet(ctx context.Context, walletAddress string) (db.User, error) {
	unlock, err := q.enter("GetUserByWallet")
	if err != nil {
		return db.User{}, err
	}
	defer unlock()
	for _, u := range q.d.users {
		if u.WalletAddress == walletAddress {
			return u, nil
		}
	}
	return db.User{}, pgx.ErrNoRows
}

func (q *memQuerier) UpsertAuthChallenge(ctx context.Context, arg db.UpsertAuthChallengeParams) error {
	unlock, err := q.enter("UpsertAuthChallenge")
	if err != nil {
		return err
	}
	defer unlock()
	q.d.challenges[arg.Address] = db.AuthChallenge{Address: arg.Address, Nonce: arg.Nonce, ExpiresAt: arg.ExpiresAt}
	return nil
}

func (q *memQuerier) GetAuthChallenge(ctx context.Context, address string) (db.AuthChallenge, error) {
	unlock, err := q.enter("GetAuthChallenge")
	if err != nil {
		return db.AuthChallenge{}, err
	}
	defer unlock()
	c, ok := q.d.challenges[address]
	if !ok {
		return db.AuthChallenge{}, pgx.ErrNoRows
	}
	return c, nil
}

func (q *memQuerier) ConsumeAuthChallenge(ctx context.Context, address string) (db.AuthChallenge, error) {
	unlock, err := q.enter("ConsumeAuthChallenge")
	if err != nil {
		return db.AuthChallenge{}, err
	}
	defer unlock()
	c, ok := q.d.challenges[address]
	if !ok {
		return db.AuthChallenge{}, pgx.ErrNoRows
	}
	delete(q.d.challenges, address)
	return c, nil
}

func (q *memQuerier) EnsureUserNonce(ctx context.Context, arg db.EnsureUserNonceParams) error {
	unlock, err := q.enter("EnsureUserNonce")
	if err != nil {
		return err
	}
	defer unlock()
	k := nonceKey{arg.Address, arg.Kind}
	if _, ok := q.d.nonces[k]; !ok {
		q.d.nonces[k] = 0
	}
	return nil
}

func (q *memQuerier) GetUserNonce(ctx context.Context, arg db.GetUserNonceParams) (int64, error) {
	unlock, err := q.enter("GetUserNonce")
	if err != nil {
		return 0, err
	}
	defer unlock()
	return q.d.nonces[nonceKey{arg.Address, arg.Kind}], nil
}

func (q *memQuerier) ConsumeUserNonce(ctx context.Context, arg db.ConsumeUserNonceParams) (int64, error) {
	unlock, err := q.enter("ConsumeUserNonce")
	if err != nil {
		return 0, err
	}
	defer unlock()
	k := nonceKey{arg.Address, arg.Kind}
	current, ok := q.d.nonces[k]
	if !ok || current != arg.Nonce {
		return 0, nil
	}
	q.d.nonces[k] = current + 1
	return 1, nil
}

func (q *memQuerier) ClaimTransaction(ctx context.Context, arg db.ClaimTransactionParams) (int64, error) {
	unlock, err := q.enter("ClaimTransaction")
	if err != nil {
		return 0, err
	}
	defer unlock()
	if _, ok := q.d.claimed[arg.TxHash]; ok {
		return 0, nil
	}
	q.d.claimed[arg.TxHash] = db.RecordedTransaction{TxHash: arg.TxHash, Kind: arg.Kind, RecordedAt: q.d.now()}
	return 1, nil
}

func (q *memQuerier) CreateRelayedTransaction(ctx context.Context, arg db.CreateRelayedTransactionParams) (int64, error) {
	unlock, err := q.enter("CreateRelayedTransaction")
	if err != nil {
		return 0, err
	}
	defer unlock()
	if _, ok := q.d.relayed[arg.TxHash]; ok {
		return 0, nil
	}
	q.d.relayed[arg.TxHash] = db.RelayedTransaction{
		TxHash: arg.TxHash, Owner: arg.Owner, Target: arg.Target, Nonce: arg.Nonce, CreatedAt: q.d.now(),
	}
	return 1, nil
}

// --- markets ---

func (q *memQuerier) CreateMarket(ctx context.Context, arg db.CreateMarketParams) (db.Market, error) {
	unlock, err := q.enter("CreateMarket")
	if err != nil {
		return db.Market{}, err
	}
	defer unlock()
	if _, ok := q.d.markets[arg.ID]; ok {
		return db.Market{}, fmt.Errorf("markets.id: %w", ErrUniqueViolation)
	}
	m := db.Market{
		ID:           arg.ID,
		Question:     arg.Question,
		Description:  arg.Description,
		Category:     arg.Category,
		MarketType:   arg.MarketType,
		Status:       db.MarketStatusOpen,
		ConditionID:  arg.ConditionID,
		YesTokenID:   arg.YesTokenID,
		NoTokenID:    arg.NoTokenID,
		PoolAddress:  arg.PoolAddress,
		OracleFeedID: arg.OracleFeedID,
		StrikePrice:  arg.StrikePrice,
		EspnEventID:  arg.EspnEventID,
		EspnTeam:     arg.EspnTeam,
		YesPrice:     arg.YesPrice,
		NoPrice:      arg.NoPrice,
		Volume:       decimal.Zero,
		EndTime:      arg.EndTime,
		CreatedBy:    arg.CreatedBy,
		CreatedAt:    q.d.now(),
	}
	q.d.markets[m.ID] = m
	return m, nil
}

func (q *memQuerier) GetMarket(ctx context.Context, id uuid.UUID) (db.Market, error) {
	unlock, err := q.enter("GetMarket")
	if err != nil {
		return db.Market{}, err
	}
	defer unlock()
	m, ok := q.d.markets[id]
	if !ok {
		return db.Market{}, pgx.ErrNoRows
	}
	return m, nil
}

func (q *memQuerier) ListMarkets(ctx context.Context, arg db.ListMarketsParams) ([]db.Market, error) {
	unlock, err := q.enter("ListMarkets")
	if err != nil {
		return nil, err
	}
	defer unlock()
	items := []db.Market{}
	for _, m := range q.d.markets {
		if arg.Category != "" && m.Category != arg.Category {
			continue
		}
		if arg.Status != "" && string(m.Status) != arg.Status {
			continue
		}
		if arg.MarketType != "" && string(m.MarketType) != arg.MarketType {
			continue
		}
		items = append(items, m)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	start := int(arg.Offset)
	if start > len(items) {
		start = len(items)
	}
	items = items[start:]
	return items[:limitOf(arg.Limit, len(items))], nil
}

func (q *memQuerier) ListMarketsPastEnd(ctx context.Context, now time.Time) ([]db.Market, error) {
	unlock, err := q.enter("ListMarketsPastEnd")
	if err != nil {
		return nil, err
	}
	defer unlock()
	items := []db.Market{}
	for _, m := range q.d.markets {
		if m.Status != db.MarketStatusResolved && !m.EndTime.After(now) {
			items = append(items, m)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].EndTime.Before(items[j].EndTime) })
	return items, nil
}

func (q *memQuerier) UpdateMarketPrices(ctx context.Context, arg db.UpdateMarketPricesParams) error {
	unlock, err := q.enter("UpdateMarketPrices")
	if err != nil {
		return err
	}
	defer unlock()
	m, ok := q.d.markets[arg.ID]
	if !ok {
		return nil
	}
	m.YesPrice = arg.YesPrice
	m.NoPrice = arg.NoPrice
	m.Volume = m.Volume.Add(arg.VolumeDelta)
	q.d.markets[arg.ID] = m
	return nil
}

func (q *memQuerier) SetMarketStatus(ctx context.Context, arg db.SetMarketStatusParams) error {
	unlock, err := q.enter("SetMarketStatus")
	if err != nil {
		return err
	}
	defer unlock()
	m, ok := q.d.markets[arg.ID]
	if !ok || m.Status == db.MarketStatusResolved {
		return nil
	}
	m.Status = arg.Status
	q.d.markets[arg.ID] = m
	return nil
}

func (q *memQuerier) ResolveMarket(ctx context.Context, arg db.ResolveMarketParams) (db.Market, error) {
	unlock, err := q.enter("ResolveMarket")
	if err != nil {
		return db.Market{}, err
	}
	defer unlock()
	m, ok := q.d.markets[arg.ID]
	if !ok || m.Status == db.MarketStatusResolved {
		return db.Market{}, pgx.ErrNoRows
	}
	outcome := arg.Outcome
	resolvedAt := arg.ResolvedAt
	m.Status = db.MarketStatusResolved
	m.Outcome = &outcome
	m.ResolvedAt = &resolvedAt
	q.d.markets[arg.ID] = m
	return m, nil
}

// --- orders ---

func (q *memQuerier) CreateOrder(ctx context.Context, arg db.CreateOrderParams) (db.Order, error) {
	unlock, err := q.enter("CreateOrder")
	if err != nil {
		return db.Order{}, err
	}
	defer unlock()
	if _, ok := q.d.orders[arg.ID]; ok {
		return db.Order{}, fmt.Errorf("orders.id: %w", ErrUniqueViolation)
	}
	if _, ok := q.d.markets[arg.MarketID]; !ok {
		return db.Order{}, errors.New("dbtest: orders.market_id foreign key violation")
	}
	created := arg.CreatedAt
	if created.IsZero() {
		created = q.d.now()
	}
	o := db.Order{
		ID:         arg.ID,
		MarketID:   arg.MarketID,
		Maker:      arg.Maker,
		Outcome:    arg.Outcome,
		Side:       arg.Side,
		Price:      arg.Price,
		Size:       arg.Size,
		Filled:     arg.Filled,
		OrderType:  arg.OrderType,
		Status:     arg.Status,
		Salt:       arg.Salt,
		Nonce:      arg.Nonce,
		Expiration: arg.Expiration,
		Signature:  arg.Signature,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
	q.d.orders[o.ID] = o
	return o, nil
}

func (q *memQuerier) GetOrder(ctx context.Context, id uuid.UUID) (db.Order, error) {
	unlock, err := q.enter("GetOrder")
	if err != nil {
		return db.Order{}, err
	}
	defer unlock()
	o, ok := q.d.orders[id]
	if !ok {
		return db.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func sortOrdersNewestFirst(items []db.Order) {
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
}

func (q *memQuerier) ListOrdersByMarket(ctx context.Context, arg db.ListOrdersByMarketParams) ([]db.Order, error) {
	unlock, err := q.enter("ListOrdersByMarket")
	if err != nil {
		return nil, err
	}
	defer unlock()
	items := []db.Order{}
	for _, o := range q.d.orders {
		if o.MarketID != arg.MarketID {
			continue
		}
		if arg.Status != "" && string(o.Status) != arg.Status {
			continue
		}
		items = append(items, o)
	}
	sortOrdersNewestFirst(items)
	return items[:limitOf(arg.Limit, len(items))], nil
}

func (q *memQuerier) ListOrdersByMaker(ctx context.Context, arg db.ListOrdersByMakerParams) ([]db.Order, error) {
	unlock, err := q.enter("ListOrdersByMaker")
	if err != nil {
		return nil, err
	}
	defer unlock()
	items := []db.Order{}
	for _, o := range q.d.orders {
		if o.Maker == arg.Maker {
			items = append(items, o)
		}
	}
	sortOrdersNewestFirst(items)
	return items[:limitOf(arg.Limit, len(items))], nil
}

func (q *memQuerier) ListRestingOrders(ctx context.Context) ([]db.Order, error) {
	unlock, err := q.enter("ListRestingOrders")
	if err != nil {
		return nil, err
	}
	defer unlock()
	items := []db.Order{}
	for _, o := range q.d.orders {
		if o.Status == db.OrderStatusOpen || o.Status == db.OrderStatusPartial {
			items = append(items, o)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items, nil
}

func (q *memQuerier) UpdateOrderFill(ctx context.Context, arg db.UpdateOrderFillParams) error {
	unlock, err := q.enter("UpdateOrderFill")
	if err != nil {
		return err
	}
	defer unlock()
	o, ok := q.d.orders[arg.ID]
	if !ok {
		return nil
	}
	if arg.Filled.GreaterThan(o.Size) {
		return errors.New("dbtest: orders check constraint filled <= size")
	}
	o.Filled = arg.Filled
	o.Status = arg.Status
	o.UpdatedAt = q.d.now()
	q.d.orders[arg.ID] = o
	return nil
}

func (q *memQuerier) UpdateOrderStatus(ctx context.Context, arg db.UpdateOrderStatusParams) error {
	unlock, err := q.enter("UpdateOrderStatus")
	if err != nil {
		return err
	}
	defer unlock()
	o, ok := q.d.orders[arg.ID]
	if !ok {
		return nil
	}
	o.Status = arg.Status
	o.UpdatedAt = q.d.now()
	q.d.orders[arg.ID] = o
	return nil
}

func (q *memQuerier) CreateOrderFill(ctx context.Context, arg db.CreateOrderFillParams) (db.OrderFill, error) {
	unlock, err := q.enter("CreateOrderFill")
	if err != nil {
		return db.OrderFill{}, err
	}
	defer unlock()
	if !arg.Size.IsPositive() {
		return db.OrderFill{}, errors.New("dbtest: order_fills check constraint size > 0")
	}
	created := arg.CreatedAt
	if created.IsZero() {
		created = q.d.now()
	}
	f := db.OrderFill{
		ID:           arg.ID,
		MarketID:     arg.MarketID,
		Outcome:      arg.Outcome,
		MakerOrderID: arg.MakerOrderID,
		TakerOrderID: arg.TakerOrderID,
		Maker:        arg.Maker,
		Taker:        arg.Taker,
		Price:        arg.Price,
		Size:         arg.Size,
		TakerSide:    arg.TakerSide,
		CreatedAt:    created,
	}
	q.d.fills = append(q.d.fills, f)
	return f, nil
}

func (q *memQuerier) ListFillsByMarket(ctx context.Context, arg db.ListFillsByMarketParams) ([]db.OrderFill, error) {
	unlock, err := q.enter("ListFillsByMarket")
	if err != nil {
		return nil, err
	}
	defer unlock()
	items := []db.OrderFill{}
	for i := len(q.d.fills) - 1; i >= 0; i-- {
		if q.d.fills[i].MarketID == arg.MarketID {
			items = append(items, q.d.fills[i])
		}
	}
	return items[:limitOf(arg.Limit, len(items))], nil
}

// --- amm ---

func (q *memQuerier) UpsertAmmPool(ctx context.Context, arg db.UpsertAmmPoolParams) (db.AmmPool, error) {
	unlock, err := q.enter("UpsertAmmPool")
	if err != nil {
		return db.AmmPool{}, err
	}
	defer unlock()
	p := db.AmmPool{
		Address:     arg.Address,
		MarketID:    arg.MarketID,
		YesReserve:  arg.YesReserve,
		NoReserve:   arg.NoReserve,
		TotalShares: arg.TotalShares,
		FeeBps:      arg.FeeBps,
		UpdatedAt:   q.d.now(),
	}
	if existing, ok := q.d.pools[arg.Address]; ok {
		p.MarketID = existing.MarketID
	}
	q.d.pools[arg.Address] = p
	return p, nil
}

func (q *memQuerier) GetAmmPool(ctx context.Context, address string) (db.AmmPool, error) {
	unlock, err := q.enter("GetAmmPool")
	if err != nil {
		return db.AmmPool{}, err
	}
	defer unlock()
	p, ok := q.d.pools[address]
	if !ok {
		return db.AmmPool{}, pgx.ErrNoRows
	}
	return p, nil
}

func (q *memQuerier) CreateAmmSwap(ctx context.Context, arg db.CreateAmmSwapParams) (int64, error) {
	unlock, err := q.enter("CreateAmmSwap")
	if err != nil {
		return 0, err
	}
	defer unlock()
	for _, s := range q.d.swaps {
		if s.TxHash == arg.TxHash {
			return 0, nil
		}
	}
	created := arg.CreatedAt
	if created.IsZero() {
		created = q.d.now()
	}
	q.d.swaps = append(q.d.swaps, db.AmmSwap{
		ID:               arg.ID,
		PoolAddress:      arg.PoolAddress,
		MarketID:         arg.MarketID,
		Trader:           arg.Trader,
		Outcome:          arg.Outcome,
		Side:             arg.Side,
		CollateralAmount: arg.CollateralAmount,
		TokenAmount:      arg.TokenAmount,
		Fee:              arg.Fee,
		TxHash:           arg.TxHash,
		CreatedAt:        created,
	})
	return 1, nil
}

func (q *memQuerier) ListAmmSwapsByPool(ctx context.Context, arg db.ListAmmSwapsByPoolParams) ([]db.AmmSwap, error) {
	unlock, err := q.enter("ListAmmSwapsByPool")
	if err != nil {
		return nil, err
	}
	defer unlock()
	items := []db.AmmSwap{}
	for i := len(q.d.swaps) - 1; i >= 0; i-- {
		if q.d.swaps[i].PoolAddress == arg.PoolAddress {
			items = append(items, q.d.swaps[i])
		}
	}
	return items[:limitOf(arg.Limit, len(items))], nil
}

func (q *memQuerier) GetLpPosition(ctx context.Context, arg db.GetLpPositionParams) (db.LpPosition, error) {
	unlock, err := q.enter("GetLpPosition")
	if err != nil {
		return db.LpPosition{}, err
	}
	defer unlock()
	p, ok := q.d.lps[lpKey{arg.PoolAddress, arg.Provider}]
	if !ok {
		return db.LpPosition{}, pgx.ErrNoRows
	}
	return p, nil
}

func (q *memQuerier) AddLpShares(ctx context.Context, arg db.AddLpSharesParams) (db.LpPosition, error) {
	unlock, err := q.enter("AddLpShares")
	if err != nil {
		return db.LpPosition{}, err
	}
	defer unlock()
	key := lpKey{arg.PoolAddress, arg.Provider}
	p, ok := q.d.lps[key]
	if !ok {
		p = db.LpPosition{PoolAddress: arg.PoolAddress, Provider: arg.Provider, Shares: decimal.Zero}
	}
	p.Shares = p.Shares.Add(arg.Delta)
	q.d.lps[key] = p
	return p, nil
}

// --- positions ---

func (q *memQuerier) GetPosition(ctx context.Context, arg db.GetPositionParams) (db.Position, error) {
	unlock, err := q.enter("GetPosition")
	if err != nil {
		return db.Position{}, err
	}
	defer unlock()
	p, ok := q.d.positions[positionKey{arg.MarketID, arg.Owner, arg.Outcome}]
	if !ok {
		return db.Position{}, pgx.ErrNoRows
	}
	return p, nil
}

func (q *memQuerier) UpsertPosition(ctx context.Context, arg db.UpsertPositionParams) (db.Position, error) {
	unlock, err := q.enter("UpsertPosition")
	if err != nil {
		return db.Position{}, err
	}
	defer unlock()
	if arg.Size.IsNegative() {
		return db.Position{}, ErrCheckViolation
	}
	p := db.Position{
		MarketID:    arg.MarketID,
		Owner:       arg.Owner,
		Outcome:     arg.Outcome,
		Size:        arg.Size,
		AvgPrice:    arg.AvgPrice,
		RealizedPnl: arg.RealizedPnl,
	}
	q.d.positions[positionKey{arg.MarketID, arg.Owner, arg.Outcome}] = p
	return p, nil
}

func sortPositions(items []db.Position) {
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.MarketID != b.MarketID {
			return a.MarketID.String() < b.MarketID.String()
		}
		if a.Owner != b.Owner {
			return a.Owner < b.Owner
		}
		return a.Outcome < b.Outcome
	})
}

func (q *memQuerier) ListPositionsByOwner(ctx context.Context, owner string) ([]db.Position, error) {
	unlock, err := q.enter("ListPositionsByOwner")
	if err != nil {
		return nil, err
	}
	defer unlock()
	items := []db.Position{}
	for k, p := range q.d.positions {
		if k.owner == owner {
			items = append(items, p)
		}
	}
	sortPositions(items)
	return items, nil
}

func (q *memQuerier) ListPositionsByMarket(ctx context.Context, marketID uuid.UUID) ([]db.Position, error) {
	unlock, err := q.enter("ListPositionsByMarket")
	if err != nil {
		return nil, err
	}
	defer unlock()
	items := []db.Position{}
	for k, p := range q.d.positions {
		if k.market == marketID {
			items = append(items, p)
		}
	}
	sortPositions(items)
	return items, nil
}

// --- feeds ---

func (q *memQuerier) InsertPythPriceUpdate(ctx context.Context, arg db.InsertPythPriceUpdateParams) (int64, error) {
	unlock, err := q.enter("InsertPythPriceUpdate")
	if err != nil {
		return 0, err
	}
	defer unlock()
	for _, p := range q.d.prices {
		if p.FeedID == arg.FeedID && p.PublishTime.Equal(arg.PublishTime) {
			return 0, nil
		}
	}
	q.d.nextPriceID++
	q.d.prices = append(q.d.prices, db.PythPriceUpdate{
		ID:          q.d.nextPriceID,
		FeedID:      arg.FeedID,
		Price:       arg.Price,
		Conf:        arg.Conf,
		Expo:        arg.Expo,
		PublishTime: arg.PublishTime,
		CreatedAt:   q.d.now(),
	})
	return 1, nil
}

func (q *memQuerier) GetLatestPythPrice(ctx context.Context, feedID string) (db.PythPriceUpdate, error) {
	unlock, err := q.enter("GetLatestPythPrice")
	if err != nil {
		return db.PythPriceUpdate{}, err
	}
	defer unlock()
	var (
		latest db.PythPriceUpdate
		found  bool
	)
	for _, p := range q.d.prices {
		if p.FeedID == feedID && (!found || p.PublishTime.After(latest.PublishTime)) {
			latest, found = p, true
		}
	}
	if !found {
		return db.PythPriceUpdate{}, pgx.ErrNoRows
	}
	return latest, nil
}

func (q *memQuerier) GetFirstPythPriceAfter(ctx context.Context, arg db.GetFirstPythPriceAfterParams) (db.PythPriceUpdate, error) {
	unlock, err := q.enter("GetFirstPythPriceAfter")
	if err != nil {
		return db.PythPriceUpdate{}, err
	}
	defer unlock()
	var (
		first db.PythPriceUpdate
		found bool
	)
	for _, p := range q.d.prices {
		if p.FeedID != arg.FeedID || p.PublishTime.Before(arg.PublishTime) {
			continue
		}
		if !found || p.PublishTime.Before(first.PublishTime) {
			first, found = p, true
		}
	}
	if !found {
		return db.PythPriceUpdate{}, pgx.ErrNoRows
	}
	return first, nil
}

func (q *memQuerier) InsertMarketPriceHistory(ctx context.Context, arg db.InsertMarketPriceHistoryParams) error {
	unlock, err := q.enter("InsertMarketPriceHistory")
	if err != nil {
		return err
	}
	defer unlock()
	key := historyKey{arg.MarketID, arg.Resolution, arg.Time.Time.UnixNano()}
	bar := db.MarketPriceHistory{
		Time:       arg.Time.Time,
		MarketID:   arg.MarketID,
		Resolution: arg.Resolution,
		Open:       arg.Open,
		High:       arg.High,
		Low:        arg.Low,
		Close:      arg.Close,
		Volume:     arg.Volume,
	}
	if existing, ok := q.d.history[key]; ok {
		bar.Open = existing.Open
		bar.High = decimal.Max(existing.High, arg.High)
		bar.Low = decimal.Min(existing.Low, arg.Low)
	}
	q.d.history[key] = bar
	return nil
}

func (q *memQuerier) GetMarketPriceHistory(ctx context.Context, arg db.GetMarketPriceHistoryParams) ([]db.MarketPriceHistory, error) {
	unlock, err := q.enter("GetMarketPriceHistory")
	if err != nil {
		return nil, err
	}
	defer unlock()
	items := []db.MarketPriceHistory{}
	for _, bar := range q.d.history {
		if bar.MarketID != arg.MarketID || bar.Resolution != arg.Resolution {
			continue
		}
		if bar.Time.Before(arg.Time.Time) || bar.Time.After(arg.Time_2.Time) {
			continue
		}
		items = append(items, bar)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Time.Before(items[j].Time) })
	return items, nil
}

// --- rewards, api keys, comments ---

func (q *memQuerier) AddRewardPoints(ctx context.Context, arg db.AddRewardPointsParams) error {
	unlock, err := q.enter("AddRewardPoints")
	if err != nil {
		return err
	}
	defer unlock()
	q.d.points[arg.Owner] = q.d.points[arg.Owner].Add(arg.Points)
	return nil
}

func (q *memQuerier) CreateRewardHistory(ctx context.Context, arg db.CreateRewardHistoryParams) (db.RewardHistory, error) {
	unlock, err := q.enter("CreateRewardHistory")
	if err != nil {
		return db.RewardHistory{}, err
	}
	defer unlock()
	q.d.nextRewards++
	h := db.RewardHistory{
		ID:        q.d.nextRewards,
		Owner:     arg.Owner,
		Points:    arg.Points,
		Reason:    arg.Reason,
		RefID:     arg.RefID,
		CreatedAt: q.d.now(),
	}
	q.d.rewards = append(q.d.rewards, h)
	return h, nil
}

func (q *memQuerier) GetRewardPoints(ctx context.Context, owner string) (db.RewardPoints, error) {
	unlock, err := q.enter("GetRewardPoints")
	if err != nil {
		return db.RewardPoints{}, err
	}
	defer unlock()
	p, ok := q.d.points[owner]
	if !ok {
		return db.RewardPoints{}, pgx.ErrNoRows
	}
	return db.RewardPoints{Owner: owner, Points: p}, nil
}

func (q *memQuerier) ListRewardHistory(ctx context.Context, arg db.ListRewardHistoryParams) ([]db.RewardHistory, error) {
	unlock, err := q.enter("ListRewardHistory")
	if err != nil {
		return nil, err
	}
	defer unlock()
	items := []db.RewardHistory{}
	for i := len(q.d.rewards) - 1; i >= 0; i-- {
		if q.d.rewards[i].Owner == arg.Owner {
			items = append(items, q.d.rewards[i])
		}
	}
	return items[:limitOf(arg.Limit, len(items))], nil
}

func (q *memQuerier) ListLeaderboard(ctx context.Context, limit int32) ([]db.RewardPoints, error) {
	unlock, err := q.enter("ListLeaderboard")
	if err != nil {
		return nil, err
	}
	defer unlock()
	items := []db.RewardPoints{}
	for owner, points := range q.d.points {
		items = append(items, db.RewardPoints{Owner: owner, Points: points})
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].Points.Equal(items[j].Points) {
			return items[i].Points.GreaterThan(items[j].Points)
		}
		return items[i].Owner < items[j].Owner
	})
	return items[:limitOf(limit, len(items))], nil
}

func (q *memQuerier) CreateApiKey(ctx context.Context, arg db.CreateApiKeyParams) (db.ApiKey, error) {
	unlock, err := q.enter("CreateApiKey")
	if err != nil {
		return db.ApiKey{}, err
	}
	defer unlock()
	for _, k := range q.d.apiKeys {
		if k.Prefix == arg.Prefix {
			return db.ApiKey{}, fmt.Errorf("api_keys.prefix: %w", ErrUniqueViolation)
		}
	}
	k := db.ApiKey{
		ID:          arg.ID,
		UserID:      arg.UserID,
		Prefix:      arg.Prefix,
		SecretHash:  arg.SecretHash,
		Label:       arg.Label,
		HourlyLimit: arg.HourlyLimit,
		CreatedAt:   q.d.now(),
	}
	q.d.apiKeys[k.ID] = k
	return k, nil
}

func (q *memQuerier) GetApiKeyByPrefix(ctx context.Context, prefix string) (db.ApiKey, error) {
	unlock, err := q.enter("GetApiKeyByPrefix")
	if err != nil {
		return db.ApiKey{}, err
	}
	defer unlock()
	for _, k := range q.d.apiKeys {
		if k.Prefix == prefix {
			return k, nil
		}
	}
	return db.ApiKey{}, pgx.ErrNoRows
}

func (q *memQuerier) ListApiKeysByUser(ctx context.Context, userID uuid.UUID) ([]db.ApiKey, error) {
	unlock, err := q.enter("ListApiKeysByUser")
	if err != nil {
		return nil, err
	}
	defer unlock()
	items := []db.ApiKey{}
	for _, k := range q.d.apiKeys {
		if k.UserID == userID {
			items = append(items, k)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}

func (q *memQuerier) RevokeApiKey(ctx context.Context, arg db.RevokeApiKeyParams) (int64, error) {
	unlock, err := q.enter("RevokeApiKey")
	if err != nil {
		return 0, err
	}
	defer unlock()
	k, ok := q.d.apiKeys[arg.ID]
	if !ok || k.UserID != arg.UserID || k.Revoked {
		return 0, nil
	}
	k.Revoked = true
	q.d.apiKeys[arg.ID] = k
	return 1, nil
}

func (q *memQuerier) CreateComment(ctx context.Context, arg db.CreateCommentParams) (db.Comment, error) {
	unlock, err := q.enter("CreateComment")
	if err != nil {
		return db.Comment{}, err
	}
	defer unlock()
	c := db.Comment{
		ID:        arg.ID,
		MarketID:  arg.MarketID,
		ParentID:  arg.ParentID,
		Author:    arg.Author,
		Body:      arg.Body,
		CreatedAt: q.d.now(),
	}
	q.d.comments = append(q.d.comments, c)
	return c, nil
}

func (q *memQuerier) GetComment(ctx context.Context, id uuid.UUID) (db.Comment, error) {
	unlock, err := q.enter("GetComment")
	if err != nil {
		return db.Comment{}, err
	}
	defer unlock()
	for _, c := range q.d.comments {
		if c.ID == id {
			return c, nil
		}
	}
	return db.Comment{}, pgx.ErrNoRows
}

func (q *memQuerier) ListCommentsByMarket(ctx context.Context, marketID uuid.UUID) ([]db.Comment, error) {
	unlock, err := q.enter("ListCommentsByMarket")
	if err != nil {
		return nil, err
	}
	defer unlock()
	items := []db.Comment{}
	for _, c := range q.d.comments {
		if c.MarketID == marketID {
			items = append(items, c)
		}
	}
	return items, nil
}
