package clob

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	DefaultTickSize = decimal.RequireFromString("0.01")
	DefaultMinSize  = decimal.NewFromInt(1)
)

// Engine owns every book and serialises matching per book.
type Engine struct {
	tick    decimal.Decimal
	minSize decimal.Decimal
	now     func() time.Time

	mu     sync.RWMutex
	books  map[BookKey]*Book
	owners map[uuid.UUID]BookKey
	closed map[uuid.UUID]struct{}

	seq atomic.Uint64
}

// NewEngine creates an engine with the given tick size and minimum order size.
func NewEngine(tick, minSize decimal.Decimal) *Engine {
	return &Engine{
		tick:    tick,
		minSize: minSize,
		now:     time.Now,
		books:   make(map[BookKey]*Book),
		owners:  make(map[uuid.UUID]BookKey),
		closed:  make(map[uuid.UUID]struct{}),
	}
}

// SetClock overrides the time source used for expiry checks.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

func (e *Engine) book(key BookKey) (*Book, error) {
	e.mu.RLock()
	b, ok := e.books[key]
	e.mu.RUnlock()
	if ok {
		return b, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, closed := e.closed[key.MarketID]; closed {
		return nil, ErrMarketClosed
	}
	if b, ok = e.books[key]; !ok {
		b = newBook(key)
		e.books[key] = b
	}
	return b, nil
}

// lock returns key's book with its mutex held. A book dropped between the
// lookup and the lock is reported as ErrMarketClosed.
func (e *Engine) lock(key BookKey) (*Book, error) {
	b, err := e.book(key)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	if b.dropped {
		b.mu.Unlock()
		return nil, ErrMarketClosed
	}
	return b, nil
}

func (e *Engine) track(id uuid.UUID, key BookKey) {
	e.mu.Lock()
	e.owners[id] = key
	e.mu.Unlock()
}

func (e *Engine) untrack(ids []uuid.UUID) {
	if len(ids) == 0 {
		return
	}
	e.mu.Lock()
	for _, id := range ids {
		delete(e.owners, id)
	}
	e.mu.Unlock()
}

// Validate checks an incoming order against the engine's grid and limits.
func (e *Engine) Validate(o Order, now time.Time) error {
	if o.Side != Buy && o.Side != Sell {
		return ErrInvalidSide
	}
	switch o.Type {
	case GTC, FOK, FAK:
	case GTD:
		if o.Expiration.IsZero() {
			return ErrMissingExpiration
		}
	default:
		return ErrInvalidOrderType
	}
	if !o.Expiration.IsZero() && !o.Expiration.After(now) {
		return ErrAlreadyExpired
	}
	if !o.Price.IsPositive() || o.Price.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return ErrInvalidPrice
	}
	if !o.Price.Mod(e.tick).IsZero() {
		return ErrInvalidPrice
	}
	if o.Size.LessThan(e.minSize) {
		return ErrInvalidSize
	}
	return nil
}

// Execute validates and matches taker against its book. persist receives the
// plan while the book lock is held; the book only changes when persist
// returns nil, so a failed database write leaves the book untouched.
func (e *Engine) Execute(key BookKey, taker Order, persist func(Plan) error) (Plan, error) {
	now := e.now()
	if err := e.Validate(taker, now); err != nil {
		return Plan{}, err
	}
	taker.Filled = decimal.Zero
	if taker.CreatedAt.IsZero() {
		taker.CreatedAt = now
	}

	b, err := e.lock(key)
	if err != nil {
		return Plan{}, err
	}
	defer b.mu.Unlock()

	if _, exists := b.index[taker.ID]; exists {
		return Plan{}, ErrDuplicateOrder
	}

	taker.seq = e.seq.Add(1)
	p := b.plan(taker, now)
	if err := persist(p); err != nil {
		return Plan{}, err
	}

	removed := b.commit(p)
	e.untrack(removed)
	if p.Rest {
		e.track(taker.ID, key)
	}
	return p, nil
}

// Load rests a previously persisted order without matching. Orders must be
// supplied in arrival order to keep time priority.
func (e *Engine) Load(key BookKey, o Order) error {
	b, err := e.lock(key)
	if err != nil {
		return err
	}
	defer b.mu.Unlock()

	if _, exists := b.index[o.ID]; exists {
		return ErrDuplicateOrder
	}
	if !o.Remaining().IsPositive() {
		return fmt.Errorf("load %s: %w", o.ID, ErrInvalidSize)
	}
	o.seq = e.seq.Add(1)
	b.insert(&o)
	e.track(o.ID, key)
	return nil
}

// Lookup returns a resting order by id.
func (e *Engine) Lookup(id uuid.UUID) (Order, BookKey, bool) {
	e.mu.RLock()
	key, ok := e.owners[id]
	e.mu.RUnlock()
	if !ok {
		return Order{}, BookKey{}, false
	}
	b, err := e.lock(key)
	if err != nil {
		return Order{}, BookKey{}, false
	}
	defer b.mu.Unlock()
	o, ok := b.index[id]
	if !ok {
		return Order{}, BookKey{}, false
	}
	return *o, key, true
}

// Cancel removes a resting order after persist succeeds.
func (e *Engine) Cancel(id uuid.UUID, persist func(Order) error) (Order, error) {
	e.mu.RLock()
	key, ok := e.owners[id]
	e.mu.RUnlock()
	if !ok {
		return Order{}, ErrOrderNotFound
	}

	b, err := e.lock(key)
	if err != nil {
		return Order{}, ErrOrderNotFound
	}
	defer b.mu.Unlock()

	o, ok := b.index[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	cancelled := *o
	cancelled.Status = StatusCancelled
	if err := persist(cancelled); err != nil {
		return Order{}, err
	}
	b.remove(id)
	e.untrack([]uuid.UUID{id})
	return cancelled, nil
}

// Expire removes every resting order whose expiration is at or before now.
// persist is called once per affected book; a failing book is left intact and
// the first error is returned after the remaining books are processed.
func (e *Engine) Expire(now time.Time, persist func(BookKey, []Order) error) (int, error) {
	e.mu.RLock()
	books := make([]*Book, 0, len(e.books))
	for _, b := range e.books {
		books = append(books, b)
	}
	e.mu.RUnlock()

	var (
		count    int
		firstErr error
	)
	for _, b := range books {
		b.mu.Lock()
		expired := b.expired(now)
		if len(expired) == 0 {
			b.mu.Unlock()
			continue
		}
		for i := range expired {
			expired[i].Status = StatusExpired
		}
		if err := persist(b.key, expired); err != nil {
			b.mu.Unlock()
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		ids := make([]uuid.UUID, 0, len(expired))
		for _, o := range expired {
			b.remove(o.ID)
			ids = append(ids, o.ID)
		}
		b.mu.Unlock()
		e.untrack(ids)
		count += len(ids)
	}
	return count, firstErr
}

// Snapshot returns aggregated depth for one book. depth <= 0 means all levels.
func (e *Engine) Snapshot(key BookKey, depth int) Snapshot {
	b, err := e.lock(key)
	if err != nil {
		return newBook(key).snapshot(depth)
	}
	defer b.mu.Unlock()
	return b.snapshot(depth)
}

// Resting lists the resting orders of a book, bids first, in priority order.
func (e *Engine) Resting(key BookKey) []Order {
	b, err := e.lock(key)
	if err != nil {
		return nil
	}
	defer b.mu.Unlock()
	out := make([]Order, 0, len(b.bids)+len(b.asks))
	for _, o := range b.bids {
		out = append(out, *o)
	}
	for _, o := range b.asks {
		out = append(out, *o)
	}
	return out
}

// Keys lists every book the engine knows about.
func (e *Engine) Keys() []BookKey {
	e.mu.RLock()
	defer e.mu.RUnlock()
	keys := make([]BookKey, 0, len(e.books))
	for k := range e.books {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].MarketID != keys[j].MarketID {
			return keys[i].MarketID.String() < keys[j].MarketID.String()
		}
		return keys[i].Outcome < keys[j].Outcome
	})
	return keys
}

// Reserve runs fn with key's book locked and the remaining size maker has
// resting on side. No order on that book can execute until fn returns.
func (e *Engine) Reserve(key BookKey, maker string, side Side, fn func(reserved decimal.Decimal) error) error {
	b, err := e.lock(key)
	if err != nil {
		return err
	}
	defer b.mu.Unlock()
	return fn(b.reserved(maker, side))
}

// DropMarket removes every book belonging to a market and returns the
// orders that were resting in them. The market stays closed: later calls
// for its books fail with ErrMarketClosed.
func (e *Engine) DropMarket(marketID uuid.UUID) []Order {
	e.mu.Lock()
	var dropped []*Book
	for k, b := range e.books {
		if k.MarketID == marketID {
			dropped = append(dropped, b)
			delete(e.books, k)
		}
	}
	e.closed[marketID] = struct{}{}
	e.mu.Unlock()

	var out []Order
	for _, b := range dropped {
		b.mu.Lock()
		b.dropped = true
		for id, o := range b.index {
			out = append(out, *o)
			e.untrack([]uuid.UUID{id})
		}
		b.mu.Unlock()
	}
	return out
}
