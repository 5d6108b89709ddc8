package clob

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Book holds the resting orders of one (market, outcome) pair.
// bids: price desc, arrival asc. asks: price asc, arrival asc.
type Book struct {
	key   BookKey
	mu    sync.Mutex
	bids  []*Order
	asks  []*Order
	index map[uuid.UUID]*Order

	// set by DropMarket; a dropped book never takes orders again
	dropped bool
}

func newBook(key BookKey) *Book {
	return &Book{key: key, index: make(map[uuid.UUID]*Order)}
}

func better(side Side, a, b *Order) bool {
	if !a.Price.Equal(b.Price) {
		if side == Buy {
			return a.Price.GreaterThan(b.Price)
		}
		return a.Price.LessThan(b.Price)
	}
	return a.seq < b.seq
}

func (b *Book) sideOf(side Side) *[]*Order {
	if side == Buy {
		return &b.bids
	}
	return &b.asks
}

func (b *Book) insert(o *Order) {
	levels := b.sideOf(o.Side)
	i := sort.Search(len(*levels), func(i int) bool { return better(o.Side, o, (*levels)[i]) })
	*levels = append(*levels, nil)
	copy((*levels)[i+1:], (*levels)[i:])
	(*levels)[i] = o
	b.index[o.ID] = o
}

func (b *Book) remove(id uuid.UUID) (*Order, bool) {
	o, ok := b.index[id]
	if !ok {
		return nil, false
	}
	levels := b.sideOf(o.Side)
	for i, resting := range *levels {
		if resting.ID == id {
			*levels = append((*levels)[:i], (*levels)[i+1:]...)
			break
		}
	}
	delete(b.index, id)
	return o, true
}

// reserved sums the remaining size maker has resting on side.
func (b *Book) reserved(maker string, side Side) decimal.Decimal {
	total := decimal.Zero
	for _, o := range *b.sideOf(side) {
		if o.Maker == maker {
			total = total.Add(o.Remaining())
		}
	}
	return total
}

func crosses(taker Side, limit, resting decimal.Decimal) bool {
	if taker == Buy {
		return resting.LessThanOrEqual(limit)
	}
	return resting.GreaterThanOrEqual(limit)
}

// plan matches taker against the opposite side without mutating the book.
func (b *Book) plan(taker Order, now time.Time) Plan {
	p := Plan{Key: b.key, Taker: taker, Reserved: b.reserved(taker.Maker, taker.Side)}
	opposite := b.asks
	if taker.Side == Sell {
		opposite = b.bids
	}

	if taker.Type == FOK && !b.canFill(taker, opposite, now) {
		p.Taker.Status = StatusCancelled
		return p
	}

	remaining := taker.Remaining()
	selfCross := false
	for _, resting := range opposite {
		if !remaining.IsPositive() {
			break
		}
		if !crosses(taker.Side, taker.Price, resting.Price) {
			break
		}
		if resting.expiredAt(now) {
			p.Expired = append(p.Expired, *resting)
			continue
		}
		if resting.Maker == taker.Maker {
			selfCross = true
			continue
		}
		size := decimal.Min(remaining, resting.Remaining())
		p.Fills = append(p.Fills, Fill{
			MakerOrderID: resting.ID,
			Maker:        resting.Maker,
			Price:        resting.Price,
			Size:         size,
			MakerFilled:  resting.Filled.Add(size),
			MakerSize:    resting.Size,
		})
		remaining = remaining.Sub(size)
	}

	p.Taker.Filled = taker.Size.Sub(remaining)
	switch {
	case !remaining.IsPositive():
		p.Taker.Status = StatusFilled
	case taker.Type == FAK || taker.Type == FOK || selfCross:
		p.Taker.Status = StatusCancelled
	default:
		p.Rest = true
		if p.Taker.Filled.IsPositive() {
			p.Taker.Status = StatusPartial
		} else {
			p.Taker.Status = StatusOpen
		}
	}
	return p
}

func (b *Book) canFill(taker Order, opposite []*Order, now time.Time) bool {
	available := decimal.Zero
	need := taker.Remaining()
	for _, resting := range opposite {
		if !crosses(taker.Side, taker.Price, resting.Price) {
			break
		}
		if resting.expiredAt(now) || resting.Maker == taker.Maker {
			continue
		}
		available = available.Add(resting.Remaining())
		if available.GreaterThanOrEqual(need) {
			return true
		}
	}
	return false
}

// commit applies a plan produced by plan while the same lock was held.
func (b *Book) commit(p Plan) (removed []uuid.UUID) {
	for _, expired := range p.Expired {
		if _, ok := b.remove(expired.ID); ok {
			removed = append(removed, expired.ID)
		}
	}
	for _, f := range p.Fills {
		resting, ok := b.index[f.MakerOrderID]
		if !ok {
			continue
		}
		resting.Filled = f.MakerFilled
		resting.Status = f.MakerStatus()
		if resting.Status == StatusFilled {
			b.remove(resting.ID)
			removed = append(removed, resting.ID)
		}
	}
	if p.Rest {
		taker := p.Taker
		b.insert(&taker)
	}
	return removed
}

func (b *Book) expired(now time.Time) []Order {
	var out []Order
	for _, o := range b.index {
		if o.expiredAt(now) {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Level is an aggregated price level.
type Level struct {
	Price  decimal.Decimal `json:"price"`
	Size   decimal.Decimal `json:"size"`
	Orders int             `json:"orders"`
}

// Snapshot is a depth-limited view of a book.
type Snapshot struct {
	MarketID uuid.UUID        `json:"market_id"`
	Outcome  string           `json:"outcome"`
	Bids     []Level          `json:"bids"`
	Asks     []Level          `json:"asks"`
	BestBid  *decimal.Decimal `json:"best_bid,omitempty"`
	BestAsk  *decimal.Decimal `json:"best_ask,omitempty"`
}

func aggregate(orders []*Order, depth int) []Level {
	levels := []Level{}
	for _, o := range orders {
		n := len(levels)
		if n > 0 && levels[n-1].Price.Equal(o.Price) {
			levels[n-1].Size = levels[n-1].Size.Add(o.Remaining())
			levels[n-1].Orders++
			continue
		}
		if depth > 0 && n == depth {
			break
		}
		levels = append(levels, Level{Price: o.Price, Size: o.Remaining(), Orders: 1})
	}
	return levels
}

func (b *Book) snapshot(depth int) Snapshot {
	s := Snapshot{
		MarketID: b.key.MarketID,
		Outcome:  b.key.Outcome,
		Bids:     aggregate(b.bids, depth),
		Asks:     aggregate(b.asks, depth),
	}
	if len(b.bids) > 0 {
		best := b.bids[0].Price
		s.BestBid = &best
	}
	if len(b.asks) > 0 {
		best := b.asks[0].Price
		s.BestAsk = &best
	}
	return s
}
