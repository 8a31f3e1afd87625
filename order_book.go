package spotcore

import (
	"github.com/shopspring/decimal"
)

// OrderBook holds the resting liquidity of one market. It is not safe for
// concurrent use: every mutation goes through the engine's sequential
// processing loop, which is what makes a lock-funds/match/settle sequence
// atomic with respect to other requests.
type OrderBook struct {
	market      string
	baseAsset   string
	quoteAsset  string
	nextSeq     uint64
	lastTradeID uint64
	bids        *queue
	asks        *queue
}

// NewOrderBook creates an empty order book for a market.
func NewOrderBook(market, baseAsset, quoteAsset string) *OrderBook {
	return &OrderBook{
		market:     market,
		baseAsset:  baseAsset,
		quoteAsset: quoteAsset,
		bids:       newBidQueue(),
		asks:       newAskQueue(),
	}
}

// Market returns the market identifier.
func (b *OrderBook) Market() string {
	return b.market
}

// BaseAsset returns the asset being traded.
func (b *OrderBook) BaseAsset() string {
	return b.baseAsset
}

// QuoteAsset returns the asset the price is denominated in.
func (b *OrderBook) QuoteAsset() string {
	return b.quoteAsset
}

// LastTradeID returns the most recently assigned trade ID.
func (b *OrderBook) LastTradeID() uint64 {
	return b.lastTradeID
}

// AddOrder matches the incoming order against the opposite side under
// price-time priority and rests the remainder, if any, at its price.
// Fills are priced at the resting maker's price. Zero matches is a normal
// outcome: the order rests fully.
func (b *OrderBook) AddOrder(order *Order) (decimal.Decimal, []*Fill) {
	mine, opposite := b.bids, b.asks
	if order.Side == Sell {
		mine, opposite = b.asks, b.bids
	}

	executed := decimal.Zero
	var fills []*Fill

	for order.Remaining().IsPositive() {
		maker := opposite.peekHead()
		if maker == nil {
			break
		}

		// Marketability: an incoming buy crosses asks priced at or below its
		// limit, an incoming sell crosses bids priced at or above it.
		if order.Side == Buy && order.Price.LessThan(maker.Price) ||
			order.Side == Sell && order.Price.GreaterThan(maker.Price) {
			break
		}

		qty := order.Remaining()
		if maker.Remaining().LessThan(qty) {
			qty = maker.Remaining()
		}

		b.lastTradeID++
		fills = append(fills, &Fill{
			TradeID:      b.lastTradeID,
			Price:        maker.Price,
			Quantity:     qty,
			TakerOrderID: order.ID,
			MakerOrderID: maker.ID,
			MakerUserID:  maker.UserID,
		})

		order.Filled = order.Filled.Add(qty)
		executed = executed.Add(qty)
		opposite.fillOrder(maker, qty)
	}

	if order.Remaining().IsPositive() {
		b.nextSeq++
		order.Sequence = b.nextSeq
		mine.insertOrder(order)
	}

	return executed, fills
}

// Order returns the resting order with the given ID on one side, or nil.
func (b *OrderBook) Order(orderID string, side Side) *Order {
	if side == Buy {
		return b.bids.order(orderID)
	}
	return b.asks.order(orderID)
}

// CancelOrder removes a resting order by ID and returns it so the caller can
// release the remaining fund reservation. Returns ErrOrderNotFound when the
// ID is absent from the given side.
func (b *OrderBook) CancelOrder(orderID string, side Side) (*Order, error) {
	q := b.bids
	if side == Sell {
		q = b.asks
	}

	order := q.order(orderID)
	if order == nil {
		return nil, ErrOrderNotFound
	}

	q.removeOrder(order)
	return order, nil
}

// Depth returns the complete set of non-empty price levels on both sides.
func (b *OrderBook) Depth() *Depth {
	return &Depth{
		Bids: b.bids.depth(),
		Asks: b.asks.depth(),
	}
}

// LevelQuantity returns the open aggregate at a price level, zero when the
// level is empty. Used for incremental depth events.
func (b *OrderBook) LevelQuantity(side Side, price decimal.Decimal) decimal.Decimal {
	if side == Buy {
		return b.bids.levelQuantity(price)
	}
	return b.asks.levelQuantity(price)
}

// OpenOrders returns all resting orders belonging to a user, bids first.
func (b *OrderBook) OpenOrders(userID string) []*Order {
	orders := b.bids.openOrders(userID)
	return append(orders, b.asks.openOrders(userID)...)
}

// Snapshot captures the full book state: both sides in priority order plus
// the trade and sequence counters.
func (b *OrderBook) Snapshot() *OrderBookSnapshot {
	return &OrderBookSnapshot{
		Market:      b.market,
		BaseAsset:   b.baseAsset,
		QuoteAsset:  b.quoteAsset,
		LastTradeID: b.lastTradeID,
		NextSeq:     b.nextSeq,
		Bids:        b.bids.toSnapshot(),
		Asks:        b.asks.toSnapshot(),
	}
}

// Restore rebuilds the book from a snapshot. Orders are re-inserted in the
// snapshot's priority order, which reproduces FIFO positions exactly.
func (b *OrderBook) Restore(snap *OrderBookSnapshot) {
	b.market = snap.Market
	b.baseAsset = snap.BaseAsset
	b.quoteAsset = snap.QuoteAsset
	b.lastTradeID = snap.LastTradeID
	b.nextSeq = snap.NextSeq
	b.bids = newBidQueue()
	b.asks = newAskQueue()

	for i := range snap.Bids {
		order := snap.Bids[i]
		b.bids.insertOrder(&order)
	}
	for i := range snap.Asks {
		order := snap.Asks[i]
		b.asks.insertOrder(&order)
	}
}
