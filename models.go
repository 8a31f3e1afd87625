package spotcore

import (
	"github.com/shopspring/decimal"
)

type Side int8

const (
	Buy  Side = 1
	Sell Side = 2
)

// String returns the wire representation of the side.
func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Order represents the state of a limit order. While the order rests in a
// book it is owned exclusively by that book; it leaves the book in the same
// operation that brings Filled up to Quantity, or on cancellation.
type Order struct {
	ID       string          `json:"id"`
	Market   string          `json:"market"`
	Side     Side            `json:"side"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Filled   decimal.Decimal `json:"filled"`
	UserID   string          `json:"user_id"`

	// Sequence is assigned when the order is inserted into a book and is the
	// time-priority tie-break at equal prices. Wall-clock timestamps are not
	// monotonic under clock skew, so they are never used for priority.
	Sequence uint64 `json:"sequence"`

	// Intrusive linked list pointers for the price level FIFO (ignored by JSON).
	next *Order
	prev *Order
}

// Remaining returns the unfilled quantity of the order.
func (o *Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.Filled)
}

// Fill is one match between an incoming taker order and a resting maker
// order. Fills are immutable once created and always priced at the maker's
// resting price.
type Fill struct {
	TradeID      uint64          `json:"trade_id"`
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
	TakerOrderID string          `json:"taker_order_id"`
	MakerOrderID string          `json:"maker_order_id"`
	MakerUserID  string          `json:"maker_user_id"`
}

// PriceLevel is the aggregated open (unfilled) quantity resting at one price.
type PriceLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// Depth is a point-in-time view of all non-empty price levels, best price
// first on each side.
type Depth struct {
	Bids []PriceLevel `json:"bids"`
	Asks []PriceLevel `json:"asks"`
}

// TradeEvent is published on the trade@{market} topic after settlement.
// Prices and quantities are strings to prevent precision loss in JSON.
type TradeEvent struct {
	Market      string `json:"market"`
	TradeID     uint64 `json:"trade_id"`
	Price       string `json:"price"`
	Quantity    string `json:"quantity"`
	MakerUserID string `json:"maker_user_id"`
	TakerSide   Side   `json:"taker_side"`
	Timestamp   int64  `json:"timestamp"`
}

// DepthEvent is an incremental update published on the depth@{market} topic.
// Quantity is the new aggregate at the price level; "0" signals the level
// is now empty.
type DepthEvent struct {
	Market    string `json:"market"`
	Side      Side   `json:"side"`
	Price     string `json:"price"`
	Quantity  string `json:"quantity"`
	Timestamp int64  `json:"timestamp"`
}
