package spotcore

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Settle applies the fill batch produced by one AddOrder call to the ledger,
// crediting and debiting both counterparties so that the total supply of
// each asset is unchanged.
//
// The taker's funds were locked at the worst case before matching: the full
// limit price for a buy, the full quantity for a sell. Fills execute at the
// maker's price, so a buy taker that fills below its limit has over-locked
// quote. That surplus is released back to available immediately after each
// fill, leaving the standing lock at exactly remaining×limit; the remainder
// of a partially filled order stays locked against the resting order and is
// released on cancellation or by later fills.
//
// A settlement error means the lock step and the book disagree, which is an
// invariant breach, not a rejectable request.
func (l *Ledger) Settle(baseAsset, quoteAsset string, taker *Order, fills []*Fill) error {
	for _, fill := range fills {
		notional := fill.Price.Mul(fill.Quantity)

		if taker.Side == Buy {
			// Buy taker vs sell maker: quote moves taker→maker, base maker→taker.
			if err := l.SpendLocked(taker.UserID, quoteAsset, notional); err != nil {
				return fmt.Errorf("settle trade %d: %w", fill.TradeID, err)
			}
			l.Credit(fill.MakerUserID, quoteAsset, notional)

			if err := l.SpendLocked(fill.MakerUserID, baseAsset, fill.Quantity); err != nil {
				return fmt.Errorf("settle trade %d: %w", fill.TradeID, err)
			}
			l.Credit(taker.UserID, baseAsset, fill.Quantity)

			// Price improvement: the lock assumed the taker's limit.
			surplus := taker.Price.Sub(fill.Price).Mul(fill.Quantity)
			if surplus.IsPositive() {
				if err := l.UnlockFunds(taker.UserID, quoteAsset, surplus); err != nil {
					return fmt.Errorf("settle trade %d: %w", fill.TradeID, err)
				}
			}
		} else {
			// Sell taker vs buy maker: base moves taker→maker, quote maker→taker.
			if err := l.SpendLocked(taker.UserID, baseAsset, fill.Quantity); err != nil {
				return fmt.Errorf("settle trade %d: %w", fill.TradeID, err)
			}
			l.Credit(fill.MakerUserID, baseAsset, fill.Quantity)

			// The maker locked quote at its own bid price, which is the fill price.
			if err := l.SpendLocked(fill.MakerUserID, quoteAsset, notional); err != nil {
				return fmt.Errorf("settle trade %d: %w", fill.TradeID, err)
			}
			l.Credit(taker.UserID, quoteAsset, notional)
		}
	}
	return nil
}

// reservation returns the asset and amount that must be locked before an
// order of the given side enters the book: quote at price×quantity for a
// buy, base at quantity for a sell.
func reservation(side Side, baseAsset, quoteAsset string, price, quantity decimal.Decimal) (string, decimal.Decimal) {
	if side == Buy {
		return quoteAsset, price.Mul(quantity)
	}
	return baseAsset, quantity
}
