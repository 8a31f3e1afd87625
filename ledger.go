package spotcore

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Balance is the custody record for one (user, asset) pair. Both fields are
// never negative; available+locked only changes through a matched pair of
// ledger operations.
type Balance struct {
	Available decimal.Decimal `json:"available"`
	Locked    decimal.Decimal `json:"locked"`
}

// Ledger maps users to their per-asset balances. It is the source of truth
// for fund custody and is mutated exclusively on the engine's sequential
// timeline, so individual operations need no internal locking to stay
// indivisible with respect to each other.
type Ledger struct {
	balances map[string]map[string]*Balance
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[string]map[string]*Balance),
	}
}

func (l *Ledger) balance(userID, asset string) *Balance {
	assets, ok := l.balances[userID]
	if !ok {
		assets = make(map[string]*Balance)
		l.balances[userID] = assets
	}
	b, ok := assets[asset]
	if !ok {
		b = &Balance{Available: decimal.Zero, Locked: decimal.Zero}
		assets[asset] = b
	}
	return b
}

// Deposit credits an amount to the user's available balance.
func (l *Ledger) Deposit(userID, asset string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrInvalidParam
	}
	b := l.balance(userID, asset)
	b.Available = b.Available.Add(amount)
	return nil
}

// LockFunds reserves an amount by moving it from available to locked.
// The check and the move are one step: on ErrInsufficientFunds nothing has
// been mutated.
func (l *Ledger) LockFunds(userID, asset string, amount decimal.Decimal) error {
	b := l.balance(userID, asset)
	if b.Available.LessThan(amount) {
		return ErrInsufficientFunds
	}
	b.Available = b.Available.Sub(amount)
	b.Locked = b.Locked.Add(amount)
	return nil
}

// UnlockFunds releases a reservation back to available. Releasing more than
// is locked would manufacture funds, so it fails loudly instead of clamping.
func (l *Ledger) UnlockFunds(userID, asset string, amount decimal.Decimal) error {
	b := l.balance(userID, asset)
	if b.Locked.LessThan(amount) {
		return fmt.Errorf("unlock %s %s for user %s exceeds locked %s", amount, asset, userID, b.Locked)
	}
	b.Locked = b.Locked.Sub(amount)
	b.Available = b.Available.Add(amount)
	return nil
}

// SpendLocked transfers an amount out of the user's locked balance, used
// when settlement hands funds to a counterparty.
func (l *Ledger) SpendLocked(userID, asset string, amount decimal.Decimal) error {
	b := l.balance(userID, asset)
	if b.Locked.LessThan(amount) {
		return fmt.Errorf("spend %s %s for user %s exceeds locked %s", amount, asset, userID, b.Locked)
	}
	b.Locked = b.Locked.Sub(amount)
	return nil
}

// Credit adds an amount to the user's available balance during settlement.
func (l *Ledger) Credit(userID, asset string, amount decimal.Decimal) {
	b := l.balance(userID, asset)
	b.Available = b.Available.Add(amount)
}

// Balance returns a copy of the user's balance for an asset; zero balances
// for unknown users or assets.
func (l *Ledger) Balance(userID, asset string) Balance {
	assets, ok := l.balances[userID]
	if !ok {
		return Balance{Available: decimal.Zero, Locked: decimal.Zero}
	}
	b, ok := assets[asset]
	if !ok {
		return Balance{Available: decimal.Zero, Locked: decimal.Zero}
	}
	return *b
}

// TotalSupply returns the sum of available+locked for an asset across all
// users. Trading only moves funds between counterparties, so this is
// invariant under matching and settlement.
func (l *Ledger) TotalSupply(asset string) decimal.Decimal {
	total := decimal.Zero
	for _, assets := range l.balances {
		if b, ok := assets[asset]; ok {
			total = total.Add(b.Available).Add(b.Locked)
		}
	}
	return total
}

// Snapshot serializes all balances, sorted by user ID for deterministic
// output.
func (l *Ledger) Snapshot() []UserBalances {
	users := make([]string, 0, len(l.balances))
	for userID := range l.balances {
		users = append(users, userID)
	}
	sort.Strings(users)

	result := make([]UserBalances, 0, len(users))
	for _, userID := range users {
		assets := make(map[string]Balance, len(l.balances[userID]))
		for asset, b := range l.balances[userID] {
			assets[asset] = *b
		}
		result = append(result, UserBalances{UserID: userID, Assets: assets})
	}
	return result
}

// Restore replaces the ledger contents with a snapshot.
func (l *Ledger) Restore(snapshot []UserBalances) {
	l.balances = make(map[string]map[string]*Balance, len(snapshot))
	for _, ub := range snapshot {
		assets := make(map[string]*Balance, len(ub.Assets))
		for asset, b := range ub.Assets {
			cpy := b
			assets[asset] = &cpy
		}
		l.balances[ub.UserID] = assets
	}
}
