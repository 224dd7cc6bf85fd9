// Package ledger tracks the open-position FIFO, the append-only trade
// log, and the two-asset paper account. It is mutated only by the engine
// on its single tick goroutine, so no locks are needed.
package ledger

import "cryptobot/internal/model"

// DustGuardMin is the minimum quote notional for a buy. Spends at or
// below this are skipped as economically meaningless.
const DustGuardMin = 1.0

// Ledger owns positions, trades, and the account for one session.
type Ledger struct {
	account model.Account
	open    []model.Position // FIFO: index 0 is the oldest
	trades  []model.Trade
	nextID  int64
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// Reset clears all state and funds the account with the initial balance.
// The trade ID counter keeps running so IDs stay process-lifetime-unique.
func (l *Ledger) Reset(initialBalance float64) {
	l.account = model.Account{Quote: initialBalance}
	l.open = l.open[:0]
	l.trades = l.trades[:0]
}

// OpenPosition sizes a buy at tradeAmountPct of the quote balance and,
// if the balance suffices and the spend clears the dust guard, appends
// a BUY trade plus an open position with the same identity. ok=false
// means the buy was skipped, a normal decision outcome rather than an error.
func (l *Ledger) OpenPosition(price, tradeAmountPct float64, timeMs int64, reason string) (model.Trade, bool) {
	spend := l.account.Quote * tradeAmountPct / 100
	if spend > l.account.Quote || spend <= DustGuardMin {
		return model.Trade{}, false
	}
	amount := spend / price

	l.nextID++
	t := model.Trade{
		ID:     l.nextID,
		Type:   model.SideBuy,
		Price:  price,
		Amount: amount,
		Time:   timeMs,
		Reason: reason,
	}
	l.trades = append(l.trades, t)
	l.open = append(l.open, model.Position{ID: t.ID, Price: price, Amount: amount, Time: timeMs})

	l.account.Quote -= amount * price
	l.account.Base += amount
	return t, true
}

// ClosePosition removes the open position at index from the FIFO and
// appends the closing SELL trade. ok=false when the index is out of range.
func (l *Ledger) ClosePosition(index int, sellPrice float64, timeMs int64, reason string) (model.Trade, bool) {
	if index < 0 || index >= len(l.open) {
		return model.Trade{}, false
	}
	pos := l.open[index]
	l.open = append(l.open[:index], l.open[index+1:]...)

	l.nextID++
	t := model.Trade{
		ID:     l.nextID,
		Type:   model.SideSell,
		Price:  sellPrice,
		Amount: pos.Amount,
		Time:   timeMs,
		Reason: reason,
	}
	l.trades = append(l.trades, t)

	l.account.Quote += pos.Amount * sellPrice
	l.account.Base -= pos.Amount
	return t, true
}

// Account returns the current account balances.
func (l *Ledger) Account() model.Account { return l.account }

// OpenCount returns the number of open positions.
func (l *Ledger) OpenCount() int { return len(l.open) }

// OpenPositions returns a copy of the open-position FIFO, oldest first.
func (l *Ledger) OpenPositions() []model.Position {
	cp := make([]model.Position, len(l.open))
	copy(cp, l.open)
	return cp
}

// Position returns the open position at index without removing it.
func (l *Ledger) Position(index int) (model.Position, bool) {
	if index < 0 || index >= len(l.open) {
		return model.Position{}, false
	}
	return l.open[index], true
}

// Trades returns a copy of the trade log, oldest first.
func (l *Ledger) Trades() []model.Trade {
	cp := make([]model.Trade, len(l.trades))
	copy(cp, l.trades)
	return cp
}
