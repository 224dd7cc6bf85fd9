package model

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Trade is one entry in the append-only trade log. IDs are monotonic and
// unique for the lifetime of the process. A BUY trade doubles as the open
// position record (same ID) until the SELL that closes it.
type Trade struct {
	ID     int64   `json:"id"`
	Type   Side    `json:"type"`
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"` // base-currency quantity
	Time   int64   `json:"time"`   // epoch ms
	Reason string  `json:"reason"`
}

// Position is an open long position awaiting a closing SELL.
// Owned exclusively by the ledger; never shared across goroutines.
type Position struct {
	ID     int64   `json:"id"`
	Price  float64 `json:"price"` // entry price
	Amount float64 `json:"amount"`
	Time   int64   `json:"time"`
}

// Account is the two-asset paper account. Quote moves by exactly
// amount*price on every trade; base moves inversely.
type Account struct {
	Base  float64 `json:"base"`
	Quote float64 `json:"quote"`
}

// Value returns the mark-to-market account value at the given price.
func (a Account) Value(price float64) float64 {
	return a.Quote + a.Base*price
}
