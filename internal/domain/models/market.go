package models

import "time"

// Side is the aggressor side of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// PriceLevel is one price/quantity pair in a depth update.
// A zero Qty removes the level from the book.
type PriceLevel struct {
	Price float64
	Qty   float64
}

// BookUpdate is one incremental order-book message from the feed.
// It is consumed immediately and not retained.
type BookUpdate struct {
	Timestamp time.Time
	Bids      []PriceLevel
	Asks      []PriceLevel
}

// TradePrint is one executed trade from the feed.
type TradePrint struct {
	Timestamp time.Time
	Price     float64
	Qty       float64
	Side      Side
}
