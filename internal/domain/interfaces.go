package domain

import (
	"context"
)

// TradeJournal records settled trades outside the matching hot path.
type TradeJournal interface {
	SaveTrade(ctx context.Context, trade Trade) error
}

// TradeHistory reads back journaled trades, newest first.
type TradeHistory interface {
	ListTrades(ctx context.Context, user string, limit int) ([]TradeRecord, error)
}
