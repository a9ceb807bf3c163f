package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ticker summarizes the trades executed on one product
type Ticker struct {
	Product     string          `json:"product"`
	Open        decimal.Decimal `json:"open"` // price of the first trade seen
	LastPrice   decimal.Decimal `json:"last_price"`
	High        decimal.Decimal `json:"high"`
	Low         decimal.Decimal `json:"low"`
	Volume      decimal.Decimal `json:"volume"`       // base token traded
	QuoteVolume decimal.Decimal `json:"quote_volume"` // quote token traded
	TradeCount  int             `json:"trade_count"`
	LastTradeAt time.Time       `json:"last_trade_at"`
}

// Apply folds a trade into the ticker.
func (t *Ticker) Apply(trade Trade) {
	if t.TradeCount == 0 {
		t.Open = trade.Price
		t.High = trade.Price
		t.Low = trade.Price
	}
	if trade.Price.GreaterThan(t.High) {
		t.High = trade.Price
	}
	if trade.Price.LessThan(t.Low) {
		t.Low = trade.Price
	}
	t.LastPrice = trade.Price
	t.Volume = t.Volume.Add(trade.Amount)
	t.QuoteVolume = t.QuoteVolume.Add(trade.QuoteAmount)
	t.TradeCount++
	t.LastTradeAt = trade.ExecutedAt
}

// ChangePct calculates 100 * (Last - Open) / Open
func (t *Ticker) ChangePct() *decimal.Decimal {
	if t.Open.IsZero() {
		return nil
	}
	change := t.LastPrice.Sub(t.Open).Div(t.Open).Mul(decimal.NewFromInt(100))
	return &change
}

// ChangeDirection returns "positive", "negative", or "neutral"
func (t *Ticker) ChangeDirection() string {
	change := t.ChangePct()
	if change == nil {
		return "neutral"
	}
	if change.IsPositive() {
		return "positive"
	}
	if change.IsNegative() {
		return "negative"
	}
	return "neutral"
}
