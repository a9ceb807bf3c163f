package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is the settlement of one buy against one sell.
type Trade struct {
	ID          string          `json:"id"`
	Seq         uint64          `json:"seq"`
	Pair        Pair            `json:"product"`
	BuyOrderID  string          `json:"buy_order_id"`
	SellOrderID string          `json:"sell_order_id"`
	Buyer       string          `json:"buyer"`
	Seller      string          `json:"seller"`
	Amount      decimal.Decimal `json:"amount"`       // base token credited to the buyer
	Price       decimal.Decimal `json:"price"`        // midpoint of both limits
	QuoteAmount decimal.Decimal `json:"quote_amount"` // quote token credited to the seller
	Capped      bool            `json:"capped"`       // size limited by pool reserves
	ExecutedAt  time.Time       `json:"executed_at"`
}
