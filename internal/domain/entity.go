package domain

import (
	"time"
)

// TradeRecord is the journaled form of a Trade
type TradeRecord struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	Seq         uint64    `gorm:"index" json:"seq"`
	Product     string    `gorm:"index" json:"product"`
	BuyOrderID  string    `json:"buy_order_id"`
	SellOrderID string    `json:"sell_order_id"`
	Buyer       string    `gorm:"index" json:"buyer"`
	Seller      string    `gorm:"index" json:"seller"`
	Amount      string    `json:"amount"` // decimal text, exact
	Price       string    `json:"price"`
	QuoteAmount string    `json:"quote_amount"`
	Capped      bool      `json:"capped"`
	ExecutedAt  time.Time `gorm:"index" json:"executed_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewTradeRecord flattens a trade for storage.
func NewTradeRecord(t Trade) *TradeRecord {
	return &TradeRecord{
		ID:          t.ID,
		Seq:         t.Seq,
		Product:     t.Pair.String(),
		BuyOrderID:  t.BuyOrderID,
		SellOrderID: t.SellOrderID,
		Buyer:       t.Buyer,
		Seller:      t.Seller,
		Amount:      t.Amount.String(),
		Price:       t.Price.String(),
		QuoteAmount: t.QuoteAmount.String(),
		Capped:      t.Capped,
		ExecutedAt:  t.ExecutedAt,
	}
}
