package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide validates a wire-level order type.
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case SideBuy, SideSell:
		return Side(s), nil
	default:
		return "", NewValidationError("type", ErrInvalidSide)
	}
}

// Opposite returns the counter side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Order represents a resting limit order.
// Its cost has already been reserved from the owner's balance when it reaches the book.
type Order struct {
	ID        string          `json:"id"`
	Owner     string          `json:"username"`
	Side      Side            `json:"type"`
	Pair      Pair            `json:"product"`
	Amount    decimal.Decimal `json:"amount"` // remaining base-token amount
	Price     decimal.Decimal `json:"price"`  // limit price in quote token
	CreatedAt time.Time       `json:"created_at"`
}

// NewOrder creates an order with a fresh ID.
func NewOrder(owner string, side Side, pair Pair, amount, price decimal.Decimal) *Order {
	return &Order{
		ID:        uuid.NewString(),
		Owner:     owner,
		Side:      side,
		Pair:      pair,
		Amount:    amount,
		Price:     price,
		CreatedAt: time.Now().UTC(),
	}
}

// Validate checks the numeric fields of an order.
func (o *Order) Validate() error {
	if !o.Amount.IsPositive() {
		return NewValidationError("amount", ErrInvalidAmount)
	}
	if !o.Price.IsPositive() {
		return NewValidationError("price", ErrInvalidAmount)
	}
	return nil
}

// Cost returns the token and amount reserved when the order is placed:
// quote funds (amount * price) for a buy, base funds for a sell.
func (o *Order) Cost() (string, decimal.Decimal) {
	if o.Side == SideBuy {
		return o.Pair.Quote, o.Amount.Mul(o.Price)
	}
	return o.Pair.Base, o.Amount
}

// Matches reports whether other can trade against o: same product, opposite side.
func (o *Order) Matches(other *Order) bool {
	return other.Pair == o.Pair && other.Side != o.Side
}

// IsFilled checks if nothing remains to be traded.
func (o *Order) IsFilled() bool {
	return !o.Amount.IsPositive()
}

// Remainder returns a copy of the order carrying only the unfilled amount.
func (o *Order) Remainder(remaining decimal.Decimal) *Order {
	r := *o
	r.Amount = remaining
	return &r
}
