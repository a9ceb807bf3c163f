package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PoolRegistry holds the pool-wide reserves that act as counterparty for
// trade execution. Reserves are kept per token and are distinct from the
// per-user positions recorded by the Ledger: adding or removing liquidity
// moves funds between a user's balance and their position only.
type PoolRegistry struct {
	ledger   *Ledger
	reserves map[string]decimal.Decimal
}

// NewPoolRegistry creates a registry backed by ledger.
func NewPoolRegistry(ledger *Ledger) *PoolRegistry {
	return &PoolRegistry{
		ledger:   ledger,
		reserves: make(map[string]decimal.Decimal),
	}
}

// AddLiquidity debits both amounts from the user and stores them as the
// user's position for the ordered pair tokenA-tokenB, replacing any prior one.
func (p *PoolRegistry) AddLiquidity(user, tokenA, tokenB string, amountA, amountB decimal.Decimal, seq uint64) (LiquidityPosition, error) {
	pair, err := NewPair(tokenA, tokenB)
	if err != nil {
		return LiquidityPosition{}, err
	}
	return p.ledger.ProvideLiquidity(user, pair, amountA, amountB, seq)
}

// RemoveLiquidity returns the user's whole position for tokenA-tokenB.
func (p *PoolRegistry) RemoveLiquidity(user, tokenA, tokenB string, seq uint64) (LiquidityPosition, error) {
	pair, err := NewPair(tokenA, tokenB)
	if err != nil {
		return LiquidityPosition{}, err
	}
	return p.ledger.WithdrawLiquidity(user, pair, seq)
}

// Reserve returns the pool reserve of token.
func (p *PoolRegistry) Reserve(token string) decimal.Decimal {
	return p.reserves[token]
}

// Fund adds amount to the reserve of token and returns the new reserve.
func (p *PoolRegistry) Fund(token string, amount decimal.Decimal) (decimal.Decimal, error) {
	if token == "" {
		return decimal.Zero, NewValidationError("token", ErrInvalidPair)
	}
	if !amount.IsPositive() {
		return decimal.Zero, NewValidationError("amount", ErrInvalidAmount)
	}
	p.reserves[token] = p.reserves[token].Add(amount)
	return p.reserves[token], nil
}

// Debit removes amount from the reserve of token. Trade execution caps its
// size by the reserves, so an overdraft here is a broken invariant.
func (p *PoolRegistry) Debit(token string, amount decimal.Decimal) {
	next := p.reserves[token].Sub(amount)
	if next.IsNegative() {
		panic(fmt.Sprintf("RESERVE_INVARIANT_NEGATIVE: %s = %s", token, next))
	}
	p.reserves[token] = next
}

// ExchangeRate returns reserve[A] / reserve[B] for pair "A-B".
func (p *PoolRegistry) ExchangeRate(pair Pair) (decimal.Decimal, error) {
	denom := p.reserves[pair.Quote]
	if denom.IsZero() {
		return decimal.Zero, fmt.Errorf("exchange rate %s: %w", pair, ErrDivideByZero)
	}
	return p.reserves[pair.Base].Div(denom), nil
}

// ExchangeRates returns the rate of every pair that has liquidity positions,
// skipping pairs whose reverse reserve is empty.
func (p *PoolRegistry) ExchangeRates() map[Pair]decimal.Decimal {
	rates := make(map[Pair]decimal.Decimal)
	for pair := range p.Liquidity().Pairs {
		if rate, err := p.ExchangeRate(pair); err == nil {
			rates[pair] = rate
		}
	}
	return rates
}

// PairLiquidity is the sum of all users' positions for one pair.
type PairLiquidity struct {
	LiquidityA decimal.Decimal `json:"liquidity_a"`
	LiquidityB decimal.Decimal `json:"liquidity_b"`
	Providers  int             `json:"providers"`
}

// LiquidityReport aggregates supplied liquidity per pair alongside the
// reserves used for trade execution.
type LiquidityReport struct {
	Pairs    map[Pair]PairLiquidity     `json:"pairs"`
	Reserves map[string]decimal.Decimal `json:"reserves"`
}

// Liquidity builds a LiquidityReport.
func (p *PoolRegistry) Liquidity() LiquidityReport {
	report := LiquidityReport{
		Pairs:    make(map[Pair]PairLiquidity),
		Reserves: make(map[string]decimal.Decimal, len(p.reserves)),
	}
	for _, pos := range p.ledger.Positions() {
		agg := report.Pairs[pos.Pair]
		agg.LiquidityA = agg.LiquidityA.Add(pos.AmountA)
		agg.LiquidityB = agg.LiquidityB.Add(pos.AmountB)
		agg.Providers++
		report.Pairs[pos.Pair] = agg
	}
	for token, amount := range p.reserves {
		report.Reserves[token] = amount
	}
	return report
}
