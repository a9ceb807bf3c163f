package domain

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Balance represents one user's holding of one token.
type Balance struct {
	Token   string          `json:"token"`
	Amount  decimal.Decimal `json:"amount"`
	LastSeq uint64          `json:"last_seq"` // Last sequence that modified this
}

// Credit adds funds to the balance. There is no upper bound.
func (b *Balance) Credit(amount decimal.Decimal, seq uint64) {
	b.Amount = b.Amount.Add(amount)
	b.LastSeq = seq
}

// CanDebit reports whether amount can be removed without going negative.
func (b *Balance) CanDebit(amount decimal.Decimal) bool {
	return b.Amount.GreaterThanOrEqual(amount)
}

// Debit removes funds from the balance. Panics if insufficient;
// callers check CanDebit first.
func (b *Balance) Debit(amount decimal.Decimal, seq uint64) {
	if !b.CanDebit(amount) {
		panic(fmt.Sprintf("BALANCE_INSUFFICIENT: %s need %s, available %s",
			b.Token, amount, b.Amount))
	}
	b.Amount = b.Amount.Sub(amount)
	b.LastSeq = seq
}

// VerifyInvariant panics if the balance went negative.
func (b *Balance) VerifyInvariant() {
	if b.Amount.IsNegative() {
		panic(fmt.Sprintf("BALANCE_INVARIANT_NEGATIVE_AMOUNT: %s = %s", b.Token, b.Amount))
	}
}

// LiquidityPosition is the liquidity one user supplied for one ordered pair.
type LiquidityPosition struct {
	User    string          `json:"user"`
	Pair    Pair            `json:"pair"`
	AmountA decimal.Decimal `json:"amount_a"`
	AmountB decimal.Decimal `json:"amount_b"`
}

type account struct {
	balances  map[string]*Balance
	positions map[Pair]LiquidityPosition
}

func newAccount() *account {
	return &account{
		balances:  make(map[string]*Balance),
		positions: make(map[Pair]LiquidityPosition),
	}
}

func (a *account) balance(token string) *Balance {
	b, ok := a.balances[token]
	if !ok {
		b = &Balance{Token: token}
		a.balances[token] = b
	}
	return b
}

// Ledger owns every user's balances and liquidity positions.
// It is not safe for concurrent use; the engine serializes access.
type Ledger struct {
	accounts map[string]*account
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		accounts: make(map[string]*account),
	}
}

func (l *Ledger) account(user string) *account {
	a, ok := l.accounts[user]
	if !ok {
		a = newAccount()
		l.accounts[user] = a
	}
	return a
}

// Balance returns the user's balance of token, zero if unknown.
func (l *Ledger) Balance(user, token string) decimal.Decimal {
	a, ok := l.accounts[user]
	if !ok {
		return decimal.Zero
	}
	if b, ok := a.balances[token]; ok {
		return b.Amount
	}
	return decimal.Zero
}

// Deposit credits amount and returns the new balance.
func (l *Ledger) Deposit(user, token string, amount decimal.Decimal, seq uint64) (decimal.Decimal, error) {
	if !validToken(token) {
		return decimal.Zero, NewValidationError("token", ErrInvalidPair)
	}
	if !amount.IsPositive() {
		return decimal.Zero, NewValidationError("amount", ErrInvalidAmount)
	}
	b := l.account(user).balance(token)
	b.Credit(amount, seq)
	return b.Amount, nil
}

// Withdraw debits amount after a sufficiency check and returns the new balance.
func (l *Ledger) Withdraw(user, token string, amount decimal.Decimal, seq uint64) (decimal.Decimal, error) {
	if !validToken(token) {
		return decimal.Zero, NewValidationError("token", ErrInvalidPair)
	}
	if !amount.IsPositive() {
		return decimal.Zero, NewValidationError("amount", ErrInvalidAmount)
	}
	b := l.account(user).balance(token)
	if err := l.checkDebit(user, b, amount); err != nil {
		return b.Amount, err
	}
	b.Debit(amount, seq)
	return b.Amount, nil
}

// ReserveForOrder escrows an order's cost before it is queued.
func (l *Ledger) ReserveForOrder(user, token string, amount decimal.Decimal, seq uint64) error {
	b := l.account(user).balance(token)
	if err := l.checkDebit(user, b, amount); err != nil {
		return err
	}
	b.Debit(amount, seq)
	return nil
}

// Credit pays out trade proceeds. It always succeeds.
func (l *Ledger) Credit(user, token string, amount decimal.Decimal, seq uint64) {
	l.account(user).balance(token).Credit(amount, seq)
}

// ProvideLiquidity moves amountA/amountB into the user's position for pair.
// Both debits are checked before either is applied, and an existing position
// for the same ordered pair is replaced, not added to.
func (l *Ledger) ProvideLiquidity(user string, pair Pair, amountA, amountB decimal.Decimal, seq uint64) (LiquidityPosition, error) {
	if amountA.IsNegative() {
		return LiquidityPosition{}, NewValidationError("amount_a", ErrInvalidAmount)
	}
	if amountB.IsNegative() {
		return LiquidityPosition{}, NewValidationError("amount_b", ErrInvalidAmount)
	}

	a := l.account(user)
	ba := a.balance(pair.Base)
	bb := a.balance(pair.Quote)
	if err := l.checkDebit(user, ba, amountA); err != nil {
		return LiquidityPosition{}, err
	}
	if err := l.checkDebit(user, bb, amountB); err != nil {
		return LiquidityPosition{}, err
	}

	ba.Debit(amountA, seq)
	bb.Debit(amountB, seq)

	pos := LiquidityPosition{User: user, Pair: pair, AmountA: amountA, AmountB: amountB}
	a.positions[pair] = pos
	return pos, nil
}

// WithdrawLiquidity returns the whole position for pair to the user's balances
// and deletes it.
func (l *Ledger) WithdrawLiquidity(user string, pair Pair, seq uint64) (LiquidityPosition, error) {
	a, ok := l.accounts[user]
	if !ok {
		return LiquidityPosition{}, ErrNoSuchPosition
	}
	pos, ok := a.positions[pair]
	if !ok {
		return LiquidityPosition{}, ErrNoSuchPosition
	}

	a.balance(pair.Base).Credit(pos.AmountA, seq)
	a.balance(pair.Quote).Credit(pos.AmountB, seq)
	delete(a.positions, pair)
	return pos, nil
}

// Positions returns every liquidity position, ordered by user then pair.
func (l *Ledger) Positions() []LiquidityPosition {
	var result []LiquidityPosition
	for _, a := range l.accounts {
		for _, pos := range a.positions {
			result = append(result, pos)
		}
	}
	sortPositions(result)
	return result
}

func (l *Ledger) checkDebit(user string, b *Balance, amount decimal.Decimal) error {
	if b.CanDebit(amount) {
		return nil
	}
	return &BalanceError{User: user, Token: b.Token, Need: amount, Available: b.Amount}
}

// VerifyAll checks invariants on all balances.
func (l *Ledger) VerifyAll() {
	for _, a := range l.accounts {
		for _, b := range a.balances {
			b.VerifyInvariant()
		}
	}
}

// AccountSnapshot is a point-in-time copy of one user's holdings.
type AccountSnapshot struct {
	Balances map[string]decimal.Decimal `json:"balances"`
	// TotalValue is balance plus the user's own supplied liquidity, per token.
	TotalValue map[string]decimal.Decimal `json:"total_value"`
	// Liquidity is the user's supplied liquidity summed per token.
	Liquidity map[string]decimal.Decimal `json:"liquidity_pools"`
	Positions []LiquidityPosition        `json:"positions"`
}

// Snapshot returns a copy of the user's balances and liquidity. It never
// creates an account.
func (l *Ledger) Snapshot(user string) AccountSnapshot {
	snap := AccountSnapshot{
		Balances:   make(map[string]decimal.Decimal),
		TotalValue: make(map[string]decimal.Decimal),
		Liquidity:  make(map[string]decimal.Decimal),
		Positions:  []LiquidityPosition{},
	}

	a, ok := l.accounts[user]
	if !ok {
		return snap
	}

	for pair, pos := range a.positions {
		snap.Liquidity[pair.Base] = snap.Liquidity[pair.Base].Add(pos.AmountA)
		snap.Liquidity[pair.Quote] = snap.Liquidity[pair.Quote].Add(pos.AmountB)
		snap.Positions = append(snap.Positions, pos)
	}
	sortPositions(snap.Positions)

	for token, b := range a.balances {
		snap.Balances[token] = b.Amount
		snap.TotalValue[token] = b.Amount.Add(snap.Liquidity[token])
	}
	// Tokens held only as liquidity still count towards total value.
	for token, amount := range snap.Liquidity {
		if _, ok := snap.TotalValue[token]; !ok {
			snap.TotalValue[token] = amount
		}
	}

	return snap
}

// Accounts returns a snapshot of every known user, keyed by name.
func (l *Ledger) Accounts() map[string]AccountSnapshot {
	result := make(map[string]AccountSnapshot, len(l.accounts))
	for user := range l.accounts {
		result[user] = l.Snapshot(user)
	}
	return result
}

func sortPositions(ps []LiquidityPosition) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].User != ps[j].User {
			return ps[i].User < ps[j].User
		}
		return ps[i].Pair.String() < ps[j].Pair.String()
	})
}
