package engine

import (
	"time"

	"exchange_go/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// divisionPrecision bounds the digits kept when sizing a trade by reserves.
const divisionPrecision = 16

var two = decimal.NewFromInt(2)

// CycleResult describes what one matching cycle did.
type CycleResult struct {
	Matched  bool          // a counter order was found
	Trade    *domain.Trade // nil when nothing executed
	Requeued int           // orders put back at the tail
}

// Matcher drains the order book one order per cycle and settles trades
// against the ledger and the pool reserves. It holds no lock itself;
// the Sequencer serializes every call.
type Matcher struct {
	book   *domain.OrderBook
	ledger *domain.Ledger
	pools  *domain.PoolRegistry
	now    func() time.Time
}

// NewMatcher creates a matcher over the given state.
func NewMatcher(book *domain.OrderBook, ledger *domain.Ledger, pools *domain.PoolRegistry) *Matcher {
	return &Matcher{
		book:   book,
		ledger: ledger,
		pools:  pools,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Cycle takes the head order, looks for the first counter order in arrival
// order (not the best price), and executes a trade if one is found.
// If the cycle panics the book is rolled back before the panic continues.
func (m *Matcher) Cycle(seq uint64) CycleResult {
	mark := m.book.Mark()
	defer func() {
		if r := recover(); r != nil {
			m.book.Restore(mark)
			panic(r)
		}
	}()

	current, ok := m.book.TakeNext()
	if !ok {
		return CycleResult{}
	}

	matched, ok := m.book.RemoveFirstMatch(current.Matches)
	if !ok {
		m.book.Submit(current)
		return CycleResult{Requeued: 1}
	}

	buy, sell := current, matched
	if current.Side == domain.SideSell {
		buy, sell = matched, current
	}

	trade, buyRest, sellRest := m.ExecuteTrade(buy, sell, seq)

	res := CycleResult{Matched: true, Trade: trade}
	for _, o := range []*domain.Order{buyRest, sellRest} {
		if o.IsFilled() {
			continue
		}
		m.book.Submit(o)
		res.Requeued++
	}
	return res
}

// ExecuteTrade settles buy against sell at the midpoint of their limits,
// capped by what the pool reserves can cover. It returns the trade (nil if
// nothing could execute) and the remainders of both orders.
//
// The buyer is credited amount of the base token and the seller
// amount*price of the quote token; reserve[base] is debited amount*price and
// reserve[quote] amount, which is what the cap min(reserve[base]/price,
// reserve[quote]) guarantees to be covered.
func (m *Matcher) ExecuteTrade(buy, sell *domain.Order, seq uint64) (*domain.Trade, *domain.Order, *domain.Order) {
	price := buy.Price.Add(sell.Price).Div(two)
	if !price.IsPositive() {
		return nil, buy, sell
	}

	base, quote := buy.Pair.Base, buy.Pair.Quote

	amount := decimal.Min(buy.Amount, sell.Amount)
	maxByBase, _ := m.pools.Reserve(base).QuoRem(price, divisionPrecision)
	maxAmount := decimal.Max(decimal.Min(maxByBase, m.pools.Reserve(quote)), decimal.Zero)

	capped := false
	if amount.GreaterThan(maxAmount) {
		amount = maxAmount
		capped = true
	}
	if !amount.IsPositive() {
		return nil, buy, sell
	}

	quoteAmount := amount.Mul(price)
	if quoteAmount.GreaterThan(m.pools.Reserve(base)) || amount.GreaterThan(m.pools.Reserve(quote)) {
		return nil, buy, sell
	}

	// Everything that can fail happens before the first mutation.
	trade := &domain.Trade{
		ID:          uuid.NewString(),
		Seq:         seq,
		Pair:        buy.Pair,
		BuyOrderID:  buy.ID,
		SellOrderID: sell.ID,
		Buyer:       buy.Owner,
		Seller:      sell.Owner,
		Amount:      amount,
		Price:       price,
		QuoteAmount: quoteAmount,
		Capped:      capped,
		ExecutedAt:  m.now(),
	}
	buyRest := buy.Remainder(buy.Amount.Sub(amount))
	sellRest := sell.Remainder(sell.Amount.Sub(amount))

	m.pools.Debit(base, quoteAmount)
	m.pools.Debit(quote, amount)
	m.ledger.Credit(buy.Owner, base, amount, seq)
	m.ledger.Credit(sell.Owner, quote, quoteAmount, seq)

	return trade, buyRest, sellRest
}
