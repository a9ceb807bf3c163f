package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"exchange_go/internal/domain"
	"exchange_go/internal/event"
	"exchange_go/internal/infra"

	"github.com/shopspring/decimal"
)

// ErrInternal is returned for a command whose processing panicked.
var ErrInternal = errors.New("internal error")

// Config holds the sequencer's tunables.
type Config struct {
	InboxSize     int
	MatchInterval time.Duration
	DumpPath      string
	JournalBuffer int
	Metrics       *infra.Metrics
}

func (c *Config) applyDefaults() {
	if c.InboxSize <= 0 {
		c.InboxSize = 1024
	}
	if c.MatchInterval <= 0 {
		c.MatchInterval = time.Second
	}
	if c.JournalBuffer <= 0 {
		c.JournalBuffer = 1024
	}
	if c.DumpPath == "" {
		c.DumpPath = "panic_dump.json"
	}
	if c.Metrics == nil {
		c.Metrics = infra.GlobalMetrics
	}
}

// Sequencer is the single writer of all exchange state. Commands arrive on
// the inbox and matching runs on a ticker, both on the Run goroutine.
type Sequencer struct {
	inbox   chan event.Event
	nextSeq uint64

	ledger  *domain.Ledger
	pools   *domain.PoolRegistry
	book    *domain.OrderBook
	matcher *Matcher

	matchInterval time.Duration
	dumpPath      string
	metrics       *infra.Metrics
	journal       domain.TradeJournal
	journalQueue  chan domain.Trade // drained by runJournal, off the hot path

	// Boundary: used to notify the ticker service and the trade feed
	onTrade func(domain.Trade)

	mu sync.RWMutex // Write lock held by Run only; readers are queries
}

// NewSequencer creates a new sequencer instance. journal and onTrade may be nil.
func NewSequencer(cfg Config, journal domain.TradeJournal, onTrade func(domain.Trade)) *Sequencer {
	cfg.applyDefaults()

	ledger := domain.NewLedger()
	pools := domain.NewPoolRegistry(ledger)
	book := domain.NewOrderBook()

	return &Sequencer{
		inbox:         make(chan event.Event, cfg.InboxSize),
		nextSeq:       1,
		ledger:        ledger,
		pools:         pools,
		book:          book,
		matcher:       NewMatcher(book, ledger, pools),
		matchInterval: cfg.MatchInterval,
		dumpPath:      cfg.DumpPath,
		metrics:       cfg.Metrics,
		journal:       journal,
		journalQueue:  make(chan domain.Trade, cfg.JournalBuffer),
		onTrade:       onTrade,
	}
}

// Inbox returns the event channel. Events sent here directly must carry a
// buffered reply channel or none at all.
func (s *Sequencer) Inbox() chan<- event.Event {
	return s.inbox
}

// Run starts the main event loop. This MUST be run in a single goroutine.
// A panic while handling one command or one matching cycle is recovered,
// dumped and counted; the loop itself only stops when ctx is done, and
// returns once the journal queue is flushed.
func (s *Sequencer) Run(ctx context.Context) {
	slog.Info("Sequencer started (single writer)",
		slog.Duration("match_interval", s.matchInterval),
		slog.Int("inbox_size", cap(s.inbox)))

	journalDone := make(chan struct{})
	if s.journal != nil {
		go func() {
			defer close(journalDone)
			s.runJournal(ctx)
		}()
	} else {
		close(journalDone)
	}

	ticker := time.NewTicker(s.matchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Sequencer stopping...", slog.Int("open_orders", s.bookLen()))
			<-journalDone
			return
		case ev := <-s.inbox:
			s.processEvent(ev)
		case <-ticker.C:
			s.matchOnce()
		}
	}
}

func (s *Sequencer) processEvent(ev event.Event) {
	start := time.Now()
	res := s.apply(ev)
	s.metrics.RecordEvent(time.Since(start).Nanoseconds())

	if res.Err != nil {
		if errors.Is(res.Err, ErrInternal) {
			s.metrics.RecordError()
		} else {
			s.metrics.RecordRejected()
		}
		slog.Debug("Command rejected", slog.String("type", string(ev.GetType())), slog.Any("error", res.Err))
	}

	reply := ev.ReplyTo()
	if reply == nil {
		return
	}
	select {
	case reply <- res:
	default:
		slog.Warn("Reply channel full, result dropped", slog.String("type", string(ev.GetType())))
	}
}

func (s *Sequencer) apply(ev event.Event) (res event.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.recoverPanic(string(ev.GetType()), r)
			res = event.Result{Err: fmt.Errorf("%w: %s", ErrInternal, ev.GetType())}
		}
	}()

	seq := s.nextSeq
	s.nextSeq++

	switch e := ev.(type) {
	case *event.DepositEvent:
		if err := requireUser(e.User); err != nil {
			return event.Result{Err: err}
		}
		bal, err := s.ledger.Deposit(e.User, e.Token, e.Amount, seq)
		return event.Result{Value: bal, Err: err}

	case *event.WithdrawEvent:
		if err := requireUser(e.User); err != nil {
			return event.Result{Err: err}
		}
		bal, err := s.ledger.Withdraw(e.User, e.Token, e.Amount, seq)
		if err != nil {
			return event.Result{Err: err}
		}
		return event.Result{Value: bal}

	case *event.PlaceOrderEvent:
		order, err := s.placeOrder(e, seq)
		if err != nil {
			return event.Result{Err: err}
		}
		return event.Result{Value: order}

	case *event.AddLiquidityEvent:
		if err := requireUser(e.User); err != nil {
			return event.Result{Err: err}
		}
		pos, err := s.pools.AddLiquidity(e.User, e.TokenA, e.TokenB, e.AmountA, e.AmountB, seq)
		return event.Result{Value: pos, Err: err}

	case *event.RemoveLiquidityEvent:
		if err := requireUser(e.User); err != nil {
			return event.Result{Err: err}
		}
		pos, err := s.pools.RemoveLiquidity(e.User, e.TokenA, e.TokenB, seq)
		return event.Result{Value: pos, Err: err}

	case *event.FundReserveEvent:
		reserve, err := s.pools.Fund(e.Token, e.Amount)
		if err == nil {
			slog.Info("Reserve funded", slog.String("token", e.Token), slog.String("reserve", reserve.String()))
		}
		return event.Result{Value: reserve, Err: err}

	default:
		slog.Warn("Unknown event type", slog.Any("type", ev.GetType()))
		return event.Result{Err: fmt.Errorf("unknown event type %q", ev.GetType())}
	}
}

func (s *Sequencer) placeOrder(e *event.PlaceOrderEvent, seq uint64) (domain.Order, error) {
	if err := requireUser(e.User); err != nil {
		return domain.Order{}, err
	}
	side, err := domain.ParseSide(e.Side)
	if err != nil {
		return domain.Order{}, err
	}
	pair, err := domain.ParsePair(e.Product)
	if err != nil {
		return domain.Order{}, err
	}

	order := domain.NewOrder(e.User, side, pair, e.Amount, e.Price)
	if err := order.Validate(); err != nil {
		return domain.Order{}, err
	}

	token, cost := order.Cost()
	if err := s.ledger.ReserveForOrder(e.User, token, cost, seq); err != nil {
		return domain.Order{}, err
	}
	s.book.Submit(order)
	s.metrics.SetOpenOrders(s.book.Len())
	return *order, nil
}

func requireUser(user string) error {
	if user == "" {
		return domain.NewValidationError("user", domain.ErrMissingUser)
	}
	return nil
}

// matchOnce runs one matching cycle, then queues its trade for the journal
// and publishes it outside the state lock.
func (s *Sequencer) matchOnce() {
	trade := s.runCycle()
	if trade == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("PANIC_IN_TRADE_PUBLISH", slog.Any("panic", r), slog.String("trade", trade.ID))
			s.metrics.RecordError()
		}
	}()

	slog.Info("TRADE_EXECUTED",
		slog.String("id", trade.ID),
		slog.String("product", trade.Pair.String()),
		slog.String("buyer", trade.Buyer),
		slog.String("seller", trade.Seller),
		slog.String("amount", trade.Amount.String()),
		slog.String("price", trade.Price.String()),
		slog.Bool("capped", trade.Capped))

	if s.journal != nil {
		select {
		case s.journalQueue <- *trade:
		default:
			slog.Error("Journal queue full, trade not journaled", slog.String("id", trade.ID))
			s.metrics.RecordError()
		}
	}
	if s.onTrade != nil {
		s.onTrade(*trade)
	}
}

// runJournal writes queued trades until ctx is done, then flushes what is
// still buffered.
func (s *Sequencer) runJournal(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case trade := <-s.journalQueue:
					s.saveTrade(trade)
				default:
					return
				}
			}
		case trade := <-s.journalQueue:
			s.saveTrade(trade)
		}
	}
}

func (s *Sequencer) saveTrade(trade domain.Trade) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.journal.SaveTrade(ctx, trade); err != nil {
		slog.Error("Failed to journal trade", slog.String("id", trade.ID), slog.Any("error", err))
		s.metrics.RecordError()
	}
}

func (s *Sequencer) runCycle() (trade *domain.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.recoverPanic("MATCH", r)
			trade = nil
		}
	}()

	if s.book.Len() == 0 {
		return nil
	}

	res := s.matcher.Cycle(s.nextSeq)
	s.metrics.RecordCycle(res.Requeued)
	s.metrics.SetOpenOrders(s.book.Len())
	if res.Trade == nil {
		return nil
	}

	s.nextSeq++
	s.ledger.VerifyAll()
	s.metrics.RecordTrade(res.Trade.Capped)
	return res.Trade
}

// recoverPanic must be called with the write lock held.
func (s *Sequencer) recoverPanic(where string, r any) {
	slog.Error("CRITICAL_PANIC_RECOVERED", slog.String("where", where), slog.Any("panic", r))
	s.metrics.RecordError()
	s.dumpLocked(s.dumpPath)
}

// submit hands ev to the Run goroutine and waits for its result. ctx bounds
// only the waiting: a command already accepted into the inbox still runs.
func (s *Sequencer) submit(ctx context.Context, ev event.Event, reply chan event.Result) (any, error) {
	select {
	case s.inbox <- ev:
	case <-ctx.Done():
		event.ReleaseReply(reply)
		return nil, ctx.Err()
	}

	select {
	case res := <-reply:
		event.ReleaseReply(reply)
		return res.Value, res.Err
	case <-ctx.Done():
		// The sequencer still owns reply; it is left to the GC.
		return nil, ctx.Err()
	}
}

// Deposit credits amount of token to user and returns the new balance.
func (s *Sequencer) Deposit(ctx context.Context, user, token string, amount decimal.Decimal) (decimal.Decimal, error) {
	reply := event.AcquireReply()
	v, err := s.submit(ctx, &event.DepositEvent{
		BaseEvent: event.BaseEvent{Reply: reply},
		User:      user,
		Token:     token,
		Amount:    amount,
	}, reply)
	if err != nil {
		return decimal.Zero, err
	}
	return v.(decimal.Decimal), nil
}

// Withdraw debits amount of token from user and returns the new balance.
func (s *Sequencer) Withdraw(ctx context.Context, user, token string, amount decimal.Decimal) (decimal.Decimal, error) {
	reply := event.AcquireReply()
	v, err := s.submit(ctx, &event.WithdrawEvent{
		BaseEvent: event.BaseEvent{Reply: reply},
		User:      user,
		Token:     token,
		Amount:    amount,
	}, reply)
	if err != nil {
		return decimal.Zero, err
	}
	return v.(decimal.Decimal), nil
}

// PlaceOrder escrows the order's cost and queues it for matching.
func (s *Sequencer) PlaceOrder(ctx context.Context, user, side, product string, amount, price decimal.Decimal) (domain.Order, error) {
	reply := event.AcquireReply()
	v, err := s.submit(ctx, &event.PlaceOrderEvent{
		BaseEvent: event.BaseEvent{Reply: reply},
		User:      user,
		Side:      side,
		Product:   product,
		Amount:    amount,
		Price:     price,
	}, reply)
	if err != nil {
		return domain.Order{}, err
	}
	return v.(domain.Order), nil
}

// AddLiquidity stores user's position for the ordered pair tokenA-tokenB.
func (s *Sequencer) AddLiquidity(ctx context.Context, user, tokenA, tokenB string, amountA, amountB decimal.Decimal) (domain.LiquidityPosition, error) {
	reply := event.AcquireReply()
	v, err := s.submit(ctx, &event.AddLiquidityEvent{
		BaseEvent: event.BaseEvent{Reply: reply},
		User:      user,
		TokenA:    tokenA,
		TokenB:    tokenB,
		AmountA:   amountA,
		AmountB:   amountB,
	}, reply)
	if err != nil {
		return domain.LiquidityPosition{}, err
	}
	return v.(domain.LiquidityPosition), nil
}

// RemoveLiquidity returns user's whole position for tokenA-tokenB.
func (s *Sequencer) RemoveLiquidity(ctx context.Context, user, tokenA, tokenB string) (domain.LiquidityPosition, error) {
	reply := event.AcquireReply()
	v, err := s.submit(ctx, &event.RemoveLiquidityEvent{
		BaseEvent: event.BaseEvent{Reply: reply},
		User:      user,
		TokenA:    tokenA,
		TokenB:    tokenB,
	}, reply)
	if err != nil {
		return domain.LiquidityPosition{}, err
	}
	return v.(domain.LiquidityPosition), nil
}

// FundReserve adds amount to the pool reserve of token.
func (s *Sequencer) FundReserve(ctx context.Context, token string, amount decimal.Decimal) (decimal.Decimal, error) {
	reply := event.AcquireReply()
	v, err := s.submit(ctx, &event.FundReserveEvent{
		BaseEvent: event.BaseEvent{Reply: reply},
		Token:     token,
		Amount:    amount,
	}, reply)
	if err != nil {
		return decimal.Zero, err
	}
	return v.(decimal.Decimal), nil
}

// Balance returns a snapshot of user's holdings (external read).
func (s *Sequencer) Balance(user string) domain.AccountSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.Snapshot(user)
}

// OrderBook returns the sorted per-product view of resting orders.
func (s *Sequencer) OrderBook() map[domain.Pair]*domain.ProductBook {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.book.SortedView()
}

// Orders returns resting orders in queue order.
func (s *Sequencer) Orders() []domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.book.Orders()
}

// Liquidity returns per-pair liquidity totals and the pool reserves.
func (s *Sequencer) Liquidity() domain.LiquidityReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pools.Liquidity()
}

// ExchangeRate returns reserve[A] / reserve[B] for product "A-B".
func (s *Sequencer) ExchangeRate(product string) (decimal.Decimal, error) {
	pair, err := domain.ParsePair(product)
	if err != nil {
		return decimal.Zero, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pools.ExchangeRate(pair)
}

// ExchangeRates returns the rate of every pair with liquidity positions.
func (s *Sequencer) ExchangeRates() map[domain.Pair]decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pools.ExchangeRates()
}

func (s *Sequencer) bookLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.book.Len()
}

// DumpState writes the entire internal state to a file (for post-mortem).
func (s *Sequencer) DumpState(filename string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.dumpLocked(filename)
}

func (s *Sequencer) dumpLocked(filename string) {
	slog.Info("Dumping internal state...", slog.String("file", filename))

	data := struct {
		NextSeq  uint64                            `json:"next_seq"`
		Accounts map[string]domain.AccountSnapshot `json:"accounts"`
		Orders   []domain.Order                    `json:"orders"`
		Reserves map[string]decimal.Decimal        `json:"reserves"`
	}{
		NextSeq:  s.nextSeq,
		Accounts: s.ledger.Accounts(),
		Orders:   s.book.Orders(),
		Reserves: s.pools.Liquidity().Reserves,
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	if err := os.WriteFile(filename, b, 0644); err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}
