package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"exchange_go/internal/domain"
	"exchange_go/internal/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memJournal struct {
	mu     sync.Mutex
	trades []domain.Trade
	err    error
}

func (j *memJournal) SaveTrade(_ context.Context, trade domain.Trade) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.trades = append(j.trades, trade)
	return j.err
}

func (j *memJournal) count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.trades)
}

// blockingJournal holds every SaveTrade until release is closed.
type blockingJournal struct {
	memJournal
	release chan struct{}
}

func (j *blockingJournal) SaveTrade(ctx context.Context, trade domain.Trade) error {
	select {
	case <-j.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return j.memJournal.SaveTrade(ctx, trade)
}

func startSequencer(t *testing.T, journal domain.TradeJournal, onTrade func(domain.Trade)) (*Sequencer, *infra.Metrics) {
	t.Helper()
	metrics := &infra.Metrics{}
	seq := NewSequencer(Config{
		InboxSize:     64,
		MatchInterval: 5 * time.Millisecond,
		DumpPath:      filepath.Join(t.TempDir(), "dump.json"),
		Metrics:       metrics,
	}, journal, onTrade)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go seq.Run(ctx)
	return seq, metrics
}

func TestSequencer_AliceScenario(t *testing.T) {
	seq, _ := startSequencer(t, nil, nil)
	ctx := context.Background()

	_, err := seq.Deposit(ctx, "alice", "GBP", d("200"))
	require.NoError(t, err)
	_, err = seq.Deposit(ctx, "alice", "USD", d("120"))
	require.NoError(t, err)

	bal, err := seq.Withdraw(ctx, "alice", "GBP", d("100"))
	require.NoError(t, err)
	assert.True(t, bal.Equal(d("100")), "GBP after withdraw = %s", bal)

	pos, err := seq.AddLiquidity(ctx, "alice", "GBP", "USD", d("100"), d("120"))
	require.NoError(t, err)
	assert.Equal(t, "GBP-USD", pos.Pair.String())

	snap := seq.Balance("alice")
	assert.True(t, snap.Balances["GBP"].IsZero())
	assert.True(t, snap.Balances["USD"].IsZero())
	assert.True(t, snap.TotalValue["GBP"].Equal(d("100")))
	assert.True(t, snap.TotalValue["USD"].Equal(d("120")))

	report := seq.Liquidity()
	require.Contains(t, report.Pairs, pos.Pair)
	assert.Equal(t, 1, report.Pairs[pos.Pair].Providers)

	_, err = seq.RemoveLiquidity(ctx, "alice", "GBP", "USD")
	require.NoError(t, err)

	snap = seq.Balance("alice")
	assert.True(t, snap.Balances["GBP"].Equal(d("100")))
	assert.True(t, snap.Balances["USD"].Equal(d("120")))
	assert.Empty(t, snap.Positions)

	_, err = seq.RemoveLiquidity(ctx, "alice", "GBP", "USD")
	assert.ErrorIs(t, err, domain.ErrNoSuchPosition)
}

func TestSequencer_CommandErrors(t *testing.T) {
	seq, metrics := startSequencer(t, nil, nil)
	ctx := context.Background()

	_, err := seq.Deposit(ctx, "alice", "GBP", d("10"))
	require.NoError(t, err)

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{"deposit zero", func() error {
			_, err := seq.Deposit(ctx, "alice", "GBP", d("0"))
			return err
		}, domain.ErrInvalidAmount},
		{"deposit without user", func() error {
			_, err := seq.Deposit(ctx, "", "GBP", d("1"))
			return err
		}, domain.ErrMissingUser},
		{"withdraw too much", func() error {
			_, err := seq.Withdraw(ctx, "alice", "GBP", d("11"))
			return err
		}, domain.ErrInsufficientBalance},
		{"bad side", func() error {
			_, err := seq.PlaceOrder(ctx, "alice", "hold", "BTC-GBP", d("1"), d("1"))
			return err
		}, domain.ErrInvalidSide},
		{"bad product", func() error {
			_, err := seq.PlaceOrder(ctx, "alice", "buy", "BTCGBP", d("1"), d("1"))
			return err
		}, domain.ErrInvalidPair},
		{"zero price", func() error {
			_, err := seq.PlaceOrder(ctx, "alice", "buy", "BTC-GBP", d("1"), d("0"))
			return err
		}, domain.ErrInvalidAmount},
		{"buy beyond balance", func() error {
			_, err := seq.PlaceOrder(ctx, "alice", "buy", "BTC-GBP", d("2"), d("6"))
			return err
		}, domain.ErrInsufficientBalance},
		{"liquidity same token", func() error {
			_, err := seq.AddLiquidity(ctx, "alice", "GBP", "GBP", d("1"), d("1"))
			return err
		}, domain.ErrInvalidPair},
		{"fund zero", func() error {
			_, err := seq.FundReserve(ctx, "GBP", d("0"))
			return err
		}, domain.ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.call(), tt.want)
		})
	}

	// Rejections leave the balance alone.
	assert.True(t, seq.Balance("alice").Balances["GBP"].Equal(d("10")))
	assert.Equal(t, uint64(len(tests)), metrics.Snapshot().EventsRejected)
}

func TestSequencer_PlaceOrderEscrows(t *testing.T) {
	seq, _ := startSequencer(t, nil, nil)
	ctx := context.Background()

	_, err := seq.Deposit(ctx, "alice", "GBP", d("100"))
	require.NoError(t, err)

	order, err := seq.PlaceOrder(ctx, "alice", "buy", "BTC-GBP", d("3"), d("10"))
	require.NoError(t, err)
	assert.NotEmpty(t, order.ID)
	assert.Equal(t, domain.SideBuy, order.Side)

	assert.True(t, seq.Balance("alice").Balances["GBP"].Equal(d("70")))

	book := seq.OrderBook()
	pair := domain.Pair{Base: "BTC", Quote: "GBP"}
	require.Contains(t, book, pair)
	require.Len(t, book[pair].Bids, 1)
	assert.Empty(t, book[pair].Asks)
}

func TestSequencer_MatchingSettlesTrade(t *testing.T) {
	journal := &memJournal{}
	trades := make(chan domain.Trade, 4)
	seq, metrics := startSequencer(t, journal, func(tr domain.Trade) { trades <- tr })
	ctx := context.Background()

	_, err := seq.FundReserve(ctx, "BTC", d("1000"))
	require.NoError(t, err)
	_, err = seq.FundReserve(ctx, "GBP", d("1000"))
	require.NoError(t, err)

	_, err = seq.Deposit(ctx, "alice", "GBP", d("100"))
	require.NoError(t, err)
	_, err = seq.Deposit(ctx, "bob", "BTC", d("5"))
	require.NoError(t, err)

	_, err = seq.PlaceOrder(ctx, "alice", "buy", "BTC-GBP", d("2"), d("10"))
	require.NoError(t, err)
	_, err = seq.PlaceOrder(ctx, "bob", "sell", "BTC-GBP", d("2"), d("10"))
	require.NoError(t, err)

	var tr domain.Trade
	select {
	case tr = <-trades:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for a trade")
	}

	assert.Equal(t, "alice", tr.Buyer)
	assert.Equal(t, "bob", tr.Seller)
	assert.True(t, tr.Amount.Equal(d("2")))

	alice := seq.Balance("alice")
	bob := seq.Balance("bob")
	assert.True(t, alice.Balances["GBP"].Equal(d("80")))
	assert.True(t, alice.Balances["BTC"].Equal(d("2")))
	assert.True(t, bob.Balances["BTC"].Equal(d("3")))
	assert.True(t, bob.Balances["GBP"].Equal(d("20")))

	assert.Empty(t, seq.Orders())
	assert.True(t, seq.Liquidity().Reserves["BTC"].Equal(d("980")))
	assert.True(t, seq.Liquidity().Reserves["GBP"].Equal(d("998")))

	assert.Eventually(t, func() bool { return journal.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), metrics.Snapshot().TradesExecuted)
}

func TestSequencer_JournalFailureKeepsRunning(t *testing.T) {
	journal := &memJournal{err: errors.New("disk full")}
	trades := make(chan domain.Trade, 1)
	seq, metrics := startSequencer(t, journal, func(tr domain.Trade) { trades <- tr })
	ctx := context.Background()

	for _, token := range []string{"BTC", "GBP"} {
		_, err := seq.FundReserve(ctx, token, d("100"))
		require.NoError(t, err)
	}
	_, err := seq.Deposit(ctx, "alice", "GBP", d("10"))
	require.NoError(t, err)
	_, err = seq.Deposit(ctx, "bob", "BTC", d("1"))
	require.NoError(t, err)
	_, err = seq.PlaceOrder(ctx, "alice", "buy", "BTC-GBP", d("1"), d("1"))
	require.NoError(t, err)
	_, err = seq.PlaceOrder(ctx, "bob", "sell", "BTC-GBP", d("1"), d("1"))
	require.NoError(t, err)

	select {
	case <-trades:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for a trade")
	}
	assert.Eventually(t, func() bool { return metrics.Snapshot().ErrorsTotal >= 1 }, time.Second, 5*time.Millisecond)

	_, err = seq.Deposit(ctx, "carol", "GBP", d("1"))
	assert.NoError(t, err)
}

func TestSequencer_SlowJournalDoesNotStallCommands(t *testing.T) {
	journal := &blockingJournal{release: make(chan struct{})}
	trades := make(chan domain.Trade, 1)
	seq, _ := startSequencer(t, journal, func(tr domain.Trade) { trades <- tr })
	ctx := context.Background()

	for _, token := range []string{"BTC", "GBP"} {
		_, err := seq.FundReserve(ctx, token, d("100"))
		require.NoError(t, err)
	}
	_, err := seq.Deposit(ctx, "alice", "GBP", d("10"))
	require.NoError(t, err)
	_, err = seq.Deposit(ctx, "bob", "BTC", d("1"))
	require.NoError(t, err)
	_, err = seq.PlaceOrder(ctx, "alice", "buy", "BTC-GBP", d("1"), d("1"))
	require.NoError(t, err)
	_, err = seq.PlaceOrder(ctx, "bob", "sell", "BTC-GBP", d("1"), d("1"))
	require.NoError(t, err)

	select {
	case <-trades:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for a trade")
	}

	// The journal is still blocked; commands must not wait for it.
	cmdCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	bal, err := seq.Deposit(cmdCtx, "carol", "GBP", d("1"))
	require.NoError(t, err)
	assert.True(t, bal.Equal(d("1")))
	assert.Equal(t, 0, journal.count())

	close(journal.release)
	assert.Eventually(t, func() bool { return journal.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSequencer_StopFlushesJournal(t *testing.T) {
	journal := &memJournal{}
	trades := make(chan domain.Trade, 1)
	seq := NewSequencer(Config{
		MatchInterval: 5 * time.Millisecond,
		DumpPath:      filepath.Join(t.TempDir(), "dump.json"),
		Metrics:       &infra.Metrics{},
	}, journal, func(tr domain.Trade) { trades <- tr })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		seq.Run(ctx)
	}()

	for _, token := range []string{"BTC", "GBP"} {
		_, err := seq.FundReserve(ctx, token, d("100"))
		require.NoError(t, err)
	}
	_, err := seq.Deposit(ctx, "alice", "GBP", d("10"))
	require.NoError(t, err)
	_, err = seq.Deposit(ctx, "bob", "BTC", d("1"))
	require.NoError(t, err)
	_, err = seq.PlaceOrder(ctx, "alice", "buy", "BTC-GBP", d("1"), d("1"))
	require.NoError(t, err)
	_, err = seq.PlaceOrder(ctx, "bob", "sell", "BTC-GBP", d("1"), d("1"))
	require.NoError(t, err)

	select {
	case <-trades:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for a trade")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 1, journal.count())
}

func TestSequencer_RecoversFromMatchPanic(t *testing.T) {
	metrics := &infra.Metrics{}
	dump := filepath.Join(t.TempDir(), "dump.json")
	seq := NewSequencer(Config{MatchInterval: 5 * time.Millisecond, DumpPath: dump, Metrics: metrics}, nil, nil)
	seq.matcher.now = func() time.Time { panic("clock failure") }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go seq.Run(ctx)

	for _, token := range []string{"BTC", "GBP"} {
		_, err := seq.FundReserve(ctx, token, d("100"))
		require.NoError(t, err)
	}
	_, err := seq.Deposit(ctx, "alice", "GBP", d("10"))
	require.NoError(t, err)
	_, err = seq.Deposit(ctx, "bob", "BTC", d("1"))
	require.NoError(t, err)
	_, err = seq.PlaceOrder(ctx, "alice", "buy", "BTC-GBP", d("1"), d("1"))
	require.NoError(t, err)
	_, err = seq.PlaceOrder(ctx, "bob", "sell", "BTC-GBP", d("1"), d("1"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return metrics.Snapshot().ErrorsTotal > 0 }, 2*time.Second, 5*time.Millisecond)

	_, statErr := os.Stat(dump)
	assert.NoError(t, statErr, "state dump should be written")

	// A failed cycle settles nothing and keeps both orders queued.
	assert.Len(t, seq.Orders(), 2)
	assert.True(t, seq.Balance("alice").Balances["GBP"].Equal(d("9")))
	assert.True(t, seq.Balance("alice").Balances["BTC"].IsZero())
	assert.True(t, seq.Balance("bob").Balances["GBP"].IsZero())
	assert.True(t, seq.Liquidity().Reserves["BTC"].Equal(d("100")))
	assert.True(t, seq.Liquidity().Reserves["GBP"].Equal(d("100")))

	// The loop is still alive.
	bal, err := seq.Deposit(ctx, "carol", "GBP", d("5"))
	require.NoError(t, err)
	assert.True(t, bal.Equal(d("5")))
}

func TestSequencer_ExchangeRate(t *testing.T) {
	seq, _ := startSequencer(t, nil, nil)
	ctx := context.Background()

	_, err := seq.ExchangeRate("BTC-GBP")
	assert.ErrorIs(t, err, domain.ErrDivideByZero)

	_, err = seq.ExchangeRate("nonsense")
	assert.ErrorIs(t, err, domain.ErrInvalidPair)

	_, err = seq.FundReserve(ctx, "BTC", d("10"))
	require.NoError(t, err)
	_, err = seq.FundReserve(ctx, "GBP", d("40"))
	require.NoError(t, err)

	rate, err := seq.ExchangeRate("BTC-GBP")
	require.NoError(t, err)
	assert.True(t, rate.Equal(d("0.25")), "rate = %s", rate)

	_, err = seq.Deposit(ctx, "alice", "BTC", d("1"))
	require.NoError(t, err)
	_, err = seq.Deposit(ctx, "alice", "GBP", d("1"))
	require.NoError(t, err)
	_, err = seq.AddLiquidity(ctx, "alice", "BTC", "GBP", d("1"), d("1"))
	require.NoError(t, err)

	rates := seq.ExchangeRates()
	assert.Len(t, rates, 1)
}

func TestSequencer_ContextCancelled(t *testing.T) {
	// Not running: nothing will ever answer.
	seq := NewSequencer(Config{Metrics: &infra.Metrics{}}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := seq.Deposit(ctx, "alice", "GBP", d("1"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSequencer_ConcurrentDeposits(t *testing.T) {
	seq, _ := startSequencer(t, nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := seq.Deposit(ctx, "alice", "GBP", d("2")); err != nil {
				t.Errorf("Deposit failed: %v", err)
			}
			_ = seq.Balance("alice")
		}()
	}
	wg.Wait()

	assert.True(t, seq.Balance("alice").Balances["GBP"].Equal(d("100")))
}

func TestSequencer_DumpState(t *testing.T) {
	seq, _ := startSequencer(t, nil, nil)
	_, err := seq.Deposit(context.Background(), "alice", "GBP", d("1"))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "state.json")
	seq.DumpState(path)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"alice"`)
	assert.Contains(t, string(b), `"next_seq"`)
}
