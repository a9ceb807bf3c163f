package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"exchange_go/internal/domain"

	"github.com/shopspring/decimal"
)

// TickerView is a ticker plus its derived change figures, as served to clients.
type TickerView struct {
	domain.Ticker
	ChangePct *decimal.Decimal `json:"change_pct"`
	Direction string           `json:"direction"`
}

// TickerService keeps per-product trade statistics
type TickerService struct {
	mu        sync.RWMutex
	tickers   map[string]*domain.Ticker
	tradeChan chan domain.Trade
}

// NewTickerService creates a new TickerService instance
func NewTickerService() *TickerService {
	return &TickerService{
		tickers:   make(map[string]*domain.Ticker),
		tradeChan: make(chan domain.Trade, 1000), // 버스트 대응을 위한 충분한 버퍼
	}
}

// Publish queues a trade without blocking the caller. A full queue drops
// the trade from the statistics; the journal still has it.
func (s *TickerService) Publish(trade domain.Trade) {
	select {
	case s.tradeChan <- trade:
	default:
		slog.Warn("Ticker queue full, trade dropped", slog.String("trade", trade.ID))
	}
}

// StartTradeProcessor starts a background goroutine to fold queued trades
func (s *TickerService) StartTradeProcessor(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case trade := <-s.tradeChan:
				s.ProcessTrades(trade)
			}
		}
	}()
}

// ProcessTrades folds trades into their products' tickers. It is thread-safe.
func (s *TickerService) ProcessTrades(trades ...domain.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, trade := range trades {
		product := trade.Pair.String()
		t, exists := s.tickers[product]
		if !exists {
			t = &domain.Ticker{Product: product}
			s.tickers[product] = t
		}
		t.Apply(trade)
	}
}

// GetAllData returns every ticker sorted by product
func (s *TickerService) GetAllData() []TickerView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]TickerView, 0, len(s.tickers))
	for _, t := range s.tickers {
		result = append(result, newTickerView(t))
	}

	// Sort by product for consistent ordering
	sort.Slice(result, func(i, j int) bool {
		return result[i].Product < result[j].Product
	})

	return result
}

// GetData returns the ticker for a specific product
func (s *TickerService) GetData(product string) (TickerView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tickers[product]
	if !ok {
		return TickerView{}, false
	}
	return newTickerView(t), true
}

func newTickerView(t *domain.Ticker) TickerView {
	return TickerView{
		Ticker:    *t,
		ChangePct: t.ChangePct(),
		Direction: t.ChangeDirection(),
	}
}
