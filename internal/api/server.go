package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"exchange_go/internal/domain"
	"exchange_go/internal/infra"
	"exchange_go/internal/service"

	"github.com/shopspring/decimal"
)

// UserHeader identifies the caller. There is no authentication behind it.
const UserHeader = "X-User"

// Exchange is the command and query surface the handlers call into.
type Exchange interface {
	Deposit(ctx context.Context, user, token string, amount decimal.Decimal) (decimal.Decimal, error)
	Withdraw(ctx context.Context, user, token string, amount decimal.Decimal) (decimal.Decimal, error)
	PlaceOrder(ctx context.Context, user, side, product string, amount, price decimal.Decimal) (domain.Order, error)
	AddLiquidity(ctx context.Context, user, tokenA, tokenB string, amountA, amountB decimal.Decimal) (domain.LiquidityPosition, error)
	RemoveLiquidity(ctx context.Context, user, tokenA, tokenB string) (domain.LiquidityPosition, error)
	FundReserve(ctx context.Context, token string, amount decimal.Decimal) (decimal.Decimal, error)

	Balance(user string) domain.AccountSnapshot
	OrderBook() map[domain.Pair]*domain.ProductBook
	Liquidity() domain.LiquidityReport
	ExchangeRate(product string) (decimal.Decimal, error)
	ExchangeRates() map[domain.Pair]decimal.Decimal
}

// Server exposes the exchange over HTTP.
type Server struct {
	exchange Exchange
	history  domain.TradeHistory // optional
	tickers  *service.TickerService
	feed     http.Handler // optional
	metrics  *infra.Metrics

	httpServer *http.Server
}

// Options carries the optional collaborators of a Server.
type Options struct {
	History domain.TradeHistory
	Tickers *service.TickerService
	Feed    http.Handler
	Metrics *infra.Metrics
}

// NewServer creates a server listening on addr.
func NewServer(addr string, exchange Exchange, opts Options) *Server {
	if opts.Tickers == nil {
		opts.Tickers = service.NewTickerService()
	}
	if opts.Metrics == nil {
		opts.Metrics = infra.GlobalMetrics
	}

	s := &Server{
		exchange: exchange,
		history:  opts.History,
		tickers:  opts.Tickers,
		feed:     opts.Feed,
		metrics:  opts.Metrics,
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Commands
	mux.HandleFunc("POST /deposit", s.withUser(s.handleDeposit))
	mux.HandleFunc("POST /withdraw", s.withUser(s.handleWithdraw))
	mux.HandleFunc("POST /place_order", s.withUser(s.handlePlaceOrder))
	mux.HandleFunc("POST /add_liquidity", s.withUser(s.handleAddLiquidity))
	mux.HandleFunc("POST /remove_liquidity", s.withUser(s.handleRemoveLiquidity))
	mux.HandleFunc("POST /fund_reserve", s.handleFundReserve)

	// Queries
	mux.HandleFunc("GET /balance", s.withUser(s.handleBalance))
	mux.HandleFunc("GET /order_book", s.handleOrderBook)
	mux.HandleFunc("GET /liquidity", s.handleLiquidity)
	mux.HandleFunc("GET /exchange_rates", s.handleExchangeRates)
	mux.HandleFunc("GET /exchange_rates/{pair}", s.handleExchangeRate)
	mux.HandleFunc("GET /trades", s.handleTrades)
	mux.HandleFunc("GET /tickers", s.handleTickers)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	if s.feed != nil {
		mux.Handle("GET /ws", s.feed)
	}

	return logRequests(mux)
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	slog.Info("HTTP server listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("HTTP request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("elapsed", time.Since(start)))
	})
}
