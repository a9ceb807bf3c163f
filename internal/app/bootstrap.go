package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"exchange_go/internal/api"
	"exchange_go/internal/domain"
	"exchange_go/internal/engine"
	"exchange_go/internal/event"
	"exchange_go/internal/infra"
	"exchange_go/internal/infra/storage"
	"exchange_go/internal/service"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config    *infra.Config
	Storage   *storage.Storage
	Metrics   *infra.Metrics
	Tickers   *service.TickerService
	Feed      *infra.TradeFeed
	Sequencer *engine.Sequencer
	Server    *api.Server
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads config and wires every component. Nothing runs yet.
func (b *Bootstrap) Initialize(configPath string) error {
	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	slog.SetDefault(infra.NewLogger(cfg))
	slog.Info("🚀 Bootstrapping exchange...",
		slog.String("name", cfg.App.Name),
		slog.String("version", cfg.App.Version))

	// 3. Initialize Storage (trade journal)
	store, err := storage.NewStorage(cfg.Storage.DSN)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ Trade journal initialized", slog.String("dsn", cfg.Storage.DSN))

	// 4. Trade consumers
	b.Metrics = infra.GlobalMetrics
	b.Tickers = service.NewTickerService()
	b.Feed = infra.NewTradeFeed(cfg.PingInterval(), cfg.Feed.SendBuffer, b.Metrics)

	// 5. Sequencer
	event.Warmup(cfg.Engine.InboxSize)
	b.Sequencer = engine.NewSequencer(engine.Config{
		InboxSize:     cfg.Engine.InboxSize,
		MatchInterval: cfg.MatchInterval(),
		DumpPath:      cfg.Engine.DumpPath,
		Metrics:       b.Metrics,
	}, store, b.publishTrade)

	// 6. HTTP surface
	b.Server = api.NewServer(cfg.Server.Addr, b.Sequencer, api.Options{
		History: store,
		Tickers: b.Tickers,
		Feed:    b.Feed,
		Metrics: b.Metrics,
	})

	return nil
}

func (b *Bootstrap) publishTrade(trade domain.Trade) {
	b.Tickers.Publish(trade)
	b.Feed.Broadcast(trade)
}

// Run starts the sequencer and the HTTP server and blocks until ctx is done
// or the server fails. The sequencer outlives the HTTP server so in-flight
// requests still get answers during shutdown, and it flushes the trade
// journal before Run returns.
func (b *Bootstrap) Run(ctx context.Context) error {
	seqCtx, stopSequencer := context.WithCancel(context.Background())
	seqDone := make(chan struct{})
	go func() {
		defer close(seqDone)
		b.Sequencer.Run(seqCtx)
	}()
	defer func() {
		stopSequencer()
		<-seqDone
	}()
	b.Tickers.StartTradeProcessor(seqCtx)
	slog.Info("✅ Sequencer started")

	if err := b.SeedReserves(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- b.Server.Start() }()

	slog.Info("✨ Exchange fully operational. Press Ctrl+C to exit.")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	slog.Info("👋 Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), b.Config.ShutdownTimeout())
	defer cancel()

	b.Feed.Close()
	if err := b.Server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", slog.Any("error", err))
	}
	<-errCh

	stopSequencer()
	<-seqDone

	if n, err := b.Storage.CountTrades(shutdownCtx, ""); err == nil {
		slog.Info("Trade journal summary", slog.Int64("trades", n))
	}

	return nil
}

// SeedReserves funds the pool reserves listed in the config, in token order.
func (b *Bootstrap) SeedReserves(ctx context.Context) error {
	tokens := make([]string, 0, len(b.Config.Reserves))
	for token := range b.Config.Reserves {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	for _, token := range tokens {
		reserve, err := b.Sequencer.FundReserve(ctx, token, b.Config.Reserves[token])
		if err != nil {
			return fmt.Errorf("seed reserve %s: %w", token, err)
		}
		slog.Info("✅ Reserve seeded", slog.String("token", token), slog.String("reserve", reserve.String()))
	}
	return nil
}

// Close releases resources acquired by Initialize.
func (b *Bootstrap) Close() {
	if b.Storage != nil {
		if err := b.Storage.Close(); err != nil {
			slog.Warn("Failed to close trade journal", slog.Any("error", err))
		}
	}
}
