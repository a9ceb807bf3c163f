package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"exchange_go/internal/app"
	"exchange_go/internal/infra"

	"github.com/urfave/cli/v2"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	cliApp := &cli.App{
		Name:  "exchange",
		Usage: "token exchange with a periodic matching engine and liquidity pools",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP API and the matching engine",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:    "pprof",
						Usage:   "pprof listen address, empty disables it",
						Value:   "localhost:6060",
						EnvVars: []string{infra.EnvPrefix + "PPROF_ADDR"},
					},
				},
				Action: serve,
			},
			{
				Name:   "check-config",
				Usage:  "load and validate the configuration, then exit",
				Flags:  []cli.Flag{configFlag()},
				Action: checkConfig,
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		slog.Error("❌ Exchange failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "path to the YAML config file",
		Value:   "configs/config.yaml",
		EnvVars: []string{infra.EnvPrefix + "CONFIG"},
	}
}

func serve(c *cli.Context) error {
	// 1. Pprof Server (for performance profiling)
	if addr := c.String("pprof"); addr != "" {
		go func() {
			slog.Info("🕵️ Pprof server started", slog.String("addr", addr))
			if err := http.ListenAndServe(addr, nil); err != nil {
				slog.Error("Pprof server failed", slog.Any("error", err))
			}
		}()
	}

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(c.String("config")); err != nil {
		return fmt.Errorf("bootstrapping failed: %w", err)
	}
	defer bootstrap.Close()

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return bootstrap.Run(ctx)
}

func checkConfig(c *cli.Context) error {
	cfg, err := infra.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "config ok: addr=%s match_interval=%s storage=%s reserves=%d\n",
		cfg.Server.Addr, cfg.MatchInterval(), cfg.Storage.DSN, len(cfg.Reserves))
	return nil
}
