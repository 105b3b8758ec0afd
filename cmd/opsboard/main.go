package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/opsboard/internal/catalog"
	"github.com/betbot/opsboard/internal/dashboard"
	"github.com/betbot/opsboard/internal/domain"
	"github.com/betbot/opsboard/internal/fills"
	"github.com/betbot/opsboard/internal/fusion"
	"github.com/betbot/opsboard/internal/health"
	"github.com/betbot/opsboard/internal/metrics"
	"github.com/betbot/opsboard/internal/server"
	"github.com/betbot/opsboard/pkg/config"
	"github.com/betbot/opsboard/pkg/logger"
	"github.com/betbot/opsboard/pkg/opsapi"
	"github.com/betbot/opsboard/pkg/shutdown"
)

const gracefulShutdownPeriod = 10 * time.Second

func main() {
	// .env is optional; real env vars win
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv(config.EnvPrefix+"CONFIG"), "config file (yaml)")
	useTUI := flag.Bool("tui", false, "run the terminal dashboard")
	listen := flag.String("listen", "", "HTTP listen address (overrides config)")
	flag.Parse()

	if err := run(*configPath, *useTUI, *listen); err != nil {
		fmt.Fprintf(os.Stderr, "opsboard: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, useTUI bool, listen string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Server.Listen = listen
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		return errors.Wrap(err, "init logger")
	}
	if useTUI {
		logger.Quiet()
	}
	logrus.WithFields(logrus.Fields{"api": cfg.API.BaseURL, "listen": cfg.Server.Listen, "tui": useTUI}).Info("opsboard starting")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(reg)

	client := opsapi.NewClient(cfg.API.BaseURL, opsapi.Options{Timeout: cfg.API.Timeout, Token: cfg.API.Token})

	meta := make(map[string]domain.Meta, len(cfg.Strategies))
	for id, m := range cfg.Strategies {
		meta[id] = domain.Meta{Name: m.Name, Subtitle: m.Subtitle}
	}
	cat := catalog.New(meta, cfg.Books.AutomatedPrefixes)

	engine := fusion.NewEngine(client, fusion.Config{
		Intervals: fusion.Intervals{
			Matrix:     cfg.Poll.Matrix,
			Readiness:  cfg.Poll.Readiness,
			Rebalances: cfg.Poll.Rebalances,
			Journal:    cfg.Poll.Journal,
			Exposure:   cfg.Poll.Exposure,
			RiskEvents: cfg.Poll.RiskEvents,
			Freshness:  cfg.Poll.Freshness,
		},
		FetchTimeout: cfg.API.FetchTimeout,
		RefuseEvery:  cfg.Poll.Refuse,
		Options: fusion.Options{
			Catalog:         cat,
			Freshness:       health.FreshnessPolicy{WarnAfter: cfg.Freshness.WarnAfter, ErrorAfter: cfg.Freshness.ErrorAfter},
			System:          health.FreshnessPolicy{WarnAfter: cfg.SystemFreshness.WarnAfter, ErrorAfter: cfg.SystemFreshness.ErrorAfter},
			SparklineWindow: cfg.Sparkline.Window,
			FeedLimit:       cfg.Feed.Limit,
			JournalRows:     cfg.Feed.JournalRows,
			BookLabels: map[domain.BookID]string{
				domain.BookAutomated: cfg.Books.AutomatedLabel,
				domain.BookManual:    cfg.Books.ManualLabel,
			},
		},
		Observer: recorder,
		Recorder: recorder,
	})
	submitter := fills.NewSubmitter(client)
	srv := server.New(server.Config{Listen: cfg.Server.Listen, RefreshGap: cfg.Server.RefreshGap}, engine, submitter, metrics.Handler(reg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := engine.Start(ctx); err != nil {
		return errors.Wrap(err, "start engine")
	}
	if err := srv.Start(); err != nil {
		engine.Stop()
		return errors.Wrap(err, "start http server")
	}

	shutdowns := shutdown.NewManager()
	shutdowns.OnShutdown("http", srv.Shutdown)
	shutdowns.OnShutdown("engine", func(context.Context) error {
		engine.Stop()
		return nil
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(sigCh)

	uiDone := make(chan error, 1)
	if useTUI {
		go func() {
			uiDone <- dashboard.Run(ctx, engine, dashboard.Options{
				Pages: client,
				Intervals: dashboard.PageIntervals{
					Pipeline:      cfg.Poll.Pipeline,
					Slippage:      cfg.Poll.Slippage,
					TradeActivity: cfg.Poll.TradeActivity,
					Backtests:     cfg.Poll.Backtests,
					Journal:       cfg.Poll.Journal,
				},
				Observer:     recorder,
				Fills:        submitter,
				ChordTimeout: cfg.Keys.ChordTimeout,
			})
		}()
	}

	var runErr error
	select {
	case sig := <-sigCh:
		logrus.Infof("received %s, shutting down", strings.ToUpper(sig.String()))
	case err := <-uiDone:
		if err != nil {
			runErr = errors.Wrap(err, "dashboard")
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), gracefulShutdownPeriod)
	defer shutdownCancel()
	if !shutdowns.Shutdown(shutdownCtx) {
		logrus.Warn("shutdown did not complete cleanly")
	}
	logrus.Info("opsboard stopped")
	return runErr
}
