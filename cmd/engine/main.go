// Package main is the entry point for the patterncore engine: the
// pattern-mining strategy-run worker, execution orchestrator, task
// dispatcher, and task watchdog that together turn mined time-of-day
// patterns into scheduled buy/sell orders.
//
// Modes:
//   - "all":       run every loop (run, dispatch, watchdog) plus the
//     health server, in one process — the default deployment shape.
//   - "run":       strategy-run worker only.
//   - "dispatch":  execution orchestrator + task dispatcher only.
//   - "watchdog":  task watchdog only.
//   - "status":    print current system/market status and exit.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/nitinkhare/patterncore/internal/bars"
	"github.com/nitinkhare/patterncore/internal/broker"
	"github.com/nitinkhare/patterncore/internal/calendar"
	"github.com/nitinkhare/patterncore/internal/config"
	"github.com/nitinkhare/patterncore/internal/dispatcher"
	"github.com/nitinkhare/patterncore/internal/execorch"
	"github.com/nitinkhare/patterncore/internal/health"
	"github.com/nitinkhare/patterncore/internal/ingest"
	"github.com/nitinkhare/patterncore/internal/loop"
	"github.com/nitinkhare/patterncore/internal/ratelimit"
	"github.com/nitinkhare/patterncore/internal/store"
	"github.com/nitinkhare/patterncore/internal/strategyrun"
	"github.com/nitinkhare/patterncore/internal/watchdog"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	mode := flag.String("mode", "all", "run mode: all | run | dispatch | watchdog | status")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	log := logger.WithField("component", "engine")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer pool.Close()

	st := store.NewPostgresStore(pool)
	barStore := bars.NewPostgresStore(pool)

	cal := calendar.New()
	if cfg.Calendar.NSEHolidaysPath != "" {
		if err := cal.LoadYAML(cfg.Calendar.NSEHolidaysPath); err != nil {
			log.WithError(err).Fatal("failed to load NSE holiday calendar")
		}
	}
	if cfg.Calendar.BSEHolidaysPath != "" {
		if err := cal.LoadYAML(cfg.Calendar.BSEHolidaysPath); err != nil {
			log.WithError(err).Fatal("failed to load BSE holiday calendar")
		}
	}

	activeBroker, err := newBroker(cfg.Broker)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize broker")
	}
	breakerBroker := broker.NewCircuitBreakerBroker(activeBroker)

	ingester := ingest.NewHTTPAdapter(cfg.Ingester.BaseURL, cfg.Ingester.Retries)
	limiter := ratelimit.New(3, 1) // Paces the strategy-run worker's symbol loop.

	if *mode == "status" {
		runStatus(context.Background(), log, cal, breakerBroker, st)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ticks := health.NewTickTracker()
	healthServer := health.NewServer(health.Config{Port: cfg.Health.Port}, st, ticks, log)
	go func() {
		if err := healthServer.Start(); err != nil {
			log.WithError(err).Error("health server stopped")
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := healthServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("health server shutdown error")
		}
	}()

	var group loop.Group

	if *mode == "all" || *mode == "run" {
		runWorker := strategyrun.New(st, barStore, ingester, limiter, cfg.Mining.Tau, log)
		group.Add(&loop.Runner{
			Name:     "strategy-run",
			Interval: time.Duration(cfg.Loops.RunPollIntervalSeconds) * time.Second,
			Fn:       ticks.WrapTick("strategy-run", runWorker.Tick),
			Logger:   log,
		})
	}

	if *mode == "all" || *mode == "dispatch" {
		orchestrator := execorch.New(st, cal, log)
		group.Add(&loop.Runner{
			Name:     "execution-orchestrator",
			Interval: time.Duration(cfg.Loops.RunPollIntervalSeconds) * time.Second,
			Fn:       ticks.WrapTick("execution-orchestrator", orchestrator.Tick),
			Logger:   log,
		})

		dispatchCfg := dispatcher.Config{
			BufferSeconds:    cfg.Loops.DispatcherBufferSeconds,
			LookaheadSeconds: cfg.Loops.DispatchPollIntervalSeconds,
			TaskLimit:        cfg.Loops.DispatcherTaskLimit,
		}
		dispatch := dispatcher.New(st, breakerBroker, dispatchCfg, log)
		group.Add(&loop.Runner{
			Name:     "dispatcher",
			Interval: time.Duration(cfg.Loops.DispatchPollIntervalSeconds) * time.Second,
			Fn:       ticks.WrapTick("dispatcher", dispatch.Tick),
			Logger:   log,
		})
	}

	if *mode == "all" || *mode == "watchdog" {
		wd := watchdog.New(st, watchdog.Config{BufferSeconds: cfg.Loops.WatchdogBufferSeconds}, log)
		group.Add(&loop.Runner{
			Name:     "watchdog",
			Interval: time.Duration(cfg.Loops.WatchdogPollIntervalSeconds) * time.Second,
			Fn:       ticks.WrapTick("watchdog", wd.Tick),
			Logger:   log,
		})
	}

	log.WithField("mode", *mode).Info("engine started")
	group.Start(ctx)
	log.Info("engine stopped")
}

// newBroker builds the configured broker, marshalling the engine's
// broker config into the JSON shape broker.Registry factories expect.
func newBroker(cfg config.BrokerConfig) (broker.Broker, error) {
	payload, err := json.Marshal(struct {
		APIKey       string `json:"api_key"`
		APISecret    string `json:"api_secret"`
		AccessToken  string `json:"access_token"`
		BaseURL      string `json:"base_url"`
		PollInterval int    `json:"poll_interval_seconds"`
	}{
		APIKey:       cfg.APIKey,
		APISecret:    cfg.APISecret,
		AccessToken:  cfg.AccessToken,
		BaseURL:      cfg.BaseURL,
		PollInterval: cfg.PollInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal broker config: %w", err)
	}
	return broker.New(cfg.Name, payload)
}

// runStatus prints the current state of the system and exits. It does
// not start any loop — a quick operational sanity check before
// starting the full engine.
func runStatus(ctx context.Context, log *logrus.Entry, cal *calendar.Calendar, b broker.Broker, st store.Store) {
	now := time.Now().In(calendar.IST)
	log.WithField("time_ist", now.Format("2006-01-02 15:04:05")).Info("status")
	log.WithField("nse_trading_day", cal.IsTradingDay(now, "NSE")).Info("status")
	if reason := cal.HolidayReason(now, "NSE"); reason != "" {
		log.WithField("nse_holiday", reason).Info("status")
	}

	if err := st.Ping(ctx); err != nil {
		log.WithError(err).Warn("database unreachable")
	} else {
		log.Info("database reachable")
	}

	quote, err := b.GetQuote(ctx, "RELIANCE", "NSE")
	if err != nil {
		log.WithError(err).Warn("broker quote check failed")
		return
	}
	log.WithField("reliance_last_price", quote.LastPrice).Info("status")
}
