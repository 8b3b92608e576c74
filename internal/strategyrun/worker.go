// Package strategyrun drives StrategyRun jobs from queued through
// running to completed or failed, invoking the pattern miner for each
// symbol in the run's configured universe and persisting mined
// results in bounded batches.
package strategyrun

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nitinkhare/patterncore/internal/bars"
	"github.com/nitinkhare/patterncore/internal/ingest"
	"github.com/nitinkhare/patterncore/internal/miner"
	"github.com/nitinkhare/patterncore/internal/ratelimit"
	"github.com/nitinkhare/patterncore/internal/store"
)

// batchSize bounds how many results accumulate in memory before a
// persist call, keeping memory use flat. The watchdog does not inspect
// strategy runs or their results.
const batchSize = 10

// symbolBatch throttles after every 5 symbols processed, via the
// ratelimit.Limiter rather than a raw counter and sleep.
const symbolBatch = 5

// RunConfig is the immutable configuration blob a StrategyRun's
// Config field decodes into.
type RunConfig struct {
	ThresholdProb   float64  `json:"threshold_prob"`
	HorizontalGaps  []float64 `json:"horizontal_gaps"`
	ContinuousDays  []int    `json:"continuous_days"`
	Granularity     string   `json:"granularity"`
	StartDate       string   `json:"start_date"`
	EndDate         string   `json:"end_date"`
	NSESymbols      []string `json:"nse_stocks"`
	BSESymbols      []string `json:"bse_stocks"`
	IncludeAllNSE   bool     `json:"include_all_nse"`
	IncludeAllBSE   bool     `json:"include_all_bse"`
}

const dateLayout = "2006-01-02"
const defaultLookbackDays = 90

// resolveDateRange defaults to the trailing 90 days when a run config
// omits explicit dates.
func (c RunConfig) resolveDateRange(now time.Time) (time.Time, time.Time, error) {
	if c.StartDate == "" || c.EndDate == "" {
		return now.AddDate(0, 0, -defaultLookbackDays), now, nil
	}
	from, err := time.Parse(dateLayout, c.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("strategyrun: invalid start_date %q: %w", c.StartDate, err)
	}
	to, err := time.Parse(dateLayout, c.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("strategyrun: invalid end_date %q: %w", c.EndDate, err)
	}
	return from, to, nil
}

// Worker is the single-consumer polling loop described by the
// strategy-run component: fetch queued runs, claim one with a CAS
// transition, mine every symbol in its universe, persist results.
type Worker struct {
	store    store.Store
	bars     bars.Store
	ingester ingest.Adapter
	limiter  ratelimit.Limiter
	tau      float64
	logger   *logrus.Entry
}

// New builds a Worker. limiter paces the symbol loop (every symbolBatch
// symbols, one Wait call); defaultTau is used when a run's config
// omits threshold_prob.
func New(st store.Store, barStore bars.Store, ingester ingest.Adapter, limiter ratelimit.Limiter, defaultTau float64, logger *logrus.Entry) *Worker {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Worker{store: st, bars: barStore, ingester: ingester, limiter: limiter, tau: defaultTau, logger: logger.WithField("component", "strategyrun")}
}

// Tick implements loop.Tick: it claims every currently queued run and
// drives each to completion or failure before returning.
func (w *Worker) Tick(ctx context.Context) error {
	runs, err := w.store.ListQueuedStrategyRuns(ctx)
	if err != nil {
		return fmt.Errorf("strategyrun: list queued runs: %w", err)
	}
	for _, run := range runs {
		w.processRun(ctx, run)
	}
	return nil
}

func (w *Worker) processRun(ctx context.Context, run store.StrategyRun) {
	log := w.logger.WithField("run_id", run.ID)

	if err := w.store.TransitionRunStatus(ctx, run.ID, store.StatusQueued, store.StatusRunning); err != nil {
		if err == store.ErrCASConflict {
			return // another worker claimed it first
		}
		log.WithError(err).Error("failed to claim run")
		return
	}
	log.Info("run claimed, mining started")

	if err := w.mine(ctx, run); err != nil {
		log.WithError(err).Error("run failed")
		if tErr := w.store.TransitionRunStatus(ctx, run.ID, store.StatusRunning, store.StatusFailed); tErr != nil {
			log.WithError(tErr).Error("failed to mark run failed")
		}
		return
	}

	if err := w.store.TransitionRunStatus(ctx, run.ID, store.StatusRunning, store.StatusCompleted); err != nil {
		log.WithError(err).Error("failed to mark run completed")
		return
	}
	log.Info("run completed")
}

func (w *Worker) mine(ctx context.Context, run store.StrategyRun) error {
	var cfg RunConfig
	if err := json.Unmarshal(run.Config, &cfg); err != nil {
		return fmt.Errorf("strategyrun: parse config: %w", err)
	}
	tau := cfg.ThresholdProb
	if tau <= 0 {
		tau = w.tau
	}
	from, to, err := cfg.resolveDateRange(time.Now())
	if err != nil {
		return err
	}
	granularity := bars.Granularity(cfg.Granularity)
	if granularity == "" {
		granularity = bars.ThreeMin
	}
	horizontalGaps := cfg.HorizontalGaps
	if len(horizontalGaps) == 0 {
		horizontalGaps = []float64{2}
	}
	continuousDaysList := cfg.ContinuousDays
	if len(continuousDaysList) == 0 {
		continuousDaysList = []int{3, 5, 7, 10}
	}

	batch := make([]store.StrategyResult, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := w.store.SaveStrategyResultsBatch(ctx, batch); err != nil {
			return fmt.Errorf("strategyrun: save results batch: %w", err)
		}
		batch = batch[:0]
		return nil
	}

	for _, exchange := range []string{"NSE", "BSE"} {
		explicit, includeAll := cfg.NSESymbols, cfg.IncludeAllNSE
		if exchange == "BSE" {
			explicit, includeAll = cfg.BSESymbols, cfg.IncludeAllBSE
		}
		symbols, err := w.Universe(ctx, exchange, explicit, includeAll)
		if err != nil {
			return fmt.Errorf("strategyrun: resolve universe for %s: %w", exchange, err)
		}

		for i, symbol := range symbols {
			if err := w.processSymbol(ctx, run, symbol, exchange, granularity, from, to, horizontalGaps, continuousDaysList, tau, &batch, flush); err != nil {
				return err
			}
			if (i+1)%symbolBatch == 0 {
				if err := w.limiter.Wait(ctx); err != nil {
					return fmt.Errorf("strategyrun: rate limit wait: %w", err)
				}
			}
		}
	}

	return flush()
}

func (w *Worker) processSymbol(
	ctx context.Context,
	run store.StrategyRun,
	symbol, exchange string,
	granularity bars.Granularity,
	from, to time.Time,
	horizontalGaps []float64,
	continuousDaysList []int,
	tau float64,
	batch *[]store.StrategyResult,
	flush func() error,
) error {
	if _, err := w.ingester.Sync(ctx, []string{symbol}, []string{exchange}, granularity, from, to); err != nil {
		return fmt.Errorf("strategyrun: sync %s/%s: %w", symbol, exchange, err)
	}

	rows, err := w.bars.GetBars(ctx, symbol, exchange, granularity, from, to, 0)
	if err != nil {
		return fmt.Errorf("strategyrun: get bars %s/%s: %w", symbol, exchange, err)
	}
	days := toDayData(rows)

	for _, continuousDays := range continuousDaysList {
		cand, err := miner.BestAcrossHorizontalGaps(days, horizontalGaps, continuousDays, tau, miner.OpenOnly)
		if err != nil {
			return fmt.Errorf("strategyrun: binary search %s/%s/%d: %w", symbol, exchange, continuousDays, err)
		}
		if cand == nil {
			continue
		}
		*batch = append(*batch, toStrategyResult(run.ID, symbol, exchange, *cand))
		if len(*batch) >= batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return nil
}

func toDayData(rows []bars.Bar) miner.DayData {
	days := make(miner.DayData)
	for _, b := range rows {
		date := bars.TradingDate(b).Format(dateLayout)
		tod := bars.TimeOfDay(b)
		if days[date] == nil {
			days[date] = make(map[string]miner.DayBar)
		}
		days[date][tod] = miner.DayBar{Open: b.Open, High: b.High, Low: b.Low, Close: b.Close}
	}
	return days
}

func toStrategyResult(runID uuid.UUID, symbol, exchange string, cand miner.Candidate) store.StrategyResult {
	return store.StrategyResult{
		RunID:          runID,
		Symbol:         symbol,
		Exchange:       exchange,
		VerticalGap:    cand.VerticalGap,
		HorizontalGap:  cand.HorizontalGap,
		ContinuousDays: cand.ContinuousDays,
		X:              cand.X,
		Y:              cand.Y,
		ExceedProb:     cand.ExceedProb(),
		ProfitDays:     cand.ProfitDays,
		Average:        cand.Average,
		TotalCount:     cand.TotalCount,
		Highest:        cand.Highest,
		P5:             cand.P5,
		P10:            cand.P10,
		P20:            cand.P20,
		P40:            cand.P40,
		P50:            cand.P50,
	}
}
