// Package loop provides the ticker-based run loop shared by the
// strategy-run worker, the dispatcher, and the watchdog. Each loop
// owns its own ticker; a single shutdown signal cancels all of them.
package loop

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Tick is one iteration of a worker loop. A returned error is logged
// at Warn and the loop continues — Tick is responsible for converting
// any persistent-entity failure into its own failed-status transition
// before returning, since only it knows which entity owns the work.
type Tick func(ctx context.Context) error

// Runner ticks Fn every Interval until ctx is cancelled. Panics inside
// Fn are recovered and logged as errors rather than crashing the
// process — a bug in one tick must not take down the other loops
// sharing this process.
type Runner struct {
	Name     string
	Interval time.Duration
	Fn       Tick
	Logger   *logrus.Entry
}

// Run blocks until ctx is cancelled. It invokes Fn once immediately,
// then every Interval — a new StrategyRun waiting in "queued" should
// not sit for a full poll interval before the first tick picks it up.
func (r *Runner) Run(ctx context.Context) {
	log := r.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("loop", r.Name)

	r.safeTick(ctx, log)

	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("loop stopped")
			return
		case <-ticker.C:
			r.safeTick(ctx, log)
		}
	}
}

func (r *Runner) safeTick(ctx context.Context, log *logrus.Entry) {
	defer func() {
		if rec := recover(); rec != nil {
			log.WithField("panic", fmt.Sprint(rec)).Error("tick panicked")
		}
	}()
	if err := r.Fn(ctx); err != nil {
		log.WithError(err).Warn("tick failed")
	}
}

// Group runs a set of Runners concurrently and waits for all of them
// to return after ctx is cancelled.
type Group struct {
	runners []*Runner
}

// Add registers a Runner to be started by Start.
func (g *Group) Add(r *Runner) {
	g.runners = append(g.runners, r)
}

// Start launches every registered Runner in its own goroutine and
// blocks until all of them have returned (i.e. until ctx is
// cancelled and every in-flight tick finishes).
func (g *Group) Start(ctx context.Context) {
	done := make(chan struct{}, len(g.runners))
	for _, r := range g.runners {
		r := r
		go func() {
			r.Run(ctx)
			done <- struct{}{}
		}()
	}
	for range g.runners {
		<-done
	}
}
