package dispatcher

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// OutageSettings tunes outageTracker, generalizing a per-trade entry
// circuit breaker into tick-level dispatcher skip/resume.
type OutageSettings struct {
	MaxConsecutiveFailures int
	MaxFailuresPerHour     int
	CooldownMinutes        int
}

// DefaultOutageSettings trips after 5 broker calls fail in a row, or
// 10 fail within a rolling hour, and auto-resets after 5 minutes.
var DefaultOutageSettings = OutageSettings{
	MaxConsecutiveFailures: 5,
	MaxFailuresPerHour:     10,
	CooldownMinutes:        5,
}

// outageTracker watches the dispatcher's broker-call failure rate and
// reports when the dispatcher should skip a tick entirely rather than
// keep hammering a broken upstream. Unlike the gobreaker wrap around
// the broker itself, which fails single calls fast, this counts every
// failed order placement (a REJECTED order included) and skips whole
// ticks.
type outageTracker struct {
	mu                  sync.Mutex
	settings            OutageSettings
	consecutiveFailures int
	hourlyFailures      []time.Time
	tripped             bool
	trippedAt           time.Time
	tripReason          string
	logger              *logrus.Entry
}

func newOutageTracker(settings OutageSettings, logger *logrus.Entry) *outageTracker {
	return &outageTracker{settings: settings, logger: logger}
}

func (o *outageTracker) recordFailure(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.tripped {
		return
	}

	now := time.Now()
	o.consecutiveFailures++
	o.hourlyFailures = append(o.hourlyFailures, now)
	o.pruneHourlyFailures(now)

	if o.settings.MaxConsecutiveFailures > 0 && o.consecutiveFailures >= o.settings.MaxConsecutiveFailures {
		o.trip(reason, "consecutive")
		return
	}
	if o.settings.MaxFailuresPerHour > 0 && len(o.hourlyFailures) >= o.settings.MaxFailuresPerHour {
		o.trip(reason, "hourly")
	}
}

func (o *outageTracker) recordSuccess() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.consecutiveFailures = 0
}

// isTripped reports whether the dispatcher should skip this tick. A
// tripped tracker auto-resets once the cooldown elapses.
func (o *outageTracker) isTripped() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.tripped {
		return false
	}
	if o.settings.CooldownMinutes > 0 && time.Since(o.trippedAt) >= time.Duration(o.settings.CooldownMinutes)*time.Minute {
		o.logger.WithField("tripped_for", time.Since(o.trippedAt)).Info("outage cooldown expired, resuming dispatch")
		o.resetLocked()
		return false
	}
	return true
}

func (o *outageTracker) trip(reason, kind string) {
	o.tripped = true
	o.trippedAt = time.Now()
	o.tripReason = reason
	o.logger.WithFields(logrus.Fields{"kind": kind, "reason": reason}).Warn("dispatcher outage tracker tripped, skipping ticks")
}

func (o *outageTracker) resetLocked() {
	o.tripped = false
	o.trippedAt = time.Time{}
	o.tripReason = ""
	o.consecutiveFailures = 0
	o.hourlyFailures = nil
}

func (o *outageTracker) pruneHourlyFailures(now time.Time) {
	cutoff := now.Add(-time.Hour)
	i := 0
	for i < len(o.hourlyFailures) && o.hourlyFailures[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		o.hourlyFailures = o.hourlyFailures[i:]
	}
}
