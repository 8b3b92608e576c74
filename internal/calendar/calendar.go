// Package calendar provides exchange business-day and intraday time
// utilities used by the bar store, execution orchestrator, and
// dispatcher.
//
// Design rules:
//   - System must know if today is a trading day, per exchange.
//   - Do not rely only on weekday checks — exchange holiday data matters.
//   - One central calendar abstraction shared by all callers.
package calendar

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// IST is the Indian Standard Time location NSE/BSE trade in.
var IST *time.Location

func init() {
	var err error
	IST, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		panic(fmt.Sprintf("calendar: failed to load IST timezone: %v", err))
	}
}

// maxLookaheadDays bounds NextBusinessDay's search. Exceeding it indicates
// a misconfigured holiday set (e.g. covering the wrong year) rather than a
// real gap in trading days.
const maxLookaheadDays = 100

// HolidaySet is a single exchange's named holiday calendar, keyed by
// YYYY-MM-DD.
type HolidaySet struct {
	Exchange string            `yaml:"exchange"`
	Holidays map[string]string `yaml:"holidays"`
}

// Calendar answers trading-day and intraday-time questions for one or
// more exchanges.
type Calendar struct {
	holidays map[string]map[string]string // exchange -> date -> reason
}

// New creates an empty Calendar; exchanges are added via LoadYAML or
// LoadFromHolidays.
func New() *Calendar {
	return &Calendar{holidays: make(map[string]map[string]string)}
}

// LoadYAML reads a HolidaySet document from path and registers it.
func (c *Calendar) LoadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("calendar: read %s: %w", path, err)
	}
	var set HolidaySet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return fmt.Errorf("calendar: parse %s: %w", path, err)
	}
	if set.Exchange == "" {
		return fmt.Errorf("calendar: %s: missing exchange field", path)
	}
	c.holidays[strings.ToUpper(set.Exchange)] = set.Holidays
	return nil
}

// LoadFromHolidays registers an exchange's holiday map directly. Useful
// for tests and for exchanges without a YAML file on disk.
func (c *Calendar) LoadFromHolidays(exchange string, holidays map[string]string) {
	c.holidays[strings.ToUpper(exchange)] = holidays
}

// IsTradingDay returns true if date is a trading day on exchange: not a
// weekend, and not a listed holiday. Unregistered exchanges trade every
// weekday (no holiday data is treated as "no holidays configured", not
// as an error — see the bar store which is equally permissive about
// symbols it knows nothing about).
func (c *Calendar) IsTradingDay(date time.Time, exchange string) bool {
	d := date.In(IST)
	if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		return false
	}
	holidays := c.holidays[strings.ToUpper(exchange)]
	if holidays == nil {
		return true
	}
	_, isHoliday := holidays[d.Format("2006-01-02")]
	return !isHoliday
}

// HolidayReason returns the reason date is a holiday on exchange, or ""
// if it is not.
func (c *Calendar) HolidayReason(date time.Time, exchange string) string {
	holidays := c.holidays[strings.ToUpper(exchange)]
	if holidays == nil {
		return ""
	}
	return holidays[date.In(IST).Format("2006-01-02")]
}

// NextBusinessDay returns the smallest strictly-greater date than date
// that is a trading day on exchange. It returns an error if none is
// found within maxLookaheadDays calendar days — that indicates a
// configuration error (e.g. a holiday file with no end), not a
// legitimate gap.
func (c *Calendar) NextBusinessDay(date time.Time, exchange string) (time.Time, error) {
	candidate := date.In(IST)
	for i := 0; i < maxLookaheadDays; i++ {
		candidate = candidate.AddDate(0, 0, 1)
		if c.IsTradingDay(candidate, exchange) {
			return candidate, nil
		}
	}
	return time.Time{}, fmt.Errorf("calendar: no trading day found for %s within %d days of %s",
		exchange, maxLookaheadDays, date.Format("2006-01-02"))
}

// PreviousTradingDay returns the most recent trading day strictly before
// date, walking backwards rather than forwards. The strategy-run
// worker's lookback window does not use it; it counts calendar days.
func (c *Calendar) PreviousTradingDay(date time.Time, exchange string) (time.Time, error) {
	candidate := date.In(IST)
	for i := 0; i < maxLookaheadDays; i++ {
		candidate = candidate.AddDate(0, 0, -1)
		if c.IsTradingDay(candidate, exchange) {
			return candidate, nil
		}
	}
	return time.Time{}, fmt.Errorf("calendar: no trading day found for %s within %d days before %s",
		exchange, maxLookaheadDays, date.Format("2006-01-02"))
}

// SecondsSinceMidnight parses an "HH:MM" clock time and returns
// 3600*H + 60*M. It is total over any well-formed "HH:MM" string; it
// does not validate that H/M fall within a trading session.
func SecondsSinceMidnight(hhmm string) (int, error) {
	parts := strings.Split(hhmm, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("calendar: invalid time-of-day %q, want HH:MM", hhmm)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("calendar: invalid hour in %q: %w", hhmm, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("calendar: invalid minute in %q: %w", hhmm, err)
	}
	return h*3600 + m*60, nil
}

// SecondsSinceMidnightOf returns the seconds-since-midnight of t in IST.
func SecondsSinceMidnightOf(t time.Time) int {
	ist := t.In(IST)
	return ist.Hour()*3600 + ist.Minute()*60 + ist.Second()
}
