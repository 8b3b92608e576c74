// Package miner implements the pattern-mining algorithm: for one
// symbol's bars, find the (x, y) time-of-day pair and vertical-gap
// threshold whose rolling k-day return most reliably exceeds that
// threshold. This is the only CPU-heavy component in the pipeline and
// is pure over its input — no broker, store, or ingester calls happen
// here.
package miner

import (
	"fmt"
	"sort"
)

// PriceSampler extracts the price used to compute a return from a
// day's bar at a given time-of-day point. Deployments pin one
// implementation; the default samples the bar's open price only.
type PriceSampler func(b DayBar) float64

// OpenOnly is the default PriceSampler: both the buy-time and
// sell-time return use the bar's open price.
func OpenOnly(b DayBar) float64 { return b.Open }

// DayBar is the subset of OHLC a sample needs. It is intentionally
// narrower than bars.Bar so this package has no dependency on the
// store layer.
type DayBar struct {
	Open, High, Low, Close float64
}

// DayData maps a trading date (as "2006-01-02") to that day's
// time-of-day points (as "15:04"), each holding the bar sampled at
// that point.
type DayData map[string]map[string]DayBar

// Score is one (x, y) pair's statistics over every full k-day window.
type Score struct {
	X, Y        string
	Exceeded    int
	ProfitDays  int
	TotalCount  int
	Average     float64
	Highest     float64
	Lowest      float64
	P5, P10, P20, P40, P50 float64
}

// ExceedProb is the fraction of windows whose rolling sum exceeded
// the vertical-gap threshold this Score was computed against.
func (s Score) ExceedProb() float64 {
	if s.TotalCount == 0 {
		return 0
	}
	return float64(s.Exceeded) / float64(s.TotalCount)
}

// ProfitProb is the fraction of windows with a positive rolling sum.
func (s Score) ProfitProb() float64 {
	if s.TotalCount == 0 {
		return 0
	}
	return float64(s.ProfitDays) / float64(s.TotalCount)
}

// timePoints returns the canonical set of time-of-day points, taken
// from an arbitrary representative day, and the subset of days whose
// point set matches it exactly. Days with a mismatched point set are
// dropped — logged by the caller, never failed.
func timePoints(days DayData) (points []string, accepted []string, dropped []string) {
	if len(days) == 0 {
		return nil, nil, nil
	}

	var representative string
	for d := range days {
		representative = d
		break
	}
	canonical := make(map[string]struct{}, len(days[representative]))
	for tp := range days[representative] {
		canonical[tp] = struct{}{}
	}
	points = make([]string, 0, len(canonical))
	for tp := range canonical {
		points = append(points, tp)
	}
	sort.Strings(points)

	for d, tps := range days {
		if sameKeySet(tps, canonical) {
			accepted = append(accepted, d)
		} else {
			dropped = append(dropped, d)
		}
	}
	sort.Strings(accepted)
	sort.Strings(dropped)
	return points, accepted, dropped
}

func sameKeySet(tps map[string]DayBar, canonical map[string]struct{}) bool {
	if len(tps) != len(canonical) {
		return false
	}
	for k := range tps {
		if _, ok := canonical[k]; !ok {
			return false
		}
	}
	return true
}

// ComputeScores runs the sliding-window rolling-return computation
// for every ordered pair (x, y) with index distance >= horizontalGap,
// against a k = continuousDays window, scored against verticalGap.
//
// Dropped is the set of days excluded from computation because their
// time-of-day points didn't match the canonical set — callers should
// log it, not fail on it.
func ComputeScores(days DayData, verticalGap, horizontalGap float64, continuousDays int, sample PriceSampler) (scores []Score, dropped []string) {
	points, accepted, dropped := timePoints(days)
	if len(points) == 0 || len(accepted) < continuousDays {
		return nil, dropped
	}
	if sample == nil {
		sample = OpenOnly
	}

	for xi, x := range points {
		for yi, y := range points {
			if float64(yi-xi) < horizontalGap {
				continue
			}
			s, ok := scoreOnePair(days, accepted, x, y, verticalGap, continuousDays, sample)
			if ok {
				scores = append(scores, s)
			}
		}
	}

	// Sort descending by (exceeded, average) for stable tie-breaking.
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Exceeded != scores[j].Exceeded {
			return scores[i].Exceeded > scores[j].Exceeded
		}
		return scores[i].Average > scores[j].Average
	})
	return scores, dropped
}

// scoreOnePair computes the rolling-window statistics for a single
// (x, y) pair using a fixed-size sliding window, O(1) per accepted
// day via a running sum.
func scoreOnePair(days DayData, accepted []string, x, y string, verticalGap float64, k int, sample PriceSampler) (Score, bool) {
	type windowEntry struct{ xPrice, yPrice float64 }
	window := make([]windowEntry, 0, k)
	var windowSum float64

	var exceeded, profitDays, totalCount int
	var average, highest, lowest float64
	var records []float64
	lowest = 0
	haveAny := false

	for _, d := range accepted {
		xBar := days[d][x]
		yBar := days[d][y]
		xPrice := sample(xBar)
		yPrice := sample(yBar)
		if xPrice == 0 {
			continue // avoid division by zero; a zero-open bar is bad data, skip the day.
		}
		ret := (yPrice/xPrice - 1.0) * 100.0

		window = append(window, windowEntry{xPrice, yPrice})
		windowSum += ret

		if len(window) == k {
			if windowSum > verticalGap {
				exceeded++
			}
			if windowSum > 0 {
				profitDays++
			}
			records = append(records, windowSum)
			totalCount++
			average += windowSum
			if !haveAny || windowSum > highest {
				highest = windowSum
			}
			if !haveAny || windowSum < lowest {
				lowest = windowSum
			}
			haveAny = true

			removed := window[0]
			window = window[1:]
			windowSum -= (removed.yPrice/removed.xPrice - 1.0) * 100.0
		}
	}

	if totalCount == 0 {
		return Score{}, false
	}

	sort.Float64s(records)
	return Score{
		X: x, Y: y,
		Exceeded:   exceeded,
		ProfitDays: profitDays,
		TotalCount: totalCount,
		Average:    average / float64(totalCount),
		Highest:    highest,
		Lowest:     lowest,
		P5:         percentile(records, 0.05),
		P10:        percentile(records, 0.10),
		P20:        percentile(records, 0.20),
		P40:        percentile(records, 0.40),
		P50:        percentile(records, 0.50),
	}, true
}

// percentile follows the source's floor(p*n) index into the sorted
// record list rather than interpolating.
func percentile(sorted []float64, p float64) float64 {
	idx := int(p * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Candidate is a binary-search result: the best-scoring (x, y) pair
// found at the largest vertical-gap threshold still meeting tau.
type Candidate struct {
	Score
	VerticalGap    float64
	HorizontalGap  float64
	ContinuousDays int
}

// BinarySearchVGap bisects v in [0, 200] up to 100 iterations,
// stopping early once the bracket narrows to <= 0.1. At each midpoint
// it scores every (x, y) pair and inspects the top-ranked one (by the
// ComputeScores ordering); if its exceed probability is >= tau, that
// point is recorded as the new best-valid candidate and the search
// moves the lower bound up, otherwise it moves the upper bound down.
//
// best_valid never regresses: an iteration that fails tau never
// overwrites a previously recorded candidate, even if that iteration's
// top point looks superficially better by some other measure.
func BinarySearchVGap(days DayData, horizontalGap float64, continuousDays int, tau float64, sample PriceSampler) (*Candidate, error) {
	if continuousDays <= 0 {
		return nil, fmt.Errorf("miner: continuous_days must be positive, got %d", continuousDays)
	}

	l, r := 0.0, 200.0
	var best *Candidate

	for iter := 0; iter < 100 && r-l > 0.1; iter++ {
		mid := (l + r) / 2
		scores, _ := ComputeScores(days, mid, horizontalGap, continuousDays, sample)
		if len(scores) == 0 {
			r = mid
			continue
		}
		top := scores[0]
		if top.ExceedProb() >= tau {
			best = &Candidate{Score: top, VerticalGap: mid, HorizontalGap: horizontalGap, ContinuousDays: continuousDays}
			l = mid
		} else {
			r = mid
		}
	}

	return best, nil
}

// BestAcrossHorizontalGaps runs BinarySearchVGap for every horizontal
// gap and keeps the candidate with the largest successful vertical
// gap: among candidates produced across different h values for the
// same (symbol, k), the one with the largest successful v wins.
func BestAcrossHorizontalGaps(days DayData, horizontalGaps []float64, continuousDays int, tau float64, sample PriceSampler) (*Candidate, error) {
	var best *Candidate
	for _, h := range horizontalGaps {
		cand, err := BinarySearchVGap(days, h, continuousDays, tau, sample)
		if err != nil {
			return nil, err
		}
		if cand == nil {
			continue
		}
		if best == nil || cand.VerticalGap > best.VerticalGap {
			best = cand
		}
	}
	return best, nil
}
