package miner

import (
	"fmt"
	"testing"
)

// buildSeededDays constructs 20 trading days with 3 time-of-day points
// {09:15, 09:30, 09:45}; open(09:45)/open(09:15) - 1 is +2% on the
// first 16 days and -1% on the last 4 — the seeded miner-correctness
// scenario.
func buildSeededDays() DayData {
	days := make(DayData, 20)
	for i := 1; i <= 20; i++ {
		ret := 0.02
		if i > 16 {
			ret = -0.01
		}
		xPrice := 100.0
		yPrice := xPrice * (1 + ret)
		date := fmt.Sprintf("2026-01-%02d", i)
		days[date] = map[string]DayBar{
			"09:15": {Open: xPrice},
			"09:30": {Open: xPrice},
			"09:45": {Open: yPrice},
		}
	}
	return days
}

func findPair(scores []Score, x, y string) (Score, bool) {
	for _, s := range scores {
		if s.X == x && s.Y == y {
			return s, true
		}
	}
	return Score{}, false
}

func TestComputeScores_SeededRollingReturn(t *testing.T) {
	days := buildSeededDays()
	scores, dropped := ComputeScores(days, 1.0, 1, 5, OpenOnly)
	if len(dropped) != 0 {
		t.Fatalf("expected no dropped days, got %v", dropped)
	}

	s, ok := findPair(scores, "09:15", "09:45")
	if !ok {
		t.Fatal("expected a (09:15, 09:45) score")
	}
	if s.TotalCount != 16 {
		t.Errorf("expected 16 full windows, got %d", s.TotalCount)
	}
	if s.Exceeded != 14 {
		t.Errorf("expected 14 windows exceeding v=1, got %d", s.Exceeded)
	}
	if s.ProfitDays != 15 {
		t.Errorf("expected 15 profitable windows, got %d", s.ProfitDays)
	}
	if got := s.ExceedProb(); got < 0.87 || got > 0.88 {
		t.Errorf("expected exceed_prob ~0.875, got %v", got)
	}
	if got := s.Average; got < 8.1 || got > 8.2 {
		t.Errorf("expected average ~8.125, got %v", got)
	}
}

func TestComputeScores_HorizontalGapExcludesNearPairs(t *testing.T) {
	days := buildSeededDays()
	scores, _ := ComputeScores(days, 1.0, 2, 5, OpenOnly)
	for _, s := range scores {
		xi, yi := indexOf(s.X), indexOf(s.Y)
		if float64(yi-xi) < 2 {
			t.Errorf("pair (%s,%s) violates horizontal_gap=2", s.X, s.Y)
		}
	}
}

func indexOf(tp string) int {
	switch tp {
	case "09:15":
		return 0
	case "09:30":
		return 1
	case "09:45":
		return 2
	default:
		return -1
	}
}

func TestComputeScores_DropsInconsistentDays(t *testing.T) {
	days := buildSeededDays()
	days["2026-02-01"] = map[string]DayBar{"09:15": {Open: 100}} // missing points
	_, dropped := ComputeScores(days, 1.0, 1, 5, OpenOnly)
	if len(dropped) != 1 || dropped[0] != "2026-02-01" {
		t.Errorf("expected the inconsistent day to be dropped, got %v", dropped)
	}
}

func TestComputeScores_EmptyInput(t *testing.T) {
	scores, dropped := ComputeScores(nil, 1.0, 1, 5, OpenOnly)
	if scores != nil || dropped != nil {
		t.Errorf("expected nil results for empty input, got scores=%v dropped=%v", scores, dropped)
	}
}

func TestBinarySearchVGap_ConvergesNearExpectedThreshold(t *testing.T) {
	days := buildSeededDays()
	cand, err := BinarySearchVGap(days, 1, 5, 0.75, OpenOnly)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cand == nil {
		t.Fatal("expected a valid candidate")
	}
	if cand.X != "09:15" || cand.Y != "09:45" {
		t.Errorf("expected best candidate at (09:15, 09:45), got (%s, %s)", cand.X, cand.Y)
	}
	if cand.VerticalGap <= 1.9 || cand.VerticalGap > 2.0 {
		t.Errorf("expected vertical gap in (1.9, 2.0], got %v", cand.VerticalGap)
	}
	if cand.ExceedProb() < 0.75 {
		t.Errorf("expected best-valid candidate to satisfy tau, got exceed_prob=%v", cand.ExceedProb())
	}
}

func TestBinarySearchVGap_NeverRegresses(t *testing.T) {
	// A day set with no signal at all: every window's sum is exactly
	// 0, so no vertical gap > 0 is ever exceeded and no candidate
	// should ever be recorded as valid.
	days := make(DayData, 10)
	for i := 1; i <= 10; i++ {
		date := fmt.Sprintf("2026-03-%02d", i)
		days[date] = map[string]DayBar{
			"09:15": {Open: 100},
			"09:45": {Open: 100},
		}
	}
	cand, err := BinarySearchVGap(days, 1, 5, 0.5, OpenOnly)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cand != nil {
		t.Errorf("expected no valid candidate for a flat return series, got %+v", cand)
	}
}

func TestBestAcrossHorizontalGaps_KeepsLargestVerticalGap(t *testing.T) {
	days := buildSeededDays()
	cand, err := BestAcrossHorizontalGaps(days, []float64{1, 2}, 5, 0.75, OpenOnly)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cand == nil {
		t.Fatal("expected a candidate across horizontal gaps")
	}
	for _, h := range []float64{1, 2} {
		single, err := BinarySearchVGap(days, h, 5, 0.75, OpenOnly)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if single != nil && single.VerticalGap > cand.VerticalGap {
			t.Errorf("h=%v reaches vertical gap %v, larger than the kept %v", h, single.VerticalGap, cand.VerticalGap)
		}
	}
}

func TestBinarySearchVGap_RejectsNonPositiveContinuousDays(t *testing.T) {
	if _, err := BinarySearchVGap(buildSeededDays(), 1, 0, 0.75, OpenOnly); err == nil {
		t.Error("expected error for continuous_days <= 0")
	}
}
