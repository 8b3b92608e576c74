package calendar

import (
	"testing"
	"time"
)

func testCalendar() *Calendar {
	c := New()
	c.LoadFromHolidays("NSE", map[string]string{
		"2026-01-26": "Republic Day",
		"2026-03-14": "Holi",
		"2026-08-15": "Independence Day",
	})
	return c
}

func TestIsTradingDay_Weekday(t *testing.T) {
	c := testCalendar()
	monday := time.Date(2026, 2, 2, 10, 0, 0, 0, IST)
	if !c.IsTradingDay(monday, "NSE") {
		t.Error("expected Monday to be a trading day")
	}
}

func TestIsTradingDay_Weekend(t *testing.T) {
	c := testCalendar()
	saturday := time.Date(2026, 2, 7, 10, 0, 0, 0, IST)
	sunday := time.Date(2026, 2, 8, 10, 0, 0, 0, IST)
	if c.IsTradingDay(saturday, "NSE") {
		t.Error("expected Saturday to not be a trading day")
	}
	if c.IsTradingDay(sunday, "NSE") {
		t.Error("expected Sunday to not be a trading day")
	}
}

func TestIsTradingDay_Holiday(t *testing.T) {
	c := testCalendar()
	republicDay := time.Date(2026, 1, 26, 10, 0, 0, 0, IST)
	if c.IsTradingDay(republicDay, "NSE") {
		t.Error("expected Republic Day to not be a trading day")
	}
	if reason := c.HolidayReason(republicDay, "NSE"); reason != "Republic Day" {
		t.Errorf("expected 'Republic Day', got %q", reason)
	}
}

// S6: next_business_day("2026-03-13", "NSE") = "2026-03-16" because
// 2026-03-14 is Holi and 2026-03-14/15 fall on a weekend.
func TestNextBusinessDay_HolidayAbuttingWeekend(t *testing.T) {
	c := testCalendar()
	from := time.Date(2026, 3, 13, 0, 0, 0, 0, IST)

	next, err := c.NextBusinessDay(from, "NSE")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := next.Format("2006-01-02"); got != "2026-03-16" {
		t.Errorf("expected 2026-03-16, got %s", got)
	}
}

// L3: next_business_day(next_business_day(d,e) - 1 day, e) = next_business_day(d,e)
// for any non-trading d.
func TestNextBusinessDay_Idempotent(t *testing.T) {
	c := testCalendar()
	d := time.Date(2026, 3, 14, 0, 0, 0, 0, IST) // Holi, a Saturday.

	next1, err := c.NextBusinessDay(d, "NSE")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	next2, err := c.NextBusinessDay(next1.AddDate(0, 0, -1), "NSE")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !next1.Equal(next2) {
		t.Errorf("expected idempotence, got %s and %s", next1, next2)
	}
}

func TestSecondsSinceMidnight(t *testing.T) {
	cases := map[string]int{
		"00:00": 0,
		"09:15": 9*3600 + 15*60,
		"15:30": 15*3600 + 30*60,
	}
	for in, want := range cases {
		got, err := SecondsSinceMidnight(in)
		if err != nil {
			t.Fatalf("SecondsSinceMidnight(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("SecondsSinceMidnight(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestSecondsSinceMidnight_InvalidFormat(t *testing.T) {
	if _, err := SecondsSinceMidnight("9:15:00"); err == nil {
		t.Error("expected error for malformed HH:MM:SS input")
	}
}
