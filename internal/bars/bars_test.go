package bars

import (
	"testing"
	"time"

	"github.com/nitinkhare/patterncore/internal/calendar"
)

func TestTimeOfDay(t *testing.T) {
	b := Bar{RecordTime: time.Date(2026, 3, 2, 9, 15, 0, 0, calendar.IST)}
	if got := TimeOfDay(b); got != "09:15" {
		t.Errorf("TimeOfDay = %q, want 09:15", got)
	}
}

func TestTradingDate(t *testing.T) {
	b := Bar{RecordTime: time.Date(2026, 3, 2, 15, 30, 0, 0, calendar.IST)}
	want := time.Date(2026, 3, 2, 0, 0, 0, 0, calendar.IST)
	if got := TradingDate(b); !got.Equal(want) {
		t.Errorf("TradingDate = %v, want %v", got, want)
	}
}
