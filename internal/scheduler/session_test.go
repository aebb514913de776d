package scheduler

import (
	"testing"
	"time"
)

func utcHour(hour int) time.Time {
	return time.Date(2025, 6, 2, hour, 30, 0, 0, time.UTC)
}

func TestClassifySession(t *testing.T) {
	cases := []struct {
		hour int
		want Session
	}{
		{0, SessionAsian},
		{6, SessionAsian},
		{7, SessionOverlapAsiaEU},
		{8, SessionOverlapAsiaEU},
		{9, SessionEuropean},
		{12, SessionEuropean},
		{13, SessionOverlapEUUS},
		{15, SessionOverlapEUUS},
		{16, SessionUS},
		{20, SessionUS},
		{21, SessionQuiet},
		{23, SessionQuiet},
	}

	for _, tc := range cases {
		if got := ClassifySession(utcHour(tc.hour)); got != tc.want {
			t.Errorf("hour %d classified %s, want %s", tc.hour, got, tc.want)
		}
	}
}

func TestClassifySessionConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	// 12:30 local is 07:30 UTC
	local := time.Date(2025, 6, 2, 12, 30, 0, 0, loc)

	if got := ClassifySession(local); got != SessionOverlapAsiaEU {
		t.Errorf("local time classified %s, want %s", got, SessionOverlapAsiaEU)
	}
}

func TestScanIntervalPerSession(t *testing.T) {
	cases := map[Session]uint64{
		SessionOverlapEUUS:   1,
		SessionUS:            1,
		SessionEuropean:      1,
		SessionOverlapAsiaEU: 2,
		SessionAsian:         2,
		SessionQuiet:         3,
	}
	for session, want := range cases {
		if got := ScanInterval(session); got != want {
			t.Errorf("ScanInterval(%s) = %d, want %d", session, got, want)
		}
	}
}

// During the Asian session only every second tick evaluates; the skipped
// ticks still advance the counter.
func TestShouldScanAsianCadence(t *testing.T) {
	scans := 0
	for counter := uint64(1); counter <= 10; counter++ {
		if ShouldScan(counter, SessionAsian) {
			scans++
		}
	}
	if scans != 5 {
		t.Errorf("Asian session scanned %d of 10 ticks, want 5", scans)
	}
}

func TestShouldScanBusySessionEveryTick(t *testing.T) {
	for counter := uint64(1); counter <= 5; counter++ {
		if !ShouldScan(counter, SessionOverlapEUUS) {
			t.Errorf("busy session skipped tick %d", counter)
		}
	}
}
