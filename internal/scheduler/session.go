package scheduler

import "time"

// Session is the UTC-hour market session bucket
type Session string

const (
	SessionAsian         Session = "ASIAN"
	SessionEuropean      Session = "EUROPEAN"
	SessionUS            Session = "US"
	SessionOverlapAsiaEU Session = "OVERLAP_ASIA_EUROPE"
	SessionOverlapEUUS   Session = "OVERLAP_EUROPE_US"
	SessionQuiet         Session = "QUIET"
)

// scanIntervals is the number of sniper ticks between evaluations per
// session; busier sessions scan every tick
var scanIntervals = map[Session]uint64{
	SessionOverlapEUUS:   1,
	SessionUS:            1,
	SessionEuropean:      1,
	SessionOverlapAsiaEU: 2,
	SessionAsian:         2,
	SessionQuiet:         3,
}

// ClassifySession buckets a UTC time into a market session
func ClassifySession(t time.Time) Session {
	hour := t.UTC().Hour()
	switch {
	case hour >= 7 && hour < 9:
		return SessionOverlapAsiaEU
	case hour >= 13 && hour < 16:
		return SessionOverlapEUUS
	case hour >= 0 && hour < 7:
		return SessionAsian
	case hour >= 9 && hour < 13:
		return SessionEuropean
	case hour >= 16 && hour < 21:
		return SessionUS
	}
	return SessionQuiet
}

// ScanInterval returns the tick interval for a session
func ScanInterval(s Session) uint64 {
	if interval, ok := scanIntervals[s]; ok {
		return interval
	}
	return 3
}

// ShouldScan reports whether the given scan-cycle counter value qualifies
// for evaluation in the session. The counter is a uint64 that is never
// reset; modulo keeps liveness across wraparound.
func ShouldScan(counter uint64, s Session) bool {
	return counter%ScanInterval(s) == 0
}
