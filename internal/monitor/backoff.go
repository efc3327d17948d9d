package monitor

import "time"

// Delay returns the escalating wait applied after attempt N (1-based)
// consecutive not-ready conditions. The schedule caps at the third
// tier: every later attempt waits an hour.
func Delay(attempt int) time.Duration {
	switch {
	case attempt <= 1:
		return 5 * time.Minute
	case attempt == 2:
		return 30 * time.Minute
	default:
		return time.Hour
	}
}
