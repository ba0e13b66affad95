package helpers

import "time"

// Config files keep durations as integer seconds, zero means default.
func IntSecondDefault(x int, def time.Duration) time.Duration {
	if x <= 0 {
		return def
	}
	return time.Duration(x) * time.Second
}
