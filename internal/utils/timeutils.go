package utils

import (
	"math"
	"time"
)

// EpochSeconds converts a time to fractional seconds since the Unix epoch,
// the stable timestamp representation of persisted archive rows.
func EpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// FromEpochSeconds converts fractional epoch seconds back to a time in UTC.
func FromEpochSeconds(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC()
}
