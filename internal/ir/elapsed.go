package ir

import (
	"fmt"
	"time"
)

// FormatElapsed renders a duration with three decimals in the largest unit
// that keeps the value at or above one: s, ms, or µs.
func FormatElapsed(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	switch {
	case d >= time.Second:
		return fmt.Sprintf("%s%.3fs", sign, d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%s%.3fms", sign, float64(d)/float64(time.Millisecond))
	default:
		return fmt.Sprintf("%s%.3fµs", sign, float64(d)/float64(time.Microsecond))
	}
}

// FormatTimestamp renders a time-since-boot as seconds with microsecond
// precision, the way the kernel log prints it.
func FormatTimestamp(d time.Duration) string {
	return fmt.Sprintf("%.6f", d.Seconds())
}
