package decoder

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ClockMode says how the time identifier is scaled.
type ClockMode string

const (
	// ClockAuto treats fractional values and values of at most ten digits as
	// seconds and longer integers as nanoseconds.
	ClockAuto ClockMode = "auto"
	// ClockSeconds treats the value as (possibly fractional) seconds.
	ClockSeconds ClockMode = "seconds"
	// ClockNanoseconds treats the value as integer nanoseconds.
	ClockNanoseconds ClockMode = "nanoseconds"
)

// autoSecondsDigits is the longest integer ClockAuto reads as seconds.
const autoSecondsDigits = 10

// ParseClockMode validates a clock mode name. Empty means ClockAuto.
func ParseClockMode(s string) (ClockMode, error) {
	switch ClockMode(strings.ToLower(s)) {
	case "", ClockAuto:
		return ClockAuto, nil
	case ClockSeconds:
		return ClockSeconds, nil
	case ClockNanoseconds:
		return ClockNanoseconds, nil
	default:
		return "", fmt.Errorf("unknown clock mode %q", s)
	}
}

// ParseTime normalizes a time identifier to a duration since boot.
func ParseTime(s string, mode ClockMode) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	switch mode {
	case ClockSeconds:
		return parseSeconds(s)
	case ClockNanoseconds:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse nanoseconds %q: %w", s, err)
		}
		return time.Duration(n), nil
	default:
		if strings.Contains(s, ".") || len(strings.TrimLeft(s, "-")) <= autoSecondsDigits {
			return parseSeconds(s)
		}
		return ParseTime(s, ClockNanoseconds)
	}
}

// parseSeconds parses "<int>[.<frac>]" without going through float64 so
// that nanosecond fractions survive exactly.
func parseSeconds(s string) (time.Duration, error) {
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	sec, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse seconds %q: %w", s, err)
	}
	if sec > int64(time.Duration(1<<63-1)/time.Second) {
		return 0, fmt.Errorf("parse seconds %q: out of range", s)
	}
	var ns int64
	if frac != "" {
		if len(frac) > 9 {
			frac = frac[:9]
		}
		frac += strings.Repeat("0", 9-len(frac))
		ns, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse seconds %q: %w", s, err)
		}
	}
	d := time.Duration(sec)*time.Second + time.Duration(ns)
	if neg {
		d = -d
	}
	return d, nil
}
