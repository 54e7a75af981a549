package player

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatClock renders seconds as "MM.SS". Minutes are not capped at 99.
func FormatClock(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d.%02d", total/60, total%60)
}

// ParseClock is the inverse of FormatClock.
func ParseClock(s string) (float64, error) {
	minutes, secs, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok {
		return 0, fmt.Errorf("invalid clock %q: missing separator", s)
	}
	m, err := strconv.Atoi(minutes)
	if err != nil || m < 0 {
		return 0, fmt.Errorf("invalid clock minutes %q", s)
	}
	sec, err := strconv.Atoi(secs)
	if err != nil || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("invalid clock seconds %q", s)
	}
	return float64(m*60 + sec), nil
}
