// Package delay converts between human-readable durations ("2s", "500ms",
// "1.5m", "1h") and milliseconds.
package delay

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Fallback is returned by Parse for input it cannot understand.
const Fallback int64 = 2000

// MaxMs is the largest millisecond count a time.Duration can hold.
const MaxMs = math.MaxInt64 / int64(time.Millisecond)

var pattern = regexp.MustCompile(`(?i)^([\d.]+)\s*(ms|s|m|h)?$`)

// Parse returns the number of milliseconds described by input. A bare number
// is read as seconds. Anything unparseable yields Fallback rather than an error;
// values too large for a time.Duration yield MaxMs.
func Parse(input string) int64 {
	match := pattern.FindStringSubmatch(strings.TrimSpace(input))
	if match == nil {
		return Fallback
	}

	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return Fallback
	}

	var ms float64
	switch strings.ToLower(match[2]) {
	case "ms":
		ms = value
	case "m":
		ms = value * 60000
	case "h":
		ms = value * 3600000
	default:
		ms = value * 1000
	}
	if ms >= float64(MaxMs) {
		return MaxMs
	}
	return min(int64(math.Round(ms)), MaxMs)
}

// Duration converts ms to a time.Duration, clamped to [0, MaxMs].
func Duration(ms int64) time.Duration {
	return time.Duration(min(max(ms, 0), MaxMs)) * time.Millisecond
}

// Format renders ms using the coarsest unit that keeps the value >= 1.
func Format(ms int64) string {
	switch {
	case ms < 1000:
		return fmt.Sprintf("%dms", ms)
	case ms < 60000:
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	case ms < 3600000:
		return fmt.Sprintf("%.1fm", float64(ms)/60000)
	default:
		return fmt.Sprintf("%.1fh", float64(ms)/3600000)
	}
}
