package delay

import (
	"math"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"500ms", 500},
		{"2s", 2000},
		{"2", 2000},
		{"1.5m", 90000},
		{"1h", 3600000},
		{"  3S  ", 3000},
		{"250 MS", 250},
		{"0.5", 500},
		{"garbage", Fallback},
		{"", Fallback},
		{"1.2.3s", Fallback},
		{"-5s", Fallback},
		{"10d", Fallback},
		{"2562048h", MaxMs},
		{"99999999999999999999", MaxMs},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Parse(tt.input); got != tt.want {
				t.Errorf("Parse(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "0ms"},
		{999, "999ms"},
		{1000, "1.0s"},
		{2500, "2.5s"},
		{60000, "1.0m"},
		{90000, "1.5m"},
		{3600000, "1.0h"},
		{5400000, "1.5h"},
	}

	for _, tt := range tests {
		if got := Format(tt.ms); got != tt.want {
			t.Errorf("Format(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	// One display decimal of the chosen unit.
	tolerance := func(ms int64) float64 {
		switch {
		case ms < 1000:
			return 0
		case ms < 60000:
			return 50
		case ms < 3600000:
			return 3000
		default:
			return 180000
		}
	}

	for _, ms := range []int64{500, 2000, 90000, 5400000, 1234, 61000} {
		got := Parse(Format(ms))
		if diff := math.Abs(float64(got - ms)); diff > tolerance(ms) {
			t.Errorf("Parse(Format(%d)) = %d, off by %.0f", ms, got, diff)
		}
	}
}

func TestDuration_Clamps(t *testing.T) {
	tests := []struct {
		ms   int64
		want time.Duration
	}{
		{1500, 1500 * time.Millisecond},
		{-5, 0},
		{MaxMs, time.Duration(MaxMs) * time.Millisecond},
		{9223372800000, time.Duration(MaxMs) * time.Millisecond},
		{math.MaxInt64, time.Duration(MaxMs) * time.Millisecond},
	}

	for _, tt := range tests {
		if got := Duration(tt.ms); got != tt.want || got < 0 {
			t.Errorf("Duration(%d) = %v, want %v", tt.ms, got, tt.want)
		}
	}
}
