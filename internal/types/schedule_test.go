package types

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 10, hour, minute, 0, 0, time.Local)
}

func TestNextOccurrence(t *testing.T) {
	times := []string{"07:00", "12:00"}

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"later today", at(8, 0), at(12, 0)},
		{"tomorrow morning", at(13, 0), at(7, 0).AddDate(0, 0, 1)},
		{"before first", at(6, 59), at(7, 0)},
		{"exactly on a time is not future", at(12, 0), at(7, 0).AddDate(0, 0, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextOccurrence(times, tt.now)
			if !got.Equal(tt.want) {
				t.Errorf("NextOccurrence(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestNextOccurrence_NoValidTimes(t *testing.T) {
	now := at(9, 30)
	for _, times := range [][]string{nil, {}, {"25:00", "nope"}} {
		got := NextOccurrence(times, now)
		if want := now.Add(time.Minute); !got.Equal(want) {
			t.Errorf("NextOccurrence(%v) = %v, want %v", times, got, want)
		}
	}
}

func TestNextOccurrence_SkipsInvalidEntries(t *testing.T) {
	got := NextOccurrence([]string{"bad", "18:30"}, at(9, 0))
	if want := at(18, 30); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestNormalizeTimes(t *testing.T) {
	got, err := NormalizeTimes([]string{"12:00", " 7:05", "12:00", "", "00:00"})
	if err != nil {
		t.Fatalf("NormalizeTimes failed: %v", err)
	}
	want := []string{"00:00", "07:05", "12:00"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("NormalizeTimes = %v, want %v", got, want)
	}

	if _, err := NormalizeTimes([]string{"24:00"}); !errors.Is(err, ErrInvalidTime) {
		t.Errorf("24:00 error = %v, want ErrInvalidTime", err)
	}
	if _, err := NormalizeTimes([]string{" "}); !errors.Is(err, ErrNoTimes) {
		t.Errorf("blank error = %v, want ErrNoTimes", err)
	}
}

func TestSplitTimes(t *testing.T) {
	got, err := SplitTimes("18:00, 09:15;09:15")
	if err != nil {
		t.Fatalf("SplitTimes failed: %v", err)
	}
	if strings.Join(got, ",") != "09:15,18:00" {
		t.Errorf("SplitTimes = %v", got)
	}
}

func TestTrigger_Validate(t *testing.T) {
	if err := (Interval{Ms: 0}).Validate(); !errors.Is(err, ErrInvalidInterval) {
		t.Errorf("zero interval: %v", err)
	}
	if err := (TimeOfDay{}).Validate(); !errors.Is(err, ErrNoTimes) {
		t.Errorf("empty times: %v", err)
	}
	if err := (TimeOfDay{Times: []string{"7:00"}}).Validate(); !errors.Is(err, ErrInvalidTime) {
		t.Errorf("unpadded time: %v", err)
	}
	if err := (Schedule{}).Validate(); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("missing trigger: %v", err)
	}
}

func TestSchedule_JSONShape(t *testing.T) {
	s := Schedule{ID: "a", Name: "every 5m", Trigger: Interval{Ms: 300000}, Enabled: true, CreatedAt: 1}
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if flat["type"] != "interval" {
		t.Errorf("type = %v, want interval", flat["type"])
	}
	if _, ok := flat["times"]; ok {
		t.Error("interval schedule must not carry times")
	}
}

func TestSchedule_UnmarshalReadsOnlyTaggedField(t *testing.T) {
	raw := `{"id":"b","name":"x","type":"time-based","intervalMs":5,"times":["08:00"],"enabled":true,"createdAt":1}`
	var s Schedule
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	tod, ok := s.Trigger.(TimeOfDay)
	if !ok {
		t.Fatalf("Trigger = %T, want TimeOfDay", s.Trigger)
	}
	if len(tod.Times) != 1 || tod.Times[0] != "08:00" {
		t.Errorf("Times = %v", tod.Times)
	}
	if s.Record().IntervalMs != nil {
		t.Error("re-encoded time-based schedule must drop intervalMs")
	}

	if err := json.Unmarshal([]byte(`{"id":"c","type":"cron"}`), &s); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("unknown kind error = %v", err)
	}
}

func TestSchedule_LenientDecodeIsGatedByValidate(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"time-based without times", `{"id":"a","type":"time-based"}`, ErrNoTimes},
		{"interval carrying times", `{"id":"b","type":"interval","times":["08:00"]}`, ErrInvalidInterval},
		{"interval too large", `{"id":"c","type":"interval","intervalMs":9223372800000}`, ErrInvalidInterval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Schedule
			if err := json.Unmarshal([]byte(tt.raw), &s); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if err := s.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate = %v, want %v", err, tt.want)
			}
			if r := s.Record(); r.Type == KindInterval && r.Times != nil {
				t.Error("re-encoded interval schedule must drop times")
			}
		})
	}
}

func TestMessage_Preview(t *testing.T) {
	m := Message{Text: "line one\nline two is a bit longer than thirty"}
	got := m.Preview(30)
	if strings.Contains(got, "\n") {
		t.Error("preview must be single-line")
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("Preview = %q, want ellipsis", got)
	}
	if short := (Message{Text: "hi"}).Preview(30); short != "hi" {
		t.Errorf("Preview = %q, want hi", short)
	}
}
