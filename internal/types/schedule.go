package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/linkerlin/chatauto.go/internal/delay"
)

// Kind discriminates the two schedule triggers.
type Kind string

const (
	KindInterval  Kind = "interval"
	KindTimeBased Kind = "time-based"
)

var (
	ErrInvalidInterval = errors.New("interval must be positive")
	ErrInvalidTime     = errors.New("time must be HH:MM (24-hour)")
	ErrNoTimes         = errors.New("at least one time is required")
	ErrKindMismatch    = errors.New("update does not match schedule kind")
	ErrUnknownKind     = errors.New("unknown schedule kind")
)

// Trigger decides when a schedule fires. It is either Interval or TimeOfDay.
type Trigger interface {
	Kind() Kind
	// Next returns the first firing strictly after now.
	Next(now time.Time) time.Time
	Validate() error
	Describe() string
}

// Interval fires repeatedly every Ms milliseconds.
type Interval struct {
	Ms int64
}

func (i Interval) Kind() Kind { return KindInterval }

func (i Interval) Next(now time.Time) time.Time {
	return now.Add(delay.Duration(i.Ms))
}

// Validate requires a period that is positive and fits a time.Duration.
func (i Interval) Validate() error {
	if i.Ms <= 0 || i.Ms > delay.MaxMs {
		return ErrInvalidInterval
	}
	return nil
}

func (i Interval) Describe() string {
	return "every " + delay.Format(i.Ms)
}

// TimeOfDay fires once a day at each of Times ("HH:MM", local time).
type TimeOfDay struct {
	Times []string
}

func (t TimeOfDay) Kind() Kind { return KindTimeBased }

func (t TimeOfDay) Next(now time.Time) time.Time {
	return NextOccurrence(t.Times, now)
}

func (t TimeOfDay) Validate() error {
	if len(t.Times) == 0 {
		return ErrNoTimes
	}
	for _, s := range t.Times {
		if !timePattern.MatchString(s) {
			return fmt.Errorf("%q: %w", s, ErrInvalidTime)
		}
	}
	return nil
}

func (t TimeOfDay) Describe() string {
	return "daily at " + strings.Join(t.Times, ", ")
}

// Schedule is a persisted rule that triggers a batch send.
type Schedule struct {
	ID               string
	Name             string
	Trigger          Trigger
	Enabled          bool
	NextRunTimestamp *int64
	LastRunTimestamp *int64
	CreatedAt        int64
}

// Kind reports the trigger kind, or "" when the trigger is missing.
func (s Schedule) Kind() Kind {
	if s.Trigger == nil {
		return ""
	}
	return s.Trigger.Kind()
}

// Validate reports whether the schedule can be started.
func (s Schedule) Validate() error {
	if s.Trigger == nil {
		return ErrUnknownKind
	}
	return s.Trigger.Validate()
}

// ScheduleRecord is the flat, persisted shape of a Schedule.
type ScheduleRecord struct {
	ID               string   `json:"id" yaml:"id"`
	Name             string   `json:"name" yaml:"name"`
	Type             Kind     `json:"type" yaml:"type"`
	IntervalMs       *int64   `json:"intervalMs,omitempty" yaml:"intervalMs,omitempty"`
	Times            []string `json:"times,omitempty" yaml:"times,omitempty"`
	Enabled          bool     `json:"enabled" yaml:"enabled"`
	NextRunTimestamp *int64   `json:"nextRunTimestamp,omitempty" yaml:"nextRunTimestamp,omitempty"`
	LastRunTimestamp *int64   `json:"lastRunTimestamp,omitempty" yaml:"lastRunTimestamp,omitempty"`
	CreatedAt        int64    `json:"createdAt" yaml:"createdAt"`
}

// Record flattens s for persistence.
func (s Schedule) Record() ScheduleRecord {
	r := ScheduleRecord{
		ID:               s.ID,
		Name:             s.Name,
		Enabled:          s.Enabled,
		NextRunTimestamp: s.NextRunTimestamp,
		LastRunTimestamp: s.LastRunTimestamp,
		CreatedAt:        s.CreatedAt,
	}
	switch tr := s.Trigger.(type) {
	case Interval:
		ms := tr.Ms
		r.Type = KindInterval
		r.IntervalMs = &ms
	case TimeOfDay:
		r.Type = KindTimeBased
		r.Times = append([]string(nil), tr.Times...)
	}
	return r
}

// Schedule rebuilds the tagged form. Only the field that belongs to the
// record's type is read; a record without a type but with an interval is
// treated as an interval schedule.
func (r ScheduleRecord) Schedule() (Schedule, error) {
	s := Schedule{
		ID:               r.ID,
		Name:             r.Name,
		Enabled:          r.Enabled,
		NextRunTimestamp: r.NextRunTimestamp,
		LastRunTimestamp: r.LastRunTimestamp,
		CreatedAt:        r.CreatedAt,
	}

	kind := r.Type
	if kind == "" && r.IntervalMs != nil {
		kind = KindInterval
	}

	switch kind {
	case KindInterval:
		var ms int64
		if r.IntervalMs != nil {
			ms = *r.IntervalMs
		}
		s.Trigger = Interval{Ms: ms}
	case KindTimeBased:
		s.Trigger = TimeOfDay{Times: append([]string(nil), r.Times...)}
	default:
		return Schedule{}, fmt.Errorf("schedule %s: %w %q", r.ID, ErrUnknownKind, r.Type)
	}
	return s, nil
}

// MarshalJSON implements json.Marshaler.
func (s Schedule) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Record())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Schedule) UnmarshalJSON(data []byte) error {
	var r ScheduleRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	decoded, err := r.Schedule()
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}

var timePattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// NormalizeTimes trims, validates, de-duplicates and sorts "HH:MM" strings.
// Single-digit hours ("7:30") are zero-padded.
func NormalizeTimes(times []string) ([]string, error) {
	seen := make(map[string]bool, len(times))
	out := make([]string, 0, len(times))
	for _, raw := range times {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		if len(s) == 4 && s[1] == ':' {
			s = "0" + s
		}
		if !timePattern.MatchString(s) {
			return nil, fmt.Errorf("%q: %w", raw, ErrInvalidTime)
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, ErrNoTimes
	}
	sort.Strings(out)
	return out, nil
}

// SplitTimes parses a comma or space separated list such as "07:00, 12:30".
func SplitTimes(input string) ([]string, error) {
	fields := strings.FieldsFunc(input, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t'
	})
	return NormalizeTimes(fields)
}

// NextOccurrence returns the nearest future wall-clock occurrence among
// times: today's remaining times first, otherwise tomorrow's earliest. If no
// entry is valid the result is one minute from now.
func NextOccurrence(times []string, now time.Time) time.Time {
	var next time.Time
	for _, s := range times {
		sched, ok := dailySpec(s)
		if !ok {
			continue
		}
		candidate := sched.Next(now)
		if candidate.IsZero() {
			continue
		}
		if next.IsZero() || candidate.Before(next) {
			next = candidate
		}
	}
	if next.IsZero() {
		return now.Add(time.Minute)
	}
	return next
}

func dailySpec(hhmm string) (cron.Schedule, bool) {
	s := strings.TrimSpace(hhmm)
	if !timePattern.MatchString(s) {
		return nil, false
	}
	hour, _ := strconv.Atoi(s[:2])
	minute, _ := strconv.Atoi(s[3:])
	sched, err := cron.ParseStandard(fmt.Sprintf("%d %d * * *", minute, hour))
	if err != nil {
		return nil, false
	}
	return sched, true
}
