package store

import (
	"fmt"
	"strings"

	"github.com/linkerlin/chatauto.go/internal/types"
)

// ===================== SCHEDULES =====================

// ScheduleUpdate is a merge-patch for a schedule. IntervalMs applies only to
// interval schedules and Times only to time-based ones.
type ScheduleUpdate struct {
	Name       *string
	IntervalMs *int64
	Times      []string
	Enabled    *bool
}

// legacySchedule is the single-schedule record written by older versions.
type legacySchedule struct {
	Enabled          bool   `json:"enabled"`
	IntervalMs       int64  `json:"intervalMs"`
	NextRunTimestamp *int64 `json:"nextRunTimestamp,omitempty"`
	LastRunTimestamp *int64 `json:"lastRunTimestamp,omitempty"`
}

// Migrate converts a legacy single-schedule record into the schedule list.
// It does nothing once the list key exists, so repeated calls never
// duplicate the migrated entry. The legacy key is left in place.
func (s *Store) Migrate() error {
	st := s.mem()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.migrated = false
	return s.migrateLocked(st)
}

func (s *Store) migrateLocked(st Memento) error {
	if s.migrated {
		return nil
	}

	var existing []types.ScheduleRecord
	ok, err := st.Get(KeySchedules, &existing)
	if err != nil {
		return fmt.Errorf("migrate schedules: %w", err)
	}
	if ok {
		s.migrated = true
		return nil
	}

	list := []types.Schedule{}
	var legacy *legacySchedule
	ok, err = st.Get(KeyLegacySchedule, &legacy)
	if err != nil {
		return fmt.Errorf("migrate schedules: %w", err)
	}
	if ok && legacy != nil {
		list = append(list, types.Schedule{
			ID:               types.NewID(),
			Name:             "Migrated schedule",
			Trigger:          types.Interval{Ms: legacy.IntervalMs},
			Enabled:          legacy.Enabled,
			NextRunTimestamp: legacy.NextRunTimestamp,
			LastRunTimestamp: legacy.LastRunTimestamp,
			CreatedAt:        s.nowMs(),
		})
	}
	if err := st.Update(KeySchedules, list); err != nil {
		return fmt.Errorf("migrate schedules: %w", err)
	}
	s.migrated = true
	return nil
}

func (s *Store) loadSchedules(st Memento) ([]types.Schedule, error) {
	if err := s.migrateLocked(st); err != nil {
		return nil, err
	}
	var list []types.Schedule
	if _, err := st.Get(KeySchedules, &list); err != nil {
		return nil, fmt.Errorf("load schedules: %w", err)
	}
	if list == nil {
		list = []types.Schedule{}
	}
	return list, nil
}

func saveSchedules(st Memento, list []types.Schedule) error {
	if err := st.Update(KeySchedules, list); err != nil {
		return fmt.Errorf("save schedules: %w", err)
	}
	return nil
}

// ListSchedules returns every schedule, migrating legacy data on first use.
func (s *Store) ListSchedules() ([]types.Schedule, error) {
	st := s.mem()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadSchedules(st)
}

// GetSchedule returns the schedule with the given id.
func (s *Store) GetSchedule(id string) (types.Schedule, bool, error) {
	list, err := s.ListSchedules()
	if err != nil {
		return types.Schedule{}, false, err
	}
	for _, sc := range list {
		if sc.ID == id {
			return sc, true, nil
		}
	}
	return types.Schedule{}, false, nil
}

// AddIntervalSchedule stores a new, stopped interval schedule.
func (s *Store) AddIntervalSchedule(name string, intervalMs int64) (types.Schedule, error) {
	return s.addSchedule(name, types.Interval{Ms: intervalMs})
}

// AddTimeBasedSchedule stores a new, stopped daily schedule. Times are
// normalized before they are validated.
func (s *Store) AddTimeBasedSchedule(name string, times []string) (types.Schedule, error) {
	norm, err := types.NormalizeTimes(times)
	if err != nil {
		return types.Schedule{}, err
	}
	return s.addSchedule(name, types.TimeOfDay{Times: norm})
}

func (s *Store) addSchedule(name string, tr types.Trigger) (types.Schedule, error) {
	if err := tr.Validate(); err != nil {
		return types.Schedule{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = tr.Describe()
	}

	st := s.mem()
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.loadSchedules(st)
	if err != nil {
		return types.Schedule{}, err
	}
	sc := types.Schedule{
		ID:        types.NewID(),
		Name:      name,
		Trigger:   tr,
		CreatedAt: s.nowMs(),
	}
	list = append(list, sc)
	if err := saveSchedules(st, list); err != nil {
		return types.Schedule{}, err
	}
	return sc, nil
}

// UpdateSchedule merges u into the schedule with the given id. Supplying the
// field of the other trigger kind fails with types.ErrKindMismatch. The next
// run of an enabled schedule is recomputed when its trigger changes.
func (s *Store) UpdateSchedule(id string, u ScheduleUpdate) (bool, error) {
	var times []string
	if u.Times != nil {
		norm, err := types.NormalizeTimes(u.Times)
		if err != nil {
			return false, err
		}
		times = norm
	}
	if u.IntervalMs != nil {
		if err := (types.Interval{Ms: *u.IntervalMs}).Validate(); err != nil {
			return false, err
		}
	}

	return s.patchSchedule(id, func(sc *types.Schedule) error {
		switch {
		case u.IntervalMs != nil && sc.Kind() != types.KindInterval:
			return types.ErrKindMismatch
		case times != nil && sc.Kind() != types.KindTimeBased:
			return types.ErrKindMismatch
		}

		if u.Name != nil && strings.TrimSpace(*u.Name) != "" {
			sc.Name = strings.TrimSpace(*u.Name)
		}
		triggerChanged := false
		if u.IntervalMs != nil {
			sc.Trigger = types.Interval{Ms: *u.IntervalMs}
			triggerChanged = true
		}
		if times != nil {
			sc.Trigger = types.TimeOfDay{Times: times}
			triggerChanged = true
		}
		if u.Enabled != nil {
			sc.Enabled = *u.Enabled
			triggerChanged = true
		}
		if triggerChanged {
			s.recomputeNext(sc)
		}
		return nil
	})
}

// ToggleSchedule flips the enabled flag, recomputing or clearing the next run,
// and reports whether the id existed.
func (s *Store) ToggleSchedule(id string) (bool, error) {
	return s.patchSchedule(id, func(sc *types.Schedule) error {
		sc.Enabled = !sc.Enabled
		s.recomputeNext(sc)
		return nil
	})
}

// SetScheduleEnabled records whether a schedule is enabled together with its
// next run in one write.
func (s *Store) SetScheduleEnabled(id string, enabled bool, nextRun *int64) (bool, error) {
	return s.patchSchedule(id, func(sc *types.Schedule) error {
		sc.Enabled = enabled
		sc.NextRunTimestamp = nextRun
		return nil
	})
}

// SetNextRun records the next planned firing.
func (s *Store) SetNextRun(id string, nextRun *int64) (bool, error) {
	return s.patchSchedule(id, func(sc *types.Schedule) error {
		sc.NextRunTimestamp = nextRun
		return nil
	})
}

// UpdateLastRun stamps the schedule's last run with the current time.
func (s *Store) UpdateLastRun(id string) (bool, error) {
	now := s.nowMs()
	return s.patchSchedule(id, func(sc *types.Schedule) error {
		sc.LastRunTimestamp = &now
		return nil
	})
}

// DeleteSchedule removes a schedule and reports whether anything was removed.
func (s *Store) DeleteSchedule(id string) (bool, error) {
	st := s.mem()
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.loadSchedules(st)
	if err != nil {
		return false, err
	}
	kept := make([]types.Schedule, 0, len(list))
	for _, sc := range list {
		if sc.ID != id {
			kept = append(kept, sc)
		}
	}
	if len(kept) == len(list) {
		return false, nil
	}
	return true, saveSchedules(st, kept)
}

// ClearSchedules removes every schedule.
func (s *Store) ClearSchedules() error {
	st := s.mem()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.migrated = true
	return saveSchedules(st, []types.Schedule{})
}

func (s *Store) recomputeNext(sc *types.Schedule) {
	if !sc.Enabled || sc.Validate() != nil {
		sc.NextRunTimestamp = nil
		return
	}
	next := sc.Trigger.Next(s.now()).UnixMilli()
	sc.NextRunTimestamp = &next
}

func (s *Store) patchSchedule(id string, fn func(*types.Schedule) error) (bool, error) {
	st := s.mem()
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.loadSchedules(st)
	if err != nil {
		return false, err
	}
	for i := range list {
		if list[i].ID != id {
			continue
		}
		if err := fn(&list[i]); err != nil {
			return true, err
		}
		return true, saveSchedules(st, list)
	}
	return false, nil
}
