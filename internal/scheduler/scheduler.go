package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/linkerlin/chatauto.go/internal/chat"
	"github.com/linkerlin/chatauto.go/internal/delay"
	"github.com/linkerlin/chatauto.go/internal/notify"
	"github.com/linkerlin/chatauto.go/internal/store"
	"github.com/linkerlin/chatauto.go/internal/types"
)

// ErrNotFound is returned for an unknown schedule id.
var ErrNotFound = errors.New("schedule not found")

// Batch is the part of the batch sender a schedule firing needs.
type Batch interface {
	SendBatch(ctx context.Context, msgs []types.Message) (chat.Result, error)
	IsSending() bool
}

// runner is the run loop of one started schedule.
type runner struct {
	cancel context.CancelFunc
}

// Scheduler runs each started schedule in its own goroutine: a ticker loop
// for interval schedules and a re-armed timer for time-based ones.
type Scheduler struct {
	store  *store.Store
	batch  Batch
	notify notify.Notifier
	now    func() time.Time

	mu      sync.Mutex
	base    context.Context
	stop    context.CancelFunc
	running map[string]*runner
	loops   sync.WaitGroup

	// OnChange, when set, is called after a schedule starts, stops or fires.
	OnChange func()
}

// New creates a new Scheduler.
func New(st *store.Store, batch Batch, n notify.Notifier) *Scheduler {
	base, stop := context.WithCancel(context.Background())
	return &Scheduler{
		store:   st,
		batch:   batch,
		notify:  n,
		now:     time.Now,
		base:    base,
		stop:    stop,
		running: make(map[string]*runner),
	}
}

// Start resumes every enabled schedule. Loops end when ctx does.
func (s *Scheduler) Start(ctx context.Context) int {
	s.mu.Lock()
	s.stop()
	s.base, s.stop = context.WithCancel(ctx)
	s.mu.Unlock()
	return s.StartAllEnabled()
}

// Stop halts every loop without touching persisted state, so the same
// schedules resume on the next Start. It returns once every loop, including
// a firing in progress, has exited.
func (s *Scheduler) Stop() {
	s.StopAll()
	s.mu.Lock()
	s.stop()
	s.mu.Unlock()
	s.loops.Wait()
}

// StartByID starts (or restarts) a schedule, marking it enabled and recording
// its next run. An invalid trigger leaves everything unchanged.
func (s *Scheduler) StartByID(id string) error {
	sc, found, err := s.store.GetSchedule(id)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	if err := sc.Validate(); err != nil {
		s.notify.Warn(fmt.Sprintf("Cannot start %q: %v", sc.Name, err))
		return err
	}

	s.cancelRunner(id)

	next := sc.Trigger.Next(s.now()).UnixMilli()
	if _, err := s.store.SetScheduleEnabled(id, true, &next); err != nil {
		return err
	}

	s.mu.Lock()
	ctx, cancel := context.WithCancel(s.base)
	r := &runner{cancel: cancel}
	s.running[id] = r
	s.mu.Unlock()

	s.loops.Add(1)
	go func() {
		defer s.loops.Done()
		switch tr := sc.Trigger.(type) {
		case types.Interval:
			s.intervalLoop(ctx, r, id, delay.Duration(tr.Ms))
		case types.TimeOfDay:
			s.timeLoop(ctx, r, id, tr.Times)
		}
	}()

	slog.Info("Schedule started", "id", id, "name", sc.Name, "trigger", sc.Trigger.Describe())
	s.notify.Info(fmt.Sprintf("⏰ Started %q: %s", sc.Name, sc.Trigger.Describe()))
	s.changed()
	return nil
}

// StopByID stops a schedule and persists it as disabled with no next run.
func (s *Scheduler) StopByID(id string) error {
	s.cancelRunner(id)
	found, err := s.store.SetScheduleEnabled(id, false, nil)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	slog.Info("Schedule stopped", "id", id)
	s.changed()
	return nil
}

// ToggleByID stops a running schedule or starts a stopped one and returns
// the resulting running flag.
func (s *Scheduler) ToggleByID(id string) (bool, error) {
	if s.IsRunning(id) {
		return false, s.StopByID(id)
	}
	if err := s.StartByID(id); err != nil {
		return false, err
	}
	return true, nil
}

// StartAllEnabled starts every enabled schedule and returns how many started.
func (s *Scheduler) StartAllEnabled() int {
	list, err := s.store.ListSchedules()
	if err != nil {
		slog.Error("Failed to list schedules", "err", err)
		return 0
	}
	started := 0
	for _, sc := range list {
		if !sc.Enabled {
			continue
		}
		if err := s.StartByID(sc.ID); err != nil {
			slog.Warn("Failed to resume schedule", "id", sc.ID, "err", err)
			continue
		}
		started++
	}
	return started
}

// StopAll stops every running loop. Persisted state is left alone.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.running))
	for id, r := range s.running {
		r.cancel()
		ids = append(ids, id)
	}
	clear(s.running)
	s.mu.Unlock()

	if len(ids) > 0 {
		slog.Info("All schedules stopped", "count", len(ids))
		s.changed()
	}
}

// IsRunning reports whether the schedule has a live loop.
func (s *Scheduler) IsRunning(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[id]
	return ok
}

// RunningIDs returns the ids of running schedules, sorted.
func (s *Scheduler) RunningIDs() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.running))
	for id := range s.running {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// RunningCount returns the number of running schedules.
func (s *Scheduler) RunningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// MissedRuns returns the enabled schedules whose recorded next run is
// already in the past at now.
func (s *Scheduler) MissedRuns(now time.Time) ([]types.Schedule, error) {
	list, err := s.store.ListSchedules()
	if err != nil {
		return nil, err
	}
	var missed []types.Schedule
	for _, sc := range list {
		if sc.Enabled && sc.NextRunTimestamp != nil && *sc.NextRunTimestamp <= now.UnixMilli() {
			missed = append(missed, sc)
		}
	}
	return missed, nil
}

// RunNow fires a running schedule once, subject to the usual guards.
func (s *Scheduler) RunNow(id string) {
	s.mu.Lock()
	r, ok := s.running[id]
	ctx := s.base
	s.mu.Unlock()
	if !ok {
		return
	}
	s.execute(ctx, r, id)
}

func (s *Scheduler) intervalLoop(ctx context.Context, r *runner, id string, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.execute(ctx, r, id)
		}
	}
}

// timeLoop arms a one-shot timer for the next occurrence, fires, and
// re-arms only while the schedule is still enabled and running.
func (s *Scheduler) timeLoop(ctx context.Context, r *runner, id string, times []string) {
	for {
		next := types.NextOccurrence(times, s.now())
		if s.current(id, r) {
			ms := next.UnixMilli()
			if _, err := s.store.SetNextRun(id, &ms); err != nil {
				slog.Warn("Failed to record next run", "id", id, "err", err)
			}
		}

		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		s.execute(ctx, r, id)

		sc, found, err := s.store.GetSchedule(id)
		if err != nil || !found || !sc.Enabled || !s.current(id, r) {
			return
		}
		tod, ok := sc.Trigger.(types.TimeOfDay)
		if !ok || tod.Validate() != nil {
			return
		}
		times = tod.Times
	}
}

// execute is the guarded firing shared by both loop kinds.
func (s *Scheduler) execute(ctx context.Context, r *runner, id string) {
	sc, found, err := s.store.GetSchedule(id)
	if err != nil {
		slog.Error("Failed to read schedule", "id", id, "err", err)
		return
	}
	if !found || !sc.Enabled || !s.current(id, r) {
		return
	}

	defer s.changed()
	defer s.recordNext(ctx, r, sc)

	if s.batch.IsSending() {
		slog.Info("Skipping scheduled send, a batch is already in flight", "id", id)
		return
	}

	msgs, err := s.store.EnabledMessages()
	if err != nil {
		slog.Error("Failed to load messages", "id", id, "err", err)
		return
	}

	slog.Info("Executing scheduled send", "id", id, "name", sc.Name)
	res, err := s.batch.SendBatch(ctx, msgs)
	if errors.Is(err, chat.ErrAlreadySending) {
		slog.Info("Skipping scheduled send, a batch is already in flight", "id", id)
		return
	}
	if err != nil {
		slog.Error("Scheduled send failed", "id", id, "err", err)
		return
	}
	slog.Info("Scheduled send finished", "id", id, "sent", res.Sent, "total", res.Total, "cancelled", res.Cancelled)

	if _, err := s.store.UpdateLastRun(id); err != nil {
		slog.Warn("Failed to record last run", "id", id, "err", err)
	}
}

func (s *Scheduler) recordNext(ctx context.Context, r *runner, sc types.Schedule) {
	if ctx.Err() != nil || !s.current(sc.ID, r) {
		return
	}
	next := sc.Trigger.Next(s.now()).UnixMilli()
	if _, err := s.store.SetNextRun(sc.ID, &next); err != nil {
		slog.Warn("Failed to record next run", "id", sc.ID, "err", err)
	}
}

// current reports whether r is still the live runner for id.
func (s *Scheduler) current(id string, r *runner) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[id] == r
}

func (s *Scheduler) cancelRunner(id string) {
	s.mu.Lock()
	r, ok := s.running[id]
	delete(s.running, id)
	s.mu.Unlock()
	if ok {
		r.cancel()
	}
}

func (s *Scheduler) changed() {
	if s.OnChange != nil {
		s.OnChange()
	}
}
