package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/linkerlin/chatauto.go/internal/chat"
	"github.com/linkerlin/chatauto.go/internal/db"
	"github.com/linkerlin/chatauto.go/internal/notify"
	"github.com/linkerlin/chatauto.go/internal/store"
	"github.com/linkerlin/chatauto.go/internal/types"
)

type fakeBatch struct {
	sending atomic.Bool
	calls   atomic.Int32
	err     error
}

func (f *fakeBatch) SendBatch(ctx context.Context, msgs []types.Message) (chat.Result, error) {
	if f.err != nil {
		return chat.Result{}, f.err
	}
	f.calls.Add(1)
	return chat.Result{Sent: len(msgs), Total: len(msgs)}, nil
}

func (f *fakeBatch) IsSending() bool { return f.sending.Load() }

func tempState(t *testing.T) *db.State {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open temp db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d.State("/ws")
}

func newTestScheduler(t *testing.T, batch Batch) (*Scheduler, *store.Store) {
	t.Helper()
	st := store.New(tempState(t))
	if _, err := st.AddMessage("hello", 0); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}
	s := New(st, batch, notify.Log{})
	t.Cleanup(s.Stop)
	return s, st
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestIntervalSchedule_Fires(t *testing.T) {
	batch := &fakeBatch{}
	s, st := newTestScheduler(t, batch)

	sc, _ := st.AddIntervalSchedule("fast", 30)
	if err := s.StartByID(sc.ID); err != nil {
		t.Fatalf("StartByID failed: %v", err)
	}
	if !s.IsRunning(sc.ID) {
		t.Fatal("schedule not running after start")
	}

	waitFor(t, func() bool { return batch.calls.Load() >= 2 })

	got, _, _ := st.GetSchedule(sc.ID)
	if !got.Enabled {
		t.Error("started schedule should be persisted as enabled")
	}
	if got.LastRunTimestamp == nil || got.NextRunTimestamp == nil {
		t.Errorf("timestamps not recorded: %+v", got)
	}
}

func TestStopByID_PersistsAndHalts(t *testing.T) {
	batch := &fakeBatch{}
	s, st := newTestScheduler(t, batch)

	sc, _ := st.AddIntervalSchedule("fast", 30)
	s.StartByID(sc.ID)
	waitFor(t, func() bool { return batch.calls.Load() >= 1 })

	if err := s.StopByID(sc.ID); err != nil {
		t.Fatalf("StopByID failed: %v", err)
	}
	fired := batch.calls.Load()
	time.Sleep(150 * time.Millisecond)

	if n := batch.calls.Load(); n != fired {
		t.Errorf("schedule fired %d more times after stop", n-fired)
	}
	if s.IsRunning(sc.ID) {
		t.Error("schedule still tracked as running")
	}
	got, _, _ := st.GetSchedule(sc.ID)
	if got.Enabled || got.NextRunTimestamp != nil {
		t.Errorf("stopped schedule persisted as %+v", got)
	}
}

func TestExecute_SkipsWhileSending(t *testing.T) {
	batch := &fakeBatch{}
	batch.sending.Store(true)
	s, st := newTestScheduler(t, batch)

	sc, _ := st.AddIntervalSchedule("fast", 20)
	s.StartByID(sc.ID)
	time.Sleep(120 * time.Millisecond)

	if n := batch.calls.Load(); n != 0 {
		t.Errorf("batch started %d times while another was in flight", n)
	}
	got, _, _ := st.GetSchedule(sc.ID)
	if got.LastRunTimestamp != nil {
		t.Error("a skipped firing must not update the last run")
	}
}

func TestExecute_SkipsOnAlreadySending(t *testing.T) {
	batch := &fakeBatch{err: chat.ErrAlreadySending}
	s, st := newTestScheduler(t, batch)

	sc, _ := st.AddIntervalSchedule("fast", 20)
	s.StartByID(sc.ID)
	time.Sleep(120 * time.Millisecond)

	got, _, _ := st.GetSchedule(sc.ID)
	if got.LastRunTimestamp != nil {
		t.Error("a collided firing must not update the last run")
	}
}

func TestStartByID_Invalid(t *testing.T) {
	state := tempState(t)
	zero := int64(0)
	state.Update(store.KeySchedules, []types.ScheduleRecord{
		{ID: "bad", Name: "bad", Type: types.KindInterval, IntervalMs: &zero},
	})
	st := store.New(state)
	s := New(st, &fakeBatch{}, notify.Log{})
	defer s.Stop()

	if err := s.StartByID("bad"); !errors.Is(err, types.ErrInvalidInterval) {
		t.Errorf("err = %v, want ErrInvalidInterval", err)
	}
	if s.IsRunning("bad") {
		t.Error("invalid schedule is running")
	}
	got, _, _ := st.GetSchedule("bad")
	if got.Enabled {
		t.Error("invalid start changed the persisted state")
	}

	if err := s.StartByID("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing id: err = %v", err)
	}
}

func TestStartAllEnabledAndToggle(t *testing.T) {
	s, st := newTestScheduler(t, &fakeBatch{})

	a, _ := st.AddIntervalSchedule("a", 60000)
	b, _ := st.AddTimeBasedSchedule("b", []string{"08:00"})
	st.ToggleSchedule(a.ID)

	if n := s.StartAllEnabled(); n != 1 {
		t.Errorf("StartAllEnabled started %d, want 1", n)
	}
	if ids := s.RunningIDs(); len(ids) != 1 || ids[0] != a.ID {
		t.Errorf("RunningIDs = %v", ids)
	}

	running, err := s.ToggleByID(b.ID)
	if err != nil || !running {
		t.Fatalf("ToggleByID = %v, %v", running, err)
	}
	if s.RunningCount() != 2 {
		t.Errorf("RunningCount = %d, want 2", s.RunningCount())
	}

	running, _ = s.ToggleByID(a.ID)
	if running || s.IsRunning(a.ID) {
		t.Error("toggle did not stop a running schedule")
	}

	s.StopAll()
	if s.RunningCount() != 0 {
		t.Error("StopAll left schedules running")
	}
	got, _, _ := st.GetSchedule(b.ID)
	if !got.Enabled {
		t.Error("StopAll must leave persisted state alone")
	}
}

func TestTimeBasedSchedule_Fires(t *testing.T) {
	batch := &fakeBatch{}
	s, st := newTestScheduler(t, batch)

	// The clock sits just before 10:00 so the next occurrence is ~50ms away.
	fake := time.Date(2024, 3, 1, 9, 59, 59, 950_000_000, time.Local)
	s.now = func() time.Time { return fake }

	sc, _ := st.AddTimeBasedSchedule("daily", []string{"10:00"})
	if err := s.StartByID(sc.ID); err != nil {
		t.Fatalf("StartByID failed: %v", err)
	}

	got, _, _ := st.GetSchedule(sc.ID)
	want := time.Date(2024, 3, 1, 10, 0, 0, 0, time.Local).UnixMilli()
	if got.NextRunTimestamp == nil || *got.NextRunTimestamp != want {
		t.Errorf("next run = %v, want %d", got.NextRunTimestamp, want)
	}

	waitFor(t, func() bool { return batch.calls.Load() >= 1 })
}

func TestMissedRuns(t *testing.T) {
	s, st := newTestScheduler(t, &fakeBatch{})

	a, _ := st.AddIntervalSchedule("a", 60000)
	b, _ := st.AddIntervalSchedule("b", 60000)
	past := time.Now().Add(-time.Hour).UnixMilli()
	future := time.Now().Add(time.Hour).UnixMilli()
	st.SetScheduleEnabled(a.ID, true, &past)
	st.SetScheduleEnabled(b.ID, true, &future)

	missed, err := s.MissedRuns(time.Now())
	if err != nil {
		t.Fatalf("MissedRuns failed: %v", err)
	}
	if len(missed) != 1 || missed[0].ID != a.ID {
		t.Errorf("MissedRuns = %+v", missed)
	}
}

func TestRunNow(t *testing.T) {
	batch := &fakeBatch{}
	s, st := newTestScheduler(t, batch)

	sc, _ := st.AddIntervalSchedule("slow", 3600000)
	s.RunNow(sc.ID)
	if batch.calls.Load() != 0 {
		t.Error("RunNow fired a stopped schedule")
	}

	s.StartByID(sc.ID)
	s.RunNow(sc.ID)
	if batch.calls.Load() != 1 {
		t.Errorf("RunNow fired %d times, want 1", batch.calls.Load())
	}
}

type blockingSender struct {
	release chan struct{}
}

func (b blockingSender) SendOne(ctx context.Context, text string) bool {
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return true
}

func TestExecute_ManualBatchInFlight(t *testing.T) {
	release := make(chan struct{})
	batch := chat.NewBatchSender(blockingSender{release: release}, notify.Log{})
	s, st := newTestScheduler(t, batch)

	msgs, _ := st.ListMessages()
	go batch.SendBatch(context.Background(), msgs)
	waitFor(t, batch.IsSending)

	sc, _ := st.AddIntervalSchedule("hourly", 3600000)
	if err := s.StartByID(sc.ID); err != nil {
		t.Fatalf("StartByID failed: %v", err)
	}
	s.RunNow(sc.ID)

	got, _, _ := st.GetSchedule(sc.ID)
	if got.LastRunTimestamp != nil {
		t.Error("scheduled firing ran while a manual batch was in flight")
	}

	close(release)
	waitFor(t, func() bool { return !batch.IsSending() })
}

func TestStartByID_OverflowingInterval(t *testing.T) {
	state := tempState(t)
	// 2562048h in milliseconds, stored enabled as if written by an older build.
	huge := int64(9223372800000)
	state.Update(store.KeySchedules, []types.ScheduleRecord{
		{ID: "huge", Name: "huge", Type: types.KindInterval, IntervalMs: &huge, Enabled: true},
	})
	st := store.New(state)
	s := New(st, &fakeBatch{}, notify.Log{})
	defer s.Stop()

	if err := s.StartByID("huge"); !errors.Is(err, types.ErrInvalidInterval) {
		t.Errorf("err = %v, want ErrInvalidInterval", err)
	}
	if n := s.Start(context.Background()); n != 0 {
		t.Errorf("Start resumed %d schedules, want 0", n)
	}
	if s.IsRunning("huge") {
		t.Error("overflowing schedule is running")
	}
}

// slowBatch blocks until its context is cancelled and then takes a little
// longer to unwind, like a sender finishing its current host call.
type slowBatch struct {
	started  atomic.Bool
	finished atomic.Bool
}

func (b *slowBatch) SendBatch(ctx context.Context, msgs []types.Message) (chat.Result, error) {
	b.started.Store(true)
	<-ctx.Done()
	time.Sleep(50 * time.Millisecond)
	b.finished.Store(true)
	return chat.Result{Total: len(msgs), Cancelled: true}, nil
}

func (b *slowBatch) IsSending() bool { return false }

func TestStop_WaitsForFiringInProgress(t *testing.T) {
	batch := &slowBatch{}
	s, st := newTestScheduler(t, batch)

	sc, _ := st.AddIntervalSchedule("fast", 20)
	if err := s.StartByID(sc.ID); err != nil {
		t.Fatalf("StartByID failed: %v", err)
	}
	waitFor(t, batch.started.Load)

	s.Stop()
	if !batch.finished.Load() {
		t.Error("Stop returned while a firing was still running")
	}
	if s.IsRunning(sc.ID) {
		t.Error("schedule still tracked as running")
	}
}
