package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/linkerlin/chatauto.go/internal/autocontinue"
	"github.com/linkerlin/chatauto.go/internal/chat"
	"github.com/linkerlin/chatauto.go/internal/config"
	"github.com/linkerlin/chatauto.go/internal/db"
	"github.com/linkerlin/chatauto.go/internal/host"
	"github.com/linkerlin/chatauto.go/internal/notify"
	"github.com/linkerlin/chatauto.go/internal/panel"
	"github.com/linkerlin/chatauto.go/internal/scheduler"
	"github.com/linkerlin/chatauto.go/internal/store"
	"github.com/linkerlin/chatauto.go/internal/types"
	"github.com/linkerlin/chatauto.go/internal/workspace"
)

// ErrNoSurface is returned when the panel is opened in a mode without one.
var ErrNoSurface = errors.New("no panel surface in this mode")

// Options tweak how the orchestrator is assembled.
type Options struct {
	// Surface creates the panel. Nil means headless.
	Surface panel.Factory
	// Clipboard defaults to the system clipboard.
	Clipboard autocontinue.Clipboard
}

// Orchestrator ties together the database, the senders, the scheduler and
// the panel for one workspace.
type Orchestrator struct {
	cfg *config.Config
	ws  workspace.Info

	db        *db.DB
	store     *store.Store
	gateway   *host.Gateway
	notify    *notify.Switch
	batch     *chat.BatchSender
	scheduler *scheduler.Scheduler
	auto      *autocontinue.Service
	panel     *panel.Controller

	mu         sync.Mutex
	lastStatus string
	wg         sync.WaitGroup
}

// New opens the workspace state and wires every component to cmd, the host
// bridge.
func New(cfg *config.Config, cmd host.Commander, opts Options) (*Orchestrator, error) {
	ws, err := workspace.Resolve(cfg.App.Workspace)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}

	if err := os.MkdirAll(cfg.App.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	database, err := db.Open(cfg.DBPath())
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:     cfg,
		ws:      ws,
		db:      database,
		store:   store.New(database.State(ws.Path)),
		gateway: host.NewGateway(cmd, cfg.Host.CommandTimeout),
		notify:  notify.NewSwitch(),
	}

	if err := o.store.Migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrate schedules: %w", err)
	}

	o.batch = chat.NewBatchSender(chat.NewSender(o.gateway, o.notify), o.notify)
	o.scheduler = scheduler.New(o.store, o.batch, o.notify)

	clip := opts.Clipboard
	if clip == nil {
		clip = autocontinue.SystemClipboard{}
	}
	o.auto = autocontinue.New(o.gateway, clip, o.notify, cfg.AutoContinue.PollInterval)

	factory := opts.Surface
	if factory == nil {
		factory = func(*panel.Controller) (panel.Surface, error) { return nil, ErrNoSurface }
	}
	o.panel = panel.New(panel.Deps{
		Workspace:    ws,
		Store:        o.store,
		Batch:        o.batch,
		Scheduler:    o.scheduler,
		AutoContinue: o.auto,
		Notify:       o.notify,
	}, factory)

	o.batch.OnChange = o.changed
	o.scheduler.OnChange = o.changed
	o.auto.OnChange = o.changed

	slog.Info("Workspace opened", "workspace", ws.Path, "db", cfg.DBPath())
	return o, nil
}

// Start resumes every enabled schedule. Schedules whose next run passed while
// nothing was running are either caught up with one batch or only logged,
// depending on schedule.run_missed_on_start.
func (o *Orchestrator) Start(ctx context.Context) (int, error) {
	missed, err := o.scheduler.MissedRuns(time.Now())
	if err != nil {
		return 0, fmt.Errorf("check missed runs: %w", err)
	}

	started := o.scheduler.Start(ctx)
	slog.Info("Schedules resumed", "count", started)

	if len(missed) == 0 {
		return started, nil
	}
	for _, sc := range missed {
		slog.Info("Missed scheduled run", "id", sc.ID, "name", sc.Name, "due", types.FromMs(*sc.NextRunTimestamp))
	}
	if !o.cfg.Schedule.RunMissedOnStart {
		return started, nil
	}

	// One batch already sends every enabled message, so a single catch-up
	// run covers all missed schedules.
	id := missed[0].ID
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.scheduler.RunNow(id)
	}()
	return started, nil
}

// Close stops every timer, cancels the batch in flight and closes the DB.
// Enabled schedules stay enabled for the next Start.
func (o *Orchestrator) Close() error {
	o.scheduler.Stop()
	o.batch.Cancel()
	o.wg.Wait()
	return o.db.Close()
}

// SendAll sends every enabled message once.
func (o *Orchestrator) SendAll(ctx context.Context) (chat.Result, error) {
	msgs, err := o.store.EnabledMessages()
	if err != nil {
		return chat.Result{}, err
	}
	return o.batch.SendBatch(ctx, msgs)
}

// StopAll cancels sending and stops every schedule.
func (o *Orchestrator) StopAll() {
	o.panel.StopAll()
}

// OpenPanel shows the panel surface.
func (o *Orchestrator) OpenPanel(ctx context.Context) error {
	return o.panel.Open(ctx)
}

func (o *Orchestrator) Workspace() workspace.Info { return o.ws }
func (o *Orchestrator) Store() *store.Store { return o.store }
func (o *Orchestrator) Gateway() *host.Gateway { return o.gateway }
func (o *Orchestrator) Scheduler() *scheduler.Scheduler { return o.scheduler }
func (o *Orchestrator) Batch() *chat.BatchSender { return o.batch }
func (o *Orchestrator) AutoContinue() *autocontinue.Service { return o.auto }
func (o *Orchestrator) Panel() *panel.Controller { return o.panel }

// changed refreshes the panel and logs the status line when it moves.
func (o *Orchestrator) changed() {
	o.panel.Refresh()

	st := o.panel.Status()
	o.mu.Lock()
	moved := st.Text != o.lastStatus
	o.lastStatus = st.Text
	o.mu.Unlock()
	if moved {
		slog.Debug("Status", "text", st.Text, "busy", st.Busy)
	}
}
