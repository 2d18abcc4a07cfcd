// Package panel keeps the single control surface in sync with the stored
// configuration and routes its actions to the store, the batch sender and
// the scheduler.
package panel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/linkerlin/chatauto.go/internal/chat"
	"github.com/linkerlin/chatauto.go/internal/notify"
	"github.com/linkerlin/chatauto.go/internal/scheduler"
	"github.com/linkerlin/chatauto.go/internal/status"
	"github.com/linkerlin/chatauto.go/internal/store"
	"github.com/linkerlin/chatauto.go/internal/types"
	"github.com/linkerlin/chatauto.go/internal/workspace"
)

// ErrUnknownCommand is returned by Handle for a command it does not know.
var ErrUnknownCommand = errors.New("unknown panel command")

// Surface is a live UI the controller pushes snapshots to.
type Surface interface {
	notify.UI
	Post(Snapshot)
	Reveal()
}

// Factory creates the surface on first Open.
type Factory func(c *Controller) (Surface, error)

// AutoContinue is the auto-continue toggle shown on the panel.
type AutoContinue interface {
	Toggle(ctx context.Context) (bool, error)
	Active() bool
}

// Snapshot is everything the surface renders.
type Snapshot struct {
	Workspace    workspace.Info
	Messages     []types.Message
	Schedules    []types.Schedule
	Running      map[string]bool
	Send         chat.State
	Status       status.Indicator
	AutoContinue bool
}

// Deps are the components the controller drives.
type Deps struct {
	Workspace    workspace.Info
	Store        *store.Store
	Batch        *chat.BatchSender
	Scheduler    *scheduler.Scheduler
	AutoContinue AutoContinue
	Notify       *notify.Switch
}

// Controller owns at most one surface.
type Controller struct {
	d       Deps
	factory Factory

	mu      sync.Mutex
	surface Surface
}

// New returns a controller with no surface open.
func New(d Deps, factory Factory) *Controller {
	return &Controller{d: d, factory: factory}
}

// Open creates the surface, or reveals the existing one, then refreshes it.
func (c *Controller) Open(ctx context.Context) error {
	c.mu.Lock()
	s := c.surface
	c.mu.Unlock()

	if s != nil {
		s.Reveal()
		c.Refresh()
		return nil
	}

	s, err := c.factory(c)
	if err != nil {
		return fmt.Errorf("open panel: %w", err)
	}

	c.mu.Lock()
	c.surface = s
	c.mu.Unlock()
	c.d.Notify.Attach(s)

	c.Refresh()
	return nil
}

// Disposed is called by the surface when it goes away.
func (c *Controller) Disposed() {
	c.mu.Lock()
	c.surface = nil
	c.mu.Unlock()
	c.d.Notify.Attach(nil)
}

// Refresh pushes a fresh snapshot to the surface, if any.
func (c *Controller) Refresh() {
	c.mu.Lock()
	s := c.surface
	c.mu.Unlock()
	if s == nil {
		return
	}

	snap, err := c.Snapshot()
	if err != nil {
		slog.Error("Failed to build panel snapshot", "err", err)
		return
	}
	s.Post(snap)
}

// Snapshot gathers the current state.
func (c *Controller) Snapshot() (Snapshot, error) {
	msgs, err := c.d.Store.ListMessages()
	if err != nil {
		return Snapshot{}, err
	}
	schedules, err := c.d.Store.ListSchedules()
	if err != nil {
		return Snapshot{}, err
	}

	running := make(map[string]bool)
	for _, id := range c.d.Scheduler.RunningIDs() {
		running[id] = true
	}

	snap := Snapshot{
		Workspace: c.d.Workspace,
		Messages:  msgs,
		Schedules: schedules,
		Running:   running,
		Send:      c.d.Batch.State(),
	}
	if c.d.AutoContinue != nil {
		snap.AutoContinue = c.d.AutoContinue.Active()
	}
	snap.Status = status.Render(status.Input{
		Sending:          snap.Send.Sending,
		Index:            snap.Send.Index,
		Total:            snap.Send.Total,
		RunningSchedules: len(running),
		EnabledMessages:  countEnabled(msgs),
	})
	return snap, nil
}

// Status renders the status indicator from the current state.
func (c *Controller) Status() status.Indicator {
	snap, err := c.Snapshot()
	if err != nil {
		slog.Error("Failed to compute status", "err", err)
		return status.Render(status.Input{})
	}
	return snap.Status
}

func countEnabled(msgs []types.Message) int {
	n := 0
	for _, m := range msgs {
		if m.Enabled {
			n++
		}
	}
	return n
}
