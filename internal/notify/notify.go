// Package notify carries user-facing notifications and confirmation prompts.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Notifier shows short messages to the user.
type Notifier interface {
	Info(msg string)
	Warn(msg string)
}

// Prompter asks the user a yes/no question.
type Prompter interface {
	Confirm(ctx context.Context, msg string) bool
}

// UI is a surface that can both notify and prompt.
type UI interface {
	Notifier
	Prompter
}

// Log writes notifications to slog. It has no one to ask, so Confirm always
// declines.
type Log struct{}

func (Log) Info(msg string) { slog.Info(msg) }
func (Log) Warn(msg string) { slog.Warn(msg) }

func (Log) Confirm(ctx context.Context, msg string) bool {
	slog.Warn("Confirmation declined, no interactive surface", "prompt", msg)
	return false
}

// Switch forwards to the current UI, or to Log when none is attached.
type Switch struct {
	mu     sync.RWMutex
	target UI
}

// NewSwitch returns a Switch with no UI attached.
func NewSwitch() *Switch {
	return &Switch{}
}

// Attach routes notifications to ui. Attach(nil) detaches.
func (s *Switch) Attach(ui UI) {
	s.mu.Lock()
	s.target = ui
	s.mu.Unlock()
}

func (s *Switch) current() UI {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.target == nil {
		return Log{}
	}
	return s.target
}

func (s *Switch) Info(msg string) { s.current().Info(msg) }
func (s *Switch) Warn(msg string) { s.current().Warn(msg) }

func (s *Switch) Confirm(ctx context.Context, msg string) bool {
	return s.current().Confirm(ctx, msg)
}
