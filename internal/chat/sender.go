// Package chat drives the host's chat input: it sends single messages and
// ordered, cancellable batches.
package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/linkerlin/chatauto.go/internal/host"
	"github.com/linkerlin/chatauto.go/internal/notify"
)

// Waits between the steps of a single send.
const (
	NewChatWait = 300 * time.Millisecond
	OpenWait    = 200 * time.Millisecond
	TypeWait    = 200 * time.Millisecond
)

// Sender posts one message into the host chat.
type Sender struct {
	gw     *host.Gateway
	notify notify.Notifier

	NewChatWait time.Duration
	OpenWait    time.Duration
	TypeWait    time.Duration
}

// NewSender returns a Sender using the default step waits.
func NewSender(gw *host.Gateway, n notify.Notifier) *Sender {
	return &Sender{
		gw:          gw,
		notify:      n,
		NewChatWait: NewChatWait,
		OpenWait:    OpenWait,
		TypeWait:    TypeWait,
	}
}

// SendOne starts a fresh chat, types text and submits it. It reports whether
// the submit command succeeded and never panics.
func (s *Sender) SendOne(ctx context.Context, text string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Send panicked", "panic", r)
			ok = false
		}
	}()

	// A host without a "new chat" command can still accept the message.
	s.gw.TryFirst(ctx, NewChatCommands)
	if !sleep(ctx, s.NewChatWait) {
		return false
	}

	if _, opened := s.gw.TryFirst(ctx, OpenChatCommands); !opened {
		s.notify.Warn("Could not open chat.")
		return false
	}
	if !sleep(ctx, s.OpenWait) {
		return false
	}

	inv := typeInvocation(text)
	s.gw.TryCommand(ctx, inv.Command, inv.Args...)
	if !sleep(ctx, s.TypeWait) {
		return false
	}

	name, submitted := s.gw.TryFirst(ctx, SubmitCommands)
	if submitted {
		slog.Debug("Message submitted", "command", name)
	}
	return submitted
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
