// Package host talks to the IDE host: it dispatches named commands and lists
// the commands the host knows about.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// DefaultTimeout bounds a single host command.
const DefaultTimeout = 5 * time.Second

// ErrNoHost is returned when no host is connected.
var ErrNoHost = errors.New("host not connected")

// Commander is the host's command surface.
type Commander interface {
	Execute(ctx context.Context, command string, args ...any) error
	Commands(ctx context.Context) ([]string, error)
}

// Invocation is one entry of an ordered fallback table.
type Invocation struct {
	Command string
	Args    []any
}

// Gateway turns host command failures into booleans. It never returns an
// error and never panics, so callers can try commands that may not
// exist in the running host.
type Gateway struct {
	cmd     Commander
	timeout time.Duration
}

// NewGateway wraps cmd. A non-positive timeout means DefaultTimeout.
func NewGateway(cmd Commander, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gateway{cmd: cmd, timeout: timeout}
}

// TryCommand runs name and reports whether it succeeded.
func (g *Gateway) TryCommand(ctx context.Context, name string, args ...any) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("Host command panicked", "command", name, "panic", r)
			ok = false
		}
	}()

	if g == nil || g.cmd == nil {
		return false
	}

	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.cmd.Execute(cctx, name, args...); err != nil {
		slog.Debug("Host command failed", "command", name, "err", err)
		return false
	}
	return true
}

// TryFirst runs the invocations in order and stops at the first success,
// returning its command name.
func (g *Gateway) TryFirst(ctx context.Context, table []Invocation) (string, bool) {
	for _, inv := range table {
		if ctx.Err() != nil {
			return "", false
		}
		if g.TryCommand(ctx, inv.Command, inv.Args...) {
			return inv.Command, true
		}
	}
	return "", false
}

// Discover lists host commands whose names contain any of patterns
// (case-insensitive), sorted. With no patterns every command is returned.
func (g *Gateway) Discover(ctx context.Context, patterns ...string) ([]string, error) {
	if g == nil || g.cmd == nil {
		return nil, ErrNoHost
	}

	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	all, err := g.cmd.Commands(cctx)
	if err != nil {
		return nil, fmt.Errorf("list host commands: %w", err)
	}

	var out []string
	for _, name := range all {
		if matchesAny(name, patterns) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func matchesAny(name string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	lower := strings.ToLower(name)
	for _, p := range patterns {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
