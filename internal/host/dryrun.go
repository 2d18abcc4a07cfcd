package host

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Call records one executed command.
type Call struct {
	Command string
	Args    []any
}

// DryRun is a Commander that accepts and logs every command without doing
// anything. It backs `chatauto bridge` and is handy when no IDE is attached.
type DryRun struct {
	mu    sync.Mutex
	known map[string]bool
	calls []Call
}

// NewDryRun returns a dry-run host advertising the given command names.
func NewDryRun(known ...string) *DryRun {
	d := &DryRun{known: make(map[string]bool, len(known))}
	for _, k := range known {
		d.known[k] = true
	}
	return d
}

// Execute implements Commander.
func (d *DryRun) Execute(ctx context.Context, command string, args ...any) error {
	d.mu.Lock()
	d.calls = append(d.calls, Call{Command: command, Args: args})
	d.known[command] = true
	d.mu.Unlock()

	slog.Info("Dry-run command", "command", command, "args", args)
	return nil
}

// Commands implements Commander.
func (d *DryRun) Commands(ctx context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.known))
	for k := range d.known {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// Calls returns the commands executed so far.
func (d *DryRun) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}
