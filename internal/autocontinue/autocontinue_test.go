package autocontinue

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/linkerlin/chatauto.go/internal/host"
	"github.com/linkerlin/chatauto.go/internal/notify"
)

type memClipboard struct {
	text string
	err  error
}

func (m *memClipboard) WriteAll(text string) error {
	if m.err != nil {
		return m.err
	}
	m.text = text
	return nil
}

func TestScript(t *testing.T) {
	s, err := Script(1500 * time.Millisecond)
	if err != nil {
		t.Fatalf("Script failed: %v", err)
	}
	for _, want := range []string{"const pollMs = 1500;", "window.stopAutoContinue", "const openSidebar = true;"} {
		if !strings.Contains(s, want) {
			t.Errorf("script missing %q", want)
		}
	}

	def, _ := Script(0)
	if !strings.Contains(def, "const pollMs = 3000;") {
		t.Error("zero interval should fall back to the default")
	}
}

func TestToggle(t *testing.T) {
	dry := host.NewDryRun()
	clip := &memClipboard{}
	svc := New(host.NewGateway(dry, time.Second), clip, notify.Log{}, time.Second)

	changes := 0
	svc.OnChange = func() { changes++ }

	ready, err := svc.Toggle(context.Background())
	if err != nil || !ready {
		t.Fatalf("Toggle = %v, %v", ready, err)
	}
	if !strings.Contains(clip.text, "const pollMs = 1000;") {
		t.Error("script not copied to clipboard")
	}
	st := svc.State()
	if !st.Ready || !st.DevToolsOpened {
		t.Errorf("State = %+v", st)
	}
	if calls := dry.Calls(); len(calls) != 1 || calls[0].Command != DevToolsCommand {
		t.Errorf("host calls = %+v", calls)
	}

	ready, _ = svc.Toggle(context.Background())
	if ready || svc.Active() {
		t.Error("second toggle should stop")
	}
	if changes != 2 {
		t.Errorf("OnChange fired %d times, want 2", changes)
	}
}

func TestStart_ClipboardError(t *testing.T) {
	clip := &memClipboard{err: errors.New("no clipboard")}
	svc := New(host.NewGateway(host.NewDryRun(), time.Second), clip, notify.Log{}, 0)

	if err := svc.Start(context.Background()); err == nil {
		t.Error("expected clipboard error")
	}
	if svc.Active() {
		t.Error("failed start left the service active")
	}
}

func TestTryContinue(t *testing.T) {
	dry := host.NewDryRun()
	svc := New(host.NewGateway(dry, time.Second), &memClipboard{}, notify.Log{}, 0)

	name, ok := svc.TryContinue(context.Background())
	if !ok || name != ContinueCommands[0].Command {
		t.Errorf("TryContinue = %q, %v", name, ok)
	}
	name, ok = svc.ToggleSessionsSidebar(context.Background())
	if !ok || name != SidebarCommands[0].Command {
		t.Errorf("ToggleSessionsSidebar = %q, %v", name, ok)
	}
}
