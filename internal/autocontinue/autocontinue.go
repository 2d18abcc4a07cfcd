// Package autocontinue hands the user a browser-console script that keeps
// agent sessions moving by clicking their Continue/Allow buttons. The host
// exposes no command for those buttons, so the script runs inside the
// host's developer tools instead.
package autocontinue

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/atotto/clipboard"

	"github.com/linkerlin/chatauto.go/internal/host"
	"github.com/linkerlin/chatauto.go/internal/notify"
)

// DefaultPollInterval is how often the script looks for buttons.
const DefaultPollInterval = 3 * time.Second

// DevToolsCommand toggles the host's developer tools.
const DevToolsCommand = "workbench.action.toggleDevTools"

var (
	// ContinueCommands are host commands that may accept a pending agent step.
	ContinueCommands = []host.Invocation{
		{Command: "github.copilot.chat.continue"},
		{Command: "github.copilot.agent.continue"},
		{Command: "workbench.action.chat.continue"},
		{Command: "workbench.action.chat.accept"},
		{Command: "workbench.action.chat.acceptAction"},
		{Command: "chat.action.continue"},
		{Command: "chat.action.accept"},
		{Command: "agent.continue"},
		{Command: "agent.accept"},
	}

	// SidebarCommands may reveal the agent sessions sidebar.
	SidebarCommands = []host.Invocation{
		{Command: "workbench.action.chat.openAgentSessionsSidebar"},
		{Command: "workbench.action.chat.toggleAgentSessions"},
		{Command: "github.copilot.chat.openAgentSessions"},
		{Command: "workbench.view.extension.agent-sessions"},
	}
)

//go:embed script.js.tmpl
var scriptSource string

var scriptTmpl = template.Must(template.New("script").Parse(scriptSource))

// Script renders the console script for the given poll interval.
func Script(poll time.Duration) (string, error) {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	var b strings.Builder
	err := scriptTmpl.Execute(&b, struct {
		PollMs      int64
		OpenSidebar bool
	}{poll.Milliseconds(), true})
	if err != nil {
		return "", fmt.Errorf("render script: %w", err)
	}
	return strings.TrimSpace(b.String()), nil
}

// Clipboard receives the rendered script.
type Clipboard interface {
	WriteAll(text string) error
}

// SystemClipboard writes to the OS clipboard.
type SystemClipboard struct{}

func (SystemClipboard) WriteAll(text string) error {
	return clipboard.WriteAll(text)
}

// State tracks whether the script has been handed over.
type State struct {
	Ready          bool
	DevToolsOpened bool
}

// Service copies the script and opens developer tools on request.
type Service struct {
	gw     *host.Gateway
	clip   Clipboard
	notify notify.Notifier
	poll   time.Duration

	mu    sync.Mutex
	state State

	// OnChange, when set, is called after Start and Stop.
	OnChange func()
}

// New returns a stopped Service.
func New(gw *host.Gateway, clip Clipboard, n notify.Notifier, poll time.Duration) *Service {
	return &Service{gw: gw, clip: clip, notify: n, poll: poll}
}

// Start copies the script to the clipboard and tries to open developer
// tools. The user still has to paste it into the console.
func (s *Service) Start(ctx context.Context) error {
	script, err := Script(s.poll)
	if err != nil {
		return err
	}
	if err := s.clip.WriteAll(script); err != nil {
		s.notify.Warn("Could not copy the auto-continue script to the clipboard.")
		return fmt.Errorf("copy script: %w", err)
	}

	opened := s.gw.TryCommand(ctx, DevToolsCommand)
	if !opened {
		slog.Warn("Could not open developer tools")
	}

	s.mu.Lock()
	s.state = State{Ready: true, DevToolsOpened: opened}
	s.mu.Unlock()
	s.changed()

	s.notify.Info("Auto-continue script copied. In the developer tools Console, paste it and press Enter. " +
		"Run window.stopAutoContinue() to stop it.")
	return nil
}

// Stop forgets the handed-over script and tells the user how to stop it.
func (s *Service) Stop() {
	s.mu.Lock()
	s.state = State{}
	s.mu.Unlock()
	s.changed()

	s.notify.Info("To stop auto-continue, run window.stopAutoContinue() in the developer tools Console or reload the window.")
}

// Toggle starts or stops and returns whether the script is now ready.
func (s *Service) Toggle(ctx context.Context) (bool, error) {
	if s.Active() {
		s.Stop()
		return false, nil
	}
	if err := s.Start(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Active reports whether the script has been handed over.
func (s *Service) Active() bool {
	return s.State().Ready
}

// State returns the current state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// TryContinue runs the first host continue command that exists.
func (s *Service) TryContinue(ctx context.Context) (string, bool) {
	name, ok := s.gw.TryFirst(ctx, ContinueCommands)
	if ok {
		slog.Info("Auto-continue executed", "command", name)
	}
	return name, ok
}

// ToggleSessionsSidebar runs the first host sidebar command that exists.
func (s *Service) ToggleSessionsSidebar(ctx context.Context) (string, bool) {
	return s.gw.TryFirst(ctx, SidebarCommands)
}

func (s *Service) changed() {
	if s.OnChange != nil {
		s.OnChange()
	}
}
