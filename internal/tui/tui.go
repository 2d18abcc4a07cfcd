package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/linkerlin/chatauto.go/internal/delay"
	"github.com/linkerlin/chatauto.go/internal/panel"
	"github.com/linkerlin/chatauto.go/internal/types"
)

// ---- Styles ----------------------------------------------------------------

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62")).Padding(0, 1)
	paneStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	activeStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Padding(0, 1)
	busyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	disabledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	infoStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	promptStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
)

// ---- Messages --------------------------------------------------------------

// snapshotMsg carries a panel snapshot. Posts are delivered from separate
// goroutines, so seq orders them.
type snapshotMsg struct {
	seq  uint64
	snap panel.Snapshot
}

type noticeMsg struct {
	text string
	warn bool
}

type confirmMsg struct {
	text  string
	reply chan bool
}

// ---- Handler ---------------------------------------------------------------

// Handler receives the actions of the UI. *panel.Controller implements it.
type Handler interface {
	Handle(ctx context.Context, msg panel.Message) error
	Disposed()
}

// ---- Surface ---------------------------------------------------------------

// Surface runs the terminal panel and implements panel.Surface.
type Surface struct {
	handler Handler
	program *tea.Program
	seq     atomic.Uint64
	done    chan struct{}
}

// New builds the surface. Nothing is drawn until Run.
func New(ctx context.Context, h Handler, opts ...tea.ProgramOption) *Surface {
	s := &Surface{handler: h, done: make(chan struct{})}
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	s.program = tea.NewProgram(NewModel(ctx, h), opts...)
	return s
}

// Run blocks until the user quits or ctx is cancelled, then tells the handler
// the surface is gone.
func (s *Surface) Run(ctx context.Context) error {
	defer s.handler.Disposed()
	defer close(s.done)

	_, err := s.program.Run()
	if err != nil && (ctx.Err() != nil || errors.Is(err, tea.ErrProgramKilled)) {
		return nil
	}
	return err
}

// Post implements panel.Surface.
func (s *Surface) Post(snap panel.Snapshot) {
	s.send(snapshotMsg{seq: s.seq.Add(1), snap: snap})
}

// Reveal implements panel.Surface.
func (s *Surface) Reveal() {
	s.send(tea.ClearScreen())
}

// Info implements notify.Notifier.
func (s *Surface) Info(msg string) {
	s.send(noticeMsg{text: msg})
}

// Warn implements notify.Notifier.
func (s *Surface) Warn(msg string) {
	s.send(noticeMsg{text: msg, warn: true})
}

// Confirm asks the user a yes/no question and waits for the answer.
func (s *Surface) Confirm(ctx context.Context, msg string) bool {
	reply := make(chan bool, 1)
	s.send(confirmMsg{text: msg, reply: reply})
	select {
	case ok := <-reply:
		return ok
	case <-ctx.Done():
		return false
	case <-s.done:
		return false
	}
}

// send never blocks the caller: Program.Send waits for the event loop, which
// may not be running yet.
func (s *Surface) send(msg tea.Msg) {
	go func() {
		select {
		case <-s.done:
		default:
			s.program.Send(msg)
		}
	}()
}

// ---- Model -----------------------------------------------------------------

type pane int

const (
	paneMessages pane = iota
	paneSchedules
)

type formKind int

const (
	formAddMessage formKind = iota
	formEditMessage
	formAddInterval
	formAddTimeBased
	formEditSchedule
)

// form collects one value per step.
type form struct {
	kind   formKind
	id     string
	sched  types.Kind
	labels []string
	values []string
	step   int
}

// Model is the bubbletea model for the control panel.
type Model struct {
	ctx     context.Context
	handler Handler

	width, height int

	snap    panel.Snapshot
	seq     uint64
	pane    pane
	cursors [2]int

	form    *form
	text    textarea.Model
	line    textinput.Model
	confirm *confirmMsg

	notice     string
	noticeWarn bool
}

// NewModel initialises the panel model.
func NewModel(ctx context.Context, h Handler) Model {
	ta := textarea.New()
	ta.Placeholder = "Message text… (Enter to continue, Ctrl+J for a new line)"
	ta.CharLimit = 4000
	ta.SetWidth(60)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline.SetKeys("ctrl+j")

	ti := textinput.New()
	ti.CharLimit = 200

	return Model{ctx: ctx, handler: h, text: ta, line: ti}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.text.SetWidth(max(20, msg.Width-4))
		return m, nil

	case snapshotMsg:
		if msg.seq < m.seq {
			return m, nil
		}
		m.seq = msg.seq
		m.snap = msg.snap
		m.clampCursors()
		return m, nil

	case noticeMsg:
		m.notice = msg.text
		m.noticeWarn = msg.warn
		return m, nil

	case confirmMsg:
		if m.confirm != nil {
			m.confirm.reply <- false
		}
		c := msg
		m.confirm = &c
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.answer(false)
			return m, tea.Quit
		}
		switch {
		case m.confirm != nil:
			return m.updateConfirm(msg)
		case m.form != nil:
			return m.updateForm(msg)
		default:
			return m.updateBrowse(msg)
		}
	}

	if m.form != nil {
		return m.forwardToInput(msg)
	}
	return m, nil
}

func (m Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y", "enter":
		m.answer(true)
	case "n", "N", "esc":
		m.answer(false)
	}
	return m, nil
}

func (m *Model) answer(ok bool) {
	if m.confirm == nil {
		return
	}
	m.confirm.reply <- ok
	m.confirm = nil
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "tab":
		m.pane = (m.pane + 1) % 2
		return m, nil
	case "up", "k":
		m.moveCursor(-1)
		return m, nil
	case "down", "j":
		m.moveCursor(1)
		return m, nil
	case "ctrl+r":
		return m, m.do(panel.CmdRefresh, nil)
	case "ctrl+a":
		return m, m.do(panel.CmdToggleAutoContinue, nil)
	case "ctrl+x":
		return m, m.do(panel.CmdStopAll, nil)
	case "s":
		return m, m.do(panel.CmdSendAll, nil)
	case "x":
		return m, m.do(panel.CmdStopSending, nil)
	}

	if m.pane == paneMessages {
		return m.messageKeys(msg)
	}
	return m.scheduleKeys(msg)
}

func (m Model) messageKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	cur, ok := m.currentMessage()

	switch msg.String() {
	case "a":
		return m, m.openForm(&form{
			kind:   formAddMessage,
			labels: []string{"Message", "Delay before sending"},
			values: []string{"", delay.Format(types.DefaultDelayMs)},
		})
	case "C":
		return m, m.do(panel.CmdClearAllMessages, nil)
	}
	if !ok {
		return m, nil
	}

	switch msg.String() {
	case "e", "enter":
		return m, m.openForm(&form{
			kind:   formEditMessage,
			id:     cur.ID,
			labels: []string{"Message", "Delay before sending"},
			values: []string{cur.Text, delay.Format(cur.DelayMs)},
		})
	case " ", "space":
		return m, m.do(panel.CmdToggleMessage, panel.IDPayload{ID: cur.ID})
	case "d":
		return m, m.do(panel.CmdDeleteMessage, panel.IDPayload{ID: cur.ID})
	case "K":
		return m.move(-1)
	case "J":
		return m.move(1)
	}
	return m, nil
}

// move shifts the selected message by one place.
func (m Model) move(by int) (tea.Model, tea.Cmd) {
	i := m.cursors[paneMessages]
	j := i + by
	if j < 0 || j >= len(m.snap.Messages) {
		return m, nil
	}
	ids := make([]string, len(m.snap.Messages))
	for k, msg := range m.snap.Messages {
		ids[k] = msg.ID
	}
	ids[i], ids[j] = ids[j], ids[i]
	m.cursors[paneMessages] = j
	return m, m.do(panel.CmdReorderMessages, panel.ReorderPayload{IDs: ids})
}

func (m Model) scheduleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	cur, ok := m.currentSchedule()

	switch msg.String() {
	case "i":
		return m, m.openForm(&form{
			kind:   formAddInterval,
			labels: []string{"Name (optional)", "Every (e.g. 30m, 1h)"},
			values: []string{"", "30m"},
		})
	case "t":
		return m, m.openForm(&form{
			kind:   formAddTimeBased,
			labels: []string{"Name (optional)", "Times (HH:MM, comma separated)"},
			values: []string{"", "09:00"},
		})
	case "C":
		return m, m.do(panel.CmdClearAllSchedules, nil)
	}
	if !ok {
		return m, nil
	}

	switch msg.String() {
	case "e", "enter":
		f := &form{kind: formEditSchedule, id: cur.ID, sched: cur.Kind(), values: []string{cur.Name, ""}}
		switch tr := cur.Trigger.(type) {
		case types.Interval:
			f.labels = []string{"Name", "Every (e.g. 30m, 1h)"}
			f.values[1] = delay.Format(tr.Ms)
		case types.TimeOfDay:
			f.labels = []string{"Name", "Times (HH:MM, comma separated)"}
			f.values[1] = strings.Join(tr.Times, ", ")
		default:
			return m, nil
		}
		return m, m.openForm(f)
	case " ", "space":
		return m, m.do(panel.CmdToggleSchedule, panel.IDPayload{ID: cur.ID})
	case "S":
		return m, m.do(panel.CmdStartSchedule, panel.IDPayload{ID: cur.ID})
	case "X":
		return m, m.do(panel.CmdStopSchedule, panel.IDPayload{ID: cur.ID})
	case "d":
		return m, m.do(panel.CmdDeleteSchedule, panel.IDPayload{ID: cur.ID})
	}
	return m, nil
}

// ---- Forms -----------------------------------------------------------------

func (m *Model) openForm(f *form) tea.Cmd {
	m.form = f
	return m.loadStep()
}

func (m *Model) usesTextarea() bool {
	return m.form != nil && m.form.step == 0 &&
		(m.form.kind == formAddMessage || m.form.kind == formEditMessage)
}

func (m *Model) loadStep() tea.Cmd {
	value := m.form.values[m.form.step]
	if m.usesTextarea() {
		m.line.Blur()
		m.text.SetValue(value)
		return m.text.Focus()
	}
	m.text.Blur()
	m.line.Prompt = m.form.labels[m.form.step] + ": "
	m.line.SetValue(value)
	m.line.CursorEnd()
	return m.line.Focus()
}

func (m Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.closeForm()
		return m, nil
	case "enter":
		if m.usesTextarea() {
			m.form.values[m.form.step] = m.text.Value()
		} else {
			m.form.values[m.form.step] = m.line.Value()
		}
		if m.form.step < len(m.form.labels)-1 {
			m.form.step++
			return m, m.loadStep()
		}
		cmd, err := m.submit()
		if err != nil {
			m.notice = err.Error()
			m.noticeWarn = true
			return m, nil
		}
		m.closeForm()
		return m, cmd
	}
	return m.forwardToInput(msg)
}

func (m Model) forwardToInput(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	if m.usesTextarea() {
		m.text, cmd = m.text.Update(msg)
	} else {
		m.line, cmd = m.line.Update(msg)
	}
	return m, cmd
}

func (m *Model) closeForm() {
	m.form = nil
	m.text.Blur()
	m.line.Blur()
	m.text.Reset()
	m.line.Reset()
}

// submit turns the finished form into a panel action.
func (m *Model) submit() (tea.Cmd, error) {
	f := m.form
	switch f.kind {
	case formAddMessage:
		ms := delay.Parse(f.values[1])
		return m.do(panel.CmdAddMessage, panel.AddMessagePayload{Text: f.values[0], DelayMs: &ms}), nil

	case formEditMessage:
		text := f.values[0]
		ms := delay.Parse(f.values[1])
		return m.do(panel.CmdUpdateMessage, panel.UpdateMessagePayload{ID: f.id, Text: &text, DelayMs: &ms}), nil

	case formAddInterval:
		return m.do(panel.CmdAddIntervalSchedule, panel.IntervalSchedulePayload{
			Name:       strings.TrimSpace(f.values[0]),
			IntervalMs: delay.Parse(f.values[1]),
		}), nil

	case formAddTimeBased:
		times, err := types.SplitTimes(f.values[1])
		if err != nil {
			return nil, fmt.Errorf("times: %w", err)
		}
		return m.do(panel.CmdAddTimeBasedSchedule, panel.TimeBasedSchedulePayload{
			Name:  strings.TrimSpace(f.values[0]),
			Times: times,
		}), nil

	case formEditSchedule:
		name := strings.TrimSpace(f.values[0])
		changes := panel.ScheduleChanges{Name: &name}
		if f.sched == types.KindInterval {
			ms := delay.Parse(f.values[1])
			changes.IntervalMs = &ms
		} else {
			times, err := types.SplitTimes(f.values[1])
			if err != nil {
				return nil, fmt.Errorf("times: %w", err)
			}
			changes.Times = times
		}
		return m.do(panel.CmdUpdateSchedule, panel.UpdateSchedulePayload{ID: f.id, Updates: changes}), nil
	}
	return nil, fmt.Errorf("unknown form %d", f.kind)
}

// do runs the action off the event loop; Handle may block on a confirmation
// or on a whole batch.
func (m Model) do(command string, payload any) tea.Cmd {
	ctx, h := m.ctx, m.handler
	msg := panel.NewMessage(command, payload)
	return func() tea.Msg {
		if err := h.Handle(ctx, msg); err != nil {
			slog.Debug("Panel action returned an error", "command", command, "err", err)
		}
		return nil
	}
}

// ---- Helpers ---------------------------------------------------------------

func (m *Model) moveCursor(by int) {
	n := m.paneLen(m.pane)
	if n == 0 {
		return
	}
	c := m.cursors[m.pane] + by
	m.cursors[m.pane] = min(max(c, 0), n-1)
}

func (m *Model) clampCursors() {
	for p := paneMessages; p <= paneSchedules; p++ {
		n := m.paneLen(p)
		m.cursors[p] = min(m.cursors[p], max(n-1, 0))
	}
}

func (m *Model) paneLen(p pane) int {
	if p == paneMessages {
		return len(m.snap.Messages)
	}
	return len(m.snap.Schedules)
}

func (m *Model) currentMessage() (types.Message, bool) {
	i := m.cursors[paneMessages]
	if i < 0 || i >= len(m.snap.Messages) {
		return types.Message{}, false
	}
	return m.snap.Messages[i], true
}

func (m *Model) currentSchedule() (types.Schedule, bool) {
	i := m.cursors[paneSchedules]
	if i < 0 || i >= len(m.snap.Schedules) {
		return types.Schedule{}, false
	}
	return m.snap.Schedules[i], true
}

// ---- View ------------------------------------------------------------------

// View implements tea.Model.
func (m Model) View() string {
	width := m.width
	if width == 0 {
		width = 80
	}
	paneW := max(20, width-2)

	title := "Chat Auto"
	if m.snap.Workspace.Name != "" {
		title += "  ›  " + m.snap.Workspace.Name
	}
	status := m.snap.Status.Text
	if m.snap.Status.Busy {
		status = busyStyle.Render(status)
	}
	if m.snap.AutoContinue {
		status += "  " + infoStyle.Render("auto-continue on")
	}
	header := lipgloss.JoinHorizontal(lipgloss.Top, headerStyle.Render(title), statusStyle.Render(status))

	msgs := m.stylePane(paneMessages).Width(paneW).Render(m.renderMessages())
	scheds := m.stylePane(paneSchedules).Width(paneW).Render(m.renderSchedules())

	parts := []string{header, msgs, scheds}

	switch {
	case m.confirm != nil:
		parts = append(parts, promptStyle.Render(m.confirm.text+" (y/n)"))
	case m.form != nil:
		if m.usesTextarea() {
			parts = append(parts, promptStyle.Render(m.form.labels[0]), m.text.View())
		} else {
			parts = append(parts, m.line.View())
		}
	}

	if m.notice != "" {
		style := infoStyle
		if m.noticeWarn {
			style = warnStyle
		}
		parts = append(parts, style.Padding(0, 1).Render(m.notice))
	}
	parts = append(parts, statusStyle.Render(m.help()))

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) stylePane(p pane) lipgloss.Style {
	if m.pane == p {
		return activeStyle
	}
	return paneStyle
}

func (m Model) renderMessages() string {
	var sb strings.Builder
	sb.WriteString(headerStyle.Render(fmt.Sprintf("Messages (%d)", len(m.snap.Messages))))
	sb.WriteString("\n")
	if len(m.snap.Messages) == 0 {
		sb.WriteString(statusStyle.Render("No messages yet. Press a to add one."))
		return sb.String()
	}
	sending := m.snap.Send
	for i, msg := range m.snap.Messages {
		check := "[ ]"
		if msg.Enabled {
			check = "[x]"
		}
		line := fmt.Sprintf("%s %6s  %s", check, delay.Format(msg.DelayMs), msg.Preview(60))
		switch {
		case m.pane == paneMessages && i == m.cursors[paneMessages]:
			line = cursorStyle.Render("› " + line)
		case !msg.Enabled:
			line = disabledStyle.Render("  " + line)
		default:
			line = "  " + line
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	if sending.Sending {
		sb.WriteString(busyStyle.Render("⟳ " + sending.Label))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (m Model) renderSchedules() string {
	var sb strings.Builder
	sb.WriteString(headerStyle.Render(fmt.Sprintf("Schedules (%d)", len(m.snap.Schedules))))
	sb.WriteString("\n")
	if len(m.snap.Schedules) == 0 {
		sb.WriteString(statusStyle.Render("No schedules. Press i or t to add one."))
		return sb.String()
	}
	for i, sc := range m.snap.Schedules {
		state := "○"
		if m.snap.Running[sc.ID] {
			state = "●"
		}
		desc := ""
		if sc.Trigger != nil {
			desc = sc.Trigger.Describe()
		}
		line := fmt.Sprintf("%s %-20s %s", state, sc.Name, desc)
		if sc.NextRunTimestamp != nil && m.snap.Running[sc.ID] {
			line += "  next " + types.FromMs(*sc.NextRunTimestamp).Format("Jan 2 15:04:05")
		}
		if m.pane == paneSchedules && i == m.cursors[paneSchedules] {
			line = cursorStyle.Render("› " + line)
		} else {
			line = "  " + line
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (m Model) help() string {
	if m.form != nil {
		return "Enter: next/save  Esc: cancel"
	}
	common := "Tab: switch  s: send all  x: stop sending  Ctrl+X: stop everything  Ctrl+A: auto-continue  q: quit"
	if m.pane == paneMessages {
		return "a: add  e: edit  space: toggle  d: delete  K/J: move  C: clear  " + common
	}
	return "i: interval  t: times  e: edit  space: toggle  S/X: start/stop  d: delete  C: clear  " + common
}
