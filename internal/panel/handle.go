package panel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/linkerlin/chatauto.go/internal/chat"
	"github.com/linkerlin/chatauto.go/internal/store"
	"github.com/linkerlin/chatauto.go/internal/types"
)

// Panel commands.
const (
	CmdAddMessage           = "addMessage"
	CmdUpdateMessage        = "updateMessage"
	CmdDeleteMessage        = "deleteMessage"
	CmdToggleMessage        = "toggleMessage"
	CmdReorderMessages      = "reorderMessages"
	CmdClearAllMessages     = "clearAllMessages"
	CmdSendAll              = "sendAll"
	CmdStopSending          = "stopSending"
	CmdAddIntervalSchedule  = "addIntervalSchedule"
	CmdAddTimeBasedSchedule = "addTimeBasedSchedule"
	CmdUpdateSchedule       = "updateSchedule"
	CmdDeleteSchedule       = "deleteSchedule"
	CmdToggleSchedule       = "toggleSchedule"
	CmdStartSchedule        = "startScheduleById"
	CmdStopSchedule         = "stopScheduleById"
	CmdClearAllSchedules    = "clearAllSchedules"
	CmdRefresh              = "refresh"
	CmdToggleAutoContinue   = "toggleAutoContinue"
	CmdStopAll              = "stopAll"
)

// Message is one action sent by the surface.
type Message struct {
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage builds a Message, encoding payload as JSON.
func NewMessage(command string, payload any) Message {
	m := Message{Command: command}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			slog.Error("Failed to encode panel payload", "command", command, "err", err)
		}
		m.Payload = data
	}
	return m
}

// Payloads.
type (
	IDPayload struct {
		ID string `json:"id"`
	}

	AddMessagePayload struct {
		Text    string `json:"text"`
		DelayMs *int64 `json:"delayMs,omitempty"`
	}

	UpdateMessagePayload struct {
		ID      string  `json:"id"`
		Text    *string `json:"text,omitempty"`
		DelayMs *int64  `json:"delayMs,omitempty"`
		Enabled *bool   `json:"enabled,omitempty"`
	}

	ReorderPayload struct {
		IDs []string `json:"ids"`
	}

	IntervalSchedulePayload struct {
		Name       string `json:"name"`
		IntervalMs int64  `json:"intervalMs"`
	}

	TimeBasedSchedulePayload struct {
		Name  string   `json:"name"`
		Times []string `json:"times"`
	}

	ScheduleChanges struct {
		Name       *string  `json:"name,omitempty"`
		IntervalMs *int64   `json:"intervalMs,omitempty"`
		Times      []string `json:"times,omitempty"`
		Enabled    *bool    `json:"enabled,omitempty"`
	}

	UpdateSchedulePayload struct {
		ID      string          `json:"id"`
		Updates ScheduleChanges `json:"updates"`
	}
)

// Handle runs one panel action and refreshes the surface afterwards.
// Validation problems are shown to the user as warnings and also returned.
func (c *Controller) Handle(ctx context.Context, msg Message) error {
	defer c.Refresh()

	err := c.dispatch(ctx, msg)
	if err != nil && !errors.Is(err, ErrUnknownCommand) {
		c.d.Notify.Warn(userMessage(err))
	}
	if err != nil {
		slog.Warn("Panel action failed", "command", msg.Command, "err", err)
	}
	return err
}

func (c *Controller) dispatch(ctx context.Context, msg Message) error {
	st := c.d.Store

	switch msg.Command {
	case CmdAddMessage:
		var p AddMessagePayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		delayMs := types.DefaultDelayMs
		if p.DelayMs != nil {
			delayMs = *p.DelayMs
		}
		_, err := st.AddMessage(p.Text, delayMs)
		return err

	case CmdUpdateMessage:
		var p UpdateMessagePayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		_, err := st.UpdateMessage(p.ID, store.MessageUpdate{Text: p.Text, DelayMs: p.DelayMs, Enabled: p.Enabled})
		return err

	case CmdDeleteMessage:
		var p IDPayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		if !c.d.Notify.Confirm(ctx, "Delete this message?") {
			return nil
		}
		_, err := st.DeleteMessage(p.ID)
		return err

	case CmdToggleMessage:
		var p IDPayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		_, err := st.ToggleMessage(p.ID)
		return err

	case CmdReorderMessages:
		var p ReorderPayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		return st.ReorderMessages(p.IDs)

	case CmdClearAllMessages:
		if !c.d.Notify.Confirm(ctx, "Delete all messages?") {
			return nil
		}
		return st.ClearMessages()

	case CmdSendAll:
		return c.SendAll(ctx)

	case CmdStopSending:
		c.d.Batch.Cancel()
		return nil

	case CmdAddIntervalSchedule:
		var p IntervalSchedulePayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		sc, err := st.AddIntervalSchedule(p.Name, p.IntervalMs)
		if err != nil {
			return err
		}
		return c.d.Scheduler.StartByID(sc.ID)

	case CmdAddTimeBasedSchedule:
		var p TimeBasedSchedulePayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		sc, err := st.AddTimeBasedSchedule(p.Name, p.Times)
		if err != nil {
			return err
		}
		return c.d.Scheduler.StartByID(sc.ID)

	case CmdUpdateSchedule:
		var p UpdateSchedulePayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		return c.updateSchedule(p)

	case CmdDeleteSchedule:
		var p IDPayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		if !c.d.Notify.Confirm(ctx, "Delete this schedule?") {
			return nil
		}
		if c.d.Scheduler.IsRunning(p.ID) {
			if err := c.d.Scheduler.StopByID(p.ID); err != nil {
				return err
			}
		}
		_, err := st.DeleteSchedule(p.ID)
		return err

	case CmdToggleSchedule:
		var p IDPayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		_, err := c.d.Scheduler.ToggleByID(p.ID)
		return err

	case CmdStartSchedule:
		var p IDPayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		return c.d.Scheduler.StartByID(p.ID)

	case CmdStopSchedule:
		var p IDPayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		return c.d.Scheduler.StopByID(p.ID)

	case CmdClearAllSchedules:
		if !c.d.Notify.Confirm(ctx, "Delete all schedules?") {
			return nil
		}
		c.d.Scheduler.StopAll()
		return st.ClearSchedules()

	case CmdRefresh:
		return nil

	case CmdToggleAutoContinue:
		if c.d.AutoContinue == nil {
			return nil
		}
		_, err := c.d.AutoContinue.Toggle(ctx)
		return err

	case CmdStopAll:
		c.StopAll()
		return nil

	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, msg.Command)
	}
}

// SendAll sends every enabled message as one batch.
func (c *Controller) SendAll(ctx context.Context) error {
	msgs, err := c.d.Store.EnabledMessages()
	if err != nil {
		return err
	}
	_, err = c.d.Batch.SendBatch(ctx, msgs)
	return err
}

// StopAll cancels the batch in flight and stops every running schedule,
// persisting them as disabled.
func (c *Controller) StopAll() {
	c.d.Batch.Cancel()
	for _, id := range c.d.Scheduler.RunningIDs() {
		if err := c.d.Scheduler.StopByID(id); err != nil {
			slog.Warn("Failed to stop schedule", "id", id, "err", err)
		}
	}
	c.d.Notify.Info("Stopped everything.")
}

// updateSchedule applies the changes and keeps a running schedule's loop in
// line with them.
func (c *Controller) updateSchedule(p UpdateSchedulePayload) error {
	u := store.ScheduleUpdate{
		Name:       p.Updates.Name,
		IntervalMs: p.Updates.IntervalMs,
		Times:      p.Updates.Times,
		Enabled:    p.Updates.Enabled,
	}
	found, err := c.d.Store.UpdateSchedule(p.ID, u)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("schedule %s: not found", p.ID)
	}

	sched := c.d.Scheduler
	switch {
	case u.Enabled != nil && !*u.Enabled:
		if sched.IsRunning(p.ID) {
			return sched.StopByID(p.ID)
		}
	case u.Enabled != nil && *u.Enabled:
		return sched.StartByID(p.ID)
	case sched.IsRunning(p.ID) && (u.IntervalMs != nil || u.Times != nil):
		return sched.StartByID(p.ID)
	}
	return nil
}

func decode(msg Message, dst any) error {
	if len(msg.Payload) == 0 {
		return fmt.Errorf("%s: missing payload", msg.Command)
	}
	if err := json.Unmarshal(msg.Payload, dst); err != nil {
		return fmt.Errorf("%s: bad payload: %w", msg.Command, err)
	}
	return nil
}

// userMessage turns an action error into a short warning.
func userMessage(err error) string {
	switch {
	case errors.Is(err, store.ErrEmptyText):
		return "Message text cannot be empty."
	case errors.Is(err, types.ErrInvalidInterval):
		return "Interval must be greater than zero."
	case errors.Is(err, types.ErrInvalidTime):
		return "Times must be HH:MM in 24-hour format."
	case errors.Is(err, types.ErrNoTimes):
		return "Add at least one time."
	case errors.Is(err, types.ErrKindMismatch):
		return "That change does not apply to this kind of schedule."
	case errors.Is(err, chat.ErrAlreadySending):
		return "Messages are already being sent."
	default:
		return err.Error()
	}
}
