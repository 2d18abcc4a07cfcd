// Package store persists the messages and schedules of one workspace.
//
// Every mutation re-reads the current collection, applies the change and
// writes the whole collection back while holding the store lock, so callers
// never merge into a stale snapshot.
package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/linkerlin/chatauto.go/internal/types"
)

// Storage keys.
const (
	KeyMessages       = "chatauto.messages"
	KeySchedules      = "chatauto.schedules"
	KeyLegacySchedule = "chatauto.schedule"
)

// ErrEmptyText is returned when a message would be stored without text.
var ErrEmptyText = errors.New("message text is empty")

// Memento is the workspace key/value primitive the store is built on.
type Memento interface {
	Get(key string, dst any) (bool, error)
	Update(key string, value any) error
}

// Store is the single writer of persisted messages and schedules.
type Store struct {
	mu       sync.Mutex
	state    Memento
	migrated bool
	now      func() time.Time
}

// New returns a store backed by state.
func New(state Memento) *Store {
	return &Store{state: state, now: time.Now}
}

// mem returns the backend. Using a store that was never given one is a wiring
// bug, not a runtime condition.
func (s *Store) mem() Memento {
	if s == nil || s.state == nil {
		panic("store: not initialized with a storage backend")
	}
	return s.state
}

func (s *Store) nowMs() int64 {
	return s.now().UnixMilli()
}

// ===================== MESSAGES =====================

// MessageUpdate is a merge-patch for a message. Nil fields are left alone.
type MessageUpdate struct {
	Text    *string
	DelayMs *int64
	Enabled *bool
}

// ListMessages returns the messages in send order.
func (s *Store) ListMessages() ([]types.Message, error) {
	st := s.mem()
	s.mu.Lock()
	defer s.mu.Unlock()
	return loadMessages(st)
}

// EnabledMessages returns the enabled messages in send order.
func (s *Store) EnabledMessages() ([]types.Message, error) {
	msgs, err := s.ListMessages()
	if err != nil {
		return nil, err
	}
	enabled := msgs[:0:0]
	for _, m := range msgs {
		if m.Enabled {
			enabled = append(enabled, m)
		}
	}
	return enabled, nil
}

// AddMessage appends a new enabled message.
func (s *Store) AddMessage(text string, delayMs int64) (types.Message, error) {
	if strings.TrimSpace(text) == "" {
		return types.Message{}, ErrEmptyText
	}
	st := s.mem()
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs, err := loadMessages(st)
	if err != nil {
		return types.Message{}, err
	}
	m := types.NewMessage(text, delayMs)
	m.CreatedAt = s.nowMs()
	msgs = append(msgs, m)
	if err := st.Update(KeyMessages, msgs); err != nil {
		return types.Message{}, fmt.Errorf("add message: %w", err)
	}
	return m, nil
}

// UpdateMessage merges u into the message with the given id and reports
// whether the id existed.
func (s *Store) UpdateMessage(id string, u MessageUpdate) (bool, error) {
	if u.Text != nil && strings.TrimSpace(*u.Text) == "" {
		return false, ErrEmptyText
	}
	return s.patchMessage(id, func(m *types.Message) {
		if u.Text != nil {
			m.Text = *u.Text
		}
		if u.DelayMs != nil {
			m.DelayMs = max(*u.DelayMs, 0)
		}
		if u.Enabled != nil {
			m.Enabled = *u.Enabled
		}
	})
}

// ToggleMessage flips the enabled flag and reports whether the id existed.
func (s *Store) ToggleMessage(id string) (bool, error) {
	return s.patchMessage(id, func(m *types.Message) {
		m.Enabled = !m.Enabled
	})
}

// DeleteMessage removes a message and reports whether anything was removed.
func (s *Store) DeleteMessage(id string) (bool, error) {
	st := s.mem()
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs, err := loadMessages(st)
	if err != nil {
		return false, err
	}
	kept := make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	if len(kept) == len(msgs) {
		return false, nil
	}
	if err := st.Update(KeyMessages, kept); err != nil {
		return false, fmt.Errorf("delete message: %w", err)
	}
	return true, nil
}

// ReorderMessages places the listed ids first, in the given order, followed by
// every other message in its previous relative order. Unknown and repeated
// ids are ignored.
func (s *Store) ReorderMessages(ids []string) error {
	st := s.mem()
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs, err := loadMessages(st)
	if err != nil {
		return err
	}
	if err := st.Update(KeyMessages, reorder(msgs, ids)); err != nil {
		return fmt.Errorf("reorder messages: %w", err)
	}
	return nil
}

func reorder(msgs []types.Message, ids []string) []types.Message {
	byID := make(map[string]types.Message, len(msgs))
	for _, m := range msgs {
		byID[m.ID] = m
	}

	placed := make(map[string]bool, len(msgs))
	out := make([]types.Message, 0, len(msgs))
	for _, id := range ids {
		m, ok := byID[id]
		if !ok || placed[id] {
			continue
		}
		placed[id] = true
		out = append(out, m)
	}
	for _, m := range msgs {
		if !placed[m.ID] {
			placed[m.ID] = true
			out = append(out, m)
		}
	}
	return out
}

// ClearMessages removes every message.
func (s *Store) ClearMessages() error {
	st := s.mem()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := st.Update(KeyMessages, []types.Message{}); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	return nil
}

func (s *Store) patchMessage(id string, fn func(*types.Message)) (bool, error) {
	st := s.mem()
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs, err := loadMessages(st)
	if err != nil {
		return false, err
	}
	for i := range msgs {
		if msgs[i].ID != id {
			continue
		}
		fn(&msgs[i])
		if err := st.Update(KeyMessages, msgs); err != nil {
			return false, fmt.Errorf("update message: %w", err)
		}
		return true, nil
	}
	return false, nil
}

func loadMessages(st Memento) ([]types.Message, error) {
	var msgs []types.Message
	if _, err := st.Get(KeyMessages, &msgs); err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	if msgs == nil {
		msgs = []types.Message{}
	}
	return msgs, nil
}
