package store

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/linkerlin/chatauto.go/internal/types"
)

// Bundle is a portable snapshot of one workspace's messages and schedules.
type Bundle struct {
	Workspace string                 `yaml:"workspace,omitempty"`
	Messages  []types.Message        `yaml:"messages"`
	Schedules []types.ScheduleRecord `yaml:"schedules"`
}

// ImportResult counts what Import added.
type ImportResult struct {
	Messages  int
	Schedules int
}

// Export snapshots the current messages and schedules.
func (s *Store) Export() (Bundle, error) {
	msgs, err := s.ListMessages()
	if err != nil {
		return Bundle{}, err
	}
	list, err := s.ListSchedules()
	if err != nil {
		return Bundle{}, err
	}
	b := Bundle{Messages: msgs, Schedules: make([]types.ScheduleRecord, 0, len(list))}
	for _, sc := range list {
		b.Schedules = append(b.Schedules, sc.Record())
	}
	return b, nil
}

// Import adds the bundle's records. With replace set the existing records are
// dropped first; otherwise records whose ID already exists are skipped.
// Imported schedules are stored stopped, and the whole bundle is rejected if
// any record is invalid.
func (s *Store) Import(b Bundle, replace bool) (ImportResult, error) {
	incomingMsgs := make([]types.Message, 0, len(b.Messages))
	for _, m := range b.Messages {
		if strings.TrimSpace(m.Text) == "" {
			return ImportResult{}, fmt.Errorf("import message %s: %w", m.ID, ErrEmptyText)
		}
		if m.ID == "" {
			m.ID = types.NewID()
		}
		if m.CreatedAt == 0 {
			m.CreatedAt = s.nowMs()
		}
		m.DelayMs = max(m.DelayMs, 0)
		incomingMsgs = append(incomingMsgs, m)
	}

	incomingScheds := make([]types.Schedule, 0, len(b.Schedules))
	for _, r := range b.Schedules {
		sc, err := r.Schedule()
		if err != nil {
			return ImportResult{}, fmt.Errorf("import: %w", err)
		}
		if err := sc.Validate(); err != nil {
			return ImportResult{}, fmt.Errorf("import schedule %s: %w", sc.ID, err)
		}
		if sc.ID == "" {
			sc.ID = types.NewID()
		}
		if sc.CreatedAt == 0 {
			sc.CreatedAt = s.nowMs()
		}
		sc.Enabled = false
		sc.NextRunTimestamp = nil
		incomingScheds = append(incomingScheds, sc)
	}

	st := s.mem()
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs, err := loadMessages(st)
	if err != nil {
		return ImportResult{}, err
	}
	list, err := s.loadSchedules(st)
	if err != nil {
		return ImportResult{}, err
	}
	if replace {
		msgs, list = []types.Message{}, []types.Schedule{}
	}

	var res ImportResult
	seen := make(map[string]bool, len(msgs)+len(list))
	for _, m := range msgs {
		seen[m.ID] = true
	}
	for _, m := range incomingMsgs {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		msgs = append(msgs, m)
		res.Messages++
	}
	for _, sc := range list {
		seen[sc.ID] = true
	}
	for _, sc := range incomingScheds {
		if seen[sc.ID] {
			continue
		}
		seen[sc.ID] = true
		list = append(list, sc)
		res.Schedules++
	}

	if err := st.Update(KeyMessages, msgs); err != nil {
		return ImportResult{}, fmt.Errorf("import messages: %w", err)
	}
	if err := saveSchedules(st, list); err != nil {
		return ImportResult{}, err
	}
	return res, nil
}

// EncodeBundle writes b as YAML.
func EncodeBundle(w io.Writer, b Bundle) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(b); err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}
	return enc.Close()
}

// DecodeBundle reads a YAML bundle.
func DecodeBundle(r io.Reader) (Bundle, error) {
	var b Bundle
	if err := yaml.NewDecoder(r).Decode(&b); err != nil {
		return Bundle{}, fmt.Errorf("decode bundle: %w", err)
	}
	return b, nil
}
