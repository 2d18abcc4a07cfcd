package types

import (
	"time"

	"github.com/google/uuid"
)

// DefaultDelayMs is the pre-send delay given to new messages.
const DefaultDelayMs int64 = 2000

// Message is a canned chat message. The order of the persisted list is the
// send order.
type Message struct {
	ID        string `json:"id" yaml:"id"`
	Text      string `json:"text" yaml:"text"`
	DelayMs   int64  `json:"delayMs" yaml:"delayMs"`
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	CreatedAt int64  `json:"createdAt" yaml:"createdAt"`
}

// NewMessage returns an enabled message with a fresh ID.
func NewMessage(text string, delayMs int64) Message {
	if delayMs < 0 {
		delayMs = 0
	}
	return Message{
		ID:        NewID(),
		Text:      text,
		DelayMs:   delayMs,
		Enabled:   true,
		CreatedAt: NowMs(),
	}
}

// Preview returns at most n runes of the message text on a single line.
func (m Message) Preview(n int) string {
	runes := []rune(m.Text)
	for i, r := range runes {
		if r == '\n' || r == '\r' {
			runes[i] = ' '
		}
	}
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[:n]) + "..."
}

// NewID generates a record identifier.
func NewID() string {
	return uuid.New().String()
}

// NowMs returns the current time in epoch milliseconds.
func NowMs() int64 {
	return time.Now().UnixMilli()
}

// FromMs converts epoch milliseconds to a local time.
func FromMs(ms int64) time.Time {
	return time.UnixMilli(ms)
}
