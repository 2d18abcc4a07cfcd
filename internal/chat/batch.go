package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/linkerlin/chatauto.go/internal/delay"
	"github.com/linkerlin/chatauto.go/internal/notify"
	"github.com/linkerlin/chatauto.go/internal/types"
)

// Batch pacing.
const (
	SliceDelay = 100 * time.Millisecond
	SettleWait = 1000 * time.Millisecond
)

// ErrAlreadySending is returned when a batch is already in flight.
var ErrAlreadySending = errors.New("a batch is already being sent")

// MessageSender sends a single message.
type MessageSender interface {
	SendOne(ctx context.Context, text string) bool
}

// Result summarizes a batch.
type Result struct {
	Sent      int
	Total     int
	Cancelled bool
}

// State is a snapshot of the batch in flight.
type State struct {
	Sending bool
	Index   int
	Total   int
	Label   string
}

// Progress is reported before each message of a batch.
type Progress struct {
	Index     int
	Total     int
	Label     string
	Increment float64
}

// CancelToken is shared by one batch and whoever wants to stop it.
type CancelToken struct {
	cancelled atomic.Bool
}

func (t *CancelToken) Cancel()         { t.cancelled.Store(true) }
func (t *CancelToken) Cancelled() bool { return t.cancelled.Load() }

// BatchSender sends enabled messages in order, one batch at a time.
type BatchSender struct {
	sender MessageSender
	notify notify.Notifier
	sem    *semaphore.Weighted

	mu    sync.Mutex
	state State
	token *CancelToken

	// OnProgress, when set, receives per-message progress.
	OnProgress func(Progress)
	// OnChange, when set, is called whenever State changes.
	OnChange func()

	SliceDelay time.Duration
	SettleWait time.Duration
}

// NewBatchSender returns a BatchSender using the default pacing.
func NewBatchSender(sender MessageSender, n notify.Notifier) *BatchSender {
	return &BatchSender{
		sender:     sender,
		notify:     n,
		sem:        semaphore.NewWeighted(1),
		SliceDelay: SliceDelay,
		SettleWait: SettleWait,
	}
}

// SendBatch sends the enabled messages of msgs in order. Each message waits
// its own delay first, in slices so a cancel takes effect quickly. A failed
// send is counted and the batch moves on. Cancelling ctx counts as a cancel.
func (b *BatchSender) SendBatch(ctx context.Context, msgs []types.Message) (Result, error) {
	enabled := make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Enabled {
			enabled = append(enabled, m)
		}
	}
	if len(enabled) == 0 {
		b.notify.Warn("No enabled messages to send.")
		return Result{}, nil
	}

	if !b.sem.TryAcquire(1) {
		return Result{}, ErrAlreadySending
	}
	defer b.sem.Release(1)

	token := &CancelToken{}
	total := len(enabled)
	b.setState(State{Sending: true, Total: total}, token)
	defer b.setState(State{}, nil)

	res := Result{Total: total}
	for i, m := range enabled {
		if b.stopRequested(ctx, token) {
			res.Cancelled = true
			break
		}

		label := fmt.Sprintf("%d/%d: %s", i+1, total, m.Preview(30))
		b.setState(State{Sending: true, Index: i, Total: total, Label: label}, token)
		if b.OnProgress != nil {
			b.OnProgress(Progress{Index: i, Total: total, Label: label, Increment: 100 / float64(total)})
		}

		if !b.wait(ctx, token, delay.Duration(m.DelayMs)) {
			res.Cancelled = true
			break
		}

		if b.sender.SendOne(ctx, m.Text) {
			res.Sent++
		} else {
			slog.Warn("Message not sent", "id", m.ID, "index", i+1)
		}

		if i < total-1 && !b.wait(ctx, token, b.SettleWait) {
			res.Cancelled = true
			break
		}
	}

	if res.Cancelled {
		b.notify.Info(fmt.Sprintf("Stopped. Sent %d/%d messages.", res.Sent, res.Total))
	} else {
		b.notify.Info(fmt.Sprintf("✅ Sent %d/%d messages.", res.Sent, res.Total))
	}
	return res, nil
}

// Cancel asks the batch in flight to stop. It is a no-op when idle.
func (b *BatchSender) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.token != nil {
		b.token.Cancel()
	}
}

// IsSending reports whether a batch is in flight.
func (b *BatchSender) IsSending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.Sending
}

// State returns a copy of the current send state.
func (b *BatchSender) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *BatchSender) setState(st State, token *CancelToken) {
	b.mu.Lock()
	b.state = st
	b.token = token
	b.mu.Unlock()
	if b.OnChange != nil {
		b.OnChange()
	}
}

func (b *BatchSender) stopRequested(ctx context.Context, token *CancelToken) bool {
	if ctx.Err() != nil {
		token.Cancel()
	}
	return token.Cancelled()
}

// wait sleeps for d in SliceDelay steps and reports false as soon as a stop
// is requested.
func (b *BatchSender) wait(ctx context.Context, token *CancelToken, d time.Duration) bool {
	step := b.SliceDelay
	if step <= 0 {
		step = SliceDelay
	}
	for waited := time.Duration(0); waited < d; waited += step {
		if b.stopRequested(ctx, token) {
			return false
		}
		if !sleep(ctx, min(step, d-waited)) {
			token.Cancel()
			return false
		}
	}
	return !b.stopRequested(ctx, token)
}
