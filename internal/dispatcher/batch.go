package dispatcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/alejoacosta74/cardbatch/internal/card"
)

// ErrCancelled marks a card that was drained but whose send was never
// completed because dispatch was cancelled or abandoned at shutdown.
var ErrCancelled = errors.New("send cancelled")

// Status is the final state of a batch.
type Status string

const (
	StatusCompleted      Status = "COMPLETED"       // every send succeeded
	StatusPartialFailure Status = "PARTIAL_FAILURE" // some sends failed or were cancelled
	StatusFailed         Status = "FAILED"          // no send succeeded
)

// Summary aggregates the outcomes of one batch.
type Summary struct {
	BatchID   string        `json:"batchId"`
	Brand     card.Brand    `json:"brand"`
	Topic     string        `json:"topic"`
	Size      int           `json:"size"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Cancelled int           `json:"cancelled"`
	Status    Status        `json:"status"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
}

// Batch is the handle returned by Dispatch. It tracks one outcome slot per
// drained card; each slot resolves exactly once.
type Batch struct {
	id        string
	brand     card.Brand
	topic     string
	cards     []card.Card
	startedAt time.Time

	mu        sync.Mutex
	resolved  []bool
	succeeded int
	failed    int
	cancelled int
	remaining int
	summary   Summary

	done chan struct{}
}

func newBatch(id string, brand card.Brand, topic string, cards []card.Card, startedAt time.Time) *Batch {
	return &Batch{
		id:        id,
		brand:     brand,
		topic:     topic,
		cards:     cards,
		startedAt: startedAt,
		resolved:  make([]bool, len(cards)),
		remaining: len(cards),
		done:      make(chan struct{}),
	}
}

func (b *Batch) ID() string        { return b.id }
func (b *Batch) Brand() card.Brand { return b.brand }
func (b *Batch) Topic() string     { return b.topic }
func (b *Batch) Size() int         { return len(b.cards) }

// Cards returns the drained cards in send order.
func (b *Batch) Cards() []card.Card {
	out := make([]card.Card, len(b.cards))
	copy(out, b.cards)
	return out
}

// Done is closed once every slot has an outcome.
func (b *Batch) Done() <-chan struct{} { return b.done }

// Wait blocks until the batch is done or ctx ends.
func (b *Batch) Wait(ctx context.Context) (Summary, error) {
	select {
	case <-b.done:
		return b.Summary(), nil
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	}
}

// Summary returns the final summary, or the running tallies while sends are
// still outstanding.
func (b *Batch) Summary() Summary {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remaining == 0 {
		return b.summary
	}
	return b.tally(time.Time{})
}

// resolve records the outcome of slot i. accepted is false when the slot was
// already resolved; last is true for the outcome that completes the batch.
func (b *Batch) resolve(i int, err error, now time.Time) (accepted, last bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if i < 0 || i >= len(b.resolved) || b.resolved[i] {
		return false, false
	}
	b.resolved[i] = true
	switch {
	case err == nil:
		b.succeeded++
	case errors.Is(err, ErrCancelled):
		b.cancelled++
	default:
		b.failed++
	}
	b.remaining--
	if b.remaining == 0 {
		b.summary = b.tally(now)
		return true, true
	}
	return true, false
}

// unresolved lists the slots still waiting for an outcome.
func (b *Batch) unresolved() []int {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []int
	for i, ok := range b.resolved {
		if !ok {
			out = append(out, i)
		}
	}
	return out
}

// tally must be called with mu held. A zero now leaves Duration unset.
func (b *Batch) tally(now time.Time) Summary {
	s := Summary{
		BatchID:   b.id,
		Brand:     b.brand,
		Topic:     b.topic,
		Size:      len(b.cards),
		Succeeded: b.succeeded,
		Failed:    b.failed,
		Cancelled: b.cancelled,
		StartedAt: b.startedAt,
	}
	if !now.IsZero() {
		s.Duration = now.Sub(b.startedAt)
	}
	switch {
	case s.Failed == 0 && s.Cancelled == 0:
		s.Status = StatusCompleted
	case s.Succeeded == 0:
		s.Status = StatusFailed
	default:
		s.Status = StatusPartialFailure
	}
	return s
}
