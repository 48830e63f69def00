// Package buffer implements the per-brand registration queues that sit between
// the registration entry point and the batch dispatcher.
package buffer

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/alejoacosta74/cardbatch/internal/card"
	"github.com/eapache/queue"
)

// ErrUnknownPartition is returned for a brand that has no queue.
var ErrUnknownPartition = errors.New("unknown partition")

// partition is one unbounded FIFO. length mirrors items.Length() so Size can be
// read without the lock; it may lag a concurrent Enqueue or Drain.
type partition struct {
	mu     sync.Mutex
	items  *queue.Queue
	length atomic.Int64
}

// Buffer maps every brand to its own concurrency-safe FIFO. The set of
// partitions is fixed at construction, so lookups never allocate or lock the map.
type Buffer struct {
	order      []card.Brand
	partitions map[card.Brand]*partition
}

// New creates one empty queue per brand.
func New(brands []card.Brand) *Buffer {
	b := &Buffer{
		order:      make([]card.Brand, 0, len(brands)),
		partitions: make(map[card.Brand]*partition, len(brands)),
	}
	for _, brand := range brands {
		if _, dup := b.partitions[brand]; dup {
			continue
		}
		b.order = append(b.order, brand)
		b.partitions[brand] = &partition{items: queue.New()}
	}
	return b
}

// Partitions returns the brands this buffer was built with, in construction order.
func (b *Buffer) Partitions() []card.Brand {
	out := make([]card.Brand, len(b.order))
	copy(out, b.order)
	return out
}

// Enqueue appends c to the tail of the brand's queue.
func (b *Buffer) Enqueue(brand card.Brand, c card.Card) error {
	p, ok := b.partitions[brand]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPartition, brand)
	}
	p.mu.Lock()
	p.items.Add(c)
	p.length.Store(int64(p.items.Length()))
	p.mu.Unlock()
	return nil
}

// Size returns the approximate number of queued cards for brand.
func (b *Buffer) Size(brand card.Brand) int {
	p, ok := b.partitions[brand]
	if !ok {
		return 0
	}
	return int(p.length.Load())
}

// Drain removes and returns up to max cards from the head of the brand's queue
// in FIFO order. It returns nil when there is nothing to drain.
func (b *Buffer) Drain(brand card.Brand, max int) []card.Card {
	p, ok := b.partitions[brand]
	if !ok || max <= 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.items.Length()
	if n == 0 {
		return nil
	}
	if n > max {
		n = max
	}
	out := make([]card.Card, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, p.items.Remove().(card.Card))
	}
	p.length.Store(int64(p.items.Length()))
	return out
}

// Snapshot copies every queued card, partition by partition in FIFO order.
// The result is stale as soon as it is returned.
func (b *Buffer) Snapshot() []card.Card {
	var out []card.Card
	for _, brand := range b.order {
		out = append(out, b.SnapshotOf(brand)...)
	}
	return out
}

// SnapshotOf copies the cards currently queued for one brand.
func (b *Buffer) SnapshotOf(brand card.Brand) []card.Card {
	p, ok := b.partitions[brand]
	if !ok {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]card.Card, 0, p.items.Length())
	for i := 0; i < p.items.Length(); i++ {
		out = append(out, p.items.Get(i).(card.Card))
	}
	return out
}
