package buffer

import (
	"fmt"
	"sync"
	"testing"

	"github.com/alejoacosta74/cardbatch/internal/card"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCard(brand card.Brand, i int) card.Card {
	return card.Card{
		ID:         fmt.Sprintf("%s-%d", brand, i),
		HolderName: "holder",
		Number:     "4111111111111111",
		Brand:      brand,
	}
}

func ids(cards []card.Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.ID
	}
	return out
}

func TestBuffer_EnqueueDrainFIFO(t *testing.T) {
	b := New(card.Brands())

	var want []string
	for i := 0; i < 10; i++ {
		c := newCard(card.BrandVisa, i)
		require.NoError(t, b.Enqueue(card.BrandVisa, c))
		want = append(want, c.ID)
	}
	assert.Equal(t, 10, b.Size(card.BrandVisa))

	first := b.Drain(card.BrandVisa, 4)
	second := b.Drain(card.BrandVisa, 100)
	assert.Equal(t, want[:4], ids(first))
	assert.Equal(t, want[4:], ids(second))
	assert.Equal(t, 0, b.Size(card.BrandVisa))
	assert.Nil(t, b.Drain(card.BrandVisa, 10))
}

func TestBuffer_Drain(t *testing.T) {
	tests := []struct {
		name     string
		enqueued int
		max      int
		wantLen  int
		wantLeft int
	}{
		{name: "empty queue", enqueued: 0, max: 5, wantLen: 0, wantLeft: 0},
		{name: "fewer than max", enqueued: 3, max: 5, wantLen: 3, wantLeft: 0},
		{name: "exactly max", enqueued: 5, max: 5, wantLen: 5, wantLeft: 0},
		{name: "more than max", enqueued: 8, max: 5, wantLen: 5, wantLeft: 3},
		{name: "zero max", enqueued: 2, max: 0, wantLen: 0, wantLeft: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(card.Brands())
			for i := 0; i < tt.enqueued; i++ {
				require.NoError(t, b.Enqueue(card.BrandAmex, newCard(card.BrandAmex, i)))
			}
			got := b.Drain(card.BrandAmex, tt.max)
			assert.Len(t, got, tt.wantLen)
			assert.Equal(t, tt.wantLeft, b.Size(card.BrandAmex))
		})
	}
}

func TestBuffer_UnknownPartition(t *testing.T) {
	b := New([]card.Brand{card.BrandVisa})

	err := b.Enqueue(card.BrandAmex, newCard(card.BrandAmex, 0))
	assert.ErrorIs(t, err, ErrUnknownPartition)
	assert.Equal(t, 0, b.Size(card.BrandAmex))
	assert.Nil(t, b.Drain(card.BrandAmex, 10))
	assert.Nil(t, b.SnapshotOf(card.BrandAmex))
}

func TestBuffer_PartitionsAreIndependent(t *testing.T) {
	b := New(card.Brands())
	require.NoError(t, b.Enqueue(card.BrandVisa, newCard(card.BrandVisa, 0)))
	require.NoError(t, b.Enqueue(card.BrandAmex, newCard(card.BrandAmex, 0)))

	assert.Len(t, b.Drain(card.BrandVisa, 10), 1)
	assert.Equal(t, 1, b.Size(card.BrandAmex))
	assert.Equal(t, card.Brands(), b.Partitions())
}

func TestBuffer_Snapshot(t *testing.T) {
	b := New(card.Brands())
	require.NoError(t, b.Enqueue(card.BrandAmex, newCard(card.BrandAmex, 0)))
	require.NoError(t, b.Enqueue(card.BrandVisa, newCard(card.BrandVisa, 0)))
	require.NoError(t, b.Enqueue(card.BrandVisa, newCard(card.BrandVisa, 1)))

	snap := b.Snapshot()
	assert.Equal(t, []string{"VISA-0", "VISA-1", "AMEX-0"}, ids(snap))

	// snapshot does not consume
	assert.Equal(t, 2, b.Size(card.BrandVisa))

	// and is a copy
	snap[0].HolderName = "changed"
	assert.Equal(t, "holder", b.SnapshotOf(card.BrandVisa)[0].HolderName)
}

// Concurrent producers racing with concurrent drains must hand every card to
// exactly one drain.
func TestBuffer_ConcurrentNoLossNoDuplication(t *testing.T) {
	const (
		producers   = 16
		perProducer = 500
		drainers    = 4
	)
	b := New(card.Brands())
	brands := card.Brands()

	var (
		mu      sync.Mutex
		seen    = make(map[string]int)
		prodWg  sync.WaitGroup
		drainWg sync.WaitGroup
		done    = make(chan struct{})
	)

	collect := func(cards []card.Card) {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range cards {
			seen[c.ID]++
		}
	}

	for d := 0; d < drainers; d++ {
		drainWg.Add(1)
		go func() {
			defer drainWg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				for _, brand := range brands {
					collect(b.Drain(brand, 37))
				}
			}
		}()
	}

	for p := 0; p < producers; p++ {
		prodWg.Add(1)
		go func(p int) {
			defer prodWg.Done()
			for i := 0; i < perProducer; i++ {
				brand := brands[(p+i)%len(brands)]
				c := newCard(brand, p*perProducer+i)
				require.NoError(t, b.Enqueue(brand, c))
			}
		}(p)
	}

	prodWg.Wait()
	close(done)
	drainWg.Wait()
	for _, brand := range brands {
		collect(b.Drain(brand, producers*perProducer))
	}

	require.Len(t, seen, producers*perProducer)
	for id, n := range seen {
		assert.Equal(t, 1, n, "card %s drained %d times", id, n)
	}
}
