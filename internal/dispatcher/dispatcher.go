// Package dispatcher drains brand buffers into batches and sends every card of
// a batch to its Kafka topic asynchronously, aggregating the outcomes.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alejoacosta74/cardbatch/internal/buffer"
	"github.com/alejoacosta74/cardbatch/internal/card"
	"github.com/alejoacosta74/cardbatch/internal/events"
	"github.com/alejoacosta74/cardbatch/internal/kafka"
	"github.com/alejoacosta74/cardbatch/internal/metrics"
	"github.com/alejoacosta74/cardbatch/internal/routing"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// Message headers set on every card sent.
const (
	HeaderBrand   = "brand"
	HeaderBatchID = "batch-id"
)

const DefaultBatchSize = 1000

// Config holds the dispatcher settings.
type Config struct {
	BatchSize int             // max cards drained per dispatch
	Clock     clockwork.Clock // optional, defaults to the real clock
}

// Dispatcher turns the head of one brand queue into a Batch of async sends.
// It is safe for concurrent use; concurrent dispatches of the same brand get
// disjoint cards.
type Dispatcher struct {
	buffer    *buffer.Buffer
	router    *routing.Router
	producer  kafka.Producer
	eventBus  events.Bus
	recorder  *metrics.Recorder
	batchSize int
	clock     clockwork.Clock
	logger    *logrus.Entry

	mu   sync.Mutex
	open map[string]*Batch // batches with outstanding sends, by id
}

// New creates a Dispatcher.
//
// Parameters:
//   - cfg: batch size and clock
//   - buf: the brand buffers to drain
//   - router: brand to topic table
//   - producer: broker client used for every send
//   - eventBus: receives a Summary on events.TopicBatchCompleted per finished batch
//   - recorder: pipeline metrics
func New(cfg Config, buf *buffer.Buffer, router *routing.Router, producer kafka.Producer, eventBus events.Bus, recorder *metrics.Recorder) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Dispatcher{
		buffer:    buf,
		router:    router,
		producer:  producer,
		eventBus:  eventBus,
		recorder:  recorder,
		batchSize: cfg.BatchSize,
		clock:     cfg.Clock,
		logger:    logrus.WithField("component", "dispatcher"),
		open:      make(map[string]*Batch),
	}
}

// BatchSize returns the configured maximum batch size.
func (d *Dispatcher) BatchSize() int { return d.batchSize }

// Dispatch drains up to BatchSize cards of brand and issues one async send per
// card. It returns once every send has been issued, or nil when there was
// nothing to drain. Outcomes arrive later through the returned Batch.
//
// Cards not yet issued when ctx is cancelled are reported as ErrCancelled.
func (d *Dispatcher) Dispatch(ctx context.Context, brand card.Brand) *Batch {
	if d.buffer.Size(brand) == 0 {
		return nil
	}
	cards := d.buffer.Drain(brand, d.batchSize)
	if len(cards) == 0 {
		// another drain emptied the queue first
		d.logger.WithField("brand", brand).Trace("Nothing left to drain")
		return nil
	}
	d.recorder.SetPending(brand.String(), d.buffer.Size(brand))

	b := newBatch(uuid.NewString(), brand, d.router.Resolve(brand), cards, d.clock.Now())
	d.track(b)

	d.logger.WithFields(logrus.Fields{
		"batch_id": b.id,
		"brand":    brand,
		"topic":    b.topic,
		"size":     len(cards),
	}).Debug("Dispatching batch")

	for i, c := range cards {
		if err := ctx.Err(); err != nil {
			d.cancelFrom(b, i, err)
			break
		}
		d.send(ctx, b, i, c)
	}
	return b
}

func (d *Dispatcher) send(ctx context.Context, b *Batch, i int, c card.Card) {
	sentAt := d.clock.Now()
	err := d.safeSend(ctx, b, c, func(res kafka.Result) {
		d.complete(b, i, res, d.clock.Since(sentAt))
	})
	if err != nil {
		d.complete(b, i, kafka.Result{Topic: b.topic, Err: err}, 0)
	}
}

// safeSend encodes c and hands it to the producer. Encoding errors, producer
// errors and producer panics all come back as the returned error.
func (d *Dispatcher) safeSend(ctx context.Context, b *Batch, c card.Card, cb kafka.Callback) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("producer panic: %v", r)
		}
	}()

	value, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode card %s: %w", c.ID, err)
	}
	return d.producer.Send(ctx, kafka.Message{
		Topic: b.topic,
		Key:   []byte(c.ID),
		Value: value,
		Headers: map[string]string{
			HeaderBrand:   c.Brand.String(),
			HeaderBatchID: b.id,
		},
	}, cb)
}

// cancelFrom reports every slot from index start on as cancelled.
func (d *Dispatcher) cancelFrom(b *Batch, start int, cause error) {
	d.logger.WithFields(logrus.Fields{
		"batch_id":  b.id,
		"brand":     b.brand,
		"cancelled": len(b.cards) - start,
	}).WithError(cause).Warn("Dispatch cancelled before all cards were sent")

	for i := start; i < len(b.cards); i++ {
		d.complete(b, i, kafka.Result{Topic: b.topic, Err: fmt.Errorf("%w: %v", ErrCancelled, cause)}, 0)
	}
}

// complete applies one outcome to slot i of b. Duplicate outcomes for a slot
// are ignored.
func (d *Dispatcher) complete(b *Batch, i int, res kafka.Result, latency time.Duration) bool {
	accepted, last := b.resolve(i, res.Err, d.clock.Now())
	if !accepted {
		d.logger.WithFields(logrus.Fields{"batch_id": b.id, "slot": i}).Trace("Ignoring duplicate outcome")
		return false
	}

	c := b.cards[i]
	log := d.logger.WithFields(logrus.Fields{
		"batch_id": b.id,
		"card_id":  c.ID,
		"brand":    b.brand,
		"topic":    b.topic,
	})
	switch {
	case res.Err == nil:
		log.WithFields(logrus.Fields{
			"partition": res.Partition,
			"offset":    res.Offset,
		}).Trace("Card sent")
	case errors.Is(res.Err, ErrCancelled):
		log.WithField("number", c.Masked()).WithError(res.Err).Warn("Card send cancelled")
	default:
		log.WithField("number", c.Masked()).WithError(res.Err).Error("Failed to send card")
	}
	d.recorder.SendCompleted(b.brand.String(), b.topic, res.Err == nil, latency)

	if last {
		d.finish(b)
	}
	return true
}

func (d *Dispatcher) finish(b *Batch) {
	s := b.Summary()

	log := d.logger.WithFields(logrus.Fields{
		"batch_id":  s.BatchID,
		"brand":     s.Brand,
		"topic":     s.Topic,
		"size":      s.Size,
		"succeeded": s.Succeeded,
		"failed":    s.Failed,
		"cancelled": s.Cancelled,
		"status":    s.Status,
		"duration":  s.Duration,
	})
	if s.Status == StatusCompleted {
		log.Info("Batch completed")
	} else {
		log.Warn("Batch completed with failures")
	}

	d.recorder.BatchCompleted(s.Brand.String(), string(s.Status), s.Size, s.Duration)
	d.eventBus.Publish(events.TopicBatchCompleted, s)

	d.mu.Lock()
	delete(d.open, b.id)
	d.mu.Unlock()
	close(b.done)
}

func (d *Dispatcher) track(b *Batch) {
	d.mu.Lock()
	d.open[b.id] = b
	d.mu.Unlock()
}

func (d *Dispatcher) openBatches() []*Batch {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Batch, 0, len(d.open))
	for _, b := range d.open {
		out = append(out, b)
	}
	return out
}

// InFlight returns the number of batches with outstanding sends.
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.open)
}

// Wait blocks until no batch has outstanding sends, or ctx ends.
func (d *Dispatcher) Wait(ctx context.Context) error {
	for {
		open := d.openBatches()
		if len(open) == 0 {
			return nil
		}
		for _, b := range open {
			select {
			case <-b.Done():
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Abandon reports every unresolved slot of every open batch as cancelled so
// their summaries are emitted. Outcomes arriving later are ignored. It returns
// the number of slots it resolved.
func (d *Dispatcher) Abandon() int {
	n := 0
	for _, b := range d.openBatches() {
		for _, i := range b.unresolved() {
			if d.complete(b, i, kafka.Result{Topic: b.topic, Err: fmt.Errorf("%w: abandoned at shutdown", ErrCancelled)}, 0) {
				n++
			}
		}
	}
	return n
}
