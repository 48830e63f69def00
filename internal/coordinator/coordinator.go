// Package coordinator is the registration entry point. It buffers cards per
// brand, flushes a brand inline when its buffer reaches the batch size, flushes
// every brand periodically on a worker pool, and drains outstanding work on
// shutdown.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alejoacosta74/cardbatch/internal/buffer"
	"github.com/alejoacosta74/cardbatch/internal/card"
	"github.com/alejoacosta74/cardbatch/internal/dispatcher"
	"github.com/alejoacosta74/cardbatch/internal/events"
	"github.com/alejoacosta74/cardbatch/internal/metrics"
	"github.com/alitto/pond/v2"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

var (
	// ErrUnknownBrand rejects a card whose brand is outside the enumeration.
	ErrUnknownBrand = errors.New("unknown card brand")
	// ErrShuttingDown rejects registrations once Shutdown has begun.
	ErrShuttingDown = errors.New("coordinator is shutting down")
	// ErrShutdownTimeout is returned when the grace period elapsed before
	// every in-flight send had an outcome.
	ErrShutdownTimeout = errors.New("shutdown grace period elapsed")
)

const (
	DefaultFlushInterval = 500 * time.Millisecond
	DefaultGracePeriod   = 60 * time.Second
)

// Shutdown results reported to metrics and the event bus.
const (
	ShutdownClean   = "clean"
	ShutdownTimeout = "timeout"
)

// Config holds the coordinator settings.
type Config struct {
	FlushInterval time.Duration   // periodic flush period
	GracePeriod   time.Duration   // bound on the shutdown drain
	Clock         clockwork.Clock // optional, defaults to the real clock
}

// Coordinator accepts registrations and schedules dispatches.
type Coordinator struct {
	buffer     *buffer.Buffer
	dispatcher *dispatcher.Dispatcher
	recorder   *metrics.Recorder
	eventBus   events.Bus
	pool       pond.Pool
	logger     *logrus.Entry

	flushInterval time.Duration
	gracePeriod   time.Duration
	clock         clockwork.Clock

	// sendCtx outlives every caller; it is cancelled only to force-stop at shutdown.
	sendCtx    context.Context
	cancelSend context.CancelFunc

	// mu orders the closing check and enqueue of Register against the start
	// of shutdown. It is never held across a dispatch.
	mu      sync.RWMutex
	closing atomic.Bool
	inline  sync.WaitGroup // inline flushes started before closing

	queued map[card.Brand]*atomic.Bool // a periodic flush task is pending for the brand

	startOnce    sync.Once
	started      atomic.Bool
	stopLoop     chan struct{}
	loopDone     chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates a Coordinator with a flush pool of one worker per buffer partition.
func New(cfg Config, buf *buffer.Buffer, d *dispatcher.Dispatcher, eventBus events.Bus, recorder *metrics.Recorder) *Coordinator {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	sendCtx, cancel := context.WithCancel(context.Background())
	workers := len(buf.Partitions())
	if workers < 1 {
		workers = 1
	}
	queued := make(map[card.Brand]*atomic.Bool, workers)
	for _, brand := range buf.Partitions() {
		queued[brand] = new(atomic.Bool)
	}

	return &Coordinator{
		buffer:        buf,
		dispatcher:    d,
		recorder:      recorder,
		eventBus:      eventBus,
		pool:          pond.NewPool(workers, pond.WithContext(sendCtx)),
		logger:        logrus.WithField("component", "coordinator"),
		flushInterval: cfg.FlushInterval,
		gracePeriod:   cfg.GracePeriod,
		clock:         cfg.Clock,
		sendCtx:       sendCtx,
		cancelSend:    cancel,
		stopLoop:      make(chan struct{}),
		loopDone:      make(chan struct{}),
		queued:        queued,
	}
}

// Register appends c to its brand buffer. When the buffer reaches the batch
// size, one dispatch for that brand runs on the caller's goroutine; it only
// issues sends and never waits for broker acknowledgements. A send blocked on
// a backed-up producer is released when Shutdown force-cancels.
func (co *Coordinator) Register(c card.Card) error {
	co.mu.RLock()
	if co.closing.Load() {
		co.mu.RUnlock()
		co.recorder.RegistrationRejected("shutting_down")
		return ErrShuttingDown
	}
	if !c.Brand.Valid() {
		co.mu.RUnlock()
		co.recorder.RegistrationRejected("unknown_brand")
		return fmt.Errorf("%w: %s", ErrUnknownBrand, c.Brand)
	}
	if err := co.buffer.Enqueue(c.Brand, c); err != nil {
		co.mu.RUnlock()
		co.recorder.RegistrationRejected("unknown_brand")
		return fmt.Errorf("%w: %v", ErrUnknownBrand, err)
	}

	size := co.buffer.Size(c.Brand)
	inline := size >= co.dispatcher.BatchSize()
	if inline {
		co.inline.Add(1)
	}
	co.mu.RUnlock()

	co.recorder.CardRegistered(c.Brand.String())
	co.recorder.SetPending(c.Brand.String(), size)
	co.logger.WithFields(logrus.Fields{
		"card_id": c.ID,
		"brand":   c.Brand,
		"pending": size,
	}).Trace("Card registered")

	// Size is approximate; a burst may overshoot the threshold before the drain.
	if inline {
		defer co.inline.Done()
		co.logger.WithField("brand", c.Brand).Debug("Batch size reached, flushing inline")
		co.flush(c.Brand, false)
	}
	return nil
}

// Pending returns a copy of every buffered card. It may be stale by the time
// it is returned.
func (co *Coordinator) Pending() []card.Card {
	return co.buffer.Snapshot()
}

// InFlight returns the number of batches still waiting for send outcomes.
func (co *Coordinator) InFlight() int {
	return co.dispatcher.InFlight()
}

// Start runs the periodic flush until ctx is done or Shutdown is called.
// Calling it more than once has no effect.
func (co *Coordinator) Start(ctx context.Context) {
	co.startOnce.Do(func() {
		co.started.Store(true)
		ticker := co.clock.NewTicker(co.flushInterval)
		co.logger.WithField("interval", co.flushInterval).Info("Starting periodic flush")
		go co.loop(ctx, ticker)
	})
}

func (co *Coordinator) loop(ctx context.Context, ticker clockwork.Ticker) {
	defer close(co.loopDone)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			co.logger.Debug("Context cancelled, stopping periodic flush")
			return
		case <-co.stopLoop:
			co.logger.Debug("Stopping periodic flush")
			return
		case <-ticker.Chan():
			co.FlushAll()
		}
	}
}

// FlushAll submits one flush task per brand to the pool and returns how many
// were accepted. A brand whose previous task has not finished yet is skipped.
// It does not wait for the tasks.
func (co *Coordinator) FlushAll() int {
	if co.closing.Load() {
		return 0
	}
	n := 0
	for _, brand := range co.buffer.Partitions() {
		brand := brand
		queued := co.queued[brand]
		if !queued.CompareAndSwap(false, true) {
			co.logger.WithField("brand", brand).Trace("Previous flush still pending, skipping")
			continue
		}
		err := co.pool.Go(func() {
			defer queued.Store(false)
			co.flush(brand, false)
		})
		if err != nil {
			queued.Store(false)
			co.logger.WithField("brand", brand).WithError(err).Debug("Flush task rejected")
			continue
		}
		n++
	}
	return n
}

// flush dispatches brand once, or until its buffer is empty when drainAll is
// set. Panics are contained here so one brand never affects another.
func (co *Coordinator) flush(brand card.Brand, drainAll bool) {
	defer func() {
		if r := recover(); r != nil {
			co.recorder.FlushTaskFailed(brand.String())
			co.logger.WithFields(logrus.Fields{
				"brand": brand,
				"panic": r,
			}).Errorf("Flush task failed\n%s", debug.Stack())
		}
	}()

	for {
		b := co.dispatcher.Dispatch(co.sendCtx, brand)
		if b == nil || !drainAll || co.sendCtx.Err() != nil {
			return
		}
	}
}

// Shutdown stops the periodic flush, rejects new registrations and drains
// every buffer. It then waits, up to the grace period or until ctx ends, for
// the drain tasks, for inline flushes already running and for every in-flight
// send. When the wait is cut short the remaining sends are cancelled and
// ErrShutdownTimeout is returned.
// Only the first call does any work; later calls return its result.
func (co *Coordinator) Shutdown(ctx context.Context) error {
	co.shutdownOnce.Do(func() {
		co.shutdownErr = co.shutdown(ctx)
	})
	return co.shutdownErr
}

func (co *Coordinator) shutdown(ctx context.Context) error {
	start := co.clock.Now()
	graceCtx, cancel := context.WithTimeout(ctx, co.gracePeriod)
	defer cancel()

	co.mu.Lock()
	co.closing.Store(true)
	co.mu.Unlock()
	co.logger.Info("Shutting down coordinator")

	close(co.stopLoop)
	if co.started.Load() {
		<-co.loopDone
	}

	for _, brand := range co.buffer.Partitions() {
		brand := brand
		if err := co.pool.Go(func() { co.flush(brand, true) }); err != nil {
			co.logger.WithField("brand", brand).WithError(err).Warn("Failed to submit drain task")
		}
	}
	stopped := co.pool.Stop()

	inlineDone := make(chan struct{})
	go func() {
		co.inline.Wait()
		close(inlineDone)
	}()

	for _, done := range []<-chan struct{}{stopped.Done(), inlineDone} {
		select {
		case <-done:
		case <-graceCtx.Done():
			return co.forceStop(start)
		}
	}
	if err := co.dispatcher.Wait(graceCtx); err != nil {
		return co.forceStop(start)
	}

	co.cancelSend()
	co.logger.WithField("took", co.clock.Since(start)).Info("Coordinator shut down cleanly")
	co.recorder.ShutdownFinished(ShutdownClean)
	co.eventBus.Publish(events.TopicShutdown, ShutdownClean)
	return nil
}

func (co *Coordinator) forceStop(start time.Time) error {
	co.cancelSend()
	abandoned := co.dispatcher.Abandon()

	left := 0
	for _, brand := range co.buffer.Partitions() {
		left += co.buffer.Size(brand)
	}
	co.logger.WithFields(logrus.Fields{
		"took":           co.clock.Since(start),
		"grace_period":   co.gracePeriod,
		"abandoned":      abandoned,
		"left_in_buffer": left,
	}).Warn("Shutdown grace period elapsed, in-flight sends abandoned")

	co.recorder.ShutdownFinished(ShutdownTimeout)
	co.eventBus.Publish(events.TopicShutdown, ShutdownTimeout)
	return ErrShutdownTimeout
}
