package kafka

import (
	"context"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

// saramaProducer implements the Producer interface using Sarama's AsyncProducer.
//
// Every ProducerMessage carries its Callback in Metadata. Two goroutines drain
// the Successes and Errors channels and hand each outcome back to the callback,
// so Send never waits for the broker.
type saramaProducer struct {
	producer sarama.AsyncProducer
	logger   *logrus.Entry

	mu     sync.RWMutex // guards closed against concurrent Send
	closed bool
	wg     sync.WaitGroup
}

// newSaramaConfig translates cfg into a Sarama configuration with the
// following characteristics:
//   - Successes and Errors are both returned, one outcome per message
//   - RequiredAcks, compression and retries follow cfg
//   - Flush.Frequency acts as the linger time of a partial batch
func newSaramaConfig(cfg Config) (*sarama.Config, error) {
	acks, err := saramaAcks(cfg.RequiredAcks)
	if err != nil {
		return nil, err
	}
	codec, err := saramaCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}

	sc := sarama.NewConfig()
	if cfg.ClientID != "" {
		sc.ClientID = cfg.ClientID
	}
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.RequiredAcks = acks
	sc.Producer.Compression = codec
	if cfg.MaxAttempts > 1 {
		sc.Producer.Retry.Max = cfg.MaxAttempts - 1
	}
	if cfg.Linger > 0 {
		sc.Producer.Flush.Frequency = cfg.Linger
	}
	if codec == sarama.CompressionZSTD {
		sc.Version = sarama.V2_1_0_0
	}

	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sarama config: %w", err)
	}
	return sc, nil
}

func newSaramaProducer(cfg Config) (Producer, error) {
	sc, err := newSaramaConfig(cfg)
	if err != nil {
		return nil, err
	}

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Sarama producer: %w", err)
	}
	return newSaramaProducerFrom(producer), nil
}

// newSaramaProducerFrom wraps an existing AsyncProducer and starts the
// goroutines that report outcomes.
func newSaramaProducerFrom(producer sarama.AsyncProducer) *saramaProducer {
	p := &saramaProducer{
		producer: producer,
		logger:   logrus.WithField("component", "kafka_sarama_producer"),
	}
	p.wg.Add(2)
	go p.handleSuccesses()
	go p.handleErrors()
	return p
}

// Send queues msg on the AsyncProducer input channel. It only blocks while the
// producer is backed up, and gives up when ctx is done.
func (p *saramaProducer) Send(ctx context.Context, msg Message, cb Callback) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}

	saramaMsg := &sarama.ProducerMessage{
		Topic:    msg.Topic,
		Value:    sarama.ByteEncoder(msg.Value),
		Metadata: cb,
	}
	if msg.Key != nil {
		saramaMsg.Key = sarama.ByteEncoder(msg.Key)
	}

	// Add headers if present
	if len(msg.Headers) > 0 {
		headers := make([]sarama.RecordHeader, 0, len(msg.Headers))
		for k, v := range msg.Headers {
			headers = append(headers, sarama.RecordHeader{
				Key:   []byte(k),
				Value: []byte(v),
			})
		}
		saramaMsg.Headers = headers
	}

	select {
	case p.producer.Input() <- saramaMsg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *saramaProducer) handleSuccesses() {
	defer p.wg.Done()
	for msg := range p.producer.Successes() {
		p.complete(msg, nil)
	}
}

func (p *saramaProducer) handleErrors() {
	defer p.wg.Done()
	for perr := range p.producer.Errors() {
		p.complete(perr.Msg, perr.Err)
	}
}

func (p *saramaProducer) complete(msg *sarama.ProducerMessage, err error) {
	if msg == nil {
		p.logger.WithError(err).Error("Producer error without message")
		return
	}
	cb, ok := msg.Metadata.(Callback)
	if !ok || cb == nil {
		p.logger.WithField("topic", msg.Topic).Warn("Producer outcome without callback")
		return
	}
	cb(Result{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Err:       err,
	})
}

// Close stops accepting messages, flushes what is buffered and waits until
// every outstanding message has been reported to its callback.
func (p *saramaProducer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.logger.Info("Closing sarama producer")
	p.producer.AsyncClose()
	p.wg.Wait()
	p.logger.Info("Sarama producer closed")
	return nil
}
