package kafka

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// dispatchIDHeader correlates a kafka-go completion with the Send that queued it.
const dispatchIDHeader = "cardbatch-dispatch-id"

// kafkaGoProducer implements Producer on an asynchronous kafka-go Writer.
// The Writer reports completions per written batch, so every message carries
// a dispatch id header used to find its callback again.
type kafkaGoProducer struct {
	writer  *kafkago.Writer
	pending sync.Map // dispatch id -> Callback
	closed  atomic.Bool
	logger  *logrus.Entry
}

func newKafkaGoProducer(cfg Config) (Producer, error) {
	acks, err := kafkaGoAcks(cfg.RequiredAcks)
	if err != nil {
		return nil, err
	}
	codec, err := kafkaGoCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}

	p := &kafkaGoProducer{
		logger: logrus.WithField("component", "kafka_kafkago_producer"),
	}
	p.writer = &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Balancer:     &kafkago.Hash{},
		RequiredAcks: acks,
		Compression:  codec,
		Async:        true,
		Completion:   p.complete,
	}
	if cfg.MaxAttempts > 0 {
		p.writer.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.Linger > 0 {
		p.writer.BatchTimeout = cfg.Linger
	}
	return p, nil
}

func (p *kafkaGoProducer) Send(ctx context.Context, msg Message, cb Callback) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}

	id := uuid.NewString()
	headers := make([]kafkago.Header, 0, len(msg.Headers)+1)
	headers = append(headers, kafkago.Header{Key: dispatchIDHeader, Value: []byte(id)})
	for k, v := range msg.Headers {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(v)})
	}

	p.pending.Store(id, cb)
	err := p.writer.WriteMessages(ctx, kafkago.Message{
		Topic:   msg.Topic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	})
	if err != nil {
		p.pending.Delete(id)
		return err
	}
	return nil
}

func (p *kafkaGoProducer) complete(messages []kafkago.Message, err error) {
	for _, m := range messages {
		id := headerValue(m.Headers, dispatchIDHeader)
		v, ok := p.pending.LoadAndDelete(id)
		if !ok {
			p.logger.WithField("topic", m.Topic).Warn("Completion for unknown message")
			continue
		}
		v.(Callback)(Result{
			Topic:     m.Topic,
			Partition: int32(m.Partition),
			Offset:    m.Offset,
			Err:       err,
		})
	}
}

// Close flushes the writer. Messages the writer never reported are failed
// with ErrProducerClosed so no callback is left waiting.
func (p *kafkaGoProducer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.logger.Info("Closing kafka-go writer")
	err := p.writer.Close()

	p.pending.Range(func(key, v any) bool {
		if _, ok := p.pending.LoadAndDelete(key); ok {
			v.(Callback)(Result{Err: ErrProducerClosed})
		}
		return true
	})
	return err
}

func headerValue(headers []kafkago.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
