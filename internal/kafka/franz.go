package kafka

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/twmb/franz-go/pkg/kgo"
)

const franzFlushTimeout = 10 * time.Second

// franzProducer implements Producer with a franz-go client. Produce already
// takes a per-record promise, which maps directly onto Callback.
type franzProducer struct {
	client *kgo.Client
	closed atomic.Bool
	logger *logrus.Entry
}

func newFranzProducer(cfg Config) (Producer, error) {
	acks, err := franzAcks(cfg.RequiredAcks)
	if err != nil {
		return nil, err
	}
	codec, err := franzCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.RequiredAcks(acks),
		kgo.ProducerBatchCompression(codec),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}
	// idempotent writes require acks=all
	if normalized, _ := normalizeAcks(cfg.RequiredAcks); normalized != "all" {
		opts = append(opts, kgo.DisableIdempotentWrite())
	}
	if cfg.MaxAttempts > 0 {
		opts = append(opts, kgo.RecordRetries(cfg.MaxAttempts))
	}
	if cfg.Linger > 0 {
		opts = append(opts, kgo.ProducerLinger(cfg.Linger))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	return &franzProducer{
		client: client,
		logger: logrus.WithField("component", "kafka_franz_producer"),
	}, nil
}

func (p *franzProducer) Send(ctx context.Context, msg Message, cb Callback) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}

	rec := &kgo.Record{
		Topic: msg.Topic,
		Key:   msg.Key,
		Value: msg.Value,
	}
	for k, v := range msg.Headers {
		rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}

	p.client.Produce(ctx, rec, func(r *kgo.Record, err error) {
		if errors.Is(err, kgo.ErrClientClosed) {
			err = ErrProducerClosed
		}
		cb(Result{
			Topic:     r.Topic,
			Partition: r.Partition,
			Offset:    r.Offset,
			Err:       err,
		})
	})
	return nil
}

func (p *franzProducer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.logger.Info("Closing franz-go client")

	ctx, cancel := context.WithTimeout(context.Background(), franzFlushTimeout)
	defer cancel()
	err := p.client.Flush(ctx)
	p.client.Close()
	return err
}
