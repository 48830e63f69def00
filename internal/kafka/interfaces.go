package kafka

import (
	"context"
	"errors"
)

var (
	// ErrProducerClosed is returned by Send after Close, and reported for
	// messages still unacknowledged when a driver shuts down.
	ErrProducerClosed = errors.New("kafka producer closed")
	// ErrCircuitOpen is returned by a guarded producer while its breaker is open.
	ErrCircuitOpen = errors.New("kafka circuit breaker open")
)

// Message represents a message to be sent to Kafka
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// Result is the broker outcome of one message. A nil Err means the broker
// acknowledged the write at Partition/Offset.
type Result struct {
	Topic     string
	Partition int32
	Offset    int64
	Err       error
}

// OK reports whether the send succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Callback receives the asynchronous outcome of a Send. Drivers invoke it
// from their own goroutines.
type Callback func(Result)

//go:generate mockgen -destination=mocks/mock_producer.go -package=mocks github.com/alejoacosta74/cardbatch/internal/kafka Producer

// Producer is the broker client used by the dispatcher.
//
// Send queues msg and returns without waiting for the broker. A non-nil error
// means the message was not queued and cb will not be called; otherwise cb is
// called once the outcome is known. Send is safe for concurrent use.
type Producer interface {
	Send(ctx context.Context, msg Message, cb Callback) error
	Close() error
}
