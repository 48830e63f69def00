package kafka

import (
	"context"
	"fmt"

	"github.com/alejoacosta74/cardbatch/internal/circuitbreaker"
)

// guardedProducer short-circuits Send while the breaker is open and feeds
// every broker outcome back into it.
type guardedProducer struct {
	Producer
	breaker *circuitbreaker.CircuitBreaker
}

// WithCircuitBreaker wraps p so that a failing cluster is not hammered with
// sends. Rejected messages fail synchronously with ErrCircuitOpen.
func WithCircuitBreaker(p Producer, cb *circuitbreaker.CircuitBreaker) Producer {
	return &guardedProducer{Producer: p, breaker: cb}
}

func (g *guardedProducer) Send(ctx context.Context, msg Message, cb Callback) error {
	if !g.breaker.AllowRequest() {
		return fmt.Errorf("%w: %v", ErrCircuitOpen, g.breaker.LastError())
	}
	err := g.Producer.Send(ctx, msg, func(res Result) {
		g.breaker.RecordResult(res.Err)
		cb(res)
	})
	if err != nil {
		g.breaker.RecordResult(err)
	}
	return err
}
