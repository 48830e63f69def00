package events

// Topic names a stream of events on the bus.
type Topic string

const (
	// TopicBatchCompleted carries a dispatcher.Summary once every send of a
	// batch has an outcome.
	TopicBatchCompleted Topic = "batch_completed"
	// TopicShutdown carries the shutdown result string when the coordinator stops.
	TopicShutdown Topic = "shutdown"
)

//go:generate mockgen -destination=mocks/mock_bus.go -package=mocks github.com/alejoacosta74/cardbatch/internal/events Bus

// Bus defines the interface for event bus operations
type Bus interface {
	// Publish sends an event to all subscribers of the specified topic
	Publish(topic Topic, event interface{})
	// Subscribe returns a channel that receives events for the specified topic
	Subscribe(topic Topic) <-chan interface{}
	// Unsubscribe removes a subscriber channel from the specified topic
	Unsubscribe(topic Topic, ch <-chan interface{})
}
