package events

import (
	"sync"
)

// EventBus implements the Bus interface providing a concurrent-safe
// publish-subscribe message bus.
type EventBus struct {
	// subscribers maps topics to a set of subscriber channels
	subscribers map[Topic]map[chan interface{}]struct{}

	// subscribersMu protects concurrent access to the subscribers map
	// This mutex must be held when modifying the map or its contents
	subscribersMu sync.RWMutex

	// channelBufferSize determines the buffer size for new subscriber channels
	// A buffered channel helps prevent blocking when publishing events
	channelBufferSize int

	// closed is set by Shutdown; later Subscribe calls get a closed channel
	closed bool
}

var _ Bus = (*EventBus)(nil)

const defaultChannelBufferSize = 100

// NewEventBus creates a new EventBus instance whose subscriber channels buffer
// up to 100 events.
func NewEventBus() *EventBus {
	return NewEventBusWithBuffer(defaultChannelBufferSize)
}

// NewEventBusWithBuffer creates an EventBus with the given per-subscriber buffer size.
func NewEventBusWithBuffer(size int) *EventBus {
	if size < 0 {
		size = 0
	}
	return &EventBus{
		subscribers:       make(map[Topic]map[chan interface{}]struct{}),
		channelBufferSize: size,
	}
}

// Publish sends an event to all subscribers of the specified topic.
// This method is concurrent-safe and non-blocking.
//
// Parameters:
//   - topic: The topic to publish to
//   - event: The event data to send to subscribers
//
// If a subscriber's channel is full, the event will be dropped for that subscriber.
func (b *EventBus) Publish(topic Topic, event interface{}) {
	b.subscribersMu.RLock()
	defer b.subscribersMu.RUnlock()

	// Get the subscriber channels for this topic
	subscribers, exists := b.subscribers[topic]
	if !exists {
		return // No subscribers for this topic
	}

	// Send to each subscriber non-blocking
	for subscriberCh := range subscribers {
		select {
		case subscriberCh <- event:
			// Event sent successfully
		default:
			// Channel full, drop event for this subscriber
		}
	}
}

// Subscribe creates a new subscription to the specified topic.
// Returns a channel that will receive events published to the topic.
//
// Parameters:
//   - topic: The topic to subscribe to
//
// Returns:
//   - A receive-only channel for events
//
// The returned channel is buffered with size channelBufferSize.
// The subscriber should always call Unsubscribe when done to prevent resource leaks.
func (b *EventBus) Subscribe(topic Topic) <-chan interface{} {
	b.subscribersMu.Lock()
	defer b.subscribersMu.Unlock()

	// Create a new buffered channel for this subscriber
	ch := make(chan interface{}, b.channelBufferSize)
	if b.closed {
		close(ch)
		return ch
	}

	// Initialize topic subscribers map if it doesn't exist
	if b.subscribers[topic] == nil {
		b.subscribers[topic] = make(map[chan interface{}]struct{})
	}

	// Add the channel to the subscribers map
	b.subscribers[topic][ch] = struct{}{}

	return ch
}

// Unsubscribe removes a subscriber from the specified topic.
// This method is concurrent-safe and idempotent.
//
// Parameters:
//   - topic: The topic to unsubscribe from
//   - ch: The channel to unsubscribe (receive-only channel from Subscribe)
//
// Usage example:
//
//	ch := eventBus.Subscribe(events.TopicBatchCompleted)
//	defer eventBus.Unsubscribe(events.TopicBatchCompleted, ch)
func (b *EventBus) Unsubscribe(topic Topic, ch <-chan interface{}) {
	b.subscribersMu.Lock()
	defer b.subscribersMu.Unlock()

	subscribers, exists := b.subscribers[topic]
	if !exists {
		return
	}

	// Find and remove the channel from subscribers
	for subCh := range subscribers {
		// Compare channel pointers
		if ch == subCh {
			delete(subscribers, subCh)
			close(subCh)
			break
		}
	}

	// Clean up topic if no more subscribers
	if len(subscribers) == 0 {
		delete(b.subscribers, topic)
	}
}

// Shutdown gracefully shuts down the event bus.
// It closes all subscriber channels and cleans up resources. It is safe to
// call more than once.
func (b *EventBus) Shutdown() {
	b.subscribersMu.Lock()
	defer b.subscribersMu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	// Close all subscriber channels
	for topic, subscribers := range b.subscribers {
		for ch := range subscribers {
			close(ch)
		}
		delete(b.subscribers, topic)
	}
}

// TopicSubscriberCount returns the number of subscribers for a topic.
// This method is useful for testing and monitoring.
func (b *EventBus) TopicSubscriberCount(topic Topic) int {
	b.subscribersMu.RLock()
	defer b.subscribersMu.RUnlock()

	return len(b.subscribers[topic])
}
