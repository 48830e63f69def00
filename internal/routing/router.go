// Package routing maps a card brand to the Kafka topic its batches are sent to.
package routing

import (
	"sort"

	"github.com/alejoacosta74/cardbatch/internal/card"
)

// FallbackTopic receives every brand without a registered route.
const FallbackTopic = "cartoes-outros"

// Route binds a brand to a destination topic.
type Route struct {
	Brand card.Brand
	Topic string
}

// DefaultRoutes returns the built-in routing table. OTHER is deliberately
// absent so it resolves to FallbackTopic.
func DefaultRoutes() []Route {
	return []Route{
		{Brand: card.BrandVisa, Topic: "cartoes-visa"},
		{Brand: card.BrandMastercard, Topic: "cartoes-mastercard"},
		{Brand: card.BrandAmex, Topic: "cartoes-amex"},
	}
}

// Router is an immutable brand -> topic table built once at startup.
// It is safe for concurrent use.
type Router struct {
	routes map[card.Brand]string
}

// NewRouter builds a Router from routes. Later entries win over earlier ones
// for the same brand; entries with an empty topic are ignored.
func NewRouter(routes []Route) *Router {
	r := &Router{routes: make(map[card.Brand]string, len(routes))}
	for _, route := range routes {
		if route.Topic == "" {
			continue
		}
		r.routes[route.Brand] = route.Topic
	}
	return r
}

// Resolve returns the topic for brand, or FallbackTopic when none is registered.
func (r *Router) Resolve(brand card.Brand) string {
	if topic, ok := r.routes[brand]; ok {
		return topic
	}
	return FallbackTopic
}

// Topics returns every distinct destination the router can produce,
// including the fallback, sorted by name.
func (r *Router) Topics() []string {
	seen := map[string]struct{}{FallbackTopic: {}}
	for _, topic := range r.routes {
		seen[topic] = struct{}{}
	}
	topics := make([]string, 0, len(seen))
	for topic := range seen {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}
