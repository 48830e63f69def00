package api

import "github.com/alejoacosta74/cardbatch/internal/card"

//go:generate mockgen -destination=mocks/mock_registry.go -package=mocks github.com/alejoacosta74/cardbatch/internal/api Registry

// Registry is the part of the coordinator the HTTP API drives.
type Registry interface {
	// Register buffers a card for dispatch
	Register(c card.Card) error
	// Pending returns the cards not yet drained into a batch
	Pending() []card.Card
	// InFlight returns the number of batches awaiting send outcomes
	InFlight() int
	// FlushAll schedules a flush of every brand
	FlushAll() int
}
