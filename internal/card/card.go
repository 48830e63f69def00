// Package card holds the credit-card registration record and the per-brand
// number rules applied when a record is created.
package card

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidCard is wrapped by every validation failure in this package.
var ErrInvalidCard = errors.New("invalid card")

// Card is an immutable registration record. It is created once by New and
// passed around by value afterwards.
type Card struct {
	ID         string    `json:"id"`
	HolderName string    `json:"holderName"`
	Number     string    `json:"number"`
	Brand      Brand     `json:"brand"`
	CreatedAt  time.Time `json:"createdAt"`
}

// New validates and normalizes the inputs and returns a Card with a fresh id.
func New(holderName, number string, brand Brand) (Card, error) {
	holder := strings.TrimSpace(holderName)
	if holder == "" {
		return Card{}, &FieldError{Field: "holderName", Reason: "holder name is required"}
	}
	if !brand.Valid() {
		return Card{}, &FieldError{Field: "brand", Reason: fmt.Sprintf("unknown brand %s", brand)}
	}

	normalized := Normalize(number)
	if err := ruleFor(brand).validate(normalized); err != nil {
		return Card{}, &FieldError{Field: "number", Reason: err.Error()}
	}

	return Card{
		ID:         uuid.NewString(),
		HolderName: holder,
		Number:     normalized,
		Brand:      brand,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// Masked returns the number with every digit but the last four hidden.
func (c Card) Masked() string {
	if len(c.Number) <= 4 {
		return strings.Repeat("*", len(c.Number))
	}
	return strings.Repeat("*", len(c.Number)-4) + c.Number[len(c.Number)-4:]
}

// FieldError describes a validation failure on a single input field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error { return ErrInvalidCard }
