package card

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Brand identifies the card network a registration belongs to. It is the
// partition key of the registration buffer and the routing key for topics.
type Brand int

// Predefined brands. BrandUnknown is the zero value and is never a valid
// partition; BrandOther is the explicit bucket for cards outside the big three.
const (
	BrandUnknown Brand = iota
	BrandVisa
	BrandMastercard
	BrandAmex
	BrandOther
)

var brandNames = map[Brand]string{
	BrandVisa:       "VISA",
	BrandMastercard: "MASTERCARD",
	BrandAmex:       "AMEX",
	BrandOther:      "OTHER",
}

// Brands returns every valid brand in a fixed order.
func Brands() []Brand {
	return []Brand{BrandVisa, BrandMastercard, BrandAmex, BrandOther}
}

// Valid reports whether b is part of the closed brand enumeration.
func (b Brand) Valid() bool {
	_, ok := brandNames[b]
	return ok
}

func (b Brand) String() string {
	if name, ok := brandNames[b]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(b))
}

// ParseBrand converts a brand name into a Brand. Matching is case-insensitive
// and accepts AMERICAN_EXPRESS as an alias for AMEX.
func ParseBrand(s string) (Brand, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "AMERICAN_EXPRESS" {
		return BrandAmex, nil
	}
	for b, n := range brandNames {
		if n == name {
			return b, nil
		}
	}
	return BrandUnknown, fmt.Errorf("%w: unknown brand %q", ErrInvalidCard, s)
}

func (b Brand) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

func (b *Brand) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: brand must be a string", ErrInvalidCard)
	}
	parsed, err := ParseBrand(s)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}
