package card

import (
	"fmt"
	"strings"
)

// numberRule is the format check for one brand.
type numberRule struct {
	name   string
	prefix string
	minLen int
	maxLen int
}

var rules = map[Brand]numberRule{
	BrandVisa:       {name: "Visa", prefix: "4", minLen: 16, maxLen: 16},
	BrandMastercard: {name: "MasterCard", prefix: "5", minLen: 16, maxLen: 16},
	BrandAmex:       {name: "Amex", prefix: "3", minLen: 15, maxLen: 15},
	BrandOther:      {name: "Other", minLen: 12, maxLen: 19},
}

func ruleFor(b Brand) numberRule {
	return rules[b]
}

func (r numberRule) validate(n string) error {
	if n == "" {
		return fmt.Errorf("%s: number is required", r.name)
	}
	for _, c := range n {
		if c < '0' || c > '9' {
			return fmt.Errorf("%s: number must contain only digits", r.name)
		}
	}
	if r.prefix != "" && !strings.HasPrefix(n, r.prefix) {
		return fmt.Errorf("%s: number must start with %s", r.name, r.prefix)
	}
	if len(n) < r.minLen || len(n) > r.maxLen {
		if r.minLen == r.maxLen {
			return fmt.Errorf("%s: invalid length (expected %d digits)", r.name, r.minLen)
		}
		return fmt.Errorf("%s: invalid length (expected %d to %d digits)", r.name, r.minLen, r.maxLen)
	}
	return nil
}

// Normalize strips the spaces and dashes people type into card numbers.
func Normalize(number string) string {
	return strings.NewReplacer(" ", "", "-", "", "\t", "").Replace(number)
}
