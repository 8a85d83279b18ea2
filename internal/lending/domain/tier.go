package lending

import "strings"

// Tier is the capability class used to match requesters with devices.
type Tier string

const (
	TierHigh Tier = "HIGH"
	TierLow  Tier = "LOW"
)

// Tiers lists every tier in a stable order.
func Tiers() []Tier {
	return []Tier{TierHigh, TierLow}
}

// IsValid checks if the tier is one of the supported values.
func (t Tier) IsValid() bool {
	switch t {
	case TierHigh, TierLow:
		return true
	default:
		return false
	}
}

// ParseTier normalizes a tier string (case-insensitive).
func ParseTier(value string) (Tier, error) {
	tier := Tier(strings.ToUpper(strings.TrimSpace(value)))
	if !tier.IsValid() {
		return "", ErrInvalidTier
	}
	return tier, nil
}

func (t Tier) String() string { return string(t) }
