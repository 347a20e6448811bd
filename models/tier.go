package models

import "strings"

// Tier is the entitlement level a license was purchased at. The set is
// closed; anything else stored on a license row is treated as corrupt.
type Tier string

const (
	TierStartup    Tier = "startup"
	TierBusiness   Tier = "business"
	TierEnterprise Tier = "enterprise"
)

// UnlimitedDevelopers is the seat-count sentinel for enterprise licenses.
const UnlimitedDevelopers = -1

func ParseTier(s string) (Tier, bool) {
	switch Tier(strings.ToLower(s)) {
	case TierStartup:
		return TierStartup, true
	case TierBusiness:
		return TierBusiness, true
	case TierEnterprise:
		return TierEnterprise, true
	}
	return "", false
}

func (t Tier) Valid() bool {
	_, ok := ParseTier(string(t))
	return ok
}

func (t Tier) DisplayName() string {
	switch t {
	case TierStartup:
		return "Startup License"
	case TierBusiness:
		return "Business License"
	case TierEnterprise:
		return "Enterprise License"
	}
	return ""
}

func (t Tier) MaxDevelopers() int {
	switch t {
	case TierStartup:
		return 10
	case TierBusiness:
		return 50
	case TierEnterprise:
		return UnlimitedDevelopers
	}
	return 0
}

// Code is the fixed-width tier segment embedded in license keys.
func (t Tier) Code() string {
	upper := strings.ToUpper(string(t))
	if len(upper) > 4 {
		upper = upper[:4]
	}
	return upper
}
