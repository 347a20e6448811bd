package models

import (
	"strings"
	"time"
)

// BillingPeriod is the cadence a subscription renews at, which governs
// how far the license expiry is advanced per renewal.
type BillingPeriod string

const (
	BillingMonthly BillingPeriod = "monthly"
	BillingAnnual  BillingPeriod = "annual"
)

func ParseBillingPeriod(s string) (BillingPeriod, bool) {
	switch BillingPeriod(strings.ToLower(s)) {
	case BillingMonthly:
		return BillingMonthly, true
	case BillingAnnual:
		return BillingAnnual, true
	}
	return "", false
}

func (p BillingPeriod) Valid() bool {
	_, ok := ParseBillingPeriod(string(p))
	return ok
}

// Advance moves t forward by one billing period.
func (p BillingPeriod) Advance(t time.Time) time.Time {
	if p == BillingMonthly {
		return t.AddDate(0, 1, 0)
	}
	return t.AddDate(1, 0, 0)
}
