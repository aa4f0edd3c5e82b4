// Package common provides shared utilities for divfolio
package common

import "time"

// Cache lifetimes for provider data
const (
	FreshnessQuote     = 30 * time.Minute // prices and dividends
	FreshnessReference = 24 * time.Hour   // fundamentals and exchange listings
)

// IsFresh returns true if the given timestamp is within the TTL as seen at now
func IsFresh(updated, now time.Time, ttl time.Duration) bool {
	if updated.IsZero() {
		return false
	}
	return now.Sub(updated) < ttl
}
