package application

import "time"

const maxCacheAgeInDays = 7

// CachePolicy decides whether a cached timestamp is still fresh.
// The age limit is applied with calendar arithmetic in the policy's location,
// so a day that spans a daylight-saving change still counts as one day.
type CachePolicy struct {
	location *time.Location
}

// NewCachePolicy returns a policy evaluated in loc; nil means time.Local.
func NewCachePolicy(loc *time.Location) CachePolicy {
	if loc == nil {
		loc = time.Local
	}
	return CachePolicy{location: loc}
}

// Validate reports whether a record inserted at insertedAt is still valid at now.
// The boundary itself is already expired.
func (p CachePolicy) Validate(insertedAt, now time.Time) bool {
	loc := p.location
	if loc == nil {
		loc = time.Local
	}
	maxAge := insertedAt.In(loc).AddDate(0, 0, maxCacheAgeInDays)
	if !maxAge.After(insertedAt) {
		// The date arithmetic overflowed.
		return false
	}
	return now.Before(maxAge)
}
