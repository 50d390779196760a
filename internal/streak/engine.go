package streak

import "time"

// MutualThrottle is the rolling window within which a second mutual
// exchange does not count as a new day. It is measured from the last
// completed exchange, not from calendar-day boundaries.
const MutualThrottle = 24 * time.Hour

// Tier windows, keyed by the day count a completing exchange reaches.
func ExpiryWindow(dayCount int) time.Duration {
	switch {
	case dayCount >= 50:
		return 72 * time.Hour
	case dayCount >= 10:
		return 48 * time.Hour
	default:
		return 36 * time.Hour
	}
}

// Result is what Advance decided for one snap event.
type Result struct {
	Record *Record
	// Created is true when no document existed for the pair yet.
	Created bool
	// Mutual is true when this snap completed a mutual exchange and
	// the day count was incremented.
	Mutual bool
	// Partial is true when only the sender's pending slot (and
	// updatedAt) changed; UpdateField then names the slot to write.
	Partial     bool
	UpdateField string
}

// Advance computes the next record state for a snap from senderID at
// instant now. It is a pure function: callers run it inside a store
// transaction, and the store may call it again on conflict, so it must
// not carry state between invocations.
//
// rec is the current committed record, or nil when the pair has no
// document yet. Advance never mutates rec.
func Advance(rec *Record, a, b, senderID string, now time.Time) Result {
	if rec == nil {
		next := NewRecord(a, b, now)
		next.SetPending(senderID, now)
		return Result{Record: next, Created: true}
	}

	next := rec.Clone()
	next.UpdatedAt = now

	other := next.Other(senderID)
	pending := next.PendingFor(other)

	// No unmatched snap from the other side, or their snap cannot
	// complete a new day yet: record the sender's snap and nothing else.
	if pending == nil || withinThrottle(next.LastMutualAt, now) {
		next.SetPending(senderID, now)
		return Result{
			Record:      next,
			Partial:     true,
			UpdateField: next.PendingField(senderID),
		}
	}

	// Mutual exchange completes now.
	next.DayCount++
	next.LastSnapBy = PendingSnaps{}
	next.LastMutualAt = &now
	if next.DayCount == 1 {
		next.StreakStartedAt = &now
	}
	next.Warning = false
	next.WarningSentAt = nil

	expires := now.Add(ExpiryWindow(next.DayCount))
	warning := expires.Add(-WarningLead)
	next.ExpiresAt = &expires
	next.WarningAt = &warning

	return Result{Record: next, Mutual: true}
}

// withinThrottle reports whether now still falls inside the 24h window
// of the last mutual exchange. An absent lastMutualAt is treated as
// infinitely long ago.
func withinThrottle(lastMutualAt *time.Time, now time.Time) bool {
	if lastMutualAt == nil {
		return false
	}
	return now.Sub(*lastMutualAt) < MutualThrottle
}
