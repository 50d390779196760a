package streak

import (
	"strings"
	"time"
)

// WarningLead is how long before expiry the one-time warning fires.
const WarningLead = 4 * time.Hour

// PendingSnaps holds each participant's last unmatched snap instant.
// The two slots follow the canonical pair order: First belongs to the
// lexicographically smaller participant id. A nil slot means that side
// has no snap waiting to be matched.
type PendingSnaps struct {
	First  *time.Time `firestore:"first" json:"first,omitempty"`
	Second *time.Time `firestore:"second" json:"second,omitempty"`
}

// Record is the streak document for one unordered pair of users.
// There is exactly one per pair, keyed by PairID, and it is never
// deleted: an expired streak is reset in place.
type Record struct {
	Participants    []string     `firestore:"participants" json:"participants"`
	DayCount        int          `firestore:"dayCount" json:"dayCount"`
	LastSnapBy      PendingSnaps `firestore:"lastSnapBy" json:"lastSnapBy"`
	LastMutualAt    *time.Time   `firestore:"lastMutualAt" json:"lastMutualAt,omitempty"`
	StreakStartedAt *time.Time   `firestore:"streakStartedAt" json:"streakStartedAt,omitempty"`
	ExpiresAt       *time.Time   `firestore:"expiresAt" json:"expiresAt,omitempty"`
	WarningAt       *time.Time   `firestore:"warningAt" json:"warningAt,omitempty"`
	Warning         bool         `firestore:"warning" json:"warning"`
	WarningSentAt   *time.Time   `firestore:"warningSentAt" json:"warningSentAt,omitempty"`
	UpdatedAt       time.Time    `firestore:"updatedAt" json:"updatedAt"`
}

// Field paths for partial updates against the store.
const (
	FieldPendingFirst  = "lastSnapBy.first"
	FieldPendingSecond = "lastSnapBy.second"
	FieldUpdatedAt     = "updatedAt"
)

// CanonicalPair returns the two ids in canonical (lexicographic) order.
func CanonicalPair(a, b string) (string, string) {
	if strings.Compare(a, b) > 0 {
		return b, a
	}
	return a, b
}

// PairID derives the stable record key for an unordered pair.
func PairID(a, b string) string {
	first, second := CanonicalPair(a, b)
	return first + "_" + second
}

// NewRecord creates the initial document for a pair that has never
// streaked. The day count stays at zero until a mutual exchange.
func NewRecord(a, b string, now time.Time) *Record {
	first, second := CanonicalPair(a, b)
	return &Record{
		Participants: []string{first, second},
		UpdatedAt:    now,
	}
}

// PendingFor returns the unmatched snap instant for the given participant.
func (r *Record) PendingFor(userID string) *time.Time {
	if len(r.Participants) > 0 && r.Participants[0] == userID {
		return r.LastSnapBy.First
	}
	return r.LastSnapBy.Second
}

// SetPending stamps the participant's slot with their latest snap instant.
func (r *Record) SetPending(userID string, t time.Time) {
	if len(r.Participants) > 0 && r.Participants[0] == userID {
		r.LastSnapBy.First = &t
		return
	}
	r.LastSnapBy.Second = &t
}

// PendingField returns the update path for the participant's slot.
func (r *Record) PendingField(userID string) string {
	if len(r.Participants) > 0 && r.Participants[0] == userID {
		return FieldPendingFirst
	}
	return FieldPendingSecond
}

// Other returns the participant that is not userID, or "" if userID is
// not part of the pair.
func (r *Record) Other(userID string) string {
	for i, p := range r.Participants {
		if p == userID {
			return r.Participants[len(r.Participants)-1-i]
		}
	}
	return ""
}

// Reset writes the zero state in place, clearing counters, windows and
// any stale pending snaps. Applying it twice yields the same state.
func (r *Record) Reset(now time.Time) {
	r.DayCount = 0
	r.LastSnapBy = PendingSnaps{}
	r.LastMutualAt = nil
	r.StreakStartedAt = nil
	r.ExpiresAt = nil
	r.WarningAt = nil
	r.Warning = false
	r.WarningSentAt = nil
	r.UpdatedAt = now
}

// Clone returns a deep copy so store implementations can hand out
// records without aliasing their internal state.
func (r *Record) Clone() *Record {
	c := *r
	c.Participants = append([]string(nil), r.Participants...)
	c.LastSnapBy.First = copyTime(r.LastSnapBy.First)
	c.LastSnapBy.Second = copyTime(r.LastSnapBy.Second)
	c.LastMutualAt = copyTime(r.LastMutualAt)
	c.StreakStartedAt = copyTime(r.StreakStartedAt)
	c.ExpiresAt = copyTime(r.ExpiresAt)
	c.WarningAt = copyTime(r.WarningAt)
	c.WarningSentAt = copyTime(r.WarningSentAt)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
