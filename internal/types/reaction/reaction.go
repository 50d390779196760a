package reaction

import "time"

// Batch accumulates rapid-fire reactions from one actor on one subject
// so a burst produces a single aggregated notification instead of one
// push per tap. Keyed by BatchKey; merged transactionally.
type Batch struct {
	SubjectID string    `firestore:"subjectId" json:"subjectId"`
	ActorID   string    `firestore:"actorId" json:"actorId"`
	Count     int       `firestore:"count" json:"count"`
	CreatedAt time.Time `firestore:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt" json:"updatedAt"`
}

func BatchKey(subjectID, actorID string) string {
	return subjectID + "_" + actorID
}
