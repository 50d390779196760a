package notification

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	TypeStreakWarning   NotificationType = "streak_warning"
	TypeStreakMilestone NotificationType = "streak_milestone"
	TypeReactionBatch   NotificationType = "reaction_batch"
)

type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityNormal NotificationPriority = "normal"
	PriorityHigh   NotificationPriority = "high"
)

type Notification struct {
	ID        uuid.UUID        `json:"id" db:"id"`
	UserID    string           `json:"user_id" db:"user_id"`
	Type      NotificationType `json:"type" db:"type"`
	Title     string           `json:"title" db:"title"`
	Body      string           `json:"body" db:"body"`
	IsRead    bool             `json:"is_read" db:"is_read"`
	Data      map[string]any   `json:"data" db:"data"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}

type DeviceToken struct {
	Token    string `json:"token" db:"token"`
	Platform string `json:"platform" db:"platform"`
}

// StreakPrefs is what the sweeper needs to know about one user before
// pushing a warning: who they are, where to reach them, and whether
// they opted in. StreakWarnings is a dedicated flag, separate from the
// general push toggle.
type StreakPrefs struct {
	DisplayName    string  `json:"display_name"`
	PushToken      *string `json:"push_token"`
	PushEnabled    bool    `json:"push_enabled"`
	StreakWarnings bool    `json:"streak_warnings"`
}

type UpdatePreferencesRequest struct {
	PushEnabled    *bool `json:"push_enabled,omitempty"`
	StreakWarnings *bool `json:"streak_warnings,omitempty"`
}

type RegisterDeviceRequest struct {
	Token    string `json:"token" validate:"required"`
	Platform string `json:"platform" validate:"required,oneof=ios android web"`
}
