package services

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"snapLinkAPI/internal/types/notification"
)

// PreferenceService answers the one question the streak paths have
// about a user: can we push to them, and did they opt into streak
// warnings. It also backs the preference endpoints.
type PreferenceService struct {
	db *pgxpool.Pool
}

func NewPreferenceService(db *pgxpool.Pool) *PreferenceService {
	return &PreferenceService{db: db}
}

// GetStreakPrefs returns the user's display name, their most recently
// registered push token (nil when none) and the two notification
// flags. Missing preference rows degrade to defaults rather than
// erroring: a user with no row has push disabled.
func (s *PreferenceService) GetStreakPrefs(ctx context.Context, userID string) (*notification.StreakPrefs, error) {
	query := `
		SELECT
			u.display_name,
			COALESCE(p.push_enabled, false) AS push_enabled,
			COALESCE(p.streak_warnings, true) AS streak_warnings,
			(
				SELECT dt.token FROM device_tokens dt
				WHERE dt.user_id = u.id
				ORDER BY dt.registered_at DESC
				LIMIT 1
			) AS push_token
		FROM users u
		LEFT JOIN notification_preferences p ON p.user_id = u.id
		WHERE u.id = $1
	`

	prefs := &notification.StreakPrefs{}
	err := s.db.QueryRow(ctx, query, userID).Scan(
		&prefs.DisplayName,
		&prefs.PushEnabled,
		&prefs.StreakWarnings,
		&prefs.PushToken,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load streak prefs for %s: %w", userID, err)
	}
	return prefs, nil
}

func (s *PreferenceService) UpdatePreferences(ctx context.Context, userID string, req *notification.UpdatePreferencesRequest) error {
	query := `
		INSERT INTO notification_preferences (user_id, push_enabled, streak_warnings, updated_at)
		VALUES ($1, COALESCE($2, false), COALESCE($3, true), NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			push_enabled = COALESCE($2, notification_preferences.push_enabled),
			streak_warnings = COALESCE($3, notification_preferences.streak_warnings),
			updated_at = NOW()
	`

	_, err := s.db.Exec(ctx, query, userID, req.PushEnabled, req.StreakWarnings)
	if err != nil {
		return fmt.Errorf("failed to update preferences for %s: %w", userID, err)
	}
	return nil
}

func (s *PreferenceService) RegisterDevice(ctx context.Context, userID string, req *notification.RegisterDeviceRequest) error {
	query := `
		INSERT INTO device_tokens (user_id, token, platform, registered_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (token) DO UPDATE SET
			user_id = $1,
			platform = $3,
			registered_at = NOW()
	`

	_, err := s.db.Exec(ctx, query, userID, req.Token, req.Platform)
	if err != nil {
		return fmt.Errorf("failed to register device for %s: %w", userID, err)
	}
	return nil
}
