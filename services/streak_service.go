package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"snapLinkAPI/internal/clock"
	"snapLinkAPI/internal/store"
	"snapLinkAPI/internal/streak"
	"snapLinkAPI/internal/types/notification"
)

// MessageKindSnap is the only message kind that touches streak state.
const MessageKindSnap = "snap"

// Milestone day counts that earn both participants a push.
var streakMilestones = map[int]bool{10: true, 50: true, 100: true}

// MessageEvent is the payload delivered for every newly created
// conversation message.
type MessageEvent struct {
	SenderID       string    `json:"senderId"`
	Kind           string    `json:"kind"`
	CreatedAt      time.Time `json:"createdAt"`
	ConversationID string    `json:"conversationId"`
	Participants   []string  `json:"conversationParticipants"`
}

// PreferenceLookup is the slice of PreferenceService the streak paths
// consume.
type PreferenceLookup interface {
	GetStreakPrefs(ctx context.Context, userID string) (*notification.StreakPrefs, error)
}

// Pusher is the slice of NotificationService the streak paths consume.
type Pusher interface {
	EnqueuePush(job *PushJob)
}

// StreakService runs the update engine against the streak store, once
// per snap event. Streak tracking is an enhancement to messaging, not
// part of it: nothing in here may fail the message-creation flow, so
// every error is logged and swallowed.
type StreakService struct {
	store    store.StreakStore
	clock    clock.Clock
	prefs    PreferenceLookup
	notifier Pusher
}

func NewStreakService(st store.StreakStore, clk clock.Clock, prefs PreferenceLookup, notifier Pusher) *StreakService {
	return &StreakService{
		store:    st,
		clock:    clk,
		prefs:    prefs,
		notifier: notifier,
	}
}

// HandleMessageCreated consumes one message event. Non-snap kinds
// return before any transaction is opened.
func (s *StreakService) HandleMessageCreated(ctx context.Context, ev *MessageEvent) {
	if ev.Kind != MessageKindSnap {
		return
	}

	a, b, err := pairFromEvent(ev)
	if err != nil {
		log.Printf("Streak: dropping snap event: %v", err)
		streakSnapsTotal.WithLabelValues("malformed").Inc()
		return
	}

	now := ev.CreatedAt
	if now.IsZero() {
		now = s.clock.Now()
	}

	pairID := streak.PairID(a, b)

	// The store may re-invoke this function on conflict; everything in
	// it recomputes from the transaction's own read.
	var result streak.Result
	err = s.store.RunTransaction(ctx, pairID, func(tx store.StreakTx) error {
		rec, err := tx.Get()
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		result = streak.Advance(rec, a, b, ev.SenderID, now)
		if result.Partial {
			return tx.Update(
				store.Update{Path: result.UpdateField, Value: now},
				store.Update{Path: streak.FieldUpdatedAt, Value: now},
			)
		}
		return tx.Set(result.Record)
	})
	if err != nil {
		log.Printf("Streak: transaction failed for pair %s: %v", pairID, err)
		streakEngineFailures.Inc()
		return
	}

	switch {
	case result.Mutual:
		streakSnapsTotal.WithLabelValues("mutual").Inc()
	case result.Created:
		streakSnapsTotal.WithLabelValues("created").Inc()
	default:
		streakSnapsTotal.WithLabelValues("one_sided").Inc()
	}

	if result.Mutual && streakMilestones[result.Record.DayCount] {
		s.sendMilestonePushes(ctx, result.Record, ev.ConversationID)
	}
}

func pairFromEvent(ev *MessageEvent) (string, string, error) {
	if len(ev.Participants) != 2 {
		return "", "", fmt.Errorf("expected 2 participants, got %d", len(ev.Participants))
	}
	a, b := ev.Participants[0], ev.Participants[1]
	if a == b {
		return "", "", fmt.Errorf("participants are not distinct")
	}
	if ev.SenderID != a && ev.SenderID != b {
		return "", "", fmt.Errorf("sender %s is not a participant", ev.SenderID)
	}
	return a, b, nil
}

// sendMilestonePushes notifies both sides of a milestone day count.
// Fire and forget, after the transaction has committed.
func (s *StreakService) sendMilestonePushes(ctx context.Context, rec *streak.Record, conversationID string) {
	if s.prefs == nil || s.notifier == nil {
		return
	}

	for _, userID := range rec.Participants {
		prefs, err := s.prefs.GetStreakPrefs(ctx, userID)
		if err != nil {
			log.Printf("Streak: milestone prefs lookup failed for %s: %v", userID, err)
			continue
		}
		if !prefs.PushEnabled || prefs.PushToken == nil {
			continue
		}

		other := rec.Other(userID)
		otherName := other
		if otherPrefs, err := s.prefs.GetStreakPrefs(ctx, other); err == nil {
			otherName = otherPrefs.DisplayName
		}

		s.notifier.EnqueuePush(&PushJob{
			UserID: userID,
			Token:  *prefs.PushToken,
			Type:   notification.TypeStreakMilestone,
			Title:  fmt.Sprintf("%d day streak!", rec.DayCount),
			Body:   fmt.Sprintf("You and %s have been snapping for %d days straight", otherName, rec.DayCount),
			Data: map[string]any{
				"conversationId": conversationID,
				"dayCount":       rec.DayCount,
			},
		})
	}
}
