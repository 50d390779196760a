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

// sweepPageSize bounds the work of a single sweep tick. Records left
// over are picked up on the next tick.
const sweepPageSize = 200

// StreakSweeper is the periodic batch job behind streak warnings and
// expiries. It runs concurrently with live engine writes and relies on
// the store's per-record transactions plus idempotent transitions
// rather than any exclusivity between its query and its update.
type StreakSweeper struct {
	store    store.StreakStore
	clock    clock.Clock
	prefs    PreferenceLookup
	notifier Pusher
	stopChan chan struct{}
}

func NewStreakSweeper(st store.StreakStore, clk clock.Clock, prefs PreferenceLookup, notifier Pusher) *StreakSweeper {
	return &StreakSweeper{
		store:    st,
		clock:    clk,
		prefs:    prefs,
		notifier: notifier,
		stopChan: make(chan struct{}),
	}
}

// Start runs Sweep on a fixed cadence until Stop. The interval is a
// deployment parameter, not a correctness constraint.
func (s *StreakSweeper) Start(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep(context.Background())
			case <-s.stopChan:
				return
			}
		}
	}()
}

func (s *StreakSweeper) Stop() {
	close(s.stopChan)
}

// Sweep runs the warning pass then the expiry pass. The two conditions
// are disjoint: a record whose expiry is already due belongs to the
// expiry pass even if it never got its warning.
func (s *StreakSweeper) Sweep(ctx context.Context) {
	s.warningPass(ctx)
	s.expiryPass(ctx)
}

func (s *StreakSweeper) warningPass(ctx context.Context) {
	now := s.clock.Now()

	records, err := s.store.WarningDue(ctx, now, sweepPageSize)
	if err != nil {
		log.Printf("Sweep: warning query failed: %v", err)
		sweepErrorsTotal.WithLabelValues("warning").Inc()
		return
	}

	for _, rec := range records {
		if len(rec.Participants) != 2 {
			continue
		}
		// Already past expiry: the expiry pass owns it, and an expired
		// streak should not get an "about to expire" push.
		if rec.ExpiresAt != nil && !rec.ExpiresAt.After(now) {
			continue
		}

		pairID := streak.PairID(rec.Participants[0], rec.Participants[1])
		warned, err := s.markWarned(ctx, pairID, now)
		if err != nil {
			log.Printf("Sweep: failed to mark %s warned: %v", pairID, err)
			sweepErrorsTotal.WithLabelValues("warning").Inc()
			continue
		}
		if !warned {
			continue
		}
		streakWarningsSent.Inc()

		// Each participant is notified independently; one failure must
		// not block the other.
		for _, userID := range rec.Participants {
			s.notifyWarning(ctx, rec, userID, pairID)
		}
	}
}

// markWarned flips the warning flag inside a transaction. It re-checks
// the condition against the transaction's own read: a concurrent
// mutual exchange may have reset the cycle between query and update,
// in which case the fresh cycle must not be marked warned.
func (s *StreakSweeper) markWarned(ctx context.Context, pairID string, now time.Time) (bool, error) {
	warned := false
	err := s.store.RunTransaction(ctx, pairID, func(tx store.StreakTx) error {
		warned = false
		rec, err := tx.Get()
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if rec.Warning || rec.WarningAt == nil || rec.WarningAt.After(now) {
			return nil
		}
		rec.Warning = true
		rec.WarningSentAt = &now
		rec.UpdatedAt = now
		warned = true
		return tx.Set(rec)
	})
	return warned, err
}

func (s *StreakSweeper) notifyWarning(ctx context.Context, rec *streak.Record, userID, pairID string) {
	if s.prefs == nil || s.notifier == nil {
		return
	}

	prefs, err := s.prefs.GetStreakPrefs(ctx, userID)
	if err != nil {
		log.Printf("Sweep: prefs lookup failed for %s: %v", userID, err)
		return
	}
	if !prefs.PushEnabled || !prefs.StreakWarnings || prefs.PushToken == nil {
		return
	}

	other := rec.Other(userID)
	otherName := other
	if otherPrefs, err := s.prefs.GetStreakPrefs(ctx, other); err == nil && otherPrefs.DisplayName != "" {
		otherName = otherPrefs.DisplayName
	}

	s.notifier.EnqueuePush(&PushJob{
		UserID: userID,
		Token:  *prefs.PushToken,
		Type:   notification.TypeStreakWarning,
		Title:  "Your streak is about to expire",
		Body:   fmt.Sprintf("Send %s a snap to keep your %d day streak alive", otherName, rec.DayCount),
		Data: map[string]any{
			"conversationId": pairID,
			"dayCount":       rec.DayCount,
		},
	})
}

func (s *StreakSweeper) expiryPass(ctx context.Context) {
	now := s.clock.Now()

	records, err := s.store.Expired(ctx, now, sweepPageSize)
	if err != nil {
		log.Printf("Sweep: expiry query failed: %v", err)
		sweepErrorsTotal.WithLabelValues("expiry").Inc()
		return
	}

	for _, rec := range records {
		if len(rec.Participants) != 2 {
			continue
		}
		pairID := streak.PairID(rec.Participants[0], rec.Participants[1])
		if err := s.reset(ctx, pairID, now); err != nil {
			log.Printf("Sweep: failed to reset %s: %v", pairID, err)
			sweepErrorsTotal.WithLabelValues("expiry").Inc()
			continue
		}
		streakExpiriesTotal.Inc()
	}
}

// reset writes the zero state. Applying it to an already-reset record
// is a no-op by construction, so no condition re-check is needed
// beyond skipping records revived by a concurrent mutual exchange.
func (s *StreakSweeper) reset(ctx context.Context, pairID string, now time.Time) error {
	return s.store.RunTransaction(ctx, pairID, func(tx store.StreakTx) error {
		rec, err := tx.Get()
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if rec.ExpiresAt != nil && rec.ExpiresAt.After(now) {
			return nil
		}
		rec.Reset(now)
		return tx.Set(rec)
	})
}
