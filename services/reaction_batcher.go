package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"snapLinkAPI/internal/clock"
	"snapLinkAPI/internal/store"
	"snapLinkAPI/internal/types/notification"
	"snapLinkAPI/internal/types/reaction"
)

const (
	// batchFlushDelay is how long a batch accumulates before its single
	// aggregated notification goes out.
	batchFlushDelay = 30 * time.Second

	// pendingTTL caps how long a key stays in the in-process pending
	// map if its flush never ran (process restart loses timers; the
	// map must not grow without bound either way).
	pendingTTL = 5 * time.Minute
)

// ReactionBatcher folds rapid-fire reaction events into one delayed
// notification per (subject, actor). It uses the same transactional
// merge shape as the streak engine: counts accumulate inside a store
// transaction, and the transaction that creates a batch schedules
// exactly one flush, detected by comparing the batch's creation and
// update instants.
type ReactionBatcher struct {
	store      store.BatchStore
	clock      clock.Clock
	prefs      PreferenceLookup
	notifier   Pusher
	flushDelay time.Duration

	mu      sync.Mutex
	pending map[string]time.Time

	stopChan chan struct{}
}

func NewReactionBatcher(st store.BatchStore, clk clock.Clock, prefs PreferenceLookup, notifier Pusher) *ReactionBatcher {
	b := &ReactionBatcher{
		store:      st,
		clock:      clk,
		prefs:      prefs,
		notifier:   notifier,
		flushDelay: batchFlushDelay,
		pending:    make(map[string]time.Time),
		stopChan:   make(chan struct{}),
	}
	go b.evictPending()
	return b
}

// ReactionEvent is the payload for a newly created reaction.
type ReactionEvent struct {
	SubjectID string `json:"subjectId"`
	ActorID   string `json:"actorId"`
}

// HandleReaction merges one reaction into the pair's batch. Like the
// streak path, failures are logged and swallowed.
func (b *ReactionBatcher) HandleReaction(ctx context.Context, ev *ReactionEvent) {
	if ev.SubjectID == "" || ev.ActorID == "" || ev.SubjectID == ev.ActorID {
		return
	}

	key := reaction.BatchKey(ev.SubjectID, ev.ActorID)
	now := b.clock.Now()

	var merged reaction.Batch
	err := b.store.RunTransaction(ctx, key, func(tx store.BatchTx) error {
		cur, err := tx.Get()
		switch {
		case errors.Is(err, store.ErrNotFound):
			merged = reaction.Batch{
				SubjectID: ev.SubjectID,
				ActorID:   ev.ActorID,
				Count:     1,
				CreatedAt: now,
				UpdatedAt: now,
			}
		case err != nil:
			return err
		default:
			merged = *cur
			merged.Count++
			merged.UpdatedAt = now
		}
		return tx.Set(&merged)
	})
	if err != nil {
		log.Printf("Reactions: merge failed for %s: %v", key, err)
		return
	}

	// createdAt == updatedAt means this transaction created the batch,
	// so it owns scheduling the one flush.
	if merged.CreatedAt.Equal(merged.UpdatedAt) {
		b.scheduleFlush(key)
	}
}

func (b *ReactionBatcher) scheduleFlush(key string) {
	b.mu.Lock()
	if _, exists := b.pending[key]; exists {
		b.mu.Unlock()
		return
	}
	b.pending[key] = b.clock.Now()
	b.mu.Unlock()

	time.AfterFunc(b.flushDelay, func() {
		b.Flush(context.Background(), key)
	})
}

// Flush drains one batch: reads and deletes it transactionally, then
// pushes the aggregated notification to the subject.
func (b *ReactionBatcher) Flush(ctx context.Context, key string) {
	b.mu.Lock()
	delete(b.pending, key)
	b.mu.Unlock()

	var batch *reaction.Batch
	err := b.store.RunTransaction(ctx, key, func(tx store.BatchTx) error {
		batch = nil
		cur, err := tx.Get()
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		batch = cur
		return tx.Delete()
	})
	if err != nil {
		log.Printf("Reactions: flush failed for %s: %v", key, err)
		return
	}
	if batch == nil || batch.Count == 0 {
		return
	}

	b.notifySubject(ctx, batch)
}

func (b *ReactionBatcher) notifySubject(ctx context.Context, batch *reaction.Batch) {
	if b.prefs == nil || b.notifier == nil {
		return
	}

	prefs, err := b.prefs.GetStreakPrefs(ctx, batch.SubjectID)
	if err != nil {
		log.Printf("Reactions: prefs lookup failed for %s: %v", batch.SubjectID, err)
		return
	}
	if !prefs.PushEnabled || prefs.PushToken == nil {
		return
	}

	actorName := batch.ActorID
	if actorPrefs, err := b.prefs.GetStreakPrefs(ctx, batch.ActorID); err == nil && actorPrefs.DisplayName != "" {
		actorName = actorPrefs.DisplayName
	}

	body := fmt.Sprintf("%s reacted to your snap", actorName)
	if batch.Count > 1 {
		body = fmt.Sprintf("%s reacted %d times to your snaps", actorName, batch.Count)
	}

	b.notifier.EnqueuePush(&PushJob{
		UserID: batch.SubjectID,
		Token:  *prefs.PushToken,
		Type:   notification.TypeReactionBatch,
		Title:  "New reactions",
		Body:   body,
		Data: map[string]any{
			"actorId": batch.ActorID,
			"count":   batch.Count,
		},
	})
}

// evictPending drops stale pending entries, CleanupVisitors style.
func (b *ReactionBatcher) evictPending() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.mu.Lock()
			for key, scheduled := range b.pending {
				if b.clock.Now().Sub(scheduled) > pendingTTL {
					delete(b.pending, key)
				}
			}
			b.mu.Unlock()
		case <-b.stopChan:
			return
		}
	}
}

func (b *ReactionBatcher) Stop() {
	close(b.stopChan)
}
