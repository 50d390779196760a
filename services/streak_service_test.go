package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"snapLinkAPI/internal/clock"
	"snapLinkAPI/internal/store"
	"snapLinkAPI/internal/streak"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

const (
	alice = "user_alice"
	bob   = "user_bob"
)

func snapEvent(sender string, at time.Time) *MessageEvent {
	return &MessageEvent{
		SenderID:       sender,
		Kind:           MessageKindSnap,
		CreatedAt:      at,
		ConversationID: "conv_1",
		Participants:   []string{alice, bob},
	}
}

func newTestStreakService(mem *store.Memory) (*StreakService, *stubPrefs, *recordingPusher) {
	prefs := newStubPrefs()
	pusher := &recordingPusher{}
	svc := NewStreakService(mem, clock.NewManual(t0), prefs, pusher)
	return svc, prefs, pusher
}

func TestNonSnapKindsAreIgnored(t *testing.T) {
	mem := store.NewMemory()
	// A transaction would fail loudly if one were attempted.
	mem.TxErr = errors.New("must not be called")
	svc, _, _ := newTestStreakService(mem)

	ev := snapEvent(alice, t0)
	ev.Kind = "text"
	svc.HandleMessageCreated(context.Background(), ev)

	if mem.Streak(streak.PairID(alice, bob)) != nil {
		t.Fatal("non-snap message created a streak record")
	}
}

func TestNewPairScenario(t *testing.T) {
	mem := store.NewMemory()
	svc, _, _ := newTestStreakService(mem)
	ctx := context.Background()

	// A snaps at t0.
	svc.HandleMessageCreated(ctx, snapEvent(alice, t0))

	pairID := streak.PairID(alice, bob)
	rec := mem.Streak(pairID)
	if rec == nil {
		t.Fatal("record not created")
	}
	if rec.DayCount != 0 {
		t.Fatalf("dayCount = %d, want 0 after one-sided snap", rec.DayCount)
	}
	if got := rec.PendingFor(alice); got == nil || !got.Equal(t0) {
		t.Fatalf("alice pending = %v, want %v", got, t0)
	}

	// B answers one minute later: mutual completes.
	now := t0.Add(time.Minute)
	svc.HandleMessageCreated(ctx, snapEvent(bob, now))

	rec = mem.Streak(pairID)
	if rec.DayCount != 1 {
		t.Fatalf("dayCount = %d, want 1", rec.DayCount)
	}
	if rec.LastSnapBy.First != nil || rec.LastSnapBy.Second != nil {
		t.Fatal("pending slots not cleared by mutual exchange")
	}
	wantExpiry := now.Add(36 * time.Hour)
	if rec.ExpiresAt == nil || !rec.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expiresAt = %v, want %v", rec.ExpiresAt, wantExpiry)
	}
	if rec.WarningAt == nil || !rec.WarningAt.Equal(wantExpiry.Add(-4*time.Hour)) {
		t.Fatalf("warningAt = %v, want expiresAt - 4h", rec.WarningAt)
	}
}

func TestRedundantSnapInsideWindow(t *testing.T) {
	mem := store.NewMemory()
	svc, _, _ := newTestStreakService(mem)
	ctx := context.Background()

	svc.HandleMessageCreated(ctx, snapEvent(alice, t0))
	svc.HandleMessageCreated(ctx, snapEvent(bob, t0.Add(time.Minute)))

	// Both snap again an hour later: pending slots fill but no new day.
	svc.HandleMessageCreated(ctx, snapEvent(alice, t0.Add(time.Hour)))
	svc.HandleMessageCreated(ctx, snapEvent(bob, t0.Add(time.Hour+time.Minute)))

	rec := mem.Streak(streak.PairID(alice, bob))
	if rec.DayCount != 1 {
		t.Fatalf("dayCount = %d, want 1 inside the 24h window", rec.DayCount)
	}

	// Past the window the pending exchange completes day 2.
	svc.HandleMessageCreated(ctx, snapEvent(alice, t0.Add(25*time.Hour)))
	rec = mem.Streak(streak.PairID(alice, bob))
	if rec.DayCount != 2 {
		t.Fatalf("dayCount = %d, want 2 after the window", rec.DayCount)
	}
}

func TestStoreFailureIsSwallowed(t *testing.T) {
	mem := store.NewMemory()
	mem.TxErr = errors.New("firestore unavailable")
	svc, _, _ := newTestStreakService(mem)

	// Must not panic and must not propagate anything.
	svc.HandleMessageCreated(context.Background(), snapEvent(alice, t0))
}

func TestMalformedEventsAreDropped(t *testing.T) {
	mem := store.NewMemory()
	svc, _, _ := newTestStreakService(mem)
	ctx := context.Background()

	ev := snapEvent(alice, t0)
	ev.Participants = []string{alice}
	svc.HandleMessageCreated(ctx, ev)

	ev = snapEvent("user_carol", t0)
	svc.HandleMessageCreated(ctx, ev)

	ev = snapEvent(alice, t0)
	ev.Participants = []string{alice, alice}
	svc.HandleMessageCreated(ctx, ev)

	if mem.Streak(streak.PairID(alice, bob)) != nil {
		t.Fatal("malformed event reached the store")
	}
}

func TestMilestonePushes(t *testing.T) {
	mem := store.NewMemory()
	svc, prefs, pusher := newTestStreakService(mem)
	ctx := context.Background()
	prefs.allow(alice, "Alice", "tok_a")
	prefs.allow(bob, "Bob", "tok_b")

	// Seed day 9 with a pending snap from bob, last mutual 25h ago.
	pairID := streak.PairID(alice, bob)
	lastMutual := t0.Add(-25 * time.Hour)
	rec := streak.NewRecord(alice, bob, lastMutual)
	rec.DayCount = 9
	rec.LastMutualAt = &lastMutual
	started := lastMutual.Add(-9 * 24 * time.Hour)
	rec.StreakStartedAt = &started
	rec.SetPending(bob, t0.Add(-time.Hour))
	err := mem.RunTransaction(ctx, pairID, func(tx store.StreakTx) error {
		return tx.Set(rec)
	})
	if err != nil {
		t.Fatal(err)
	}

	svc.HandleMessageCreated(ctx, snapEvent(alice, t0))

	got := mem.Streak(pairID)
	if got.DayCount != 10 {
		t.Fatalf("dayCount = %d, want 10", got.DayCount)
	}
	// Day 10 switches the tier to 48h.
	if !got.ExpiresAt.Equal(t0.Add(48 * time.Hour)) {
		t.Fatalf("expiresAt = %v, want t0 + 48h", got.ExpiresAt)
	}

	if len(pusher.sentTo(alice)) != 1 || len(pusher.sentTo(bob)) != 1 {
		t.Fatalf("milestone pushes = %d, want one per participant", len(pusher.sent()))
	}
	job := pusher.sentTo(alice)[0]
	if job.Data["dayCount"] != 10 {
		t.Fatalf("milestone data = %v", job.Data)
	}
}

func TestNonMilestoneDayNoPush(t *testing.T) {
	mem := store.NewMemory()
	svc, prefs, pusher := newTestStreakService(mem)
	prefs.allow(alice, "Alice", "tok_a")
	prefs.allow(bob, "Bob", "tok_b")
	ctx := context.Background()

	svc.HandleMessageCreated(ctx, snapEvent(alice, t0))
	svc.HandleMessageCreated(ctx, snapEvent(bob, t0.Add(time.Minute)))

	if len(pusher.sent()) != 0 {
		t.Fatalf("day 1 should not push, got %d jobs", len(pusher.sent()))
	}
}
