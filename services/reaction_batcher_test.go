package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"snapLinkAPI/internal/clock"
	"snapLinkAPI/internal/store"
	"snapLinkAPI/internal/types/reaction"
)

func newTestBatcher(mem *store.Memory) (*ReactionBatcher, *stubPrefs, *recordingPusher, *clock.Manual) {
	prefs := newStubPrefs()
	pusher := &recordingPusher{}
	clk := clock.NewManual(t0)
	b := NewReactionBatcher(store.NewMemoryBatches(mem), clk, prefs, pusher)
	return b, prefs, pusher, clk
}

func TestReactionsMergeIntoOneBatch(t *testing.T) {
	mem := store.NewMemory()
	b, _, _, clk := newTestBatcher(mem)
	defer b.Stop()
	ctx := context.Background()

	ev := &ReactionEvent{SubjectID: alice, ActorID: bob}
	for i := 0; i < 5; i++ {
		b.HandleReaction(ctx, ev)
		clk.Advance(time.Second)
	}

	key := reaction.BatchKey(alice, bob)
	batch := mem.Batch(key)
	if batch == nil || batch.Count != 5 {
		t.Fatalf("batch count = %+v, want 5", batch)
	}

	b.mu.Lock()
	pending := len(b.pending)
	b.mu.Unlock()
	if pending != 1 {
		t.Fatalf("pending flushes = %d, want exactly 1 per batch", pending)
	}
}

func TestFlushDispatchesAggregateAndDeletes(t *testing.T) {
	mem := store.NewMemory()
	b, prefs, pusher, clk := newTestBatcher(mem)
	defer b.Stop()
	ctx := context.Background()
	prefs.allow(alice, "Alice", "tok_a")
	prefs.allow(bob, "Bob", "tok_b")

	ev := &ReactionEvent{SubjectID: alice, ActorID: bob}
	b.HandleReaction(ctx, ev)
	clk.Advance(time.Second)
	b.HandleReaction(ctx, ev)
	clk.Advance(time.Second)
	b.HandleReaction(ctx, ev)

	key := reaction.BatchKey(alice, bob)
	b.Flush(ctx, key)

	jobs := pusher.sentTo(alice)
	if len(jobs) != 1 {
		t.Fatalf("subject pushes = %d, want 1 aggregated", len(jobs))
	}
	if jobs[0].Data["count"] != 3 {
		t.Fatalf("aggregated count = %v, want 3", jobs[0].Data["count"])
	}
	if mem.Batch(key) != nil {
		t.Fatal("flush must delete the batch")
	}

	// Flushing again is a no-op.
	b.Flush(ctx, key)
	if len(pusher.sentTo(alice)) != 1 {
		t.Fatal("second flush dispatched again")
	}
}

func TestSelfReactionIgnored(t *testing.T) {
	mem := store.NewMemory()
	b, _, _, _ := newTestBatcher(mem)
	defer b.Stop()

	b.HandleReaction(context.Background(), &ReactionEvent{SubjectID: alice, ActorID: alice})
	if mem.Batch(reaction.BatchKey(alice, alice)) != nil {
		t.Fatal("self reaction must not batch")
	}
}

func TestBatcherStoreFailureSwallowed(t *testing.T) {
	mem := store.NewMemory()
	b, _, pusher, _ := newTestBatcher(mem)
	defer b.Stop()
	mem.TxErr = errors.New("store down")

	b.HandleReaction(context.Background(), &ReactionEvent{SubjectID: alice, ActorID: bob})
	b.Flush(context.Background(), reaction.BatchKey(alice, bob))

	if len(pusher.sent()) != 0 {
		t.Fatal("nothing should dispatch when the store is down")
	}
}
