package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"snapLinkAPI/internal/streak"
	"snapLinkAPI/internal/types/reaction"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, mem *Memory, rec *streak.Record) string {
	t.Helper()
	pairID := streak.PairID(rec.Participants[0], rec.Participants[1])
	err := mem.RunTransaction(context.Background(), pairID, func(tx StreakTx) error {
		return tx.Set(rec)
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	return pairID
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	mem := NewMemory()
	err := mem.RunTransaction(context.Background(), "a_b", func(tx StreakTx) error {
		_, err := tx.Get()
		return err
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestTransactionCommitsOnNil(t *testing.T) {
	mem := NewMemory()
	rec := streak.NewRecord("a", "b", t0)
	pairID := seed(t, mem, rec)

	got := mem.Streak(pairID)
	if got == nil || got.Participants[0] != "a" {
		t.Fatalf("committed record missing: %+v", got)
	}
}

func TestTransactionDiscardsOnError(t *testing.T) {
	mem := NewMemory()
	boom := errors.New("boom")

	err := mem.RunTransaction(context.Background(), "a_b", func(tx StreakTx) error {
		if err := tx.Set(streak.NewRecord("a", "b", t0)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if mem.Streak("a_b") != nil {
		t.Fatal("failed transaction must not commit")
	}
}

func TestReadYourOwnWrites(t *testing.T) {
	mem := NewMemory()
	err := mem.RunTransaction(context.Background(), "a_b", func(tx StreakTx) error {
		if err := tx.Set(streak.NewRecord("a", "b", t0)); err != nil {
			return err
		}
		rec, err := tx.Get()
		if err != nil {
			return err
		}
		if rec == nil || len(rec.Participants) != 2 {
			t.Fatal("staged write not visible inside the transaction")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestPartialUpdatePaths(t *testing.T) {
	mem := NewMemory()
	rec := streak.NewRecord("a", "b", t0)
	pairID := seed(t, mem, rec)

	now := t0.Add(time.Hour)
	err := mem.RunTransaction(context.Background(), pairID, func(tx StreakTx) error {
		return tx.Update(
			Update{Path: streak.FieldPendingFirst, Value: now},
			Update{Path: streak.FieldUpdatedAt, Value: now},
		)
	})
	if err != nil {
		t.Fatal(err)
	}

	got := mem.Streak(pairID)
	if got.LastSnapBy.First == nil || !got.LastSnapBy.First.Equal(now) {
		t.Fatalf("first slot = %v, want %v", got.LastSnapBy.First, now)
	}
	if got.LastSnapBy.Second != nil {
		t.Fatal("second slot must be untouched")
	}
	if !got.UpdatedAt.Equal(now) {
		t.Fatalf("updatedAt = %v, want %v", got.UpdatedAt, now)
	}
}

func TestUpdateMissingRecordFails(t *testing.T) {
	mem := NewMemory()
	err := mem.RunTransaction(context.Background(), "a_b", func(tx StreakTx) error {
		return tx.Update(Update{Path: streak.FieldUpdatedAt, Value: t0})
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestWarningDueFiltersAndLimits(t *testing.T) {
	mem := NewMemory()
	now := t0

	due := streak.NewRecord("a", "b", t0)
	warnAt := now.Add(-time.Minute)
	due.WarningAt = &warnAt
	seed(t, mem, due)

	warned := streak.NewRecord("c", "d", t0)
	warned.WarningAt = &warnAt
	warned.Warning = true
	seed(t, mem, warned)

	future := streak.NewRecord("e", "f", t0)
	futureAt := now.Add(time.Hour)
	future.WarningAt = &futureAt
	seed(t, mem, future)

	noWindow := streak.NewRecord("g", "h", t0)
	seed(t, mem, noWindow)

	got, err := mem.WarningDue(context.Background(), now, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Participants[0] != "a" {
		t.Fatalf("WarningDue = %d records, want only a_b", len(got))
	}

	got, err = mem.WarningDue(context.Background(), now, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatal("limit 0 must return nothing")
	}
}

func TestExpiredQuery(t *testing.T) {
	mem := NewMemory()
	now := t0

	gone := streak.NewRecord("a", "b", t0)
	expAt := now.Add(-time.Second)
	gone.ExpiresAt = &expAt
	seed(t, mem, gone)

	alive := streak.NewRecord("c", "d", t0)
	aliveAt := now.Add(time.Hour)
	alive.ExpiresAt = &aliveAt
	seed(t, mem, alive)

	got, err := mem.Expired(context.Background(), now, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Participants[0] != "a" {
		t.Fatalf("Expired returned %d records", len(got))
	}
}

func TestTxErrFailsBeforeFn(t *testing.T) {
	mem := NewMemory()
	mem.TxErr = errors.New("store down")

	ran := false
	err := mem.RunTransaction(context.Background(), "a_b", func(tx StreakTx) error {
		ran = true
		return nil
	})
	if err == nil || ran {
		t.Fatal("TxErr must fail the transaction without running fn")
	}
}

func TestBatchTransactionLifecycle(t *testing.T) {
	mem := NewMemory()
	batches := NewMemoryBatches(mem)
	key := reaction.BatchKey("subject", "actor")

	err := batches.RunTransaction(context.Background(), key, func(tx BatchTx) error {
		_, err := tx.Get()
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
		return tx.Set(&reaction.Batch{SubjectID: "subject", ActorID: "actor", Count: 1, CreatedAt: t0, UpdatedAt: t0})
	})
	if err != nil {
		t.Fatal(err)
	}
	if b := mem.Batch(key); b == nil || b.Count != 1 {
		t.Fatalf("batch not committed: %+v", b)
	}

	err = batches.RunTransaction(context.Background(), key, func(tx BatchTx) error {
		return tx.Delete()
	})
	if err != nil {
		t.Fatal(err)
	}
	if mem.Batch(key) != nil {
		t.Fatal("batch not deleted")
	}
}
