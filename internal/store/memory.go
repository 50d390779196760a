package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"snapLinkAPI/internal/streak"
	"snapLinkAPI/internal/types/reaction"
)

// Memory is an in-process store with the same transactional contract
// as the Firestore implementation: transactions on the same key
// serialize, writes only land when the transaction function returns
// nil. Used by tests and local runs without Firestore credentials.
type Memory struct {
	mu      sync.Mutex
	streaks map[string]*streak.Record
	batches map[string]*reaction.Batch

	// TxErr, when non-nil, fails every transaction before the
	// function runs. Tests use it to simulate store unavailability.
	TxErr error
}

func NewMemory() *Memory {
	return &Memory{
		streaks: make(map[string]*streak.Record),
		batches: make(map[string]*reaction.Batch),
	}
}

func (s *Memory) RunTransaction(ctx context.Context, pairID string, fn func(tx StreakTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.TxErr != nil {
		return s.TxErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memStreakTx{current: s.streaks[pairID]}
	if err := fn(tx); err != nil {
		return err
	}
	if tx.staged != nil {
		s.streaks[pairID] = tx.staged
	}
	return nil
}

type memStreakTx struct {
	current *streak.Record
	staged  *streak.Record
}

func (tx *memStreakTx) snapshot() *streak.Record {
	if tx.staged != nil {
		return tx.staged
	}
	return tx.current
}

func (tx *memStreakTx) Get() (*streak.Record, error) {
	rec := tx.snapshot()
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (tx *memStreakTx) Set(rec *streak.Record) error {
	tx.staged = rec.Clone()
	return nil
}

func (tx *memStreakTx) Update(updates ...Update) error {
	rec := tx.snapshot()
	if rec == nil {
		return ErrNotFound
	}
	next := rec.Clone()
	for _, u := range updates {
		if err := applyStreakUpdate(next, u); err != nil {
			return err
		}
	}
	tx.staged = next
	return nil
}

func applyStreakUpdate(rec *streak.Record, u Update) error {
	t, err := asTime(u.Value)
	if err != nil {
		return err
	}
	switch u.Path {
	case streak.FieldPendingFirst:
		rec.LastSnapBy.First = t
	case streak.FieldPendingSecond:
		rec.LastSnapBy.Second = t
	case streak.FieldUpdatedAt:
		if t != nil {
			rec.UpdatedAt = *t
		}
	default:
		return errUnknownField(u.Path)
	}
	return nil
}

type errUnknownField string

func (e errUnknownField) Error() string { return "store: unknown update field " + string(e) }

func asTime(v any) (*time.Time, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return &t, nil
	case *time.Time:
		return t, nil
	default:
		return nil, errUnknownField("(non-time value)")
	}
}

func (s *Memory) WarningDue(ctx context.Context, now time.Time, limit int) ([]*streak.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*streak.Record
	for _, key := range s.sortedStreakKeys() {
		if len(out) >= limit {
			break
		}
		rec := s.streaks[key]
		if rec.Warning || rec.WarningAt == nil || rec.WarningAt.After(now) {
			continue
		}
		out = append(out, rec.Clone())
	}
	return out, nil
}

func (s *Memory) Expired(ctx context.Context, now time.Time, limit int) ([]*streak.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*streak.Record
	for _, key := range s.sortedStreakKeys() {
		if len(out) >= limit {
			break
		}
		rec := s.streaks[key]
		if rec.ExpiresAt == nil || rec.ExpiresAt.After(now) {
			continue
		}
		out = append(out, rec.Clone())
	}
	return out, nil
}

func (s *Memory) sortedStreakKeys() []string {
	keys := make([]string, 0, len(s.streaks))
	for k := range s.streaks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Streak returns the committed record for a pair, for tests.
func (s *Memory) Streak(pairID string) *streak.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.streaks[pairID]
	if !ok {
		return nil
	}
	return rec.Clone()
}

// MemoryBatches adapts Memory to the BatchStore interface.
type MemoryBatches struct {
	mem *Memory
}

func NewMemoryBatches(mem *Memory) *MemoryBatches {
	return &MemoryBatches{mem: mem}
}

func (s *MemoryBatches) RunTransaction(ctx context.Context, key string, fn func(tx BatchTx) error) error {
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()
	if s.mem.TxErr != nil {
		return s.mem.TxErr
	}

	tx := &memBatchTx{current: s.mem.batches[key]}
	if err := fn(tx); err != nil {
		return err
	}
	if tx.deleted {
		delete(s.mem.batches, key)
	} else if tx.staged != nil {
		s.mem.batches[key] = tx.staged
	}
	return nil
}

type memBatchTx struct {
	current *reaction.Batch
	staged  *reaction.Batch
	deleted bool
}

func (tx *memBatchTx) Get() (*reaction.Batch, error) {
	b := tx.staged
	if b == nil {
		b = tx.current
	}
	if b == nil || tx.deleted {
		return nil, ErrNotFound
	}
	copied := *b
	return &copied, nil
}

func (tx *memBatchTx) Set(b *reaction.Batch) error {
	copied := *b
	tx.staged = &copied
	tx.deleted = false
	return nil
}

func (tx *memBatchTx) Delete() error {
	tx.deleted = true
	tx.staged = nil
	return nil
}

// Batch returns the committed batch for a key, for tests.
func (s *Memory) Batch(key string) *reaction.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[key]
	if !ok {
		return nil
	}
	copied := *b
	return &copied
}
