package store

import (
	"context"
	"errors"
	"time"

	"snapLinkAPI/internal/streak"
	"snapLinkAPI/internal/types/reaction"
)

// ErrNotFound is returned by transaction Gets for a key with no
// document. It is distinct from a document whose optional fields are
// all absent.
var ErrNotFound = errors.New("store: record not found")

// Update is one partial field write. Path uses dots for nested fields
// (see the streak.Field* constants).
type Update struct {
	Path  string
	Value any
}

// StreakTx is the handle a transaction function gets for the single
// streak record it owns. All reads and writes go through it; writes
// only commit if the function returns nil.
type StreakTx interface {
	Get() (*streak.Record, error)
	Set(rec *streak.Record) error
	Update(updates ...Update) error
}

// StreakStore is the keyed record store for streaks. RunTransaction
// guarantees that concurrent transactions on the same pair serialize;
// the function may be re-invoked on conflict and must be idempotent.
// Bounded retry with backoff is the store's responsibility.
type StreakStore interface {
	RunTransaction(ctx context.Context, pairID string, fn func(tx StreakTx) error) error

	// WarningDue returns up to limit records with warning still false
	// and a warningAt at or before now. Records with no warningAt are
	// never returned.
	WarningDue(ctx context.Context, now time.Time, limit int) ([]*streak.Record, error)

	// Expired returns up to limit records with an expiresAt at or
	// before now.
	Expired(ctx context.Context, now time.Time, limit int) ([]*streak.Record, error)
}

// BatchTx mirrors StreakTx for reaction batch documents.
type BatchTx interface {
	Get() (*reaction.Batch, error)
	Set(b *reaction.Batch) error
	Delete() error
}

// BatchStore holds the per-(subject, actor) reaction aggregation
// documents. Same transactional contract as StreakStore.
type BatchStore interface {
	RunTransaction(ctx context.Context, key string, fn func(tx BatchTx) error) error
}
