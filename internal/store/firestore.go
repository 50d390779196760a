package store

import (
	"context"
	"log"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"snapLinkAPI/internal/streak"
	"snapLinkAPI/internal/types/reaction"
)

const (
	streakCollection = "streaks"
	batchCollection  = "reaction_batches"
)

// Firestore backs the streak and reaction-batch stores with Firestore
// documents. Firestore's RunTransaction supplies the conflict retry
// the contract requires: on contention it re-invokes the transaction
// function with fresh reads.
type Firestore struct {
	streaks *firestore.CollectionRef
	batches *firestore.CollectionRef
	client  *firestore.Client
}

func NewFirestore(client *firestore.Client) *Firestore {
	return &Firestore{
		client:  client,
		streaks: client.Collection(streakCollection),
		batches: client.Collection(batchCollection),
	}
}

func (s *Firestore) RunTransaction(ctx context.Context, pairID string, fn func(tx StreakTx) error) error {
	doc := s.streaks.Doc(pairID)
	return s.client.RunTransaction(ctx, func(ctx context.Context, t *firestore.Transaction) error {
		return fn(&fsStreakTx{t: t, doc: doc})
	})
}

type fsStreakTx struct {
	t   *firestore.Transaction
	doc *firestore.DocumentRef
}

func (tx *fsStreakTx) Get() (*streak.Record, error) {
	snap, err := tx.t.Get(tx.doc)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec streak.Record
	if err := snap.DataTo(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (tx *fsStreakTx) Set(rec *streak.Record) error {
	return tx.t.Set(tx.doc, rec)
}

func (tx *fsStreakTx) Update(updates ...Update) error {
	return tx.t.Update(tx.doc, toFirestoreUpdates(updates))
}

func toFirestoreUpdates(updates []Update) []firestore.Update {
	out := make([]firestore.Update, 0, len(updates))
	for _, u := range updates {
		out = append(out, firestore.Update{
			FieldPath: firestore.FieldPath(strings.Split(u.Path, ".")),
			Value:     u.Value,
		})
	}
	return out
}

func (s *Firestore) WarningDue(ctx context.Context, now time.Time, limit int) ([]*streak.Record, error) {
	// Range filters skip documents where the field is null, so records
	// without a warning window never match.
	q := s.streaks.
		Where("warning", "==", false).
		Where("warningAt", "<=", now).
		Limit(limit)
	return s.collect(ctx, q)
}

func (s *Firestore) Expired(ctx context.Context, now time.Time, limit int) ([]*streak.Record, error) {
	q := s.streaks.Where("expiresAt", "<=", now).Limit(limit)
	return s.collect(ctx, q)
}

func (s *Firestore) collect(ctx context.Context, q firestore.Query) ([]*streak.Record, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	var records []*streak.Record
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return records, err
		}
		var rec streak.Record
		if err := snap.DataTo(&rec); err != nil {
			// Legacy or malformed document: skip it, the sweep must
			// keep going.
			log.Printf("store: skipping undecodable streak doc %s: %v", snap.Ref.ID, err)
			continue
		}
		records = append(records, &rec)
	}
	return records, nil
}

// Reaction batches.

func (s *Firestore) RunBatchTransaction(ctx context.Context, key string, fn func(tx BatchTx) error) error {
	doc := s.batches.Doc(key)
	return s.client.RunTransaction(ctx, func(ctx context.Context, t *firestore.Transaction) error {
		return fn(&fsBatchTx{t: t, doc: doc})
	})
}

type fsBatchTx struct {
	t   *firestore.Transaction
	doc *firestore.DocumentRef
}

func (tx *fsBatchTx) Get() (*reaction.Batch, error) {
	snap, err := tx.t.Get(tx.doc)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var b reaction.Batch
	if err := snap.DataTo(&b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (tx *fsBatchTx) Set(b *reaction.Batch) error {
	return tx.t.Set(tx.doc, b)
}

func (tx *fsBatchTx) Delete() error {
	return tx.t.Delete(tx.doc)
}

// FirestoreBatches adapts Firestore to the BatchStore interface.
type FirestoreBatches struct {
	fs *Firestore
}

func NewFirestoreBatches(fs *Firestore) *FirestoreBatches {
	return &FirestoreBatches{fs: fs}
}

func (s *FirestoreBatches) RunTransaction(ctx context.Context, key string, fn func(tx BatchTx) error) error {
	return s.fs.RunBatchTransaction(ctx, key, fn)
}
