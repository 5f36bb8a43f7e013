// Package index defines the storage contract for SimHash band postings and
// winnowing shard postings, with an in-memory reference implementation and
// a persistent modernc.org/sqlite-backed implementation.
package index

import (
	"context"

	"github.com/codematch/codematch/pkg/types"
)

// Store is the narrow contract the query pipelines and the index builder
// depend on. Both the SimHash banded-parts index and the winnowing
// sharded-posting index are exposed through it; a concrete implementation
// may back them with entirely different physical layouts.
type Store interface {
	// PutSimHash atomically replaces all SimHash fingerprints for a
	// document with the given set (delete-then-insert in one transaction).
	PutSimHash(ctx context.Context, documentID, orderID int64, fps []types.SimHashFingerprint) error

	// RecallBand returns every stored SimHash fingerprint that shares the
	// given band value at the given band index (0-3), excluding the
	// given order ids.
	RecallBand(ctx context.Context, bandIndex int, bandValue uint16, excludeOrderIDs []int64) ([]types.SimHashFingerprint, error)

	// PutWinnow atomically replaces all winnowing postings for a document.
	PutWinnow(ctx context.Context, documentID, orderID int64, postings []types.WinnowPosting) error

	// RecallShard returns every stored posting whose fingerprint is in fps
	// and whose shard is shard, excluding the given order ids. Callers are
	// expected to call this once per shard with a bounded batch of fps.
	RecallShard(ctx context.Context, shard int, fps []int64, excludeOrderIDs []int64) ([]types.WinnowPosting, error)

	// DeleteDocument removes all SimHash and winnowing data for a document.
	DeleteDocument(ctx context.Context, documentID int64) error

	// DeleteOrder removes all data for every document under an order.
	DeleteOrder(ctx context.Context, orderID int64) error

	// HasDocument reports whether a document has already been indexed,
	// used by the SimHash path's resumability check.
	HasDocument(ctx context.Context, documentID int64) (bool, error)

	// MaxIndexedDocumentID returns the high-water mark used by the
	// winnowing path's resumability check, and false if the index is
	// empty.
	MaxIndexedDocumentID(ctx context.Context) (int64, bool, error)

	// PutDocStat upserts optional per-document bookkeeping.
	PutDocStat(ctx context.Context, stat types.DocStat) error

	Close() error
}

// ErrNotFound is returned when a document referenced by a recalled
// fingerprint has vanished from the underlying document store between
// indexing and query time.
type ErrNotFound struct {
	DocumentID int64
}

func (e *ErrNotFound) Error() string {
	return "document not found in index"
}
