package index

import (
	"context"
	"sync"

	"github.com/codematch/codematch/internal/winnow"
	"github.com/codematch/codematch/pkg/types"
)

// MemoryStore is an in-process reference implementation of Store, used by
// default and by every test that does not need persistence.
type MemoryStore struct {
	mu sync.RWMutex

	// bands[bandIndex][bandValue] -> fingerprints
	bands [4]map[uint16][]types.SimHashFingerprint

	// shards[shard][fp] -> postings
	shards [winnow.ShardCount]map[int64][]types.WinnowPosting

	docOrder map[int64]int64 // documentID -> orderID, for membership checks
	docStats map[int64]types.DocStat

	maxDocID int64
	haveAny  bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		docOrder: make(map[int64]int64),
		docStats: make(map[int64]types.DocStat),
	}
	for i := range s.bands {
		s.bands[i] = make(map[uint16][]types.SimHashFingerprint)
	}
	for i := range s.shards {
		s.shards[i] = make(map[int64][]types.WinnowPosting)
	}
	return s
}

func (s *MemoryStore) PutSimHash(ctx context.Context, documentID, orderID int64, fps []types.SimHashFingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteSimHashLocked(documentID)
	for _, fp := range fps {
		for i, v := range fp.Parts {
			s.bands[i][v] = append(s.bands[i][v], fp)
		}
	}
	s.docOrder[documentID] = orderID
	s.bumpHighWaterLocked(documentID)
	return nil
}

func (s *MemoryStore) deleteSimHashLocked(documentID int64) {
	for i := range s.bands {
		for v, list := range s.bands[i] {
			filtered := list[:0]
			for _, fp := range list {
				if fp.DocumentID != documentID {
					filtered = append(filtered, fp)
				}
			}
			if len(filtered) == 0 {
				delete(s.bands[i], v)
			} else {
				s.bands[i][v] = filtered
			}
		}
	}
}

func (s *MemoryStore) RecallBand(ctx context.Context, bandIndex int, bandValue uint16, excludeOrderIDs []int64) ([]types.SimHashFingerprint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	excluded := toSet(excludeOrderIDs)
	var out []types.SimHashFingerprint
	for _, fp := range s.bands[bandIndex][bandValue] {
		if _, skip := excluded[fp.OrderID]; skip {
			continue
		}
		out = append(out, fp)
	}
	return out, nil
}

func (s *MemoryStore) PutWinnow(ctx context.Context, documentID, orderID int64, postings []types.WinnowPosting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteWinnowLocked(documentID)
	for _, p := range postings {
		shard := winnow.Shard(p.Fingerprint)
		s.shards[shard][p.Fingerprint] = append(s.shards[shard][p.Fingerprint], p)
	}
	s.docOrder[documentID] = orderID
	s.bumpHighWaterLocked(documentID)
	return nil
}

func (s *MemoryStore) deleteWinnowLocked(documentID int64) {
	for i := range s.shards {
		for fp, list := range s.shards[i] {
			filtered := list[:0]
			for _, p := range list {
				if p.DocumentID != documentID {
					filtered = append(filtered, p)
				}
			}
			if len(filtered) == 0 {
				delete(s.shards[i], fp)
			} else {
				s.shards[i][fp] = filtered
			}
		}
	}
}

func (s *MemoryStore) RecallShard(ctx context.Context, shard int, fps []int64, excludeOrderIDs []int64) ([]types.WinnowPosting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	excluded := toSet(excludeOrderIDs)
	var out []types.WinnowPosting
	for _, fp := range fps {
		for _, p := range s.shards[shard][fp] {
			if _, skip := excluded[p.OrderID]; skip {
				continue
			}
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *MemoryStore) DeleteDocument(ctx context.Context, documentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteSimHashLocked(documentID)
	s.deleteWinnowLocked(documentID)
	delete(s.docOrder, documentID)
	delete(s.docStats, documentID)
	return nil
}

func (s *MemoryStore) DeleteOrder(ctx context.Context, orderID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var toDelete []int64
	for doc, ord := range s.docOrder {
		if ord == orderID {
			toDelete = append(toDelete, doc)
		}
	}
	for _, doc := range toDelete {
		s.deleteSimHashLocked(doc)
		s.deleteWinnowLocked(doc)
		delete(s.docOrder, doc)
		delete(s.docStats, doc)
	}
	return nil
}

func (s *MemoryStore) HasDocument(ctx context.Context, documentID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.docOrder[documentID]
	return ok, nil
}

func (s *MemoryStore) MaxIndexedDocumentID(ctx context.Context) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxDocID, s.haveAny, nil
}

func (s *MemoryStore) PutDocStat(ctx context.Context, stat types.DocStat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docStats[stat.DocumentID] = stat
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) bumpHighWaterLocked(documentID int64) {
	if !s.haveAny || documentID > s.maxDocID {
		s.maxDocID = documentID
		s.haveAny = true
	}
}

func toSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

var _ Store = (*MemoryStore)(nil)
