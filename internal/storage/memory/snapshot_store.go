package memory

import (
	"context"
	"sort"
	"sync"

	"token-manager-dashboard/internal/domain"
	"token-manager-dashboard/internal/storage"
)

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu       sync.RWMutex
	byID     map[string]*domain.Snapshot
	byWallet map[walletKey][]*domain.Snapshot
}

type walletKey struct {
	cluster string
	wallet  string
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		byID:     make(map[string]*domain.Snapshot),
		byWallet: make(map[walletKey][]*domain.Snapshot),
	}
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Insert adds a new snapshot. Returns ErrDuplicateKey if snapshot_id exists.
func (s *SnapshotStore) Insert(_ context.Context, snap *domain.Snapshot) error {
	if err := storage.ValidateSnapshot(snap); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[snap.SnapshotID]; exists {
		return storage.ErrDuplicateKey
	}

	c := copySnapshot(snap)
	s.byID[c.SnapshotID] = c

	k := walletKey{c.Cluster, c.Wallet}
	list := append(s.byWallet[k], c)
	// newest first, ties broken by id for determinism
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].FetchedAt != list[j].FetchedAt {
			return list[i].FetchedAt > list[j].FetchedAt
		}
		return list[i].SnapshotID > list[j].SnapshotID
	})
	s.byWallet[k] = list
	return nil
}

// GetLatest returns the newest snapshot for (cluster, wallet).
func (s *SnapshotStore) GetLatest(_ context.Context, cluster, wallet string) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.byWallet[walletKey{cluster, wallet}]
	if len(list) == 0 {
		return nil, storage.ErrNotFound
	}
	return copySnapshot(list[0]), nil
}

// GetByWallet returns up to limit snapshots, newest first. limit <= 0 means all.
func (s *SnapshotStore) GetByWallet(_ context.Context, cluster, wallet string, limit int) ([]*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.byWallet[walletKey{cluster, wallet}]
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}

	out := make([]*domain.Snapshot, 0, len(list))
	for _, snap := range list {
		out = append(out, copySnapshot(snap))
	}
	return out, nil
}

func copySnapshot(s *domain.Snapshot) *domain.Snapshot {
	c := *s
	c.Records = append([]byte(nil), s.Records...)
	return &c
}
