package memory

import (
	"context"
	"sort"
	"sync"

	"token-manager-dashboard/internal/domain"
	"token-manager-dashboard/internal/storage"
)

// RefreshEventStore is an in-memory implementation of storage.RefreshEventStore.
type RefreshEventStore struct {
	mu     sync.RWMutex
	ids    map[string]struct{}
	events []*domain.RefreshEvent
}

// NewRefreshEventStore creates a new in-memory refresh event store.
func NewRefreshEventStore() *RefreshEventStore {
	return &RefreshEventStore{ids: make(map[string]struct{})}
}

var _ storage.RefreshEventStore = (*RefreshEventStore)(nil)

// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
func (s *RefreshEventStore) Insert(ctx context.Context, e *domain.RefreshEvent) error {
	return s.InsertBulk(ctx, []*domain.RefreshEvent{e})
}

// InsertBulk adds multiple events. Fails entire batch on any duplicate.
func (s *RefreshEventStore) InsertBulk(_ context.Context, events []*domain.RefreshEvent) error {
	for _, e := range events {
		if err := storage.ValidateRefreshEvent(e); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[string]struct{}, len(events))
	for _, e := range events {
		if _, exists := s.ids[e.EventID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batch[e.EventID]; exists {
			return storage.ErrDuplicateKey
		}
		batch[e.EventID] = struct{}{}
	}

	for _, e := range events {
		c := *e
		s.ids[c.EventID] = struct{}{}
		s.events = append(s.events, &c)
	}
	return nil
}

// GetByWallet returns events started within [start, end], ordered by started_at ASC.
func (s *RefreshEventStore) GetByWallet(_ context.Context, cluster, wallet string, start, end int64) ([]*domain.RefreshEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.RefreshEvent
	for _, e := range s.events {
		if e.Cluster != cluster || e.Wallet != wallet {
			continue
		}
		if e.StartedAt < start || e.StartedAt > end {
			continue
		}
		c := *e
		out = append(out, &c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartedAt != out[j].StartedAt {
			return out[i].StartedAt < out[j].StartedAt
		}
		return out[i].EventID < out[j].EventID
	})
	return out, nil
}
