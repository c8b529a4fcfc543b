// Package storage defines persistence for refresh history: archived record
// snapshots and per-attempt refresh events.
package storage

import (
	"context"

	"token-manager-dashboard/internal/domain"
)

// SnapshotStore provides access to token_manager_snapshots storage.
type SnapshotStore interface {
	// Insert adds a new snapshot. Returns ErrDuplicateKey if snapshot_id exists.
	Insert(ctx context.Context, s *domain.Snapshot) error

	// GetLatest returns the most recently fetched snapshot for (cluster, wallet).
	// Returns ErrNotFound if none exists.
	GetLatest(ctx context.Context, cluster, wallet string) (*domain.Snapshot, error)

	// GetByWallet returns up to limit snapshots for (cluster, wallet), newest first.
	GetByWallet(ctx context.Context, cluster, wallet string, limit int) ([]*domain.Snapshot, error)
}

// RefreshEventStore provides access to refresh_events storage.
type RefreshEventStore interface {
	// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
	Insert(ctx context.Context, e *domain.RefreshEvent) error

	// InsertBulk adds multiple events. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, events []*domain.RefreshEvent) error

	// GetByWallet returns events for (cluster, wallet) started within
	// [start, end] (inclusive, ms), ordered by started_at ASC.
	GetByWallet(ctx context.Context, cluster, wallet string, start, end int64) ([]*domain.RefreshEvent, error)
}

// ValidateSnapshot checks the fields every backend requires.
func ValidateSnapshot(s *domain.Snapshot) error {
	if s == nil || s.SnapshotID == "" || s.Cluster == "" || s.Wallet == "" {
		return ErrInvalidInput
	}
	return nil
}

// ValidateRefreshEvent checks the fields every backend requires.
func ValidateRefreshEvent(e *domain.RefreshEvent) error {
	if e == nil || e.EventID == "" || e.Cluster == "" || e.Wallet == "" {
		return ErrInvalidInput
	}
	return nil
}
