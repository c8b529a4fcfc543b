package clickhouse

import (
	"context"
	"fmt"

	"token-manager-dashboard/internal/domain"
	"token-manager-dashboard/internal/storage"
)

// RefreshEventStore implements storage.RefreshEventStore using ClickHouse.
// MergeTree does not enforce keys, so duplicates are checked before insert.
type RefreshEventStore struct {
	conn *Conn
}

// NewRefreshEventStore creates a new RefreshEventStore.
func NewRefreshEventStore(conn *Conn) *RefreshEventStore {
	return &RefreshEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.RefreshEventStore = (*RefreshEventStore)(nil)

// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
func (s *RefreshEventStore) Insert(ctx context.Context, e *domain.RefreshEvent) error {
	return s.InsertBulk(ctx, []*domain.RefreshEvent{e})
}

// InsertBulk adds multiple events in one batch. Fails entire batch on duplicate.
func (s *RefreshEventStore) InsertBulk(ctx context.Context, events []*domain.RefreshEvent) error {
	if len(events) == 0 {
		return nil
	}

	ids := make([]string, 0, len(events))
	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		if err := storage.ValidateRefreshEvent(e); err != nil {
			return err
		}
		if _, exists := seen[e.EventID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[e.EventID] = struct{}{}
		ids = append(ids, e.EventID)
	}

	var count uint64
	if err := s.conn.QueryRow(ctx, `SELECT count() FROM refresh_events WHERE event_id IN (?)`, ids).Scan(&count); err != nil {
		return fmt.Errorf("check existing events: %w", err)
	}
	if count > 0 {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO refresh_events (
			event_id, cluster, wallet, source, started_at, duration_ms, record_count, success, error
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		var success uint8
		if e.Success {
			success = 1
		}
		err = batch.Append(
			e.EventID, e.Cluster, e.Wallet, string(e.Source),
			uint64(e.StartedAt), uint64(e.DurationMs), uint32(e.RecordCount),
			success, e.Error,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByWallet returns events started within [start, end], ordered by started_at ASC.
func (s *RefreshEventStore) GetByWallet(ctx context.Context, cluster, wallet string, start, end int64) ([]*domain.RefreshEvent, error) {
	query := `
		SELECT event_id, cluster, wallet, source, started_at, duration_ms, record_count, success, error
		FROM refresh_events
		WHERE cluster = ? AND wallet = ? AND started_at >= ? AND started_at <= ?
		ORDER BY started_at ASC, event_id ASC
	`

	rows, err := s.conn.Query(ctx, query, cluster, wallet, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query refresh events: %w", err)
	}
	defer rows.Close()

	return scanRefreshEvents(rows)
}

func scanRefreshEvents(rows chRows) ([]*domain.RefreshEvent, error) {
	var events []*domain.RefreshEvent

	for rows.Next() {
		var e domain.RefreshEvent
		var source string
		var startedAt, durationMs uint64
		var recordCount uint32
		var success uint8

		err := rows.Scan(
			&e.EventID, &e.Cluster, &e.Wallet, &source,
			&startedAt, &durationMs, &recordCount, &success, &e.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("scan refresh event row: %w", err)
		}

		e.Source = domain.Source(source)
		e.StartedAt = int64(startedAt)
		e.DurationMs = int64(durationMs)
		e.RecordCount = int(recordCount)
		e.Success = success == 1
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refresh event rows: %w", err)
	}
	return events, nil
}
