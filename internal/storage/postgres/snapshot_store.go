package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"token-manager-dashboard/internal/domain"
	"token-manager-dashboard/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using PostgreSQL.
type SnapshotStore struct {
	pool *Pool
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(pool *Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

const snapshotColumns = `snapshot_id, cluster, wallet, source, record_count, records, fetched_at, created_at`

// Insert adds a new snapshot. Returns ErrDuplicateKey if snapshot_id exists.
func (s *SnapshotStore) Insert(ctx context.Context, snap *domain.Snapshot) error {
	if err := storage.ValidateSnapshot(snap); err != nil {
		return err
	}

	query := `
		INSERT INTO token_manager_snapshots (
			snapshot_id, cluster, wallet, source, record_count, records, fetched_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	records := snap.Records
	if len(records) == 0 {
		records = []byte("[]")
	}

	_, err := s.pool.Exec(ctx, query,
		snap.SnapshotID,
		snap.Cluster,
		snap.Wallet,
		string(snap.Source),
		snap.RecordCount,
		records,
		snap.FetchedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// GetLatest returns the newest snapshot for (cluster, wallet).
func (s *SnapshotStore) GetLatest(ctx context.Context, cluster, wallet string) (*domain.Snapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM token_manager_snapshots
		WHERE cluster = $1 AND wallet = $2
		ORDER BY fetched_at DESC, snapshot_id DESC
		LIMIT 1
	`

	snap, err := scanSnapshot(s.pool.QueryRow(ctx, query, cluster, wallet))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest snapshot: %w", err)
	}
	return snap, nil
}

// GetByWallet returns up to limit snapshots, newest first. limit <= 0 means all.
func (s *SnapshotStore) GetByWallet(ctx context.Context, cluster, wallet string, limit int) ([]*domain.Snapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM token_manager_snapshots
		WHERE cluster = $1 AND wallet = $2
		ORDER BY fetched_at DESC, snapshot_id DESC
	`
	args := []interface{}{cluster, wallet}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get snapshots by wallet: %w", err)
	}
	defer rows.Close()

	var out []*domain.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}
	return out, nil
}

// scanSnapshot scans a single row. pgx.Rows satisfies pgx.Row.
func scanSnapshot(row pgx.Row) (*domain.Snapshot, error) {
	var snap domain.Snapshot
	var source string

	err := row.Scan(
		&snap.SnapshotID,
		&snap.Cluster,
		&snap.Wallet,
		&source,
		&snap.RecordCount,
		&snap.Records,
		&snap.FetchedAt,
		&snap.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	snap.Source = domain.Source(source)
	return &snap, nil
}
