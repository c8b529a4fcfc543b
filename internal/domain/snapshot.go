package domain

// Snapshot archives one successful refresh of a wallet's records.
// Corresponds to token_manager_snapshots table in PostgreSQL.
type Snapshot struct {
	SnapshotID  string // PRIMARY KEY, uuid
	Cluster     string // environment label
	Wallet      string // base58 wallet address
	Source      Source // indexer | chain
	RecordCount int
	Records     []byte // JSON encoded []TokenData
	FetchedAt   int64  // fetch completion (ms)
	CreatedAt   int64  // record creation timestamp (ms)
}

// RefreshEvent records one fetch attempt, successful or not.
// Corresponds to refresh_events table in ClickHouse.
type RefreshEvent struct {
	EventID     string
	Cluster     string
	Wallet      string
	Source      Source
	StartedAt   int64 // ms
	DurationMs  int64
	RecordCount int
	Success     bool
	Error       string // empty on success
}
