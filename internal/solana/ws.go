package solana

import "context"

// WSClient is the subset of the Solana PubSub API used for live invalidation.
type WSClient interface {
	// SubscribeLogs streams transaction log notifications matching filter.
	// The channel is closed when the client is closed.
	SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error)

	// Close closes the connection and every subscription channel.
	Close() error
}

// LogsFilter selects which transactions produce notifications.
type LogsFilter struct {
	// Mentions limits notifications to transactions mentioning this account.
	// Empty subscribes to all transactions.
	Mentions []PublicKey
	// Commitment defaults to "confirmed".
	Commitment string
}

// LogNotification is one logsNotification payload.
type LogNotification struct {
	Signature string
	Slot      uint64
	Logs      []string
	// Failed is true when the transaction carried a non-null err.
	Failed bool
}
