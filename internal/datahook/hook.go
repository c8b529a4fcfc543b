// Package datahook keeps the token manager records issued by one wallet
// fresh. Records come from the cluster's indexer when one is configured and
// from program account scans otherwise.
package datahook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"token-manager-dashboard/internal/domain"
	"token-manager-dashboard/internal/environment"
	"token-manager-dashboard/internal/idhash"
	"token-manager-dashboard/internal/observability"
	"token-manager-dashboard/internal/projectconfig"
	"token-manager-dashboard/internal/solana"
	"token-manager-dashboard/internal/storage"
	"token-manager-dashboard/internal/swr"
)

// Defaults.
const (
	DefaultRefreshInterval    = 200 * time.Second
	DefaultInvalidateDebounce = 5 * time.Second
	DefaultStoreTimeout       = 5 * time.Second
	keyPrefix                 = "useTokenManagersByState"
)

// State is the observable fetch state of the hook.
type State = swr.State[[]domain.TokenData]

// IndexerSource lists every token manager the indexer knows for a cluster.
type IndexerSource interface {
	TokenManagersByState(ctx context.Context, cluster string) ([]domain.TokenData, error)
}

// ChainSource lists token managers issued by a wallet straight from the chain.
type ChainSource interface {
	FetchForIssuer(ctx context.Context, issuer solana.PublicKey) ([]domain.TokenData, error)
}

// Options configures a Hook.
type Options struct {
	Environment environment.Environment
	// Indexer is used when set; Chain otherwise.
	Indexer IndexerSource
	Chain   ChainSource
	// Filters returns the rules applied to State. Nil means no filtering.
	Filters            func() []projectconfig.FilterRule
	RefreshInterval    time.Duration
	InvalidateDebounce time.Duration
	// Snapshots archives successful fetches and warms the cache. Optional.
	Snapshots storage.SnapshotStore
	// Events records every fetch attempt. Optional.
	Events storage.RefreshEventStore
	Logger *zerolog.Logger
	Now    func() time.Time
}

// Hook owns the fetch state for the current wallet.
type Hook struct {
	env     environment.Environment
	indexer IndexerSource
	chain   ChainSource
	filters func() []projectconfig.FilterRule

	snapshots storage.SnapshotStore
	events    storage.RefreshEventStore

	interval time.Duration
	debounce time.Duration
	log      zerolog.Logger
	now      func() time.Time

	cache *swr.Cache[[]domain.TokenData]

	mu             sync.Mutex
	wallet         solana.PublicKey
	displayKey     string
	lastInvalidate time.Time
	// archived holds the digest of the last archived records per key.
	archived map[string]string

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Hook. It does nothing until a wallet is set.
func New(opts Options) (*Hook, error) {
	if err := opts.Environment.Validate(); err != nil {
		return nil, err
	}
	if opts.Indexer == nil && opts.Chain == nil {
		return nil, errors.New("datahook: an indexer or chain source is required")
	}

	h := &Hook{
		env:       opts.Environment,
		indexer:   opts.Indexer,
		chain:     opts.Chain,
		filters:   opts.Filters,
		snapshots: opts.Snapshots,
		events:    opts.Events,
		interval:  opts.RefreshInterval,
		debounce:  opts.InvalidateDebounce,
		now:       opts.Now,
		archived:  make(map[string]string),
		done:      make(chan struct{}),
	}
	if h.interval <= 0 {
		h.interval = DefaultRefreshInterval
	}
	if h.debounce <= 0 {
		h.debounce = DefaultInvalidateDebounce
	}
	if h.now == nil {
		h.now = time.Now
	}
	if opts.Logger != nil {
		h.log = opts.Logger.With().Str("cluster", h.env.Label).Logger()
	} else {
		h.log = zerolog.Nop()
	}

	h.cache = swr.New(swr.Options[[]domain.TokenData]{
		RefreshInterval: h.interval,
		Now:             h.now,
	})
	return h, nil
}

// Key returns the cache key for wallet on this hook's cluster.
func (h *Hook) Key(wallet solana.PublicKey) string {
	return fmt.Sprintf("%s/%s/%s", keyPrefix, h.env.Label, wallet)
}

// Cluster returns the environment label.
func (h *Hook) Cluster() string {
	return h.env.Label
}

// Source reports where records are fetched from.
func (h *Hook) Source() domain.Source {
	if h.indexer != nil {
		return domain.SourceIndexer
	}
	return domain.SourceChain
}

// Wallet returns the current wallet and whether one is set.
func (h *Hook) Wallet() (solana.PublicKey, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.wallet, !h.wallet.IsZero()
}

// SetWallet changes the wallet. A zero key disconnects: no fetch is made and
// the last value stays visible. A new wallet triggers a refresh.
func (h *Hook) SetWallet(wallet solana.PublicKey) {
	h.mu.Lock()
	if wallet == h.wallet {
		h.mu.Unlock()
		return
	}
	h.wallet = wallet
	if !wallet.IsZero() {
		h.displayKey = h.Key(wallet)
	}
	h.mu.Unlock()

	if wallet.IsZero() {
		h.log.Debug().Msg("wallet disconnected")
		return
	}
	h.log.Debug().Str("wallet", wallet.String()).Msg("wallet changed")
	h.Refresh()
}

// State returns the current state with the filter rules applied.
// Before any wallet was set it is the zero state.
func (h *Hook) State() State {
	h.mu.Lock()
	key := h.displayKey
	h.mu.Unlock()

	if key == "" {
		return State{}
	}
	return h.filter(h.cache.Get(key))
}

// Refresh starts a fetch for the current wallet, or joins the running one.
// It returns false when no wallet is set or the hook is closed.
func (h *Hook) Refresh() bool {
	ch, ok := h.revalidate()
	if !ok {
		return false
	}
	go func() {
		if res, ok := <-ch; ok && res.Shared {
			observability.RecordCoalesced()
		}
	}()
	return true
}

// RefreshAndWait refreshes and blocks until the fetch completes or ctx ends.
// Without a wallet it returns the current state immediately.
func (h *Hook) RefreshAndWait(ctx context.Context) (State, error) {
	ch, ok := h.revalidate()
	if !ok {
		return h.State(), nil
	}
	select {
	case res := <-ch:
		if res.Shared {
			observability.RecordCoalesced()
		}
		return h.filter(res.State), nil
	case <-ctx.Done():
		return h.State(), ctx.Err()
	}
}

// Invalidate refreshes unless another invalidation fired within the
// debounce window. It reports whether a refresh was triggered.
func (h *Hook) Invalidate() bool {
	now := h.now()

	h.mu.Lock()
	if !h.lastInvalidate.IsZero() && now.Sub(h.lastInvalidate) < h.debounce {
		h.mu.Unlock()
		observability.RecordInvalidation("debounced")
		return false
	}
	h.lastInvalidate = now
	h.mu.Unlock()

	observability.RecordInvalidation("triggered")
	return h.Refresh()
}

// Warm seeds the cache from the latest archived snapshot of the current
// wallet. The seeded value is stale until the next fetch completes.
func (h *Hook) Warm(ctx context.Context) (bool, error) {
	wallet, ok := h.Wallet()
	if !ok || h.snapshots == nil {
		return false, nil
	}

	snap, err := h.snapshots.GetLatest(ctx, h.env.Label, wallet.String())
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load snapshot: %w", err)
	}

	var records []domain.TokenData
	if err := json.Unmarshal(snap.Records, &records); err != nil {
		return false, fmt.Errorf("decode snapshot %s: %w", snap.SnapshotID, err)
	}

	key := h.Key(wallet)
	seeded := h.cache.Seed(key, records, time.UnixMilli(snap.FetchedAt))
	if seeded {
		if canonical, err := json.Marshal(records); err == nil {
			h.markArchived(key, idhash.ComputeRecordsDigest(h.env.Label, wallet.String(), canonical))
		}
		h.log.Info().
			Str("wallet", wallet.String()).
			Str("snapshot_id", snap.SnapshotID).
			Int("records", len(records)).
			Msg("warmed from snapshot")
	}
	return seeded, nil
}

// Run refreshes on the configured interval until ctx ends or the hook closes.
func (h *Hook) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.log.Info().Dur("interval", h.interval).Str("source", h.Source().String()).Msg("data hook started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.done:
			return nil
		case <-ticker.C:
			h.Refresh()
		}
	}
}

// Close cancels in-flight fetches. No state changes are accepted afterwards.
func (h *Hook) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
		h.cache.Close()
	})
}

func (h *Hook) revalidate() (<-chan swr.Result[[]domain.TokenData], bool) {
	wallet, ok := h.Wallet()
	if !ok || h.cache.Closed() {
		return nil, false
	}
	return h.cache.Revalidate(h.Key(wallet), h.fetcher(wallet)), true
}

func (h *Hook) fetcher(wallet solana.PublicKey) swr.Fetcher[[]domain.TokenData] {
	return func(ctx context.Context) ([]domain.TokenData, error) {
		source := h.Source()
		start := h.now()

		var records []domain.TokenData
		var err error
		if h.indexer != nil {
			records, err = h.indexer.TokenManagersByState(ctx, h.env.Label)
		} else {
			records, err = h.chain.FetchForIssuer(ctx, wallet)
		}
		if err == nil && records == nil {
			records = []domain.TokenData{}
		}
		elapsed := h.now().Sub(start)

		observability.RecordRefresh(h.env.Label, source.String(), elapsed, len(records), err)
		if err != nil {
			h.log.Warn().Err(err).Str("wallet", wallet.String()).Str("source", source.String()).Msg("fetch failed")
		} else {
			h.log.Debug().Str("wallet", wallet.String()).Int("records", len(records)).Dur("took", elapsed).Msg("fetched token managers")
		}

		if ctx.Err() == nil {
			h.persist(ctx, wallet, source, start, elapsed, records, err)
		}
		return records, err
	}
}

// persist records the attempt and archives successful results.
// Storage failures are logged and never affect the fetch result.
func (h *Hook) persist(ctx context.Context, wallet solana.PublicKey, source domain.Source, start time.Time, elapsed time.Duration, records []domain.TokenData, fetchErr error) {
	if h.events == nil && h.snapshots == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, DefaultStoreTimeout)
	defer cancel()

	if h.events != nil {
		event := &domain.RefreshEvent{
			EventID:     uuid.NewString(),
			Cluster:     h.env.Label,
			Wallet:      wallet.String(),
			Source:      source,
			StartedAt:   start.UnixMilli(),
			DurationMs:  elapsed.Milliseconds(),
			RecordCount: len(records),
			Success:     fetchErr == nil,
		}
		if fetchErr != nil {
			event.Error = fetchErr.Error()
		}
		t := time.Now()
		err := h.events.Insert(ctx, event)
		observability.RecordDBQuery("events", "insert", time.Since(t).Seconds(), err)
		if err != nil {
			h.log.Error().Err(err).Msg("failed to store refresh event")
		}
	}

	if h.snapshots == nil || fetchErr != nil {
		return
	}
	data, err := json.Marshal(records)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to encode snapshot")
		return
	}
	key := h.Key(wallet)
	digest := idhash.ComputeRecordsDigest(h.env.Label, wallet.String(), data)
	if h.isArchived(key, digest) {
		h.log.Debug().Str("wallet", wallet.String()).Msg("records unchanged, snapshot skipped")
		return
	}
	snap := &domain.Snapshot{
		SnapshotID:  uuid.NewString(),
		Cluster:     h.env.Label,
		Wallet:      wallet.String(),
		Source:      source,
		RecordCount: len(records),
		Records:     data,
		FetchedAt:   start.Add(elapsed).UnixMilli(),
	}
	t := time.Now()
	err = h.snapshots.Insert(ctx, snap)
	observability.RecordDBQuery("snapshots", "insert", time.Since(t).Seconds(), err)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to store snapshot")
		return
	}
	h.markArchived(key, digest)
}

func (h *Hook) isArchived(key, digest string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.archived[key] == digest
}

func (h *Hook) markArchived(key, digest string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.archived[key] = digest
}

// filter returns st with a fresh Value slice so callers never alias the
// cached records.
func (h *Hook) filter(st State) State {
	if !st.HasValue {
		return st
	}
	var rules []projectconfig.FilterRule
	if h.filters != nil {
		rules = h.filters()
	}
	st.Value = projectconfig.FilterTokens(rules, st.Value)
	return st
}
