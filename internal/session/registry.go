package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"token-manager-dashboard/internal/datahook"
	"token-manager-dashboard/internal/environment"
	"token-manager-dashboard/internal/indexer"
	"token-manager-dashboard/internal/modal"
	"token-manager-dashboard/internal/observability"
	"token-manager-dashboard/internal/projectconfig"
	"token-manager-dashboard/internal/solana"
	"token-manager-dashboard/internal/storage"
	"token-manager-dashboard/internal/tokenmanager"
)

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("session not found")

// Defaults.
const (
	DefaultCluster       = "mainnet-beta"
	DefaultConfigTimeout = 15 * time.Second
)

// Config configures a Registry.
type Config struct {
	Environments   *environment.Registry
	DefaultCluster string
	// ConfigEndpoint overrides projectconfig.DefaultEndpoint.
	ConfigEndpoint string
	HTTPClient     *http.Client

	RefreshInterval time.Duration
	Snapshots       storage.SnapshotStore
	Events          storage.RefreshEventStore

	// Live enables WebSocket invalidation for clusters with a WS endpoint.
	Live bool
	// DialWS overrides the WebSocket dialer.
	DialWS func(ctx context.Context, endpoint string) (solana.WSClient, error)
	// NewRPC overrides the RPC client built for chain-backed clusters.
	NewRPC func(env environment.Environment) solana.RPCClient

	Logger zerolog.Logger
}

// CreateRequest describes a new session.
type CreateRequest struct {
	Wallet  string
	Cluster string
	Query   url.Values
}

// Registry holds live sessions and the per-cluster shared resources.
type Registry struct {
	cfg Config
	log zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
	rpcs     map[string]solana.RPCClient
	watchers map[string]*watcher
	wg       sync.WaitGroup
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Environments == nil {
		envs, err := environment.NewRegistry(environment.Defaults()...)
		if err != nil {
			return nil, err
		}
		cfg.Environments = envs
	}
	if cfg.DefaultCluster == "" {
		cfg.DefaultCluster = DefaultCluster
	}
	if _, err := cfg.Environments.Get(cfg.DefaultCluster); err != nil {
		return nil, err
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: indexer.DefaultTimeout}
	}
	if cfg.DialWS == nil {
		cfg.DialWS = dialWS
	}
	if cfg.NewRPC == nil {
		cfg.NewRPC = func(env environment.Environment) solana.RPCClient {
			return solana.NewHTTPClient(env.RPCEndpoint, solana.WithObserver(observability.RecordRPCCall))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		cfg:      cfg,
		log:      cfg.Logger,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
		rpcs:     make(map[string]solana.RPCClient),
		watchers: make(map[string]*watcher),
	}, nil
}

func dialWS(ctx context.Context, endpoint string) (solana.WSClient, error) {
	cfg := solana.DefaultWSConfig()
	return solana.NewWSClient(ctx, endpoint, &cfg)
}

// Create builds a session, loads its tenant config and starts its hook.
func (r *Registry) Create(ctx context.Context, req CreateRequest) (*Session, error) {
	cluster := req.Cluster
	if cluster == "" {
		cluster = r.cfg.DefaultCluster
	}
	env, err := r.cfg.Environments.Get(cluster)
	if err != nil {
		return nil, err
	}

	var wallet solana.PublicKey
	if req.Wallet != "" {
		if wallet, err = solana.PublicKeyFromBase58(req.Wallet); err != nil {
			return nil, err
		}
	}

	id := uuid.NewString()
	log := r.log.With().Str("session", id).Str("cluster", cluster).Logger()

	loaderOpts := []projectconfig.LoaderOption{
		projectconfig.WithHTTPClient(r.cfg.HTTPClient),
		projectconfig.WithLogger(log),
	}
	if r.cfg.ConfigEndpoint != "" {
		loaderOpts = append(loaderOpts, projectconfig.WithEndpoint(r.cfg.ConfigEndpoint))
	}
	loader := projectconfig.NewLoader(loaderOpts...)

	hookOpts := datahook.Options{
		Environment:     env,
		Filters:         loader.Filters,
		RefreshInterval: r.cfg.RefreshInterval,
		Snapshots:       r.cfg.Snapshots,
		Events:          r.cfg.Events,
		Logger:          &log,
	}
	if env.HasIndexer() {
		hookOpts.Indexer = indexer.NewClient(env.API, indexer.WithHTTPClient(r.cfg.HTTPClient))
	} else {
		hookOpts.Chain = tokenmanager.NewChainSource(r.rpcFor(env), tokenmanager.WithHTTPClient(r.cfg.HTTPClient))
	}
	hook, err := datahook.New(hookOpts)
	if err != nil {
		return nil, err
	}

	sctx, cancel := context.WithCancel(r.ctx)
	s := &Session{
		ID:        id,
		Cluster:   cluster,
		CreatedAt: time.Now().UTC(),
		Hook:      hook,
		Config:    loader,
		Modal:     modal.New[json.RawMessage](),
		log:       log,
		ctx:       sctx,
		cancel:    cancel,
	}

	if len(req.Query) > 0 {
		navCtx, navCancel := context.WithTimeout(ctx, DefaultConfigTimeout)
		_ = s.Navigate(navCtx, req.Query)
		navCancel()
	}

	r.mu.Lock()
	r.sessions[id] = s
	count := len(r.sessions)
	r.mu.Unlock()
	observability.SetActiveSessions(count)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_ = hook.Run(sctx)
	}()

	if !wallet.IsZero() {
		hook.SetWallet(wallet)
		if _, err := hook.Warm(ctx); err != nil {
			log.Warn().Err(err).Msg("snapshot warm start failed")
		}
	}

	if r.cfg.Live && env.WSEndpoint != "" {
		r.ensureWatcher(env)
	}

	log.Info().Str("source", hook.Source().String()).Msg("session created")
	return s, nil
}

// Get returns the session with id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Delete tears a session down. Its hook accepts no further updates.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	delete(r.sessions, id)
	count := len(r.sessions)
	var idle *watcher
	if w, ok := r.watchers[s.Cluster]; ok && r.clusterCountLocked(s.Cluster) == 0 {
		delete(r.watchers, s.Cluster)
		idle = w
	}
	r.mu.Unlock()

	s.close()
	observability.SetActiveSessions(count)
	if idle != nil {
		idle.stop()
	}
	return nil
}

// IDs returns the live session ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close deletes every session and stops the watchers.
func (r *Registry) Close() {
	for _, id := range r.IDs() {
		_ = r.Delete(id)
	}

	r.mu.Lock()
	watchers := r.watchers
	r.watchers = make(map[string]*watcher)
	r.mu.Unlock()
	for _, w := range watchers {
		w.stop()
	}

	r.cancel()
	r.wg.Wait()
}

// Invalidate triggers a debounced refresh on every session of cluster.
// It returns how many sessions started a refresh.
func (r *Registry) Invalidate(cluster string) int {
	var triggered int
	for _, s := range r.clusterSessions(cluster) {
		if s.Hook.Invalidate() {
			triggered++
		}
	}
	return triggered
}

func (r *Registry) clusterSessions(cluster string) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Session
	for _, s := range r.sessions {
		if s.Cluster == cluster {
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) clusterCountLocked(cluster string) int {
	var n int
	for _, s := range r.sessions {
		if s.Cluster == cluster {
			n++
		}
	}
	return n
}

func (r *Registry) rpcFor(env environment.Environment) solana.RPCClient {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.rpcs[env.Label]; ok {
		return c
	}
	c := r.cfg.NewRPC(env)
	r.rpcs[env.Label] = c
	return c
}
