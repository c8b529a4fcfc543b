package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-manager-dashboard/internal/environment"
	"token-manager-dashboard/internal/solana"
	"token-manager-dashboard/internal/solana/stub"
)

var wallet = solana.MetadataProgramID.String()

func indexerRecord(symbol string) string {
	return fmt.Sprintf(`{"metadata":{"pubkey":%q,"data":{"name":"%s #1","symbol":%q}}}`,
		solana.TokenManagerProgramID.String(), symbol, symbol)
}

// backend serves both the indexer and the project config endpoints.
type backend struct {
	server       *httptest.Server
	indexerCalls atomic.Int32
	configCalls  atomic.Int32
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{}
	mux := http.NewServeMux()
	mux.HandleFunc("/tokenManagersByState", func(w http.ResponseWriter, r *http.Request) {
		b.indexerCalls.Add(1)
		fmt.Fprintf(w, `{"data":[%s,%s,%s]}`, indexerRecord("A"), indexerRecord("B"), indexerRecord("A"))
	})
	mux.HandleFunc("/config/acme", func(w http.ResponseWriter, r *http.Request) {
		b.configCalls.Add(1)
		fmt.Fprint(w, `{"projectName":"Acme","filters":[{"type":"symbol","value":"A"}]}`)
	})
	mux.HandleFunc("/config/", func(w http.ResponseWriter, r *http.Request) {
		b.configCalls.Add(1)
		http.Error(w, "missing", http.StatusNotFound)
	})
	b.server = httptest.NewServer(mux)
	t.Cleanup(b.server.Close)
	return b
}

func newRegistry(t *testing.T, b *backend, mutate func(*Config)) *Registry {
	t.Helper()
	envs, err := environment.NewRegistry(
		environment.Environment{Label: "indexed", RPCEndpoint: "http://unused", API: b.server.URL},
		environment.Environment{Label: "localnet", RPCEndpoint: "http://unused", WSEndpoint: "ws://unused"},
	)
	require.NoError(t, err)

	cfg := Config{
		Environments:   envs,
		DefaultCluster: "indexed",
		ConfigEndpoint: b.server.URL + "/config",
		HTTPClient:     b.server.Client(),
		NewRPC:         func(environment.Environment) solana.RPCClient { return stub.NewRPCClient() },
		Logger:         zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	r, err := NewRegistry(cfg)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func TestNewRegistry_UnknownDefaultCluster(t *testing.T) {
	_, err := NewRegistry(Config{DefaultCluster: "nope"})
	assert.ErrorIs(t, err, environment.ErrUnknownCluster)
}

func TestRegistry_CreateFetchesAndFilters(t *testing.T) {
	b := newBackend(t)
	r := newRegistry(t, b, nil)

	s, err := r.Create(context.Background(), CreateRequest{
		Wallet: wallet,
		Query:  url.Values{"host": {"dev-acme.example.com"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "indexed", s.Cluster)
	assert.Equal(t, "acme", s.Config.Project())
	assert.True(t, s.Config.Config().ConfigLoaded)

	st, err := s.Hook.RefreshAndWait(context.Background())
	require.NoError(t, err)
	require.True(t, st.HasValue)
	assert.Len(t, st.Value, 2)
	for _, td := range st.Value {
		assert.Equal(t, "A", td.Symbol())
	}

	got, err := r.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_CreateValidation(t *testing.T) {
	b := newBackend(t)
	r := newRegistry(t, b, nil)

	_, err := r.Create(context.Background(), CreateRequest{Cluster: "nope"})
	assert.ErrorIs(t, err, environment.ErrUnknownCluster)

	_, err = r.Create(context.Background(), CreateRequest{Wallet: "not-a-key"})
	assert.ErrorIs(t, err, solana.ErrInvalidPublicKey)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_NoWalletNoFetch(t *testing.T) {
	b := newBackend(t)
	r := newRegistry(t, b, nil)

	s, err := r.Create(context.Background(), CreateRequest{})
	require.NoError(t, err)

	st, err := s.Hook.RefreshAndWait(context.Background())
	require.NoError(t, err)
	assert.False(t, st.HasValue)
	assert.Equal(t, int32(0), b.indexerCalls.Load())
}

func TestRegistry_ChainCluster(t *testing.T) {
	b := newBackend(t)
	r := newRegistry(t, b, nil)

	s, err := r.Create(context.Background(), CreateRequest{Cluster: "localnet", Wallet: wallet})
	require.NoError(t, err)

	st, err := s.Hook.RefreshAndWait(context.Background())
	require.NoError(t, err)
	assert.True(t, st.HasValue)
	assert.Empty(t, st.Value)
	assert.Equal(t, int32(0), b.indexerCalls.Load())
}

func TestRegistry_Delete(t *testing.T) {
	b := newBackend(t)
	r := newRegistry(t, b, nil)

	s, err := r.Create(context.Background(), CreateRequest{})
	require.NoError(t, err)

	require.NoError(t, r.Delete(s.ID))
	assert.ErrorIs(t, r.Delete(s.ID), ErrNotFound)
	_, err = r.Get(s.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	select {
	case <-s.Done():
	default:
		t.Fatal("session context not canceled")
	}
	assert.ErrorIs(t, s.SetWallet(wallet), ErrClosed)
	assert.False(t, s.Hook.Refresh())
}

func TestSession_Navigate(t *testing.T) {
	b := newBackend(t)
	r := newRegistry(t, b, nil)

	s, err := r.Create(context.Background(), CreateRequest{})
	require.NoError(t, err)
	assert.False(t, s.Config.Config().ConfigLoaded)

	require.NoError(t, s.Navigate(context.Background(), url.Values{"project": {"acme"}}))
	assert.Equal(t, "Acme", s.Config.Config().ProjectName)

	require.NoError(t, s.Navigate(context.Background(), url.Values{"project": {"acme"}}))
	assert.Equal(t, int32(1), b.configCalls.Load())

	require.NoError(t, s.Navigate(context.Background(), url.Values{"project": {"missing"}}))
	assert.Equal(t, "Acme", s.Config.Config().ProjectName)
	assert.True(t, s.Config.Config().ConfigLoaded)
}

func TestSession_NavigateAfterDelete(t *testing.T) {
	b := newBackend(t)
	r := newRegistry(t, b, nil)

	s, err := r.Create(context.Background(), CreateRequest{})
	require.NoError(t, err)
	require.NoError(t, r.Delete(s.ID))

	err = s.Navigate(context.Background(), url.Values{"project": {"acme"}})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSession_SetWallet(t *testing.T) {
	b := newBackend(t)
	r := newRegistry(t, b, nil)

	s, err := r.Create(context.Background(), CreateRequest{})
	require.NoError(t, err)

	assert.ErrorIs(t, s.SetWallet("bad"), solana.ErrInvalidPublicKey)
	require.NoError(t, s.SetWallet(wallet))
	require.Eventually(t, func() bool { return s.Hook.State().HasValue }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.SetWallet(""))
	_, ok := s.Hook.Wallet()
	assert.False(t, ok)
	assert.True(t, s.Hook.State().HasValue)
}

func TestSession_Modal(t *testing.T) {
	b := newBackend(t)
	r := newRegistry(t, b, nil)

	s, err := r.Create(context.Background(), CreateRequest{})
	require.NoError(t, err)

	s.Modal.Show(json.RawMessage(`{"kind":"claim"}`))
	require.NoError(t, r.Delete(s.ID))
	assert.False(t, s.Modal.IsOpen())
}

// fakeWS is a solana.WSClient fed by the test.
type fakeWS struct {
	ch        chan solana.LogNotification
	mu        sync.Mutex
	filters   []solana.LogsFilter
	closed    bool
	closeOnce sync.Once
}

func (f *fakeWS) SubscribeLogs(_ context.Context, filter solana.LogsFilter) (<-chan solana.LogNotification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	return f.ch, nil
}

func (f *fakeWS) Close() error {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
	})
	return nil
}

func (f *fakeWS) subscribed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.filters) > 0
}

func TestRegistry_LiveInvalidation(t *testing.T) {
	b := newBackend(t)
	ws := &fakeWS{ch: make(chan solana.LogNotification, 4)}
	var dials atomic.Int32

	rpc := stub.NewRPCClient()
	r := newRegistry(t, b, func(cfg *Config) {
		cfg.Live = true
		cfg.NewRPC = func(environment.Environment) solana.RPCClient { return rpc }
		cfg.DialWS = func(context.Context, string) (solana.WSClient, error) {
			dials.Add(1)
			return ws, nil
		}
	})

	s1, err := r.Create(context.Background(), CreateRequest{Cluster: "localnet", Wallet: wallet})
	require.NoError(t, err)
	_, err = r.Create(context.Background(), CreateRequest{Cluster: "localnet"})
	require.NoError(t, err)

	require.Eventually(t, ws.subscribed, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), dials.Load())
	assert.Equal(t, []solana.PublicKey{solana.TokenManagerProgramID}, ws.filters[0].Mentions)

	require.Eventually(t, func() bool { return s1.Hook.State().HasValue }, time.Second, 5*time.Millisecond)
	program, _ := rpc.Calls()

	ws.ch <- solana.LogNotification{Signature: "failed", Failed: true}
	ws.ch <- solana.LogNotification{Signature: "ok", Slot: 10}

	require.Eventually(t, func() bool {
		p, _ := rpc.Calls()
		return p == program+1
	}, time.Second, 5*time.Millisecond)
}
