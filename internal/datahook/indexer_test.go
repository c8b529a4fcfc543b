package datahook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-manager-dashboard/internal/domain"
	"token-manager-dashboard/internal/indexer"
)

// indexerServer serves tokenManagersByState with a body that can be swapped.
type indexerServer struct {
	*httptest.Server
	mu   sync.Mutex
	body string
}

func newIndexerServer(t *testing.T, records ...domain.TokenData) *indexerServer {
	t.Helper()
	raws := make([]indexer.RawTokenData, 0, len(records))
	for _, r := range records {
		raws = append(raws, indexer.EncodeTokenData(r))
	}
	body, err := json.Marshal(map[string]interface{}{"data": raws})
	require.NoError(t, err)

	s := &indexerServer{body: string(body)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(s.body))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *indexerServer) setBody(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.body = body
}

func TestHook_IndexerUnreachableKeepsPreviousValue(t *testing.T) {
	srv := newIndexerServer(t, record("A"))
	h := newHook(t, Options{Indexer: indexer.NewClient(srv.URL)})
	h.SetWallet(walletKey(1))

	st, err := h.RefreshAndWait(context.Background())
	require.NoError(t, err)
	require.NoError(t, st.Err)
	require.Len(t, st.Value, 1)

	srv.Close()

	st, err = h.RefreshAndWait(context.Background())
	require.NoError(t, err)
	assert.Error(t, st.Err)
	require.True(t, st.HasValue)
	require.Len(t, st.Value, 1)
	assert.Equal(t, "A", st.Value[0].Symbol())
}

func TestHook_IndexerEnvelopeWithoutDataKeepsPreviousValue(t *testing.T) {
	bodies := []string{`{}`, `{"data":null}`, `{"error":"rate limited"}`}

	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			srv := newIndexerServer(t, record("A"))
			h := newHook(t, Options{Indexer: indexer.NewClient(srv.URL)})
			h.SetWallet(walletKey(1))

			_, err := h.RefreshAndWait(context.Background())
			require.NoError(t, err)

			srv.setBody(body)

			st, err := h.RefreshAndWait(context.Background())
			require.NoError(t, err)
			assert.ErrorIs(t, st.Err, indexer.ErrMissingData)
			require.True(t, st.HasValue)
			require.Len(t, st.Value, 1)
			assert.Equal(t, "A", st.Value[0].Symbol())
		})
	}
}

func TestHook_IndexerEmptyDataIsEmptyList(t *testing.T) {
	srv := newIndexerServer(t)
	h := newHook(t, Options{Indexer: indexer.NewClient(srv.URL)})
	h.SetWallet(walletKey(1))

	st, err := h.RefreshAndWait(context.Background())
	require.NoError(t, err)
	assert.NoError(t, st.Err)
	assert.True(t, st.HasValue)
	assert.Empty(t, st.Value)
}
