package indexer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-manager-dashboard/internal/solana"
)

func TestClient_TokenManagersByState(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tokenManagersByState", r.URL.Path)
		gotQuery = r.URL.Query().Get("cluster")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"data":[%s]}`, sampleRecordJSON())
	}))
	defer server.Close()

	client := NewClient(server.URL + "/")
	tokens, err := client.TokenManagersByState(context.Background(), "devnet")
	require.NoError(t, err)

	assert.Equal(t, "devnet", gotQuery)
	require.Len(t, tokens, 1)
	assert.Equal(t, solana.MustPublicKey(keyA), tokens[0].TokenManager.Pubkey)
}

func TestClient_EmptyData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer server.Close()

	tokens, err := NewClient(server.URL).TokenManagersByState(context.Background(), "mainnet-beta")
	require.NoError(t, err)
	assert.NotNil(t, tokens)
	assert.Empty(t, tokens)
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		substr  string
	}{
		{"server error", http.StatusInternalServerError, "boom", ErrUnexpectedStatus, "500"},
		{"not found", http.StatusNotFound, "", ErrUnexpectedStatus, "404"},
		{"malformed json", http.StatusOK, `{"data":[`, nil, "decode indexer response"},
		{"empty object", http.StatusOK, `{}`, ErrMissingData, "no data"},
		{"null data", http.StatusOK, `{"data":null}`, ErrMissingData, "no data"},
		{"error envelope", http.StatusOK, `{"error":"rate limited"}`, ErrMissingData, "rate limited"},
		{"malformed key", http.StatusOK, `{"data":[{"tokenManager":{"pubkey":"bad","parsed":{}}}]}`, solana.ErrInvalidPublicKey, "data[0].tokenManager.pubkey"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			_, err := NewClient(server.URL).TokenManagersByState(context.Background(), "devnet")
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Contains(t, err.Error(), tt.substr)
		})
	}
}
