package indexer

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-manager-dashboard/internal/domain"
	"token-manager-dashboard/internal/solana"
)

const (
	keyA = "mgr99QFMYByTqGPWmNqunV7vBLmWWXdSrHUfV8Jf3JM"
	keyB = "metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s"
	keyC = "So11111111111111111111111111111111111111112"
	keyD = "11111111111111111111111111111111"
)

func sampleRecordJSON() string {
	return `{
		"tokenManager": {
			"pubkey": "` + keyA + `",
			"parsed": {
				"version": 0, "bump": 255, "count": "12", "numInvalidators": 1,
				"issuer": "` + keyB + `", "mint": "` + keyC + `", "amount": 1,
				"kind": 1, "state": 2, "stateChangedAt": "1650000000", "invalidationType": 1,
				"recipientTokenAccount": "` + keyD + `",
				"receiptMint": null, "claimApprover": "` + keyA + `", "transferAuthority": null,
				"invalidators": ["` + keyB + `"]
			}
		},
		"metaplexData": {
			"pubkey": "` + keyB + `",
			"data": {"key": 4, "updateAuthority": "` + keyA + `", "mint": "` + keyC + `",
				"name": "Pass", "symbol": "RENT", "uri": "https://x",
				"creators": [{"address": "` + keyD + `", "verified": true, "share": 100}]}
		},
		"metadata": {
			"pubkey": "` + keyB + `",
			"data": {"name": "Pass", "symbol": "RENT", "properties": {"creators": [{"address": "creatorA", "share": 100}]}}
		}
	}`
}

func TestDecodeTokenData(t *testing.T) {
	var raw RawTokenData
	require.NoError(t, json.Unmarshal([]byte(sampleRecordJSON()), &raw))

	td, err := DecodeTokenData(raw)
	require.NoError(t, err)

	require.NotNil(t, td.TokenManager)
	assert.Equal(t, keyA, td.TokenManager.Pubkey.String())
	p := td.TokenManager.Parsed
	assert.Equal(t, uint64(12), p.Count)
	assert.Equal(t, keyB, p.Issuer.String())
	assert.Equal(t, domain.StateClaimed, p.State)
	assert.Equal(t, int64(1650000000), p.StateChangedAt)
	assert.Nil(t, p.ReceiptMint)
	require.NotNil(t, p.ClaimApprover)
	assert.Equal(t, keyA, p.ClaimApprover.String())
	assert.Equal(t, []solana.PublicKey{solana.MustPublicKey(keyB)}, p.Invalidators)

	require.NotNil(t, td.MetaplexData)
	assert.Equal(t, keyD, td.MetaplexData.Data.Creators[0].Address.String())

	assert.Equal(t, "RENT", td.Symbol())
	assert.True(t, td.HasCreator("creatorA"))
}

func TestDecodeTokenData_RoundTrip(t *testing.T) {
	var raw RawTokenData
	require.NoError(t, json.Unmarshal([]byte(sampleRecordJSON()), &raw))
	td, err := DecodeTokenData(raw)
	require.NoError(t, err)

	again, err := DecodeTokenData(EncodeTokenData(td))
	require.NoError(t, err)
	assert.Equal(t, td, again)
}

func TestDecodeTokenData_BadKeyPaths(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *RawTokenData)
		path   string
	}{
		{"top-level pubkey", func(r *RawTokenData) { r.TokenManager.Pubkey = "bad" }, "tokenManager.pubkey"},
		{"issuer", func(r *RawTokenData) { r.TokenManager.Parsed.Issuer = "" }, "tokenManager.parsed.issuer"},
		{"optional key", func(r *RawTokenData) {
			s := "0OIl"
			r.TokenManager.Parsed.ReceiptMint = &s
		}, "tokenManager.parsed.receiptMint"},
		{"list element", func(r *RawTokenData) {
			r.TokenManager.Parsed.Invalidators = []string{keyA, keyB, "tooShort"}
		}, "tokenManager.parsed.invalidators[2]"},
		{"nested creator", func(r *RawTokenData) { r.MetaplexData.Data.Creators[0].Address = "x" }, "metaplexData.data.creators[0].address"},
		{"metadata pubkey", func(r *RawTokenData) { r.Metadata.Pubkey = "x" }, "metadata.pubkey"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var raw RawTokenData
			require.NoError(t, json.Unmarshal([]byte(sampleRecordJSON()), &raw))
			tt.mutate(&raw)

			_, err := DecodeTokenData(raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, solana.ErrInvalidPublicKey))
			assert.Contains(t, err.Error(), tt.path+":")
		})
	}
}

func TestDecodeTokenDatas_IndexPrefix(t *testing.T) {
	var good, bad RawTokenData
	require.NoError(t, json.Unmarshal([]byte(sampleRecordJSON()), &good))
	require.NoError(t, json.Unmarshal([]byte(sampleRecordJSON()), &bad))
	bad.TokenManager.Parsed.Mint = "nope"

	_, err := DecodeTokenDatas([]RawTokenData{good, bad})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data[1].tokenManager.parsed.mint")
	assert.ErrorIs(t, err, solana.ErrInvalidPublicKey)
}

func TestFlexIntegers(t *testing.T) {
	var v struct {
		A FlexUint64 `json:"a"`
		B FlexInt64  `json:"b"`
		C FlexUint64 `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"18446744073709551615","b":-5,"c":null}`), &v))
	assert.Equal(t, FlexUint64(18446744073709551615), v.A)
	assert.Equal(t, FlexInt64(-5), v.B)
	assert.Equal(t, FlexUint64(0), v.C)

	assert.Error(t, json.Unmarshal([]byte(`{"a":"1.5"}`), &v))
}
