package tokenmanager

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-manager-dashboard/internal/domain"
)

func TestDecodeTokenManager_RoundTrip(t *testing.T) {
	want := sampleTokenManager(testKey(1), testKey(2))

	got, err := DecodeTokenManager(encodeTokenManager(want))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecodeTokenManager_IssuerOffset(t *testing.T) {
	issuer := testKey(42)
	data := encodeTokenManager(sampleTokenManager(issuer, testKey(2)))

	assert.Equal(t, issuer[:], data[IssuerOffset:IssuerOffset+32])
}

func TestDecodeTokenManager_Errors(t *testing.T) {
	valid := encodeTokenManager(sampleTokenManager(testKey(1), testKey(2)))

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrNotTokenManager},
		{"wrong discriminator", append([]byte{1, 2, 3, 4, 5, 6, 7, 8}, valid[8:]...), ErrNotTokenManager},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeTokenManager(tt.data)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	t.Run("truncated", func(t *testing.T) {
		_, err := DecodeTokenManager(valid[:60])
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decode token manager")
	})

	t.Run("bad option tag", func(t *testing.T) {
		tm := sampleTokenManager(testKey(1), testKey(2))
		tm.ReceiptMint = nil
		data := encodeTokenManager(tm)
		// receiptMint tag follows recipientTokenAccount
		data[8+1+1+8+1+32+32+8+1+1+8+1+32] = 7
		_, err := DecodeTokenManager(data)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "receiptMint")
	})
}

func TestDecodeMetadata(t *testing.T) {
	want := domain.MetaplexMetadata{
		Key:                  metadataKeyV1,
		UpdateAuthority:      testKey(5),
		Mint:                 testKey(6),
		Name:                 "Rental Pass #1",
		Symbol:               "RENT",
		URI:                  "https://arweave.net/abc",
		SellerFeeBasisPoints: 500,
		Creators: []domain.Creator{
			{Address: testKey(7), Verified: true, Share: 100},
		},
	}

	got, err := DecodeMetadata(encodeMetadata(want))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = DecodeMetadata([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrNotMetadata)
}

func TestMetadataAddress_Deterministic(t *testing.T) {
	a, err := MetadataAddress(testKey(9))
	require.NoError(t, err)
	b, err := MetadataAddress(testKey(9))
	require.NoError(t, err)
	c, err := MetadataAddress(testKey(10))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
