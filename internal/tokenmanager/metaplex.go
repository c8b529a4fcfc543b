package tokenmanager

import (
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"token-manager-dashboard/internal/domain"
	"token-manager-dashboard/internal/solana"
)

// metadataKeyV1 is the Metaplex account key for MetadataV1.
const metadataKeyV1 = 4

// ErrNotMetadata is returned for data that is not a Metaplex MetadataV1 account.
var ErrNotMetadata = errors.New("account is not metaplex metadata")

// MetadataAddress derives the Metaplex metadata PDA for mint.
func MetadataAddress(mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{
		[]byte("metadata"),
		solana.MetadataProgramID.Bytes(),
		mint.Bytes(),
	}, solana.MetadataProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("metadata address for %s: %w", mint, err)
	}
	return addr, nil
}

// DecodeMetadata decodes the leading fields of a Metaplex metadata account.
// Trailing fields (collection, uses, ...) are ignored.
func DecodeMetadata(data []byte) (domain.MetaplexMetadata, error) {
	var md domain.MetaplexMetadata

	if len(data) == 0 || data[0] != metadataKeyV1 {
		return md, ErrNotMetadata
	}

	r := reader{dec: bin.NewBorshDecoder(data)}
	md.Key = r.u8("key")
	md.UpdateAuthority = r.key("updateAuthority")
	md.Mint = r.key("mint")
	md.Name = r.str("name")
	md.Symbol = r.str("symbol")
	md.URI = r.str("uri")
	md.SellerFeeBasisPoints = r.u16("sellerFeeBasisPoints")

	switch r.u8("creators") {
	case 0:
	case 1:
		n := r.u32("creators")
		if r.err == nil && int(n)*(solana.PublicKeyLength+2) > r.dec.Remaining() {
			r.fail("creators", fmt.Errorf("length %d exceeds account data", n))
		}
		for i := uint32(0); r.err == nil && i < n; i++ {
			field := fmt.Sprintf("creators[%d]", i)
			c := domain.Creator{
				Address:  r.key(field),
				Verified: r.bool(field),
				Share:    r.u8(field),
			}
			md.Creators = append(md.Creators, c)
		}
	default:
		r.fail("creators", errors.New("invalid option tag"))
	}

	if r.err != nil {
		return domain.MetaplexMetadata{}, fmt.Errorf("decode metadata: %w", r.err)
	}
	return md, nil
}
