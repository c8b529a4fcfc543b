package tokenmanager

import (
	"encoding/binary"

	"token-manager-dashboard/internal/domain"
	"token-manager-dashboard/internal/solana"
)

func testKey(seed byte) solana.PublicKey {
	var pk solana.PublicKey
	for i := range pk {
		pk[i] = seed + byte(i)
	}
	return pk
}

func encodeOptionKey(b []byte, k *solana.PublicKey) []byte {
	if k == nil {
		return append(b, 0)
	}
	b = append(b, 1)
	return append(b, k[:]...)
}

func encodeTokenManager(tm domain.TokenManagerData) []byte {
	b := append([]byte{}, Discriminator[:]...)
	b = append(b, tm.Version, tm.Bump)
	b = binary.LittleEndian.AppendUint64(b, tm.Count)
	b = append(b, tm.NumInvalidators)
	b = append(b, tm.Issuer[:]...)
	b = append(b, tm.Mint[:]...)
	b = binary.LittleEndian.AppendUint64(b, tm.Amount)
	b = append(b, uint8(tm.Kind), uint8(tm.State))
	b = binary.LittleEndian.AppendUint64(b, uint64(tm.StateChangedAt))
	b = append(b, uint8(tm.InvalidationType))
	b = append(b, tm.RecipientTokenAccount[:]...)
	b = encodeOptionKey(b, tm.ReceiptMint)
	b = encodeOptionKey(b, tm.ClaimApprover)
	b = encodeOptionKey(b, tm.TransferAuthority)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(tm.Invalidators)))
	for _, k := range tm.Invalidators {
		b = append(b, k[:]...)
	}
	return b
}

func encodeString(b []byte, s string, padTo int) []byte {
	raw := []byte(s)
	for len(raw) < padTo {
		raw = append(raw, 0)
	}
	b = binary.LittleEndian.AppendUint32(b, uint32(len(raw)))
	return append(b, raw...)
}

func encodeMetadata(md domain.MetaplexMetadata) []byte {
	b := []byte{metadataKeyV1}
	b = append(b, md.UpdateAuthority[:]...)
	b = append(b, md.Mint[:]...)
	b = encodeString(b, md.Name, 32)
	b = encodeString(b, md.Symbol, 10)
	b = encodeString(b, md.URI, 200)
	b = binary.LittleEndian.AppendUint16(b, md.SellerFeeBasisPoints)
	if md.Creators == nil {
		b = append(b, 0)
	} else {
		b = append(b, 1)
		b = binary.LittleEndian.AppendUint32(b, uint32(len(md.Creators)))
		for _, c := range md.Creators {
			b = append(b, c.Address[:]...)
			verified := byte(0)
			if c.Verified {
				verified = 1
			}
			b = append(b, verified, c.Share)
		}
	}
	// primarySaleHappened, isMutable
	return append(b, 0, 1)
}

func sampleTokenManager(issuer, mint solana.PublicKey) domain.TokenManagerData {
	receipt := testKey(90)
	return domain.TokenManagerData{
		Version:               0,
		Bump:                  254,
		Count:                 3,
		NumInvalidators:       2,
		Issuer:                issuer,
		Mint:                  mint,
		Amount:                1,
		Kind:                  domain.KindEdition,
		State:                 domain.StateClaimed,
		StateChangedAt:        1650000000,
		InvalidationType:      domain.InvalidationReturn,
		RecipientTokenAccount: testKey(70),
		ReceiptMint:           &receipt,
		Invalidators:          []solana.PublicKey{testKey(100), testKey(110)},
	}
}
