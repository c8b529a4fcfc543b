// Package tokenmanager reads token manager accounts and their token
// metadata directly from the chain.
package tokenmanager

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"token-manager-dashboard/internal/domain"
	"token-manager-dashboard/internal/solana"
)

// IssuerOffset is the byte offset of the issuer key inside a token manager
// account: discriminator(8) version(1) bump(1) count(8) numInvalidators(1).
const IssuerOffset = 8 + 1 + 1 + 8 + 1

// Discriminator prefixes every token manager account.
var Discriminator = accountDiscriminator("TokenManager")

// ErrNotTokenManager is returned for data without the token manager discriminator.
var ErrNotTokenManager = errors.New("account is not a token manager")

func accountDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

// DecodeTokenManager decodes raw token manager account data.
func DecodeTokenManager(data []byte) (domain.TokenManagerData, error) {
	var tm domain.TokenManagerData

	if len(data) < 8 || !bytes.Equal(data[:8], Discriminator[:]) {
		return tm, ErrNotTokenManager
	}

	r := reader{dec: bin.NewBorshDecoder(data[8:])}
	tm.Version = r.u8("version")
	tm.Bump = r.u8("bump")
	tm.Count = r.u64("count")
	tm.NumInvalidators = r.u8("numInvalidators")
	tm.Issuer = r.key("issuer")
	tm.Mint = r.key("mint")
	tm.Amount = r.u64("amount")
	tm.Kind = domain.TokenManagerKind(r.u8("kind"))
	tm.State = domain.TokenManagerState(r.u8("state"))
	tm.StateChangedAt = r.i64("stateChangedAt")
	tm.InvalidationType = domain.InvalidationType(r.u8("invalidationType"))
	tm.RecipientTokenAccount = r.key("recipientTokenAccount")
	tm.ReceiptMint = r.optionKey("receiptMint")
	tm.ClaimApprover = r.optionKey("claimApprover")
	tm.TransferAuthority = r.optionKey("transferAuthority")

	n := r.u32("invalidators")
	if r.err == nil && uint64(n)*solana.PublicKeyLength > uint64(r.dec.Remaining()) {
		r.err = fmt.Errorf("invalidators: length %d exceeds account data", n)
	}
	if r.err == nil {
		tm.Invalidators = make([]solana.PublicKey, 0, n)
		for i := uint32(0); i < n; i++ {
			tm.Invalidators = append(tm.Invalidators, r.key(fmt.Sprintf("invalidators[%d]", i)))
		}
	}

	if r.err != nil {
		return domain.TokenManagerData{}, fmt.Errorf("decode token manager: %w", r.err)
	}
	return tm, nil
}

// reader wraps a borsh decoder and keeps the first error with its field name.
type reader struct {
	dec *bin.Decoder
	err error
}

func (r *reader) fail(field string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("%s: %w", field, err)
	}
}

func (r *reader) u8(field string) uint8 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint8()
	if err != nil {
		r.fail(field, err)
	}
	return v
}

func (r *reader) u16(field string) uint16 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint16(bin.LE)
	if err != nil {
		r.fail(field, err)
	}
	return v
}

func (r *reader) u32(field string) uint32 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint32(bin.LE)
	if err != nil {
		r.fail(field, err)
	}
	return v
}

func (r *reader) u64(field string) uint64 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint64(bin.LE)
	if err != nil {
		r.fail(field, err)
	}
	return v
}

func (r *reader) i64(field string) int64 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadInt64(bin.LE)
	if err != nil {
		r.fail(field, err)
	}
	return v
}

func (r *reader) bool(field string) bool {
	return r.u8(field) != 0
}

func (r *reader) key(field string) solana.PublicKey {
	if r.err != nil {
		return solana.PublicKey{}
	}
	b, err := r.dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		r.fail(field, err)
		return solana.PublicKey{}
	}
	pk, _ := solana.PublicKeyFromBytes(b)
	return pk
}

func (r *reader) optionKey(field string) *solana.PublicKey {
	switch r.u8(field) {
	case 0:
		return nil
	case 1:
		k := r.key(field)
		if r.err != nil {
			return nil
		}
		return &k
	default:
		r.fail(field, errors.New("invalid option tag"))
		return nil
	}
}

// str reads a borsh string (u32 length prefix) and trims NUL padding.
func (r *reader) str(field string) string {
	n := r.u32(field)
	if r.err != nil {
		return ""
	}
	if int(n) > r.dec.Remaining() {
		r.fail(field, fmt.Errorf("string length %d exceeds account data", n))
		return ""
	}
	b, err := r.dec.ReadNBytes(int(n))
	if err != nil {
		r.fail(field, err)
		return ""
	}
	return string(bytes.TrimRight(b, "\x00"))
}
