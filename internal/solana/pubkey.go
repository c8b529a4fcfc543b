package solana

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PublicKeyLength is the size of an ed25519 public key in bytes.
const PublicKeyLength = 32

// maxSeedLength is the maximum length of a single PDA seed.
const maxSeedLength = 32

// Well-known program IDs.
var (
	// TokenManagerProgramID owns token manager accounts.
	TokenManagerProgramID = MustPublicKey("mgr99QFMYByTqGPWmNqunV7vBLmWWXdSrHUfV8Jf3JM")
	// MetadataProgramID is the Metaplex Token Metadata program.
	MetadataProgramID = MustPublicKey("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")
)

var (
	// ErrInvalidPublicKey is returned when a string is not a base58 encoded 32-byte key.
	ErrInvalidPublicKey = errors.New("invalid public key")

	// ErrNoProgramAddress is returned when no off-curve bump seed exists.
	ErrNoProgramAddress = errors.New("unable to find a viable program address")
)

// PublicKey is a typed 32-byte Solana account address.
// Its text form is base58 (Bitcoin alphabet).
type PublicKey [PublicKeyLength]byte

// PublicKeyFromBase58 decodes a base58 string.
// Returns an error wrapping ErrInvalidPublicKey for bad characters or wrong length.
func PublicKeyFromBase58(s string) (PublicKey, error) {
	var pk PublicKey
	if s == "" {
		return pk, fmt.Errorf("%w: empty string", ErrInvalidPublicKey)
	}
	decoded, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("%w: %q: %v", ErrInvalidPublicKey, s, err)
	}
	if len(decoded) != PublicKeyLength {
		return pk, fmt.Errorf("%w: %q decodes to %d bytes", ErrInvalidPublicKey, s, len(decoded))
	}
	copy(pk[:], decoded)
	return pk, nil
}

// PublicKeyFromBytes copies a 32-byte slice into a PublicKey.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var pk PublicKey
	if len(b) != PublicKeyLength {
		return pk, fmt.Errorf("%w: got %d bytes", ErrInvalidPublicKey, len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// MustPublicKey is like PublicKeyFromBase58 but panics on error.
// Intended for constants.
func MustPublicKey(s string) PublicKey {
	pk, err := PublicKeyFromBase58(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// String returns the base58 form.
func (p PublicKey) String() string {
	return base58.Encode(p[:])
}

// IsZero reports whether p is the all-zero key.
func (p PublicKey) IsZero() bool {
	return p == PublicKey{}
}

// Bytes returns a copy of the key bytes.
func (p PublicKey) Bytes() []byte {
	b := make([]byte, PublicKeyLength)
	copy(b, p[:])
	return b
}

// MarshalText implements encoding.TextMarshaler.
func (p PublicKey) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PublicKey) UnmarshalText(text []byte) error {
	pk, err := PublicKeyFromBase58(string(text))
	if err != nil {
		return err
	}
	*p = pk
	return nil
}

// FindProgramAddress derives a Program Derived Address.
// Tries bump seeds from 255 down and returns the first off-curve hash of
// seeds | bump | programID | "ProgramDerivedAddress".
func FindProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, uint8, error) {
	for _, seed := range seeds {
		if len(seed) > maxSeedLength {
			return PublicKey{}, 0, fmt.Errorf("seed length %d exceeds %d", len(seed), maxSeedLength)
		}
	}

	for bump := byte(255); bump > 0; bump-- {
		h := sha256.New()
		for _, seed := range seeds {
			h.Write(seed)
		}
		h.Write([]byte{bump})
		h.Write(programID[:])
		h.Write([]byte("ProgramDerivedAddress"))

		var candidate PublicKey
		copy(candidate[:], h.Sum(nil))

		if !isOnCurve(candidate[:]) {
			return candidate, bump, nil
		}
	}

	return PublicKey{}, 0, ErrNoProgramAddress
}

func isOnCurve(point []byte) bool {
	if len(point) != PublicKeyLength {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
