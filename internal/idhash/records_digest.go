package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeRecordsDigest computes a deterministic digest of a wallet's records.
// Formula: SHA256(cluster|wallet|records)
// Returns hex-encoded hash (64 characters).
func ComputeRecordsDigest(cluster, wallet string, records []byte) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|", cluster, wallet)
	h.Write(records)
	return hex.EncodeToString(h.Sum(nil))
}
