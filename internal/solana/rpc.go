package solana

import (
	"context"
	"encoding/base64"
	"fmt"
)

// RPCClient defines the Solana RPC HTTP methods used for account enumeration.
type RPCClient interface {
	// GetProgramAccounts returns all accounts owned by programID matching every filter.
	GetProgramAccounts(ctx context.Context, programID PublicKey, filters []AccountFilter) ([]KeyedAccount, error)

	// GetMultipleAccounts returns account infos in request order.
	// Missing accounts are returned as nil entries.
	GetMultipleAccounts(ctx context.Context, keys []PublicKey) ([]*AccountInfo, error)
}

// AccountFilter is a getProgramAccounts filter. Exactly one field should be set.
type AccountFilter struct {
	Memcmp   *MemcmpFilter
	DataSize uint64
}

// MemcmpFilter matches accounts whose data at Offset equals Bytes.
type MemcmpFilter struct {
	Offset uint64
	Bytes  []byte
}

// KeyedAccount pairs an account address with its info.
type KeyedAccount struct {
	Pubkey  PublicKey
	Account *AccountInfo
}

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Data       string `json:"data"` // base64 encoded
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rentEpoch"`
}

// DecodeData returns the raw account data.
func (a *AccountInfo) DecodeData() ([]byte, error) {
	if a == nil || a.Data == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(a.Data)
	if err != nil {
		return nil, fmt.Errorf("decode account data: %w", err)
	}
	return data, nil
}
