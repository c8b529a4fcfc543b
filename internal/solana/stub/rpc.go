// Package stub provides an in-memory solana.RPCClient for tests.
package stub

import (
	"bytes"
	"context"
	"encoding/base64"
	"sync"

	"token-manager-dashboard/internal/solana"
)

// RPCClient implements solana.RPCClient over an in-memory account set.
type RPCClient struct {
	mu       sync.Mutex
	accounts map[solana.PublicKey]*solana.AccountInfo
	order    []solana.PublicKey

	// Err, when set, is returned by every call.
	Err error

	programCalls  int
	multipleCalls int
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		accounts: make(map[solana.PublicKey]*solana.AccountInfo),
	}
}

var _ solana.RPCClient = (*RPCClient)(nil)

// AddAccount stores data at address, owned by owner.
func (c *RPCClient) AddAccount(address, owner solana.PublicKey, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.accounts[address]; !ok {
		c.order = append(c.order, address)
	}
	c.accounts[address] = &solana.AccountInfo{
		Lamports: 1,
		Owner:    owner.String(),
		Data:     base64.StdEncoding.EncodeToString(data),
	}
}

// GetProgramAccounts returns accounts owned by programID matching all filters,
// in insertion order.
func (c *RPCClient) GetProgramAccounts(_ context.Context, programID solana.PublicKey, filters []solana.AccountFilter) ([]solana.KeyedAccount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.programCalls++
	if c.Err != nil {
		return nil, c.Err
	}

	var out []solana.KeyedAccount
	for _, key := range c.order {
		info := c.accounts[key]
		if info.Owner != programID.String() {
			continue
		}
		data, err := info.DecodeData()
		if err != nil {
			return nil, err
		}
		if !matches(data, filters) {
			continue
		}
		copied := *info
		out = append(out, solana.KeyedAccount{Pubkey: key, Account: &copied})
	}
	return out, nil
}

// GetMultipleAccounts returns infos in request order, nil for unknown keys.
func (c *RPCClient) GetMultipleAccounts(_ context.Context, keys []solana.PublicKey) ([]*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.multipleCalls++
	if c.Err != nil {
		return nil, c.Err
	}

	out := make([]*solana.AccountInfo, len(keys))
	for i, key := range keys {
		if info, ok := c.accounts[key]; ok {
			copied := *info
			out[i] = &copied
		}
	}
	return out, nil
}

// Calls reports how many getProgramAccounts and getMultipleAccounts calls were made.
func (c *RPCClient) Calls() (program, multiple int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.programCalls, c.multipleCalls
}

func matches(data []byte, filters []solana.AccountFilter) bool {
	for _, f := range filters {
		if f.DataSize > 0 && uint64(len(data)) != f.DataSize {
			return false
		}
		if m := f.Memcmp; m != nil {
			end := m.Offset + uint64(len(m.Bytes))
			if end > uint64(len(data)) || !bytes.Equal(data[m.Offset:end], m.Bytes) {
				return false
			}
		}
	}
	return true
}
