package indexer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"token-manager-dashboard/internal/domain"
	"token-manager-dashboard/internal/solana"
)

// The indexer serves keys as base58 strings and integers either as JSON
// numbers or decimal strings. The Raw* types mirror that wire shape; the
// codec converts them to domain values and back.

// FlexUint64 accepts a JSON number or a decimal string.
type FlexUint64 uint64

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexUint64) UnmarshalJSON(b []byte) error {
	s, err := flexDigits(b)
	if err != nil {
		return err
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid unsigned integer %s: %w", b, err)
	}
	*f = FlexUint64(v)
	return nil
}

// FlexInt64 accepts a JSON number or a decimal string.
type FlexInt64 int64

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexInt64) UnmarshalJSON(b []byte) error {
	s, err := flexDigits(b)
	if err != nil {
		return err
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid integer %s: %w", b, err)
	}
	*f = FlexInt64(v)
	return nil
}

func flexDigits(b []byte) (string, error) {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return "0", nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	return string(b), nil
}

// RawTokenData is one record of the tokenManagersByState response.
type RawTokenData struct {
	TokenManager *RawTokenManager     `json:"tokenManager"`
	MetaplexData *RawMetaplexAccount  `json:"metaplexData"`
	Metadata     *RawOffchainMetadata `json:"metadata"`
}

// RawTokenManager is the wire form of domain.TokenManager.
type RawTokenManager struct {
	Pubkey string                `json:"pubkey"`
	Parsed RawTokenManagerParsed `json:"parsed"`
}

// RawTokenManagerParsed is the wire form of domain.TokenManagerData.
type RawTokenManagerParsed struct {
	Version               uint8      `json:"version"`
	Bump                  uint8      `json:"bump"`
	Count                 FlexUint64 `json:"count"`
	NumInvalidators       uint8      `json:"numInvalidators"`
	Issuer                string     `json:"issuer"`
	Mint                  string     `json:"mint"`
	Amount                FlexUint64 `json:"amount"`
	Kind                  uint8      `json:"kind"`
	State                 uint8      `json:"state"`
	StateChangedAt        FlexInt64  `json:"stateChangedAt"`
	InvalidationType      uint8      `json:"invalidationType"`
	RecipientTokenAccount string     `json:"recipientTokenAccount"`
	ReceiptMint           *string    `json:"receiptMint"`
	ClaimApprover         *string    `json:"claimApprover"`
	TransferAuthority     *string    `json:"transferAuthority"`
	Invalidators          []string   `json:"invalidators"`
}

// RawMetaplexAccount is the wire form of domain.MetaplexAccount.
type RawMetaplexAccount struct {
	Pubkey string          `json:"pubkey"`
	Data   RawMetaplexData `json:"data"`
}

// RawMetaplexData is the wire form of domain.MetaplexMetadata.
type RawMetaplexData struct {
	Key                  uint8        `json:"key"`
	UpdateAuthority      string       `json:"updateAuthority"`
	Mint                 string       `json:"mint"`
	Name                 string       `json:"name"`
	Symbol               string       `json:"symbol"`
	URI                  string       `json:"uri"`
	SellerFeeBasisPoints uint16       `json:"sellerFeeBasisPoints"`
	Creators             []RawCreator `json:"creators"`
}

// RawCreator is the wire form of domain.Creator.
type RawCreator struct {
	Address  string `json:"address"`
	Verified bool   `json:"verified"`
	Share    uint8  `json:"share"`
}

// RawOffchainMetadata is the wire form of domain.OffchainMetadata.
type RawOffchainMetadata struct {
	Pubkey string               `json:"pubkey"`
	Data   *domain.OffchainData `json:"data"`
}

// keyPath converts base58 strings while tracking the JSON path of the
// current field; the first failure is kept.
type keyPath struct {
	prefix string
	err    error
}

func (p *keyPath) key(field, s string) solana.PublicKey {
	if p.err != nil {
		return solana.PublicKey{}
	}
	pk, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		p.err = fmt.Errorf("%s%s: %w", p.prefix, field, err)
	}
	return pk
}

func (p *keyPath) optional(field string, s *string) *solana.PublicKey {
	if s == nil || *s == "" {
		return nil
	}
	pk := p.key(field, *s)
	if p.err != nil {
		return nil
	}
	return &pk
}

// DecodeTokenData converts one raw record into its domain form. Every key at
// every depth is converted; a malformed key fails the whole record with an
// error naming the field path and wrapping solana.ErrInvalidPublicKey.
func DecodeTokenData(raw RawTokenData) (domain.TokenData, error) {
	var out domain.TokenData

	if tm := raw.TokenManager; tm != nil {
		p := &keyPath{prefix: "tokenManager."}
		m := &domain.TokenManager{Pubkey: p.key("pubkey", tm.Pubkey)}

		p.prefix = "tokenManager.parsed."
		src := tm.Parsed
		m.Parsed = domain.TokenManagerData{
			Version:               src.Version,
			Bump:                  src.Bump,
			Count:                 uint64(src.Count),
			NumInvalidators:       src.NumInvalidators,
			Issuer:                p.key("issuer", src.Issuer),
			Mint:                  p.key("mint", src.Mint),
			Amount:                uint64(src.Amount),
			Kind:                  domain.TokenManagerKind(src.Kind),
			State:                 domain.TokenManagerState(src.State),
			StateChangedAt:        int64(src.StateChangedAt),
			InvalidationType:      domain.InvalidationType(src.InvalidationType),
			RecipientTokenAccount: p.key("recipientTokenAccount", src.RecipientTokenAccount),
			ReceiptMint:           p.optional("receiptMint", src.ReceiptMint),
			ClaimApprover:         p.optional("claimApprover", src.ClaimApprover),
			TransferAuthority:     p.optional("transferAuthority", src.TransferAuthority),
			Invalidators:          make([]solana.PublicKey, 0, len(src.Invalidators)),
		}
		for i, s := range src.Invalidators {
			m.Parsed.Invalidators = append(m.Parsed.Invalidators, p.key(fmt.Sprintf("invalidators[%d]", i), s))
		}
		if p.err != nil {
			return domain.TokenData{}, p.err
		}
		out.TokenManager = m
	}

	if mp := raw.MetaplexData; mp != nil {
		p := &keyPath{prefix: "metaplexData."}
		acc := &domain.MetaplexAccount{Pubkey: p.key("pubkey", mp.Pubkey)}

		p.prefix = "metaplexData.data."
		acc.Data = domain.MetaplexMetadata{
			Key:                  mp.Data.Key,
			UpdateAuthority:      p.key("updateAuthority", mp.Data.UpdateAuthority),
			Mint:                 p.key("mint", mp.Data.Mint),
			Name:                 mp.Data.Name,
			Symbol:               mp.Data.Symbol,
			URI:                  mp.Data.URI,
			SellerFeeBasisPoints: mp.Data.SellerFeeBasisPoints,
		}
		for i, c := range mp.Data.Creators {
			acc.Data.Creators = append(acc.Data.Creators, domain.Creator{
				Address:  p.key(fmt.Sprintf("creators[%d].address", i), c.Address),
				Verified: c.Verified,
				Share:    c.Share,
			})
		}
		if p.err != nil {
			return domain.TokenData{}, p.err
		}
		out.MetaplexData = acc
	}

	if md := raw.Metadata; md != nil {
		p := &keyPath{prefix: "metadata."}
		meta := &domain.OffchainMetadata{Pubkey: p.key("pubkey", md.Pubkey), Data: md.Data}
		if p.err != nil {
			return domain.TokenData{}, p.err
		}
		out.Metadata = meta
	}

	return out, nil
}

// DecodeTokenDatas decodes every record, prefixing errors with data[i].
func DecodeTokenDatas(raws []RawTokenData) ([]domain.TokenData, error) {
	out := make([]domain.TokenData, 0, len(raws))
	for i, raw := range raws {
		td, err := DecodeTokenData(raw)
		if err != nil {
			return nil, fmt.Errorf("data[%d].%w", i, err)
		}
		out = append(out, td)
	}
	return out, nil
}

// EncodeTokenData converts a domain record to its wire form.
func EncodeTokenData(td domain.TokenData) RawTokenData {
	var out RawTokenData

	if tm := td.TokenManager; tm != nil {
		src := tm.Parsed
		parsed := RawTokenManagerParsed{
			Version:               src.Version,
			Bump:                  src.Bump,
			Count:                 FlexUint64(src.Count),
			NumInvalidators:       src.NumInvalidators,
			Issuer:                src.Issuer.String(),
			Mint:                  src.Mint.String(),
			Amount:                FlexUint64(src.Amount),
			Kind:                  uint8(src.Kind),
			State:                 uint8(src.State),
			StateChangedAt:        FlexInt64(src.StateChangedAt),
			InvalidationType:      uint8(src.InvalidationType),
			RecipientTokenAccount: src.RecipientTokenAccount.String(),
			ReceiptMint:           optionalString(src.ReceiptMint),
			ClaimApprover:         optionalString(src.ClaimApprover),
			TransferAuthority:     optionalString(src.TransferAuthority),
			Invalidators:          make([]string, 0, len(src.Invalidators)),
		}
		for _, k := range src.Invalidators {
			parsed.Invalidators = append(parsed.Invalidators, k.String())
		}
		out.TokenManager = &RawTokenManager{Pubkey: tm.Pubkey.String(), Parsed: parsed}
	}

	if mp := td.MetaplexData; mp != nil {
		data := RawMetaplexData{
			Key:                  mp.Data.Key,
			UpdateAuthority:      mp.Data.UpdateAuthority.String(),
			Mint:                 mp.Data.Mint.String(),
			Name:                 mp.Data.Name,
			Symbol:               mp.Data.Symbol,
			URI:                  mp.Data.URI,
			SellerFeeBasisPoints: mp.Data.SellerFeeBasisPoints,
		}
		for _, c := range mp.Data.Creators {
			data.Creators = append(data.Creators, RawCreator{Address: c.Address.String(), Verified: c.Verified, Share: c.Share})
		}
		out.MetaplexData = &RawMetaplexAccount{Pubkey: mp.Pubkey.String(), Data: data}
	}

	if md := td.Metadata; md != nil {
		out.Metadata = &RawOffchainMetadata{Pubkey: md.Pubkey.String(), Data: md.Data}
	}

	return out
}

func optionalString(k *solana.PublicKey) *string {
	if k == nil {
		return nil
	}
	s := k.String()
	return &s
}
