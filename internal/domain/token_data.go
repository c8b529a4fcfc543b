package domain

// TokenData is one dashboard record: a token manager with its optional
// on-chain and off-chain metadata. Values are treated as immutable; a
// refresh replaces the whole collection.
type TokenData struct {
	TokenManager *TokenManager     `json:"tokenManager"`
	MetaplexData *MetaplexAccount  `json:"metaplexData"`
	Metadata     *OffchainMetadata `json:"metadata"`
}

// Symbol returns the off-chain symbol, or "" when metadata is missing.
func (t TokenData) Symbol() string {
	if t.Metadata == nil || t.Metadata.Data == nil {
		return ""
	}
	return t.Metadata.Data.Symbol
}

// HasCreator reports whether the off-chain properties list a creator with
// exactly address. Records without properties never match.
func (t TokenData) HasCreator(address string) bool {
	if t.Metadata == nil || t.Metadata.Data == nil || t.Metadata.Data.Properties == nil {
		return false
	}
	for _, c := range t.Metadata.Data.Properties.Creators {
		if c.Address == address {
			return true
		}
	}
	return false
}
