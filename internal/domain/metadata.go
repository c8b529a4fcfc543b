package domain

import "token-manager-dashboard/internal/solana"

// Creator is an on-chain Metaplex creator entry.
type Creator struct {
	Address  solana.PublicKey `json:"address"`
	Verified bool             `json:"verified"`
	Share    uint8            `json:"share"`
}

// MetaplexMetadata is the decoded Metaplex token metadata account.
type MetaplexMetadata struct {
	Key                  uint8            `json:"key"`
	UpdateAuthority      solana.PublicKey `json:"updateAuthority"`
	Mint                 solana.PublicKey `json:"mint"`
	Name                 string           `json:"name"`
	Symbol               string           `json:"symbol"`
	URI                  string           `json:"uri"`
	SellerFeeBasisPoints uint16           `json:"sellerFeeBasisPoints"`
	Creators             []Creator        `json:"creators"`
}

// MetaplexAccount pairs a metadata account address with its data.
type MetaplexAccount struct {
	Pubkey solana.PublicKey `json:"pubkey"`
	Data   MetaplexMetadata `json:"data"`
}

// OffchainCreator is a creator listed in the off-chain metadata document.
// Addresses are kept as text because the document is not validated.
type OffchainCreator struct {
	Address string `json:"address"`
	Share   int    `json:"share"`
}

// OffchainProperties is the properties block of the off-chain document.
type OffchainProperties struct {
	Creators []OffchainCreator `json:"creators"`
}

// OffchainData is the JSON document referenced by the Metaplex uri.
type OffchainData struct {
	Name        string              `json:"name"`
	Symbol      string              `json:"symbol"`
	Description string              `json:"description,omitempty"`
	Image       string              `json:"image,omitempty"`
	ExternalURL string              `json:"external_url,omitempty"`
	Properties  *OffchainProperties `json:"properties,omitempty"`
}

// OffchainMetadata is the off-chain document keyed by its metadata account.
type OffchainMetadata struct {
	Pubkey solana.PublicKey `json:"pubkey"`
	Data   *OffchainData    `json:"data"`
}
