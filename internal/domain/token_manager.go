package domain

import (
	"fmt"

	"token-manager-dashboard/internal/solana"
)

// TokenManagerState is the lifecycle stage of a token manager.
type TokenManagerState uint8

const (
	StateInitialized TokenManagerState = 0
	StateIssued      TokenManagerState = 1
	StateClaimed     TokenManagerState = 2
	StateInvalidated TokenManagerState = 3
)

func (s TokenManagerState) String() string {
	switch s {
	case StateInitialized:
		return "Initialized"
	case StateIssued:
		return "Issued"
	case StateClaimed:
		return "Claimed"
	case StateInvalidated:
		return "Invalidated"
	}
	return fmt.Sprintf("Unknown(%d)", uint8(s))
}

// TokenManagerKind describes how the token is held while managed.
type TokenManagerKind uint8

const (
	KindManaged   TokenManagerKind = 1
	KindUnmanaged TokenManagerKind = 2
	KindEdition   TokenManagerKind = 3
)

func (k TokenManagerKind) String() string {
	switch k {
	case KindManaged:
		return "Managed"
	case KindUnmanaged:
		return "Unmanaged"
	case KindEdition:
		return "Edition"
	}
	return fmt.Sprintf("Unknown(%d)", uint8(k))
}

// InvalidationType is what happens to the token when the manager is invalidated.
type InvalidationType uint8

const (
	InvalidationReturn     InvalidationType = 1
	InvalidationInvalidate InvalidationType = 2
	InvalidationRelease    InvalidationType = 3
	InvalidationReissue    InvalidationType = 4
)

func (t InvalidationType) String() string {
	switch t {
	case InvalidationReturn:
		return "Return"
	case InvalidationInvalidate:
		return "Invalidate"
	case InvalidationRelease:
		return "Release"
	case InvalidationReissue:
		return "Reissue"
	}
	return fmt.Sprintf("Unknown(%d)", uint8(t))
}

// TokenManagerData is the decoded token manager account.
type TokenManagerData struct {
	Version               uint8              `json:"version"`
	Bump                  uint8              `json:"bump"`
	Count                 uint64             `json:"count"`
	NumInvalidators       uint8              `json:"numInvalidators"`
	Issuer                solana.PublicKey   `json:"issuer"`
	Mint                  solana.PublicKey   `json:"mint"`
	Amount                uint64             `json:"amount"`
	Kind                  TokenManagerKind   `json:"kind"`
	State                 TokenManagerState  `json:"state"`
	StateChangedAt        int64              `json:"stateChangedAt"` // unix seconds
	InvalidationType      InvalidationType   `json:"invalidationType"`
	RecipientTokenAccount solana.PublicKey   `json:"recipientTokenAccount"`
	ReceiptMint           *solana.PublicKey  `json:"receiptMint"`
	ClaimApprover         *solana.PublicKey  `json:"claimApprover"`
	TransferAuthority     *solana.PublicKey  `json:"transferAuthority"`
	Invalidators          []solana.PublicKey `json:"invalidators"`
}

// TokenManager pairs a token manager account address with its data.
type TokenManager struct {
	Pubkey solana.PublicKey `json:"pubkey"`
	Parsed TokenManagerData `json:"parsed"`
}
