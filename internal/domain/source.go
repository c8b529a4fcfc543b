package domain

// Source identifies where a token-manager collection was loaded from.
type Source string

const (
	SourceIndexer  Source = "indexer"
	SourceChain    Source = "chain"
	SourceSnapshot Source = "snapshot"
)

// String returns the string representation of Source.
func (s Source) String() string {
	return string(s)
}

// IsValid checks if the source is a valid value.
func (s Source) IsValid() bool {
	switch s {
	case SourceIndexer, SourceChain, SourceSnapshot:
		return true
	}
	return false
}
