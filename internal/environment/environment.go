// Package environment describes the Solana clusters the service can target.
package environment

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ErrUnknownCluster is returned for labels missing from the registry.
var ErrUnknownCluster = errors.New("unknown cluster")

// Environment is one cluster: its label, RPC endpoints and optional indexer.
type Environment struct {
	Label       string `toml:"label" json:"label"`
	RPCEndpoint string `toml:"rpc_endpoint" json:"rpcEndpoint"`
	// WSEndpoint enables live invalidation when set.
	WSEndpoint string `toml:"ws_endpoint" json:"wsEndpoint,omitempty"`
	// API is the indexer base URL. Empty means query the chain directly.
	API string `toml:"api" json:"api,omitempty"`
}

// HasIndexer reports whether an indexer API is configured.
func (e Environment) HasIndexer() bool {
	return e.API != ""
}

// Validate checks required fields.
func (e Environment) Validate() error {
	if e.Label == "" {
		return errors.New("environment label is required")
	}
	if e.RPCEndpoint == "" {
		return fmt.Errorf("environment %s: rpc_endpoint is required", e.Label)
	}
	return nil
}

// Defaults returns the built-in clusters.
func Defaults() []Environment {
	return []Environment{
		{Label: "mainnet-beta", RPCEndpoint: "https://api.mainnet-beta.solana.com", WSEndpoint: "wss://api.mainnet-beta.solana.com"},
		{Label: "devnet", RPCEndpoint: "https://api.devnet.solana.com", WSEndpoint: "wss://api.devnet.solana.com"},
		{Label: "localnet", RPCEndpoint: "http://127.0.0.1:8899", WSEndpoint: "ws://127.0.0.1:8900"},
	}
}

// Registry maps cluster labels to environments.
type Registry struct {
	byLabel map[string]Environment
}

// NewRegistry builds a registry; later entries override earlier ones.
func NewRegistry(envs ...Environment) (*Registry, error) {
	r := &Registry{byLabel: make(map[string]Environment, len(envs))}
	for _, e := range envs {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		r.byLabel[e.Label] = e
	}
	return r, nil
}

// Get returns the environment for label.
func (r *Registry) Get(label string) (Environment, error) {
	e, ok := r.byLabel[label]
	if !ok {
		return Environment{}, fmt.Errorf("%w: %q", ErrUnknownCluster, label)
	}
	return e, nil
}

// Labels returns the sorted cluster labels.
func (r *Registry) Labels() []string {
	out := make([]string, 0, len(r.byLabel))
	for l := range r.byLabel {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// FileReader reads config files.
type FileReader interface {
	ReadFile(path string) ([]byte, error)
}

// OSFileReader implements FileReader using os.ReadFile.
type OSFileReader struct{}

func (OSFileReader) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// file is the on-disk layout.
type file struct {
	Environments []Environment `toml:"environments" json:"environments"`
}

// LoadFile reads a .toml or .json environment file and merges it over the
// defaults. An empty path returns the defaults.
func LoadFile(reader FileReader, path string) (*Registry, error) {
	envs := Defaults()
	if path == "" {
		return NewRegistry(envs...)
	}

	body, err := reader.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read environment file: %w", err)
	}

	var f file
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(body, &f)
	case ".json":
		err = json.Unmarshal(body, &f)
	default:
		return nil, fmt.Errorf("environment file must be .toml or .json, got %q", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal environment file: %w", err)
	}

	return NewRegistry(append(envs, f.Environments...)...)
}
