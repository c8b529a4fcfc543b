package environment

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapReader map[string]string

func (m mapReader) ReadFile(path string) ([]byte, error) {
	s, ok := m[path]
	if !ok {
		return nil, errors.New("no such file")
	}
	return []byte(s), nil
}

func TestLoadFile_Defaults(t *testing.T) {
	r, err := LoadFile(mapReader{}, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"devnet", "localnet", "mainnet-beta"}, r.Labels())
	env, err := r.Get("devnet")
	require.NoError(t, err)
	assert.False(t, env.HasIndexer())
}

func TestLoadFile_TOMLOverrides(t *testing.T) {
	files := mapReader{"envs.toml": `
[[environments]]
label = "mainnet-beta"
rpc_endpoint = "https://rpc.example.com"
api = "https://index.example.com"

[[environments]]
label = "testnet"
rpc_endpoint = "https://api.testnet.solana.com"
`}

	r, err := LoadFile(files, "envs.toml")
	require.NoError(t, err)

	main, err := r.Get("mainnet-beta")
	require.NoError(t, err)
	assert.Equal(t, "https://rpc.example.com", main.RPCEndpoint)
	assert.Equal(t, "https://index.example.com", main.API)
	assert.True(t, main.HasIndexer())

	_, err = r.Get("testnet")
	assert.NoError(t, err)
}

func TestLoadFile_JSON(t *testing.T) {
	files := mapReader{"envs.json": `{"environments":[{"label":"devnet","rpcEndpoint":"http://x","api":"http://idx"}]}`}

	r, err := LoadFile(files, "envs.json")
	require.NoError(t, err)
	env, err := r.Get("devnet")
	require.NoError(t, err)
	assert.Equal(t, "http://idx", env.API)
}

func TestLoadFile_Errors(t *testing.T) {
	files := mapReader{
		"bad.toml":     `[[environments]]\nlabel = `,
		"nolabel.toml": "[[environments]]\nrpc_endpoint = \"http://x\"\n",
		"envs.yaml":    "",
	}

	_, err := LoadFile(files, "missing.toml")
	assert.Error(t, err)
	_, err = LoadFile(files, "bad.toml")
	assert.Error(t, err)
	_, err = LoadFile(files, "nolabel.toml")
	assert.Error(t, err)
	_, err = LoadFile(files, "envs.yaml")
	assert.Error(t, err)
}

func TestRegistry_Unknown(t *testing.T) {
	r, err := NewRegistry(Defaults()...)
	require.NoError(t, err)

	_, err = r.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownCluster)
}
