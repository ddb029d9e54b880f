package network

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	chainsel "github.com/smartcontractkit/chain-selectors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Registry_Resolve(t *testing.T) {
	t.Parallel()

	reg, err := Default()
	require.NoError(t, err)

	tests := []struct {
		name    string
		giveID  string
		want    common.Address
		wantErr error
	}{
		{
			name:   "mainnet",
			giveID: "ethereum:mainnet",
			want:   common.HexToAddress("0x6A8cbed756804B16E05E741eDaBd5cB544AE21bf"),
		},
		{
			name:   "shared factory address",
			giveID: "linea:mainnet",
			want:   common.HexToAddress("0x5eeE3091f747E60a045a2E715a4c71e600e31F6E"),
		},
		{
			name:    "not rolled out",
			giveID:  "zksync:mainnet",
			wantErr: ErrFactoryUnavailable,
		},
		{
			name:    "never configured",
			giveID:  "solana:mainnet",
			wantErr: ErrUnknownNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := reg.Resolve(tt.giveID)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, common.Address{}, got)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func Test_Registry_Resolve_Idempotent(t *testing.T) {
	t.Parallel()

	reg, err := Default()
	require.NoError(t, err)

	for _, id := range reg.IDs() {
		first, err1 := reg.Resolve(id)
		second, err2 := reg.Resolve(id)

		assert.Equal(t, first, second, id)
		assert.Equal(t, err1 == nil, err2 == nil, id)
	}
}

func Test_Registry_Deployable(t *testing.T) {
	t.Parallel()

	reg, err := Default()
	require.NoError(t, err)

	deployable := reg.Deployable()
	assert.Len(t, reg.IDs(), 19)
	assert.Len(t, deployable, 16)
	assert.NotContains(t, deployable, "zksync:mainnet")
	assert.NotContains(t, deployable, "mantle:mainnet")
	assert.NotContains(t, deployable, "tron:mainnet")
	assert.Contains(t, deployable, "ethereum:sepolia")
}

func Test_Registry_EntryDoesNotLeakState(t *testing.T) {
	t.Parallel()

	reg, err := NewRegistry([]Entry{{
		ID:      "ethereum:mainnet",
		ChainID: 1,
		Factory: "0x6A8cbed756804B16E05E741eDaBd5cB544AE21bf",
		RPCs:    []RPC{{Name: "a", HTTPURL: "https://a"}},
	}})
	require.NoError(t, err)

	e, err := reg.Entry("ethereum:mainnet")
	require.NoError(t, err)
	e.RPCs[0].HTTPURL = "https://mutated"

	again, err := reg.Entry("ethereum:mainnet")
	require.NoError(t, err)
	assert.Equal(t, "https://a", again.RPCs[0].HTTPURL)
}

func Test_NewRegistry_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		giveEntries []Entry
		wantErr     string
	}{
		{
			name:        "missing id",
			giveEntries: []Entry{{ChainID: 1}},
			wantErr:     "id is required",
		},
		{
			name:        "malformed id",
			giveEntries: []Entry{{ID: "ethereum", ChainID: 1}},
			wantErr:     "must be of the form chain:tier",
		},
		{
			name:        "missing chain id",
			giveEntries: []Entry{{ID: "ethereum:mainnet"}},
			wantErr:     "chain id is required",
		},
		{
			name:        "bad factory",
			giveEntries: []Entry{{ID: "ethereum:mainnet", ChainID: 1, Factory: "0x1234"}},
			wantErr:     "is not a hex address",
		},
		{
			name:        "zero factory",
			giveEntries: []Entry{{ID: "ethereum:mainnet", ChainID: 1, Factory: "0x0000000000000000000000000000000000000000"}},
			wantErr:     "must not be the zero address",
		},
		{
			name:        "rpc without url",
			giveEntries: []Entry{{ID: "ethereum:mainnet", ChainID: 1, RPCs: []RPC{{Name: "empty"}}}},
			wantErr:     "an http or ws url is required",
		},
		{
			name: "duplicate",
			giveEntries: []Entry{
				{ID: "ethereum:mainnet", ChainID: 1},
				{ID: "ethereum:mainnet", ChainID: 1},
			},
			wantErr: "duplicate id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewRegistry(tt.giveEntries)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func Test_Load_Merges(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	base := filepath.Join(dir, "base.yaml")
	override := filepath.Join(dir, "override.yaml")

	require.NoError(t, os.WriteFile(base, []byte(`
networks:
  - id: ethereum:sepolia
    chain_id: 11155111
    factory: ""
  - id: base:mainnet
    chain_id: 8453
    factory: "0xd2002373543Ce3527023C75e7518C274A51ce712"
`), 0o600))
	require.NoError(t, os.WriteFile(override, []byte(`
networks:
  - id: ethereum:sepolia
    chain_id: 11155111
    factory: "0xfb37b8D939FFa77114005e61CFc2e543d6F49A81"
    rpcs:
      - name: public
        http_url: https://sepolia.example
    anvil:
      image: ghcr.io/foundry-rs/foundry:stable
`), 0o600))

	reg, err := Load(base, override)
	require.NoError(t, err)

	assert.Equal(t, []string{"base:mainnet", "ethereum:sepolia"}, reg.IDs())

	got, err := reg.Resolve("ethereum:sepolia")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xfb37b8D939FFa77114005e61CFc2e543d6F49A81"), got)

	e, err := reg.Entry("ethereum:sepolia")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://sepolia.example"}, e.HTTPURLs())
	require.NotNil(t, e.Anvil)
	assert.Equal(t, "ghcr.io/foundry-rs/foundry:stable", e.Anvil.Image)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.ErrorContains(t, err, "failed to read network manifest")
}

func Test_LoadOverDefault(t *testing.T) {
	t.Parallel()

	override := filepath.Join(t.TempDir(), "override.yaml")
	require.NoError(t, os.WriteFile(override, []byte(`
networks:
  - id: zksync:mainnet
    chain_id: 324
    factory: "0x5eeE3091f747E60a045a2E715a4c71e600e31F6E"
  - id: devnet:local
    chain_id: 31337
    factory: "0x00000000000000000000000000000000000000fa"
`), 0o600))

	def, err := Default()
	require.NoError(t, err)

	reg, err := LoadOverDefault(override)
	require.NoError(t, err)
	assert.Len(t, reg.IDs(), len(def.IDs())+1)

	got, err := reg.Resolve("zksync:mainnet")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x5eeE3091f747E60a045a2E715a4c71e600e31F6E"), got)

	_, err = def.Resolve("zksync:mainnet")
	require.ErrorIs(t, err, ErrFactoryUnavailable)

	reg, err = LoadOverDefault()
	require.NoError(t, err)
	assert.Equal(t, def.IDs(), reg.IDs())
}

func Test_Entry_ChainDetails(t *testing.T) {
	t.Parallel()

	e := Entry{ID: "ethereum:mainnet", ChainID: 1}

	details, err := e.ChainDetails()
	require.NoError(t, err)
	assert.Equal(t, chainsel.ETHEREUM_MAINNET.Selector, details.ChainSelector)
	assert.Equal(t, chainsel.ETHEREUM_MAINNET.Selector, e.Selector())

	assert.Equal(t, uint64(0), Entry{ID: "nowhere:mainnet", ChainID: 987654321987}.Selector())
}
