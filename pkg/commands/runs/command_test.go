package runs

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stableswap-ng/pool-deployer/artifacts"
	"github.com/stableswap-ng/pool-deployer/chain/evm"
	"github.com/stableswap-ng/pool-deployer/deployer"
	"github.com/stableswap-ng/pool-deployer/pool"
)

var poolAddr = common.HexToAddress("0x00000000000000000000000000000000000c0ffe")

// seedRuns saves one successful and one failed run and returns their ids.
func seedRuns(t *testing.T, root string) (string, string) {
	t.Helper()

	dir := artifacts.NewDir(root)
	req := deployer.Request{Network: "ethereum:mainnet", Variant: pool.VariantPlain, Mode: evm.ModeFork}

	ok, err := dir.SaveRun(req, deployer.Result{
		Network:     req.Network,
		Pool:        poolAddr,
		BlockNumber: 19_000_000,
	}, nil)
	require.NoError(t, err)

	failed, err := dir.SaveRun(req, deployer.Result{Network: req.Network}, &deployer.Error{
		Network: req.Network,
		Variant: req.Variant,
		Step:    deployer.StepSimulate,
		Err:     fmt.Errorf("%w: simulation reverted", deployer.ErrDeployment),
	})
	require.NoError(t, err)

	return ok, failed
}

func execute(t *testing.T, cfg Config, args ...string) (string, error) {
	t.Helper()

	cmd := NewCommand(cfg)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()

	return out.String(), err
}

func TestNewCommand_Structure(t *testing.T) {
	t.Parallel()

	cmd := NewCommand(Config{})

	assert.Equal(t, "runs", cmd.Use)
	networkFlag := cmd.PersistentFlags().Lookup("network")
	require.NotNil(t, networkFlag)
	assert.Equal(t, "n", networkFlag.Shorthand)
	require.NotNil(t, cmd.PersistentFlags().Lookup("artifacts"))

	subs := cmd.Commands()
	require.Len(t, subs, 2)
	assert.Equal(t, "list", subs[0].Use)
	assert.Equal(t, "show <run-id>", subs[1].Use)
}

func TestRuns_List(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	ok, failed := seedRuns(t, root)

	out, err := execute(t, Config{DefaultDir: root}, "list", "-n", "ethereum:mainnet")
	require.NoError(t, err)

	assert.Contains(t, out, ok)
	assert.Contains(t, out, failed)
	assert.Contains(t, out, poolAddr.Hex())
	assert.Contains(t, out, "DeploymentError")
}

func TestRuns_Show(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	ok, _ := seedRuns(t, root)

	tests := []struct {
		name        string
		giveArgs    []string
		wantContain string
		wantErr     string
	}{
		{
			name:        "summary",
			giveArgs:    []string{"show", ok, "-n", "ethereum:mainnet", "--artifacts", root},
			wantContain: `"pool": "` + strings.ToLower(poolAddr.Hex()) + `"`,
		},
		{
			name:        "reports",
			giveArgs:    []string{"show", ok, "-n", "ethereum:mainnet", "--artifacts", root, "--reports"},
			wantContain: "[]",
		},
		{
			name:     "unknown run",
			giveArgs: []string{"show", "2x4KVsVvN2W2kRIvJ5lTGWLhNwb", "-n", "ethereum:mainnet", "--artifacts", root},
			wantErr:  "artifact not found",
		},
		{
			name:     "missing network flag",
			giveArgs: []string{"show", ok, "--artifacts", root},
			wantErr:  `required flag(s) "network" not set`,
		},
		{
			name:     "no artifacts directory",
			giveArgs: []string{"show", ok, "-n", "ethereum:mainnet"},
			wantErr:  "no artifacts directory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out, err := execute(t, Config{}, tt.giveArgs...)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Contains(t, out, tt.wantContain)
		})
	}
}
