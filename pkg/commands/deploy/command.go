// Package deploy provides the CLI command that creates and verifies a stable-swap pool.
package deploy

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/stableswap-ng/pool-deployer/artifacts"
	"github.com/stableswap-ng/pool-deployer/chain/evm"
	"github.com/stableswap-ng/pool-deployer/config"
	"github.com/stableswap-ng/pool-deployer/deployer"
	"github.com/stableswap-ng/pool-deployer/network"
	"github.com/stableswap-ng/pool-deployer/pkg/commands/flags"
	"github.com/stableswap-ng/pool-deployer/pkg/commands/text"
	"github.com/stableswap-ng/pool-deployer/pkg/logger"
	"github.com/stableswap-ng/pool-deployer/pool"
)

var (
	deployShort = "Create a stable-swap pool through the factory and verify it"

	deployLong = text.LongDesc(`
		Creates a pool through the stable-swap factory of a network, then reads the pool back
		and compares it with the configured parameters.

		The parameters come from the pool table, looked up by network and variant. In fork mode
		the pool is created on a disposable local fork and nothing reaches the network. In
		production mode the transaction is signed with DEPLOYER_PKEY and broadcast.

		A failed run exits non-zero and prints the error category first.
	`)

	deployExample = text.Examples(`
		# Rehearse the osETH/rETH pool on a fork of mainnet
		pool-deployer deploy -n ethereum:mainnet

		# Attach to a running anvil instead of starting a container
		pool-deployer deploy -n ethereum:mainnet --fork-url http://127.0.0.1:8545

		# Deploy for real and keep the run artifacts
		pool-deployer deploy -n ethereum:mainnet --mode production --artifacts ./runs
	`)
)

// Config holds the configuration for the deploy command.
type Config struct {
	// Logger is the logger handed to the deployer. Required.
	Logger logger.Logger

	// Settings holds the credentials and endpoints loaded from the environment. Required.
	Settings *config.Config

	// Deps holds optional dependencies that can be overridden.
	// If fields are nil, production defaults are used.
	Deps Deps
}

// Validate checks that all required configuration fields are set.
func (c Config) Validate() error {
	var missing []string

	if c.Logger == nil {
		missing = append(missing, "Logger")
	}
	if c.Settings == nil {
		missing = append(missing, "Settings")
	}

	if len(missing) > 0 {
		return errors.New("deploy.Config: missing required fields: " + strings.Join(missing, ", "))
	}

	return nil
}

type deployFlags struct {
	network        string
	variant        string
	mode           string
	networks       []string
	pools          []string
	rpc            string
	forkURL        string
	forkImage      string
	forkBlock      uint64
	artifacts      string
	confirmTimeout time.Duration
}

// NewCommand creates the deploy command.
func NewCommand(cfg Config) (*cobra.Command, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.Deps.applyDefaults()

	cmd := &cobra.Command{
		Use:     "deploy",
		Short:   deployShort,
		Long:    deployLong,
		Example: deployExample,
		RunE: func(cmd *cobra.Command, _ []string) error {
			timeout, _ := cmd.Flags().GetDuration("confirm-timeout")
			f := deployFlags{
				network:        flags.MustString(cmd.Flags().GetString("network")),
				variant:        flags.MustString(cmd.Flags().GetString("variant")),
				mode:           flags.MustString(cmd.Flags().GetString("mode")),
				networks:       flags.MustStringSlice(cmd.Flags().GetStringSlice("networks")),
				pools:          flags.MustStringSlice(cmd.Flags().GetStringSlice("pools")),
				rpc:            flags.MustString(cmd.Flags().GetString("rpc")),
				forkURL:        flags.MustString(cmd.Flags().GetString("fork-url")),
				forkImage:      flags.MustString(cmd.Flags().GetString("fork-image")),
				forkBlock:      flags.MustUint64(cmd.Flags().GetUint64("fork-block")),
				artifacts:      flags.MustString(cmd.Flags().GetString("artifacts")),
				confirmTimeout: timeout,
			}

			return runDeploy(cmd, cfg, f)
		},
	}

	// Flags
	flags.Network(cmd)
	flags.Manifests(cmd)
	flags.Artifacts(cmd)
	cmd.Flags().String("variant", string(pool.VariantPlain), "Pool variant: plain or meta")
	cmd.Flags().String("mode", string(evm.ModeFork), "Execution mode: fork or production")
	cmd.Flags().String("rpc", "", "RPC endpoint of the network, overrides RPC_<CHAIN> and the manifest")
	cmd.Flags().String("fork-url", "", "Attach to a running fork instead of starting one")
	cmd.Flags().String("fork-image", "", "Anvil image used for the fork container")
	cmd.Flags().Uint64("fork-block", 0, "Block number to fork at, latest when zero")
	cmd.Flags().Duration("confirm-timeout", 3*time.Minute, "How long to wait for the creation receipt")

	return cmd, nil
}

// runDeploy executes the deploy command logic.
func runDeploy(cmd *cobra.Command, cfg Config, f deployFlags) error {
	// --- Load all data first ---

	variant, err := pool.ParseVariant(f.variant)
	if err != nil {
		return err
	}
	mode, err := evm.ParseMode(f.mode)
	if err != nil {
		return err
	}

	registry, err := cfg.Deps.RegistryLoader(f.networks)
	if err != nil {
		return fmt.Errorf("failed to load network registry: %w", err)
	}
	table, err := cfg.Deps.TableLoader(f.pools)
	if err != nil {
		return fmt.Errorf("failed to load pool table: %w", err)
	}
	params, err := lookupParameters(registry, table, f.network, variant)
	if err != nil {
		return err
	}

	req := deployer.Request{
		Network:     f.network,
		Variant:     variant,
		Parameters:  params,
		Mode:        mode,
		Credentials: cfg.Settings.Credentials(),
		RPCs:        cfg.Settings.RPCsFor(f.network),
		Fork:        cfg.Settings.ForkSettings(),
	}
	applyFlagOverrides(&req, f)

	// --- Execute logic with loaded data ---

	// Everything past this point may have touched the network, so the command usage is noise.
	cmd.SilenceUsage = true

	res, derr := cfg.Deps.Deploy(cmd.Context(), registry, req,
		deployer.WithLogger(cfg.Logger),
		deployer.WithConfirmTimeout(f.confirmTimeout),
	)

	if f.artifacts != "" {
		id, aerr := artifacts.NewDir(f.artifacts).SaveRun(req, res, derr)
		if aerr != nil {
			cfg.Logger.Errorw("Failed to save run artifacts", "dir", f.artifacts, "error", aerr)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Run artifacts saved as %s in %s\n", id, f.artifacts)
		}
	}

	if res.Pool != (common.Address{}) {
		writeResult(cmd.OutOrStdout(), res)
	}

	return derr
}

// lookupParameters returns the table parameters of network and variant. The network and the
// variant are checked first so that their failures keep the category the deployer would give
// them.
func lookupParameters(registry *network.Registry, table *pool.Table, networkID string, variant pool.Variant) (pool.Parameters, error) {
	fail := func(step deployer.Step, err error) (pool.Parameters, error) {
		return pool.Parameters{}, &deployer.Error{Network: networkID, Variant: variant, Step: step, Err: err}
	}

	if _, err := registry.Resolve(networkID); err != nil {
		return fail(deployer.StepResolve, err)
	}
	if variant != pool.VariantPlain {
		return fail(deployer.StepBind, fmt.Errorf("%w: %s", deployer.ErrUnsupportedVariant, variant))
	}

	params, err := table.Lookup(networkID, variant)
	if err != nil {
		return fail(deployer.StepValidate, fmt.Errorf("%w: %w", deployer.ErrInvalidParameters, err))
	}

	return params, nil
}

// applyFlagOverrides lets explicit flags win over the environment configuration.
func applyFlagOverrides(req *deployer.Request, f deployFlags) {
	if f.rpc != "" {
		rpc := evm.RPC{Name: "flag", HTTPURL: f.rpc, PreferredURLScheme: evm.URLSchemePreferenceHTTP}
		if strings.HasPrefix(f.rpc, "ws") {
			rpc = evm.RPC{Name: "flag", WSURL: f.rpc, PreferredURLScheme: evm.URLSchemePreferenceWS}
		}
		req.RPCs = []evm.RPC{rpc}
	}
	if f.forkURL != "" {
		req.Fork.AttachURL = f.forkURL
	}
	if f.forkImage != "" {
		req.Fork.Image = f.forkImage
	}
	if f.forkBlock != 0 {
		req.Fork.BlockNumber = f.forkBlock
	}
}

// writeResult prints the pool address and the verification summary.
func writeResult(w io.Writer, res deployer.Result) {
	fmt.Fprintf(w, "Pool deployed on %s (%s): %s\n", res.Network, res.Mode, res.Pool.Hex())

	summary := tablewriter.NewWriter(w)
	summary.SetAutoWrapText(false)
	summary.AppendBulk([][]string{
		{"Pool", res.Pool.Hex()},
		{"Factory", res.Factory.Hex()},
		{"Sender", res.Sender.Hex()},
		{"Transaction", res.TxHash.Hex()},
		{"Block", strconv.FormatUint(res.BlockNumber, 10)},
		{"Chain ID", strconv.FormatUint(res.ChainID, 10)},
	})
	summary.Render()

	checks := tablewriter.NewWriter(w)
	checks.SetAutoWrapText(false)
	checks.SetHeader([]string{"Field", "Expected", "Observed", "Matches"})
	for _, c := range res.Report.Checks {
		checks.Append([]string{c.Field, c.Expected, c.Observed, strconv.FormatBool(c.Matches)})
	}
	checks.Render()

	if len(res.Report.Rates) > 0 {
		rates := tablewriter.NewWriter(w)
		rates.SetAutoWrapText(false)
		rates.SetHeader([]string{"Source", "Index", "Rate"})
		for _, r := range res.Report.Rates {
			rates.Append([]string{r.Source, strconv.Itoa(r.Index), r.Value.String()})
		}
		rates.Render()
	}

	for _, failure := range res.Report.Failures {
		fmt.Fprintf(w, "Rate source failure: %s\n", failure.Error())
	}
	if res.Report.Matches() && len(res.Report.Failures) == 0 {
		fmt.Fprintln(w, "Verification passed")
	} else {
		fmt.Fprintln(w, "Verification FAILED: the pool exists and must be fixed or abandoned")
	}
}
