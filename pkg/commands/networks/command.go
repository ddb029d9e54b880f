// Package networks provides the CLI command that lists the networks the deployer knows about.
package networks

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/stableswap-ng/pool-deployer/network"
	"github.com/stableswap-ng/pool-deployer/pkg/commands/text"
)

var (
	networksShort = "List the networks and their factories"

	networksLong = text.LongDesc(`
		Lists every network of the registry with its chain id, chain selector and factory
		address. Networks without a factory are known but cannot be deployed to yet.
	`)

	networksExample = text.Examples(`
		# List the built-in networks
		pool-deployer networks

		# Only the networks a pool can be created on, with a local manifest on top
		pool-deployer networks --deployable --networks ./networks.local.yaml
	`)
)

// RegistryLoaderFunc loads the network registry, layering manifest files over the built-in one.
type RegistryLoaderFunc func(paths []string) (*network.Registry, error)

// Config holds the configuration for the networks command.
type Config struct {
	// RegistryLoader loads the registry. Default: network.LoadOverDefault
	RegistryLoader RegistryLoaderFunc
}

// NewCommand creates the networks command.
func NewCommand(cfg Config) *cobra.Command {
	if cfg.RegistryLoader == nil {
		cfg.RegistryLoader = func(paths []string) (*network.Registry, error) {
			return network.LoadOverDefault(paths...)
		}
	}

	cmd := &cobra.Command{
		Use:     "networks",
		Short:   networksShort,
		Long:    networksLong,
		Example: networksExample,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, _ := cmd.Flags().GetStringSlice("networks")
			deployable, _ := cmd.Flags().GetBool("deployable")

			registry, err := cfg.RegistryLoader(paths)
			if err != nil {
				return fmt.Errorf("failed to load network registry: %w", err)
			}

			return writeNetworks(cmd.OutOrStdout(), registry, deployable)
		},
	}

	cmd.Flags().StringSlice("networks", nil, "Network manifest files merged over the built-in registry")
	cmd.Flags().Bool("deployable", false, "Only list networks that have a factory")

	return cmd
}

func writeNetworks(w io.Writer, registry *network.Registry, deployableOnly bool) error {
	ids := registry.IDs()
	if deployableOnly {
		ids = registry.Deployable()
	}

	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Network", "Chain ID", "Selector", "Factory"})
	for _, id := range ids {
		e, err := registry.Entry(id)
		if err != nil {
			return err
		}

		factory := e.Factory
		if !e.Deployable() {
			factory = "-"
		}
		sel := "-"
		if s := e.Selector(); s != 0 {
			sel = strconv.FormatUint(s, 10)
		}

		table.Append([]string{id, strconv.FormatUint(e.ChainID, 10), sel, factory})
	}
	table.Render()

	return nil
}
