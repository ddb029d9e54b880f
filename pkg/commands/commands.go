// Package commands provides modular CLI command packages for the pool deployer.
//
// There are two ways to use commands from this package:
//
// 1. Via the Commands factory (recommended for most use cases):
//
//	commands := commands.New(lggr)
//	app.AddCommand(
//	    commands.Deploy(settings, commands.DeployConfig{}),
//	    commands.Networks(),
//	    commands.Runs(""),
//	    commands.Selector(),
//	)
//
// 2. Via direct package imports (for advanced DI/testing):
//
//	import "github.com/stableswap-ng/pool-deployer/pkg/commands/deploy"
//
//	cmd, err := deploy.NewCommand(deploy.Config{
//	    Logger:   lggr,
//	    Settings: settings,
//	    Deps:     deploy.Deps{...}, // inject fakes for testing
//	})
package commands

import (
	"github.com/spf13/cobra"

	"github.com/stableswap-ng/pool-deployer/config"
	"github.com/stableswap-ng/pool-deployer/pkg/commands/deploy"
	"github.com/stableswap-ng/pool-deployer/pkg/commands/networks"
	"github.com/stableswap-ng/pool-deployer/pkg/commands/runs"
	"github.com/stableswap-ng/pool-deployer/pkg/commands/sig"
	"github.com/stableswap-ng/pool-deployer/pkg/logger"
)

// Commands provides a factory for creating CLI commands with shared configuration.
// This allows setting the logger once and reusing it across all commands.
type Commands struct {
	lggr logger.Logger
}

// New creates a new Commands factory with the given logger.
// The logger will be shared across all commands created by this factory.
func New(lggr logger.Logger) *Commands {
	return &Commands{lggr: lggr}
}

// DeployConfig holds the optional configuration of the deploy command.
type DeployConfig struct {
	// Deps overrides the deployer, registry and pool table loaders.
	Deps deploy.Deps
}

// Deploy creates the command that creates and verifies a pool.
//
// Usage:
//
//	cmds := commands.New(lggr)
//	deployCmd, err := cmds.Deploy(settings, commands.DeployConfig{})
func (c *Commands) Deploy(settings *config.Config, cfg DeployConfig) (*cobra.Command, error) {
	return deploy.NewCommand(deploy.Config{
		Logger:   c.lggr,
		Settings: settings,
		Deps:     cfg.Deps,
	})
}

// Networks creates the command that lists the network registry.
func (c *Commands) Networks() *cobra.Command {
	return networks.NewCommand(networks.Config{})
}

// Runs creates the command group that inspects saved run artifacts. defaultDir is used when
// --artifacts is not given.
func (c *Commands) Runs(defaultDir string) *cobra.Command {
	return runs.NewCommand(runs.Config{DefaultDir: defaultDir})
}

// Selector creates the command that computes method ids.
func (c *Commands) Selector() *cobra.Command {
	return sig.NewCommand()
}
