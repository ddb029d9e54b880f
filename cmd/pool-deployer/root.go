package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stableswap-ng/pool-deployer/config"
	"github.com/stableswap-ng/pool-deployer/pkg/commands"
)

const (
	// configPathEnv names the variable holding the path of the settings file.
	configPathEnv = "POOL_DEPLOYER_CONFIG"

	defaultConfigPath = "pool-deployer.yml"
)

// newRootCmd loads the settings and assembles the command tree. A missing settings file is not
// an error, the environment alone is enough.
func newRootCmd(configPath string) (*cobra.Command, error) {
	if configPath == "" {
		configPath = defaultConfigPath
	}

	settings, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	lggr, err := settings.NewLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	root := &cobra.Command{
		Use:           "pool-deployer",
		Short:         "Deploy and verify stable-swap pools",
		SilenceErrors: true,
	}

	cmds := commands.New(lggr)
	deployCmd, err := cmds.Deploy(settings, commands.DeployConfig{})
	if err != nil {
		return nil, err
	}
	root.AddCommand(
		deployCmd,
		cmds.Networks(),
		cmds.Runs(""),
		cmds.Selector(),
	)

	return root, nil
}
