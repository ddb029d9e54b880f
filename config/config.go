// Package config loads the runtime configuration of the deployer CLI: the deployer credentials,
// the RPC endpoints of each chain, the fork settings and the log level. Values come from an
// optional YAML file and from environment variables, the latter taking precedence.
package config

import (
	"errors"
	"io/fs"
	"os"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/stableswap-ng/pool-deployer/chain/evm"
	"github.com/stableswap-ng/pool-deployer/chain/evm/provider"
	"github.com/stableswap-ng/pool-deployer/pkg/logger"
)

// rpcEnvPrefix prefixes the per-chain RPC variables, e.g. RPC_ETHEREUM or RPC_ETHEREUM_SEPOLIA.
const rpcEnvPrefix = "RPC_"

// DeployerConfig identifies the deployer account.
//
// WARNING: This data type contains sensitive fields and should not be logged or set in file
// configuration.
type DeployerConfig struct {
	Address    string `mapstructure:"address" yaml:"address"`         // The deployer address. Optional when the key is set.
	PrivateKey string `mapstructure:"private_key" yaml:"private_key"` // Secret: The hex encoded private key of the deployer account.
}

// ForkConfig configures fork mode.
type ForkConfig struct {
	URL         string `mapstructure:"url" yaml:"url"`                   // An already running fork to attach to instead of starting one.
	Image       string `mapstructure:"image" yaml:"image"`               // The anvil image, overrides the network manifest.
	BlockNumber uint64 `mapstructure:"block_number" yaml:"block_number"` // The block to fork at, latest when zero.
	Debug       bool   `mapstructure:"debug" yaml:"debug"`               // Dump the anvil JSON-RPC traffic.
}

// LogConfig configures the CLI logger.
type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`             // debug, info, warn or error
	Development bool   `mapstructure:"development" yaml:"development"` // Use the console encoder
}

// Config wraps the entire configuration of the deployer CLI.
type Config struct {
	Deployer DeployerConfig `mapstructure:"deployer" yaml:"deployer"`
	// RPCs maps a chain, or a chain and tier joined by an underscore, to an endpoint URL, e.g.
	// "ethereum" or "ethereum_sepolia".
	RPCs map[string]string `mapstructure:"rpcs" yaml:"rpcs"`
	Fork ForkConfig        `mapstructure:"fork" yaml:"fork"`
	Log  LogConfig         `mapstructure:"log" yaml:"log"`
}

// Load loads the config from the file path, falling back to env vars if the file does not exist.
// If the file exists, any env vars that are set will override the values loaded from the file.
func Load(filePath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(filePath)

	if err := bindEnvs(v); err != nil {
		return nil, err
	}

	if _, err := os.Stat(filePath); !errors.Is(err, fs.ErrNotExist) {
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	return unmarshal(v)
}

// LoadEnv loads the config from the environment variables.
func LoadEnv() (*Config, error) {
	v := viper.New()

	if err := bindEnvs(v); err != nil {
		return nil, err
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

var (
	// envBindings maps config keys to the environment variables that can provide their value. The
	// first name is preferred, later ones are accepted for compatibility with existing scripts.
	envBindings = map[string][]string{
		"deployer.address":     {"DEPLOYER_ADDRESS"},
		"deployer.private_key": {"DEPLOYER_PKEY", "DEPLOYER_PRIVATE_KEY"},
		"fork.url":             {"FORK_URL", "ANVIL_URL"},
		"fork.image":           {"FORK_IMAGE", "ANVIL_IMAGE"},
		"fork.block_number":    {"FORK_BLOCK_NUMBER"},
		"fork.debug":           {"FORK_DEBUG", "RESTY_DEBUG"},
		"log.level":            {"LOG_LEVEL"},
		"log.development":      {"LOG_DEVELOPMENT"},
	}
)

// bindEnvs binds the static environment variables and every RPC_<CHAIN> variable present in
// the environment to the viper instance.
func bindEnvs(v *viper.Viper) error {
	for key, envs := range envBindings {
		inputs := slices.Insert(slices.Clone(envs), 0, key)

		if err := v.BindEnv(inputs...); err != nil {
			return err
		}
	}

	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		chain, ok := strings.CutPrefix(name, rpcEnvPrefix)
		if !ok || chain == "" {
			continue
		}
		if err := v.BindEnv("rpcs."+strings.ToLower(chain), name); err != nil {
			return err
		}
	}

	return nil
}

// Credentials returns the deployer credentials to inject into the execution environment.
func (c *Config) Credentials() provider.Credentials {
	return provider.Credentials{
		Address:    strings.TrimSpace(c.Deployer.Address),
		PrivateKey: strings.TrimSpace(c.Deployer.PrivateKey),
	}
}

// RPCsFor returns the configured endpoint of a "chain:tier" network id. The chain and tier
// specific key wins over the chain key. It returns nil when neither is set, leaving the
// endpoints of the network manifest in place.
func (c *Config) RPCsFor(networkID string) []evm.RPC {
	chain, tier, _ := strings.Cut(strings.ToLower(networkID), ":")
	for _, key := range []string{chain + "_" + tier, chain} {
		url := strings.TrimSpace(c.RPCs[key])
		if url == "" {
			continue
		}

		rpc := evm.RPC{Name: key, PreferredURLScheme: evm.URLSchemePreferenceHTTP}
		if strings.HasPrefix(url, "ws") {
			rpc.WSURL = url
			rpc.PreferredURLScheme = evm.URLSchemePreferenceWS
		} else {
			rpc.HTTPURL = url
		}

		return []evm.RPC{rpc}
	}

	return nil
}

// ForkSettings returns the fork settings of the execution environment.
func (c *Config) ForkSettings() provider.ForkConfig {
	return provider.ForkConfig{
		AttachURL:   c.Fork.URL,
		Image:       c.Fork.Image,
		BlockNumber: c.Fork.BlockNumber,
		Debug:       c.Fork.Debug,
	}
}

// NewLogger builds the CLI logger at the configured level.
func (c *Config) NewLogger() (logger.Logger, error) {
	return logger.New(logger.Options{Level: c.Log.Level, Console: c.Log.Development})
}
