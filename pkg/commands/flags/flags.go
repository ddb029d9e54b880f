// Package flags provides the flags shared by several deployer commands, so they are named and
// behave the same everywhere. Flags used by one command only are defined next to it.
package flags

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// MustString returns the string value, ignoring the error.
// Safe to use with registered flags where GetString cannot fail.
func MustString(s string, _ error) string { return s }

// MustStringSlice returns the string slice value, ignoring the error.
func MustStringSlice(s []string, _ error) []string { return s }

// MustUint64 returns the uint64 value, ignoring the error.
func MustUint64(u uint64, _ error) uint64 { return u }

// Network adds the required --network/-n flag to a command.
// Retrieve the value with cmd.Flags().GetString("network").
func Network(cmd *cobra.Command) {
	cmd.Flags().StringP("network", "n", "", "Network id, e.g. ethereum:mainnet (required)")
	_ = cmd.MarkFlagRequired("network")
}

// Manifests adds the --networks and --pools flags. Both take files layered on top of the
// built-in network manifest and pool table.
func Manifests(cmd *cobra.Command) {
	cmd.Flags().StringSlice("networks", nil, "Network manifest files merged over the built-in registry")
	cmd.Flags().StringSlice("pools", nil, "Pool table files (YAML or TOML) replacing the built-in table")
}

// Artifacts adds the --artifacts flag for the directory run artifacts are written to.
// Also accepts the --artifacts-dir spelling.
// Retrieve the value with cmd.Flags().GetString("artifacts").
func Artifacts(cmd *cobra.Command) {
	cmd.Flags().String("artifacts", "", "Directory to write run artifacts to, none are written when empty")

	existingNormalize := cmd.Flags().GetNormalizeFunc()
	cmd.Flags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		if name == "artifacts-dir" {
			return pflag.NormalizedName("artifacts")
		}
		if existingNormalize != nil {
			return existingNormalize(f, name)
		}

		return pflag.NormalizedName(name)
	})
}
