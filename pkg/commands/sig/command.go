// Package sig provides the CLI command that computes rate method ids from function signatures.
package sig

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stableswap-ng/pool-deployer/pkg/commands/text"
	"github.com/stableswap-ng/pool-deployer/selector"
)

var (
	selectorLong = text.LongDesc(`
		Prints the canonical form and the 4-byte method id of each signature. Oracle coins of a
		pool table name their rate method with this id.
	`)

	selectorExample = text.Examples(`
		pool-deployer selector "getRate()" "convertToAssets(uint)"
	`)
)

// NewCommand creates the selector command.
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "selector <signature>...",
		Short:   "Compute the method id of function signatures",
		Long:    selectorLong,
		Example: selectorExample,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, signature := range args {
				canonical, err := selector.Canonical(signature)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", selector.MustFor(canonical), canonical)
			}

			return nil
		},
	}
}
