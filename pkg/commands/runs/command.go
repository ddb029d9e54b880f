// Package runs provides CLI commands to inspect the artifacts of past deployment runs.
package runs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/stableswap-ng/pool-deployer/artifacts"
	"github.com/stableswap-ng/pool-deployer/pkg/commands/text"
)

var (
	listShort = "List the runs saved for a network"

	showShort = "Print the summary of one run"
	showLong  = text.LongDesc(`
		Prints the saved summary of a run as JSON. With --reports the step reports of the run
		are printed instead, in execution order.
	`)

	runsExample = text.Examples(`
		# List the runs kept for mainnet
		pool-deployer runs list -n ethereum:mainnet --artifacts ./runs

		# Print the step reports of one of them
		pool-deployer runs show 2x4KVsVvN2W2kRIvJ5lTGWLhNwb -n ethereum:mainnet --artifacts ./runs --reports
	`)
)

// Config holds the configuration for the runs commands.
type Config struct {
	// DefaultDir is used when --artifacts is not given.
	DefaultDir string
}

// NewCommand creates the runs command with all subcommands. The network and artifacts flags are
// persistent because every subcommand reads them.
func NewCommand(cfg Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "runs",
		Short:   "Inspect saved deployment runs",
		Example: runsExample,
	}

	cmd.AddCommand(newListCmd(), newShowCmd())

	cmd.PersistentFlags().
		StringP("network", "n", "", "Network id, e.g. ethereum:mainnet (required)")
	_ = cmd.MarkPersistentFlagRequired("network")
	cmd.PersistentFlags().String("artifacts", cfg.DefaultDir, "Directory run artifacts were written to")

	return cmd
}

func dirFlags(cmd *cobra.Command) (*artifacts.Dir, string, error) {
	networkID, _ := cmd.Flags().GetString("network")
	root, _ := cmd.Flags().GetString("artifacts")
	if root == "" {
		return nil, "", errors.New("no artifacts directory, set --artifacts")
	}

	return artifacts.NewDir(root), networkID, nil
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: listShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, networkID, err := dirFlags(cmd)
			if err != nil {
				return err
			}

			ids, err := dir.RunIDs(networkID)
			if err != nil {
				return fmt.Errorf("failed to list runs of %s: %w", networkID, err)
			}

			loaded := make([]artifacts.Run, 0, len(ids))
			for _, id := range ids {
				run, lerr := dir.LoadRun(networkID, id)
				if lerr != nil {
					return lerr
				}
				loaded = append(loaded, run)
			}
			writeRuns(cmd.OutOrStdout(), loaded)

			return nil
		},
	}
}

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: showShort,
		Long:  showLong,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, networkID, err := dirFlags(cmd)
			if err != nil {
				return err
			}
			reports, _ := cmd.Flags().GetBool("reports")

			var v any
			if reports {
				v, err = dir.LoadReports(networkID, args[0])
			} else {
				v, err = dir.LoadRun(networkID, args[0])
			}
			if err != nil {
				return err
			}

			b, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))

			return nil
		},
	}

	cmd.Flags().Bool("reports", false, "Print the step reports instead of the summary")

	return cmd
}

func writeRuns(w io.Writer, runs []artifacts.Run) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Run", "Mode", "Variant", "Pool", "Block", "Outcome"})
	for _, r := range runs {
		outcome := "ok"
		if r.Category != "" {
			outcome = r.Category
		}
		pool, block := "-", "-"
		if r.BlockNumber != 0 {
			pool = r.Pool.Hex()
			block = strconv.FormatUint(r.BlockNumber, 10)
		}
		table.Append([]string{r.ID, string(r.Mode), string(r.Variant), pool, block, outcome})
	}
	table.Render()
}
