package cli

import (
	"sort"

	"github.com/spf13/cobra"
)

// listCommand lists the trajectories stored in the configured backend.
func (c *CLI) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored trajectories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, _, err := c.openBackend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			names, err := b.ListTrajectories(ctx)
			if err != nil {
				return err
			}
			if len(names) == 0 {
				printInfo("no trajectories stored")
				return nil
			}

			sort.Strings(names)
			printInfo("%d trajectories", len(names))
			for _, name := range names {
				printDetail("%s", name)
			}
			printNewline()
			printNextStep("Inspect one", "trek show "+names[0])
			return nil
		},
	}
}
