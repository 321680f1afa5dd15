package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/trek/pkg/storage"
	"github.com/matzehuels/trek/pkg/trajectory"
)

// runsCommand prints a stored trajectory's run table.
func (c *CLI) runsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "runs <trajectory>",
		Short: "Print a stored trajectory's run table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)
			name := args[0]

			b, _, err := c.openBackend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			traj, err := trajectory.New(name, trajectory.WithLogger(logger))
			if err != nil {
				return err
			}
			coord, err := storage.New(ctx, traj, storage.Options{Backend: b, Logger: logger})
			if err != nil {
				return err
			}

			// The run table lives on the root record; a non-recursive
			// skeleton load is enough.
			if err := coord.Load(ctx, nil, storage.LoadOptions{}); err != nil {
				return err
			}

			runs := traj.Runs()
			if len(runs) == 0 {
				printInfo("trajectory %s has no runs", name)
				return nil
			}

			completed := 0
			for _, run := range runs {
				icon := StyleDim.Render(iconPending)
				if run.Completed {
					icon = styleIconSuccess.Render(iconSuccess)
					completed++
				}
				fmt.Println("  " + icon + " " +
					StyleNumber.Render(fmt.Sprintf("%4d", run.Index)) + "  " +
					StyleValue.Render(run.Name))
			}
			printNewline()
			printInfo("%d of %d runs completed", completed, len(runs))
			return nil
		},
	}
}
