package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/trek/pkg/storage"
	"github.com/matzehuels/trek/pkg/storage/backend"
	"github.com/matzehuels/trek/pkg/trajectory"
)

// migrateCommand copies a stored trajectory to another storage service.
func (c *CLI) migrateCommand() *cobra.Command {
	var (
		toBackend  string
		toLocation string
	)

	cmd := &cobra.Command{
		Use:   "migrate <trajectory>",
		Short: "Copy a stored trajectory to another storage service",
		Long: `Migrate copies every stored node of a trajectory from the configured
backend to the destination service, for example from local files into
Redis or MongoDB. The source is left untouched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)
			name := args[0]

			src, _, err := c.openBackend(ctx)
			if err != nil {
				return err
			}
			defer src.Close()

			dst, err := backend.Open(ctx, toBackend, toLocation)
			if err != nil {
				return err
			}
			defer dst.Close()

			traj, err := trajectory.New(name, trajectory.WithLogger(logger))
			if err != nil {
				return err
			}
			coord, err := storage.New(ctx, traj, storage.Options{Backend: src, Logger: logger})
			if err != nil {
				return err
			}

			spin := newSpinnerWithContext(ctx, "migrating "+name+" to "+toBackend)
			spin.Start()
			err = coord.Migrate(ctx, dst)
			spin.Stop()
			if spin.Cancelled() {
				return ctx.Err()
			}
			if err != nil {
				printError("migration of %s failed", name)
				return err
			}

			printSuccess("migrated %s to %s", name, toBackend)
			printNextStep("Verify", "trek show "+name+" --backend "+toBackend+" --location "+toLocation)
			return nil
		},
	}

	cmd.Flags().StringVar(&toBackend, "to", backend.ServiceFile, "destination service: memory, file, redis or mongo")
	cmd.Flags().StringVar(&toLocation, "to-location", "", "destination location: directory, address or URI")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
