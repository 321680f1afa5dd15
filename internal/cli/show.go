package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/matzehuels/trek/pkg/storage"
	"github.com/matzehuels/trek/pkg/trajectory"
)

// showCommand loads a stored trajectory and prints its tree.
func (c *CLI) showCommand() *cobra.Command {
	var (
		depth    int
		withData bool
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "show <trajectory>",
		Short: "Print a stored trajectory's tree",
		Long: `Show loads a trajectory's skeleton from the configured storage backend
and prints it as an indented tree: groups, leaves with their item kinds,
and link edges with their targets.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)
			name := args[0]

			b, cfg, err := c.openBackend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			traj, err := trajectory.New(name, trajectory.WithLogger(logger))
			if err != nil {
				return err
			}
			coord, err := storage.New(ctx, traj, storage.Options{
				Backend:     b,
				Logger:      logger,
				OverviewCap: cfg.OverviewCap,
			})
			if err != nil {
				return err
			}

			level := storage.LevelSkeleton
			if withData {
				level = storage.LevelPayload
			}

			prog := newProgress(logger)
			spin := newSpinnerWithContext(ctx, "loading "+name)
			spin.Start()
			err = coord.Load(ctx, nil, storage.LoadOptions{
				Recursive: true,
				MaxDepth:  depth,
				DataLevel: level,
				Force:     force,
			})
			spin.Stop()
			if spin.Cancelled() {
				return ctx.Err()
			}
			if err != nil {
				return err
			}
			prog.done(fmt.Sprintf("Loaded %d nodes", traj.Len()))

			printKeyValue("Name", traj.Name())
			printKeyValue("ID", traj.ID())
			printKeyValue("Version", traj.Version())
			printKeyValue("State", traj.State().String())
			printNewline()

			groups, leaves := printTree(traj.Root(), "")
			printNewline()
			printStats(groups, leaves, traj.NumRuns())
			if traj.NumRuns() > 0 {
				printNextStep("Run table", "trek runs "+name)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&depth, "depth", 0, "limit the load depth (0 = unlimited)")
	cmd.Flags().BoolVar(&withData, "data", false, "load leaf payloads, not just the skeleton")
	cmd.Flags().BoolVar(&force, "force", false, "load despite a format version mismatch")
	return cmd
}

// printTree prints node's subtree with box-drawing connectors and
// returns the group and leaf counts (excluding the root).
func printTree(node *trajectory.Node, prefix string) (groups, leaves int) {
	if node.IsRoot() {
		fmt.Println(styleGroup.Render(node.Trajectory().Name()))
	}

	names := node.ChildNames()
	sort.Strings(names)

	linkNames := make([]string, 0, len(node.Links()))
	for name := range node.Links() {
		linkNames = append(linkNames, name)
	}
	sort.Strings(linkNames)

	total := len(names) + len(linkNames)
	printed := 0
	for _, name := range names {
		child, ok := node.Child(name)
		if !ok {
			continue
		}
		printed++
		connector, childPrefix := treeConnectors(prefix, printed == total)

		label := styleGroup.Render(name)
		if child.IsLeaf() {
			leaves++
			label = styleLeaf.Render(name) + " " + StyleDim.Render("("+child.Item().Kind()+")")
		} else {
			groups++
		}
		if comment := child.Comment(); comment != "" {
			label += " " + StyleDim.Render(comment)
		}
		fmt.Println(prefix + connector + label)

		g, l := printTree(child, childPrefix)
		groups += g
		leaves += l
	}

	for _, name := range linkNames {
		printed++
		connector, _ := treeConnectors(prefix, printed == total)
		target := node.Links()[name]
		fmt.Println(prefix + connector +
			styleEdge.Render(name) + " " + StyleDim.Render(iconArrow+" "+target.FullName()))
	}
	return groups, leaves
}

// treeConnectors returns the connector for a child line and the prefix
// its own children should use.
func treeConnectors(prefix string, last bool) (connector, childPrefix string) {
	if last {
		return StyleDim.Render("└── "), prefix + "    "
	}
	return StyleDim.Render("├── "), prefix + StyleDim.Render("│") + "   "
}
