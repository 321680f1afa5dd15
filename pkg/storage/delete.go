package storage

import (
	"context"
	"sort"

	"github.com/matzehuels/trek/pkg/errors"
	"github.com/matzehuels/trek/pkg/observability"
	"github.com/matzehuels/trek/pkg/storage/backend"
	"github.com/matzehuels/trek/pkg/trajectory"
)

// DeleteOptions configures one delete call.
type DeleteOptions struct {
	// Recursive deletes the stored subtree below the node. Without it,
	// deleting a node with stored children fails.
	Recursive bool

	// RemoveFromTrajectory also detaches the node from the in-memory
	// tree (links into the subtree are cascaded).
	RemoveFromTrajectory bool

	// DeleteOnly names payload fields to remove from a leaf's stored
	// record instead of deleting the node. The node and the rest of its
	// payload survive.
	DeleteOnly []string

	// RemoveFromItem also removes the DeleteOnly fields from the
	// in-memory item, for items that support field removal.
	RemoveFromItem bool
}

// fieldDeleter is implemented by items whose fields can be removed
// individually (Result does; Parameter does not).
type fieldDeleter interface {
	Delete(name string) error
}

// DeleteItem removes a node's stored representation, or, with
// opts.DeleteOnly, removes named fields from a leaf's stored payload
// without destroying the node.
func (c *Coordinator) DeleteItem(ctx context.Context, node *trajectory.Node, opts DeleteOptions) error {
	if node == nil || node.Trajectory() != c.traj {
		return errors.New(errors.ErrCodeInvalidInput, "node must belong to this trajectory")
	}

	if len(opts.DeleteOnly) > 0 {
		return c.deleteFields(ctx, node, opts)
	}

	if node.IsRoot() {
		return errors.New(errors.ErrCodeInvalidInput, "cannot delete the trajectory root")
	}
	if node.NumChildren() > 0 && !opts.Recursive {
		return errors.New(errors.ErrCodeInvalidInput,
			"%s has children; pass Recursive to delete the subtree", node.FullName())
	}

	// Children first so a failure never leaves orphaned records.
	names := c.subtreeNames(node)
	for i := len(names) - 1; i >= 0; i-- {
		err := c.backend.DeleteNode(ctx, c.traj.Name(), names[i])
		observability.Storage().OnDelete(ctx, c.traj.Name(), names[i], err)
		if err != nil {
			return err
		}
		c.unindexLeaf(names[i])
	}
	if err := c.storeRootMeta(ctx); err != nil {
		return err
	}

	if opts.RemoveFromTrajectory {
		if err := node.Parent().Remove(node.Name(), trajectory.RemoveOptions{
			Recursive:   opts.Recursive,
			RemoveLinks: true,
		}); err != nil {
			return err
		}
	} else {
		node.SetStored(false)
		node.SetStoredData(false)
	}
	c.logger.Debug("deleted nodes", "trajectory", c.traj.Name(), "count", len(names))
	return nil
}

// deleteFields removes named fields from a leaf's stored payload.
func (c *Coordinator) deleteFields(ctx context.Context, node *trajectory.Node, opts DeleteOptions) error {
	if !node.IsLeaf() {
		return errors.New(errors.ErrCodeTypeMismatch,
			"%s is a group; field deletion needs a leaf", node.FullName())
	}

	rec, err := c.backend.ReadNode(ctx, c.traj.Name(), node.FullName())
	if err != nil {
		return err
	}
	for _, field := range opts.DeleteOnly {
		delete(rec.Payload, field)
	}
	if err := c.backend.WriteNode(ctx, c.traj.Name(), rec); err != nil {
		return err
	}

	if opts.RemoveFromItem {
		deleter, ok := node.Item().(fieldDeleter)
		if !ok {
			return errors.New(errors.ErrCodeUnsupported,
				"%s items do not support field removal", node.Item().Kind())
		}
		for _, field := range opts.DeleteOnly {
			if err := deleter.Delete(field); err != nil {
				return err
			}
		}
	}
	return nil
}

// subtreeNames returns the stored full names of node and its descendants
// in parent-before-child order.
func (c *Coordinator) subtreeNames(node *trajectory.Node) []string {
	names := []string{node.FullName()}
	for child := range node.IterNodes(true, false) {
		names = append(names, child.FullName())
	}
	sort.Strings(names)
	return names
}

// unindexLeaf drops a deleted leaf from every overview table.
func (c *Coordinator) unindexLeaf(fullName string) {
	for kind, table := range c.overview {
		for i, name := range table {
			if name == fullName {
				c.overview[kind] = append(table[:i], table[i+1:]...)
				break
			}
		}
	}
}

// Migrate copies the trajectory's persisted representation to dst and
// rebinds the coordinator, so subsequent stores and loads target the new
// backend. The source backend's records are left in place.
func (c *Coordinator) Migrate(ctx context.Context, dst backend.Backend) error {
	if dst == nil {
		return errors.New(errors.ErrCodeInvalidInput, "migration requires a destination backend")
	}

	copied, err := c.copySubtree(ctx, dst, "")
	if err != nil {
		return errors.Wrap(errors.GetCode(err), err, "migrate trajectory %q", c.traj.Name())
	}
	c.backend = dst
	c.logger.Info("migrated trajectory",
		"trajectory", c.traj.Name(), "nodes", copied)
	return nil
}

// copySubtree copies the record at fullName and all its stored
// descendants from the current backend into dst.
func (c *Coordinator) copySubtree(ctx context.Context, dst backend.Backend, fullName string) (int, error) {
	rec, err := c.backend.ReadNode(ctx, c.traj.Name(), fullName)
	if err != nil {
		return 0, err
	}
	if err := dst.WriteNode(ctx, c.traj.Name(), rec); err != nil {
		return 0, err
	}

	count := 1
	names, err := c.backend.ListChildren(ctx, c.traj.Name(), fullName)
	if err != nil {
		return count, err
	}
	sort.Strings(names)
	for _, name := range names {
		child := name
		if fullName != "" {
			child = fullName + "." + name
		}
		n, err := c.copySubtree(ctx, dst, child)
		count += n
		if err != nil {
			return count, err
		}
	}
	return count, nil
}
