package storage

import (
	"context"
	"time"

	"github.com/matzehuels/trek/pkg/errors"
	"github.com/matzehuels/trek/pkg/observability"
	"github.com/matzehuels/trek/pkg/param"
	"github.com/matzehuels/trek/pkg/storage/backend"
	"github.com/matzehuels/trek/pkg/trajectory"
)

// LoadOptions configures one load call.
type LoadOptions struct {
	// Recursive loads the subtree below the node. Without it, only the
	// node itself is materialized.
	Recursive bool

	// MaxDepth bounds how many levels below the node are materialized
	// when Recursive is set; <= 0 means unlimited.
	MaxDepth int

	// DataLevel selects how much of each node is loaded. LevelSkeleton
	// creates structure with empty items; LevelPayload restores item
	// contents. LevelIncremental behaves like LevelPayload on load.
	DataLevel DataLevel

	// LoadOnly restricts loading to the named direct children of the
	// starting node. Empty means all.
	LoadOnly []string

	// LoadExcept skips nodes with the named names at any level.
	LoadExcept []string

	// Force proceeds best-effort on a trajectory format version mismatch
	// instead of failing with VERSION_MISMATCH.
	Force bool
}

// depth returns the effective depth bound (-1 = unlimited).
func (o LoadOptions) depth() int {
	if !o.Recursive {
		return 0
	}
	if o.MaxDepth <= 0 {
		return -1
	}
	return o.MaxDepth
}

func (o LoadOptions) skip(name string) bool {
	for _, n := range o.LoadExcept {
		if n == name {
			return true
		}
	}
	return false
}

func (o LoadOptions) allowedAtTop(name string) bool {
	if len(o.LoadOnly) == 0 {
		return true
	}
	for _, n := range o.LoadOnly {
		if n == name {
			return true
		}
	}
	return false
}

// pendingLink is a link edge read from storage whose target may not be
// materialized yet.
type pendingLink struct {
	owner  *trajectory.Node
	name   string
	target string
}

// Load materializes node (and, recursively, its stored subtree) from the
// backend into the tree. A nil node loads the whole trajectory from the
// root.
//
// Loading the root applies the stored trajectory metadata (identity, run
// table) and checks the stored format version against the running
// version; a mismatch fails with VERSION_MISMATCH unless opts.Force is
// set, in which case loading proceeds best-effort and the trajectory
// keeps the stored version.
//
// Link edges are restored after the subtree walk; an edge whose target
// was not materialized (outside the depth bound or filtered out) is
// skipped.
func (c *Coordinator) Load(ctx context.Context, node *trajectory.Node, opts LoadOptions) error {
	if node == nil {
		node = c.traj.Root()
	}
	if node.Trajectory() != c.traj {
		return errors.New(errors.ErrCodeInvalidInput, "node belongs to a different trajectory")
	}

	start := time.Now()
	observability.Storage().OnLoadStart(ctx, c.traj.Name(), node.FullName())

	var links []pendingLink
	count, err := c.loadNode(ctx, node, opts.depth(), true, opts, &links)
	if err == nil {
		c.restoreLinks(links)
	}
	observability.Storage().OnLoadComplete(ctx, c.traj.Name(), node.FullName(), count, time.Since(start), err)
	if err != nil {
		return err
	}

	c.traj.SetState(trajectory.StateLoaded)
	c.logger.Debug("loaded nodes",
		"trajectory", c.traj.Name(), "node", node.FullName(), "count", count)
	return nil
}

// loadNode materializes one node and recurses while depth allows. top
// marks the starting node, where LoadOnly applies to its children.
func (c *Coordinator) loadNode(ctx context.Context, node *trajectory.Node, depth int, top bool, opts LoadOptions, links *[]pendingLink) (int, error) {
	rec, err := c.backend.ReadNode(ctx, c.traj.Name(), node.FullName())
	if err != nil {
		return 0, err
	}
	if err := c.applyRecord(node, rec, opts, links); err != nil {
		return 0, err
	}

	count := 1
	if depth == 0 {
		return count, nil
	}
	names, err := c.backend.ListChildren(ctx, c.traj.Name(), node.FullName())
	if err != nil {
		return count, err
	}
	for _, name := range names {
		if opts.skip(name) {
			continue
		}
		if top && !opts.allowedAtTop(name) {
			continue
		}
		child, err := c.attachChild(ctx, node, name)
		if err != nil {
			return count, err
		}
		n, err := c.loadNode(ctx, child, depth-1, false, opts, links)
		count += n
		if err != nil {
			return count, err
		}
	}
	return count, nil
}

// attachChild ensures a tree node exists for the stored child name below
// parent, creating a group or an empty leaf of the stored item kind.
func (c *Coordinator) attachChild(ctx context.Context, parent *trajectory.Node, name string) (*trajectory.Node, error) {
	if child, ok := parent.Child(name); ok {
		return child, nil
	}

	full := name
	if parent.FullName() != "" {
		full = parent.FullName() + "." + name
	}
	rec, err := c.backend.ReadNode(ctx, c.traj.Name(), full)
	if err != nil {
		return nil, err
	}
	if rec.Kind == backend.KindLeaf {
		item, err := param.New(rec.ItemKind)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeStorage, err, "reconstruct %s", full)
		}
		return parent.AddLeaf(name, item)
	}
	return parent.AddGroup(name)
}

// applyRecord copies a stored record's state onto its tree node.
func (c *Coordinator) applyRecord(node *trajectory.Node, rec backend.Record, opts LoadOptions, links *[]pendingLink) error {
	if node.IsRoot() {
		if rec.Meta == nil {
			return errors.New(errors.ErrCodeStorage,
				"stored trajectory %q has no root metadata", c.traj.Name())
		}
		if rec.Meta.Version != trajectory.FormatVersion && !opts.Force {
			return errors.New(errors.ErrCodeVersionMismatch,
				"trajectory %q was stored with format version %s, this build expects %s (pass force to load anyway)",
				c.traj.Name(), rec.Meta.Version, trajectory.FormatVersion)
		}
		c.traj.SetID(rec.Meta.ID)
		c.traj.SetVersion(rec.Meta.Version)
		runs := make([]trajectory.RunRecord, 0, len(rec.Meta.Runs))
		for _, run := range rec.Meta.Runs {
			runs = append(runs, trajectory.RunRecord{
				Index: run.Index, Name: run.Name, Completed: run.Completed,
			})
		}
		c.traj.SetRuns(runs)
		for kind, names := range rec.Meta.Overview {
			c.overview[kind] = append([]string(nil), names...)
		}
	}

	if node.IsLeaf() && rec.Kind == backend.KindGroup {
		return errors.New(errors.ErrCodeTypeMismatch,
			"%s is a leaf in the tree but a group in storage", node.FullName())
	}
	if node.IsGroup() && !node.IsRoot() && rec.Kind == backend.KindLeaf {
		return errors.New(errors.ErrCodeTypeMismatch,
			"%s is a group in the tree but a leaf in storage", node.FullName())
	}

	node.SetComment(rec.Comment)
	for key, value := range rec.Annotations {
		node.SetAnnotation(key, value)
	}
	node.SetStored(true)
	node.SetStoredData(rec.HasData)

	if node.IsLeaf() && opts.DataLevel != LevelSkeleton && rec.Payload != nil {
		if err := node.Item().Load(param.Payload(rec.Payload)); err != nil {
			return errors.Wrap(errors.ErrCodeStorage, err, "load payload of %s", node.FullName())
		}
	}

	for name, target := range rec.Links {
		*links = append(*links, pendingLink{owner: node, name: name, target: target})
	}
	return nil
}

// restoreLinks re-creates link edges once the subtree walk is done.
// Targets outside the loaded tree and edges that already exist are
// skipped.
func (c *Coordinator) restoreLinks(links []pendingLink) {
	root := c.traj.Root()
	for _, l := range links {
		target, err := root.Get(l.target,
			trajectory.WithShortcuts(false), trajectory.WithLinks(false), trajectory.WithAutoLoad(false))
		if err != nil {
			c.logger.Debug("skipping link with unloaded target",
				"owner", l.owner.FullName(), "link", l.name, "target", l.target)
			continue
		}
		if existing := l.owner.Links()[l.name]; existing != nil {
			continue
		}
		if err := l.owner.AddLink(l.name, target); err != nil {
			c.logger.Warn("could not restore link",
				"owner", l.owner.FullName(), "link", l.name, "err", err)
		}
	}
}

// InstallLoader wires the coordinator into the trajectory's auto-load
// path: resolution misses fetch the missing child (with payload) from
// the backend.
func (c *Coordinator) InstallLoader() {
	c.traj.SetLoader(func(parent *trajectory.Node, name string) error {
		ctx := context.Background()
		child, err := c.attachChild(ctx, parent, name)
		if err != nil {
			return err
		}
		var links []pendingLink
		_, err = c.loadNode(ctx, child, 0, false, LoadOptions{DataLevel: LevelPayload}, &links)
		if err != nil {
			return err
		}
		c.restoreLinks(links)
		return nil
	})
}
