// Package storage implements the depth-limited store/load protocol between
// a trajectory tree and a storage backend.
//
// The Coordinator walks the ownership tree (never through link edges),
// serializes each node into a backend record and applies overwrite,
// version-check and overview-cap semantics. It is the only component that
// talks to a backend.Backend; concurrent writers funnel their requests
// through pkg/queue instead of calling the coordinator directly.
//
// # Depth
//
// Store and load are bounded by a maximum depth below the starting node:
// a non-recursive call touches only the node itself, a recursive call
// descends MaxDepth additional levels (unlimited when MaxDepth <= 0).
// Link edges are recorded on their owner but never descended into.
//
// # Data levels
//
// LevelSkeleton writes structure and metadata only, preserving any payload
// already stored. LevelPayload rewrites item payloads. LevelIncremental
// rewrites only the named overwrite fields, or the payloads of nodes never
// stored before when no fields are named.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/trek/pkg/errors"
	"github.com/matzehuels/trek/pkg/observability"
	"github.com/matzehuels/trek/pkg/storage/backend"
	"github.com/matzehuels/trek/pkg/trajectory"
)

// DefaultOverviewCap bounds the per-kind overview tables kept in the root
// record. Leaves stored past the cap remain addressable by path but are no
// longer listed in the overview.
const DefaultOverviewCap = 1000

// DataLevel selects how much of each node a store or load touches.
type DataLevel int

// Data levels.
const (
	// LevelSkeleton touches structure and metadata only.
	LevelSkeleton DataLevel = iota

	// LevelPayload touches structure, metadata and full item payloads.
	LevelPayload

	// LevelIncremental touches structure and, per leaf, only the named
	// overwrite fields (or never-stored payloads when none are named).
	LevelIncremental
)

// String returns the level name.
func (l DataLevel) String() string {
	switch l {
	case LevelSkeleton:
		return "skeleton"
	case LevelPayload:
		return "payload"
	case LevelIncremental:
		return "incremental"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// Options configures a Coordinator.
type Options struct {
	// Backend is the storage service. Required.
	Backend backend.Backend

	// Logger for storage events. Defaults to the trajectory's logger.
	Logger *log.Logger

	// OverviewCap bounds the per-kind overview tables. Defaults to
	// DefaultOverviewCap.
	OverviewCap int
}

// ValidateAndSetDefaults checks required fields and fills in defaults.
func (o *Options) ValidateAndSetDefaults(traj *trajectory.Trajectory) error {
	if o.Backend == nil {
		return errors.New(errors.ErrCodeInvalidInput, "storage requires a backend")
	}
	if o.Logger == nil {
		o.Logger = traj.Logger()
	}
	if o.OverviewCap <= 0 {
		o.OverviewCap = DefaultOverviewCap
	}
	return nil
}

// Coordinator drives store/load for one trajectory against one backend.
// It is not safe for concurrent use; serialize calls through pkg/queue
// when multiple workers store at once.
type Coordinator struct {
	traj    *trajectory.Trajectory
	backend backend.Backend
	logger  *log.Logger

	overviewCap int
	overview    map[string][]string
}

// New creates a coordinator for the given trajectory.
//
// If the backend already holds a trajectory of the same name, its overview
// tables are adopted so re-stores keep extending them instead of starting
// over.
func New(ctx context.Context, traj *trajectory.Trajectory, opts Options) (*Coordinator, error) {
	if traj == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "storage requires a trajectory")
	}
	if err := opts.ValidateAndSetDefaults(traj); err != nil {
		return nil, err
	}

	c := &Coordinator{
		traj:        traj,
		backend:     opts.Backend,
		logger:      opts.Logger,
		overviewCap: opts.OverviewCap,
		overview:    make(map[string][]string),
	}
	if rec, err := c.backend.ReadNode(ctx, traj.Name(), ""); err == nil && rec.Meta != nil {
		for kind, names := range rec.Meta.Overview {
			c.overview[kind] = append([]string(nil), names...)
		}
	}
	return c, nil
}

// Backend returns the coordinator's current backend.
func (c *Coordinator) Backend() backend.Backend { return c.backend }

// Trajectory returns the bound trajectory.
func (c *Coordinator) Trajectory() *trajectory.Trajectory { return c.traj }

// StoreOptions configures one store call.
type StoreOptions struct {
	// Recursive stores the subtree below the node. Without it, only the
	// node itself is written.
	Recursive bool

	// MaxDepth bounds how many levels below the node are written when
	// Recursive is set; <= 0 means unlimited.
	MaxDepth int

	// DataLevel selects how much of each node is written.
	DataLevel DataLevel

	// OverwriteFields names the payload fields LevelIncremental rewrites.
	OverwriteFields []string
}

// depth returns the effective depth bound (-1 = unlimited).
func (o StoreOptions) depth() int {
	if !o.Recursive {
		return 0
	}
	if o.MaxDepth <= 0 {
		return -1
	}
	return o.MaxDepth
}

// Store writes node (and, recursively, its subtree) to the backend.
// A nil node stores the whole trajectory from the root.
//
// Storing twice with no intervening mutation leaves the backend content
// unchanged: skeleton fields are rewritten identically and payloads are
// preserved unless the data level forces a rewrite.
func (c *Coordinator) Store(ctx context.Context, node *trajectory.Node, opts StoreOptions) error {
	if node == nil {
		node = c.traj.Root()
	}
	if node.Trajectory() != c.traj {
		return errors.New(errors.ErrCodeInvalidInput, "node belongs to a different trajectory")
	}

	start := time.Now()
	observability.Storage().OnStoreStart(ctx, c.traj.Name(), node.FullName())

	count, err := c.storeNode(ctx, node, opts.depth(), opts)
	if err == nil {
		err = c.storeRootMeta(ctx)
	}
	observability.Storage().OnStoreComplete(ctx, c.traj.Name(), node.FullName(), count, time.Since(start), err)
	if err != nil {
		return err
	}

	if node.IsRoot() && opts.depth() < 0 && opts.DataLevel != LevelSkeleton {
		c.traj.SetState(trajectory.StateFullyStored)
	} else if c.traj.State() == trajectory.StateBuilt {
		c.traj.SetState(trajectory.StatePartiallyStored)
	}
	c.logger.Debug("stored nodes",
		"trajectory", c.traj.Name(), "node", node.FullName(),
		"count", count, "level", opts.DataLevel.String())
	return nil
}

// storeNode writes one node and recurses while depth allows. depth < 0
// means unlimited; depth 0 writes only this node.
func (c *Coordinator) storeNode(ctx context.Context, node *trajectory.Node, depth int, opts StoreOptions) (int, error) {
	rec, err := c.buildRecord(ctx, node, opts)
	if err != nil {
		return 0, err
	}
	if err := c.backend.WriteNode(ctx, c.traj.Name(), rec); err != nil {
		return 0, err
	}
	node.SetStored(true)
	if rec.HasData {
		node.SetStoredData(true)
	}
	if node.IsLeaf() {
		c.indexLeaf(node)
	}

	count := 1
	if depth == 0 {
		return count, nil
	}
	names := node.ChildNames()
	sort.Strings(names)
	for _, name := range names {
		child, _ := node.Child(name)
		n, err := c.storeNode(ctx, child, depth-1, opts)
		count += n
		if err != nil {
			return count, err
		}
	}
	return count, nil
}

// buildRecord serializes one node, merging with any existing stored record
// so lower data levels never clobber stored payloads.
func (c *Coordinator) buildRecord(ctx context.Context, node *trajectory.Node, opts StoreOptions) (backend.Record, error) {
	rec := backend.Record{
		FullName:    node.FullName(),
		Kind:        backend.KindGroup,
		Comment:     node.Comment(),
		Annotations: node.Annotations(),
	}
	if len(rec.Annotations) == 0 {
		rec.Annotations = nil
	}
	if links := node.Links(); len(links) > 0 {
		rec.Links = make(map[string]string, len(links))
		for name, target := range links {
			rec.Links[name] = target.FullName()
		}
	}
	if node.IsRoot() {
		rec.Meta = c.rootMeta()
	}
	if !node.IsLeaf() {
		return rec, nil
	}

	item := node.Item()
	rec.Kind = backend.KindLeaf
	rec.ItemKind = item.Kind()

	// Carry forward the payload already in the backend; the data level
	// decides whether it gets replaced.
	if prev, err := c.backend.ReadNode(ctx, c.traj.Name(), rec.FullName); err == nil {
		rec.Payload = prev.Payload
		rec.HasData = prev.HasData
	} else if !errors.Is(err, errors.ErrCodeNotFound) {
		return rec, err
	}

	switch opts.DataLevel {
	case LevelSkeleton:
		// Structure only.
	case LevelPayload:
		payload, err := item.Store()
		if err != nil {
			return rec, errors.Wrap(errors.ErrCodeStorage, err, "serialize %s", rec.FullName)
		}
		rec.Payload = payload
		rec.HasData = true
	case LevelIncremental:
		if len(opts.OverwriteFields) == 0 {
			if rec.HasData {
				break // already stored, nothing forced
			}
			payload, err := item.Store()
			if err != nil {
				return rec, errors.Wrap(errors.ErrCodeStorage, err, "serialize %s", rec.FullName)
			}
			rec.Payload = payload
			rec.HasData = true
			break
		}
		fresh, err := item.Store()
		if err != nil {
			return rec, errors.Wrap(errors.ErrCodeStorage, err, "serialize %s", rec.FullName)
		}
		if rec.Payload == nil {
			rec.Payload = make(map[string]json.RawMessage, len(opts.OverwriteFields))
		}
		for _, field := range opts.OverwriteFields {
			if data, ok := fresh[field]; ok {
				rec.Payload[field] = data
			}
		}
		rec.HasData = true
	default:
		return rec, errors.New(errors.ErrCodeInvalidInput, "unknown data level %d", opts.DataLevel)
	}
	return rec, nil
}

// rootMeta builds the trajectory metadata carried by the root record.
func (c *Coordinator) rootMeta() *backend.TrajectoryMeta {
	meta := &backend.TrajectoryMeta{
		ID:      c.traj.ID(),
		Name:    c.traj.Name(),
		Version: c.traj.Version(),
	}
	for _, run := range c.traj.Runs() {
		meta.Runs = append(meta.Runs, backend.RunMeta{
			Index: run.Index, Name: run.Name, Completed: run.Completed,
		})
	}
	if len(c.overview) > 0 {
		meta.Overview = make(map[string][]string, len(c.overview))
		for kind, names := range c.overview {
			meta.Overview[kind] = append([]string(nil), names...)
		}
	}
	return meta
}

// storeRootMeta refreshes the root record so the run table and overview
// survive subtree stores.
func (c *Coordinator) storeRootMeta(ctx context.Context) error {
	root := c.traj.Root()
	rec := backend.Record{
		FullName:    "",
		Kind:        backend.KindGroup,
		Comment:     root.Comment(),
		Annotations: root.Annotations(),
		Meta:        c.rootMeta(),
	}
	if len(rec.Annotations) == 0 {
		rec.Annotations = nil
	}
	if links := root.Links(); len(links) > 0 {
		rec.Links = make(map[string]string, len(links))
		for name, target := range links {
			rec.Links[name] = target.FullName()
		}
	}
	if err := c.backend.WriteNode(ctx, c.traj.Name(), rec); err != nil {
		return err
	}
	root.SetStored(true)
	return nil
}

// indexLeaf adds a stored leaf to its kind's overview table unless the
// cap is reached or it is already listed.
func (c *Coordinator) indexLeaf(node *trajectory.Node) {
	kind := node.Item().Kind()
	table := c.overview[kind]
	if len(table) >= c.overviewCap {
		return
	}
	full := node.FullName()
	for _, name := range table {
		if name == full {
			return
		}
	}
	c.overview[kind] = append(table, full)
}

// Overview returns the overview table for an item kind: the full names of
// stored leaves of that kind, capped at the coordinator's overview cap.
func (c *Coordinator) Overview(kind string) []string {
	return append([]string(nil), c.overview[kind]...)
}
