// Package trajectory implements the versioned, hierarchical namespace of
// one experiment: a tree of groups and parameter/result leaves, non-owning
// link edges between nodes, shortcut and wildcard path resolution, and the
// exploration fan-out that turns parameter value lists into runs.
//
// # Structure
//
// A Trajectory owns a single root node. Groups contain children; leaves
// hold param.Item payloads. Links are named aliases kept in a separate
// index; they may form cycles and are only followed during named lookup.
//
// # Runs
//
// Explore expands one or more equal-length value lists into N runs named
// run_00000000, run_00000001, ... Each run exposes its slice of the
// exploded values through the leaf's Access method; the wildcard path
// segment "$" resolves to the currently bound run's name.
//
// # Usage
//
//	traj := trajectory.New("myexperiment")
//	traj.Root().AddGroup("parameters")
//	p, _ := param.NewParameterValue(42)
//	traj.Root().AddLeaf("parameters.x", p)
//	traj.Explore(map[string][]any{"parameters.x": {1, 2, 3, 4}})
package trajectory

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/trek/pkg/errors"
)

// FormatVersion is the trajectory format version written by this release.
// Loading a trajectory stored with a different version fails with
// VERSION_MISMATCH unless forced.
const FormatVersion = "1.0.0"

// WildcardToken is the path segment substituted with the bound run's name.
const WildcardToken = "$"

// State describes the trajectory lifecycle.
type State int

// Lifecycle states.
const (
	StateBuilt State = iota
	StatePartiallyStored
	StateFullyStored
	StateLoaded
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateBuilt:
		return "built"
	case StatePartiallyStored:
		return "partially-stored"
	case StateFullyStored:
		return "fully-stored"
	case StateLoaded:
		return "loaded"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// RunRecord describes one run produced by exploration.
type RunRecord struct {
	Index     int    `json:"index" bson:"index"`
	Name      string `json:"name" bson:"name"`
	Completed bool   `json:"completed" bson:"completed"`
}

// ChildLoaderFunc fetches a missing child of parent from storage and
// attaches it to the tree. Installed by the storage coordinator to enable
// auto-loading during resolution.
type ChildLoaderFunc func(parent *Node, name string) error

// Trajectory is the root container of one experiment's namespace plus its
// run set and format version.
type Trajectory struct {
	id      string
	name    string
	version string
	root    *Node
	links   *LinkIndex

	runs       []RunRecord
	currentRun int

	state    State
	autoLoad bool
	loader   ChildLoaderFunc

	logger *log.Logger
}

// Option configures a trajectory at construction time.
type Option func(*Trajectory)

// WithLogger sets the logger used for tree and exploration events.
func WithLogger(l *log.Logger) Option {
	return func(t *Trajectory) { t.logger = l }
}

// WithID sets the trajectory identity instead of generating a fresh UUID.
// Used when reloading a stored trajectory.
func WithID(id string) Option {
	return func(t *Trajectory) { t.id = id }
}

// New creates an empty trajectory with the given name.
func New(name string, opts ...Option) (*Trajectory, error) {
	if err := errors.ValidateName(name); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidName, err, "trajectory name")
	}
	t := &Trajectory{
		id:         uuid.NewString(),
		name:       name,
		version:    FormatVersion,
		links:      newLinkIndex(),
		currentRun: -1,
		state:      StateBuilt,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = log.Default()
	}
	t.root = &Node{name: name, traj: t}
	return t, nil
}

// ID returns the trajectory's UUID.
func (t *Trajectory) ID() string { return t.id }

// SetID overrides the trajectory identity. Called by the storage layer
// when rebinding to a stored trajectory.
func (t *Trajectory) SetID(id string) { t.id = id }

// Name returns the trajectory name.
func (t *Trajectory) Name() string { return t.name }

// Version returns the trajectory's format version.
func (t *Trajectory) Version() string { return t.version }

// SetVersion overrides the format version. Intended for loading stored
// trajectories and for compatibility testing.
func (t *Trajectory) SetVersion(v string) { t.version = v }

// Root returns the root node.
func (t *Trajectory) Root() *Node { return t.root }

// Links returns the trajectory's link index.
func (t *Trajectory) Links() *LinkIndex { return t.links }

// State returns the lifecycle state.
func (t *Trajectory) State() State { return t.state }

// SetState transitions the lifecycle state. Called by the storage layer.
func (t *Trajectory) SetState(s State) { t.state = s }

// Logger returns the trajectory logger.
func (t *Trajectory) Logger() *log.Logger { return t.logger }

// Len returns the number of runs, or 1 for an unexplored trajectory.
func (t *Trajectory) Len() int {
	if len(t.runs) == 0 {
		return 1
	}
	return len(t.runs)
}

// NumRuns returns the number of runs (0 before the first Explore call).
func (t *Trajectory) NumRuns() int { return len(t.runs) }

// Runs returns a copy of the run records.
func (t *Trajectory) Runs() []RunRecord {
	return append([]RunRecord(nil), t.runs...)
}

// SetRuns replaces the run records. Called by the storage layer on load.
func (t *Trajectory) SetRuns(runs []RunRecord) {
	t.runs = append([]RunRecord(nil), runs...)
}

// MarkRunCompleted flags a run as completed so orchestrators can resume.
func (t *Trajectory) MarkRunCompleted(idx int) error {
	if idx < 0 || idx >= len(t.runs) {
		return errors.New(errors.ErrCodeInvalidInput, "run index %d out of range", idx)
	}
	t.runs[idx].Completed = true
	return nil
}

// FormatRunName returns the canonical formatted name for run idx.
func FormatRunName(idx int) string {
	return fmt.Sprintf("run_%08d", idx)
}

// SetCurrentRun binds the wildcard segment to the given run index.
func (t *Trajectory) SetCurrentRun(idx int) error {
	if idx < 0 || idx >= len(t.runs) {
		return errors.New(errors.ErrCodeInvalidInput,
			"run index %d out of range [0,%d)", idx, len(t.runs))
	}
	t.currentRun = idx
	return nil
}

// ClearCurrentRun unbinds the wildcard segment.
func (t *Trajectory) ClearCurrentRun() { t.currentRun = -1 }

// CurrentRun returns the bound run index, or -1 if none is bound.
func (t *Trajectory) CurrentRun() int { return t.currentRun }

// wildcardName resolves the wildcard token for runIdx, falling back to the
// trajectory's bound run. An unbound wildcard fails: there is no default
// run.
func (t *Trajectory) wildcardName(runIdx int) (string, error) {
	if runIdx < 0 {
		runIdx = t.currentRun
	}
	if runIdx < 0 {
		return "", errors.New(errors.ErrCodeNoRunBound,
			"wildcard segment %q used outside any run binding", WildcardToken)
	}
	if runIdx >= len(t.runs) {
		return "", errors.New(errors.ErrCodeInvalidInput,
			"run index %d out of range [0,%d)", runIdx, len(t.runs))
	}
	return t.runs[runIdx].Name, nil
}

// SetAutoLoad enables fetching missing children from storage during
// resolution. A loader must be installed by the storage coordinator.
func (t *Trajectory) SetAutoLoad(enabled bool) { t.autoLoad = enabled }

// AutoLoad reports whether resolution may hit storage.
func (t *Trajectory) AutoLoad() bool { return t.autoLoad }

// SetLoader installs the storage-backed child loader used by auto-load.
func (t *Trajectory) SetLoader(loader ChildLoaderFunc) { t.loader = loader }

// markChanged downgrades a fully-stored trajectory to partially stored
// whenever the tree mutates.
func (t *Trajectory) markChanged() {
	if t.state == StateFullyStored || t.state == StateLoaded {
		t.state = StatePartiallyStored
	}
}

// Get resolves a path starting at the root. See Node.Get.
func (t *Trajectory) Get(path string, opts ...GetOption) (*Node, error) {
	return t.root.Get(path, opts...)
}

// GetDefault resolves a path and returns fallback instead of an error when
// nothing is found. Resolution errors other than a plain miss (for
// example an ambiguous shortcut) are still returned.
func (t *Trajectory) GetDefault(path string, fallback any) (any, error) {
	node, err := t.Get(path)
	if err != nil {
		if errors.Is(err, errors.ErrCodeNotFound) ||
			errors.Is(err, errors.ErrCodeDataNotInStorage) ||
			errors.Is(err, errors.ErrCodeNoRunBound) {
			return fallback, nil
		}
		return nil, err
	}
	if node.IsLeaf() {
		if p, ok := node.Item().(interface{ Get() any }); ok {
			return p.Get(), nil
		}
		return node.Item().ToDict(), nil
	}
	return node, nil
}

// Contains reports whether path resolves from the root with links visible.
func (t *Trajectory) Contains(path string) bool {
	return t.root.Contains(path, true)
}
