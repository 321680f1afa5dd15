// Package pkg provides the core libraries for Trek experiment trajectories.
//
// # Overview
//
// Trek manages versioned experiment trajectories: hierarchical trees of
// parameters and results that fan out into runs and persist to pluggable
// storage services. The pkg directory is organized into five main areas:
//
//  1. [trajectory] - Domain logic (node tree, shortcuts, links, exploration)
//  2. [param] - Leaf items (parameters, results, payload serialization)
//  3. [storage] - Persistence (coordinator, depth limits, backends)
//  4. [queue] / [runner] - Orchestration (single-writer queue, worker pool)
//  5. [errors] / [observability] - Cross-cutting concerns
//
// # Architecture
//
// The typical data flow through Trek:
//
//	trajectory package (build tree, explore parameters)
//	         |
//	    runner package (execute runs on a worker pool)
//	         |
//	    queue package (serialize store requests)
//	         |
//	    storage package (records, depth limits, overviews)
//	         |
//	    storage/backend package (memory/file/redis/mongo)
//
// # Quick Start
//
// Build a trajectory, explore a parameter and execute its runs:
//
//	import (
//	    "context"
//	    "github.com/matzehuels/trek/pkg/param"
//	    "github.com/matzehuels/trek/pkg/runner"
//	    "github.com/matzehuels/trek/pkg/storage"
//	    "github.com/matzehuels/trek/pkg/storage/backend"
//	    "github.com/matzehuels/trek/pkg/trajectory"
//	)
//
//	traj, _ := trajectory.New("experiment")
//	p, _ := param.NewParameterValue(0.0)
//	traj.Root().AddLeaf("parameters.rate", p)
//	traj.Explore(map[string][]any{"rate": {0.1, 0.2, 0.4}})
//
//	coord, _ := storage.New(ctx, traj, storage.Options{Backend: backend.NewMemory()})
//	r := runner.NewRunner(coord, nil)
//	r.Execute(ctx, func(ctx context.Context, run *runner.Run) error {
//	    rate, _ := run.Value("parameters.rate")
//	    return run.StoreResult(ctx, "out", map[string]any{"rate": rate})
//	}, runner.Options{Workers: 4})
package pkg
