// Package runner executes a trajectory's runs on a bounded worker pool.
//
// Each worker processes one run at a time: it reads the run's slice of
// the explored parameter values, computes results and hands store
// requests to the single-writer queue. Workers never touch the storage
// backend directly, and tree mutation (attaching result leaves) is
// serialized by the runner, so the trajectory skeleton stays consistent
// while runs execute in parallel.
//
// A failing run aborts only itself; the remaining runs keep executing
// and already-queued store requests still drain.
//
// # Usage
//
//	runner := runner.NewRunner(coord, logger)
//	result, err := runner.Execute(ctx, func(ctx context.Context, run *runner.Run) error {
//	    x, err := run.Value("x")
//	    if err != nil {
//	        return err
//	    }
//	    return run.StoreResult(ctx, "out", map[string]any{"doubled": x.(float64) * 2})
//	}, runner.Options{Workers: 4})
package runner

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/trek/pkg/errors"
	"github.com/matzehuels/trek/pkg/observability"
	"github.com/matzehuels/trek/pkg/param"
	"github.com/matzehuels/trek/pkg/queue"
	"github.com/matzehuels/trek/pkg/storage"
	"github.com/matzehuels/trek/pkg/trajectory"
)

// ResultsGroupName is the group run results are attached under, one
// subgroup per run name.
const ResultsGroupName = "results"

// Options configures one Execute call.
type Options struct {
	// Workers bounds the worker pool. Defaults to the number of CPUs.
	Workers int

	// QueueSize bounds the write queue. Defaults to queue.DefaultQueueSize.
	QueueSize int

	// Logger for run events. Defaults to the runner's logger.
	Logger *log.Logger
}

// ValidateAndSetDefaults checks fields and fills in defaults.
func (o *Options) ValidateAndSetDefaults(r *Runner) error {
	if o.Workers < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "worker count cannot be negative")
	}
	if o.Workers == 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.QueueSize == 0 {
		o.QueueSize = queue.DefaultQueueSize
	}
	if o.Logger == nil {
		o.Logger = r.Logger
	}
	return nil
}

// RunFunc computes one run. It may read explored values through the Run
// and must store results through it, never through the backend directly.
type RunFunc func(ctx context.Context, run *Run) error

// Run is one worker's view of its run: the run identity plus accessors
// that bind the run index for value access and funnel stores through
// the write queue.
//
// All tree access goes through the runner's tree lock, which the writer
// shares while applying requests, so workers never observe a
// half-attached subtree.
type Run struct {
	Index int
	Name  string

	traj   *trajectory.Trajectory
	writer *queue.Writer
	treeMu *sync.Mutex
}

// Value resolves path to a parameter and returns this run's value.
func (r *Run) Value(path string) (any, error) {
	r.treeMu.Lock()
	defer r.treeMu.Unlock()
	return r.traj.Root().Access(path, r.Index)
}

// Get resolves path with this run's index bound to the wildcard segment.
func (r *Run) Get(path string) (*trajectory.Node, error) {
	r.treeMu.Lock()
	defer r.treeMu.Unlock()
	return r.traj.Get(path, trajectory.WithRun(r.Index))
}

// StoreResult attaches a result leaf under results.<run>.<name> and
// queues it for storage, blocking until the writer has applied it.
func (r *Run) StoreResult(ctx context.Context, name string, fields map[string]any) error {
	res, err := param.NewResultFields(fields)
	if err != nil {
		return err
	}

	r.treeMu.Lock()
	node, err := r.traj.Root().AddLeaf(ResultsGroupName+"."+r.Name+"."+name, res)
	r.treeMu.Unlock()
	if err != nil {
		return err
	}
	return r.Store(ctx, node, storage.StoreOptions{DataLevel: storage.LevelPayload})
}

// Store queues a store request for any node, blocking until applied.
func (r *Run) Store(ctx context.Context, node *trajectory.Node, opts storage.StoreOptions) error {
	return r.writer.Submit(ctx, node, opts)
}

// Result summarizes one Execute call.
type Result struct {
	// Completed counts runs that finished without error.
	Completed int

	// Failed maps run indices to their errors.
	Failed map[int]error

	// Duration is the wall-clock time of the whole execution.
	Duration time.Duration
}

// Runner executes runs against one storage coordinator.
//
// The Runner is stateless across Execute calls; multiple sequential
// executions (for example after growing the exploration) reuse the same
// Runner.
type Runner struct {
	Coordinator *storage.Coordinator
	Logger      *log.Logger
}

// NewRunner creates a runner. If logger is nil, the coordinator's
// trajectory logger is used.
func NewRunner(coord *storage.Coordinator, logger *log.Logger) *Runner {
	if logger == nil && coord != nil {
		logger = coord.Trajectory().Logger()
	}
	return &Runner{Coordinator: coord, Logger: logger}
}

// Execute runs fn once per run on a bounded worker pool and persists
// the run table afterwards.
//
// Incomplete runs are skipped on repeated executions only in the sense
// that completion flags survive in the run table; Execute itself always
// processes every run. The returned error is non-nil when any run
// failed; per-run errors are in Result.Failed.
func (r *Runner) Execute(ctx context.Context, fn RunFunc, opts Options) (*Result, error) {
	if r.Coordinator == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "runner requires a storage coordinator")
	}
	if fn == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "runner requires a run function")
	}
	if err := opts.ValidateAndSetDefaults(r); err != nil {
		return nil, err
	}

	traj := r.Coordinator.Trajectory()
	runs := traj.Runs()
	if len(runs) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput,
			"trajectory %q has no runs; explore parameters first", traj.Name())
	}

	var treeMu sync.Mutex
	writer, err := queue.NewWriter(r.Coordinator, queue.Options{
		QueueSize: opts.QueueSize,
		Logger:    opts.Logger,
		ApplyLock: &treeMu,
	})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var (
		mu       sync.Mutex
		failed   = make(map[int]error)
		finished []int
	)

	indices := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range indices {
				run := &Run{
					Index:  idx,
					Name:   runs[idx].Name,
					traj:   traj,
					writer: writer,
					treeMu: &treeMu,
				}
				runStart := time.Now()
				observability.Run().OnRunStart(ctx, traj.Name(), idx)
				err := fn(ctx, run)
				observability.Run().OnRunComplete(ctx, traj.Name(), idx, time.Since(runStart), err)

				mu.Lock()
				if err != nil {
					failed[idx] = err
				} else {
					finished = append(finished, idx)
				}
				mu.Unlock()
			}
		}()
	}

	for idx := range runs {
		indices <- idx
	}
	close(indices)
	wg.Wait()

	// Completion flags are applied by this goroutine only, after all
	// workers are done.
	sort.Ints(finished)
	for _, idx := range finished {
		_ = traj.MarkRunCompleted(idx)
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}
	// Persist the run table with its completion flags.
	if err := r.Coordinator.Store(ctx, nil, storage.StoreOptions{DataLevel: storage.LevelSkeleton}); err != nil {
		return nil, err
	}

	result := &Result{
		Completed: len(finished),
		Failed:    failed,
		Duration:  time.Since(start),
	}
	r.Logger.Info("executed runs",
		"trajectory", traj.Name(),
		"completed", result.Completed,
		"failed", len(failed),
		"duration", result.Duration)

	if len(failed) > 0 {
		return result, errors.New(errors.ErrCodeInternal,
			"%d of %d runs failed", len(failed), len(runs))
	}
	return result, nil
}
