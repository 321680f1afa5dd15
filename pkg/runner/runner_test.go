package runner

import (
	"context"
	"fmt"
	"testing"

	"github.com/matzehuels/trek/pkg/errors"
	"github.com/matzehuels/trek/pkg/param"
	"github.com/matzehuels/trek/pkg/storage"
	"github.com/matzehuels/trek/pkg/storage/backend"
	"github.com/matzehuels/trek/pkg/trajectory"
)

func setup(t *testing.T) (*trajectory.Trajectory, *backend.Memory, *Runner) {
	t.Helper()
	traj, err := trajectory.New("exp")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p, _ := param.NewParameterValue(0)
	if _, err := traj.Root().AddLeaf("parameters.x", p); err != nil {
		t.Fatalf("AddLeaf: %v", err)
	}
	if err := traj.Explore(map[string][]any{"x": {1, 2, 3, 4}}); err != nil {
		t.Fatalf("Explore: %v", err)
	}

	mem := backend.NewMemory()
	coord, err := storage.New(context.Background(), traj, storage.Options{Backend: mem})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	return traj, mem, NewRunner(coord, nil)
}

func TestExecuteRunsAllAndStoresResults(t *testing.T) {
	ctx := context.Background()
	traj, mem, r := setup(t)

	result, err := r.Execute(ctx, func(ctx context.Context, run *Run) error {
		v, err := run.Value("parameters.x")
		if err != nil {
			return err
		}
		return run.StoreResult(ctx, "out", map[string]any{"value": v})
	}, Options{Workers: 3})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if result.Completed != 4 || len(result.Failed) != 0 {
		t.Errorf("completed=%d failed=%d", result.Completed, len(result.Failed))
	}
	for _, run := range traj.Runs() {
		if !run.Completed {
			t.Errorf("run %s should be completed", run.Name)
		}
	}

	for i := 0; i < 4; i++ {
		full := fmt.Sprintf("results.%s.out", trajectory.FormatRunName(i))
		rec, err := mem.ReadNode(ctx, "exp", full)
		if err != nil {
			t.Errorf("ReadNode(%s): %v", full, err)
			continue
		}
		want := fmt.Sprintf("%d", i+1)
		if string(rec.Payload["value"]) != want {
			t.Errorf("%s value = %s, want %s", full, rec.Payload["value"], want)
		}
	}

	// Completion flags survive in the stored run table.
	root, _ := mem.ReadNode(ctx, "exp", "")
	for _, run := range root.Meta.Runs {
		if !run.Completed {
			t.Errorf("stored run %s should be completed", run.Name)
		}
	}
}

func TestFailingRunAbortsOnlyItself(t *testing.T) {
	ctx := context.Background()
	traj, mem, r := setup(t)

	result, err := r.Execute(ctx, func(ctx context.Context, run *Run) error {
		if run.Index == 2 {
			return errors.New(errors.ErrCodeInternal, "simulated failure")
		}
		return run.StoreResult(ctx, "out", map[string]any{"ok": true})
	}, Options{Workers: 2})
	if err == nil {
		t.Fatal("Execute should report the failed run")
	}

	if result.Completed != 3 {
		t.Errorf("completed = %d, want 3", result.Completed)
	}
	if _, ok := result.Failed[2]; !ok || len(result.Failed) != 1 {
		t.Errorf("failed = %v, want only run 2", result.Failed)
	}

	runs := traj.Runs()
	for _, run := range runs {
		want := run.Index != 2
		if run.Completed != want {
			t.Errorf("run %s completed = %v, want %v", run.Name, run.Completed, want)
		}
	}

	// The other runs' results still drained into the backend.
	if _, err := mem.ReadNode(ctx, "exp", "results.run_00000003.out"); err != nil {
		t.Errorf("run 3 result should be stored: %v", err)
	}
	if _, err := mem.ReadNode(ctx, "exp", "results.run_00000002.out"); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("run 2 stored nothing: %v", err)
	}
}

func TestExecuteRequiresRuns(t *testing.T) {
	traj, _ := trajectory.New("empty")
	coord, err := storage.New(context.Background(), traj, storage.Options{Backend: backend.NewMemory()})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	r := NewRunner(coord, nil)

	_, err = r.Execute(context.Background(), func(context.Context, *Run) error { return nil }, Options{})
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("got %v, want INVALID_INPUT", err)
	}
}

func TestOptionsDefaults(t *testing.T) {
	_, _, r := setup(t)

	opts := Options{}
	if err := opts.ValidateAndSetDefaults(r); err != nil {
		t.Fatalf("ValidateAndSetDefaults: %v", err)
	}
	if opts.Workers <= 0 || opts.QueueSize <= 0 || opts.Logger == nil {
		t.Errorf("defaults not applied: %+v", opts)
	}

	bad := Options{Workers: -1}
	if err := bad.ValidateAndSetDefaults(r); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("negative workers: got %v, want INVALID_INPUT", err)
	}
}
