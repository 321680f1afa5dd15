// Package queue serializes concurrent store requests through a single
// writer.
//
// The storage backend is not safe for concurrent writers, so all mutation
// during parallel run execution is funneled through one Writer goroutine
// owning exclusive access to the storage coordinator. Workers submit
// store requests to a bounded FIFO queue; the writer drains it in strict
// submission order and reports each request's outcome back on its own
// reply channel. A failing request never halts the writer.
//
// # Lifecycle
//
//	Idle ⇄ Draining → Closed
//
// Close drains everything already queued, then enters the terminal
// Closed state; submissions after Close fail fast with QUEUE_CLOSED
// instead of blocking forever.
package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/trek/pkg/errors"
	"github.com/matzehuels/trek/pkg/observability"
	"github.com/matzehuels/trek/pkg/storage"
	"github.com/matzehuels/trek/pkg/trajectory"
)

// DefaultQueueSize bounds the request queue when Options leaves it unset.
// A full queue applies backpressure: submitting workers block.
const DefaultQueueSize = 64

// State describes the writer lifecycle.
type State int32

// Writer states.
const (
	// StateIdle means the queue is empty and no request is being applied.
	StateIdle State = iota

	// StateDraining means requests are queued or being applied.
	StateDraining

	// StateClosed is terminal: the queue has been drained and shut down.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// request is one queued store operation plus its reply channel.
type request struct {
	node  *trajectory.Node
	opts  storage.StoreOptions
	reply chan error
}

// Options configures a Writer.
type Options struct {
	// QueueSize bounds the request queue. Defaults to DefaultQueueSize.
	QueueSize int

	// Logger for writer events. Defaults to the coordinator's
	// trajectory logger.
	Logger *log.Logger

	// ApplyLock, when set, is held while each request is applied. The
	// runner shares it with its tree-mutation lock so the writer never
	// reads the tree while a worker attaches nodes.
	ApplyLock *sync.Mutex
}

// ValidateAndSetDefaults checks required fields and fills in defaults.
func (o *Options) ValidateAndSetDefaults(coord *storage.Coordinator) error {
	if coord == nil {
		return errors.New(errors.ErrCodeInvalidInput, "queue requires a storage coordinator")
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.Logger == nil {
		o.Logger = coord.Trajectory().Logger()
	}
	return nil
}

// Writer owns exclusive access to a storage coordinator and applies
// queued store requests one at a time, in submission order.
type Writer struct {
	coord     *storage.Coordinator
	logger    *log.Logger
	applyLock *sync.Mutex

	requests chan request
	done     chan struct{}

	mu      sync.RWMutex
	closed  bool
	pending atomic.Int64
}

// NewWriter starts the writer goroutine.
func NewWriter(coord *storage.Coordinator, opts Options) (*Writer, error) {
	if err := opts.ValidateAndSetDefaults(coord); err != nil {
		return nil, err
	}
	w := &Writer{
		coord:     coord,
		logger:    opts.Logger,
		applyLock: opts.ApplyLock,
		requests:  make(chan request, opts.QueueSize),
		done:      make(chan struct{}),
	}
	go w.drain()
	return w, nil
}

// drain applies queued requests until the queue is closed. A request
// that fails is reported on its reply channel and the writer moves on.
func (w *Writer) drain() {
	defer close(w.done)
	ctx := context.Background()
	for req := range w.requests {
		start := time.Now()
		if w.applyLock != nil {
			w.applyLock.Lock()
		}
		err := w.coord.Store(ctx, req.node, req.opts)
		if w.applyLock != nil {
			w.applyLock.Unlock()
		}
		if err != nil {
			observability.Queue().OnFail(ctx, nodeName(req.node), err)
			w.logger.Warn("store request failed",
				"node", nodeName(req.node), "err", err)
		} else {
			observability.Queue().OnApply(ctx, nodeName(req.node), time.Since(start))
		}
		req.reply <- err
		w.pending.Add(-1)
	}
}

// Submit queues a store request and blocks until the writer has applied
// it, returning the apply error. Submission blocks while the queue is
// full (backpressure) and fails fast with QUEUE_CLOSED once the writer
// is closed.
func (w *Writer) Submit(ctx context.Context, node *trajectory.Node, opts storage.StoreOptions) error {
	reply, err := w.SubmitAsync(ctx, node, opts)
	if err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return errors.Wrap(errors.ErrCodeInternal, ctx.Err(),
			"abandoned store request for %s", nodeName(node))
	}
}

// SubmitAsync queues a store request and returns the channel its
// outcome will be delivered on. The synchronous error covers submission
// itself: a closed queue or a cancelled context.
func (w *Writer) SubmitAsync(ctx context.Context, node *trajectory.Node, opts storage.StoreOptions) (<-chan error, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return nil, errors.New(errors.ErrCodeQueueClosed,
			"write queue is closed; request for %s rejected", nodeName(node))
	}

	req := request{node: node, opts: opts, reply: make(chan error, 1)}
	w.pending.Add(1)
	observability.Queue().OnEnqueue(ctx, nodeName(node))
	select {
	case w.requests <- req:
		return req.reply, nil
	case <-ctx.Done():
		w.pending.Add(-1)
		return nil, errors.Wrap(errors.ErrCodeInternal, ctx.Err(),
			"store request for %s not submitted", nodeName(node))
	}
}

// State returns the writer's lifecycle state.
func (w *Writer) State() State {
	w.mu.RLock()
	closed := w.closed
	w.mu.RUnlock()
	if closed {
		select {
		case <-w.done:
			return StateClosed
		default:
			return StateDraining
		}
	}
	if w.pending.Load() > 0 {
		return StateDraining
	}
	return StateIdle
}

// Close drains every request already queued, then shuts the writer
// down. Safe to call once; submissions racing with Close either drain
// normally or fail fast with QUEUE_CLOSED.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return nil
	}
	w.closed = true
	close(w.requests)
	w.mu.Unlock()

	<-w.done
	w.logger.Debug("write queue closed")
	return nil
}

func nodeName(node *trajectory.Node) string {
	if node == nil {
		return "<root>"
	}
	return node.FullName()
}
