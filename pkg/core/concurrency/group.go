package concurrency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrGroupClosed is returned by Go after the group has been cancelled.
var ErrGroupClosed = errors.New("task group is closed")

// TaskGroup runs every task on its own goroutine under a shared cancellable
// context, and keeps the set of tasks that have not returned yet.
//
// Unlike a worker pool it never queues: tasks that block for a long time
// (waiting on a CountingResource, say) must not starve the ones behind them.
type TaskGroup struct {
	ctx    context.Context
	cancel context.CancelFunc
	eg     errgroup.Group
	logger *slog.Logger

	mu     sync.Mutex
	live   map[uint64]string
	nextID uint64
	closed bool

	// One goroutine waits on eg for the life of the group; every Wait
	// selects on its result.
	waitOnce sync.Once
	waitDone chan struct{}
	waitErr  error
}

// NewTaskGroup creates a group whose tasks run under a child of ctx.
func NewTaskGroup(ctx context.Context, logger *slog.Logger) *TaskGroup {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &TaskGroup{
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
		live:     make(map[uint64]string),
		waitDone: make(chan struct{}),
	}
}

// Go starts task on a new goroutine.
// A panic inside the task is recovered and reported as the task's error.
func (g *TaskGroup) Go(task Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrGroupClosed
	}
	g.nextID++
	id := g.nextID
	name := task.Name()
	g.live[id] = name
	g.mu.Unlock()

	g.eg.Go(func() error {
		defer g.finish(id)

		err := g.run(task)
		if err != nil {
			g.logger.Error("task failed", "task", name, "error", err)
		}
		return err
	})
	return nil
}

func (g *TaskGroup) run(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", task.Name(), r)
		}
	}()
	return task.Execute(g.ctx)
}

func (g *TaskGroup) finish(id uint64) {
	g.mu.Lock()
	delete(g.live, id)
	g.mu.Unlock()
}

// Cancel cancels the group context. Tasks observe it cooperatively.
// Further calls to Go fail with ErrGroupClosed.
func (g *TaskGroup) Cancel() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	g.cancel()
}

// Wait blocks until every task has returned or ctx is done.
// It returns the first task error, or ctx's error wrapped with the number of
// tasks still running. Call it after Cancel, or once no more tasks will be added.
// Repeated calls after a timeout share a single waiter.
func (g *TaskGroup) Wait(ctx context.Context) error {
	g.waitOnce.Do(func() {
		go func() {
			g.waitErr = g.eg.Wait()
			close(g.waitDone)
		}()
	})

	select {
	case <-g.waitDone:
		return g.waitErr
	case <-ctx.Done():
		return fmt.Errorf("%d tasks still running: %w", g.Len(), ctx.Err())
	}
}

// Context returns the context tasks run under.
func (g *TaskGroup) Context() context.Context {
	return g.ctx
}

// Len returns the number of tasks that have not returned.
func (g *TaskGroup) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.live)
}

// Live returns the sorted names of the tasks that have not returned.
func (g *TaskGroup) Live() []string {
	g.mu.Lock()
	names := make([]string, 0, len(g.live))
	for _, name := range g.live {
		names = append(names, name)
	}
	g.mu.Unlock()

	sort.Strings(names)
	return names
}
