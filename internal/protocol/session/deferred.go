package session

import (
	"context"
	"strings"
	"sync"
	"time"

	logs "github.com/danmuck/meshboard/internal/logging"
)

// SendFunc performs one deferred send attempt.
type SendFunc func(ctx context.Context) error

type deferredTask struct {
	cancel context.CancelFunc
}

// Deferred runs keyed one-shot sends after a delay with bounded retry.
// Scheduling a key that is already pending replaces the pending task.
type Deferred struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	tasks  map[string]*deferredTask
	closed bool
	wg     sync.WaitGroup
}

func NewDeferred(parent context.Context) *Deferred {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Deferred{
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[string]*deferredTask),
	}
}

// Schedule arms fn under key using policy. A closed scheduler ignores the call.
func (d *Deferred) Schedule(key string, policy RetryPolicy, fn SendFunc) {
	key = strings.TrimSpace(key)
	if key == "" || fn == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(d.ctx)
	task := &deferredTask{cancel: cancel}
	if prev, ok := d.tasks[key]; ok {
		prev.cancel()
		logs.Debugf("session.Deferred.Schedule key=%q replaced", key)
	}
	d.tasks[key] = task
	d.wg.Add(1)
	d.mu.Unlock()

	go d.run(ctx, key, task, policy, fn)
}

func (d *Deferred) run(ctx context.Context, key string, task *deferredTask, policy RetryPolicy, fn SendFunc) {
	defer d.wg.Done()
	defer d.clearTaskIf(key, task)
	defer task.cancel()

	if !sleepCtx(ctx, policy.Delay) {
		return
	}
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			logs.Debugf("session.Deferred.run key=%q attempt=%d sent", key, attempt)
			return
		}
		if ctx.Err() != nil {
			return
		}
		logs.Warnf("session.Deferred.run key=%q attempt=%d/%d err=%v", key, attempt, attempts, err)
		if attempt < attempts && !sleepCtx(ctx, policy.Spacing) {
			return
		}
	}
	logs.Warnf("session.Deferred.run key=%q exhausted attempts=%d", key, attempts)
}

func (d *Deferred) clearTaskIf(key string, task *deferredTask) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tasks[key] == task {
		delete(d.tasks, key)
	}
}

// Pending reports whether key has a task waiting or retrying.
func (d *Deferred) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.tasks[strings.TrimSpace(key)]
	return ok
}

func (d *Deferred) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks)
}

// Close cancels every pending task and waits for them to return.
func (d *Deferred) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.cancel()
	d.wg.Wait()
}

func sleepCtx(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
