// Package scheduler runs named periodic maintenance tasks.
package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

var errPanicked = errors.New("task panicked")

// TaskFn is the function signature for scheduled tasks. ctx is cancelled
// when the task is removed or the scheduler stops.
type TaskFn func(ctx context.Context) error

// TaskInfo is a snapshot of one task's run history.
type TaskInfo struct {
	Name      string        `json:"name"`
	Interval  time.Duration `json:"interval"`
	Runs      int64         `json:"runs"`
	LastRun   time.Time     `json:"last_run,omitempty"`
	LastError string        `json:"last_error,omitempty"`
}

type task struct {
	info   TaskInfo
	cancel context.CancelFunc
}

// Scheduler manages periodic tasks.
type Scheduler struct {
	mu     sync.Mutex
	tasks  map[string]*task
	ctx    context.Context
	stop   context.CancelFunc
	logger *zap.Logger
}

// New creates a new Scheduler.
func New(logger *zap.Logger) *Scheduler {
	ctx, stop := context.WithCancel(context.Background())
	return &Scheduler{
		tasks:  make(map[string]*task),
		ctx:    ctx,
		stop:   stop,
		logger: logger,
	}
}

// AddTicker runs fn every interval, and once immediately when runNow is set.
// A task with the same name is replaced.
func (s *Scheduler) AddTicker(name string, interval time.Duration, runNow bool, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.tasks[name]; ok {
		old.cancel()
	}
	ctx, cancel := context.WithCancel(s.ctx)
	t := &task{info: TaskInfo{Name: name, Interval: interval}, cancel: cancel}
	s.tasks[name] = t

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		if runNow {
			s.run(ctx, t, fn)
		}
		for {
			select {
			case <-ticker.C:
				s.run(ctx, t, fn)
			case <-ctx.Done():
				return
			}
		}
	}()
	s.logger.Info("scheduler task registered", zap.String("name", name), zap.Duration("interval", interval))
}

func (s *Scheduler) run(ctx context.Context, t *task, fn TaskFn) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("scheduler task panicked", zap.String("task", t.info.Name), zap.Any("recover", r))
				err = errPanicked
			}
		}()
		err = fn(ctx)
	}()
	if err != nil && ctx.Err() == nil {
		s.logger.Warn("scheduler task failed", zap.String("task", t.info.Name), zap.Error(err))
	}

	s.mu.Lock()
	t.info.Runs++
	t.info.LastRun = time.Now().UTC()
	t.info.LastError = ""
	if err != nil {
		t.info.LastError = err.Error()
	}
	s.mu.Unlock()
}

// Remove stops and removes a task by name.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[name]; ok {
		t.cancel()
		delete(s.tasks, name)
	}
}

// Stop stops all tasks.
func (s *Scheduler) Stop() {
	s.stop()
}

// Tasks returns a snapshot of all registered tasks ordered by name.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskInfo, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
