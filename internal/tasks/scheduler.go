package tasks

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kode4food/foreman/internal/config"
	"github.com/kode4food/foreman/internal/events"
	"github.com/kode4food/foreman/pkg/api"
	"github.com/kode4food/foreman/pkg/log"
)

type (
	// Scheduler owns every task from creation to a terminal status
	Scheduler struct {
		events    events.Publisher
		now       func() time.Time
		executors map[string]Executor
		entries   map[api.TaskID]*entry
		backlog   *backlog
		cfg       config.TaskConfig
		wg        sync.WaitGroup
		mu        sync.Mutex
		seq       uint64
		active    int
		finished  int
		avgMs     float64
	}

	outcome struct {
		output any
		err    error
	}
)

const eventSource = "tasks"

// New creates a task scheduler. A nil publisher discards events
func New(cfg config.TaskConfig, pub events.Publisher) *Scheduler {
	if pub == nil {
		pub = events.Discard
	}
	return &Scheduler{
		events:    pub,
		now:       time.Now,
		executors: map[string]Executor{},
		entries:   map[api.TaskID]*entry{},
		backlog:   newBacklog(),
		cfg:       cfg,
	}
}

// RegisterExecutor binds an executor to a tag. Tasks resolve their
// executor by bound tag, then by declared type, then by the default tag
func (s *Scheduler) RegisterExecutor(tag string, ex Executor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executors[tag] = ex
}

// CreateTask inserts a new pending task into the backlog
func (s *Scheduler) CreateTask(req *api.TaskRequest) (*api.Task, error) {
	s.mu.Lock()
	t, err := s.newTaskLocked(req)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.backlog.add(s.entries[t.ID])
	res := t.Clone()
	s.mu.Unlock()

	slog.Debug("Task created",
		log.TaskID(res.ID),
		slog.String("priority", res.Priority.String()),
		slog.String("executor", res.Executor))
	s.events.Raise(api.EventTaskCreated, eventSource, res)
	return res, nil
}

// ExecuteNext claims the highest-priority pending task and runs it to
// completion. It returns nil when the concurrency ceiling is reached or
// when no task is pending
func (s *Scheduler) ExecuteNext(ctx context.Context) *api.TaskResult {
	t := s.claimNext()
	if t == nil {
		return nil
	}
	return s.run(ctx, t)
}

// ProcessQueue claims pending tasks until the backlog is empty or the
// ceiling is reached, running each one on its own goroutine. It returns
// the number of tasks dispatched
func (s *Scheduler) ProcessQueue(ctx context.Context) int {
	n := 0
	for {
		t := s.claimNext()
		if t == nil {
			return n
		}
		n++
		s.wg.Go(func() {
			s.run(ctx, t)
		})
	}
}

// Wait blocks until every task dispatched by ProcessQueue has finished
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// RunTask claims a specific pending task and runs it to completion
func (s *Scheduler) RunTask(
	ctx context.Context, id api.TaskID,
) (*api.TaskResult, error) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if e.task.Status != api.StatusPending {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrTaskNotPending, id)
	}
	if s.active >= s.cfg.MaxConcurrent {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAtCapacity, id)
	}
	s.backlog.remove(e)
	t := s.startLocked(e)
	s.mu.Unlock()

	s.events.Raise(api.EventTaskStarted, eventSource, t)
	return s.run(ctx, t), nil
}

// Submit creates a task and runs it immediately without it ever entering
// the backlog, so no other caller can claim it first. A request that no
// registered executor can serve is rejected with ErrNoExecutor and no task
// is created
func (s *Scheduler) Submit(
	ctx context.Context, req *api.TaskRequest,
) (*api.TaskResult, error) {
	s.mu.Lock()
	if s.active >= s.cfg.MaxConcurrent {
		s.mu.Unlock()
		return nil, ErrAtCapacity
	}
	if req != nil && s.executorLocked(req.Executor, req.Type) == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNoExecutor, req.Title)
	}
	t, err := s.newTaskLocked(req)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	created := t.Clone()
	started := s.startLocked(s.entries[t.ID])
	s.mu.Unlock()

	s.events.Raise(api.EventTaskCreated, eventSource, created)
	s.events.Raise(api.EventTaskStarted, eventSource, started)
	return s.run(ctx, started), nil
}

// CancelTask cancels a pending task. Tasks that are in progress or already
// finished cannot be cancelled
func (s *Scheduler) CancelTask(id api.TaskID) error {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	switch e.task.Status {
	case api.StatusInProgress:
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskInProgress, id)
	case api.StatusPending:
	default:
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskFinished, id)
	}

	s.backlog.remove(e)
	now := s.now()
	e.task.Status = api.StatusCancelled
	e.task.UpdatedAt = now
	e.task.CompletedAt = now
	res := e.task.Clone()
	s.mu.Unlock()

	slog.Info("Task cancelled", log.TaskID(id))
	s.events.Raise(api.EventTaskCancelled, eventSource, res)
	return nil
}

// GetTask returns a copy of the task
func (s *Scheduler) GetTask(id api.TaskID) (*api.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return e.task.Clone(), nil
}

// ListTasks returns copies of the tasks matching filter in creation order
func (s *Scheduler) ListTasks(filter *api.TaskFilter) []*api.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	sorted := slices.SortedFunc(maps.Values(s.entries),
		func(l, r *entry) int {
			return cmp.Compare(l.seq, r.seq)
		},
	)
	var res []*api.Task
	for _, e := range sorted {
		if filter.Matches(e.task) {
			res = append(res, e.task.Clone())
		}
	}
	return res
}

// UpdateTask applies the non-nil fields of upd. Priority can only change
// while the task is pending
func (s *Scheduler) UpdateTask(
	id api.TaskID, upd *api.TaskUpdate,
) (*api.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	t := e.task
	if t.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s", ErrTaskFinished, id)
	}
	if upd.Title != nil && *upd.Title == "" {
		return nil, ErrTitleRequired
	}
	if upd.Priority != nil {
		if *upd.Priority <= 0 {
			return nil, fmt.Errorf("%w: %d", ErrInvalidPriority, *upd.Priority)
		}
		if t.Status != api.StatusPending {
			return nil, fmt.Errorf("%w: %s", ErrTaskNotPending, id)
		}
	}

	if upd.Title != nil {
		t.Title = *upd.Title
	}
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	if upd.Metadata != nil {
		if t.Metadata == nil {
			t.Metadata = api.Metadata{}
		}
		maps.Copy(t.Metadata, upd.Metadata)
	}
	if upd.Priority != nil {
		t.Priority = *upd.Priority
		s.backlog.fix(e)
	}
	t.UpdatedAt = s.now()
	return t.Clone(), nil
}

// GetMetrics returns per-status and per-priority counts and the running
// average duration of completed tasks in milliseconds
func (s *Scheduler) GetMetrics() api.TaskMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := api.TaskMetrics{
		ByStatus:        map[api.Status]int{},
		ByPriority:      map[api.Priority]int{},
		Total:           len(s.entries),
		Active:          s.active,
		Pending:         s.backlog.Len(),
		AverageDuration: s.avgMs,
	}
	for _, e := range s.entries {
		res.ByStatus[e.task.Status]++
		res.ByPriority[e.task.Priority]++
	}
	return res
}

func (s *Scheduler) newTaskLocked(req *api.TaskRequest) (*api.Task, error) {
	if req == nil || req.Title == "" {
		return nil, ErrTitleRequired
	}
	prio := req.Priority
	if prio == 0 {
		prio = api.PriorityMedium
	}
	if prio < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPriority, prio)
	}

	now := s.now()
	t := &api.Task{
		ID:                api.TaskID(uuid.NewString()),
		Title:             req.Title,
		Description:       req.Description,
		Type:              req.Type,
		Executor:          req.Executor,
		Status:            api.StatusPending,
		Priority:          prio,
		Metadata:          maps.Clone(req.Metadata),
		EstimatedDuration: req.EstimatedDuration,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if t.Executor == "" && s.cfg.AutoAssign {
		t.Executor = s.autoAssignLocked(t)
	}

	s.seq++
	s.entries[t.ID] = &entry{task: t, seq: s.seq, index: -1}
	return t, nil
}

func (s *Scheduler) autoAssignLocked(t *api.Task) string {
	if _, ok := s.executors[t.Type]; ok && t.Type != "" {
		return t.Type
	}
	return s.cfg.DefaultExecutor
}

func (s *Scheduler) claimNext() *api.Task {
	s.mu.Lock()
	if s.active >= s.cfg.MaxConcurrent {
		s.mu.Unlock()
		return nil
	}
	e := s.backlog.next()
	if e == nil {
		s.mu.Unlock()
		return nil
	}
	t := s.startLocked(e)
	s.mu.Unlock()

	s.events.Raise(api.EventTaskStarted, eventSource, t)
	return t
}

func (s *Scheduler) startLocked(e *entry) *api.Task {
	now := s.now()
	e.task.Status = api.StatusInProgress
	e.task.StartedAt = now
	e.task.UpdatedAt = now
	s.active++
	return e.task.Clone()
}

func (s *Scheduler) run(ctx context.Context, t *api.Task) *api.TaskResult {
	ex := s.resolveExecutor(t)
	if ex == nil {
		return s.finish(t.ID, nil, fmt.Errorf("%w: %s", ErrNoExecutor, t.ID))
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{
					err: fmt.Errorf("%w: %v", ErrExecutorPanicked, r),
				}
			}
		}()
		out, err := ex.Execute(runCtx, t)
		done <- outcome{output: out, err: err}
	}()

	select {
	case o := <-done:
		return s.finish(t.ID, o.output, o.err)
	case <-runCtx.Done():
		err := runCtx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s: %s",
				ErrTaskTimeout, s.cfg.Timeout, t.ID)
		}
		return s.finish(t.ID, nil, err)
	}
}

func (s *Scheduler) resolveExecutor(t *api.Task) Executor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executorLocked(t.Executor, t.Type)
}

func (s *Scheduler) executorLocked(executor, typ string) Executor {
	for _, tag := range []string{executor, typ, s.cfg.DefaultExecutor} {
		if tag == "" {
			continue
		}
		if ex, ok := s.executors[tag]; ok {
			return ex
		}
	}
	return nil
}

func (s *Scheduler) finish(
	id api.TaskID, output any, err error,
) *api.TaskResult {
	s.mu.Lock()
	e := s.entries[id]
	t := e.task
	now := s.now()
	t.UpdatedAt = now
	t.CompletedAt = now
	t.ActualDuration = now.Sub(t.StartedAt).Milliseconds()
	s.active--

	res := &api.TaskResult{
		TaskID:   id,
		Duration: t.ActualDuration,
	}
	if err != nil {
		t.Status = api.StatusFailed
		t.Error = err.Error()
		res.Error = t.Error
	} else {
		t.Status = api.StatusCompleted
		t.Result = output
		res.Output = output
		s.finished++
		s.avgMs += (float64(t.ActualDuration) - s.avgMs) / float64(s.finished)
	}
	res.Status = t.Status
	snapshot := t.Clone()
	s.mu.Unlock()

	if err != nil {
		slog.Warn("Task failed", log.TaskID(id), log.Error(err))
		s.events.Raise(api.EventTaskFailed, eventSource, snapshot)
	} else {
		slog.Debug("Task completed", log.TaskID(id))
		s.events.Raise(api.EventTaskCompleted, eventSource, snapshot)
	}
	return res
}
