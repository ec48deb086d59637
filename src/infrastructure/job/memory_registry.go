package job

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"skuflow/src/log"
)

// MemoryRegistry keeps jobs in process memory. It is the registry used by the
// single-process server; reads never wait on a running worker beyond the brief
// critical section of a snapshot copy.
type MemoryRegistry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		jobs: make(map[string]*Job),
	}
}

func (r *MemoryRegistry) Create(ctx context.Context) (string, error) {
	taskID := uuid.New().String()
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[taskID] = &Job{
		TaskID:    taskID,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return taskID, nil
}

func (r *MemoryRegistry) Advance(ctx context.Context, taskID string, current, total int, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[taskID]
	if !ok {
		return ErrJobNotFound
	}
	if j.Status.Terminal() {
		log.Info("ignoring progress update for terminal job", "task_id", taskID, "status", j.Status)
		return nil
	}

	j.Status = StatusProgress
	if current > j.Current {
		j.Current = current
	}
	j.Total = total
	j.Message = message
	j.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryRegistry) Succeed(ctx context.Context, taskID string, result Result) (Job, error) {
	return r.finish(taskID, StatusSuccess, result, summaryMessage(result))
}

func (r *MemoryRegistry) Fail(ctx context.Context, taskID string, cause string) (Job, error) {
	return r.finish(taskID, StatusFailure, Result{Error: cause}, cause)
}

func (r *MemoryRegistry) finish(taskID string, status Status, result Result, message string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[taskID]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	if j.Status.Terminal() {
		return Job{}, ErrJobTerminal
	}

	j.Status = status
	j.Current = result.Total
	j.Total = result.Total
	j.Message = message
	res := result
	j.Result = &res
	j.UpdatedAt = time.Now()
	return snapshot(j), nil
}

func (r *MemoryRegistry) Get(ctx context.Context, taskID string) (Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	j, ok := r.jobs[taskID]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return snapshot(j), nil
}

func (r *MemoryRegistry) Prune(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := time.Now().Add(-retention)

	r.mu.Lock()
	defer r.mu.Unlock()

	pruned := 0
	for taskID, j := range r.jobs {
		if j.Status.Terminal() && j.UpdatedAt.Before(cutoff) {
			delete(r.jobs, taskID)
			pruned++
		}
	}
	return pruned, nil
}

// snapshot copies the job so pollers never observe a torn update.
func snapshot(j *Job) Job {
	out := *j
	if j.Result != nil {
		res := *j.Result
		out.Result = &res
	}
	return out
}
