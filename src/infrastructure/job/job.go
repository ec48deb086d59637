package job

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrJobNotFound is returned when no job exists for the given task ID.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobTerminal signals an attempt to finish a job that already reached
	// SUCCESS or FAILURE. A second terminal transition is a caller bug.
	ErrJobTerminal = errors.New("job already terminal")
)

// Status defines the lifecycle state of an ingest job.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusProgress Status = "PROGRESS"
	StatusSuccess  Status = "SUCCESS"
	StatusFailure  Status = "FAILURE"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// Result is the final payload of a terminal job.
type Result struct {
	Created int    `json:"created"`
	Updated int    `json:"updated"`
	Skipped int    `json:"skipped"`
	Total   int    `json:"total"`
	Summary string `json:"summary,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Job is one tracked ingest run. It is written by the worker that owns it
// and read concurrently by status pollers; Registry implementations must
// hand out consistent snapshots, never half-updated counters.
type Job struct {
	TaskID    string    `json:"task_id"`
	Status    Status    `json:"status"`
	Current   int       `json:"current"`
	Total     int       `json:"total"`
	Message   string    `json:"message,omitempty"`
	Result    *Result   `json:"result,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Registry owns the job table and its state machine:
// PENDING -> PROGRESS -> {SUCCESS, FAILURE}, with the direct
// PENDING -> terminal shortcut allowed for trivial inputs.
type Registry interface {
	// Create allocates a fresh task ID and inserts a PENDING job.
	Create(ctx context.Context) (string, error)
	// Advance updates progress counters, moving a PENDING job to PROGRESS.
	// Calls against a terminal job are logged and ignored.
	Advance(ctx context.Context, taskID string, current, total int, message string) error
	// Succeed transitions the job to SUCCESS exactly once and returns the
	// final snapshot. A repeat call returns ErrJobTerminal.
	Succeed(ctx context.Context, taskID string, result Result) (Job, error)
	// Fail transitions the job to FAILURE exactly once and returns the
	// final snapshot. A repeat call returns ErrJobTerminal.
	Fail(ctx context.Context, taskID string, cause string) (Job, error)
	// Get returns the current snapshot or ErrJobNotFound.
	Get(ctx context.Context, taskID string) (Job, error)
	// Prune removes terminal jobs whose last update is older than the
	// retention window and reports how many were dropped.
	Prune(ctx context.Context, retention time.Duration) (int, error)
}

func summaryMessage(result Result) string {
	return fmt.Sprintf("created=%d updated=%d skipped=%d", result.Created, result.Updated, result.Skipped)
}
