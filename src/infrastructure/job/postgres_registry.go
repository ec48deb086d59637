package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"skuflow/src/log"
)

// jobRecord is the database row backing a Job. The result payload is stored
// as JSON so terminal summaries survive a restart.
type jobRecord struct {
	TaskID    string          `gorm:"primaryKey;column:task_id"`
	Status    Status          `gorm:"not null;index"`
	Current   int             `gorm:"not null"`
	Total     int             `gorm:"not null"`
	Message   string
	Result    json.RawMessage `gorm:"type:jsonb"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (jobRecord) TableName() string {
	return "ingest_jobs"
}

// PostgresRegistry is the durable Registry used when the HTTP server and the
// ingest worker run as separate processes sharing one database. Transition
// guards live in the WHERE clause so concurrent writers cannot regress a
// terminal job.
type PostgresRegistry struct {
	db *gorm.DB
}

func NewPostgresRegistry(db *gorm.DB) (*PostgresRegistry, error) {
	if err := db.AutoMigrate(&jobRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate ingest_jobs: %w", err)
	}
	return &PostgresRegistry{db: db}, nil
}

func (r *PostgresRegistry) Create(ctx context.Context) (string, error) {
	rec := jobRecord{
		TaskID: uuid.New().String(),
		Status: StatusPending,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}
	return rec.TaskID, nil
}

func (r *PostgresRegistry) Advance(ctx context.Context, taskID string, current, total int, message string) error {
	result := r.db.WithContext(ctx).Model(&jobRecord{}).
		Where("task_id = ? AND status IN ?", taskID, []Status{StatusPending, StatusProgress}).
		Where("current <= ?", current).
		Updates(map[string]interface{}{
			"status":  StatusProgress,
			"current": current,
			"total":   total,
			"message": message,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to advance job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		snap, err := r.Get(ctx, taskID)
		if err != nil {
			return err
		}
		if snap.Status.Terminal() {
			log.Info("ignoring progress update for terminal job", "task_id", taskID, "status", snap.Status)
		}
		return nil
	}
	return nil
}

func (r *PostgresRegistry) Succeed(ctx context.Context, taskID string, result Result) (Job, error) {
	return r.finish(ctx, taskID, StatusSuccess, result, summaryMessage(result))
}

func (r *PostgresRegistry) Fail(ctx context.Context, taskID string, cause string) (Job, error) {
	return r.finish(ctx, taskID, StatusFailure, Result{Error: cause}, cause)
}

func (r *PostgresRegistry) finish(ctx context.Context, taskID string, status Status, result Result, message string) (Job, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return Job{}, fmt.Errorf("failed to marshal job result: %w", err)
	}

	update := r.db.WithContext(ctx).Model(&jobRecord{}).
		Where("task_id = ? AND status IN ?", taskID, []Status{StatusPending, StatusProgress}).
		Updates(map[string]interface{}{
			"status":  status,
			"current": result.Total,
			"total":   result.Total,
			"message": message,
			"result":  payload,
		})
	if update.Error != nil {
		return Job{}, fmt.Errorf("failed to finish job: %w", update.Error)
	}
	if update.RowsAffected == 0 {
		snap, err := r.Get(ctx, taskID)
		if err != nil {
			return Job{}, err
		}
		if snap.Status.Terminal() {
			return Job{}, ErrJobTerminal
		}
		return Job{}, fmt.Errorf("failed to finish job %s in status %s", taskID, snap.Status)
	}

	return r.Get(ctx, taskID)
}

func (r *PostgresRegistry) Get(ctx context.Context, taskID string) (Job, error) {
	var rec jobRecord
	if err := r.db.WithContext(ctx).First(&rec, "task_id = ?", taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Job{}, ErrJobNotFound
		}
		return Job{}, fmt.Errorf("failed to get job: %w", err)
	}

	j := Job{
		TaskID:    rec.TaskID,
		Status:    rec.Status,
		Current:   rec.Current,
		Total:     rec.Total,
		Message:   rec.Message,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	if len(rec.Result) > 0 {
		var res Result
		if err := json.Unmarshal(rec.Result, &res); err != nil {
			return Job{}, fmt.Errorf("failed to unmarshal job result: %w", err)
		}
		j.Result = &res
	}
	return j, nil
}

func (r *PostgresRegistry) Prune(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := time.Now().Add(-retention)
	result := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []Status{StatusSuccess, StatusFailure}, cutoff).
		Delete(&jobRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune jobs: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}
