package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"skuflow/src/infrastructure/job"
	"skuflow/src/log"
)

// TopicUploadJobs carries one message per accepted upload.
const TopicUploadJobs = "upload_jobs"

// ObjectStore stages raw uploads between the intake request and the worker
// that processes them, which may live in another process.
type ObjectStore interface {
	PutObject(ctx context.Context, bucketName, objectName string, data []byte) error
	GetObject(ctx context.Context, bucketName, objectName string) ([]byte, error)
	RemoveObject(ctx context.Context, bucketName, objectName string) error
}

// UploadMessage is the queue payload linking a job to its staged object.
type UploadMessage struct {
	TaskID    string `json:"task_id"`
	ObjectKey string `json:"object_key"`
	Filename  string `json:"filename"`
}

// Service is the intake side of the pipeline: it stages the upload, creates
// the job record, and hands the work to the bus.
type Service struct {
	staging   ObjectStore
	bucket    string
	jobs      job.Registry
	publisher message.Publisher
	worker    *Worker
}

func NewService(staging ObjectStore, bucket string, jobs job.Registry, publisher message.Publisher, worker *Worker) *Service {
	return &Service{
		staging:   staging,
		bucket:    bucket,
		jobs:      jobs,
		publisher: publisher,
		worker:    worker,
	}
}

// EnqueueUpload accepts the raw upload, stages it, and schedules processing.
// It returns the task ID the client polls for status.
func (s *Service) EnqueueUpload(ctx context.Context, filename string, content []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".csv" && ext != ".xlsx" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	objectKey := uuid.New().String() + ext
	if err := s.staging.PutObject(ctx, s.bucket, objectKey, content); err != nil {
		return "", fmt.Errorf("failed to stage upload: %w", err)
	}

	taskID, err := s.jobs.Create(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}

	payload, err := json.Marshal(UploadMessage{
		TaskID:    taskID,
		ObjectKey: objectKey,
		Filename:  filename,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal upload message: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := s.publisher.Publish(TopicUploadJobs, msg); err != nil {
		// The job would otherwise sit in PENDING forever. This terminal
		// transition fires no upload_completed event: the event would ride
		// the same publisher that just failed.
		if _, failErr := s.jobs.Fail(ctx, taskID, "failed to queue upload for processing"); failErr != nil {
			log.Error(failErr, "failed to fail unqueued job", "task_id", taskID)
		}
		return "", fmt.Errorf("failed to publish upload message: %w", err)
	}

	log.Info("upload accepted", "task_id", taskID, "filename", filename, "object_key", objectKey)
	return taskID, nil
}

// ProcessUploadMessage consumes one upload message off the bus and runs the
// worker for it.
func (s *Service) ProcessUploadMessage(msg *message.Message) error {
	var m UploadMessage
	if err := json.Unmarshal(msg.Payload, &m); err != nil {
		return fmt.Errorf("failed to unmarshal upload message: %w", err)
	}

	ctx := context.Background()

	snap, err := s.jobs.Get(ctx, m.TaskID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			// Stale message for a pruned or foreign job; nothing to update.
			log.Info("dropping upload message for unknown job", "task_id", m.TaskID)
			return nil
		}
		return fmt.Errorf("failed to load job %s: %w", m.TaskID, err)
	}
	if snap.Status.Terminal() {
		return nil
	}

	data, err := s.staging.GetObject(ctx, s.bucket, m.ObjectKey)
	if err != nil {
		return s.worker.Fail(ctx, m.TaskID, fmt.Errorf("upload content unreadable: %w", err))
	}

	if err := s.worker.Run(ctx, m.TaskID, m.Filename, data); err != nil {
		return err
	}

	// The job is terminal; the staged copy has no further reader.
	if err := s.staging.RemoveObject(ctx, s.bucket, m.ObjectKey); err != nil {
		log.Error(err, "failed to remove staged upload", "task_id", m.TaskID, "object_key", m.ObjectKey)
	}
	return nil
}
