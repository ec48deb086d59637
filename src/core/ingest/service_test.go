package ingest_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"skuflow/src/core/ingest"
	"skuflow/src/infrastructure/job"
)

type memoryObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMemoryObjectStore() *memoryObjectStore {
	return &memoryObjectStore{objects: make(map[string][]byte)}
}

func (s *memoryObjectStore) PutObject(ctx context.Context, bucketName, objectName string, data []byte) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucketName+"/"+objectName] = data
	return nil
}

func (s *memoryObjectStore) GetObject(ctx context.Context, bucketName, objectName string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[bucketName+"/"+objectName]
	if !ok {
		return nil, fmt.Errorf("object %s/%s not found", bucketName, objectName)
	}
	return data, nil
}

func (s *memoryObjectStore) RemoveObject(ctx context.Context, bucketName, objectName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, bucketName+"/"+objectName)
	return nil
}

func (s *memoryObjectStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

type failingPublisher struct{}

func (failingPublisher) Publish(topic string, messages ...*message.Message) error {
	return errors.New("broker unavailable")
}

func (failingPublisher) Close() error { return nil }

func newTestService(staging ingest.ObjectStore, registry job.Registry, pub message.Publisher) *ingest.Service {
	worker := ingest.NewWorker(newMemoryStore(), registry, nil, 0)
	return ingest.NewService(staging, "uploads", registry, pub, worker)
}

func TestEnqueueUploadStagesAndPublishes(t *testing.T) {
	ctx := context.Background()
	staging := newMemoryObjectStore()
	registry := job.NewMemoryRegistry()
	pub := &capturePublisher{}
	svc := newTestService(staging, registry, pub)

	content := []byte("sku,name\nABC-1,Widget\n")
	taskID, err := svc.EnqueueUpload(ctx, "products.csv", content)
	if err != nil {
		t.Fatalf("EnqueueUpload() error = %v", err)
	}

	snap, err := registry.Get(ctx, taskID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if snap.Status != job.StatusPending {
		t.Errorf("status = %v, want %v", snap.Status, job.StatusPending)
	}

	if pub.count() != 1 {
		t.Fatalf("published %d messages, want 1", pub.count())
	}
	if pub.topics[0] != ingest.TopicUploadJobs {
		t.Errorf("topic = %q, want %q", pub.topics[0], ingest.TopicUploadJobs)
	}

	var m ingest.UploadMessage
	if err := json.Unmarshal(pub.messages[0].Payload, &m); err != nil {
		t.Fatalf("payload unmarshal error = %v", err)
	}
	if m.TaskID != taskID {
		t.Errorf("message task_id = %q, want %q", m.TaskID, taskID)
	}
	if m.Filename != "products.csv" {
		t.Errorf("message filename = %q, want %q", m.Filename, "products.csv")
	}

	staged, err := staging.GetObject(ctx, "uploads", m.ObjectKey)
	if err != nil {
		t.Fatalf("GetObject() error = %v", err)
	}
	if string(staged) != string(content) {
		t.Error("staged object differs from uploaded content")
	}
}

func TestEnqueueUploadRejectsUnsupportedExtension(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		wantErr  bool
	}{
		{name: "csv", filename: "products.csv", wantErr: false},
		{name: "xlsx", filename: "products.xlsx", wantErr: false},
		{name: "uppercase extension", filename: "PRODUCTS.CSV", wantErr: false},
		{name: "text file", filename: "products.txt", wantErr: true},
		{name: "no extension", filename: "products", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(newMemoryObjectStore(), job.NewMemoryRegistry(), &capturePublisher{})
			_, err := svc.EnqueueUpload(context.Background(), tt.filename, []byte("sku,name\n"))

			if tt.wantErr {
				if !errors.Is(err, ingest.ErrUnsupportedFormat) {
					t.Errorf("EnqueueUpload() error = %v, want %v", err, ingest.ErrUnsupportedFormat)
				}
				return
			}
			if err != nil {
				t.Errorf("EnqueueUpload() error = %v", err)
			}
		})
	}
}

func TestEnqueueUploadPublishFailure(t *testing.T) {
	ctx := context.Background()
	registry := job.NewMemoryRegistry()
	svc := newTestService(newMemoryObjectStore(), registry, failingPublisher{})

	_, err := svc.EnqueueUpload(ctx, "products.csv", []byte("sku,name\n"))
	if err == nil {
		t.Fatal("EnqueueUpload() error = nil, want publish failure")
	}
}

func TestProcessUploadMessageRunsJob(t *testing.T) {
	ctx := context.Background()
	staging := newMemoryObjectStore()
	registry := job.NewMemoryRegistry()
	pub := &capturePublisher{}
	svc := newTestService(staging, registry, pub)

	taskID, err := svc.EnqueueUpload(ctx, "products.csv", []byte("sku,name\nABC-1,Widget\n"))
	if err != nil {
		t.Fatalf("EnqueueUpload() error = %v", err)
	}

	if err := svc.ProcessUploadMessage(pub.messages[0]); err != nil {
		t.Fatalf("ProcessUploadMessage() error = %v", err)
	}

	final, err := registry.Get(ctx, taskID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if final.Status != job.StatusSuccess {
		t.Errorf("status = %v, want %v", final.Status, job.StatusSuccess)
	}
	if final.Result.Created != 1 {
		t.Errorf("created = %d, want 1", final.Result.Created)
	}
	if staging.size() != 0 {
		t.Errorf("staged objects after processing = %d, want 0", staging.size())
	}
}

func TestProcessUploadMessageDropsUnknownJob(t *testing.T) {
	svc := newTestService(newMemoryObjectStore(), job.NewMemoryRegistry(), &capturePublisher{})

	payload, _ := json.Marshal(ingest.UploadMessage{
		TaskID:    "gone",
		ObjectKey: "gone.csv",
		Filename:  "gone.csv",
	})
	msg := message.NewMessage(watermill.NewUUID(), payload)

	if err := svc.ProcessUploadMessage(msg); err != nil {
		t.Errorf("ProcessUploadMessage() error = %v, want nil drop", err)
	}
}

func TestProcessUploadMessageMissingObjectFailsJob(t *testing.T) {
	ctx := context.Background()
	registry := job.NewMemoryRegistry()
	svc := newTestService(newMemoryObjectStore(), registry, &capturePublisher{})

	taskID, err := registry.Create(ctx)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	payload, _ := json.Marshal(ingest.UploadMessage{
		TaskID:    taskID,
		ObjectKey: "never-staged.csv",
		Filename:  "products.csv",
	})
	msg := message.NewMessage(watermill.NewUUID(), payload)

	if err := svc.ProcessUploadMessage(msg); err != nil {
		t.Fatalf("ProcessUploadMessage() error = %v", err)
	}

	final, _ := registry.Get(ctx, taskID)
	if final.Status != job.StatusFailure {
		t.Errorf("status = %v, want %v", final.Status, job.StatusFailure)
	}
}

func TestProcessUploadMessageMalformedPayload(t *testing.T) {
	svc := newTestService(newMemoryObjectStore(), job.NewMemoryRegistry(), &capturePublisher{})

	msg := message.NewMessage(watermill.NewUUID(), []byte("not json"))
	if err := svc.ProcessUploadMessage(msg); err == nil {
		t.Error("ProcessUploadMessage() error = nil, want unmarshal failure")
	}
}
