package webhook

import (
	"context"
	"errors"
	"time"

	"skuflow/src/infrastructure/job"
)

// EventTypeUploadCompleted is fired when an ingest job reaches a terminal
// state. It is currently the only event type subscribers can register for.
const EventTypeUploadCompleted = "upload_completed"

var (
	// ErrNotFound is returned when no subscription exists for the given ID.
	ErrNotFound = errors.New("webhook not found")
	// ErrUnknownEventType is returned when registering an unsupported event type.
	ErrUnknownEventType = errors.New("unknown event type")
)

// KnownEventType reports whether the event type belongs to the closed set of
// supported events.
func KnownEventType(eventType string) bool {
	return eventType == EventTypeUploadCompleted
}

// Subscription is a registered notification endpoint. Disabled subscriptions
// (IsActive false) are never dispatched to.
type Subscription struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	URL       string    `gorm:"not null" json:"url"`
	EventType string    `gorm:"not null;column:event_type;index" json:"event_type"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Registry stores webhook subscriptions. Its CRUD surface is owned by the
// HTTP layer; the dispatcher only reads active subscriptions.
type Registry interface {
	Create(ctx context.Context, sub *Subscription) error
	Update(ctx context.Context, id int64, sub Subscription) (*Subscription, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]Subscription, error)
	ListActive(ctx context.Context, eventType string) ([]Subscription, error)
}

// Event is the outbound notification payload. The task ID lets subscribers
// deduplicate: delivery is at-least-once, never exactly-once.
type Event struct {
	Event     string     `json:"event"`
	TaskID    string     `json:"task_id"`
	Status    job.Status `json:"status"`
	Result    job.Result `json:"result"`
	Timestamp time.Time  `json:"timestamp"`
}

// NewUploadCompletedEvent builds the notification payload for a terminal job.
func NewUploadCompletedEvent(j job.Job) Event {
	event := Event{
		Event:     EventTypeUploadCompleted,
		TaskID:    j.TaskID,
		Status:    j.Status,
		Timestamp: time.Now(),
	}
	if j.Result != nil {
		event.Result = *j.Result
	}
	return event
}

// DeliveryAttempt records the outcome of one notification send.
type DeliveryAttempt struct {
	SubscriptionID int64
	URL            string
	Attempt        int
	StatusCode     int
	Err            error
	At             time.Time
}
