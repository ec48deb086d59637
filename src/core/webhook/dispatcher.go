package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"skuflow/src/log"
)

// Config carries the delivery tuning knobs. All of them are injectable so
// tests can run with tight timeouts.
type Config struct {
	// Timeout bounds a single delivery attempt.
	Timeout time.Duration
	// MaxAttempts is the ceiling across retries for one subscriber.
	MaxAttempts int
	// Backoff is the wait after the first failed attempt; it doubles on
	// every further failure.
	Backoff time.Duration
}

// DefaultConfig mirrors the production defaults: 5s per attempt, three
// attempts, one second initial backoff.
func DefaultConfig() Config {
	return Config{
		Timeout:     5 * time.Second,
		MaxAttempts: 3,
		Backoff:     time.Second,
	}
}

// Dispatcher delivers terminal-job notifications to every active subscriber
// of the event type. Deliveries are independent per subscriber: one dead
// endpoint never blocks or fails the others, and no delivery outcome ever
// propagates back to the ingest job.
type Dispatcher struct {
	registry Registry
	client   *http.Client
	cfg      Config

	// recorded receives every delivery outcome when set; used by tests and
	// available for future durable attempt bookkeeping.
	recorded func(DeliveryAttempt)
}

func NewDispatcher(registry Registry, cfg Config) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultConfig().Backoff
	}
	return &Dispatcher{
		registry: registry,
		client:   &http.Client{Timeout: cfg.Timeout},
		cfg:      cfg,
	}
}

// OnDelivery registers a callback invoked with the final outcome of every
// delivery attempt.
func (d *Dispatcher) OnDelivery(fn func(DeliveryAttempt)) {
	d.recorded = fn
}

// HandleMessage adapts the dispatcher to a watermill handler consuming
// terminal-job events off the bus.
func (d *Dispatcher) HandleMessage(msg *message.Message) error {
	var event Event
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return fmt.Errorf("failed to unmarshal event message: %w", err)
	}
	return d.Dispatch(context.Background(), event)
}

// Dispatch sends the event to every active subscription of its type and
// waits for all deliveries to settle. It returns an error only when the
// subscriber list cannot be read; individual delivery failures are recorded
// and dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	subs, err := d.registry.ListActive(ctx, event.Event)
	if err != nil {
		return fmt.Errorf("failed to list active subscriptions: %w", err)
	}
	if len(subs) == 0 {
		log.Debug("no active subscribers for event", "event", event.Event, "task_id", event.TaskID)
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(sub Subscription) {
			defer wg.Done()
			d.deliver(ctx, sub, event, body)
		}(sub)
	}
	wg.Wait()
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, sub Subscription, event Event, body []byte) {
	backoff := d.cfg.Backoff

	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		statusCode, err := d.post(ctx, sub.URL, body)
		outcome := DeliveryAttempt{
			SubscriptionID: sub.ID,
			URL:            sub.URL,
			Attempt:        attempt,
			StatusCode:     statusCode,
			Err:            err,
			At:             time.Now(),
		}
		if d.recorded != nil {
			d.recorded(outcome)
		}

		if err == nil {
			log.Debug("webhook delivered",
				"subscription_id", sub.ID, "task_id", event.TaskID, "attempt", attempt)
			return
		}

		log.Info("webhook delivery attempt failed",
			"subscription_id", sub.ID, "url", sub.URL, "attempt", attempt, "error", err.Error())

		if attempt == d.cfg.MaxAttempts {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff *= 2
	}

	log.Error(fmt.Errorf("delivery exhausted after %d attempts", d.cfg.MaxAttempts),
		"giving up on webhook delivery",
		"subscription_id", sub.ID, "url", sub.URL, "task_id", event.TaskID)
}

func (d *Dispatcher) post(ctx context.Context, url string, body []byte) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}
