package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"skuflow/src/core/catalog"
	"skuflow/src/core/webhook"
	"skuflow/src/infrastructure/job"
	"skuflow/src/log"
)

// TopicUploadEvents carries one message per terminal job transition. The
// webhook dispatcher subscribes to it.
const TopicUploadEvents = "upload_events"

// DefaultProgressInterval is the row cadence of registry progress updates.
const DefaultProgressInterval = 100

// Worker turns one staged upload into catalog mutations plus a running
// progress record. Row-level errors are absorbed into the skip count; only
// an unreadable stream or a broken header aborts the job.
type Worker struct {
	catalog       catalog.Store
	jobs          job.Registry
	events        message.Publisher
	progressEvery int

	// OnProgress, when set, is invoked after every consumed row. Used by the
	// import command to drive its progress bar.
	OnProgress func(current, total int)
}

func NewWorker(store catalog.Store, jobs job.Registry, events message.Publisher, progressEvery int) *Worker {
	if progressEvery <= 0 {
		progressEvery = DefaultProgressInterval
	}
	return &Worker{
		catalog:       store,
		jobs:          jobs,
		events:        events,
		progressEvery: progressEvery,
	}
}

// Run processes the uploaded content for the given job. It never returns a
// row-level error: user-visible failure is always reported through the job's
// terminal state.
func (w *Worker) Run(ctx context.Context, taskID, filename string, data []byte) error {
	snap, err := w.jobs.Get(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", taskID, err)
	}
	if snap.Status.Terminal() {
		// Redelivered message for a finished job; re-processing would be
		// harmless but pointless.
		log.Info("skipping already-finished job", "task_id", taskID, "status", snap.Status)
		return nil
	}

	tbl, err := parseTable(filename, data)
	if err != nil {
		return w.Fail(ctx, taskID, err)
	}

	total := len(tbl.rows)
	result := job.Result{Total: total}
	current := 0

	for _, row := range tbl.rows {
		product, rowErr := tbl.parseRow(row)
		if rowErr != nil {
			log.Debug("skipping malformed row", "task_id", taskID, "row", current+1, "reason", rowErr.Error())
			result.Skipped++
		} else {
			created, upsertErr := w.catalog.Upsert(ctx, product)
			switch {
			case upsertErr != nil:
				log.Error(upsertErr, "row upsert failed", "task_id", taskID, "sku", product.SKU)
				result.Skipped++
			case created:
				result.Created++
			default:
				result.Updated++
			}
		}

		// The row's mutation has settled one way or the other; only now does
		// it earn progress credit.
		current++
		if w.OnProgress != nil {
			w.OnProgress(current, total)
		}
		if current%w.progressEvery == 0 && current < total {
			if err := w.jobs.Advance(ctx, taskID, current, total, "Processing..."); err != nil {
				log.Error(err, "failed to record progress", "task_id", taskID)
			}
		}
	}

	result.Summary = fmt.Sprintf("Processed %d rows: created=%d updated=%d skipped=%d",
		total, result.Created, result.Updated, result.Skipped)

	final, err := w.jobs.Succeed(ctx, taskID, result)
	if err != nil {
		if errors.Is(err, job.ErrJobTerminal) {
			log.Info("job finished concurrently, dropping duplicate completion", "task_id", taskID)
			return nil
		}
		return fmt.Errorf("failed to complete job %s: %w", taskID, err)
	}

	w.publishTerminal(final)
	return nil
}

// Fail moves the job to FAILURE with the given cause and fires the terminal
// notification.
func (w *Worker) Fail(ctx context.Context, taskID string, cause error) error {
	final, err := w.jobs.Fail(ctx, taskID, cause.Error())
	if err != nil {
		if errors.Is(err, job.ErrJobTerminal) {
			return nil
		}
		return fmt.Errorf("failed to fail job %s: %w", taskID, err)
	}
	log.Info("upload job failed", "task_id", taskID, "cause", cause.Error())
	w.publishTerminal(final)
	return nil
}

// publishTerminal emits exactly one event per terminal transition: callers
// only reach it through the first successful Succeed or Fail.
func (w *Worker) publishTerminal(final job.Job) {
	if w.events == nil {
		return
	}

	payload, err := json.Marshal(webhook.NewUploadCompletedEvent(final))
	if err != nil {
		log.Error(err, "failed to marshal terminal event", "task_id", final.TaskID)
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := w.events.Publish(TopicUploadEvents, msg); err != nil {
		log.Error(err, "failed to publish terminal event", "task_id", final.TaskID)
	}
}
