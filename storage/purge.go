package storage

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"
)

type purgeJob struct {
	ListID string `json:"listId"`
}

// PurgeWorker drains the purge queue, deleting the orphaned task partition of
// each removed list. Deleting a list only removes its document; the task rows
// stay behind until this worker gets to them.
type PurgeWorker struct {
	store  *Storage
	logger *log.Logger
}

// NewPurgeWorker creates a worker over the storage layer's purge queue.
func NewPurgeWorker(store *Storage, logger *log.Logger) *PurgeWorker {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &PurgeWorker{store: store, logger: logger}
}

// Run polls the queue until the context is cancelled. A job that fails stays
// on the queue and reappears after its visibility timeout.
func (w *PurgeWorker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		resp, err := w.store.purgeQueue.DequeueMessage(ctx, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Errorf("purge dequeue: %v", err)
			sleep(ctx, time.Second)
			continue
		}
		if len(resp.Messages) == 0 {
			sleep(ctx, time.Second)
			continue
		}
		msg := resp.Messages[0]
		if msg.MessageText == nil || msg.MessageID == nil || msg.PopReceipt == nil {
			continue
		}
		var job purgeJob
		if err := json.Unmarshal([]byte(*msg.MessageText), &job); err != nil {
			w.logger.Errorf("purge job decode: %v", err)
			w.store.purgeQueue.DeleteMessage(ctx, *msg.MessageID, *msg.PopReceipt, nil)
			continue
		}
		if err := w.store.purgeTasks(ctx, job.ListID); err != nil {
			w.logger.WithField("list_id", job.ListID).Errorf("purge tasks: %v", err)
			continue
		}
		if _, err := w.store.purgeQueue.DeleteMessage(ctx, *msg.MessageID, *msg.PopReceipt, nil); err != nil {
			w.logger.Errorf("purge ack: %v", err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
