package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Collections named by change events.
const (
	CollectionLists = "lists"
	CollectionTasks = "tasks"
)

// ChangeEvent identifies the collection touched by a write. Task events carry
// the parent list id so task watches can ignore other lists' churn.
type ChangeEvent struct {
	Collection string `json:"collection"`
	ListID     string `json:"listId,omitempty"`
}

// Events publishes and consumes document change notifications over a Redis
// pub/sub channel. Watchers re-fetch the affected snapshot on every event.
type Events struct {
	redis   *redis.Client
	channel string
	logger  *log.Logger
}

// NewEvents creates an Events fabric on the given channel. A nil logger falls
// back to the standard logrus logger.
func NewEvents(client *redis.Client, channel string, logger *log.Logger) *Events {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Events{redis: client, channel: channel, logger: logger}
}

// Publish announces a change to all watchers.
func (e *Events) Publish(ctx context.Context, ev ChangeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return e.redis.Publish(ctx, e.channel, payload).Err()
}

// Watch subscribes to change events until ctx is done. The pub/sub connection
// is re-established after transient failures; the returned channel closes
// only on cancellation.
func (e *Events) Watch(ctx context.Context) <-chan ChangeEvent {
	out := make(chan ChangeEvent, 16)
	go func() {
		defer close(out)
		for {
			sub := e.redis.Subscribe(ctx, e.channel)
			ch := sub.Channel()
		recv:
			for {
				select {
				case <-ctx.Done():
					_ = sub.Close()
					return
				case msg, ok := <-ch:
					if !ok {
						break recv
					}
					var ev ChangeEvent
					if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
						e.logger.Errorf("unable to parse change event: %v", err)
						continue
					}
					select {
					case out <- ev:
					case <-ctx.Done():
						_ = sub.Close()
						return
					}
				}
			}
			_ = sub.Close()
			if ctx.Err() != nil {
				return
			}
			e.logger.Error("change channel closed, reconnecting")
			time.Sleep(time.Second)
		}
	}()
	return out
}
