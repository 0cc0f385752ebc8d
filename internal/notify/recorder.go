package notify

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/huddlehq/huddle/internal/bus"
	"github.com/huddlehq/huddle/internal/store"
)

// Recorder listens for message and conversation events and queues each one in
// the outbox for webhook delivery. Queueing is durable: a delivery that fails
// or a daemon restart never loses an event.
type Recorder struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// envelope is the serialized outbox payload shipped to the webhook endpoint.
type envelope struct {
	Kind       string          `json:"kind"`
	OccurredAt int64           `json:"occurred_at_unix_ms"`
	Payload    json.RawMessage `json:"payload"`
}

func NewRecorder(db *store.DB, b *bus.Bus, logger *zap.Logger) *Recorder {
	return &Recorder{db: db, bus: b, logger: logger}
}

// Start begins recording events into the outbox.
func (r *Recorder) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	msgCh, msgUnsub := r.bus.Subscribe("message.", 256)
	convCh, convUnsub := r.bus.Subscribe("conversation.", 256)
	go func() {
		defer msgUnsub()
		defer convUnsub()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-msgCh:
				r.record(evt)
			case evt := <-convCh:
				r.record(evt)
			}
		}
	}()
}

// Stop stops the recorder.
func (r *Recorder) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Recorder) record(evt bus.Event) {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		r.logger.Error("failed to marshal event payload", zap.Error(err), zap.String("kind", evt.Kind))
		return
	}
	body, err := json.Marshal(envelope{
		Kind:       evt.Kind,
		OccurredAt: evt.Timestamp.UnixMilli(),
		Payload:    payload,
	})
	if err != nil {
		r.logger.Error("failed to marshal envelope", zap.Error(err), zap.String("kind", evt.Kind))
		return
	}
	if err := r.db.QueueOutbox(evt.Kind, string(body)); err != nil {
		r.logger.Error("failed to queue outbox entry", zap.Error(err), zap.String("kind", evt.Kind))
	}
}
