package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/huddlehq/huddle/internal/metrics"
	"github.com/huddlehq/huddle/internal/store"
)

// Sender drains the outbox and delivers each entry to the configured webhook
// endpoint as a JSON POST.
type Sender struct {
	db      *store.DB
	url     string
	client  *http.Client
	logger  *zap.Logger
	metrics *metrics.Metrics
	cancel  context.CancelFunc
}

// NewSender creates a webhook sender. url is the delivery endpoint.
func NewSender(db *store.DB, url string, logger *zap.Logger, m *metrics.Metrics) *Sender {
	return &Sender{
		db:      db,
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
		metrics: m,
	}
}

// Start begins polling the outbox for pending entries.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Stop stops the sender loop.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Sender) loop(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) processPending(ctx context.Context) {
	pending, err := s.db.PendingOutbox()
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		if err := s.db.MarkOutboxSending(entry.ID); err != nil {
			s.logger.Error("failed to mark sending", zap.Error(err), zap.Int64("outbox_id", entry.ID))
			continue
		}

		if err := s.deliver(ctx, entry); err != nil {
			s.logger.Error("webhook delivery failed",
				zap.Error(err),
				zap.Int64("outbox_id", entry.ID),
				zap.String("kind", entry.Kind))
			_ = s.db.MarkOutboxFailed(entry.ID, err.Error())
			if s.metrics != nil {
				s.metrics.WebhookDeliveries.WithLabelValues("failed").Inc()
			}
			continue
		}

		if err := s.db.MarkOutboxSent(entry.ID); err != nil {
			s.logger.Error("failed to mark sent", zap.Error(err), zap.Int64("outbox_id", entry.ID))
		}
		if s.metrics != nil {
			s.metrics.WebhookDeliveries.WithLabelValues("sent").Inc()
		}
		s.logger.Debug("webhook delivered",
			zap.Int64("outbox_id", entry.ID),
			zap.String("kind", entry.Kind))
	}
}

func (s *Sender) deliver(ctx context.Context, entry store.OutboxEntry) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader([]byte(entry.Payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Huddle-Event", entry.Kind)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DeliveryError{Status: resp.StatusCode}
	}
	return nil
}

// DeliveryError reports a non-2xx webhook response.
type DeliveryError struct {
	Status int
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("webhook returned status %d", e.Status)
}
