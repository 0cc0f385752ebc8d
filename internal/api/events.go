package api

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// eventEnvelope is one frame on the /v1/events stream.
type eventEnvelope struct {
	EventID    string `json:"event_id"`
	Kind       string `json:"kind"`
	OccurredAt int64  `json:"occurred_at_unix_ms"`
	Payload    any    `json:"payload"`
}

// streamEvents upgrades to a WebSocket and forwards bus events whose kind
// matches the optional ?prefix= filter. The subscription is torn down when
// the client goes away.
func (h *Handlers) streamEvents(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// The stream is write-only. CloseRead watches the socket so a client
	// disconnect cancels ctx even while the subscribed prefix is idle.
	ctx := conn.CloseRead(r.Context())

	ch, unsub := h.bus.Subscribe(prefix, 256)
	defer unsub()

	h.log.Debug("event stream opened",
		zap.String("user_id", userID(r)),
		zap.String("prefix", prefix))

	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-ch:
			env := eventEnvelope{
				EventID:    uuid.NewString(),
				Kind:       evt.Kind,
				OccurredAt: evt.Timestamp.UnixMilli(),
				Payload:    evt.Payload,
			}
			if err := wsjson.Write(ctx, conn, env); err != nil {
				h.log.Debug("event stream closed", zap.Error(err))
				return
			}
		}
	}
}
