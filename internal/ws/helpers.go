package ws

import (
	"context"
	"time"

	"github.com/google/uuid"

	"chat-engine/internal/observability"
)

func newConnID() string {
	return uuid.NewString()
}

// publishWSEvent counts a session lifecycle event and forwards it to the event bus.
func publishWSEvent(ctx context.Context, info ConnInfo, event, reason string) {
	observability.IncWSEvent(event)
	var duration int64
	if event != "ws_connect" {
		duration = time.Since(info.ConnectedAt).Milliseconds()
	}
	_ = observability.PublishEvent(ctx, observability.RouteWSEvents, observability.NewEnvelope("ws_events", event, map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        "direct",
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": duration,
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"account_id": info.AccountID,
			"device_id":  info.DeviceID,
			"ip":         info.IP,
		},
	}), observability.BuildHeaders(info.RequestID, info.TraceID))
}
