package realtime

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"mindmap/domain/events"
)

// Dispatcher routes raw inbound frames to presence or the relay. It is the
// single entry point shared by the websocket server and the Lambda handler.
type Dispatcher struct {
	presence *Presence
	relay    *Relay
	metrics  Metrics
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher
func NewDispatcher(presence *Presence, relay *Relay, metrics Metrics, logger *zap.Logger) *Dispatcher {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Dispatcher{
		presence: presence,
		relay:    relay,
		metrics:  metrics,
		logger:   logger,
	}
}

// HandleFrame processes one frame from connectionID. Malformed and unknown
// frames are logged and ignored; the connection stays open. The returned
// error reports registry or delivery failures only, and has been logged.
func (d *Dispatcher) HandleFrame(ctx context.Context, connectionID string, data []byte) error {
	logger := d.logger.With(zap.String("connectionID", connectionID))

	var in events.Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		d.metrics.FrameRejected("malformed")
		logger.Warn("Ignoring malformed frame", zap.Error(err))
		return nil
	}

	if in.Type == events.JoinRoom {
		var p events.JoinRoomPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil || p.RoomID == "" {
			d.metrics.FrameRejected("invalid_join")
			logger.Warn("Ignoring join without room id", zap.Error(err))
			return nil
		}
		if err := d.presence.Join(ctx, connectionID, p.RoomID, p.UserInfo); err != nil {
			logger.Error("Join failed", zap.String("roomID", p.RoomID), zap.Error(err))
			return err
		}
		return nil
	}

	if err := d.relay.Relay(ctx, connectionID, in); err != nil {
		if errors.Is(err, ErrUnknownEvent) {
			d.metrics.FrameRejected("unknown_type")
			logger.Warn("Ignoring unknown event", zap.String("eventType", in.Type))
			return nil
		}
		logger.Error("Relay failed", zap.String("eventType", in.Type), zap.Error(err))
		return err
	}
	return nil
}

// Disconnect handles a closed or failed connection
func (d *Dispatcher) Disconnect(ctx context.Context, connectionID string) error {
	if err := d.presence.Disconnect(ctx, connectionID); err != nil {
		d.logger.Error("Disconnect failed", zap.String("connectionID", connectionID), zap.Error(err))
		return err
	}
	return nil
}
