package realtime

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"mindmap/application/ports"
	"mindmap/domain/events"
)

// ErrUnknownEvent is returned for inbound frames the relay does not forward
var ErrUnknownEvent = errors.New("unknown event type")

// Relay forwards graph mutation intents to the sender's room. Payloads are
// passed through untouched.
type Relay struct {
	presence *Presence
	registry ports.RoomRegistry
	logger   *zap.Logger
}

// NewRelay creates a relay that fans out through presence
func NewRelay(presence *Presence, registry ports.RoomRegistry, logger *zap.Logger) *Relay {
	return &Relay{
		presence: presence,
		registry: registry,
		logger:   logger,
	}
}

// Relay forwards one intent from connectionID to every other member of its
// room. A sender that is in no room produces nothing.
func (r *Relay) Relay(ctx context.Context, connectionID string, in events.Inbound) error {
	eventType, ok := events.AppliedEventFor(in.Type)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, in.Type)
	}

	sender, err := r.registry.RoomOf(ctx, connectionID)
	if err != nil {
		return fmt.Errorf("failed to resolve sender room: %w", err)
	}
	if sender == nil {
		r.logger.Debug("Dropping intent from connection outside any room",
			zap.String("connectionID", connectionID),
			zap.String("eventType", in.Type),
		)
		return nil
	}

	r.presence.Broadcast(ctx, sender.RoomID, connectionID, events.Message{
		Type:      eventType,
		Payload:   in.Payload,
		UserID:    connectionID,
		UserInfo:  sender.Info,
		RoomID:    sender.RoomID,
		Timestamp: r.presence.now().UnixMilli(),
	}, events.IsDroppable(eventType))
	return nil
}
