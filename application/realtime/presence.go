package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mindmap/application/ports"
	"mindmap/domain/events"
)

// Presence turns registry membership changes into presence events and owns
// room fan-out for the relay.
type Presence struct {
	registry  ports.RoomRegistry
	transport ports.Transport
	metrics   Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewPresence creates a presence broadcaster
func NewPresence(registry ports.RoomRegistry, transport ports.Transport, metrics Metrics, logger *zap.Logger) *Presence {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Presence{
		registry:  registry,
		transport: transport,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Join admits the connection to roomID. Existing occupants are told first,
// then the joiner receives its acknowledgement. If the connection moved out
// of another room, that room is told it left.
func (p *Presence) Join(ctx context.Context, connectionID, roomID string, info events.ParticipantInfo) error {
	result, err := p.registry.Join(ctx, connectionID, roomID, info)
	if err != nil {
		return fmt.Errorf("failed to join room %s: %w", roomID, err)
	}

	if len(info) == 0 {
		info = events.DefaultParticipantInfo()
	}
	ts := p.now().UnixMilli()

	p.logger.Info("Participant joined room",
		zap.String("connectionID", connectionID),
		zap.String("roomID", roomID),
		zap.Int("count", result.Size),
	)

	if result.PreviousRoomID != "" && result.PreviousSize > 0 {
		p.Broadcast(ctx, result.PreviousRoomID, connectionID, events.Message{
			Type:      events.UserLeft,
			UserID:    connectionID,
			UserInfo:  result.PreviousInfo,
			RoomID:    result.PreviousRoomID,
			Count:     result.PreviousSize,
			Timestamp: ts,
		}, false)
	}

	p.Broadcast(ctx, roomID, connectionID, events.Message{
		Type:      events.UserJoined,
		UserID:    connectionID,
		UserInfo:  info,
		RoomID:    roomID,
		Count:     result.Size,
		Timestamp: ts,
	}, false)

	ack := events.Message{
		Type:      events.RoomJoined,
		UserID:    connectionID,
		UserInfo:  info,
		RoomID:    roomID,
		Count:     result.Size,
		Timestamp: ts,
	}
	if err := p.send(ctx, connectionID, ack, false); err != nil {
		if errors.Is(err, ports.ErrConnectionGone) {
			return p.Disconnect(ctx, connectionID)
		}
		return fmt.Errorf("failed to acknowledge join: %w", err)
	}
	return nil
}

// Disconnect removes the connection from its room and tells the remaining
// occupants. Connections in no room are ignored.
func (p *Presence) Disconnect(ctx context.Context, connectionID string) error {
	result, err := p.registry.Leave(ctx, connectionID)
	if err != nil {
		return fmt.Errorf("failed to leave room: %w", err)
	}
	if result.Participant == nil {
		return nil
	}

	p.logger.Info("Participant left room",
		zap.String("connectionID", connectionID),
		zap.String("roomID", result.Participant.RoomID),
		zap.Int("remaining", result.Remaining),
	)

	if result.Remaining == 0 {
		return nil
	}
	p.Broadcast(ctx, result.Participant.RoomID, connectionID, events.Message{
		Type:      events.UserLeft,
		UserID:    connectionID,
		UserInfo:  result.Participant.Info,
		RoomID:    result.Participant.RoomID,
		Count:     result.Remaining,
		Timestamp: p.now().UnixMilli(),
	}, false)
	return nil
}

// Broadcast delivers msg to a snapshot of the room's members except
// exclude. Members the transport reports gone are disconnected after the
// fan-out completes.
func (p *Presence) Broadcast(ctx context.Context, roomID, exclude string, msg events.Message, droppable bool) {
	members, err := p.registry.MembersOf(ctx, roomID)
	if err != nil {
		p.logger.Error("Failed to list room members",
			zap.String("roomID", roomID),
			zap.String("eventType", msg.Type),
			zap.Error(err),
		)
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		p.logger.Error("Failed to marshal event", zap.String("eventType", msg.Type), zap.Error(err))
		return
	}

	var gone []string
	delivered, failed := 0, 0
	for _, id := range members {
		if id == exclude {
			continue
		}
		err := p.transport.Deliver(ctx, id, ports.Delivery{Data: data, Droppable: droppable})
		switch {
		case err == nil:
			delivered++
		case errors.Is(err, ports.ErrConnectionGone):
			failed++
			gone = append(gone, id)
		default:
			failed++
			p.logger.Warn("Failed to deliver event",
				zap.String("connectionID", id),
				zap.String("eventType", msg.Type),
				zap.Error(err),
			)
		}
	}
	p.metrics.FanoutCompleted(msg.Type, delivered, failed)

	for _, id := range gone {
		if err := p.Disconnect(ctx, id); err != nil {
			p.logger.Warn("Failed to disconnect gone connection", zap.String("connectionID", id), zap.Error(err))
		}
	}
}

func (p *Presence) send(ctx context.Context, connectionID string, msg events.Message, droppable bool) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", msg.Type, err)
	}
	return p.transport.Deliver(ctx, connectionID, ports.Delivery{Data: data, Droppable: droppable})
}
