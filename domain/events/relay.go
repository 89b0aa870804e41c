package events

import (
	"encoding/json"
	"fmt"

	"mindmap/domain/core/aggregates"
	"mindmap/domain/core/entities"
	"mindmap/domain/core/valueobjects"
)

// Inbound intents sent by a participant
const (
	JoinRoom   = "join-room"
	AddNode    = "add-node"
	UpdateNode = "update-node"
	DeleteNode = "delete-node"
	AddEdge    = "add-edge"
	DeleteEdge = "delete-edge"
	MoveNode   = "move-node"
	CursorMove = "cursor-move"
)

// Outbound events delivered to participants
const (
	RoomJoined  = "room-joined"
	UserJoined  = "user-joined"
	UserLeft    = "user-left"
	NodeAdded   = "node-added"
	NodeUpdated = "node-updated"
	NodeDeleted = "node-deleted"
	EdgeAdded   = "edge-added"
	EdgeDeleted = "edge-deleted"
	NodeMoved   = "node-moved"
	CursorMoved = "cursor-moved"
)

var appliedEvents = map[string]string{
	AddNode:    NodeAdded,
	UpdateNode: NodeUpdated,
	DeleteNode: NodeDeleted,
	AddEdge:    EdgeAdded,
	DeleteEdge: EdgeDeleted,
	MoveNode:   NodeMoved,
	CursorMove: CursorMoved,
}

// AppliedEventFor maps an inbound intent to the event fanned out to peers
func AppliedEventFor(intent string) (string, bool) {
	ev, ok := appliedEvents[intent]
	return ev, ok
}

// IsDroppable reports whether an outbound event may be discarded under
// backpressure. Only the latest position matters for these.
func IsDroppable(eventType string) bool {
	return eventType == NodeMoved || eventType == CursorMoved
}

// ParticipantInfo is free-form display metadata supplied on join
type ParticipantInfo map[string]interface{}

// DefaultParticipantInfo is used when a participant joins without metadata
func DefaultParticipantInfo() ParticipantInfo {
	return ParticipantInfo{"name": "Anonymous"}
}

// Inbound is a frame received from a participant
type Inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message is a frame delivered to a participant
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	UserInfo  ParticipantInfo `json:"userInfo,omitempty"`
	RoomID    string          `json:"roomId,omitempty"`
	Count     int             `json:"count,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// JoinRoomPayload is the payload of join-room
type JoinRoomPayload struct {
	RoomID   string          `json:"roomId"`
	UserInfo ParticipantInfo `json:"userInfo,omitempty"`
}

// DeleteNodePayload is the payload of delete-node
type DeleteNodePayload struct {
	NodeID string `json:"nodeId"`
}

// DeleteEdgePayload is the payload of delete-edge
type DeleteEdgePayload struct {
	EdgeID string `json:"edgeId"`
}

// MoveNodePayload is the payload of move-node
type MoveNodePayload struct {
	ID       string                `json:"id"`
	Position valueobjects.Position `json:"position"`
}

// CursorPayload is the payload of cursor-move
type CursorPayload struct {
	Position valueobjects.Position `json:"position"`
}

// NewInbound encodes a typed payload into an inbound frame
func NewInbound(eventType string, payload interface{}) (Inbound, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Inbound{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return Inbound{Type: eventType, Payload: raw}, nil
}

// IntentFor encodes a graph mutation as the frame a client sends to the relay
func IntentFor(m aggregates.Mutation) (Inbound, error) {
	switch m.Kind {
	case aggregates.MutationAddNode:
		return NewInbound(AddNode, m.Node)
	case aggregates.MutationUpdateNode:
		return NewInbound(UpdateNode, m.Node)
	case aggregates.MutationDeleteNode:
		return NewInbound(DeleteNode, DeleteNodePayload{NodeID: m.TargetID})
	case aggregates.MutationMoveNode:
		return NewInbound(MoveNode, MoveNodePayload{ID: m.TargetID, Position: m.Position})
	case aggregates.MutationAddEdge:
		return NewInbound(AddEdge, m.Edge)
	case aggregates.MutationDeleteEdge:
		return NewInbound(DeleteEdge, DeleteEdgePayload{EdgeID: m.TargetID})
	default:
		return Inbound{}, fmt.Errorf("unknown mutation kind %q", m.Kind)
	}
}

// MutationFrom decodes a relayed event into the graph mutation it carries.
// The second return is false for events that do not affect the graph.
func MutationFrom(msg Message) (aggregates.Mutation, bool, error) {
	switch msg.Type {
	case NodeAdded, NodeUpdated:
		var n entities.Node
		if err := json.Unmarshal(msg.Payload, &n); err != nil {
			return aggregates.Mutation{}, false, fmt.Errorf("failed to decode %s: %w", msg.Type, err)
		}
		if msg.Type == NodeAdded {
			return aggregates.AddNode(n), true, nil
		}
		return aggregates.UpdateNode(n), true, nil
	case NodeDeleted:
		var p DeleteNodePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return aggregates.Mutation{}, false, fmt.Errorf("failed to decode %s: %w", msg.Type, err)
		}
		return aggregates.DeleteNode(p.NodeID), true, nil
	case NodeMoved:
		var p MoveNodePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return aggregates.Mutation{}, false, fmt.Errorf("failed to decode %s: %w", msg.Type, err)
		}
		return aggregates.MoveNode(p.ID, p.Position), true, nil
	case EdgeAdded:
		var e entities.Edge
		if err := json.Unmarshal(msg.Payload, &e); err != nil {
			return aggregates.Mutation{}, false, fmt.Errorf("failed to decode %s: %w", msg.Type, err)
		}
		return aggregates.AddEdge(e), true, nil
	case EdgeDeleted:
		var p DeleteEdgePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return aggregates.Mutation{}, false, fmt.Errorf("failed to decode %s: %w", msg.Type, err)
		}
		return aggregates.DeleteEdge(p.EdgeID), true, nil
	default:
		return aggregates.Mutation{}, false, nil
	}
}
