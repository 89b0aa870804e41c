package ports

import (
	"context"
	"errors"
	"time"

	"mindmap/domain/core/aggregates"
	"mindmap/domain/events"
)

// DocumentRepository defines the interface for mind map persistence.
// Lookups of a missing id return a NOT_FOUND app error.
type DocumentRepository interface {
	// Create stores a new document. The document carries its id.
	Create(ctx context.Context, doc *aggregates.Document) error

	// GetByID retrieves a document by its id regardless of owner
	GetByID(ctx context.Context, id string) (*aggregates.Document, error)

	// Update replaces the stored document with the same id
	Update(ctx context.Context, doc *aggregates.Document) error

	// ListByOwner returns the owner's documents, most recently updated first
	ListByOwner(ctx context.Context, ownerID string) ([]*aggregates.Document, error)
}

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	// Publish sends a single event
	Publish(ctx context.Context, event events.DomainEvent) error

	// PublishBatch sends multiple events
	PublishBatch(ctx context.Context, events []events.DomainEvent) error
}

// Participant is a connection's membership record
type Participant struct {
	ConnectionID string                 `json:"connectionId"`
	RoomID       string                 `json:"roomId"`
	Info         events.ParticipantInfo `json:"userInfo"`
	JoinedAt     time.Time              `json:"joinedAt"`
}

// JoinResult describes the registry state after a join. PreviousRoomID is
// set only when the join moved the connection out of a different room.
type JoinResult struct {
	RoomID         string
	Size           int
	PreviousRoomID string
	PreviousSize   int
	PreviousInfo   events.ParticipantInfo
}

// LeaveResult describes the registry state after a leave. Participant is
// nil when the connection was in no room.
type LeaveResult struct {
	Participant *Participant
	Remaining   int
}

// RoomRegistry tracks which room each live connection belongs to.
// A connection is in at most one room, and a room exists only while it
// has members.
type RoomRegistry interface {
	Join(ctx context.Context, connectionID, roomID string, info events.ParticipantInfo) (JoinResult, error)
	Leave(ctx context.Context, connectionID string) (LeaveResult, error)
	MembersOf(ctx context.Context, roomID string) ([]string, error)
	RoomOf(ctx context.Context, connectionID string) (*Participant, error)
}

// ErrConnectionGone is returned by a Transport when the peer is no longer
// reachable. The caller should disconnect it.
var ErrConnectionGone = errors.New("connection gone")

// Delivery is one encoded frame addressed to a connection
type Delivery struct {
	Data      []byte
	Droppable bool
}

// Transport pushes frames to connections by id
type Transport interface {
	Deliver(ctx context.Context, connectionID string, d Delivery) error
}
