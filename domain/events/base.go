package events

import (
	"time"
)

// SourceBackend identifies this service as the origin of published events
const SourceBackend = "mindmap.documents"

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

// DocumentCreated is raised when a mind map is first persisted
type DocumentCreated struct {
	BaseEvent
	DocumentID string `json:"document_id"`
	UserID     string `json:"user_id"`
	Title      string `json:"title"`
	NodeCount  int    `json:"node_count"`
	EdgeCount  int    `json:"edge_count"`
}

// NewDocumentCreated creates a DocumentCreated event
func NewDocumentCreated(documentID, userID, title string, nodeCount, edgeCount int, timestamp time.Time) DocumentCreated {
	return DocumentCreated{
		BaseEvent: BaseEvent{
			AggregateID: documentID,
			EventType:   "document.created",
			Timestamp:   timestamp,
			Version:     1,
		},
		DocumentID: documentID,
		UserID:     userID,
		Title:      title,
		NodeCount:  nodeCount,
		EdgeCount:  edgeCount,
	}
}

// DocumentUpdated is raised when any field of a mind map is replaced
type DocumentUpdated struct {
	BaseEvent
	DocumentID    string   `json:"document_id"`
	UserID        string   `json:"user_id"`
	ChangedFields []string `json:"changed_fields"`
	NodeCount     int      `json:"node_count"`
	EdgeCount     int      `json:"edge_count"`
}

// NewDocumentUpdated creates a DocumentUpdated event
func NewDocumentUpdated(documentID, userID string, changed []string, nodeCount, edgeCount int, timestamp time.Time) DocumentUpdated {
	return DocumentUpdated{
		BaseEvent: BaseEvent{
			AggregateID: documentID,
			EventType:   "document.updated",
			Timestamp:   timestamp,
			Version:     1,
		},
		DocumentID:    documentID,
		UserID:        userID,
		ChangedFields: changed,
		NodeCount:     nodeCount,
		EdgeCount:     edgeCount,
	}
}
