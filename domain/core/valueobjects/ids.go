package valueobjects

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewElementID returns an identifier for a node or edge.
// ULIDs sort by creation time and carry 80 bits of crypto entropy, so
// independent clients minting ids for the same document do not collide.
func NewElementID() string {
	return ulid.Make().String()
}

// NewDocumentID creates a new random document identifier
func NewDocumentID() string {
	return uuid.New().String()
}

// NewConnectionID creates a new random connection identifier
func NewConnectionID() string {
	return uuid.New().String()
}

// IsValidDocumentID validates that a document id is a UUID
func IsValidDocumentID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
