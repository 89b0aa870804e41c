package entities

import (
	"strings"

	"mindmap/domain/core/valueobjects"
	pkgerrors "mindmap/pkg/errors"
)

// Node is a labeled point on the mind map canvas
type Node struct {
	ID       string                `json:"id" dynamodbav:"id" validate:"required"`
	Label    string                `json:"label" dynamodbav:"label"`
	Position valueobjects.Position `json:"position" dynamodbav:"position"`
}

// NewNode creates a node with a freshly minted identifier
func NewNode(label string, position valueobjects.Position) (Node, error) {
	if !position.IsValid() {
		return Node{}, pkgerrors.NewValidationError("invalid coordinates: must be finite numbers")
	}
	return Node{
		ID:       valueobjects.NewElementID(),
		Label:    strings.TrimSpace(label),
		Position: position,
	}, nil
}

// MoveTo returns a copy of the node at a new position
func (n Node) MoveTo(position valueobjects.Position) Node {
	n.Position = position
	return n
}
