package entities

import (
	"mindmap/domain/core/valueobjects"
	pkgerrors "mindmap/pkg/errors"
)

// Edge is a directed, optionally labeled connection between two nodes.
// Source and Target are plain references; an edge whose endpoint no longer
// exists is a valid state.
type Edge struct {
	ID     string `json:"id" dynamodbav:"id" validate:"required"`
	Source string `json:"source" dynamodbav:"source" validate:"required"`
	Target string `json:"target" dynamodbav:"target" validate:"required"`
	Label  string `json:"label" dynamodbav:"label"`
}

// NewEdge creates an edge with a freshly minted identifier
func NewEdge(source, target, label string) (Edge, error) {
	if source == "" || target == "" {
		return Edge{}, pkgerrors.NewValidationError("edge source and target are required")
	}
	return Edge{
		ID:     valueobjects.NewElementID(),
		Source: source,
		Target: target,
		Label:  label,
	}, nil
}
