package queries

import (
	"mindmap/domain/core/aggregates"
	pkgerrors "mindmap/pkg/errors"
)

// GetDocumentQuery fetches one mind map the user owns
type GetDocumentQuery struct {
	UserID     string
	DocumentID string
}

// Validate checks the query fields
func (q GetDocumentQuery) Validate() error {
	if q.UserID == "" {
		return pkgerrors.NewUnauthorizedError("User not authenticated")
	}
	if q.DocumentID == "" {
		return pkgerrors.NewValidationError("mind map id is required")
	}
	return nil
}

// ListDocumentsQuery lists the user's mind maps
type ListDocumentsQuery struct {
	UserID string
}

// Validate checks the query fields
func (q ListDocumentsQuery) Validate() error {
	if q.UserID == "" {
		return pkgerrors.NewUnauthorizedError("User not authenticated")
	}
	return nil
}

// ListDocumentsResult is the list query's result
type ListDocumentsResult struct {
	Documents []*aggregates.Document
	Count     int
}
