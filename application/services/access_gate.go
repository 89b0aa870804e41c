package services

import (
	"mindmap/domain/core/aggregates"
	pkgerrors "mindmap/pkg/errors"
)

// Action names what the caller wants to do with a document
type Action string

const (
	ActionView   Action = "view"
	ActionUpdate Action = "update"
)

// AccessGate enforces single-owner access to documents
type AccessGate struct{}

// NewAccessGate creates an access gate
func NewAccessGate() *AccessGate {
	return &AccessGate{}
}

// Authorize returns nil only when identity owns doc. A missing identity is
// UNAUTHORIZED; anyone else is FORBIDDEN, which callers must keep distinct
// from NOT_FOUND.
func (g *AccessGate) Authorize(identity string, doc *aggregates.Document, action Action) error {
	if identity == "" {
		return pkgerrors.NewUnauthorizedError("User not authenticated")
	}
	if doc.OwnerID != identity {
		return pkgerrors.NewForbiddenError("Not authorized to " + string(action) + " this mind map").
			WithCode("NOT_OWNER")
	}
	return nil
}
