// Package memory holds an in-process document store for local runs and tests.
package memory

import (
	"context"
	"sync"

	"mindmap/application/ports"
	"mindmap/domain/core/aggregates"
	pkgerrors "mindmap/pkg/errors"
)

// DocumentRepository keeps documents in a map. Stored values are copies, so
// callers cannot mutate state behind the repository's back.
type DocumentRepository struct {
	mu   sync.RWMutex
	docs map[string]*aggregates.Document
}

var _ ports.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates an empty repository
func NewDocumentRepository() *DocumentRepository {
	return &DocumentRepository{docs: make(map[string]*aggregates.Document)}
}

func (r *DocumentRepository) Create(_ context.Context, doc *aggregates.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.docs[doc.ID]; exists {
		return pkgerrors.NewValidationError("mind map id already exists").WithCode("DUPLICATE_ID")
	}
	r.docs[doc.ID] = doc.Clone()
	return nil
}

func (r *DocumentRepository) GetByID(_ context.Context, id string) (*aggregates.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("Mind map")
	}
	return doc.Clone(), nil
}

func (r *DocumentRepository) Update(_ context.Context, doc *aggregates.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[doc.ID]; !ok {
		return pkgerrors.NewNotFoundError("Mind map")
	}
	r.docs[doc.ID] = doc.Clone()
	return nil
}

func (r *DocumentRepository) ListByOwner(_ context.Context, ownerID string) ([]*aggregates.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*aggregates.Document
	for _, doc := range r.docs {
		if doc.OwnerID == ownerID {
			out = append(out, doc.Clone())
		}
	}
	aggregates.SortByRecent(out)
	return out, nil
}
