package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mindmap/application/ports"
	"mindmap/domain/core/aggregates"
	"mindmap/domain/core/entities"
	"mindmap/domain/core/valueobjects"
	"mindmap/domain/events"
	pkgerrors "mindmap/pkg/errors"
)

// CreateDocumentInput carries the fields of a new mind map. An empty ID is
// minted by the service.
type CreateDocumentInput struct {
	ID    string
	Title string
	Nodes []entities.Node
	Edges []entities.Edge
}

// UpdateDocumentInput carries a partial update. Nil fields are left alone;
// provided fields replace the stored value wholesale.
type UpdateDocumentInput struct {
	Title *string
	Nodes *[]entities.Node
	Edges *[]entities.Edge
}

// DocumentService implements the document use cases behind the access gate
type DocumentService struct {
	repo      ports.DocumentRepository
	gate      *AccessGate
	publisher ports.EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewDocumentService creates a new document service
func NewDocumentService(
	repo ports.DocumentRepository,
	gate *AccessGate,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *DocumentService {
	return &DocumentService{
		repo:      repo,
		gate:      gate,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new mind map owned by identity
func (s *DocumentService) Create(ctx context.Context, identity string, in CreateDocumentInput) (*aggregates.Document, error) {
	if identity == "" {
		return nil, pkgerrors.NewUnauthorizedError("User not authenticated")
	}

	doc := aggregates.NewDocument(identity, in.Title, in.Nodes, in.Edges)
	doc.ID = in.ID
	if doc.ID == "" {
		doc.ID = valueobjects.NewDocumentID()
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	if err := s.repo.Create(ctx, doc); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to create mind map")
	}

	s.logger.Info("Mind map created",
		zap.String("documentID", doc.ID),
		zap.String("userID", identity),
		zap.Int("nodes", len(doc.Nodes)),
		zap.Int("edges", len(doc.Edges)),
	)
	s.publish(ctx, events.NewDocumentCreated(doc.ID, identity, doc.Title, len(doc.Nodes), len(doc.Edges), now))
	return doc, nil
}

// Get returns the mind map if identity owns it
func (s *DocumentService) Get(ctx context.Context, identity, id string) (*aggregates.Document, error) {
	return s.load(ctx, identity, id, ActionView)
}

// Update applies a partial update to a mind map identity owns
func (s *DocumentService) Update(ctx context.Context, identity, id string, in UpdateDocumentInput) (*aggregates.Document, error) {
	doc, err := s.load(ctx, identity, id, ActionUpdate)
	if err != nil {
		return nil, err
	}

	var changed []string
	if in.Title != nil {
		doc.Title = *in.Title
		changed = append(changed, "title")
	}
	if in.Nodes != nil {
		doc.Nodes = append([]entities.Node{}, (*in.Nodes)...)
		changed = append(changed, "nodes")
	}
	if in.Edges != nil {
		doc.Edges = append([]entities.Edge{}, (*in.Edges)...)
		changed = append(changed, "edges")
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	doc.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, doc); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to update mind map")
	}

	s.logger.Info("Mind map updated",
		zap.String("documentID", doc.ID),
		zap.String("userID", identity),
		zap.Strings("fields", changed),
	)
	s.publish(ctx, events.NewDocumentUpdated(doc.ID, identity, changed, len(doc.Nodes), len(doc.Edges), doc.UpdatedAt))
	return doc, nil
}

// List returns identity's mind maps, most recently updated first
func (s *DocumentService) List(ctx context.Context, identity string) ([]*aggregates.Document, error) {
	if identity == "" {
		return nil, pkgerrors.NewUnauthorizedError("User not authenticated")
	}
	docs, err := s.repo.ListByOwner(ctx, identity)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list mind maps")
	}
	aggregates.SortByRecent(docs)
	for _, d := range docs {
		d.Normalize()
	}
	return docs, nil
}

func (s *DocumentService) load(ctx context.Context, identity, id string, action Action) (*aggregates.Document, error) {
	if identity == "" {
		return nil, pkgerrors.NewUnauthorizedError("User not authenticated")
	}
	// Malformed ids cannot exist in storage
	if !valueobjects.IsValidDocumentID(id) {
		return nil, pkgerrors.NewNotFoundError("Mind map")
	}

	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(identity, doc, action); err != nil {
		s.logger.Warn("Mind map access denied",
			zap.String("documentID", id),
			zap.String("userID", identity),
			zap.String("action", string(action)),
		)
		return nil, err
	}
	doc.Normalize()
	return doc, nil
}

func (s *DocumentService) publish(ctx context.Context, event events.DomainEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish document event",
			zap.String("eventType", event.GetEventType()),
			zap.String("documentID", event.GetAggregateID()),
			zap.Error(err),
		)
	}
}
