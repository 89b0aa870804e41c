package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mindmap/domain/core/aggregates"
	"mindmap/domain/core/entities"
	"mindmap/domain/core/valueobjects"
	"mindmap/domain/events"
	"mindmap/infrastructure/persistence/memory"
	pkgerrors "mindmap/pkg/errors"
)

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, event events.DomainEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockEventPublisher) PublishBatch(ctx context.Context, evts []events.DomainEvent) error {
	return m.Called(ctx, evts).Error(0)
}

func newTestService(t *testing.T) (*DocumentService, *MockEventPublisher) {
	t.Helper()
	publisher := new(MockEventPublisher)
	publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)
	return NewDocumentService(memory.NewDocumentRepository(), NewAccessGate(), publisher, zap.NewNop()), publisher
}

func TestAccessGate_Authorize(t *testing.T) {
	gate := NewAccessGate()
	doc := &aggregates.Document{ID: "d", OwnerID: "alice"}

	assert.NoError(t, gate.Authorize("alice", doc, ActionView))

	err := gate.Authorize("bob", doc, ActionUpdate)
	assert.True(t, pkgerrors.IsForbidden(err))
	assert.Contains(t, err.Error(), "update")

	assert.True(t, pkgerrors.IsUnauthorized(gate.Authorize("", doc, ActionView)))
}

func TestDocumentService_CreateDefaults(t *testing.T) {
	svc, publisher := newTestService(t)

	doc, err := svc.Create(context.Background(), "alice", CreateDocumentInput{})

	require.NoError(t, err)
	assert.True(t, valueobjects.IsValidDocumentID(doc.ID))
	assert.Equal(t, aggregates.DefaultTitle, doc.Title)
	assert.Equal(t, "alice", doc.OwnerID)
	assert.NotNil(t, doc.Nodes)
	assert.NotNil(t, doc.Edges)
	assert.False(t, doc.CreatedAt.IsZero())
	publisher.AssertCalled(t, "Publish", mock.Anything, mock.AnythingOfType("events.DocumentCreated"))
}

func TestDocumentService_OwnershipIsEnforced(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	doc, err := svc.Create(ctx, "alice", CreateDocumentInput{Title: "Plans"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, "bob", doc.ID)
	assert.True(t, pkgerrors.IsForbidden(err), "a foreign document is forbidden, not missing")

	title := "Hijacked"
	_, err = svc.Update(ctx, "bob", doc.ID, UpdateDocumentInput{Title: &title})
	assert.True(t, pkgerrors.IsForbidden(err))

	got, err := svc.Get(ctx, "alice", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Plans", got.Title)

	_, err = svc.Get(ctx, "alice", valueobjects.NewDocumentID())
	assert.True(t, pkgerrors.IsNotFound(err))

	_, err = svc.Get(ctx, "alice", "not-a-uuid")
	assert.True(t, pkgerrors.IsNotFound(err))

	_, err = svc.Get(ctx, "", doc.ID)
	assert.True(t, pkgerrors.IsUnauthorized(err))
}

func TestDocumentService_PartialUpdateReplacesProvidedFields(t *testing.T) {
	svc, publisher := newTestService(t)
	ctx := context.Background()
	nodes := []entities.Node{{ID: "n1", Label: "Root"}, {ID: "n2", Label: "Leaf"}}
	doc, err := svc.Create(ctx, "alice", CreateDocumentInput{Title: "Plans", Nodes: nodes})
	require.NoError(t, err)

	// Edges may reference nodes that do not exist
	edges := []entities.Edge{{ID: "e1", Source: "n1", Target: "ghost"}}
	updated, err := svc.Update(ctx, "alice", doc.ID, UpdateDocumentInput{Edges: &edges})
	require.NoError(t, err)

	assert.Equal(t, "Plans", updated.Title)
	assert.Len(t, updated.Nodes, 2)
	require.Len(t, updated.Edges, 1)
	assert.Equal(t, "", updated.Edges[0].Label)
	assert.False(t, updated.UpdatedAt.Before(doc.UpdatedAt))

	onlyRoot := []entities.Node{{ID: "n1", Label: "Root"}}
	updated, err = svc.Update(ctx, "alice", doc.ID, UpdateDocumentInput{Nodes: &onlyRoot})
	require.NoError(t, err)
	assert.Len(t, updated.Nodes, 1)
	assert.Len(t, updated.Edges, 1)

	publisher.AssertCalled(t, "Publish", mock.Anything, mock.AnythingOfType("events.DocumentUpdated"))
}

func TestDocumentService_RejectsDuplicateIDs(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), "alice", CreateDocumentInput{
		Nodes: []entities.Node{{ID: "n1"}, {ID: "n1"}},
	})

	assert.True(t, pkgerrors.IsValidation(err))
}

func TestDocumentService_ListNewestFirst(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	first, err := svc.Create(ctx, "alice", CreateDocumentInput{Title: "first"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "alice", CreateDocumentInput{Title: "second"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "bob", CreateDocumentInput{Title: "not mine"})
	require.NoError(t, err)

	title := "first, edited"
	_, err = svc.Update(ctx, "alice", first.ID, UpdateDocumentInput{Title: &title})
	require.NoError(t, err)

	docs, err := svc.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "first, edited", docs[0].Title)
	assert.Equal(t, "second", docs[1].Title)
}
