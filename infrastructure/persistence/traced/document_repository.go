package traced

import (
	"context"
	"time"

	"mindmap/application/ports"
	"mindmap/domain/core/aggregates"
	"mindmap/pkg/observability"
)

// LatencyRecorder receives per-operation persistence latencies
type LatencyRecorder interface {
	RecordLatency(operation string, latency time.Duration)
}

// DocumentRepository wraps a repository with X-Ray subsegments and
// latency metrics
type DocumentRepository struct {
	next    ports.DocumentRepository
	tracer  *observability.Tracer
	metrics LatencyRecorder
}

var _ ports.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository decorates next. metrics may be nil.
func NewDocumentRepository(next ports.DocumentRepository, tracer *observability.Tracer, metrics LatencyRecorder) *DocumentRepository {
	return &DocumentRepository{next: next, tracer: tracer, metrics: metrics}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *aggregates.Document) error {
	return r.trace(ctx, "documents.create", func(ctx context.Context) error {
		return r.next.Create(ctx, doc)
	})
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*aggregates.Document, error) {
	var doc *aggregates.Document
	err := r.trace(ctx, "documents.get", func(ctx context.Context) error {
		var err error
		doc, err = r.next.GetByID(ctx, id)
		return err
	})
	return doc, err
}

func (r *DocumentRepository) Update(ctx context.Context, doc *aggregates.Document) error {
	return r.trace(ctx, "documents.update", func(ctx context.Context) error {
		return r.next.Update(ctx, doc)
	})
}

func (r *DocumentRepository) ListByOwner(ctx context.Context, ownerID string) ([]*aggregates.Document, error) {
	var docs []*aggregates.Document
	err := r.trace(ctx, "documents.list", func(ctx context.Context) error {
		var err error
		docs, err = r.next.ListByOwner(ctx, ownerID)
		return err
	})
	return docs, err
}

func (r *DocumentRepository) trace(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := r.tracer.TraceFunction(ctx, name, fn)
	if r.metrics != nil {
		r.metrics.RecordLatency(name, time.Since(start))
	}
	return err
}
