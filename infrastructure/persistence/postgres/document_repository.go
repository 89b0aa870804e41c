package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"mindmap/application/ports"
	"mindmap/domain/core/aggregates"
	"mindmap/domain/core/entities"
	pkgerrors "mindmap/pkg/errors"
)

const uniqueViolation = "23505"

// DocumentRepository stores mind maps in a single table with the node and
// edge collections as jsonb columns.
type DocumentRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ ports.DocumentRepository = (*DocumentRepository)(nil)

// Open connects a pool and verifies the database is reachable
func Open(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// NewDocumentRepository creates a new DocumentRepository
func NewDocumentRepository(pool *pgxpool.Pool, logger *zap.Logger) *DocumentRepository {
	return &DocumentRepository{pool: pool, logger: logger}
}

// Create inserts a new mind map
func (r *DocumentRepository) Create(ctx context.Context, doc *aggregates.Document) error {
	doc.Normalize()
	_, err := r.pool.Exec(ctx, `
		insert into mindmaps (id, owner_id, title, nodes, edges, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7)`,
		doc.ID, doc.OwnerID, doc.Title, doc.Nodes, doc.Edges, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return pkgerrors.NewValidationError("mind map id already exists").WithCode("DUPLICATE_ID")
		}
		return pkgerrors.NewDatabaseError("insert mindmap", err)
	}
	return nil
}

// GetByID retrieves a mind map by id
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*aggregates.Document, error) {
	row := r.pool.QueryRow(ctx, `
		select id::text, owner_id, title, nodes, edges, created_at, updated_at
		from mindmaps where id = $1`, id)

	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pkgerrors.NewNotFoundError("Mind map")
	}
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("select mindmap", err)
	}
	return doc, nil
}

// Update replaces the title and collections of an existing mind map
func (r *DocumentRepository) Update(ctx context.Context, doc *aggregates.Document) error {
	doc.Normalize()
	tag, err := r.pool.Exec(ctx, `
		update mindmaps
		set title = $2, nodes = $3, edges = $4, updated_at = $5
		where id = $1`,
		doc.ID, doc.Title, doc.Nodes, doc.Edges, doc.UpdatedAt,
	)
	if err != nil {
		return pkgerrors.NewDatabaseError("update mindmap", err)
	}
	if tag.RowsAffected() == 0 {
		return pkgerrors.NewNotFoundError("Mind map")
	}
	return nil
}

// ListByOwner returns the owner's mind maps, most recently updated first
func (r *DocumentRepository) ListByOwner(ctx context.Context, ownerID string) ([]*aggregates.Document, error) {
	rows, err := r.pool.Query(ctx, `
		select id::text, owner_id, title, nodes, edges, created_at, updated_at
		from mindmaps where owner_id = $1
		order by updated_at desc`, ownerID)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("list mindmaps", err)
	}
	defer rows.Close()

	var docs []*aggregates.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, pkgerrors.NewDatabaseError("scan mindmap", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.NewDatabaseError("list mindmaps", err)
	}
	return docs, nil
}

func scanDocument(row pgx.Row) (*aggregates.Document, error) {
	var (
		doc   aggregates.Document
		nodes []entities.Node
		edges []entities.Edge
	)
	if err := row.Scan(&doc.ID, &doc.OwnerID, &doc.Title, &nodes, &edges, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	doc.Nodes = nodes
	doc.Edges = edges
	doc.Normalize()
	return &doc, nil
}
