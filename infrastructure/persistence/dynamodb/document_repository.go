package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"mindmap/application/ports"
	"mindmap/domain/core/aggregates"
	"mindmap/domain/core/entities"
	pkgerrors "mindmap/pkg/errors"
)

// API is the subset of the DynamoDB client used by this package
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

const (
	entityMindMap = "MINDMAP"
	indexGSI1     = "GSI1"
	metadataSK    = "METADATA"
)

// DocumentRepository stores one item per mind map. Items are keyed by owner
// so listing is a single partition query; GSI1 resolves a bare id.
type DocumentRepository struct {
	client    API
	tableName string
	logger    *zap.Logger
}

var _ ports.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new DocumentRepository
func NewDocumentRepository(client API, tableName string, logger *zap.Logger) *DocumentRepository {
	return &DocumentRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// documentItem represents the DynamoDB item structure for a mind map
type documentItem struct {
	PK         string          `dynamodbav:"PK"`
	SK         string          `dynamodbav:"SK"`
	GSI1PK     string          `dynamodbav:"GSI1PK"`
	GSI1SK     string          `dynamodbav:"GSI1SK"`
	EntityType string          `dynamodbav:"EntityType"`
	MindMapID  string          `dynamodbav:"MindMapID"`
	OwnerID    string          `dynamodbav:"OwnerID"`
	Title      string          `dynamodbav:"Title"`
	Nodes      []entities.Node `dynamodbav:"Nodes"`
	Edges      []entities.Edge `dynamodbav:"Edges"`
	CreatedAt  string          `dynamodbav:"CreatedAt"`
	UpdatedAt  string          `dynamodbav:"UpdatedAt"`
}

func ownerKey(ownerID string) string { return "USER#" + ownerID }
func mindMapKey(id string) string    { return "MINDMAP#" + id }
func mindMapIDKey(id string) string  { return "MINDMAPID#" + id }

func toItem(doc *aggregates.Document) documentItem {
	return documentItem{
		PK:         ownerKey(doc.OwnerID),
		SK:         mindMapKey(doc.ID),
		GSI1PK:     mindMapIDKey(doc.ID),
		GSI1SK:     metadataSK,
		EntityType: entityMindMap,
		MindMapID:  doc.ID,
		OwnerID:    doc.OwnerID,
		Title:      doc.Title,
		Nodes:      doc.Nodes,
		Edges:      doc.Edges,
		CreatedAt:  doc.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:  doc.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func (i documentItem) toDocument() *aggregates.Document {
	createdAt, _ := time.Parse(time.RFC3339Nano, i.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339Nano, i.UpdatedAt)
	doc := &aggregates.Document{
		ID:        i.MindMapID,
		Title:     i.Title,
		OwnerID:   i.OwnerID,
		Nodes:     i.Nodes,
		Edges:     i.Edges,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
	doc.Normalize()
	return doc
}

// Create stores a new mind map, failing if the id is already taken
func (r *DocumentRepository) Create(ctx context.Context, doc *aggregates.Document) error {
	av, err := attributevalue.MarshalMap(toItem(doc))
	if err != nil {
		return fmt.Errorf("failed to marshal mind map: %w", err)
	}

	cond := expression.AttributeNotExists(expression.Name("PK"))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("failed to build condition: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     av,
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return pkgerrors.NewValidationError("mind map id already exists").WithCode("DUPLICATE_ID")
		}
		r.logger.Error("Failed to create mind map", zap.String("documentID", doc.ID), zap.Error(err))
		return pkgerrors.NewDatabaseError("PutItem", err)
	}

	r.logger.Debug("Created mind map in DynamoDB",
		zap.String("documentID", doc.ID),
		zap.String("PK", ownerKey(doc.OwnerID)),
	)
	return nil
}

// GetByID retrieves a mind map by id through GSI1
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*aggregates.Document, error) {
	keyCond := expression.Key("GSI1PK").Equal(expression.Value(mindMapIDKey(id))).
		And(expression.Key("GSI1SK").Equal(expression.Value(metadataSK)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build key condition: %w", err)
	}

	result, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(indexGSI1),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("Query", err)
	}
	if len(result.Items) == 0 {
		return nil, pkgerrors.NewNotFoundError("Mind map")
	}

	var item documentItem
	if err := attributevalue.UnmarshalMap(result.Items[0], &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal mind map: %w", err)
	}
	return item.toDocument(), nil
}

// Update overwrites an existing mind map. The owner never changes, so the
// primary key is stable.
func (r *DocumentRepository) Update(ctx context.Context, doc *aggregates.Document) error {
	av, err := attributevalue.MarshalMap(toItem(doc))
	if err != nil {
		return fmt.Errorf("failed to marshal mind map: %w", err)
	}

	cond := expression.AttributeExists(expression.Name("PK"))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("failed to build condition: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     av,
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return pkgerrors.NewNotFoundError("Mind map")
		}
		r.logger.Error("Failed to update mind map", zap.String("documentID", doc.ID), zap.Error(err))
		return pkgerrors.NewDatabaseError("PutItem", err)
	}
	return nil
}

// ListByOwner returns the owner's mind maps, most recently updated first
func (r *DocumentRepository) ListByOwner(ctx context.Context, ownerID string) ([]*aggregates.Document, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(ownerKey(ownerID))).
		And(expression.Key("SK").BeginsWith("MINDMAP#"))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build key condition: %w", err)
	}

	paginator := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})

	var docs []*aggregates.Document
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, pkgerrors.NewDatabaseError("Query", err)
		}
		for _, raw := range page.Items {
			var item documentItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				r.logger.Warn("Failed to unmarshal mind map item", zap.Error(err))
				continue
			}
			docs = append(docs, item.toDocument())
		}
	}

	aggregates.SortByRecent(docs)
	return docs, nil
}
