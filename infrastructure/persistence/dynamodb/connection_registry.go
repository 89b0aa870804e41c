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
	"mindmap/domain/events"
)

const (
	entityConnection = "CONNECTION"
	entityMembership = "ROOM_MEMBER"

	// connectionTTL bounds how long a record of an abandoned connection lives
	connectionTTL = 24 * time.Hour

	maxTransactAttempts = 3
)

// ConnectionRegistry is a RoomRegistry shared by every Lambda instance.
// Each connection has a record item and, while in a room, a membership item
// under the room's partition. Both change in one transaction.
type ConnectionRegistry struct {
	client    API
	tableName string
	logger    *zap.Logger
	now       func() time.Time
}

var _ ports.RoomRegistry = (*ConnectionRegistry)(nil)

// NewConnectionRegistry creates a new ConnectionRegistry
func NewConnectionRegistry(client API, tableName string, logger *zap.Logger) *ConnectionRegistry {
	return &ConnectionRegistry{
		client:    client,
		tableName: tableName,
		logger:    logger,
		now:       time.Now,
	}
}

type connectionItem struct {
	PK           string                 `dynamodbav:"PK"`
	SK           string                 `dynamodbav:"SK"`
	EntityType   string                 `dynamodbav:"EntityType"`
	ConnectionID string                 `dynamodbav:"ConnectionID"`
	RoomID       string                 `dynamodbav:"RoomID"`
	Info         map[string]interface{} `dynamodbav:"Info"`
	JoinedAt     string                 `dynamodbav:"JoinedAt"`
	TTL          int64                  `dynamodbav:"TTL"`
}

type membershipItem struct {
	PK           string `dynamodbav:"PK"`
	SK           string `dynamodbav:"SK"`
	EntityType   string `dynamodbav:"EntityType"`
	ConnectionID string `dynamodbav:"ConnectionID"`
	TTL          int64  `dynamodbav:"TTL"`
}

func connectionKey(id string) string { return "CONNECTION#" + id }
func roomKey(id string) string       { return "ROOM#" + id }

func connectionPrimaryKey(connectionID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: connectionKey(connectionID)},
		"SK": &types.AttributeValueMemberS{Value: metadataSK},
	}
}

func membershipPrimaryKey(roomID, connectionID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: roomKey(roomID)},
		"SK": &types.AttributeValueMemberS{Value: connectionKey(connectionID)},
	}
}

func (i connectionItem) toParticipant() *ports.Participant {
	joinedAt, _ := time.Parse(time.RFC3339Nano, i.JoinedAt)
	return &ports.Participant{
		ConnectionID: i.ConnectionID,
		RoomID:       i.RoomID,
		Info:         events.ParticipantInfo(i.Info),
		JoinedAt:     joinedAt,
	}
}

// Join moves the connection into roomID
func (r *ConnectionRegistry) Join(ctx context.Context, connectionID, roomID string, info events.ParticipantInfo) (ports.JoinResult, error) {
	if len(info) == 0 {
		info = events.DefaultParticipantInfo()
	}

	var (
		current *ports.Participant
		err     error
	)
	for attempt := 1; ; attempt++ {
		current, err = r.RoomOf(ctx, connectionID)
		if err != nil {
			return ports.JoinResult{}, err
		}
		err = r.joinTx(ctx, connectionID, roomID, info, current)
		if err == nil {
			break
		}
		var canceled *types.TransactionCanceledException
		if !errors.As(err, &canceled) || attempt == maxTransactAttempts {
			return ports.JoinResult{}, fmt.Errorf("failed to join room: %w", err)
		}
		r.logger.Debug("Join transaction conflicted, retrying",
			zap.String("connectionID", connectionID),
			zap.Int("attempt", attempt),
		)
	}

	result := ports.JoinResult{RoomID: roomID}
	if result.Size, err = r.count(ctx, roomID); err != nil {
		return result, err
	}
	if current != nil && current.RoomID != roomID {
		result.PreviousRoomID = current.RoomID
		result.PreviousInfo = current.Info
		if result.PreviousSize, err = r.count(ctx, current.RoomID); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (r *ConnectionRegistry) joinTx(ctx context.Context, connectionID, roomID string, info events.ParticipantInfo, current *ports.Participant) error {
	now := r.now()
	ttl := now.Add(connectionTTL).Unix()
	joinedAt := now
	if current != nil && current.RoomID == roomID {
		joinedAt = current.JoinedAt
	}

	conn, err := attributevalue.MarshalMap(connectionItem{
		PK:           connectionKey(connectionID),
		SK:           metadataSK,
		EntityType:   entityConnection,
		ConnectionID: connectionID,
		RoomID:       roomID,
		Info:         info,
		JoinedAt:     joinedAt.Format(time.RFC3339Nano),
		TTL:          ttl,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal connection: %w", err)
	}
	member, err := attributevalue.MarshalMap(membershipItem{
		PK:           roomKey(roomID),
		SK:           connectionKey(connectionID),
		EntityType:   entityMembership,
		ConnectionID: connectionID,
		TTL:          ttl,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal membership: %w", err)
	}

	// The record must still be in the state we read, or absent if we read nothing
	var cond expression.ConditionBuilder
	if current == nil {
		cond = expression.AttributeNotExists(expression.Name("PK"))
	} else {
		cond = expression.Name("RoomID").Equal(expression.Value(current.RoomID))
	}
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("failed to build condition: %w", err)
	}

	items := []types.TransactWriteItem{
		{Put: &types.Put{
			TableName:                 aws.String(r.tableName),
			Item:                      conn,
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		}},
		{Put: &types.Put{
			TableName: aws.String(r.tableName),
			Item:      member,
		}},
	}
	if current != nil && current.RoomID != roomID {
		items = append(items, types.TransactWriteItem{Delete: &types.Delete{
			TableName: aws.String(r.tableName),
			Key:       membershipPrimaryKey(current.RoomID, connectionID),
		}})
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	return err
}

// Leave removes the connection record and its membership. A cancelled
// transaction means the record changed underneath; it is re-read and the
// removal retried against whatever room it now names.
func (r *ConnectionRegistry) Leave(ctx context.Context, connectionID string) (ports.LeaveResult, error) {
	var current *ports.Participant
	for attempt := 1; ; attempt++ {
		var err error
		current, err = r.RoomOf(ctx, connectionID)
		if err != nil {
			return ports.LeaveResult{}, err
		}
		if current == nil {
			return ports.LeaveResult{}, nil
		}

		err = r.leaveTx(ctx, connectionID, current.RoomID)
		if err == nil {
			break
		}
		var canceled *types.TransactionCanceledException
		if !errors.As(err, &canceled) || attempt == maxTransactAttempts {
			return ports.LeaveResult{}, fmt.Errorf("failed to leave room: %w", err)
		}
		r.logger.Debug("Leave transaction conflicted, retrying",
			zap.String("connectionID", connectionID),
			zap.Int("attempt", attempt),
		)
	}

	remaining, err := r.count(ctx, current.RoomID)
	if err != nil {
		return ports.LeaveResult{Participant: current}, err
	}
	return ports.LeaveResult{Participant: current, Remaining: remaining}, nil
}

func (r *ConnectionRegistry) leaveTx(ctx context.Context, connectionID, roomID string) error {
	cond := expression.Name("RoomID").Equal(expression.Value(roomID))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("failed to build condition: %w", err)
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Delete: &types.Delete{
				TableName:                 aws.String(r.tableName),
				Key:                       connectionPrimaryKey(connectionID),
				ConditionExpression:       expr.Condition(),
				ExpressionAttributeNames:  expr.Names(),
				ExpressionAttributeValues: expr.Values(),
			}},
			{Delete: &types.Delete{
				TableName: aws.String(r.tableName),
				Key:       membershipPrimaryKey(roomID, connectionID),
			}},
		},
	})
	return err
}

// MembersOf lists the connection ids in a room
func (r *ConnectionRegistry) MembersOf(ctx context.Context, roomID string) ([]string, error) {
	expr, err := roomQuery(roomID)
	if err != nil {
		return nil, err
	}

	paginator := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ConsistentRead:            aws.Bool(true),
	})

	var ids []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query room members: %w", err)
		}
		var items []membershipItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal room members: %w", err)
		}
		for _, item := range items {
			ids = append(ids, item.ConnectionID)
		}
	}
	return ids, nil
}

// RoomOf returns the connection's record, or nil when it is in no room
func (r *ConnectionRegistry) RoomOf(ctx context.Context, connectionID string) (*ports.Participant, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            connectionPrimaryKey(connectionID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}

	var item connectionItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal connection: %w", err)
	}
	return item.toParticipant(), nil
}

func (r *ConnectionRegistry) count(ctx context.Context, roomID string) (int, error) {
	expr, err := roomQuery(roomID)
	if err != nil {
		return 0, err
	}

	paginator := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ConsistentRead:            aws.Bool(true),
		Select:                    types.SelectCount,
	})

	total := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to count room members: %w", err)
		}
		total += int(page.Count)
	}
	return total, nil
}

func roomQuery(roomID string) (expression.Expression, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(roomKey(roomID))).
		And(expression.Key("SK").BeginsWith("CONNECTION#"))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return expression.Expression{}, fmt.Errorf("failed to build room query: %w", err)
	}
	return expr, nil
}
