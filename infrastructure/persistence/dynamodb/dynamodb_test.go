package dynamodb

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mindmap/domain/core/aggregates"
	"mindmap/domain/core/entities"
	"mindmap/domain/core/valueobjects"
	"mindmap/domain/events"
	pkgerrors "mindmap/pkg/errors"
)

const testTable = "mindmap-test"

type MockDynamoDB struct {
	mock.Mock
}

func (m *MockDynamoDB) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*dynamodb.GetItemOutput)
	return out, args.Error(1)
}

func (m *MockDynamoDB) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*dynamodb.PutItemOutput)
	return out, args.Error(1)
}

func (m *MockDynamoDB) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*dynamodb.QueryOutput)
	return out, args.Error(1)
}

func (m *MockDynamoDB) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*dynamodb.TransactWriteItemsOutput)
	return out, args.Error(1)
}

var joinedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func storedConnection(t *testing.T, connectionID, roomID string) *dynamodb.GetItemOutput {
	t.Helper()
	item, err := attributevalue.MarshalMap(connectionItem{
		PK:           connectionKey(connectionID),
		SK:           metadataSK,
		EntityType:   entityConnection,
		ConnectionID: connectionID,
		RoomID:       roomID,
		Info:         map[string]interface{}{"name": "Alice"},
		JoinedAt:     joinedAt.Format(time.RFC3339Nano),
	})
	require.NoError(t, err)
	return &dynamodb.GetItemOutput{Item: item}
}

func noConnection() *dynamodb.GetItemOutput {
	return &dynamodb.GetItemOutput{}
}

func hasValue(values map[string]types.AttributeValue, want string) bool {
	for _, v := range values {
		if s, ok := v.(*types.AttributeValueMemberS); ok && s.Value == want {
			return true
		}
	}
	return false
}

// countOf matches the member count query of one room
func countOf(roomID string) interface{} {
	return mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return in.Select == types.SelectCount && hasValue(in.ExpressionAttributeValues, roomKey(roomID))
	})
}

func conflict() error {
	return &types.TransactionCanceledException{
		Message: aws.String("Transaction cancelled"),
		CancellationReasons: []types.CancellationReason{
			{Code: aws.String("TransactionConflict")},
			{Code: aws.String("None")},
		},
	}
}

func newTestRegistry(api *MockDynamoDB) *ConnectionRegistry {
	r := NewConnectionRegistry(api, testTable, zap.NewNop())
	r.now = func() time.Time { return joinedAt.Add(time.Hour) }
	return r
}

func captureTx(target **dynamodb.TransactWriteItemsInput) func(mock.Arguments) {
	return func(args mock.Arguments) {
		*target = args.Get(1).(*dynamodb.TransactWriteItemsInput)
	}
}

func keyString(key map[string]types.AttributeValue, name string) string {
	if s, ok := key[name].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func TestConnectionRegistry_JoinWithoutRoom(t *testing.T) {
	api := &MockDynamoDB{}
	var tx *dynamodb.TransactWriteItemsInput
	api.On("GetItem", mock.Anything, mock.Anything).Return(noConnection(), nil).Once()
	api.On("TransactWriteItems", mock.Anything, mock.Anything).Run(captureTx(&tx)).Return(&dynamodb.TransactWriteItemsOutput{}, nil).Once()
	api.On("Query", mock.Anything, countOf("room-1")).Return(&dynamodb.QueryOutput{Count: 1}, nil).Once()

	result, err := newTestRegistry(api).Join(context.Background(), "conn-1", "room-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "room-1", result.RoomID)
	assert.Equal(t, 1, result.Size)
	assert.Empty(t, result.PreviousRoomID)

	require.Len(t, tx.TransactItems, 2)
	put := tx.TransactItems[0].Put
	require.NotNil(t, put)
	assert.Contains(t, aws.ToString(put.ConditionExpression), "attribute_not_exists")

	var conn connectionItem
	require.NoError(t, attributevalue.UnmarshalMap(put.Item, &conn))
	assert.Equal(t, "room-1", conn.RoomID)
	assert.Equal(t, map[string]interface{}(events.DefaultParticipantInfo()), conn.Info)

	member := tx.TransactItems[1].Put
	require.NotNil(t, member)
	assert.Equal(t, roomKey("room-1"), keyString(member.Item, "PK"))
	assert.Equal(t, connectionKey("conn-1"), keyString(member.Item, "SK"))
	api.AssertExpectations(t)
}

func TestConnectionRegistry_MoveDeletesOldMembership(t *testing.T) {
	api := &MockDynamoDB{}
	var tx *dynamodb.TransactWriteItemsInput
	api.On("GetItem", mock.Anything, mock.Anything).Return(storedConnection(t, "conn-1", "room-a"), nil).Once()
	api.On("TransactWriteItems", mock.Anything, mock.Anything).Run(captureTx(&tx)).Return(&dynamodb.TransactWriteItemsOutput{}, nil).Once()
	api.On("Query", mock.Anything, countOf("room-b")).Return(&dynamodb.QueryOutput{Count: 2}, nil).Once()
	api.On("Query", mock.Anything, countOf("room-a")).Return(&dynamodb.QueryOutput{Count: 0}, nil).Once()

	result, err := newTestRegistry(api).Join(context.Background(), "conn-1", "room-b", events.ParticipantInfo{"name": "Alice"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Size)
	assert.Equal(t, "room-a", result.PreviousRoomID)
	assert.Equal(t, 0, result.PreviousSize)
	assert.Equal(t, "Alice", result.PreviousInfo["name"])

	require.Len(t, tx.TransactItems, 3, "old membership goes in the same transaction")
	put := tx.TransactItems[0].Put
	require.NotNil(t, put.ConditionExpression)
	assert.True(t, hasValue(put.ExpressionAttributeValues, "room-a"), "record must still name the room that was read")

	del := tx.TransactItems[2].Delete
	require.NotNil(t, del)
	assert.Equal(t, roomKey("room-a"), keyString(del.Key, "PK"))
	assert.Equal(t, connectionKey("conn-1"), keyString(del.Key, "SK"))
	api.AssertExpectations(t)
}

func TestConnectionRegistry_RejoinKeepsJoinTime(t *testing.T) {
	api := &MockDynamoDB{}
	var tx *dynamodb.TransactWriteItemsInput
	api.On("GetItem", mock.Anything, mock.Anything).Return(storedConnection(t, "conn-1", "room-1"), nil).Once()
	api.On("TransactWriteItems", mock.Anything, mock.Anything).Run(captureTx(&tx)).Return(&dynamodb.TransactWriteItemsOutput{}, nil).Once()
	api.On("Query", mock.Anything, countOf("room-1")).Return(&dynamodb.QueryOutput{Count: 1}, nil).Once()

	result, err := newTestRegistry(api).Join(context.Background(), "conn-1", "room-1", events.ParticipantInfo{"name": "Alice B."})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Size)
	assert.Empty(t, result.PreviousRoomID)

	require.Len(t, tx.TransactItems, 2)
	var conn connectionItem
	require.NoError(t, attributevalue.UnmarshalMap(tx.TransactItems[0].Put.Item, &conn))
	assert.Equal(t, joinedAt.Format(time.RFC3339Nano), conn.JoinedAt)
	assert.Equal(t, "Alice B.", conn.Info["name"])
	api.AssertExpectations(t)
}

func TestConnectionRegistry_JoinRetriesConflicts(t *testing.T) {
	t.Run("succeeds after a conflict", func(t *testing.T) {
		api := &MockDynamoDB{}
		api.On("GetItem", mock.Anything, mock.Anything).Return(noConnection(), nil).Twice()
		api.On("TransactWriteItems", mock.Anything, mock.Anything).Return(nil, conflict()).Once()
		api.On("TransactWriteItems", mock.Anything, mock.Anything).Return(&dynamodb.TransactWriteItemsOutput{}, nil).Once()
		api.On("Query", mock.Anything, countOf("room-1")).Return(&dynamodb.QueryOutput{Count: 1}, nil).Once()

		_, err := newTestRegistry(api).Join(context.Background(), "conn-1", "room-1", nil)
		require.NoError(t, err)
		api.AssertNumberOfCalls(t, "TransactWriteItems", 2)
		api.AssertExpectations(t)
	})

	t.Run("gives up after the last attempt", func(t *testing.T) {
		api := &MockDynamoDB{}
		api.On("GetItem", mock.Anything, mock.Anything).Return(noConnection(), nil)
		api.On("TransactWriteItems", mock.Anything, mock.Anything).Return(nil, conflict())

		_, err := newTestRegistry(api).Join(context.Background(), "conn-1", "room-1", nil)
		require.Error(t, err)
		api.AssertNumberOfCalls(t, "TransactWriteItems", maxTransactAttempts)
	})
}

func TestConnectionRegistry_Leave(t *testing.T) {
	api := &MockDynamoDB{}
	var tx *dynamodb.TransactWriteItemsInput
	api.On("GetItem", mock.Anything, mock.Anything).Return(storedConnection(t, "conn-1", "room-1"), nil).Once()
	api.On("TransactWriteItems", mock.Anything, mock.Anything).Run(captureTx(&tx)).Return(&dynamodb.TransactWriteItemsOutput{}, nil).Once()
	api.On("Query", mock.Anything, countOf("room-1")).Return(&dynamodb.QueryOutput{Count: 1}, nil).Once()

	result, err := newTestRegistry(api).Leave(context.Background(), "conn-1")
	require.NoError(t, err)
	require.NotNil(t, result.Participant)
	assert.Equal(t, "conn-1", result.Participant.ConnectionID)
	assert.Equal(t, "room-1", result.Participant.RoomID)
	assert.True(t, joinedAt.Equal(result.Participant.JoinedAt))
	assert.Equal(t, 1, result.Remaining)

	require.Len(t, tx.TransactItems, 2)
	assert.Equal(t, connectionKey("conn-1"), keyString(tx.TransactItems[0].Delete.Key, "PK"))
	assert.NotNil(t, tx.TransactItems[0].Delete.ConditionExpression)
	assert.Equal(t, roomKey("room-1"), keyString(tx.TransactItems[1].Delete.Key, "PK"))
	api.AssertExpectations(t)
}

func TestConnectionRegistry_LeaveWithoutRoom(t *testing.T) {
	api := &MockDynamoDB{}
	api.On("GetItem", mock.Anything, mock.Anything).Return(noConnection(), nil).Once()

	result, err := newTestRegistry(api).Leave(context.Background(), "conn-1")
	require.NoError(t, err)
	assert.Nil(t, result.Participant)
	api.AssertNotCalled(t, "TransactWriteItems", mock.Anything, mock.Anything)
}

func TestConnectionRegistry_LeaveRetriesConflicts(t *testing.T) {
	t.Run("conflict then removed", func(t *testing.T) {
		api := &MockDynamoDB{}
		api.On("GetItem", mock.Anything, mock.Anything).Return(storedConnection(t, "conn-1", "room-1"), nil).Twice()
		api.On("TransactWriteItems", mock.Anything, mock.Anything).Return(nil, conflict()).Once()
		api.On("TransactWriteItems", mock.Anything, mock.Anything).Return(&dynamodb.TransactWriteItemsOutput{}, nil).Once()
		api.On("Query", mock.Anything, countOf("room-1")).Return(&dynamodb.QueryOutput{Count: 0}, nil).Once()

		result, err := newTestRegistry(api).Leave(context.Background(), "conn-1")
		require.NoError(t, err)
		require.NotNil(t, result.Participant)
		api.AssertNumberOfCalls(t, "TransactWriteItems", 2)
		api.AssertExpectations(t)
	})

	t.Run("moved meanwhile, leaves the new room", func(t *testing.T) {
		api := &MockDynamoDB{}
		var tx *dynamodb.TransactWriteItemsInput
		api.On("GetItem", mock.Anything, mock.Anything).Return(storedConnection(t, "conn-1", "room-1"), nil).Once()
		api.On("GetItem", mock.Anything, mock.Anything).Return(storedConnection(t, "conn-1", "room-2"), nil).Once()
		api.On("TransactWriteItems", mock.Anything, mock.Anything).Return(nil, conflict()).Once()
		api.On("TransactWriteItems", mock.Anything, mock.Anything).Run(captureTx(&tx)).Return(&dynamodb.TransactWriteItemsOutput{}, nil).Once()
		api.On("Query", mock.Anything, countOf("room-2")).Return(&dynamodb.QueryOutput{Count: 3}, nil).Once()

		result, err := newTestRegistry(api).Leave(context.Background(), "conn-1")
		require.NoError(t, err)
		assert.Equal(t, "room-2", result.Participant.RoomID)
		assert.Equal(t, 3, result.Remaining)
		assert.Equal(t, roomKey("room-2"), keyString(tx.TransactItems[1].Delete.Key, "PK"))
		api.AssertExpectations(t)
	})

	t.Run("removed by another invocation", func(t *testing.T) {
		api := &MockDynamoDB{}
		api.On("GetItem", mock.Anything, mock.Anything).Return(storedConnection(t, "conn-1", "room-1"), nil).Once()
		api.On("GetItem", mock.Anything, mock.Anything).Return(noConnection(), nil).Once()
		api.On("TransactWriteItems", mock.Anything, mock.Anything).Return(nil, conflict()).Once()

		result, err := newTestRegistry(api).Leave(context.Background(), "conn-1")
		require.NoError(t, err)
		assert.Nil(t, result.Participant)
		api.AssertExpectations(t)
	})

	t.Run("gives up after the last attempt", func(t *testing.T) {
		api := &MockDynamoDB{}
		api.On("GetItem", mock.Anything, mock.Anything).Return(storedConnection(t, "conn-1", "room-1"), nil)
		api.On("TransactWriteItems", mock.Anything, mock.Anything).Return(nil, conflict())

		_, err := newTestRegistry(api).Leave(context.Background(), "conn-1")
		require.Error(t, err)
		api.AssertNumberOfCalls(t, "TransactWriteItems", maxTransactAttempts)
	})
}

func TestConnectionRegistry_MembersOf(t *testing.T) {
	api := &MockDynamoDB{}
	var items []map[string]types.AttributeValue
	for _, id := range []string{"conn-1", "conn-2"} {
		item, err := attributevalue.MarshalMap(membershipItem{
			PK: roomKey("room-1"), SK: connectionKey(id), EntityType: entityMembership, ConnectionID: id,
		})
		require.NoError(t, err)
		items = append(items, item)
	}
	api.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return aws.ToBool(in.ConsistentRead) && in.Select == ""
	})).Return(&dynamodb.QueryOutput{Items: items}, nil).Once()

	ids, err := newTestRegistry(api).MembersOf(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"conn-1", "conn-2"}, ids)
}

func testDocument(id string, updated time.Time) *aggregates.Document {
	return &aggregates.Document{
		ID:        id,
		Title:     "Plans " + id,
		OwnerID:   "alice",
		Nodes:     []entities.Node{{ID: "n1", Label: "Root", Position: valueobjects.Position{X: 1, Y: 2}}},
		Edges:     []entities.Edge{{ID: "e1", Source: "n1", Target: "gone"}},
		CreatedAt: updated.Add(-time.Hour),
		UpdatedAt: updated,
	}
}

func TestDocumentRepository_CreateDuplicateIsValidationError(t *testing.T) {
	api := &MockDynamoDB{}
	api.On("PutItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
		return strings.Contains(aws.ToString(in.ConditionExpression), "attribute_not_exists")
	})).Return(nil, &types.ConditionalCheckFailedException{}).Once()

	err := NewDocumentRepository(api, testTable, zap.NewNop()).Create(context.Background(), testDocument("doc-1", joinedAt))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestDocumentRepository_UpdateMissingIsNotFound(t *testing.T) {
	api := &MockDynamoDB{}
	api.On("PutItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
		return strings.Contains(aws.ToString(in.ConditionExpression), "attribute_exists")
	})).Return(nil, &types.ConditionalCheckFailedException{}).Once()

	err := NewDocumentRepository(api, testTable, zap.NewNop()).Update(context.Background(), testDocument("doc-1", joinedAt))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestDocumentRepository_GetByID(t *testing.T) {
	doc := testDocument("doc-1", joinedAt)
	item, err := attributevalue.MarshalMap(toItem(doc))
	require.NoError(t, err)

	api := &MockDynamoDB{}
	api.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return aws.ToString(in.IndexName) == indexGSI1
	})).Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{item}}, nil).Once()
	api.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{}, nil).Once()

	repo := NewDocumentRepository(api, testTable, zap.NewNop())
	got, err := repo.GetByID(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, doc.Nodes, got.Nodes)
	assert.Equal(t, doc.Edges, got.Edges)
	assert.True(t, doc.UpdatedAt.Equal(got.UpdatedAt))

	_, err = repo.GetByID(context.Background(), "doc-missing")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestDocumentRepository_ListByOwnerNewestFirst(t *testing.T) {
	var items []map[string]types.AttributeValue
	for i, id := range []string{"old", "new"} {
		item, err := attributevalue.MarshalMap(toItem(testDocument(id, joinedAt.Add(time.Duration(i)*time.Hour))))
		require.NoError(t, err)
		items = append(items, item)
	}

	api := &MockDynamoDB{}
	api.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return hasValue(in.ExpressionAttributeValues, ownerKey("alice"))
	})).Return(&dynamodb.QueryOutput{Items: items}, nil).Once()

	docs, err := NewDocumentRepository(api, testTable, zap.NewNop()).ListByOwner(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "new", docs[0].ID)
	assert.Equal(t, "old", docs[1].ID)
}
