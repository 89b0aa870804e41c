package eventbridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"mindmap/domain/events"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockEventBridge struct {
	mock.Mock
}

func (m *MockEventBridge) PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*eventbridge.PutEventsOutput)
	return out, args.Error(1)
}

func sampleEvents(n int) []events.DomainEvent {
	out := make([]events.DomainEvent, n)
	ts := time.Unix(1700000000, 0)
	for i := range out {
		out[i] = events.NewDocumentCreated("doc-1", "user-1", "Plan", 1, 0, ts)
	}
	return out
}

func TestPublisher_ChunksBatches(t *testing.T) {
	api := &MockEventBridge{}
	api.On("PutEvents", mock.Anything, mock.MatchedBy(func(in *eventbridge.PutEventsInput) bool {
		return len(in.Entries) == 10 &&
			aws.ToString(in.Entries[0].DetailType) == "document.created" &&
			aws.ToString(in.Entries[0].Source) == events.SourceBackend
	})).Return(&eventbridge.PutEventsOutput{}, nil).Once()
	api.On("PutEvents", mock.Anything, mock.MatchedBy(func(in *eventbridge.PutEventsInput) bool {
		return len(in.Entries) == 2
	})).Return(&eventbridge.PutEventsOutput{}, nil).Once()

	p := NewPublisher(api, "mindmap-bus", zap.NewNop())
	require.NoError(t, p.PublishBatch(context.Background(), sampleEvents(12)))
	api.AssertExpectations(t)
}

func TestPublisher_RetriesThenFails(t *testing.T) {
	api := &MockEventBridge{}
	api.On("PutEvents", mock.Anything, mock.Anything).Return(nil, errors.New("throttled")).Times(3)

	p := NewPublisher(api, "mindmap-bus", zap.NewNop())
	p.backoff = time.Millisecond

	err := p.Publish(context.Background(), sampleEvents(1)[0])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
	api.AssertExpectations(t)
}
