package apigateway

import (
	"context"
	"errors"
	"testing"

	"mindmap/application/ports"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	apigwTypes "github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

type MockManagementAPI struct {
	mock.Mock
}

func (m *MockManagementAPI) PostToConnection(ctx context.Context, params *apigatewaymanagementapi.PostToConnectionInput, optFns ...func(*apigatewaymanagementapi.Options)) (*apigatewaymanagementapi.PostToConnectionOutput, error) {
	args := m.Called(aws.ToString(params.ConnectionId), string(params.Data))
	return &apigatewaymanagementapi.PostToConnectionOutput{}, args.Error(0)
}

func TestTransport_Deliver(t *testing.T) {
	tests := []struct {
		name      string
		apiErr    error
		droppable bool
		wantErr   error
		wantNil   bool
	}{
		{name: "delivered", wantNil: true},
		{name: "gone", apiErr: &apigwTypes.GoneException{}, wantErr: ports.ErrConnectionGone},
		{name: "throttled droppable", apiErr: &apigwTypes.LimitExceededException{}, droppable: true, wantNil: true},
		{name: "throttled reliable", apiErr: &apigwTypes.LimitExceededException{}},
		{name: "other", apiErr: errors.New("boom")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &MockManagementAPI{}
			api.On("PostToConnection", "conn-1", `{"type":"node-moved"}`).Return(tt.apiErr)

			tr := NewTransport(api, zap.NewNop())
			err := tr.Deliver(context.Background(), "conn-1", ports.Delivery{
				Data:      []byte(`{"type":"node-moved"}`),
				Droppable: tt.droppable,
			})

			switch {
			case tt.wantNil:
				assert.NoError(t, err)
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			default:
				assert.Error(t, err)
				assert.NotErrorIs(t, err, ports.ErrConnectionGone)
			}
			api.AssertExpectations(t)
		})
	}
}
