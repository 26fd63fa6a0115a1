package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi/apigatewaymanagementapiiface"
	"github.com/rs/zerolog"
	"github.com/tj/assert"
)

type fakeManagement struct {
	apigatewaymanagementapiiface.ApiGatewayManagementApiAPI
	posted  []*apigatewaymanagementapi.PostToConnectionInput
	deleted []*apigatewaymanagementapi.DeleteConnectionInput
}

func (f *fakeManagement) PostToConnectionWithContext(ctx aws.Context, input *apigatewaymanagementapi.PostToConnectionInput, opts ...request.Option) (*apigatewaymanagementapi.PostToConnectionOutput, error) {
	f.posted = append(f.posted, input)
	return &apigatewaymanagementapi.PostToConnectionOutput{}, nil
}

func (f *fakeManagement) DeleteConnectionWithContext(ctx aws.Context, input *apigatewaymanagementapi.DeleteConnectionInput, opts ...request.Option) (*apigatewaymanagementapi.DeleteConnectionOutput, error) {
	f.deleted = append(f.deleted, input)
	return &apigatewaymanagementapi.DeleteConnectionOutput{}, nil
}

func TestNotifier(t *testing.T) {
	ctx := context.Background()

	t.Run("send posts to the connection", func(t *testing.T) {
		client := &fakeManagement{}
		n := &Notifier{
			Logger: zerolog.Nop(),
			NewClient: func(endpoint string) apigatewaymanagementapiiface.ApiGatewayManagementApiAPI {
				return client
			},
		}

		assert.NoError(t, n.Send(ctx, "https://example/prod", "conn-1", []byte("hello")))
		assert.Len(t, client.posted, 1)
		assert.Equal(t, "conn-1", *client.posted[0].ConnectionId)
		assert.Equal(t, "hello", string(client.posted[0].Data))
	})

	t.Run("force close deletes the connection", func(t *testing.T) {
		client := &fakeManagement{}
		n := &Notifier{
			Logger: zerolog.Nop(),
			NewClient: func(endpoint string) apigatewaymanagementapiiface.ApiGatewayManagementApiAPI {
				return client
			},
		}

		assert.NoError(t, n.ForceClose(ctx, "https://example/prod", "conn-1"))
		assert.Len(t, client.deleted, 1)
		assert.Equal(t, "conn-1", *client.deleted[0].ConnectionId)
	})

	t.Run("clients are cached per endpoint", func(t *testing.T) {
		built := 0
		n := &Notifier{
			Logger: zerolog.Nop(),
			NewClient: func(endpoint string) apigatewaymanagementapiiface.ApiGatewayManagementApiAPI {
				built++
				return &fakeManagement{}
			},
		}

		assert.NoError(t, n.Send(ctx, "https://a/prod", "conn-1", []byte("x")))
		assert.NoError(t, n.Send(ctx, "https://a/prod", "conn-2", []byte("y")))
		assert.NoError(t, n.Send(ctx, "https://b/prod", "conn-3", []byte("z")))
		assert.Equal(t, 2, built)
	})
}

func TestIsGone(t *testing.T) {
	assert.False(t, IsGone(nil))
	assert.False(t, IsGone(errors.New("throttled")))
	assert.True(t, IsGone(errors.New("GoneException: connection no longer exists")))
	assert.True(t, IsGone(errors.New("status code: 410")))
}
