// Package notify wraps the API Gateway management API: it delivers payloads
// to specific connections and force-closes stale ones.
package notify

import (
	"context"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi/apigatewaymanagementapiiface"
	"github.com/rs/zerolog"
)

// Notifier posts data to live connections. Management API clients are cached
// by endpoint.
type Notifier struct {
	Logger zerolog.Logger

	// NewClient overrides management client construction, for tests.
	NewClient func(endpoint string) apigatewaymanagementapiiface.ApiGatewayManagementApiAPI

	mu      sync.RWMutex
	clients map[string]apigatewaymanagementapiiface.ApiGatewayManagementApiAPI
}

// Send posts data to a connection's channel.
func (n *Notifier) Send(ctx context.Context, endpoint, connectionID string, data []byte) error {
	client := n.client(endpoint)
	_, err := client.PostToConnectionWithContext(ctx, &apigatewaymanagementapi.PostToConnectionInput{
		ConnectionId: aws.String(connectionID),
		Data:         data,
	})
	return err
}

// ForceClose terminates a connection's channel.
func (n *Notifier) ForceClose(ctx context.Context, endpoint, connectionID string) error {
	client := n.client(endpoint)
	_, err := client.DeleteConnectionWithContext(ctx, &apigatewaymanagementapi.DeleteConnectionInput{
		ConnectionId: aws.String(connectionID),
	})
	return err
}

func (n *Notifier) client(endpoint string) apigatewaymanagementapiiface.ApiGatewayManagementApiAPI {
	n.mu.RLock()
	if client, ok := n.clients[endpoint]; ok {
		n.mu.RUnlock()
		return client
	}
	n.mu.RUnlock()

	n.mu.Lock()
	defer n.mu.Unlock()

	// Double-check after acquiring write lock
	if client, ok := n.clients[endpoint]; ok {
		return client
	}
	if n.clients == nil {
		n.clients = make(map[string]apigatewaymanagementapiiface.ApiGatewayManagementApiAPI)
	}

	var client apigatewaymanagementapiiface.ApiGatewayManagementApiAPI
	if n.NewClient != nil {
		client = n.NewClient(endpoint)
	} else {
		sess := session.Must(session.NewSession(aws.NewConfig().WithEndpoint(endpoint)))
		client = apigatewaymanagementapi.New(sess)
	}
	n.clients[endpoint] = client
	return client
}

// IsGone checks if the error is a GoneException (HTTP 410), indicating the
// WebSocket connection no longer exists.
func IsGone(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "GoneException") ||
		strings.Contains(err.Error(), "410")
}
