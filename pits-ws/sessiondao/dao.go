package sessiondao

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/savaki/ddb"

	"github.com/pinthesky/pits-data/pits-ws/datastore"
)

// DAO provides access to the session registry: active device invocations
// keyed by owning connection.
type DAO struct {
	table     *ddb.Table
	api       dynamodbiface.DynamoDBAPI
	tableName string
}

// New creates a new sessions DAO.
func New(api dynamodbiface.DynamoDBAPI, tableName string) *DAO {
	return &DAO{
		table:     ddb.New(api).MustTable(tableName, Session{}),
		api:       api,
		tableName: tableName,
	}
}

func sessionKey(account, connectionID, invokeID string) string {
	return datastore.Key(account, "Session", connectionID, invokeID)
}

func sessionScope(account, connectionID string) string {
	return datastore.Key(account, "Session", connectionID)
}

// Create stores a session under the owning connection's namespace.
func (d *DAO) Create(ctx context.Context, account, connectionID string, session Session) error {
	session.PK = sessionKey(account, connectionID, session.InvokeID)
	session.Scope = sessionScope(account, connectionID)
	session.ConnectionID = connectionID
	return d.table.Put(session).RunWithContext(ctx)
}

// Get retrieves a session by invoke id. Returns nil when the session does not
// exist.
func (d *DAO) Get(ctx context.Context, account, connectionID, invokeID string) (*Session, error) {
	var session Session
	if err := d.table.Get(sessionKey(account, connectionID, invokeID)).ScanWithContext(ctx, &session); err != nil {
		if ddb.IsItemNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session %v: %w", invokeID, err)
	}
	if session.InvokeID == "" {
		return nil, nil
	}
	return &session, nil
}

// Delete removes a session by invoke id.
func (d *DAO) Delete(ctx context.Context, account, connectionID, invokeID string) error {
	return d.table.Delete(sessionKey(account, connectionID, invokeID)).RunWithContext(ctx)
}

// List returns one page of sessions owned by a connection.
func (d *DAO) List(ctx context.Context, account, connectionID string, page datastore.Page) ([]Session, string, error) {
	items, nextToken, err := datastore.QueryScope(ctx, d.api, d.tableName, sessionScope(account, connectionID), page)
	if err != nil {
		return nil, "", err
	}
	sessions := make([]Session, 0, len(items))
	for _, item := range items {
		var session Session
		if err := dynamodbattribute.UnmarshalMap(item, &session); err != nil {
			return nil, "", fmt.Errorf("failed to unmarshal session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, nextToken, nil
}

// All returns every session owned by a connection.
func (d *DAO) All(ctx context.Context, account, connectionID string) ([]Session, error) {
	var sessions []Session
	err := d.table.Query("#Scope = ?", sessionScope(account, connectionID)).
		IndexName(datastore.ScopeIndex).
		FindAllWithContext(ctx, &sessions)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions for connection %v: %w", connectionID, err)
	}
	return sessions, nil
}

// DeleteAll removes the given sessions owned by a connection.
func (d *DAO) DeleteAll(ctx context.Context, account, connectionID string, sessions []Session) error {
	// Batch delete in chunks of 25 (DynamoDB limit)
	const batchSize = 25
	for i := 0; i < len(sessions); i += batchSize {
		end := i + batchSize
		if end > len(sessions) {
			end = len(sessions)
		}
		chunk := sessions[i:end]

		writeRequests := make([]*dynamodb.WriteRequest, len(chunk))
		for j, session := range chunk {
			writeRequests[j] = &dynamodb.WriteRequest{
				DeleteRequest: &dynamodb.DeleteRequest{
					Key: map[string]*dynamodb.AttributeValue{
						"pk": {S: aws.String(sessionKey(account, connectionID, session.InvokeID))},
					},
				},
			}
		}

		unprocessed := map[string][]*dynamodb.WriteRequest{
			d.tableName: writeRequests,
		}

		const maxRetries = 5
		for attempt := 0; attempt < maxRetries; attempt++ {
			output, err := d.api.BatchWriteItemWithContext(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: unprocessed,
			})
			if err != nil {
				return fmt.Errorf("failed to batch delete sessions for connection %v: %w", connectionID, err)
			}
			if len(output.UnprocessedItems) == 0 {
				break
			}
			unprocessed = output.UnprocessedItems
			if attempt < maxRetries-1 {
				backoff := time.Duration(1<<attempt) * 100 * time.Millisecond
				timer := time.NewTimer(backoff)
				select {
				case <-ctx.Done():
					timer.Stop()
					return fmt.Errorf("context cancelled during retry for connection %v: %w", connectionID, ctx.Err())
				case <-timer.C:
				}
			} else {
				return fmt.Errorf("failed to delete all sessions for connection %v: %d items unprocessed after %d retries", connectionID, len(unprocessed[d.tableName]), maxRetries)
			}
		}
	}

	return nil
}
