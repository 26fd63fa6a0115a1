package tokendao

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/savaki/ddb"

	"github.com/pinthesky/pits-data/pits-ws/connectiondao"
	"github.com/pinthesky/pits-data/pits-ws/datastore"
)

// DAO provides access to exchange tokens.
type DAO struct {
	table       *ddb.Table
	connections *connectiondao.DAO
	api         dynamodbiface.DynamoDBAPI
	tableName   string
}

// New creates a new tokens DAO.
func New(api dynamodbiface.DynamoDBAPI, tableName string) *DAO {
	return &DAO{
		table:       ddb.New(api).MustTable(tableName, Token{}),
		connections: connectiondao.New(api, tableName),
		api:         api,
		tableName:   tableName,
	}
}

func tokenKey(account, tokenID string) string {
	return datastore.Key(account, "Token", tokenID)
}

// Get retrieves a token. Returns nil when the token does not exist.
func (d *DAO) Get(ctx context.Context, account, tokenID string) (*Token, error) {
	var token Token
	if err := d.table.Get(tokenKey(account, tokenID)).ScanWithContext(ctx, &token); err != nil {
		if ddb.IsItemNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get token %v: %w", tokenID, err)
	}
	if token.ID == "" {
		return nil, nil
	}
	return &token, nil
}

// Activation is the multi-record commit performed by a successful login: the
// token is marked consumed, the connection becomes authorized, and the
// optional manager link is written with the same snapshot. Either all records
// land or none do.
type Activation struct {
	Token      Token
	Connection connectiondao.Connection
	Link       *connectiondao.ManagerLink
}

// ErrTokenConsumed indicates the token was activated by a concurrent login
// between the read and the commit.
var ErrTokenConsumed = fmt.Errorf("token already activated")

// Activate commits the activation transactionally. The token write is guarded
// by a condition that the token has not been activated, so a token activates
// at most once regardless of concurrent timing.
func (d *DAO) Activate(ctx context.Context, account string, activation Activation) error {
	token := activation.Token
	token.PK = tokenKey(account, token.ID)
	token.Authorization.Activated = true
	tokenItem, err := dynamodbattribute.MarshalMap(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token %v: %w", token.ID, err)
	}

	items := []*dynamodb.TransactWriteItem{
		{
			Put: &dynamodb.Put{
				TableName:           aws.String(d.tableName),
				Item:                tokenItem,
				ConditionExpression: aws.String("#auth.#act = :false"),
				ExpressionAttributeNames: map[string]*string{
					"#auth": aws.String("authorization"),
					"#act":  aws.String("activated"),
				},
				ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
					":false": {BOOL: aws.Bool(false)},
				},
			},
		},
	}

	connPut, err := d.connections.TxPut(account, activation.Connection)
	if err != nil {
		return err
	}
	items = append(items, connPut)

	if activation.Link != nil {
		linkPut, err := d.connections.TxPutLink(account, activation.Link.ManagerID, *activation.Link)
		if err != nil {
			return err
		}
		items = append(items, linkPut)
	}

	_, err = d.api.TransactWriteItemsWithContext(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		if isConditionFailure(err) {
			return ErrTokenConsumed
		}
		return fmt.Errorf("failed to activate token %v: %w", token.ID, err)
	}
	return nil
}

func isConditionFailure(err error) bool {
	return strings.Contains(err.Error(), "ConditionalCheckFailed") ||
		strings.Contains(err.Error(), dynamodb.ErrCodeTransactionCanceledException)
}
