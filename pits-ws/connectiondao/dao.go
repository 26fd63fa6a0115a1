package connectiondao

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/savaki/ddb"

	"github.com/pinthesky/pits-data/pits-ws/datastore"
)

// DAO provides access to the connection directory: live connections and their
// manager/child topology.
type DAO struct {
	connections *ddb.Table
	links       *ddb.Table
	api         dynamodbiface.DynamoDBAPI
	tableName   string
}

// New creates a new connections DAO.
func New(api dynamodbiface.DynamoDBAPI, tableName string) *DAO {
	client := ddb.New(api)
	return &DAO{
		connections: client.MustTable(tableName, Connection{}),
		links:       client.MustTable(tableName, ManagerLink{}),
		api:         api,
		tableName:   tableName,
	}
}

func connectionKey(account, connectionID string) string {
	return datastore.Key(account, "Connection", connectionID)
}

func connectionScope(account string) string {
	return datastore.Key(account, "Connection")
}

func linkKey(account, managerID, connectionID string) string {
	return datastore.Key(account, "Manager", managerID, connectionID)
}

func linkScope(account, managerID string) string {
	return datastore.Key(account, "Manager", managerID)
}

func (d *DAO) key(account string, conn Connection) Connection {
	conn.PK = connectionKey(account, conn.ConnectionID)
	conn.Scope = connectionScope(account)
	return conn
}

func (d *DAO) linkItem(account, managerID string, link ManagerLink) ManagerLink {
	link.PK = linkKey(account, managerID, link.ConnectionID)
	link.Scope = linkScope(account, managerID)
	link.ManagerID = managerID
	return link
}

// Create stores a connection record.
func (d *DAO) Create(ctx context.Context, account string, conn Connection) error {
	return d.connections.Put(d.key(account, conn)).RunWithContext(ctx)
}

// CreateWithLink stores a child connection and its manager link in a single
// transaction, so the link exists iff the connection does.
func (d *DAO) CreateWithLink(ctx context.Context, account string, conn Connection, link ManagerLink) error {
	connPut, err := d.TxPut(account, conn)
	if err != nil {
		return err
	}
	linkPut, err := d.TxPutLink(account, link.ManagerID, link)
	if err != nil {
		return err
	}
	_, err = d.api.TransactWriteItemsWithContext(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []*dynamodb.TransactWriteItem{connPut, linkPut},
	})
	if err != nil {
		return fmt.Errorf("failed to create linked connection %v: %w", conn.ConnectionID, err)
	}
	return nil
}

// Get retrieves a connection record. Returns nil when the connection does not
// exist.
func (d *DAO) Get(ctx context.Context, account, connectionID string) (*Connection, error) {
	var conn Connection
	if err := d.connections.Get(connectionKey(account, connectionID)).ScanWithContext(ctx, &conn); err != nil {
		if ddb.IsItemNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get connection %v: %w", connectionID, err)
	}
	if conn.ConnectionID == "" {
		return nil, nil
	}
	return &conn, nil
}

// BatchGet retrieves several connection records at once. Missing connections
// are absent from the result.
func (d *DAO) BatchGet(ctx context.Context, account string, connectionIDs []string) ([]Connection, error) {
	keys := make([]map[string]*dynamodb.AttributeValue, 0, len(connectionIDs))
	for _, id := range connectionIDs {
		keys = append(keys, map[string]*dynamodb.AttributeValue{
			"pk": {S: aws.String(connectionKey(account, id))},
		})
	}

	output, err := d.api.BatchGetItemWithContext(ctx, &dynamodb.BatchGetItemInput{
		RequestItems: map[string]*dynamodb.KeysAndAttributes{
			d.tableName: {Keys: keys},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to batch get connections: %w", err)
	}

	var conns []Connection
	for _, item := range output.Responses[d.tableName] {
		var conn Connection
		if err := dynamodbattribute.UnmarshalMap(item, &conn); err != nil {
			return nil, fmt.Errorf("failed to unmarshal connection: %w", err)
		}
		conns = append(conns, conn)
	}
	return conns, nil
}

// Delete removes a connection record.
func (d *DAO) Delete(ctx context.Context, account, connectionID string) error {
	return d.connections.Delete(connectionKey(account, connectionID)).RunWithContext(ctx)
}

// List returns one page of live connections in the account partition.
func (d *DAO) List(ctx context.Context, account string, page datastore.Page) ([]Connection, string, error) {
	items, nextToken, err := datastore.QueryScope(ctx, d.api, d.tableName, connectionScope(account), page)
	if err != nil {
		return nil, "", err
	}
	conns := make([]Connection, 0, len(items))
	for _, item := range items {
		var conn Connection
		if err := dynamodbattribute.UnmarshalMap(item, &conn); err != nil {
			return nil, "", fmt.Errorf("failed to unmarshal connection: %w", err)
		}
		conns = append(conns, conn)
	}
	return conns, nextToken, nil
}

// PutLink stores a manager link record.
func (d *DAO) PutLink(ctx context.Context, account, managerID string, link ManagerLink) error {
	return d.links.Put(d.linkItem(account, managerID, link)).RunWithContext(ctx)
}

// DeleteLink removes a child's entry from its manager's namespace.
func (d *DAO) DeleteLink(ctx context.Context, account, managerID, connectionID string) error {
	return d.links.Delete(linkKey(account, managerID, connectionID)).RunWithContext(ctx)
}

// Links returns every child connection linked under a manager.
func (d *DAO) Links(ctx context.Context, account, managerID string) ([]ManagerLink, error) {
	var links []ManagerLink
	err := d.links.Query("#Scope = ?", linkScope(account, managerID)).
		IndexName(datastore.ScopeIndex).
		FindAllWithContext(ctx, &links)
	if err != nil {
		return nil, fmt.Errorf("failed to query links for manager %v: %w", managerID, err)
	}
	return links, nil
}

// TxPut builds a transactional put of a connection record, for callers that
// commit connection updates alongside other records.
func (d *DAO) TxPut(account string, conn Connection) (*dynamodb.TransactWriteItem, error) {
	item, err := dynamodbattribute.MarshalMap(d.key(account, conn))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal connection %v: %w", conn.ConnectionID, err)
	}
	return &dynamodb.TransactWriteItem{
		Put: &dynamodb.Put{
			TableName: aws.String(d.tableName),
			Item:      item,
		},
	}, nil
}

// TxPutLink builds a transactional put of a manager link record.
func (d *DAO) TxPutLink(account, managerID string, link ManagerLink) (*dynamodb.TransactWriteItem, error) {
	item, err := dynamodbattribute.MarshalMap(d.linkItem(account, managerID, link))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal link %v: %w", link.ConnectionID, err)
	}
	return &dynamodb.TransactWriteItem{
		Put: &dynamodb.Put{
			TableName: aws.String(d.tableName),
			Item:      item,
		},
	}, nil
}
