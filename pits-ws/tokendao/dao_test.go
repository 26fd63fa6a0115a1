package tokendao

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/tj/assert"

	"github.com/pinthesky/pits-data/pits-ws/connectiondao"
	"github.com/pinthesky/pits-data/pits-ws/datastore"
)

const account = "012345678912"

func withTable(t *testing.T, callback func(ctx context.Context, api *dynamodb.DynamoDB, dao *DAO)) {
	endpoint := os.Getenv("DYNAMODB_ENDPOINT")
	if endpoint == "" {
		t.Skip("set DYNAMODB_ENDPOINT to run against DynamoDB Local")
	}

	var (
		s = session.Must(session.NewSession(aws.NewConfig().
			WithCredentials(credentials.NewStaticCredentials("blah", "blah", "")).
			WithEndpoint(endpoint).
			WithRegion("us-west-2")))
		api       = dynamodb.New(s)
		tableName = fmt.Sprintf("table-%v", time.Now().UnixNano())
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := api.CreateTableWithContext(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(tableName),
		BillingMode: aws.String(dynamodb.BillingModePayPerRequest),
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{AttributeName: aws.String("pk"), AttributeType: aws.String("S")},
			{AttributeName: aws.String("scope"), AttributeType: aws.String("S")},
		},
		KeySchema: []*dynamodb.KeySchemaElement{
			{AttributeName: aws.String("pk"), KeyType: aws.String(dynamodb.KeyTypeHash)},
		},
		GlobalSecondaryIndexes: []*dynamodb.GlobalSecondaryIndex{
			{
				IndexName: aws.String(datastore.ScopeIndex),
				KeySchema: []*dynamodb.KeySchemaElement{
					{AttributeName: aws.String("scope"), KeyType: aws.String(dynamodb.KeyTypeHash)},
				},
				Projection: &dynamodb.Projection{ProjectionType: aws.String(dynamodb.ProjectionTypeAll)},
			},
		},
	})
	assert.NoError(t, err)
	defer api.DeleteTable(&dynamodb.DeleteTableInput{TableName: aws.String(tableName)})

	assert.NoError(t, api.WaitUntilTableExistsWithContext(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	}))

	callback(ctx, api, New(api, tableName))
}

// seedToken writes a fresh token the way the control plane issues them.
func seedToken(t *testing.T, ctx context.Context, api *dynamodb.DynamoDB, tableName, tokenID string) {
	t.Helper()
	item, err := dynamodbattribute.MarshalMap(Token{
		PK:         tokenKey(account, tokenID),
		ID:         tokenID,
		CreateTime: time.Now().Unix(),
	})
	assert.NoError(t, err)

	_, err = api.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(tableName),
		Item:      item,
	})
	assert.NoError(t, err)
}

func TestDAO(t *testing.T) {
	withTable(t, func(ctx context.Context, api *dynamodb.DynamoDB, dao *DAO) {
		seedToken(t, ctx, api, dao.tableName, "token-1")

		token, err := dao.Get(ctx, account, "token-1")
		assert.NoError(t, err)
		assert.NotNil(t, token)
		assert.Equal(t, "token-1", token.ID)
		assert.False(t, token.Authorization.Activated)

		missing, err := dao.Get(ctx, account, "ghost")
		assert.NoError(t, err)
		assert.Nil(t, missing)
	})
}

func TestActivate(t *testing.T) {
	withTable(t, func(ctx context.Context, api *dynamodb.DynamoDB, dao *DAO) {
		seedToken(t, ctx, api, dao.tableName, "token-1")
		token, err := dao.Get(ctx, account, "token-1")
		assert.NoError(t, err)

		activation := Activation{
			Token: Token{
				ID:         token.ID,
				CreateTime: token.CreateTime,
				Authorization: Authorization{
					ConnectionID: "conn-1",
					Activated:    true,
				},
			},
			Connection: connectiondao.Connection{
				ConnectionID: "conn-1",
				Authorized:   true,
				Manager:      true,
			},
		}
		err = dao.Activate(ctx, account, activation)
		assert.NoError(t, err)

		// the connection lands with the same commit
		conn, err := dao.connections.Get(ctx, account, "conn-1")
		assert.NoError(t, err)
		assert.NotNil(t, conn)
		assert.True(t, conn.Authorized)

		activated, err := dao.Get(ctx, account, "token-1")
		assert.NoError(t, err)
		assert.True(t, activated.Authorization.Activated)
		assert.Equal(t, "conn-1", activated.Authorization.ConnectionID)

		// a second activation loses the race
		activation.Connection.ConnectionID = "conn-2"
		activation.Token.Authorization.ConnectionID = "conn-2"
		err = dao.Activate(ctx, account, activation)
		assert.Equal(t, ErrTokenConsumed, err)

		conn, err = dao.connections.Get(ctx, account, "conn-2")
		assert.NoError(t, err)
		assert.Nil(t, conn)
	})
}

func TestActivateWithLink(t *testing.T) {
	withTable(t, func(ctx context.Context, api *dynamodb.DynamoDB, dao *DAO) {
		seedToken(t, ctx, api, dao.tableName, "token-1")
		err := dao.connections.Create(ctx, account, connectiondao.Connection{
			ConnectionID: "mgr-1",
			Manager:      true,
			Authorized:   true,
		})
		assert.NoError(t, err)

		err = dao.Activate(ctx, account, Activation{
			Token: Token{
				ID:            "token-1",
				Authorization: Authorization{ConnectionID: "conn-1", Activated: true},
			},
			Connection: connectiondao.Connection{
				ConnectionID: "conn-1",
				ManagerID:    "mgr-1",
				Authorized:   true,
			},
			Link: &connectiondao.ManagerLink{
				ConnectionID: "conn-1",
				ManagerID:    "mgr-1",
				Authorized:   true,
			},
		})
		assert.NoError(t, err)

		links, err := dao.connections.Links(ctx, account, "mgr-1")
		assert.NoError(t, err)
		assert.Len(t, links, 1)
		assert.Equal(t, "conn-1", links[0].ConnectionID)
	})
}
