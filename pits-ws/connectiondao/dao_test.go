package connectiondao

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
	"github.com/tj/assert"

	"github.com/pinthesky/pits-data/pits-ws/datastore"
)

const account = "012345678912"

func withTable(t *testing.T, callback func(ctx context.Context, dao *DAO)) {
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

	callback(ctx, New(api, tableName))
}

func TestDAO(t *testing.T) {
	withTable(t, func(ctx context.Context, dao *DAO) {
		conn := Connection{
			ConnectionID: "conn-1",
			Manager:      true,
			Authorized:   true,
			Claims:       map[string]interface{}{"sub": "user-1"},
			Endpoint:     "https://example/prod",
			CreateTime:   12345,
		}

		err := dao.Create(ctx, account, conn)
		assert.NoError(t, err)

		found, err := dao.Get(ctx, account, "conn-1")
		assert.NoError(t, err)
		assert.NotNil(t, found)
		assert.Equal(t, "conn-1", found.ConnectionID)
		assert.True(t, found.Manager)
		assert.Equal(t, "user-1", found.Claims["sub"])
		assert.Equal(t, "https://example/prod", found.Endpoint)

		missing, err := dao.Get(ctx, account, "ghost")
		assert.NoError(t, err)
		assert.Nil(t, missing)

		err = dao.Delete(ctx, account, "conn-1")
		assert.NoError(t, err)

		gone, err := dao.Get(ctx, account, "conn-1")
		assert.NoError(t, err)
		assert.Nil(t, gone)
	})
}

func TestBatchGet(t *testing.T) {
	withTable(t, func(ctx context.Context, dao *DAO) {
		for i := 0; i < 3; i++ {
			err := dao.Create(ctx, account, Connection{
				ConnectionID: fmt.Sprintf("conn-%v", i),
			})
			assert.NoError(t, err)
		}

		conns, err := dao.BatchGet(ctx, account, []string{"conn-0", "conn-2", "ghost"})
		assert.NoError(t, err)
		assert.Len(t, conns, 2)
	})
}

func TestList(t *testing.T) {
	withTable(t, func(ctx context.Context, dao *DAO) {
		for i := 0; i < 5; i++ {
			err := dao.Create(ctx, account, Connection{
				ConnectionID: fmt.Sprintf("conn-%v", i),
			})
			assert.NoError(t, err)
		}
		// another account partition stays invisible
		err := dao.Create(ctx, "999999999999", Connection{ConnectionID: "other"})
		assert.NoError(t, err)

		var seen []string
		page := datastore.Page{Limit: 2}
		for {
			conns, nextToken, err := dao.List(ctx, account, page)
			assert.NoError(t, err)
			for _, conn := range conns {
				seen = append(seen, conn.ConnectionID)
			}
			if nextToken == "" {
				break
			}
			page.NextToken = nextToken
		}
		assert.Len(t, seen, 5)
		assert.NotContains(t, seen, "other")
	})
}

func TestLinks(t *testing.T) {
	withTable(t, func(ctx context.Context, dao *DAO) {
		err := dao.Create(ctx, account, Connection{ConnectionID: "mgr-1", Manager: true})
		assert.NoError(t, err)

		for i := 0; i < 2; i++ {
			child := fmt.Sprintf("child-%v", i)
			err := dao.CreateWithLink(ctx, account,
				Connection{ConnectionID: child, ManagerID: "mgr-1"},
				ManagerLink{ConnectionID: child, ManagerID: "mgr-1"},
			)
			assert.NoError(t, err)
		}

		links, err := dao.Links(ctx, account, "mgr-1")
		assert.NoError(t, err)
		assert.Len(t, links, 2)

		err = dao.DeleteLink(ctx, account, "mgr-1", "child-0")
		assert.NoError(t, err)

		links, err = dao.Links(ctx, account, "mgr-1")
		assert.NoError(t, err)
		assert.Len(t, links, 1)
		assert.Equal(t, "child-1", links[0].ConnectionID)

		// the child connection record itself survives the unlink
		child, err := dao.Get(ctx, account, "child-0")
		assert.NoError(t, err)
		assert.NotNil(t, child)
	})
}
