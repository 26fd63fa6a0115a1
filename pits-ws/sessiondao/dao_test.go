package sessiondao

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
	"github.com/pinthesky/pits-data/pits-ws/publish"
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
		session := Session{
			InvokeID: "inv-1",
			DeviceID: "cam-1",
			Event: publish.Event{
				Name:    "record",
				Context: map[string]interface{}{"quality": "high"},
				Session: &publish.SessionFlags{Start: true},
			},
		}

		err := dao.Create(ctx, account, "conn-1", session)
		assert.NoError(t, err)

		found, err := dao.Get(ctx, account, "conn-1", "inv-1")
		assert.NoError(t, err)
		assert.NotNil(t, found)
		assert.Equal(t, "conn-1", found.ConnectionID)
		assert.Equal(t, "cam-1", found.DeviceID)
		assert.Equal(t, "record", found.Event.Name)
		assert.Equal(t, "high", found.Event.Context["quality"])
		assert.True(t, found.Event.Session.Start)

		missing, err := dao.Get(ctx, account, "conn-1", "ghost")
		assert.NoError(t, err)
		assert.Nil(t, missing)

		err = dao.Delete(ctx, account, "conn-1", "inv-1")
		assert.NoError(t, err)

		gone, err := dao.Get(ctx, account, "conn-1", "inv-1")
		assert.NoError(t, err)
		assert.Nil(t, gone)
	})
}

func TestListAndDeleteAll(t *testing.T) {
	withTable(t, func(ctx context.Context, dao *DAO) {
		// enough sessions to exercise batch delete chunking
		for i := 0; i < 30; i++ {
			err := dao.Create(ctx, account, "conn-1", Session{
				InvokeID: fmt.Sprintf("inv-%v", i),
				DeviceID: "cam-1",
				Event:    publish.Event{Name: "record"},
			})
			assert.NoError(t, err)
		}
		err := dao.Create(ctx, account, "conn-2", Session{
			InvokeID: "other",
			DeviceID: "cam-2",
			Event:    publish.Event{Name: "record"},
		})
		assert.NoError(t, err)

		var seen int
		page := datastore.Page{Limit: 10}
		for {
			sessions, nextToken, err := dao.List(ctx, account, "conn-1", page)
			assert.NoError(t, err)
			seen += len(sessions)
			if nextToken == "" {
				break
			}
			page.NextToken = nextToken
		}
		assert.Equal(t, 30, seen)

		all, err := dao.All(ctx, account, "conn-1")
		assert.NoError(t, err)
		assert.Len(t, all, 30)

		err = dao.DeleteAll(ctx, account, "conn-1", all)
		assert.NoError(t, err)

		all, err = dao.All(ctx, account, "conn-1")
		assert.NoError(t, err)
		assert.Empty(t, all)

		// the other connection's sessions are untouched
		others, err := dao.All(ctx, account, "conn-2")
		assert.NoError(t, err)
		assert.Len(t, others, 1)
	})
}
