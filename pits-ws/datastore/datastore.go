// Package datastore holds the shared single-table conventions for the
// pits-data DynamoDB table: composite string keys, scope-index queries, and
// opaque continuation tokens.
package datastore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
)

// ScopeIndex is the GSI that groups records by their scope attribute, e.g.
// every session owned by one connection.
const ScopeIndex = "ScopeIndex"

// MaxItems caps a single page of results.
const MaxItems = 100

// Key joins key parts into a composite primary key.
func Key(parts ...string) string {
	return strings.Join(parts, "#")
}

// Page carries pagination controls for scope queries.
type Page struct {
	Limit     int64
	NextToken string
}

// QueryScope returns one page of raw items sharing the given scope, plus the
// continuation token for the next page, if any.
func QueryScope(ctx context.Context, api dynamodbiface.DynamoDBAPI, tableName, scope string, page Page) ([]map[string]*dynamodb.AttributeValue, string, error) {
	limit := page.Limit
	if limit <= 0 || limit > MaxItems {
		limit = MaxItems
	}

	input := &dynamodb.QueryInput{
		TableName:              aws.String(tableName),
		IndexName:              aws.String(ScopeIndex),
		KeyConditionExpression: aws.String("#scope = :scope"),
		ExpressionAttributeNames: map[string]*string{
			"#scope": aws.String("scope"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":scope": {S: aws.String(scope)},
		},
		Limit: aws.Int64(limit),
	}
	if page.NextToken != "" {
		startKey, err := decodeToken(page.NextToken)
		if err != nil {
			return nil, "", fmt.Errorf("invalid continuation token: %w", err)
		}
		input.ExclusiveStartKey = startKey
	}

	output, err := api.QueryWithContext(ctx, input)
	if err != nil {
		return nil, "", fmt.Errorf("failed to query scope %v: %w", scope, err)
	}

	var nextToken string
	if len(output.LastEvaluatedKey) > 0 {
		nextToken, err = encodeToken(output.LastEvaluatedKey)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode continuation token: %w", err)
		}
	}
	return output.Items, nextToken, nil
}

func encodeToken(key map[string]*dynamodb.AttributeValue) (string, error) {
	data, err := json.Marshal(key)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

func decodeToken(token string) (map[string]*dynamodb.AttributeValue, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, err
	}
	var key map[string]*dynamodb.AttributeValue
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, err
	}
	return key, nil
}
