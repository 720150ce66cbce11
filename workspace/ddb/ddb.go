// Package ddb provides a DynamoDB backed workspace.VersionLog.
//
// DynamoDB supplies the compare-and-swap that S3 lacks: a version is
// committed with a conditional PutItem, so concurrent registrations of the
// same dataset or model never share a version number.
//
// Table schema:
//   - Partition key: registry_key (string), e.g. "s3://bucket/prefix/datasets/glove_6B_100d"
//   - Sort key: version (number)
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name carml-versions \
//	  --attribute-definitions AttributeName=registry_key,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=registry_key,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
package ddb

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/carml/workspace"
)

// Client is the subset of the DynamoDB API used by VersionLog.
type Client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// VersionLog implements workspace.VersionLog on a DynamoDB table.
type VersionLog struct {
	client    Client
	tableName string
	baseURI   string
}

var _ workspace.VersionLog = (*VersionLog)(nil)

// New creates a VersionLog. baseURI namespaces the registry keys, typically
// "s3://bucket/prefix".
func New(client Client, tableName, baseURI string) *VersionLog {
	return &VersionLog{
		client:    client,
		tableName: tableName,
		baseURI:   baseURI,
	}
}

func (l *VersionLog) partition(key string) string {
	if l.baseURI == "" {
		return key
	}
	return l.baseURI + "/" + key
}

// Latest implements workspace.VersionLog.
func (l *VersionLog) Latest(ctx context.Context, key string) (workspace.Commit, bool, error) {
	resp, err := l.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(l.tableName),
		KeyConditionExpression: aws.String("registry_key = :key"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":key": &types.AttributeValueMemberS{Value: l.partition(key)},
		},
		ScanIndexForward: aws.Bool(false), // Descending order
		Limit:            aws.Int32(1),
		ConsistentRead:   aws.Bool(true),
	})
	if err != nil {
		return workspace.Commit{}, false, fmt.Errorf("failed to query DynamoDB: %w", err)
	}

	if len(resp.Items) == 0 {
		return workspace.Commit{}, false, nil
	}

	c, err := decodeItem(resp.Items[0])
	if err != nil {
		return workspace.Commit{}, false, err
	}
	return c, true, nil
}

// Versions implements workspace.VersionLog.
func (l *VersionLog) Versions(ctx context.Context, key string) ([]workspace.Commit, error) {
	var (
		commits []workspace.Commit
		start   map[string]types.AttributeValue
	)

	for {
		resp, err := l.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(l.tableName),
			KeyConditionExpression: aws.String("registry_key = :key"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":key": &types.AttributeValueMemberS{Value: l.partition(key)},
			},
			ScanIndexForward:  aws.Bool(true),
			ConsistentRead:    aws.Bool(true),
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query DynamoDB: %w", err)
		}

		for _, item := range resp.Items {
			c, err := decodeItem(item)
			if err != nil {
				return nil, err
			}
			commits = append(commits, c)
		}

		if len(resp.LastEvaluatedKey) == 0 {
			return commits, nil
		}
		start = resp.LastEvaluatedKey
	}
}

// Commit implements workspace.VersionLog using a conditional write.
func (l *VersionLog) Commit(ctx context.Context, key string, c workspace.Commit) error {
	if c.Version == 0 {
		return errors.New("commit: version must be positive")
	}

	_, err := l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(l.tableName),
		Item: map[string]types.AttributeValue{
			"registry_key": &types.AttributeValueMemberS{Value: l.partition(key)},
			"version":      &types.AttributeValueMemberN{Value: strconv.FormatUint(c.Version, 10)},
			"record":       &types.AttributeValueMemberS{Value: c.Record},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return workspace.ErrConcurrentModification
		}
		return fmt.Errorf("failed to commit version to DynamoDB: %w", err)
	}

	return nil
}

func decodeItem(item map[string]types.AttributeValue) (workspace.Commit, error) {
	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return workspace.Commit{}, errors.New("invalid version attribute in DynamoDB")
	}
	recordAttr, ok := item["record"].(*types.AttributeValueMemberS)
	if !ok {
		return workspace.Commit{}, errors.New("invalid record attribute in DynamoDB")
	}

	version, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return workspace.Commit{}, fmt.Errorf("failed to parse version: %w", err)
	}

	return workspace.Commit{Version: version, Record: recordAttr.Value}, nil
}
