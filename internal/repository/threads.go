package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// GetThread looks up the cached thread id for a participant. A mapping
// whose TTL has already passed is reported as absent: DynamoDB expiry is
// lazy and an expired thread must not be resurrected.
func (c *Client) GetThread(ctx context.Context, participantID int64) (string, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": strValue(userPK(participantID)),
			"SK": strValue(skThread),
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", false, fmt.Errorf("repository: GetThread: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return "", false, nil
	}

	threadID, err := strAttr(out.Item, "threadId")
	if err != nil {
		return "", false, fmt.Errorf("repository: GetThread decode: %w", err)
	}
	if expires, err := numAttr(out.Item, "ttl"); err == nil && expires <= c.now().Unix() {
		return "", false, nil
	}
	return threadID, true, nil
}

// PutThread stores the participant->thread mapping, replacing any previous
// one, with the given expiry.
func (c *Client) PutThread(ctx context.Context, participantID int64, threadID string, ttl time.Duration) error {
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"PK":        strValue(userPK(participantID)),
			"SK":        strValue(skThread),
			"threadId":  strValue(threadID),
			"createdAt": strValue(c.now().UTC().Format(time.RFC3339)),
			"ttl":       numValue(c.now().Add(ttl).Unix()),
		},
	})
	if err != nil {
		return fmt.Errorf("repository: PutThread: %w", err)
	}
	return nil
}

// DeleteThread removes the mapping. Deleting a missing item is a no-op on
// the DynamoDB side, which keeps resets idempotent.
func (c *Client) DeleteThread(ctx context.Context, participantID int64) error {
	_, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": strValue(userPK(participantID)),
			"SK": strValue(skThread),
		},
	})
	if err != nil {
		return fmt.Errorf("repository: DeleteThread: %w", err)
	}
	return nil
}
