package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// RegisterAudience records a chat id in the broadcast audience. The write
// is an overwrite, so registering the same chat twice is harmless.
func (c *Client) RegisterAudience(ctx context.Context, chatID int64) error {
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"PK":       strValue(pkAudience),
			"SK":       strValue(skMember + strconv.FormatInt(chatID, 10)),
			"chatId":   numValue(chatID),
			"joinedAt": strValue(c.now().UTC().Format(time.RFC3339)),
		},
	})
	if err != nil {
		return fmt.Errorf("repository: RegisterAudience: %w", err)
	}
	return nil
}
