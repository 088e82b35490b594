package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/alyavision/B2B/internal/domain"
)

// AppendLead archives a detected lead block. Each lead gets its own item
// keyed by a fresh UUID so duplicate submissions from one participant are
// kept, matching append-only ledger behavior.
func (c *Client) AppendLead(ctx context.Context, rec domain.LeadRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = c.now().UTC()
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"PK":            strValue(pkPrefixLead + uuid.NewString()),
			"SK":            strValue(skLead + createdAt.UTC().Format(time.RFC3339Nano)),
			"participantId": numValue(rec.ParticipantID),
			"text":          strValue(rec.Text),
			"createdAt":     strValue(createdAt.UTC().Format(time.RFC3339)),
		},
	})
	if err != nil {
		return fmt.Errorf("repository: AppendLead: %w", err)
	}
	return nil
}
