// Package dedup suppresses duplicate webhook deliveries before they reach the
// confirmation queue. Finalize is idempotent on its own; this store only keeps
// redelivered gateway events from producing queue noise.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/AkasshP/Deliops-Backend/internal/awsx"
)

// Store records seen gateway event ids in DynamoDB.
type Store struct {
	client    awsx.DynamoDBAPI
	tableName string
	ttlWindow time.Duration
	nowFunc   func() time.Time
}

// NewStore returns a configured Store.
// ttlWindow bounds how long an event id is remembered (e.g. 48*time.Hour).
func NewStore(client awsx.DynamoDBAPI, tableName string, ttlWindow time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

// MarkIfNew records the event id with a conditional put.
// Returns (true, nil) if this is the first delivery of the event.
// Returns (false, nil) if the event was already seen.
func (s *Store) MarkIfNew(ctx context.Context, eventID, eventType, orderID string) (bool, error) {
	now := s.nowFunc()
	rec := EventRecord{
		EventID:   eventID,
		EventType: eventType,
		OrderID:   orderID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttlWindow).Unix(),
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return false, fmt.Errorf("marshal record: %w", err)
	}

	input := &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
		// Only create when attribute_not_exists(event_id)
		ConditionExpression: awsString("attribute_not_exists(event_id)"),
	}

	if _, err = s.client.PutItem(ctx, input); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException" {
			return false, nil
		}
		return false, fmt.Errorf("put item: %w", err)
	}
	return true, nil
}

// Get retrieves a recorded event by id. If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, eventID string) (*EventRecord, error) {
	input := &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"event_id": &types.AttributeValueMemberS{Value: eventID},
		},
	}
	out, err := s.client.GetItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec EventRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &rec, nil
}

// Helper
func awsString(s string) *string { return &s }
