package dedup

import "time"

// EventRecord is the shape persisted in the webhook-events DynamoDB table.
// One record per gateway event id; TTL reaps old entries.
type EventRecord struct {
	EventID   string    `dynamodbav:"event_id"` // PK
	EventType string    `dynamodbav:"event_type,omitempty"`
	OrderID   string    `dynamodbav:"order_id,omitempty"`
	CreatedAt time.Time `dynamodbav:"created_at"`
	ExpiresAt int64     `dynamodbav:"expires_at"` // TTL epoch seconds
}
