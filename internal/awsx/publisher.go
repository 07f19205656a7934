package awsx

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// ConfirmationMessage is the payload carried from the payment webhook to the
// finalizer worker.
type ConfirmationMessage struct {
	OrderID         string `json:"order_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	EventID         string `json:"event_id,omitempty"`
	EventType       string `json:"event_type,omitempty"`
}

// Publisher wraps an SQS client and a queue URL.
type Publisher struct {
	SQS      SQSAPI
	QueueURL string
}

// NewPublisher returns a Publisher bound to a queue URL.
func NewPublisher(sqsClient SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		SQS:      sqsClient,
		QueueURL: queueURL,
	}
}

// SendConfirmation enqueues a payment confirmation for the worker.
func (p *Publisher) SendConfirmation(ctx context.Context, msg ConfirmationMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal confirmation: %w", err)
	}
	bodyStr := string(body)

	input := &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: &bodyStr,
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"order_id": {
				DataType:    awsString("String"),
				StringValue: &msg.OrderID,
			},
		},
	}
	if _, err := p.SQS.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// awsString helper
func awsString(s string) *string { return &s }
