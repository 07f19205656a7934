package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/AkasshP/Deliops-Backend/internal/awsx"
	"github.com/AkasshP/Deliops-Backend/internal/lifecycle"
)

// Finalizer is the slice of the lifecycle manager the worker drives.
type Finalizer interface {
	Finalize(ctx context.Context, orderID, intentID string) error
	MarkFailed(ctx context.Context, orderID, reason string) error
}

// Processor consumes payment confirmations and finalizes orders.
type Processor struct {
	finalizer Finalizer
	log       *zap.Logger
}

// NewProcessor creates a worker processor.
func NewProcessor(finalizer Finalizer, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{finalizer: finalizer, log: log}
}

// Handle receives an SQS batch event and processes each message.
// Returning an error makes the runtime retry the batch; after too many
// attempts the message lands in the DLQ.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.log.Error("worker error", zap.Error(err))
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg awsx.ConfirmationMessage
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	if msg.OrderID == "" || msg.PaymentIntentID == "" {
		return fmt.Errorf("confirmation missing order or intent id: %s", rec.Body)
	}

	p.log.Info("processing confirmation",
		zap.String("order_id", msg.OrderID),
		zap.String("intent_id", msg.PaymentIntentID),
		zap.String("event_id", msg.EventID))

	err := p.finalizer.Finalize(ctx, msg.OrderID, msg.PaymentIntentID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, lifecycle.ErrInsufficientStock):
		// Payment settled but stock ran out in the meantime: terminal state,
		// flagged for manual resolution. The message is consumed, not retried.
		p.log.Warn("stock exhausted after payment; failing order",
			zap.String("order_id", msg.OrderID), zap.Error(err))
		if mfErr := p.finalizer.MarkFailed(ctx, msg.OrderID, err.Error()); mfErr != nil {
			return fmt.Errorf("mark order failed: %w", mfErr)
		}
		return nil
	case errors.Is(err, lifecycle.ErrIntentOrderMismatch),
		errors.Is(err, lifecycle.ErrPaymentNotSucceeded),
		errors.Is(err, lifecycle.ErrOrderNotFound):
		// Business rejections don't improve with retries; DLQ them for a human.
		return fmt.Errorf("confirmation rejected for order %s: %w", msg.OrderID, err)
	default:
		// Transient (db/gateway) failure: retry the batch. Safe because
		// Finalize is idempotent.
		return fmt.Errorf("finalize order %s: %w", msg.OrderID, err)
	}
}
