package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/AkasshP/Deliops-Backend/internal/awsx"
)

// EventDeduper suppresses duplicate webhook deliveries.
type EventDeduper interface {
	MarkIfNew(ctx context.Context, eventID, eventType, orderID string) (bool, error)
}

// ConfirmationPublisher enqueues confirmations for the finalizer worker.
type ConfirmationPublisher interface {
	SendConfirmation(ctx context.Context, msg awsx.ConfirmationMessage) error
}

// WebhookConfig groups dependencies for the payment webhook route.
type WebhookConfig struct {
	// WebhookSecret verifies the gateway's signature header. Empty disables
	// processing entirely (dev fallback, matching an unconfigured deployment).
	WebhookSecret string
	Dedup         EventDeduper
	Publisher     ConfirmationPublisher
	Logger        *zap.Logger
}

// signatureTolerance bounds how stale a signed timestamp may be.
const signatureTolerance = 5 * time.Minute

// gatewayEvent is the subset of the webhook envelope we read.
type gatewayEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID                string            `json:"id"`
			ClientReferenceID string            `json:"client_reference_id"`
			PaymentIntent     string            `json:"payment_intent"`
			Metadata          map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// RegisterWebhookRoutes registers the payment gateway webhook endpoint.
func RegisterWebhookRoutes(r *gin.Engine, cfg WebhookConfig) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r.POST("/payments/webhook", func(c *gin.Context) {
		if cfg.WebhookSecret == "" {
			// no secret configured: acknowledge without acting
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}

		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable_body"})
			return
		}
		sig := c.GetHeader("Stripe-Signature")
		if err := VerifySignature(body, sig, cfg.WebhookSecret, time.Now()); err != nil {
			log.Warn("webhook signature rejected", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_signature"})
			return
		}

		var ev gatewayEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
			return
		}

		switch ev.Type {
		case "payment_intent.succeeded", "checkout.session.completed":
		default:
			// not a confirmation; acknowledge so the gateway stops retrying
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}

		orderID := ev.Data.Object.ClientReferenceID
		if orderID == "" {
			orderID = ev.Data.Object.Metadata["orderId"]
		}
		intentID := ev.Data.Object.PaymentIntent
		if intentID == "" {
			intentID = ev.Data.Object.ID
		}
		if orderID == "" || intentID == "" {
			log.Warn("confirmation event missing order reference", zap.String("event_id", ev.ID))
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}

		ctx := c.Request.Context()
		first, err := cfg.Dedup.MarkIfNew(ctx, ev.ID, ev.Type, orderID)
		if err != nil {
			// fall through and enqueue anyway: Finalize is idempotent, a
			// duplicate message is safe, a dropped one is not
			log.Warn("webhook dedup check failed", zap.String("event_id", ev.ID), zap.Error(err))
		} else if !first {
			c.JSON(http.StatusOK, gin.H{"received": true, "duplicate": true})
			return
		}

		msg := awsx.ConfirmationMessage{
			OrderID:         orderID,
			PaymentIntentID: intentID,
			EventID:         ev.ID,
			EventType:       ev.Type,
		}
		if err := cfg.Publisher.SendConfirmation(ctx, msg); err != nil {
			log.Error("enqueue confirmation failed", zap.String("order_id", orderID), zap.Error(err))
			// non-2xx so the gateway redelivers
			c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue_failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"received": true})
	})
}

// VerifySignature checks a Stripe-style signature header
// ("t=<unix>,v1=<hex hmac>") against the raw payload.
func VerifySignature(payload []byte, header, secret string, now time.Time) error {
	if header == "" {
		return errors.New("missing signature header")
	}

	var ts string
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts = kv[1]
		case "v1":
			sigs = append(sigs, kv[1])
		}
	}
	if ts == "" || len(sigs) == 0 {
		return errors.New("malformed signature header")
	}

	epoch, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("bad timestamp: %w", err)
	}
	age := now.Sub(time.Unix(epoch, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return errors.New("signature timestamp outside tolerance")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, s := range sigs {
		if hmac.Equal([]byte(expected), []byte(s)) {
			return nil
		}
	}
	return errors.New("no matching v1 signature")
}
