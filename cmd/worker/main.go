package main

import (
	"context"
	"os"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/AkasshP/Deliops-Backend/internal/awsx"
	"github.com/AkasshP/Deliops-Backend/internal/catalog"
	"github.com/AkasshP/Deliops-Backend/internal/lifecycle"
	"github.com/AkasshP/Deliops-Backend/internal/metrics"
	"github.com/AkasshP/Deliops-Backend/internal/orders"
	"github.com/AkasshP/Deliops-Backend/internal/payments"
	"github.com/AkasshP/Deliops-Backend/internal/pricing"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx := context.Background()

	db, err := orders.Open(&orders.Credentials{
		Host:     envOr("PGHOST", "localhost"),
		Port:     envIntOr("PGPORT", 5432),
		User:     envOr("PGUSER", "postgres"),
		Password: os.Getenv("PGPASSWORD"),
		DBName:   envOr("PGDATABASE", "deliops"),
	})
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}

	clients, err := awsx.NewClients(ctx)
	if err != nil {
		log.Fatal("failed to init aws clients", zap.Error(err))
	}

	taxRate := decimal.Zero
	if raw := os.Getenv("TAX_RATE"); raw != "" {
		taxRate, err = decimal.NewFromString(raw)
		if err != nil {
			log.Fatal("bad TAX_RATE", zap.String("value", raw), zap.Error(err))
		}
	}

	manager := lifecycle.NewManager(lifecycle.Config{
		Ledger:  orders.NewStore(db),
		Catalog: catalog.NewPostgresReader(db),
		Pricer:  pricing.NewEngine(taxRate, envOr("CURRENCY", "USD")),
		Gateway: payments.NewStripeGateway(os.Getenv("STRIPE_SECRET_KEY")),
		Metrics: metrics.NewEmitter(clients.CloudWatch, log),
		Logger:  log,
	})

	p := NewProcessor(manager, log)

	// If RUN_LOCAL=true, simulate a single SQS event for local testing.
	if os.Getenv("RUN_LOCAL") == "true" {
		testBody := os.Getenv("LOCAL_SQS_BODY")
		if testBody == "" {
			testBody = `{"order_id":"local-order-1","payment_intent_id":"pi_local_1"}`
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{{Body: testBody}},
		}
		if err := p.Handle(ctx, event); err != nil {
			log.Fatal("local handler error", zap.Error(err))
		}
		return
	}

	lambda.Start(p.Handle)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
