package main

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/AkasshP/Deliops-Backend/internal/awsx"
	"github.com/AkasshP/Deliops-Backend/internal/catalog"
	"github.com/AkasshP/Deliops-Backend/internal/dedup"
	"github.com/AkasshP/Deliops-Backend/internal/handlers"
	"github.com/AkasshP/Deliops-Backend/internal/lifecycle"
	"github.com/AkasshP/Deliops-Backend/internal/metrics"
	"github.com/AkasshP/Deliops-Backend/internal/orders"
	"github.com/AkasshP/Deliops-Backend/internal/payments"
	"github.com/AkasshP/Deliops-Backend/internal/pricing"
)

func setupRouter(ordersCfg handlers.OrdersConfig, webhookCfg handlers.WebhookConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterOrdersRoutes(r, ordersCfg)
	handlers.RegisterWebhookRoutes(r, webhookCfg)

	return r
}

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx := context.Background()

	cred := &orders.Credentials{
		Host:              envOr("PGHOST", "localhost"),
		Port:              envIntOr("PGPORT", 5432),
		User:              envOr("PGUSER", "postgres"),
		Password:          os.Getenv("PGPASSWORD"),
		DBName:            envOr("PGDATABASE", "deliops"),
		MigrationsDirPath: os.Getenv("MIGRATIONS_DIR"),
	}
	db, err := orders.Open(cred)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	if cred.MigrationsDirPath != "" {
		if err := orders.RunMigrations(db, cred.MigrationsDirPath); err != nil {
			log.Fatal("migrations failed", zap.Error(err))
		}
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

	ledger := orders.NewStore(db)
	manager := lifecycle.NewManager(lifecycle.Config{
		Ledger:  ledger,
		Catalog: catalog.NewPostgresReader(db),
		Pricer:  pricing.NewEngine(taxRate, envOr("CURRENCY", "USD")),
		Gateway: payments.NewStripeGateway(os.Getenv("STRIPE_SECRET_KEY")),
		Metrics: metrics.NewEmitter(clients.CloudWatch, log),
		Logger:  log,
	})

	ordersCfg := handlers.OrdersConfig{
		Service: manager,
		Reader:  ledger,
		Logger:  log,
	}
	webhookCfg := handlers.WebhookConfig{
		WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		Dedup:         dedup.NewStore(clients.DynamoDB, os.Getenv("WEBHOOK_DEDUP_TABLE"), 48*time.Hour),
		Publisher:     awsx.NewPublisher(clients.SQS, os.Getenv("PAYMENT_EVENTS_QUEUE_URL")),
		Logger:        log,
	}

	r := setupRouter(ordersCfg, webhookCfg)

	// if RUN_LOCAL is set to "true", run a local HTTP server for development.
	if os.Getenv("RUN_LOCAL") == "true" {
		addr := ":8080"
		log.Info("running local server", zap.String("addr", addr))
		if err := r.Run(addr); err != nil {
			log.Fatal("failed to run local server", zap.Error(err))
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (interface{}, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
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
