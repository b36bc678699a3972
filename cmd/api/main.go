package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/leafcart/strain-admin/internal/aws"
	"github.com/leafcart/strain-admin/internal/handlers"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterAdminRoutes(r, cfg)
	handlers.RegisterCheckoutRoutes(r, cfg)

	return r
}

func loadConfig(clients *aws.AWSClients) handlers.HandlerConfig {
	tzName := os.Getenv("REPORTING_TZ")
	loc := time.UTC
	if tzName != "" {
		l, err := time.LoadLocation(tzName)
		if err != nil {
			log.Fatalf("invalid REPORTING_TZ %q: %v", tzName, err)
		}
		loc = l
	}

	var threshold int64
	if raw := os.Getenv("LOW_STOCK_THRESHOLD_GRAMS"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 {
			log.Fatalf("invalid LOW_STOCK_THRESHOLD_GRAMS %q", raw)
		}
		threshold = n
	}

	namespace := os.Getenv("METRICS_NAMESPACE")
	if namespace == "" {
		namespace = "StrainAdmin"
	}

	return handlers.HandlerConfig{
		DynamoDBClient:    clients.DynamoDB,
		CloudWatchClient:  clients.CloudWatch,
		StrainsTable:      os.Getenv("STRAINS_TABLE"),
		OrdersTable:       os.Getenv("ORDERS_TABLE"),
		IdempotencyTable:  os.Getenv("IDEMPOTENCY_TABLE"),
		MetricsNamespace:  namespace,
		ReportingLocation: loc,
		LowStockThreshold: threshold,
		TTLWindow:         48 * time.Hour,
	}
}

func main() {
	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	r := setupRouter(loadConfig(clients))

	// if RUN_LOCAL is "true", run a local HTTP server for development
	if os.Getenv("RUN_LOCAL") == "true" {
		addr := ":8080"
		log.Printf("running local server on %s", addr)
		if err := r.Run(addr); err != nil {
			log.Fatalf("failed to run local server: %v", err)
		}
		return
	}

	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (interface{}, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
