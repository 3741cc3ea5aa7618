package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/gin-gonic/gin"
	aws_pkg "github.com/yashrajoria/seatserve/backend/pkg/aws"
	"github.com/yashrajoria/seatserve/backend/pkg/events"
	"github.com/yashrajoria/seatserve/backend/pkg/gateway"
	"github.com/yashrajoria/seatserve/backend/pkg/store"
	"github.com/yashrajoria/seatserve/backend/services/common/auth"
	"github.com/yashrajoria/seatserve/backend/services/common/logger"
	"github.com/yashrajoria/seatserve/backend/services/common/middleware"
	"github.com/yashrajoria/seatserve/backend/services/order-service/controllers"
	"github.com/yashrajoria/seatserve/backend/services/order-service/routes"
	"github.com/yashrajoria/seatserve/backend/services/order-service/services"
	"go.uber.org/zap"
)

const serviceName = "order-service"

func main() {
	log := logger.Must(os.Getenv("ENV"), serviceName, nil)

	cfg, err := LoadConfig()
	if err != nil {
		log.Fatal("Config load failed", zap.Error(err))
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// --- AWS setup ---
	var awsCfg sdkaws.Config
	if cfg.UsesAWS() {
		if awsCfg, err = aws_pkg.LoadAWSConfig(ctx); err != nil {
			log.Fatal("Failed to load AWS config", zap.Error(err))
		}
	}
	if cfg.CloudWatchEnabled {
		shipper, err := aws_pkg.NewLogShipper(ctx, awsCfg, os.Getenv("CLOUDWATCH_LOG_GROUP"), serviceName)
		if err != nil {
			log.Warn("CloudWatch log shipping disabled", zap.Error(err))
		} else {
			log = logger.Must(cfg.Env, serviceName, shipper)
		}
	}
	defer log.Sync()

	var metrics aws_pkg.Counter = aws_pkg.NopCounter{}
	if cfg.CloudWatchEnabled {
		metrics = aws_pkg.NewMetricsClient(awsCfg, os.Getenv("CLOUDWATCH_NAMESPACE"), true)
	}

	// --- Storage ---
	repos, err := store.Open(ctx, cfg.Store, log)
	if err != nil {
		log.Fatal("Store connection failed", zap.Error(err))
	}

	// --- Event bus ---
	publisher, closePublisher := buildPublisher(cfg, awsCfg)
	logged := events.NewLogged(publisher, log)

	var uploader aws_pkg.ObjectUploader
	if cfg.ExportBucket != "" {
		uploader = aws_pkg.NewS3Bucket(awsCfg, cfg.ExportBucket)
	}

	// --- Completion guard ---
	verifier := gateway.NewResilient(buildGateway(cfg, awsCfg), gateway.RetryConfig{MaxRetries: cfg.GatewayMaxRetries}, log)
	guard := services.NewSignatureGuard(verifier)

	loc, err := time.LoadLocation(cfg.VenueTimezone)
	if err != nil {
		log.Fatal("Invalid venue timezone", zap.Error(err))
	}

	// --- Dependency injection ---
	fulfillmentService := services.NewFulfillmentService(services.Options{
		Orders:       repos.Orders,
		Transactions: repos.Transactions,
		Exceptions:   repos.Reconciliation,
		Guard:        guard,
		Uploader:     uploader,
		Publisher:    logged,
		Metrics:      metrics,
		Location:     loc,
		MerchantName: cfg.MerchantName,
		Logger:       log,
	})
	orderController := controllers.NewOrderController(fulfillmentService, log)

	// --- Background workers ---
	if cfg.ReconciliationQueueURL != "" {
		alerts := aws_pkg.NewSQSQueue(awsCfg, cfg.ReconciliationQueueURL, log)
		go func() {
			_ = alerts.StartPolling(ctx, services.NewAlertHandler(fulfillmentService, metrics, log))
		}()
	}

	// --- HTTP router ---
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))
	if cfg.CloudWatchEnabled {
		r.Use(middleware.MetricsMiddleware(metrics, serviceName))
	}
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(middleware.Timeout(30 * time.Second))

	routes.RegisterOrderRoutes(r, orderController, auth.NewTokenVerifier(cfg.JWTSecret))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "service": serviceName, "guard": guard.Name()})
	})

	// --- HTTP server ---
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		log.Info("Order Service started",
			zap.String("port", cfg.Port),
			zap.String("store", cfg.Store.Driver),
			zap.String("guard", guard.Name()),
			zap.String("venue_timezone", cfg.VenueTimezone),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Initiating graceful shutdown...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}
	if err := closePublisher(); err != nil {
		log.Error("Event publisher close error", zap.Error(err))
	}
	if err := repos.Close(shutdownCtx); err != nil {
		log.Error("Store close error", zap.Error(err))
	}
	log.Info("Order Service stopped gracefully")
}

func buildPublisher(cfg *Config, awsCfg sdkaws.Config) (events.Publisher, func() error) {
	switch cfg.EventBus {
	case "sns":
		return events.NewSNSPublisher(aws_pkg.NewSNSClient(awsCfg), cfg.EventsSNSTopicARN), func() error { return nil }
	case "kafka":
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		return kp, kp.Close
	default:
		return events.NopPublisher{}, func() error { return nil }
	}
}

// buildGateway returns a verify-only client for the configured provider.
func buildGateway(cfg *Config, awsCfg sdkaws.Config) gateway.Client {
	var secret gateway.SecretSource = gateway.StaticSecret(cfg.GatewayKeySecret)
	if cfg.GatewaySecretName != "" {
		secret = gateway.ManagedSecret{
			Getter: aws_pkg.NewSecretsClient(awsCfg),
			Name:   cfg.GatewaySecretName,
			Field:  "GATEWAY_KEY_SECRET",
		}
	}

	switch cfg.GatewayProvider {
	case gateway.ProviderStripe:
		return gateway.NewStripe(cfg.StripeAPIKey, "", secret, cfg.Currency)
	case gateway.ProviderSandbox:
		return gateway.NewSandbox(secret, cfg.Currency)
	default:
		return gateway.NewRazorpay(cfg.GatewayKeyID, secret, cfg.Currency,
			gateway.WithBaseURL(cfg.GatewayBaseURL),
			gateway.WithHTTPClient(&http.Client{Timeout: cfg.GatewayTimeout}),
		)
	}
}
