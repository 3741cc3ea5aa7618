package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	aws_pkg "github.com/yashrajoria/seatserve/backend/pkg/aws"
	"github.com/yashrajoria/seatserve/backend/pkg/events"
	"github.com/yashrajoria/seatserve/backend/pkg/gateway"
	"github.com/yashrajoria/seatserve/backend/pkg/lock"
	"github.com/yashrajoria/seatserve/backend/pkg/pricing"
	"github.com/yashrajoria/seatserve/backend/pkg/store"
	"github.com/yashrajoria/seatserve/backend/services/checkout-service/controllers"
	"github.com/yashrajoria/seatserve/backend/services/checkout-service/routes"
	"github.com/yashrajoria/seatserve/backend/services/checkout-service/services"
	"github.com/yashrajoria/seatserve/backend/services/common/logger"
	"github.com/yashrajoria/seatserve/backend/services/common/middleware"
	"go.uber.org/zap"
)

const serviceName = "checkout-service"

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

	// --- Duplicate callback lock ---
	var locker lock.Locker = lock.NewLocalLocker()
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		if redisClient, err = lock.NewRedisClient(ctx, cfg.RedisURL); err != nil {
			log.Fatal("Redis connection failed", zap.Error(err))
		}
		locker = lock.NewRedisLocker(redisClient, "seatserve:checkout:")
	}

	// --- Event bus ---
	publisher, closePublisher := buildPublisher(cfg, awsCfg)
	logged := events.NewLogged(publisher, log)

	var alerts aws_pkg.QueueSender
	if cfg.ReconciliationQueueURL != "" {
		alerts = aws_pkg.NewSQSQueue(awsCfg, cfg.ReconciliationQueueURL, log)
	}

	// --- Gateway ---
	raw := buildGateway(cfg, awsCfg)
	client := gateway.NewResilient(raw, gateway.RetryConfig{MaxRetries: cfg.GatewayMaxRetries}, log)

	policy, err := pricing.PolicyByName(cfg.PricingPolicy)
	if err != nil {
		log.Fatal("Invalid pricing policy", zap.Error(err))
	}

	// --- Dependency injection ---
	checkoutService := services.NewCheckoutService(services.Options{
		Gateway:      client,
		Transactions: repos.Transactions,
		Orders:       repos.Orders,
		Exceptions:   repos.Reconciliation,
		Locker:       locker,
		Publisher:    logged,
		Alerts:       alerts,
		Metrics:      metrics,
		Policy:       policy,
		Currency:     cfg.Currency,
		KeyID:        cfg.GatewayKeyID,
		MerchantName: cfg.MerchantName,
		Logger:       log,
	})

	var webhooks controllers.WebhookParser
	if s, ok := raw.(*gateway.Stripe); ok {
		webhooks = s
	}
	checkoutController := controllers.NewCheckoutController(checkoutService, webhooks, log)
	if sb, ok := raw.(*gateway.Sandbox); ok {
		checkoutController.WithSandbox(sb)
	}

	// --- Background workers ---
	sweeper := services.NewSweeper(repos.Transactions, logged, metrics, cfg.PendingTimeout, cfg.SweepInterval, log)
	go sweeper.Run(ctx)

	if cfg.GatewayEventsQueueURL != "" {
		relay := aws_pkg.NewSQSQueue(awsCfg, cfg.GatewayEventsQueueURL, log)
		go func() {
			_ = relay.StartPolling(ctx, services.NewRelayHandler(checkoutService, log))
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

	routes.RegisterCheckoutRoutes(r, checkoutController, cfg.RateLimitPerMinute, cfg.RateLimitBurst)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "service": serviceName, "gateway": client.Name()})
	})

	// --- HTTP server ---
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		log.Info("Checkout Service started",
			zap.String("port", cfg.Port),
			zap.String("gateway", client.Name()),
			zap.String("store", cfg.Store.Driver),
			zap.String("pricing_policy", policy.Name()),
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
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if err := repos.Close(shutdownCtx); err != nil {
		log.Error("Store close error", zap.Error(err))
	}
	log.Info("Checkout Service stopped gracefully")
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
		return gateway.NewStripe(cfg.StripeAPIKey, cfg.StripeWebhookSecret, secret, cfg.Currency)
	case gateway.ProviderSandbox:
		return gateway.NewSandbox(secret, cfg.Currency)
	default:
		return gateway.NewRazorpay(cfg.GatewayKeyID, secret, cfg.Currency,
			gateway.WithBaseURL(cfg.GatewayBaseURL),
			gateway.WithHTTPClient(&http.Client{Timeout: cfg.GatewayTimeout}),
		)
	}
}
