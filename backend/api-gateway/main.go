package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/yashrajoria/seatserve/backend/api-gateway/routes"
	"github.com/yashrajoria/seatserve/backend/api-gateway/utils"
	"github.com/yashrajoria/seatserve/backend/services/common/auth"
	"github.com/yashrajoria/seatserve/backend/services/common/logger"
	"github.com/yashrajoria/seatserve/backend/services/common/middleware"
	"go.uber.org/zap"
)

const serviceName = "api-gateway"

func main() {
	log := logger.Must(os.Getenv("ENV"), serviceName, nil)
	defer log.Sync()

	cfg, err := LoadConfig()
	if err != nil {
		log.Fatal("Config load failed", zap.Error(err))
	}

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.SecurityHeaders())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "X-Export-Location"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(middleware.RateLimitMiddleware(cfg.RateLimitPerMinute, cfg.RateLimitBurst))

	fw := utils.NewForwarder(cfg.UpstreamTimeout, log)
	routes.RegisterAllRoutes(r, fw, routes.Upstreams{
		Checkout: cfg.CheckoutServiceURL,
		Orders:   cfg.OrderServiceURL,
		Sandbox:  cfg.SandboxEnabled,
	}, auth.NewTokenVerifier(cfg.JWTSecret))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "service": serviceName})
	})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		log.Info("API Gateway started",
			zap.String("port", cfg.Port),
			zap.String("checkout", cfg.CheckoutServiceURL),
			zap.String("orders", cfg.OrderServiceURL),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Initiating graceful shutdown...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}
	log.Info("API Gateway stopped gracefully")
}
