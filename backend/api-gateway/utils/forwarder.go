package utils

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yashrajoria/seatserve/backend/services/common/middleware"
	"go.uber.org/zap"
)

// Identity headers are only ever set by the gateway from verified claims.
var identityHeaders = []string{"X-User-ID", "X-User-Role", "X-User-Email"}

var hopByHop = map[string]bool{
	"connection":          true,
	"keep-alive":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailers":            true,
	"transfer-encoding":   true,
	"upgrade":             true,
}

type ForwardOptions struct {
	TargetBase  string
	StripPrefix string
}

// Forwarder relays requests to the checkout and order services.
type Forwarder struct {
	client *http.Client
	logger *zap.Logger
}

func NewForwarder(timeout time.Duration, logger *zap.Logger) *Forwarder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Forwarder{client: &http.Client{Timeout: timeout}, logger: logger}
}

// To returns a handler forwarding to targetBase plus the route's *any suffix.
func (f *Forwarder) To(targetBase string) gin.HandlerFunc {
	return func(c *gin.Context) {
		f.Forward(c, ForwardOptions{TargetBase: targetBase})
	}
}

func (f *Forwarder) Forward(c *gin.Context, opts ForwardOptions) {
	targetPath := c.Param("any")
	if opts.StripPrefix != "" {
		targetPath = strings.TrimPrefix(targetPath, opts.StripPrefix)
	}

	targetURL := strings.TrimRight(opts.TargetBase, "/") + targetPath
	if c.Request.URL.RawQuery != "" {
		targetURL += "?" + c.Request.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, targetURL, c.Request.Body)
	if err != nil {
		f.logger.Error("Failed to create forward request", zap.String("url", targetURL), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create request"})
		return
	}
	req.ContentLength = c.Request.ContentLength

	for k, v := range c.Request.Header {
		if hopByHop[strings.ToLower(k)] {
			continue
		}
		req.Header[k] = v
	}
	for _, h := range identityHeaders {
		req.Header.Del(h)
	}
	if staffID := middleware.StaffID(c); staffID != "" {
		req.Header.Set("X-User-ID", staffID)
		req.Header.Set("X-User-Role", c.GetString(middleware.RoleContextKey))
		if email := c.GetString(middleware.EmailContextKey); email != "" {
			req.Header.Set("X-User-Email", email)
		}
	}
	req.Header.Set("X-Forwarded-For", c.ClientIP())
	req.Header.Set("X-Forwarded-Host", c.Request.Host)

	f.logger.Debug("Forwarding request",
		zap.String("method", c.Request.Method),
		zap.String("url", targetURL),
	)

	resp, err := f.client.Do(req)
	if err != nil {
		var status int
		var msg string
		switch {
		case errors.Is(err, context.DeadlineExceeded) || isTimeout(err):
			status, msg = http.StatusGatewayTimeout, "service timed out"
		case errors.Is(err, context.Canceled):
			// Client went away; nothing useful to write.
			c.Abort()
			return
		default:
			status, msg = http.StatusBadGateway, "service unreachable"
		}
		f.logger.Error("Failed to forward request", zap.String("url", targetURL), zap.Error(err))
		c.JSON(status, gin.H{"error": msg})
		return
	}
	defer resp.Body.Close()

	for k, v := range resp.Header {
		lower := strings.ToLower(k)
		// CORS is owned by the gateway middleware.
		if strings.HasPrefix(lower, "access-control-") || hopByHop[lower] {
			continue
		}
		c.Writer.Header()[k] = v
	}
	c.Status(resp.StatusCode)

	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		f.logger.Warn("Failed to copy response body", zap.String("url", targetURL), zap.Error(err))
	}
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
