package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "http://checkout-service:8087", cfg.CheckoutServiceURL)
	assert.Equal(t, "http://order-service:8083", cfg.OrderServiceURL)
	assert.Equal(t, 30*time.Second, cfg.UpstreamTimeout)
	assert.False(t, cfg.SandboxEnabled)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"relative upstream", map[string]string{"ORDER_SERVICE_URL": "order-service"}},
		{"bad timeout", map[string]string{"UPSTREAM_TIMEOUT": "soon"}},
		{"zero rate limit", map[string]string{"RATE_LIMIT_PER_MINUTE": "0"}},
		{"production without secret", map[string]string{"ENV": "production"}},
		{"production sandbox", map[string]string{"ENV": "production", "JWT_SECRET": "x", "GATEWAY_PROVIDER": "sandbox"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestSandboxFollowsGatewayProvider(t *testing.T) {
	t.Setenv("GATEWAY_PROVIDER", "sandbox")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.SandboxEnabled)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
}
