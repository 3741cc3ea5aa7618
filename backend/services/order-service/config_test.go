package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setOrderEnv(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mongo")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("GATEWAY_PROVIDER", "razorpay")
	t.Setenv("GATEWAY_KEY_SECRET", "rzp_secret")
}

func TestLoadConfigDefaults(t *testing.T) {
	setOrderEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "8083", cfg.Port)
	assert.Equal(t, "Asia/Kolkata", cfg.VenueTimezone)
	assert.Equal(t, "seatserve", cfg.Store.MongoDB)
	assert.Empty(t, cfg.ExportBucket)
	assert.False(t, cfg.UsesAWS())

	t.Setenv("EXPORT_BUCKET", "seatserve-exports")
	cfg, err = LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.UsesAWS())
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad timezone", map[string]string{"VENUE_TIMEZONE": "Mars/Olympus"}},
		{"missing gateway secret", map[string]string{"GATEWAY_KEY_SECRET": ""}},
		{"stripe without api key", map[string]string{"GATEWAY_PROVIDER": "stripe"}},
		{"production without jwt", map[string]string{"ENV": "production"}},
		{"memory store in production", map[string]string{"ENV": "production", "JWT_SECRET": "k", "STORE_DRIVER": "memory"}},
		{"kafka without brokers", map[string]string{"EVENT_BUS": "kafka"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setOrderEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

type fakeSecrets map[string]map[string]string

func (f fakeSecrets) GetSecretMap(_ context.Context, name string) (map[string]string, error) {
	if m, ok := f[name]; ok {
		return m, nil
	}
	return nil, assert.AnError
}

func TestApplySecretsReadsSharedGatewaySecret(t *testing.T) {
	cfg := &Config{GatewayKeySecret: "env-secret"}

	applySecrets(context.Background(), cfg, fakeSecrets{
		"checkout/GATEWAY": {"GATEWAY_KEY_SECRET": "managed-secret"},
		"auth/JWT":         {"JWT_SECRET": "signing-key"},
	})

	assert.Equal(t, "managed-secret", cfg.GatewayKeySecret)
	assert.Equal(t, "signing-key", cfg.JWTSecret)
	assert.Empty(t, cfg.Store.PostgresUser)
}
