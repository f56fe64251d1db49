package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(context.Background(), envconfig.MapLookuper(map[string]string{}))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, DevSigningKey, cfg.Auth.JWTSigningKey)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "taskguard.audit", cfg.Kafka.TopicPrefix)
	assert.Equal(t, 5, cfg.Audit.BreakerThreshold)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Empty(t, cfg.Database.URL)
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := Load(context.Background(), envconfig.MapLookuper(map[string]string{
		"TASKGUARD_ADDR":  ":9090",
		"JWT_SIGNING_KEY": "s3cret",
		"TOKEN_TTL":       "15m",
		"DATABASE_URL":    "postgres://localhost/taskguard",
		"KAFKA_BROKERS":   "a:9092,b:9092",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSigningKey)
	assert.Equal(t, 15*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, "postgres://localhost/taskguard", cfg.Database.URL)
	assert.Equal(t, "a:9092,b:9092", cfg.Kafka.Brokers)
}

func TestLoad_ProductionRequiresSigningKey(t *testing.T) {
	_, err := Load(context.Background(), envconfig.MapLookuper(map[string]string{
		"ENV": "production",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SIGNING_KEY")
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cfg := Config{Auth: Auth{JWTSigningKey: "k", TokenTTL: 0, BcryptCost: 2}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TOKEN_TTL")
	assert.Contains(t, err.Error(), "BCRYPT_COST")
}
