package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setDevEnv(t *testing.T) {
	t.Helper()
	t.Setenv("AUTH_MODE", "dev")
	t.Setenv("STORAGE_BACKEND", "memory")
}

func TestLoad_Defaults(t *testing.T) {
	setDevEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, AuthModeDev, cfg.AuthMode)
	assert.Equal(t, BackendMemory, cfg.IdempotencyBackend)
	assert.Equal(t, 40, cfg.RenewalLeadDays)
	assert.Equal(t, 365*24*time.Hour, cfg.MedicalScrubThreshold)
	assert.Equal(t, "mit.edu", cfg.MITEmailDomain)
	assert.Equal(t, 30*time.Second, cfg.JWTClockSkew)
	assert.Nil(t, cfg.KafkaBrokerList())
	assert.Equal(t, "membership.email-confirmations", cfg.KafkaConfirmationTopic)
	assert.Equal(t, 48*time.Hour, cfg.EmailConfirmationTTL)
	assert.Equal(t, "America/New_York", cfg.Location().String())
}

func TestLoad_EnvOverrides(t *testing.T) {
	setDevEnv(t)
	t.Setenv("RENEWAL_LEAD_DAYS", "30")
	t.Setenv("RENEWAL_FORBID_EARLY", "true")
	t.Setenv("MEDICAL_SCRUB_THRESHOLD", "720h")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("IDEMPOTENCY_BACKEND", "Redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.RenewalLeadDays)
	assert.True(t, cfg.RenewalForbidEarly)
	assert.Equal(t, 720*time.Hour, cfg.MedicalScrubThreshold)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokerList())
	assert.Equal(t, BackendRedis, cfg.IdempotencyBackend)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "jwt mode needs issuer", env: map[string]string{"AUTH_MODE": "jwt"}, want: "JWT_ISSUER"},
		{name: "unknown auth mode", env: map[string]string{"AUTH_MODE": "basic"}, want: "AUTH_MODE"},
		{name: "postgres needs dsn", env: map[string]string{"STORAGE_BACKEND": "postgres"}, want: "DATABASE_URL"},
		{name: "redis needs url", env: map[string]string{"IDEMPOTENCY_BACKEND": "redis"}, want: "REDIS_URL"},
		{name: "lead days range", env: map[string]string{"RENEWAL_LEAD_DAYS": "400"}, want: "RENEWAL_LEAD_DAYS"},
		{name: "unknown timezone", env: map[string]string{"MEMBERSHIP_TIMEZONE": "Mars/Olympus_Mons"}, want: "MEMBERSHIP_TIMEZONE"},
		{name: "confirmation ttl", env: map[string]string{"EMAIL_CONFIRMATION_TTL": "0s"}, want: "EMAIL_CONFIRMATION_TTL"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			setDevEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestConfig_JWT(t *testing.T) {
	t.Parallel()

	cfg := &Config{JWTIssuer: "iss", JWTAudience: "aud", JWTJWKSURL: "http://jwks", JWTClockSkew: time.Second}
	j := cfg.JWT()
	assert.Equal(t, "iss", j.Issuer)
	assert.Equal(t, "aud", j.Audience)
	assert.Equal(t, "http://jwks", j.JWKSURL)
	assert.Equal(t, time.Second, j.ClockSkew)
}
