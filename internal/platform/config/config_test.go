package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookup(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func credentials() map[string]string {
	return map[string]string{
		"ALLOGGIATI_USERNAME": "hotel01",
		"ALLOGGIATI_PASSWORD": "secret",
		"ALLOGGIATI_WSKEY":    "key",
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(lookup(credentials()))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "https://alloggiatiweb.poliziadistato.it/service/service.asmx", cfg.Portal.Endpoint)
	assert.Equal(t, 30*time.Second, cfg.Portal.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.Portal.SafetyMargin)
	assert.Equal(t, 1000, cfg.Portal.MaxBatchSize)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.False(t, cfg.Retry.RetrySubmit)
	assert.Empty(t, cfg.Redis.URL)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, 24*time.Hour, cfg.Tables.CacheTTL)
}

func TestLoad_Overrides(t *testing.T) {
	vars := credentials()
	vars["ALLOGGIATI_TIMEOUT"] = "10s"
	vars["ALLOGGIATI_RETRY_SUBMIT"] = "true"
	vars["ALLOGGIATI_MAX_BATCH"] = "50"
	vars["KAFKA_BROKERS"] = "kafka-1:9092, kafka-2:9092,"

	cfg, err := Load(lookup(vars))
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Portal.Timeout)
	assert.True(t, cfg.Retry.RetrySubmit)
	assert.Equal(t, 50, cfg.Portal.MaxBatchSize)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_MissingCredentials(t *testing.T) {
	_, err := Load(lookup(map[string]string{"ALLOGGIATI_USERNAME": "hotel01"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ALLOGGIATI_PASSWORD, ALLOGGIATI_WSKEY")
}

func TestLoad_InvalidValues(t *testing.T) {
	vars := credentials()
	vars["ALLOGGIATI_TIMEOUT"] = "thirty"
	vars["ALLOGGIATI_MAX_BATCH"] = "0"

	_, err := Load(lookup(vars))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ALLOGGIATI_TIMEOUT")
	assert.Contains(t, err.Error(), "ALLOGGIATI_MAX_BATCH must be positive")
}
