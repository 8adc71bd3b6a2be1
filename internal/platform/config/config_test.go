package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := fromLookup(lookupFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, "approvals.audit", cfg.Kafka.AuditTopic)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, 60*time.Second, cfg.Dispatch.PollInterval)
	assert.Equal(t, 60*time.Second, cfg.Dispatch.LeaseTTL)
	assert.Equal(t, "http://localhost:8080", cfg.Dispatch.ActionBaseURL)
	assert.Equal(t, 4, cfg.Dispatch.Workers)
	assert.Equal(t, 200, cfg.Dispatch.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.Dispatch.StoreTimeout)
	assert.Equal(t, 10*time.Second, cfg.Dispatch.RenderTimeout)
	assert.Equal(t, 30*time.Second, cfg.Dispatch.SendTimeout)
	assert.Equal(t, DefaultKinds(), cfg.Dispatch.Kinds)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := fromLookup(lookupFrom(map[string]string{
		"DATABASE_DRIVER": "sqlite3",
		"DATABASE_URL":    "file:approvals.db",
		"KAFKA_BROKERS":   "k1:9092, k2:9092,",
		"POLL_INTERVAL":   "300s",
		"ACTION_BASE_URL": "https://approvals.plant.example/",
		"KINDS_FILE":      "testdata/kinds.yaml",
	}))
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 5*time.Minute, cfg.Dispatch.PollInterval)
	assert.Equal(t, "https://approvals.plant.example", cfg.Dispatch.ActionBaseURL)
	assert.Equal(t, []string{KindPurchaseRequisition}, EnabledKinds(cfg.Dispatch.Kinds))
	assert.Equal(t, "Purchase Requisition", cfg.Dispatch.Kinds[0].Subject)
}

func TestFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unparseable duration", map[string]string{"POLL_INTERVAL": "soon"}, "POLL_INTERVAL"},
		{"unparseable int", map[string]string{"DISPATCH_WORKERS": "four"}, "DISPATCH_WORKERS"},
		{"sql driver without url", map[string]string{"DATABASE_DRIVER": "postgres"}, "DATABASE_URL is required"},
		{"unknown driver", map[string]string{"DATABASE_DRIVER": "oracle"}, "unsupported DATABASE_DRIVER"},
		{"zero workers", map[string]string{"DISPATCH_WORKERS": "0"}, "DISPATCH_WORKERS must be at least 1"},
		{"relative base url", map[string]string{"ACTION_BASE_URL": "approvals/local"}, "ACTION_BASE_URL"},
		{"unknown kind in file", map[string]string{"KINDS_FILE": "testdata/kinds_unknown.yaml"}, "unknown document kind"},
		{"missing kinds file", map[string]string{"KINDS_FILE": "testdata/absent.yaml"}, "read kinds file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fromLookup(lookupFrom(tt.env))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
