package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_DriverSelection(t *testing.T) {
	cfg := NewForTesting()
	require.NoError(t, cfg.Validate())

	cfg.DBDriver = "postgres"
	cfg.PostgresDSN = ""
	assert.Error(t, cfg.Validate())

	cfg.PostgresDSN = "postgres://localhost:5432/workmate"
	assert.NoError(t, cfg.Validate())

	cfg.DBDriver = "oracle"
	assert.Error(t, cfg.Validate())
}

func TestValidate_Bounds(t *testing.T) {
	cfg := NewForTesting()

	cfg.ConfidenceThreshold = 0
	assert.Error(t, cfg.Validate())
	cfg.ConfidenceThreshold = 1.5
	assert.Error(t, cfg.Validate())
	cfg.ConfidenceThreshold = 0.8

	cfg.PendingTTL = 0
	assert.Error(t, cfg.Validate())
	cfg = NewForTesting()

	cfg.HistoryWindow = 0
	assert.Error(t, cfg.Validate())
}

func TestNew_ParsesEnvironment(t *testing.T) {
	t.Setenv("WORKMATE_HTTP_PORT", "9090")
	t.Setenv("WORKMATE_DB_DRIVER", "sqlite")
	t.Setenv("WORKMATE_SQLITE_PATH", ":memory:")
	t.Setenv("WORKMATE_GEMINI_MODELS", "model-a,model-b")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, ":9090", cfg.GetHTTPAddr())
	assert.Equal(t, []string{"model-a", "model-b"}, cfg.GeminiModels)
}
