package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/faculty-harvest/internal/config"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/test")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.WorkerCount)
	assert.Equal(t, 1536, cfg.EmbeddingDimensions)
	assert.Equal(t, "postgres://localhost/test", cfg.PostgresDSN)
	assert.True(t, cfg.BrowserEnabled)
}

func TestLoadRequiresPostgresDSN(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")

	_, err := config.Load()
	require.Error(t, err)
}
