package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenNoEnv(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultTokenBudget(), cfg.TokenBudget)
	assert.True(t, cfg.Vision.Enabled)
	assert.Equal(t, "facts", cfg.Facts.CollectionName)
}

func TestLoad_EnvOverridesWinOverDefaults(t *testing.T) {
	t.Setenv("VISION_MAX_REGIONS", "5")
	t.Setenv("DEEPSEEK_OCR_ENABLED", "false")
	t.Setenv("AUTODEV_ALLOWED_REPOS", "org/a, org/b ,org/c")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Vision.MaxRegionsPerRequest)
	assert.False(t, cfg.Vision.Enabled)
	assert.Equal(t, []string{"org/a", "org/b", "org/c"}, cfg.Autodev.AllowlistRepos)
}

func TestLoad_FileThenEnvWins(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"
	require.NoError(t, os.WriteFile(path, []byte("vision:\n  max_regions_per_request: 9\n"), 0o644))
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("VISION_MAX_REGIONS", "20")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Vision.MaxRegionsPerRequest)
}
