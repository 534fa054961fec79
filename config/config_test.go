package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.env")

	t.Run("Defaults", func(t *testing.T) {
		for _, key := range []string{"FORUM_PORT", "DATABASE_URL", "SESSION_LIFETIME", "LOG_LEVEL", "EXPERT_WORKFLOW_ENABLED", "EXPERT_POSTS_REQUIRE_APPROVAL"} {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
		cfg, err := Load(missing)
		require.NoError(t, err)
		assert.Equal(t, "8080", cfg.Port)
		assert.Equal(t, ":8080", cfg.Addr())
		assert.Equal(t, 24*time.Hour, cfg.SessionLifetime)
		assert.True(t, cfg.ExpertWorkflowEnabled)
		assert.False(t, cfg.ExpertPostsRequireApproval)
		level, err := cfg.Level()
		require.NoError(t, err)
		assert.Equal(t, zerolog.InfoLevel, level)
	})

	t.Run("Environment", func(t *testing.T) {
		t.Setenv("FORUM_PORT", "9000")
		t.Setenv("SESSION_LIFETIME", "30m")
		t.Setenv("EXPERT_WORKFLOW_ENABLED", "off")
		t.Setenv("EXPERT_POSTS_REQUIRE_APPROVAL", "yes")
		t.Setenv("LOG_LEVEL", "DEBUG")
		cfg, err := Load(missing)
		require.NoError(t, err)
		assert.Equal(t, "9000", cfg.Port)
		assert.Equal(t, 30*time.Minute, cfg.SessionLifetime)
		assert.False(t, cfg.ExpertWorkflowEnabled)
		assert.True(t, cfg.ExpertPostsRequireApproval)
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("EnvFile", func(t *testing.T) {
		t.Setenv("EXPERT_POSTS_REQUIRE_APPROVAL", "")
		os.Unsetenv("EXPERT_POSTS_REQUIRE_APPROVAL")
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("EXPERT_POSTS_REQUIRE_APPROVAL=true\n"), 0o600))
		t.Cleanup(func() { os.Unsetenv("EXPERT_POSTS_REQUIRE_APPROVAL") })

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.True(t, cfg.ExpertPostsRequireApproval)
	})

	t.Run("InvalidDuration", func(t *testing.T) {
		t.Setenv("SESSION_LIFETIME", "soon")
		_, err := Load(missing)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "SESSION_LIFETIME")
	})

	t.Run("InvalidLogLevel", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "loud")
		_, err := Load(missing)
		assert.Error(t, err)
	})

	t.Run("UnknownBoolFallsBack", func(t *testing.T) {
		t.Setenv("EXPERT_WORKFLOW_ENABLED", "perhaps")
		assert.True(t, envBool("EXPERT_WORKFLOW_ENABLED", true))
	})
}
