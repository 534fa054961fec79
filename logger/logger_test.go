package logger_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rexlx/expertposts/logger"
)

func TestMakeFromWriter(t *testing.T) {
	var buf bytes.Buffer
	logs, err := logger.New().FromWriter(&buf).WithLevel(zerolog.WarnLevel).Make()
	require.NoError(t, err)

	logs.Logger.Info().Msg("hidden")
	logs.Logger.Warn().Str("event", "expert_post_approval_rejected").Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"event":"expert_post_approval_rejected"`)
	assert.Contains(t, out, `"time"`)
	assert.NoError(t, logs.Close())
}

func TestMakeFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forum.log")
	logs, err := logger.New().FromPath(path).Make()
	require.NoError(t, err)
	logs.Logger.Info().Msg("written")
	require.NoError(t, logs.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written")
}
