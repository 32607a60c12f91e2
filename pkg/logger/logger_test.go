package logx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Chative-rag-assistant/server/internal/core"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLevels(t *testing.T) {
	t.Cleanup(func() { Init() })

	Init(LoggerOpts{Environment: core.Production})
	assert.Equal(t, zerolog.InfoLevel, log.Logger.GetLevel())

	Init(LoggerOpts{Environment: core.Development})
	assert.Equal(t, zerolog.DebugLevel, log.Logger.GetLevel())
}

func TestInitWritesFile(t *testing.T) {
	t.Cleanup(func() { Init() })

	path := filepath.Join(t.TempDir(), "assistant.log")
	Init(LoggerOpts{Environment: core.Production, FilePath: path})
	Info().Str("route", "retrieval").Msg("routed")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"route":"retrieval"`)
}
