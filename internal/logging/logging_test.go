package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/kokoroflow/internal/config"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kfc.log")
	log, closer, err := New(config.Log{Level: "debug", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	log.Debug().Str("component", "test").Msg("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello"`)
	assert.Contains(t, string(data), `"component":"test"`)
	assert.Equal(t, zerolog.DebugLevel, log.GetLevel())
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, _, err := New(config.Log{Level: "loud"})
	assert.Error(t, err)
}
