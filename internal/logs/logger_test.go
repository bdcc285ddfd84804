package logs

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "warn", false)
	require.NoError(t, err)
	log.Info("hidden")
	log.Warn("shown", "k", 1)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "WARN", line["level"])
}

func TestNewPretty(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "DEBUG", true)
	require.NoError(t, err)
	log.Debug("hello")
	assert.True(t, strings.Contains(buf.String(), "msg=hello"))
}

func TestParseLogLevel(t *testing.T) {
	lvl, err := parseLogLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)
	_, err = parseLogLevel("verbose")
	assert.Error(t, err)
}
