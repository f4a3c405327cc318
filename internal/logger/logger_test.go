package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONWritesStructuredEvents(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(&buf, "debug", "json")
	require.NoError(t, err)

	log.Info().Str("component", "test").Msg("hello")

	var event map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, "hello", event["message"])
	assert.Equal(t, "test", event["component"])
	assert.Equal(t, "info", event["level"])
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(&buf, "WARN", "json")
	require.NoError(t, err)

	log.Info().Msg("dropped")
	assert.Zero(t, buf.Len())
	assert.Equal(t, zerolog.WarnLevel, log.GetLevel())
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := NewWithWriter(&bytes.Buffer{}, "info", "xml")
	assert.Error(t, err)
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := NewWithWriter(&bytes.Buffer{}, "loud", "console")
	assert.Error(t, err)
}
