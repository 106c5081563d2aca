package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "info", FormatJSON, false)
	require.NoError(t, err)

	logger.WithField("co2", 612).Info("reading")
	logger.Debug("hidden")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "reading", entry["msg"])
	assert.Equal(t, float64(612), entry["co2"])
	assert.Equal(t, "info", entry["level"])
}

func TestNewLogger_Verbose(t *testing.T) {
	logger, err := New("warn", FormatText, true)
	require.NoError(t, err)
	assert.Equal(t, log.DebugLevel, logger.GetLevel())
}

func TestNewLogger_Invalid(t *testing.T) {
	_, err := New("loud", FormatText, false)
	require.Error(t, err)

	_, err = New("info", "xml", false)
	require.Error(t, err)
}
