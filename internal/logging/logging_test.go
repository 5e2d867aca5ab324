package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevels(t *testing.T) {
	tests := map[string]logrus.Level{
		"":      logrus.WarnLevel,
		"trace": logrus.TraceLevel,
		"DEBUG": logrus.DebugLevel,
		"info":  logrus.InfoLevel,
		"error": logrus.ErrorLevel,
	}
	for level, want := range tests {
		log, err := New(&bytes.Buffer{}, level, "text")
		require.NoError(t, err, level)
		assert.Equal(t, want, log.GetLevel(), level)
	}

	_, err := New(&bytes.Buffer{}, "loud", "text")
	assert.Error(t, err)
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "info", "json")
	require.NoError(t, err)

	log.WithField("branch", 2).Info("whiteout placed")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "whiteout placed", rec["msg"])
	assert.Equal(t, float64(2), rec["branch"])
}

func TestUnknownFormat(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "info", "xml")
	assert.Error(t, err)
}
