package app

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	testCases := []struct {
		level     string
		debugSeen bool
		infoSeen  bool
	}{
		{"debug", true, true},
		{"info", false, true},
		{"warn", false, false},
		{"bogus", false, true},
	}
	for _, tc := range testCases {
		t.Run(tc.level, func(t *testing.T) {
			var buf SafeBuffer
			logger := newLogger(tc.level, "text", &buf)
			logger.Debug("debug line")
			logger.Info("info line")

			assert.Equal(t, tc.debugSeen, strings.Contains(buf.String(), "debug line"))
			assert.Equal(t, tc.infoSeen, strings.Contains(buf.String(), "info line"))
		})
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf SafeBuffer
	newLogger("info", "json", &buf).Info("hello", "k", "v")

	var line map[string]any
	require.NoError(t, json.Unmarshal([]byte(buf.String()), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "infernum", line["service"])
	assert.Equal(t, "v", line["k"])
}
