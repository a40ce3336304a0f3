package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerTo(&buf, false)

	log.Debugf("hidden %d\n", 1)
	log.Infof("shown %d\n", 2)
	log.Warnf("careful")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown 2")
	assert.Contains(t, out, "level=warning")
	assert.Equal(t, 2, strings.Count(out, "\n"))
}

func TestLoggerDebugAndFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerTo(&buf, true).WithField("source", "demo")

	log.Debugf("GET %s", "https://x")

	assert.Contains(t, buf.String(), "GET https://x")
	assert.Contains(t, buf.String(), "source=demo")
	assert.True(t, log.Debug)
}
