package utils

import (
	"bytes"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
)

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "warn")
	assert.Equal(t, log.WarnLevel, l.GetLevel())

	l.Info("hidden")
	assert.Empty(t, buf.String())

	l.WithPrefix("scheduler").Warn("tick skipped", "mode", "PVP")
	assert.Contains(t, buf.String(), "tick skipped")
	assert.Contains(t, buf.String(), "PVP")
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "loud")
	assert.Equal(t, log.InfoLevel, l.GetLevel())
}
