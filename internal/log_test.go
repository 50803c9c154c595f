package internal

import (
	"bytes"
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
		ok   bool
	}{
		{"ERROR", LogLevelError, true},
		{"warn", LogLevelWarn, true},
		{" Debug ", LogLevelDebug, true},
		{"TRACE", LogLevelTrace, true},
		{"verbose", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseLogLevel(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got, tt.in)
		}
	}
}

func TestLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	flags := log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	defer func() {
		log.SetOutput(os.Stderr)
		log.SetFlags(flags)
	}()

	l := NewLogger(LogLevelWarn).With("engine")
	l.Info("hidden")
	l.Warn("shown %d", 1)

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "[WARN] [engine] shown 1")

	l.SetLevel(LogLevelDebug)
	l.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestWithSharesLevel(t *testing.T) {
	var buf bytes.Buffer
	flags := log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	defer func() {
		log.SetOutput(os.Stderr)
		log.SetFlags(flags)
	}()

	parent := NewLogger(LogLevelInfo)
	child := parent.With("asymptotic")
	grandchild := child.With("toyfit")

	parent.SetLevel(LogLevelTrace)
	assert.Equal(t, LogLevelTrace, child.GetLevel())
	grandchild.Trace("reached")
	assert.Contains(t, buf.String(), "[TRACE] [toyfit] reached")

	child.SetLevel(LogLevelError)
	assert.Equal(t, LogLevelError, parent.GetLevel())
	parent.Warn("dropped")
	assert.NotContains(t, buf.String(), "dropped")
}
