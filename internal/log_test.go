package internal

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		in   string
		want LogLevel
	}{
		{"ERROR", LogLevelError},
		{"WARN", LogLevelWarn},
		{"INFO", LogLevelInfo},
		{"DEBUG", LogLevelDebug},
		{"", LogLevelInfo},
		{"verbose", LogLevelInfo},
	}
	for _, c := range cases {
		if got := ParseLogLevel(c.in); got != c.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	orig := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(orig)

	logger := NewLogger(LogLevelWarn)
	logger.Error("broke: %s", "disk")
	logger.Warn("odd input")
	logger.Info("progress")
	logger.Debug("detail")

	out := buf.String()
	if !strings.Contains(out, "[ERROR] broke: disk") {
		t.Error("error message suppressed")
	}
	if !strings.Contains(out, "[WARN] odd input") {
		t.Error("warn message suppressed")
	}
	if strings.Contains(out, "[INFO]") || strings.Contains(out, "[DEBUG]") {
		t.Errorf("messages above the configured level leaked: %s", out)
	}
}
