package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetupWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWriter("info", "json", &buf)

	logger.Info("server started", "port", 8080)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output not JSON: %v", err)
	}
	if entry["msg"] != "server started" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["port"] != float64(8080) {
		t.Errorf("port = %v", entry["port"])
	}
}

func TestSetupWriterText(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWriter("info", "text", &buf)

	logger.Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("unexpected text output: %q", buf.String())
	}
}

func TestSetupWriterLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWriter("warn", "json", &buf)

	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info line should be filtered at warn level: %q", buf.String())
	}
	logger.Warn("kept")
	if buf.Len() == 0 {
		t.Error("warn line should pass")
	}
}

func TestSensitiveValuesMasked(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWriter("info", "json", &buf)

	logger.Info("connecting", "password", "hunter2", "host", "ch01")

	out := buf.String()
	if strings.Contains(out, "hunter2") {
		t.Errorf("secret leaked into log: %q", out)
	}
	if !strings.Contains(out, MaskedValue) {
		t.Errorf("masked marker missing: %q", out)
	}
	if !strings.Contains(out, "ch01") {
		t.Errorf("non-sensitive value dropped: %q", out)
	}
}

func TestIsSensitiveField(t *testing.T) {
	tests := []struct {
		field string
		want  bool
	}{
		{"password", true},
		{"Password", true},
		{"clickhouse_password", true},
		{"api_key", true},
		{"webhook_url", true},
		{"hostname", false},
		{"severity", false},
	}
	for _, tt := range tests {
		if got := IsSensitiveField(tt.field); got != tt.want {
			t.Errorf("IsSensitiveField(%q) = %v, want %v", tt.field, got, tt.want)
		}
	}
}

func TestMaskSensitiveValue(t *testing.T) {
	if got := MaskSensitiveValue("password", "hunter2"); got != MaskedValue {
		t.Errorf("got %q", got)
	}
	if got := MaskSensitiveValue("hostname", "web01"); got != "web01" {
		t.Errorf("got %q", got)
	}
	if got := MaskSensitiveValue("password", ""); got != "" {
		t.Errorf("empty value should stay empty, got %q", got)
	}
}
