package logutil

import "testing"

func TestParseSlogLevel(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"", "info", "debug", "warn", "warning", "error", " INFO "} {
		if _, err := parseSlogLevel(s); err != nil {
			t.Errorf("parseSlogLevel(%q) error = %v", s, err)
		}
	}
	if _, err := parseSlogLevel("verbose"); err == nil {
		t.Error("parseSlogLevel(verbose) = nil, want error")
	}
}

func TestNewLoggerFromConfig(t *testing.T) {
	t.Parallel()

	for _, format := range []string{"", "text", "json", "JSON"} {
		if _, err := newLoggerFromConfig(loggerConfig{Format: format}); err != nil {
			t.Errorf("newLoggerFromConfig(format=%q) error = %v", format, err)
		}
	}
	if _, err := newLoggerFromConfig(loggerConfig{Format: "xml"}); err == nil {
		t.Error("newLoggerFromConfig(format=xml) = nil, want error")
	}
}
