package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sandeepkv93/pickupd/internal/config"
)

func TestNewJSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn, err := New(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	defer closeFn()

	logger.Infow("hidden", "k", 1)
	logger.Warnw("check pass failed", "reminder_id", "rem-1")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line leaked past warn level: %s", out)
	}
	if !strings.Contains(out, `"reminder_id":"rem-1"`) {
		t.Fatalf("expected structured field, got %s", out)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, _, err := New(config.LogConfig{Level: "loud"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
