package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWithOptionsJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithOptions(&buf, "warn", "json")
	if err != nil {
		t.Fatalf("NewWithOptions: %v", err)
	}
	l.Info("hidden")
	l.Warn("timeout", "kind", "show")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered: %s", out)
	}
	if !strings.Contains(out, `"kind":"show"`) {
		t.Fatalf("expected json attribute, got %s", out)
	}
}

func TestNewWithOptionsRejectsUnknown(t *testing.T) {
	if _, err := NewWithOptions(&bytes.Buffer{}, "loud", "text"); err == nil {
		t.Fatalf("expected level error")
	}
	if _, err := NewWithOptions(&bytes.Buffer{}, "info", "xml"); err == nil {
		t.Fatalf("expected format error")
	}
}

func TestContextRoundTrip(t *testing.T) {
	l := Discard()
	ctx := NewContext(context.Background(), l)
	if FromContext(ctx) != l {
		t.Fatalf("logger not stored in context")
	}
	if FromContext(context.Background()) != slog.Default() {
		t.Fatalf("expected default logger")
	}
}
