package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/coopportal/coopsearch/pkg/contextkeys"
	"github.com/sirupsen/logrus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger("info", FormatJSON, &buf)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	logger.Debug("debug message")
	if buf.Len() > 0 {
		t.Error("debug message should not be logged at info level")
	}

	logger.WithField("category", "trainer").Warn("adapter failed")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to unmarshal log entry: %v", err)
	}
	if entry["level"] != "warning" {
		t.Errorf("expected level warning, got %v", entry["level"])
	}
	if entry["msg"] != "adapter failed" {
		t.Errorf("expected message 'adapter failed', got %v", entry["msg"])
	}
	if entry["category"] != "trainer" {
		t.Errorf("expected category field, got %v", entry["category"])
	}
}

func TestNewLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger("debug", FormatText, &buf)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Debug("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("expected text output, got %q", buf.String())
	}
}

func TestNewLogger_Invalid(t *testing.T) {
	if _, err := NewLogger("loud", FormatJSON, nil); err == nil {
		t.Error("expected error for invalid level")
	}
	if _, err := NewLogger("info", "xml", nil); err == nil {
		t.Error("expected error for invalid format")
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := NewLogger("info", FormatJSON, &buf)

	ctx := WithLogger(context.Background(), logger)
	ctx = contextkeys.WithRequestID(ctx, "req-1")
	ctx = contextkeys.WithUserID(ctx, "user-9")

	FromContext(ctx).Info("searching")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to unmarshal log entry: %v", err)
	}
	if entry["request_id"] != "req-1" {
		t.Errorf("expected request_id req-1, got %v", entry["request_id"])
	}
	if entry["user_id"] != "user-9" {
		t.Errorf("expected user_id user-9, got %v", entry["user_id"])
	}
}

func TestFromContext_DefaultsToStandardLogger(t *testing.T) {
	if got := GetLogger(context.Background()); got != logrus.StandardLogger() {
		t.Errorf("expected standard logger, got %T", got)
	}
}

func TestWithTraceContext(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	var buf bytes.Buffer
	logger, _ := NewLogger("info", FormatJSON, &buf)
	WithTraceContext(ctx, logger).Info("traced")

	if !strings.Contains(buf.String(), span.SpanContext().TraceID().String()) {
		t.Errorf("expected trace id in %q", buf.String())
	}
}
