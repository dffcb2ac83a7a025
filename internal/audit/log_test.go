package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"conforma.org/internal/auth"
	"conforma.org/internal/obs"
)

func TestLogEvent(t *testing.T) {
	logger := obs.Logger()
	original := logger.Writer()
	logger.SetFlags(0)
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	auth.ResetSecretForTests()
	t.Setenv("CONFORMA_AUTH_SECRET", "audit-test-secret")
	t.Cleanup(auth.ResetSecretForTests)
	token, err := auth.GenerateToken("user-42", "org-1", "QUALITY_MANAGER", time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := auth.ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = auth.ContextWithClaims(ctx, claims)

	if err := LogEvent(ctx, "assessment.status", map[string]any{"status": "IN_PROGRESS"}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	line := buf.String()
	if line == "" {
		t.Fatal("expected log output")
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["type"] != "audit" {
		t.Fatalf("unexpected type: %v", entry["type"])
	}
	if entry["event"] != "assessment.status" {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["user_id"] != "user-42" {
		t.Fatalf("unexpected user id: %v", entry["user_id"])
	}
	if entry["organization_id"] != "org-1" {
		t.Fatalf("unexpected organization: %v", entry["organization_id"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["status"] != "IN_PROGRESS" {
		t.Fatalf("fields missing or incorrect: %v", entry["fields"])
	}
}
