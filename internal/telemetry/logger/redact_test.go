package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestRedactSensitive_SensitiveKeyName(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{
		Level:  "info",
		Format: "json",
		Output: &buf,
	}

	l, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// Log with sensitive key names (should be redacted regardless of value)
	tests := []struct {
		key      string
		value    string
		expected string
	}{
		{"password", "mysecret123", "***REDACTED***"},
		{"user_password", "hunter2", "***REDACTED***"},
		{"api_key", "some-key-value", "***REDACTED***"},
		{"auth_token", "bearer-xyz", "***REDACTED***"},
		{"credential", "cred123", "***REDACTED***"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			buf.Reset()
			l.Info("test", tt.key, tt.value)

			var logEntry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
				t.Fatalf("Failed to parse JSON log: %v", err)
			}

			val, ok := logEntry[tt.key].(string)
			if !ok {
				t.Fatalf("Expected %s field in log", tt.key)
			}

			if val != tt.expected {
				t.Errorf("Key %q should be redacted to %q, got %q", tt.key, tt.expected, val)
			}
		})
	}
}

func TestRedactSensitive_NormalValues(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{
		Level:  "info",
		Format: "json",
		Output: &buf,
	}

	l, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// Normal values should not be redacted
	l.Info("take snapshot", "snapshot_id", "42", "lower_bound_position", "1024")

	var logEntry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("Failed to parse JSON log: %v", err)
	}

	if snapID, ok := logEntry["snapshot_id"].(string); !ok || snapID != "42" {
		t.Errorf("snapshot_id should not be redacted, got: %v", logEntry["snapshot_id"])
	}
}

func TestRedactSensitive_NestedGroup(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{
		Level:  "info",
		Format: "json",
		Output: &buf,
	}

	l, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	l.Info("peer joined", slog.Group("peer", "token", "s3cr3t", "address", "127.0.0.1:5344"))

	var logEntry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("Failed to parse JSON log: %v", err)
	}
	peer, ok := logEntry["peer"].(map[string]any)
	if !ok {
		t.Fatalf("expected peer field in log, got %v", logEntry["peer"])
	}
	if peer["token"] != "***REDACTED***" {
		t.Errorf("token inside group should be redacted, got: %v", peer["token"])
	}
	if peer["address"] != "127.0.0.1:5344" {
		t.Errorf("address should not be redacted, got: %v", peer["address"])
	}
}

func TestIsSensitiveKey(t *testing.T) {
	tests := []struct {
		key       string
		sensitive bool
	}{
		{"password", true},
		{"user_password", true},
		{"PASSWORD", true},
		{"secret", true},
		{"api_secret", true},
		{"token", true},
		{"auth_token", true},
		{"key", true},
		{"api_key", true},
		{"credential", true},
		{"auth", true},
		{"bearer", true},
		{"username", false},
		{"snapshot_id", false},
		{"source", false},
		{"request_id", false},
		{"data", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			result := IsSensitiveKey(tt.key)
			if result != tt.sensitive {
				t.Errorf("IsSensitiveKey(%q) = %v, want %v", tt.key, result, tt.sensitive)
			}
		})
	}
}
