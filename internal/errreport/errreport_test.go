package errreport

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestReporterWithoutDSNIsNoop(t *testing.T) {
	t.Parallel()

	r, err := New(Options{DSN: "  "})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if r.Enabled() {
		t.Fatalf("Enabled() = true without dsn")
	}
	r.Capture(context.Background(), errors.New("boom"), map[string]string{"room": "lunch"})
	if !r.Flush(time.Millisecond) {
		t.Fatalf("Flush() = false for disabled reporter")
	}

	var nilReporter *Reporter
	nilReporter.Capture(context.Background(), errors.New("boom"), nil)
}

func TestReporterRejectsInvalidDSN(t *testing.T) {
	t.Parallel()

	if _, err := New(Options{DSN: "not a dsn"}); err == nil {
		t.Fatalf("New() expected error for invalid dsn")
	}
}

func TestReporterCaptureWithDSN(t *testing.T) {
	t.Parallel()

	r, err := New(Options{DSN: "https://public@127.0.0.1:1/1", Environment: "test"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !r.Enabled() {
		t.Fatalf("Enabled() = false with dsn")
	}
	r.Capture(context.Background(), errors.New("boom"), map[string]string{"room": "lunch", "empty": ""})
	r.Flush(10 * time.Millisecond)
}
