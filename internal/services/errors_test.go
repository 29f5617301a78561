package services_test

import (
	"errors"
	"strings"
	"testing"

	"squeeze/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	cause := errors.New("exit status 1")
	err := services.Wrap(services.ErrExternalTool, "ffmpeg", "transcode", "empty output", cause)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("marker not preserved: %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause not preserved: %v", err)
	}
	msg := err.Error()
	for _, part := range []string{"ffmpeg", "transcode", "empty output", "exit status 1"} {
		if !strings.Contains(msg, part) {
			t.Fatalf("message %q missing %q", msg, part)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "cloudfiles", "hydrate", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient default, got %v", err)
	}
}

func TestIsTransient(t *testing.T) {
	if !services.IsTransient(services.Wrap(services.ErrTimeout, "cloudfiles", "materialize", "a.mkv", nil)) {
		t.Fatal("timeouts are retryable")
	}
	if services.IsTransient(services.Wrap(services.ErrConfiguration, "config", "validate", "", nil)) {
		t.Fatal("configuration errors are not retryable")
	}
}
