package errors

import (
	sterrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestCircuitOpenMatchesProviderUnavailable(t *testing.T) {
	// Callers check a single sentinel for the transient path.
	if !sterrors.Is(ErrCircuitOpen, ErrProviderUnavailable) {
		t.Fatal("ErrCircuitOpen must match ErrProviderUnavailable")
	}
	wrapped := fmt.Errorf("calling provider: %w", ErrCircuitOpen)
	if !sterrors.Is(wrapped, ErrProviderUnavailable) {
		t.Fatal("wrapping must preserve the match")
	}
}

func TestMissingConfigurationError(t *testing.T) {
	err := &MissingConfigurationError{AdapterType: "s3", Keys: []string{"bucket", "region"}}

	if !sterrors.Is(err, ErrMissingConfiguration) {
		t.Fatal("expected the sentinel to match")
	}

	var typed *MissingConfigurationError
	if !sterrors.As(err, &typed) {
		t.Fatal("expected errors.As to extract the typed error")
	}
	if typed.AdapterType != "s3" {
		t.Errorf("adapter type = %q", typed.AdapterType)
	}

	msg := err.Error()
	if !strings.Contains(msg, "s3") || !strings.Contains(msg, "bucket, region") {
		t.Errorf("message = %q", msg)
	}
}

func TestConfigValidationError(t *testing.T) {
	cause := sterrors.New("retry: max attempts cannot be negative")
	err := NewConfigValidationError(cause)

	var validation ConfigValidationError
	if !sterrors.As(err, &validation) {
		t.Fatalf("expected ConfigValidationError, got %T", err)
	}
	if !sterrors.Is(err, cause) {
		t.Fatal("expected the cause to remain matchable")
	}
	if !strings.Contains(err.Error(), cause.Error()) {
		t.Errorf("message = %q", err.Error())
	}

	if NewConfigValidationError(nil) != nil {
		t.Fatal("a nil cause must give a nil error")
	}
}
