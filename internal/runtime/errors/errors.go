package errors

import (
	"fmt"
	"strings"

	sterrors "errors"
)

// Configuration and selection errors. These are permanent: the caller gets
// them immediately and no retry is attempted.
var (
	ErrAdapterTypeNotFound   = sterrors.New("docuflow: adapter type not found")
	ErrCapabilityUnsupported = sterrors.New("docuflow: capability not supported by any registered adapter")
	ErrFeatureDisabled       = sterrors.New("docuflow: feature disabled by configuration")
	ErrConfigRequired        = sterrors.New("docuflow: configuration is required")
	ErrRegistryRequired      = sterrors.New("docuflow: adapter registry is required")
)

// Transient-path errors. ErrProviderUnavailable is the single error callers
// see once retries are exhausted; ErrCircuitOpen additionally matches it so
// callers need only one check.
var (
	ErrProviderUnavailable = sterrors.New("docuflow: provider unavailable")
	ErrCircuitOpen         = fmt.Errorf("docuflow: circuit open: %w", ErrProviderUnavailable)
)

// Identity errors. These indicate an integration defect and are never retried.
var (
	ErrDuplicateInternalID = sterrors.New("docuflow: internal id already has a correlation record")
	ErrAlreadyAttached     = sterrors.New("docuflow: external id already attached")
	ErrExternalIDInUse     = sterrors.New("docuflow: external id bound to a different internal id")
	ErrNotFound            = sterrors.New("docuflow: correlation record not found")
)

// MissingConfigurationError reports the required keys a selection candidate
// was lacking. The keys always belong to the highest-priority candidate so
// the message is actionable.
type MissingConfigurationError struct {
	AdapterType string
	Keys        []string
}

func (e *MissingConfigurationError) Error() string {
	return fmt.Sprintf("docuflow: adapter %q is missing required configuration: %s",
		e.AdapterType, strings.Join(e.Keys, ", "))
}

// Is makes errors.Is(err, ErrMissingConfiguration) work for callers that do
// not care which keys are absent.
func (e *MissingConfigurationError) Is(target error) bool {
	return target == ErrMissingConfiguration
}

// ErrMissingConfiguration is the sentinel matched by MissingConfigurationError.
var ErrMissingConfiguration = sterrors.New("docuflow: missing required configuration")

// ConfigValidationError wraps structural configuration failures detected
// before any selection takes place.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "docuflow: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error { return e.Err }

// NewConfigValidationError wraps err, returning nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}
