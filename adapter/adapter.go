// Package adapter defines the core interfaces and types for docuflow provider
// adapters. Each adapter implementation (s3, fsstore, docusign, etc.) should be
// in its own sub-package and register itself with the adapter registry.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Registry errors. Registration happens at process bootstrap, so these
// indicate wiring defects rather than runtime conditions.
var (
	ErrDuplicateAdapterType = errors.New("docuflow: adapter type already registered")
	ErrInvalidDescriptor    = errors.New("docuflow: invalid adapter descriptor")
)

// ErrDocumentNotFound is returned by storage adapters when the requested key
// does not exist. Never retried.
var ErrDocumentNotFound = errors.New("docuflow: document not found")

// ErrTransient marks provider errors that are safe to retry. Adapters wrap
// transient SDK failures (timeouts, connection resets, 5xx responses) with
// MarkTransient so the invocation policy can distinguish them from permanent
// validation or authorization failures.
var ErrTransient = errors.New("docuflow: transient provider error")

// MarkTransient wraps err so IsTransient reports true for it.
// Returns nil when err is nil.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsTransient reports whether err was marked retryable by an adapter or is a
// deadline expiry observed while talking to the provider.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded)
}

// Properties is the flat key-value configuration for one adapter type. The
// configuration loader produces one Properties map per registered type.
type Properties map[string]string

// Get returns the value for key, or the empty string when absent.
func (p Properties) Get(key string) string {
	if p == nil {
		return ""
	}
	return p[key]
}

// Provider bundles the capability surfaces a bound adapter exposes. Adapters
// that do not serve a surface leave the corresponding field nil; the selector
// never hands out a provider for a capability its descriptor does not claim.
type Provider struct {
	Storage   ContentStorage
	Envelopes EnvelopeService
	Templates TemplateService
}

// Builder is the function signature for creating an adapter instance from its
// validated configuration properties. Each adapter package provides a Builder
// that is registered together with its Descriptor.
type Builder func(ctx context.Context, props Properties, logger *slog.Logger) (Provider, error)
