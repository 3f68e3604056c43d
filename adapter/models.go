package adapter

import (
	"context"
	"time"
)

// Document is a unit of content handed to or returned by a storage adapter.
type Document struct {
	Key         string            `json:"key"`
	ContentType string            `json:"content_type,omitempty"`
	Content     []byte            `json:"content,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// DocumentInfo describes a stored document without its content.
type DocumentInfo struct {
	Key         string    `json:"key"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ContentStorage is the capability surface for document content back-ends.
type ContentStorage interface {
	PutDocument(ctx context.Context, doc Document) (DocumentInfo, error)
	GetDocument(ctx context.Context, key string) (Document, error)
	DeleteDocument(ctx context.Context, key string) error
	MoveDocument(ctx context.Context, fromKey, toKey string) error
	ListDocuments(ctx context.Context, prefix string) ([]DocumentInfo, error)
}

// EnvelopeStatus is the provider-reported state of a signature envelope.
type EnvelopeStatus string

const (
	EnvelopeStatusDraft     EnvelopeStatus = "DRAFT"
	EnvelopeStatusSent      EnvelopeStatus = "SENT"
	EnvelopeStatusCompleted EnvelopeStatus = "COMPLETED"
	EnvelopeStatusDeclined  EnvelopeStatus = "DECLINED"
	EnvelopeStatusVoided    EnvelopeStatus = "VOIDED"
)

// Recipient is one signer or viewer on an envelope.
type Recipient struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
	Order int    `json:"order,omitempty"`
}

// EnvelopeDraft is the provider-neutral description of an envelope to create.
type EnvelopeDraft struct {
	Subject    string      `json:"subject"`
	Message    string      `json:"message,omitempty"`
	Documents  []Document  `json:"documents"`
	Recipients []Recipient `json:"recipients"`
}

// Template describes a provider-hosted envelope template.
type Template struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject,omitempty"`
}

// TemplateService is the capability surface for provider-hosted envelope
// templates. Creating from a template returns the provider-assigned external
// identifier of the new envelope, same as EnvelopeService.CreateEnvelope.
type TemplateService interface {
	ListTemplates(ctx context.Context) ([]Template, error)
	CreateEnvelopeFromTemplate(ctx context.Context, templateID string, recipients []Recipient) (externalID string, err error)
}

// EnvelopeService is the capability surface for e-signature providers.
// CreateEnvelope returns the provider-assigned external identifier; the
// runtime records it against the internally generated one.
type EnvelopeService interface {
	CreateEnvelope(ctx context.Context, draft EnvelopeDraft) (externalID string, err error)
	SendEnvelope(ctx context.Context, externalID string) error
	VoidEnvelope(ctx context.Context, externalID, reason string) error
	GetEnvelopeStatus(ctx context.Context, externalID string) (EnvelopeStatus, error)
}
