package runtime

import (
	"context"

	"github.com/docuflow/docuflow/adapter"
	"github.com/docuflow/docuflow/internal/runtime/resilience"
)

// resilientStorage routes every content-storage call through the binding's
// invocation policy.
type resilientStorage struct {
	inner  adapter.ContentStorage
	policy *resilience.Policy
}

var _ adapter.ContentStorage = (*resilientStorage)(nil)

func (r *resilientStorage) PutDocument(ctx context.Context, doc adapter.Document) (adapter.DocumentInfo, error) {
	return resilience.ExecuteValue(r.policy, ctx, "storage.put_document", func(ctx context.Context) (adapter.DocumentInfo, error) {
		return r.inner.PutDocument(ctx, doc)
	})
}

func (r *resilientStorage) GetDocument(ctx context.Context, key string) (adapter.Document, error) {
	return resilience.ExecuteValue(r.policy, ctx, "storage.get_document", func(ctx context.Context) (adapter.Document, error) {
		return r.inner.GetDocument(ctx, key)
	})
}

func (r *resilientStorage) DeleteDocument(ctx context.Context, key string) error {
	return r.policy.Execute(ctx, "storage.delete_document", func(ctx context.Context) error {
		return r.inner.DeleteDocument(ctx, key)
	})
}

func (r *resilientStorage) MoveDocument(ctx context.Context, fromKey, toKey string) error {
	return r.policy.Execute(ctx, "storage.move_document", func(ctx context.Context) error {
		return r.inner.MoveDocument(ctx, fromKey, toKey)
	})
}

func (r *resilientStorage) ListDocuments(ctx context.Context, prefix string) ([]adapter.DocumentInfo, error) {
	return resilience.ExecuteValue(r.policy, ctx, "storage.list_documents", func(ctx context.Context) ([]adapter.DocumentInfo, error) {
		return r.inner.ListDocuments(ctx, prefix)
	})
}

// resilientEnvelopes routes every e-signature call through the binding's
// invocation policy.
type resilientEnvelopes struct {
	inner  adapter.EnvelopeService
	policy *resilience.Policy
}

var _ adapter.EnvelopeService = (*resilientEnvelopes)(nil)

func (r *resilientEnvelopes) CreateEnvelope(ctx context.Context, draft adapter.EnvelopeDraft) (string, error) {
	return resilience.ExecuteValue(r.policy, ctx, "esign.create_envelope", func(ctx context.Context) (string, error) {
		return r.inner.CreateEnvelope(ctx, draft)
	})
}

func (r *resilientEnvelopes) SendEnvelope(ctx context.Context, externalID string) error {
	return r.policy.Execute(ctx, "esign.send_envelope", func(ctx context.Context) error {
		return r.inner.SendEnvelope(ctx, externalID)
	})
}

func (r *resilientEnvelopes) VoidEnvelope(ctx context.Context, externalID, reason string) error {
	return r.policy.Execute(ctx, "esign.void_envelope", func(ctx context.Context) error {
		return r.inner.VoidEnvelope(ctx, externalID, reason)
	})
}

func (r *resilientEnvelopes) GetEnvelopeStatus(ctx context.Context, externalID string) (adapter.EnvelopeStatus, error) {
	return resilience.ExecuteValue(r.policy, ctx, "esign.get_envelope_status", func(ctx context.Context) (adapter.EnvelopeStatus, error) {
		return r.inner.GetEnvelopeStatus(ctx, externalID)
	})
}

// resilientTemplates routes every template call through the binding's
// invocation policy.
type resilientTemplates struct {
	inner  adapter.TemplateService
	policy *resilience.Policy
}

var _ adapter.TemplateService = (*resilientTemplates)(nil)

func (r *resilientTemplates) ListTemplates(ctx context.Context) ([]adapter.Template, error) {
	return resilience.ExecuteValue(r.policy, ctx, "esign.list_templates", func(ctx context.Context) ([]adapter.Template, error) {
		return r.inner.ListTemplates(ctx)
	})
}

func (r *resilientTemplates) CreateEnvelopeFromTemplate(ctx context.Context, templateID string, recipients []adapter.Recipient) (string, error) {
	return resilience.ExecuteValue(r.policy, ctx, "esign.create_envelope_from_template", func(ctx context.Context) (string, error) {
		return r.inner.CreateEnvelopeFromTemplate(ctx, templateID, recipients)
	})
}
