package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/docuflow/docuflow/adapter"
	"github.com/docuflow/docuflow/internal/runtime/correlation"
	"github.com/docuflow/docuflow/internal/runtime/ids"
	"github.com/docuflow/docuflow/internal/runtime/logging"
)

// EnvelopeWorkflow drives the envelope lifecycle against whichever e-signature
// adapter is currently bound. It owns the ordering that keeps identities
// consistent: the internal id and its pending correlation record exist before
// the remote create call, and the provider-assigned id is attached exactly
// once afterwards.
type EnvelopeWorkflow struct {
	provider *Provider
	store    correlation.Store
	log      logging.ServiceLogger

	newID func() string
	now   func() time.Time
}

// NewEnvelopeWorkflow creates a workflow bound to the provider's correlation
// store.
func NewEnvelopeWorkflow(p *Provider) *EnvelopeWorkflow {
	return &EnvelopeWorkflow{
		provider: p,
		store:    p.Correlation(),
		log:      p.log,
		newID:    ids.NewEnvelopeID,
		now:      time.Now,
	}
}

// Create creates an envelope with the bound provider. The returned internal
// id is stable from the moment the call starts. When the caller cancels the
// context mid-flight the pending record is kept, because the remote outcome
// is unknown; a later reconciliation event can still attach to it. Any other
// failure removes the record again, since no remote entity exists for it.
func (w *EnvelopeWorkflow) Create(ctx context.Context, draft adapter.EnvelopeDraft) (string, error) {
	binding, err := w.provider.GetCapability(ctx, adapter.CapabilityEsignEnvelopes)
	if err != nil {
		return "", err
	}

	internalID := w.newID()
	if err := w.store.CreatePending(ctx, internalID, binding.Descriptor.Type); err != nil {
		return "", err
	}

	externalID, err := binding.Provider.Envelopes.CreateEnvelope(ctx, draft)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			w.log.Info("envelope create cancelled, record stays pending", logging.LogFields{
				"internal_id": internalID,
			})
			return internalID, err
		}
		if rmErr := w.store.Remove(ctx, internalID); rmErr != nil {
			w.log.Error("removing orphaned pending record", rmErr, logging.LogFields{
				"internal_id": internalID,
			})
		}
		return "", err
	}

	if err := w.store.AttachExternalID(ctx, internalID, externalID); err != nil {
		return "", err
	}
	if _, err := w.store.UpdateStatus(ctx, internalID, correlation.StatusDraft, w.now()); err != nil {
		return "", err
	}
	return internalID, nil
}

// CreateFromTemplate creates an envelope from a provider-hosted template.
// Identity handling is the same as Create.
func (w *EnvelopeWorkflow) CreateFromTemplate(ctx context.Context, templateID string, recipients []adapter.Recipient) (string, error) {
	binding, err := w.provider.GetCapability(ctx, adapter.CapabilityEsignTemplates)
	if err != nil {
		return "", err
	}

	internalID := w.newID()
	if err := w.store.CreatePending(ctx, internalID, binding.Descriptor.Type); err != nil {
		return "", err
	}

	externalID, err := binding.Provider.Templates.CreateEnvelopeFromTemplate(ctx, templateID, recipients)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			w.log.Info("envelope create cancelled, record stays pending", logging.LogFields{
				"internal_id": internalID,
			})
			return internalID, err
		}
		if rmErr := w.store.Remove(ctx, internalID); rmErr != nil {
			w.log.Error("removing orphaned pending record", rmErr, logging.LogFields{
				"internal_id": internalID,
			})
		}
		return "", err
	}

	if err := w.store.AttachExternalID(ctx, internalID, externalID); err != nil {
		return "", err
	}
	if _, err := w.store.UpdateStatus(ctx, internalID, correlation.StatusDraft, w.now()); err != nil {
		return "", err
	}
	return internalID, nil
}

// Send asks the provider to send the envelope for signing.
func (w *EnvelopeWorkflow) Send(ctx context.Context, internalID string) error {
	envelopes, externalID, err := w.resolve(ctx, internalID)
	if err != nil {
		return err
	}
	if err := envelopes.SendEnvelope(ctx, externalID); err != nil {
		return err
	}
	_, err = w.store.UpdateStatus(ctx, internalID, correlation.StatusSent, w.now())
	return err
}

// Void voids the envelope at the provider. The correlation record is kept;
// only its status changes.
func (w *EnvelopeWorkflow) Void(ctx context.Context, internalID, reason string) error {
	envelopes, externalID, err := w.resolve(ctx, internalID)
	if err != nil {
		return err
	}
	if err := envelopes.VoidEnvelope(ctx, externalID, reason); err != nil {
		return err
	}
	_, err = w.store.UpdateStatus(ctx, internalID, correlation.StatusVoided, w.now())
	return err
}

// Refresh polls the provider for the current envelope status and applies it
// to the correlation record with the poll time as the observation time.
func (w *EnvelopeWorkflow) Refresh(ctx context.Context, internalID string) (correlation.Status, error) {
	envelopes, externalID, err := w.resolve(ctx, internalID)
	if err != nil {
		return "", err
	}
	status, err := envelopes.GetEnvelopeStatus(ctx, externalID)
	if err != nil {
		return "", err
	}
	observed := correlation.Status(status)
	if _, err := w.store.UpdateStatus(ctx, internalID, observed, w.now()); err != nil {
		return "", err
	}
	return observed, nil
}

// Delete removes the correlation record. This is the only operation that
// deletes a record; voiding and archiving never do.
func (w *EnvelopeWorkflow) Delete(ctx context.Context, internalID string) error {
	return w.store.Remove(ctx, internalID)
}

// Status returns the last synchronized record without a remote call.
func (w *EnvelopeWorkflow) Status(ctx context.Context, internalID string) (correlation.Record, error) {
	return w.store.Get(ctx, internalID)
}

func (w *EnvelopeWorkflow) resolve(ctx context.Context, internalID string) (adapter.EnvelopeService, string, error) {
	externalID, err := w.store.ResolveExternal(ctx, internalID)
	if err != nil {
		return nil, "", err
	}
	envelopes, err := w.provider.Envelopes(ctx)
	if err != nil {
		return nil, "", err
	}
	return envelopes, externalID, nil
}
