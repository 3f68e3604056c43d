// Package docuflow integrates document storage and e-signature providers
// behind a single capability-based port. Adapters (S3, local filesystem,
// DocuSign, Adobe Sign) describe themselves with a capability descriptor and
// register against a registry; the selector resolves each capability to the
// best-configured adapter deterministically, and every call to the selected
// adapter runs through a resilient invocation policy with per-attempt
// timeouts, bounded retries, and a sliding-window circuit breaker.
//
// A minimal setup fills Config, creates a Provider, and asks it for
// capabilities:
//
//	conf := &docuflow.Config{
//		Adapters: map[string]adapter.Properties{
//			"s3": {"bucket": "documents", "region": "eu-central-1"},
//		},
//	}
//	provider, err := docuflow.NewProvider(conf, docuflow.ProviderDependencies{})
//	storage, err := provider.Storage(ctx)
//
// # Identity correlation
//
// Envelope operations generate an internal id before any remote call and
// record it in the correlation store; the provider-assigned external id is
// attached exactly once after the remote create succeeds. Status updates are
// applied with observation-time last-write-wins semantics, so out-of-order
// webhook deliveries and polling sweeps never regress a record.
// EnvelopeWorkflow drives this lifecycle end to end.
//
// # Status reconciliation
//
// Webhook receivers and pollers publish StatusEvent messages onto a status
// bus (Go channels, HTTP, NATS, Kafka, or RabbitMQ; import the matching
// statusbus sub-package); ReconcileService consumes them through a Watermill
// router with correlation ids, logging, tracing, metrics, retries, poison
// queue forwarding, and panic recovery.
//
// # Feature gates
//
// Capabilities are feature-gated: all gates default to on, and
// Config.DisabledFeatures turns individual capabilities off. A disabled
// capability fails with ErrFeatureDisabled before the registry is consulted,
// so it is never confused with an unsupported one.
package docuflow
