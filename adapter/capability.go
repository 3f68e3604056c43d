package adapter

import "slices"

// Capability is a named unit of functionality a provider adapter may support.
type Capability string

const (
	// CapabilityContentStorage covers raw document content operations
	// (put/get/delete/move/list) against an object store or content repository.
	CapabilityContentStorage Capability = "CONTENT_STORAGE"

	// CapabilityDocumentCRUD covers metadata-aware document lifecycle
	// operations layered on top of content storage.
	CapabilityDocumentCRUD Capability = "DOCUMENT_CRUD"

	// CapabilityEsignEnvelopes covers e-signature envelope operations
	// (create/send/void/status).
	CapabilityEsignEnvelopes Capability = "ESIGNATURE_ENVELOPES"

	// CapabilityEsignTemplates covers provider-hosted envelope templates.
	CapabilityEsignTemplates Capability = "ESIGNATURE_TEMPLATES"
)

// Family groups capabilities that are served by the same kind of adapter.
// Configuration pins an adapter type per family, not per capability.
type Family string

const (
	FamilyStorage Family = "storage"
	FamilyEsign   Family = "esign"
)

// Family returns the adapter family that serves this capability.
func (c Capability) Family() Family {
	switch c {
	case CapabilityEsignEnvelopes, CapabilityEsignTemplates:
		return FamilyEsign
	default:
		return FamilyStorage
	}
}

// Descriptor is the static metadata describing one provider adapter: its
// unique type name, the capabilities it supports, the configuration keys it
// needs, and a selection priority. Descriptors are created once at process
// start and are immutable thereafter.
type Descriptor struct {
	// Type uniquely identifies the adapter within a registry (e.g. "s3").
	Type string

	// Capabilities is the non-empty set of capability tags the adapter serves.
	Capabilities []Capability

	// RequiredProperties are the configuration keys that must be present and
	// non-empty for the adapter to be selectable.
	RequiredProperties []string

	// OptionalProperties are configuration keys the adapter understands but
	// does not require.
	OptionalProperties []string

	// Priority breaks ties between adapters serving the same capability.
	// Higher wins. Defaults to 0.
	Priority int
}

// Supports reports whether the descriptor claims the given capability.
func (d Descriptor) Supports(c Capability) bool {
	return slices.Contains(d.Capabilities, c)
}

// Validate checks the descriptor invariants: a non-empty type name and a
// non-empty capability set.
func (d Descriptor) Validate() error {
	if d.Type == "" {
		return ErrInvalidDescriptor
	}
	if len(d.Capabilities) == 0 {
		return ErrInvalidDescriptor
	}
	return nil
}

// MissingProperties returns the required keys that are absent or empty in
// props, in descriptor order.
func (d Descriptor) MissingProperties(props Properties) []string {
	var missing []string
	for _, key := range d.RequiredProperties {
		if props.Get(key) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

// Predefined descriptors for the adapters shipped with docuflow. Adapter
// sub-packages register these against the default registry at init time.
var (
	// S3Descriptor describes the Amazon S3 content storage adapter.
	S3Descriptor = Descriptor{
		Type:               "s3",
		Capabilities:       []Capability{CapabilityContentStorage, CapabilityDocumentCRUD},
		RequiredProperties: []string{"bucket", "region"},
		OptionalProperties: []string{"endpoint", "prefix", "access_key_id", "secret_access_key"},
		Priority:           10,
	}

	// FSStoreDescriptor describes the local filesystem storage adapter.
	FSStoreDescriptor = Descriptor{
		Type:               "fsstore",
		Capabilities:       []Capability{CapabilityContentStorage, CapabilityDocumentCRUD},
		RequiredProperties: []string{"root"},
		Priority:           0,
	}

	// DocuSignDescriptor describes the DocuSign e-signature adapter.
	DocuSignDescriptor = Descriptor{
		Type:               "docusign",
		Capabilities:       []Capability{CapabilityEsignEnvelopes, CapabilityEsignTemplates},
		RequiredProperties: []string{"base_url", "account_id", "access_token"},
		Priority:           10,
	}

	// AdobeSignDescriptor describes the Adobe Acrobat Sign adapter.
	AdobeSignDescriptor = Descriptor{
		Type:               "adobesign",
		Capabilities:       []Capability{CapabilityEsignEnvelopes},
		RequiredProperties: []string{"base_url", "integration_key"},
		Priority:           5,
	}
)
