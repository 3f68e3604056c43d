package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// CreateULID returns a time-sortable ULID encoded as a 26-character string.
func CreateULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}

// NewEnvelopeID returns a fresh internal envelope identifier. Internal ids are
// assigned before any remote call is made, so a correlation record can exist
// while the provider-assigned id is still unknown.
func NewEnvelopeID() string {
	return "env_" + CreateULID()
}

// NewDocumentID returns a fresh internal document identifier.
func NewDocumentID() string {
	return "doc_" + CreateULID()
}
