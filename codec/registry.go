// Package codec maps domain objects to and from bytes via a schema
// registry keyed by schema_id, per SPEC_FULL.md §4.2. Registration is
// append-only; the original Rust's HashMap::insert silently overwrote a
// schema id, which SPEC_FULL.md resolves as a defect rather than
// preserving it (see DESIGN.md).
package codec

import (
	"sync"

	"github.com/pkg/errors"
)

// Entry is a registered schema: a human-readable name plus the
// deterministic encode/decode pair for it.
type Entry struct {
	Name   string
	Encode func(v any) ([]byte, error)
	Decode func(b []byte) (any, error)
}

// Registry is a read-mostly, append-only map from schema_id to Entry.
// Safe for concurrent use; intended to be constructed once and shared
// across stages (spec §5: "schema registry is read-mostly... may be
// shared across stages").
type Registry struct {
	mu      sync.RWMutex
	schemas map[uint32]Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[uint32]Entry)}
}

// Register adds schemaID -> entry. It fails if schemaID is already
// registered.
func (r *Registry) Register(schemaID uint32, entry Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.schemas[schemaID]; ok {
		return errors.WithStack(ErrSchemaRegistered)
	}
	r.schemas[schemaID] = entry
	return nil
}

// Lookup returns the entry for schemaID, or ErrSchemaUnknown.
func (r *Registry) Lookup(schemaID uint32) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.schemas[schemaID]
	if !ok {
		return Entry{}, errors.WithStack(ErrSchemaUnknown)
	}
	return e, nil
}

// Encode looks up schemaID and encodes v with its registered encoder.
func (r *Registry) Encode(schemaID uint32, v any) ([]byte, error) {
	e, err := r.Lookup(schemaID)
	if err != nil {
		return nil, err
	}
	b, err := e.Encode(v)
	if err != nil {
		return nil, errors.Wrap(ErrCodecMalformed, err.Error())
	}
	return b, nil
}

// Decode looks up schemaID and decodes b with its registered decoder. No
// partial decode is ever returned: on error the zero value is discarded.
func (r *Registry) Decode(schemaID uint32, b []byte) (any, error) {
	e, err := r.Lookup(schemaID)
	if err != nil {
		return nil, err
	}
	v, err := e.Decode(b)
	if err != nil {
		return nil, errors.Wrap(ErrCodecMalformed, err.Error())
	}
	return v, nil
}
