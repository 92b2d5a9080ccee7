package cryptobox

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// KeyManager holds a set of Boxes keyed by id, with one atomically
// swappable active key for outbound traffic and lookup-by-id for
// inbound traffic stamped with a specific key_id. Grounded on the
// original's KeyManager, replacing its HashMap + String active_key_id
// (which required cloning the map under a lock on every read) with an
// atomic.Pointer holding the active *Box directly.
type KeyManager struct {
	keys   sync.Map // string -> *Box
	active atomic.Pointer[Box]
}

// NewKeyManager returns an empty manager; the first AddKey call also
// becomes the active key, matching the original's "first key added is
// active" behavior.
func NewKeyManager() *KeyManager {
	return &KeyManager{}
}

// AddKey registers box under its own KeyID. If no key is active yet,
// box becomes active.
func (m *KeyManager) AddKey(box *Box) {
	m.keys.Store(box.KeyID(), box)
	m.active.CompareAndSwap(nil, box)
}

// Active returns the currently active key, or nil if none has been
// added yet.
func (m *KeyManager) Active() *Box {
	return m.active.Load()
}

// Get returns the box registered under keyID, or ErrUnknownKey.
func (m *KeyManager) Get(keyID string) (*Box, error) {
	v, ok := m.keys.Load(keyID)
	if !ok {
		return nil, errors.WithStack(ErrUnknownKey)
	}
	return v.(*Box), nil
}

// Rotate makes the key registered under newKeyID active. It is a
// no-op returning ErrUnknownKey if newKeyID was never added, matching
// the original's "rotate silently ignores an unknown id" behavior
// made explicit as an error instead of silence.
func (m *KeyManager) Rotate(newKeyID string) error {
	box, err := m.Get(newKeyID)
	if err != nil {
		return err
	}
	m.active.Store(box)
	return nil
}
