// Package keyfile persists one cryptobox.Box's key material to disk so
// the CLI tools (SPEC_FULL.md §6) can share a key across separate
// send/receive processes without an out-of-band exchange protocol,
// which SPEC_FULL.md's scope does not define.
package keyfile

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"os"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/pkg/errors"

	"github.com/aria-robotics/telemetry/cryptobox"
)

type onDisk struct {
	KeyID      string `json:"key_id"`
	SigningKey []byte `json:"signing_key"`
	CipherKey  []byte `json:"cipher_key"`
}

// Load reads a key saved by LoadOrCreate and rebuilds the Box.
func Load(path string) (*cryptobox.Box, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "keyfile: read")
	}
	var rec onDisk
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, errors.Wrap(err, "keyfile: unmarshal")
	}
	return cryptobox.FromKeys(rec.KeyID, ed25519.PrivateKey(rec.SigningKey), rec.CipherKey)
}

// LoadOrCreate loads path if it exists, otherwise generates fresh key
// material under keyID, persists it to path (mode 0600) for a peer
// process to load with Load, and returns the resulting Box.
func LoadOrCreate(path, keyID string) (*cryptobox.Box, error) {
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	_, signingKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "keyfile: generate signing key")
	}
	cipherKey := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(cipherKey); err != nil {
		return nil, errors.Wrap(err, "keyfile: generate cipher key")
	}

	rec := onDisk{KeyID: keyID, SigningKey: signingKey, CipherKey: cipherKey}
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, errors.Wrap(err, "keyfile: marshal")
	}
	if err := os.WriteFile(path, b, 0600); err != nil {
		return nil, errors.Wrap(err, "keyfile: write")
	}

	return cryptobox.FromKeys(keyID, signingKey, cipherKey)
}
