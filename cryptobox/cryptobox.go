// Package cryptobox implements the sign-then-encrypt (TX) /
// verify-then-decrypt (RX) contract from SPEC_FULL.md §4.5. Grounded
// on original_source/crates/aria-telemetry/src/crypto.rs (CryptoBox/
// KeyManager) and crypto/crypto.go's BlockCrypt interface shape,
// using stdlib crypto/ed25519 for signing (no pack repo reaches for a
// third-party Ed25519 implementation, and the standard library's is
// the idiomatic, undisputed choice) and
// golang.org/x/crypto/chacha20poly1305 for the AEAD (a subpackage of
// an already-carried dependency).
package cryptobox

import (
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/pkg/errors"
)

var (
	// ErrUnknownKey is returned by KeyManager when a referenced key id
	// has never been added.
	ErrUnknownKey = errors.New("cryptobox: unknown key id")
	// ErrSignatureInvalid is returned by Verify when the signature does
	// not match the data under the box's verifying key.
	ErrSignatureInvalid = errors.New("cryptobox: signature invalid")
	// ErrDecryptionFailed is returned by Decrypt on AEAD authentication
	// failure (tampered ciphertext, wrong nonce, or wrong key).
	ErrDecryptionFailed = errors.New("cryptobox: decryption failed")
)

// Box holds one key id's signing and AEAD key material.
type Box struct {
	keyID      string
	signingKey ed25519.PrivateKey
	verifyKey  ed25519.PublicKey
	aead       cipher.AEAD
}

// New generates a fresh Ed25519 signing key and ChaCha20-Poly1305
// cipher key for keyID.
func New(keyID string) (*Box, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "cryptobox: generate signing key")
	}
	var cipherKey [chacha20poly1305.KeySize]byte
	if _, err := rand.Read(cipherKey[:]); err != nil {
		return nil, errors.Wrap(err, "cryptobox: generate cipher key")
	}
	return FromKeys(keyID, priv, cipherKey[:])
}

// FromKeys builds a Box from existing key material (e.g. loaded from
// configuration rather than generated), matching the original's
// from_keys constructor.
func FromKeys(keyID string, signingKey ed25519.PrivateKey, cipherKey []byte) (*Box, error) {
	aead, err := chacha20poly1305.New(cipherKey)
	if err != nil {
		return nil, errors.Wrap(err, "cryptobox: construct AEAD cipher")
	}
	return &Box{
		keyID:      keyID,
		signingKey: signingKey,
		verifyKey:  signingKey.Public().(ed25519.PublicKey),
		aead:       aead,
	}, nil
}

// KeyID returns the id this box's key material is registered under.
func (b *Box) KeyID() string { return b.keyID }

// Sign returns an Ed25519 signature over data.
func (b *Box) Sign(data []byte) []byte {
	return ed25519.Sign(b.signingKey, data)
}

// Verify reports whether sig is a valid Ed25519 signature over data
// under this box's verifying key.
func (b *Box) Verify(data, sig []byte) bool {
	return ed25519.Verify(b.verifyKey, data, sig)
}

// NonceSize returns the AEAD nonce length this box's cipher expects.
func (b *Box) NonceSize() int { return b.aead.NonceSize() }

// Encrypt seals data under nonce. nonce must be NonceSize() bytes and
// must never repeat for a given key.
func (b *Box) Encrypt(data, nonce []byte) []byte {
	return b.aead.Seal(nil, nonce, data, nil)
}

// Decrypt opens ciphertext under nonce, returning ErrDecryptionFailed
// on authentication failure.
func (b *Box) Decrypt(ciphertext, nonce []byte) ([]byte, error) {
	plain, err := b.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.Wrap(ErrDecryptionFailed, err.Error())
	}
	return plain, nil
}

// SignThenEncrypt signs data, then encrypts data (not the signature)
// under nonce, implementing SPEC_FULL.md §4.5's TX path in one call.
// The signature is returned alongside the ciphertext rather than
// folded into it, carried separately on the wire in
// envelope.CryptoInfo.Signature.
func (b *Box) SignThenEncrypt(data, nonce []byte) (ciphertext, signature []byte) {
	sig := b.Sign(data)
	return b.Encrypt(data, nonce), sig
}

// VerifyThenDecrypt decrypts ciphertext under nonce, then verifies sig
// against the recovered plaintext, implementing SPEC_FULL.md §4.5's RX
// path. It returns ErrDecryptionFailed or ErrSignatureInvalid as
// appropriate; a signature failure is returned even though decryption
// succeeded, since AEAD authentication alone does not prove the sender
// identity this box's verifying key represents.
func (b *Box) VerifyThenDecrypt(ciphertext, nonce, sig []byte) ([]byte, error) {
	plain, err := b.Decrypt(ciphertext, nonce)
	if err != nil {
		return nil, err
	}
	if !b.Verify(plain, sig) {
		return nil, errors.WithStack(ErrSignatureInvalid)
	}
	return plain, nil
}
