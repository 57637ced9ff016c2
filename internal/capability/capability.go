// Package capability defines the remote capabilities the submission pipeline
// consumes: policy-gated encryption and decryption, and threshold ECDSA signing.
//
// The pipeline never holds the tank's signing key or the symmetric material behind
// a ciphertext. It sees only these interfaces, so the same pipeline runs against
// the remote threshold network (HTTPClient) or an in-process development stand-in
// (Local).
package capability

import (
	"context"
)

// Ciphertext is an encrypted payload plus the integrity hash of its plaintext.
// Both fields are stored on-chain as strings.
type Ciphertext struct {
	Data string `json:"ciphertext"`        // Opaque ciphertext, base64
	Hash string `json:"dataToEncryptHash"` // Hex SHA-256 of the plaintext
}

// IsEmpty reports whether no ciphertext is present.
func (c Ciphertext) IsEmpty() bool {
	return c.Data == ""
}

// Signature is a raw ECDSA signature as returned by the signer.
// R and S may be shorter than 32 bytes when the signer strips leading zeros.
// V is the raw recovery id: 0/1, or 27/28 for signers using the legacy offset.
type Signature struct {
	R []byte
	S []byte
	V byte
}

// Encrypter encrypts plaintext so that only parties satisfying policy can decrypt.
// Encryption is not deterministic: two calls with the same input may return
// different ciphertexts.
type Encrypter interface {
	Encrypt(ctx context.Context, policy Policy, plaintext []byte) (Ciphertext, error)
}

// Decrypter reverses Encrypter for a party satisfying policy.
type Decrypter interface {
	Decrypt(ctx context.Context, policy Policy, ct Ciphertext) ([]byte, error)
}

// Signer produces an ECDSA secp256k1 signature over a 32-byte digest with the
// key identified by keyID. The call either returns one consistent signature or
// fails; it never returns partial results.
type Signer interface {
	Sign(ctx context.Context, digest []byte, keyID string) (Signature, error)
}

// Bundle groups every capability the pipeline needs.
type Bundle interface {
	Encrypter
	Decrypter
	Signer
}
