package capability

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/nacl/secretbox"
)

const localNonceSize = 24

// Local is an in-process stand-in for the threshold network, for development
// and tests. It holds a plain secp256k1 key and a symmetric secret, so it offers
// none of the guarantees of the real network.
//
// Ciphertexts are bound to the policy: the box key is derived from the secret and
// the serialized policy, so a ciphertext only opens under the policy it was
// sealed with.
type Local struct {
	key    *ecdsa.PrivateKey
	secret [32]byte
}

var _ Bundle = (*Local)(nil)

// NewLocal builds a local capability from a hex private key and a hex 32-byte secret.
func NewLocal(keyHex, secretHex string) (*Local, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid local signing key: %w", err)
	}

	raw, err := hex.DecodeString(strings.TrimPrefix(secretHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid local secret: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("local secret must be 32 bytes, got %d", len(raw))
	}

	l := &Local{key: key}
	copy(l.secret[:], raw)
	return l, nil
}

// GenerateLocal creates a local capability with fresh random material.
func GenerateLocal() (*Local, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	l := &Local{key: key}
	if _, err := io.ReadFull(rand.Reader, l.secret[:]); err != nil {
		return nil, fmt.Errorf("failed to generate secret: %w", err)
	}
	return l, nil
}

// Address returns the Ethereum address of the local signing key.
func (l *Local) Address() common.Address {
	return crypto.PubkeyToAddress(l.key.PublicKey)
}

// KeyID returns the identifier Sign accepts: the 0x-prefixed uncompressed public key.
func (l *Local) KeyID() string {
	return "0x" + hex.EncodeToString(crypto.FromECDSAPub(&l.key.PublicKey))
}

// KeyHex returns the private key as hex, for writing into a config file.
func (l *Local) KeyHex() string {
	return hex.EncodeToString(crypto.FromECDSA(l.key))
}

// SecretHex returns the symmetric secret as hex, for writing into a config file.
func (l *Local) SecretHex() string {
	return hex.EncodeToString(l.secret[:])
}

// Sign signs digest with the local key. keyID must be the key's KeyID or address.
func (l *Local) Sign(ctx context.Context, digest []byte, keyID string) (Signature, error) {
	if err := ctx.Err(); err != nil {
		return Signature{}, err
	}
	if len(digest) != 32 {
		return Signature{}, fmt.Errorf("digest must be 32 bytes, got %d", len(digest))
	}
	if !l.ownsKeyID(keyID) {
		return Signature{}, fmt.Errorf("unknown key ID %q", keyID)
	}

	sig, err := crypto.Sign(digest, l.key)
	if err != nil {
		return Signature{}, fmt.Errorf("failed to sign: %w", err)
	}

	return Signature{R: sig[:32], S: sig[32:64], V: sig[64]}, nil
}

func (l *Local) ownsKeyID(keyID string) bool {
	if strings.EqualFold(keyID, l.KeyID()) {
		return true
	}
	return common.IsHexAddress(keyID) && common.HexToAddress(keyID) == l.Address()
}

// Encrypt seals plaintext under a key bound to policy.
func (l *Local) Encrypt(ctx context.Context, policy Policy, plaintext []byte) (Ciphertext, error) {
	if err := ctx.Err(); err != nil {
		return Ciphertext{}, err
	}

	key, err := l.policyKey(policy)
	if err != nil {
		return Ciphertext{}, err
	}

	var nonce [localNonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return Ciphertext{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, &key)
	sum := sha256.Sum256(plaintext)

	return Ciphertext{
		Data: base64.StdEncoding.EncodeToString(sealed),
		Hash: hex.EncodeToString(sum[:]),
	}, nil
}

// Decrypt opens a ciphertext produced by Encrypt under the same policy.
func (l *Local) Decrypt(ctx context.Context, policy Policy, ct Ciphertext) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sealed, err := base64.StdEncoding.DecodeString(ct.Data)
	if err != nil {
		return nil, fmt.Errorf("ciphertext is not valid base64: %w", err)
	}
	if len(sealed) < localNonceSize+secretbox.Overhead {
		return nil, fmt.Errorf("ciphertext too short")
	}

	key, err := l.policyKey(policy)
	if err != nil {
		return nil, err
	}

	var nonce [localNonceSize]byte
	copy(nonce[:], sealed[:localNonceSize])

	plaintext, ok := secretbox.Open(nil, sealed[localNonceSize:], &nonce, &key)
	if !ok {
		return nil, fmt.Errorf("access denied: ciphertext does not open under this policy")
	}
	return plaintext, nil
}

func (l *Local) policyKey(policy Policy) ([32]byte, error) {
	var key [32]byte
	encoded, err := json.Marshal(policy)
	if err != nil {
		return key, fmt.Errorf("failed to serialize policy: %w", err)
	}
	copy(key[:], crypto.Keccak256(l.secret[:], encoded))
	return key, nil
}
