// Package vault is the encryption gateway: it encrypts and decrypts tank
// payloads under the tank's access policy by delegating to the injected
// capability, and checks plaintext integrity on the way back.
package vault

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"go.uber.org/zap"

	"github.com/dyluth/thinktank/internal/capability"
	"github.com/dyluth/thinktank/internal/failure"
)

// Gateway encrypts and decrypts under the policy formed by a tank's action identifiers.
type Gateway struct {
	encrypter capability.Encrypter
	decrypter capability.Decrypter
	chain     string
	logger    *zap.Logger
}

// New creates a gateway. policyChain is the chain name written into each
// condition; empty selects capability.DefaultPolicyChain.
func New(encrypter capability.Encrypter, decrypter capability.Decrypter, policyChain string, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		encrypter: encrypter,
		decrypter: decrypter,
		chain:     policyChain,
		logger:    logger.Named("vault"),
	}
}

// Hash returns the integrity hash of plaintext: hex SHA-256.
func Hash(plaintext []byte) string {
	sum := sha256.Sum256(plaintext)
	return hex.EncodeToString(sum[:])
}

// Encrypt encrypts plaintext under the policy admitting policyIDs.
// The returned ciphertext's Hash is always the local integrity hash.
func (g *Gateway) Encrypt(ctx context.Context, policyIDs []string, plaintext []byte) (capability.Ciphertext, error) {
	const op = "vault.Encrypt"

	policy, err := capability.ActionPolicy(g.chain, policyIDs)
	if err != nil {
		return capability.Ciphertext{}, failure.New(failure.KindEncryption, op, err)
	}

	ct, err := g.encrypter.Encrypt(ctx, policy, plaintext)
	if err != nil {
		return capability.Ciphertext{}, failure.New(failure.KindEncryption, op, err)
	}

	hash := Hash(plaintext)
	if ct.Hash != "" && !strings.EqualFold(ct.Hash, hash) {
		return capability.Ciphertext{}, failure.Newf(failure.KindEncryption, op,
			"capability reported plaintext hash %s, expected %s", ct.Hash, hash)
	}
	ct.Hash = hash

	g.logger.Debug("payload encrypted",
		zap.Int("plaintext_len", len(plaintext)),
		zap.String("hash", hash),
		zap.Int("conditions", len(policy.Conditions)))

	return ct, nil
}

// Decrypt decrypts ct under the policy admitting policyIDs and checks the
// plaintext against ct.Hash.
func (g *Gateway) Decrypt(ctx context.Context, policyIDs []string, ct capability.Ciphertext) ([]byte, error) {
	const op = "vault.Decrypt"

	policy, err := capability.ActionPolicy(g.chain, policyIDs)
	if err != nil {
		return nil, failure.New(failure.KindDecryption, op, err)
	}

	plaintext, err := g.decrypter.Decrypt(ctx, policy, ct)
	if err != nil {
		return nil, failure.New(failure.KindDecryption, op, err)
	}

	if ct.Hash != "" {
		if got := Hash(plaintext); !strings.EqualFold(got, ct.Hash) {
			return nil, failure.Newf(failure.KindDecryption, op,
				"integrity hash mismatch: got %s, expected %s", got, ct.Hash)
		}
	}

	return plaintext, nil
}
