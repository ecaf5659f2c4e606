package host

import (
	"crypto/ed25519"
	"crypto/sha256"

	"github.com/mezonai/custody/types"
)

// Hasher is the host digest primitive
type Hasher interface {
	Hash(data []byte) [32]byte
}

// Verifier is the host signature primitive
type Verifier interface {
	Verify(signer types.Identity, digest, signature []byte) bool
}

type SHA256Hasher struct{}

func (SHA256Hasher) Hash(data []byte) [32]byte {
	return sha256.Sum256(data)
}

type Ed25519Verifier struct{}

func (Ed25519Verifier) Verify(signer types.Identity, digest, signature []byte) bool {
	if len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(signer.PublicKey(), digest, signature)
}
