package types

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"
)

// IdentitySize is the length of an identity in bytes (an ed25519 public key).
const IdentitySize = 32

const derivedAddressTag = "custody-derived"

// Identity is a 32-byte public key identifying an account, a program or an asset type.
type Identity [IdentitySize]byte

// ZeroIdentity is the all-zero identity, never a valid signer.
var ZeroIdentity Identity

// IdentityFromPublicKey converts an ed25519 public key to an Identity
func IdentityFromPublicKey(pub ed25519.PublicKey) (Identity, error) {
	var id Identity
	if len(pub) != ed25519.PublicKeySize {
		return id, fmt.Errorf("invalid public key length: %d", len(pub))
	}
	copy(id[:], pub)
	return id, nil
}

// ParseIdentity decodes a base58 identity string
func ParseIdentity(s string) (Identity, error) {
	var id Identity
	b, err := base58.Decode(s)
	if err != nil {
		return id, fmt.Errorf("failed to decode identity %q: %w", s, err)
	}
	if len(b) != IdentitySize {
		return id, fmt.Errorf("invalid identity length: %d", len(b))
	}
	copy(id[:], b)
	return id, nil
}

// MustParseIdentity is ParseIdentity for constants; it panics on malformed input.
func MustParseIdentity(s string) Identity {
	id, err := ParseIdentity(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id Identity) String() string {
	return base58.Encode(id[:])
}

func (id Identity) Bytes() []byte {
	return id[:]
}

func (id Identity) IsZero() bool {
	return id == ZeroIdentity
}

func (id Identity) PublicKey() ed25519.PublicKey {
	return ed25519.PublicKey(bytes.Clone(id[:]))
}

func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *Identity) UnmarshalText(text []byte) error {
	parsed, err := ParseIdentity(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// DeriveAddress returns the deterministic address owned by program for the given seeds.
// The same program and seeds always yield the same address. Each seed is length-prefixed,
// so splitting the same bytes into different seeds gives a different address.
func DeriveAddress(program Identity, seeds ...[]byte) Identity {
	h := sha256.New()
	h.Write([]byte(derivedAddressTag))
	h.Write(program[:])
	var size [4]byte
	for _, seed := range seeds {
		binary.BigEndian.PutUint32(size[:], uint32(len(seed)))
		h.Write(size[:])
		h.Write(seed)
	}
	var id Identity
	copy(id[:], h.Sum(nil))
	return id
}

// ProgramID names a built-in program by hashing its label.
func ProgramID(label string) Identity {
	return Identity(sha256.Sum256([]byte("program:" + label)))
}
