package permit

import (
	"crypto/ed25519"
	"encoding/binary"

	"github.com/mezonai/custody/types"
)

// Tag prefixes every permit message
const Tag = "PERMIT"

// Hasher computes the digest that is signed
type Hasher interface {
	Hash(data []byte) [32]byte
}

// Verifier checks a signature over a digest
type Verifier interface {
	Verify(signer types.Identity, digest, signature []byte) bool
}

// Message is the canonical content of a permit. Ledger is only encoded when set, which
// scopes a signature to one ledger instance.
type Message struct {
	Ledger  *types.Identity
	Owner   types.Identity
	Spender types.Identity
	Amount  uint64
	Nonce   uint64
}

// Bytes encodes tag ‖ [ledger] ‖ owner ‖ spender ‖ amount ‖ nonce, integers big-endian
func (m Message) Bytes() []byte {
	size := len(Tag) + 2*types.IdentitySize + 16
	if m.Ledger != nil {
		size += types.IdentitySize
	}
	buf := make([]byte, 0, size)
	buf = append(buf, Tag...)
	if m.Ledger != nil {
		buf = append(buf, m.Ledger[:]...)
	}
	buf = append(buf, m.Owner[:]...)
	buf = append(buf, m.Spender[:]...)
	buf = binary.BigEndian.AppendUint64(buf, m.Amount)
	buf = binary.BigEndian.AppendUint64(buf, m.Nonce)
	return buf
}

func Digest(h Hasher, m Message) [32]byte {
	return h.Hash(m.Bytes())
}

// Verify checks sig against the owner's key over the message digest
func Verify(v Verifier, h Hasher, m Message, sig []byte) bool {
	digest := Digest(h, m)
	return v.Verify(m.Owner, digest[:], sig)
}

// Sign produces the owner's signature for m
func Sign(priv ed25519.PrivateKey, h Hasher, m Message) []byte {
	digest := Digest(h, m)
	return ed25519.Sign(priv, digest[:])
}
