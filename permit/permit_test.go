package permit

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/mezonai/custody/host"
	"github.com/mezonai/custody/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keypair(t *testing.T) (types.Identity, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	id, err := types.IdentityFromPublicKey(pub)
	require.NoError(t, err)
	return id, priv
}

func TestMessageLayout(t *testing.T) {
	owner, spender := types.ProgramID("o"), types.ProgramID("s")
	m := Message{Owner: owner, Spender: spender, Amount: 500, Nonce: 1}

	b := m.Bytes()
	require.Len(t, b, len(Tag)+64+16)
	assert.Equal(t, Tag, string(b[:len(Tag)]))
	assert.Equal(t, owner[:], b[len(Tag):len(Tag)+32])
	assert.Equal(t, byte(500>>8), b[len(b)-10])
	assert.Equal(t, byte(1), b[len(b)-1])

	ledger := types.ProgramID("ledger")
	m.Ledger = &ledger
	assert.Len(t, m.Bytes(), len(Tag)+96+16)
}

func TestSignVerify(t *testing.T) {
	h, v := host.SHA256Hasher{}, host.Ed25519Verifier{}
	owner, priv := keypair(t)
	spender := types.ProgramID("spender")

	m := Message{Owner: owner, Spender: spender, Amount: 500}
	sig := Sign(priv, h, m)
	assert.True(t, Verify(v, h, m, sig))

	changed := []Message{
		{Owner: owner, Spender: spender, Amount: 501},
		{Owner: owner, Spender: spender, Amount: 500, Nonce: 1},
		{Owner: owner, Spender: types.ProgramID("other"), Amount: 500},
	}
	for _, c := range changed {
		assert.False(t, Verify(v, h, c, sig), "%+v", c)
	}

	ledger := types.ProgramID("ledger")
	scoped := m
	scoped.Ledger = &ledger
	assert.False(t, Verify(v, h, scoped, sig), "unscoped signature must not verify for a scoped message")
}
