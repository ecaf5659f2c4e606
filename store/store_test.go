package store

import (
	"crypto/sha256"
	"testing"

	"github.com/mezonai/custody/db"
	"github.com/mezonai/custody/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memProvider(t *testing.T) *db.LevelDBProvider {
	t.Helper()
	p, err := db.NewMemLevelDBProvider()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func id(label string) types.Identity {
	return types.Identity(sha256.Sum256([]byte(label)))
}

func TestAssetStore(t *testing.T) {
	s, err := NewGenericAssetStore(memProvider(t))
	require.NoError(t, err)

	got, err := s.GetAccount(id("missing"))
	require.NoError(t, err)
	assert.Nil(t, got)

	mint := &types.AssetMint{Address: id("mint"), Authority: id("auth"), Supply: 10}
	require.NoError(t, s.StoreMint(mint))
	gotMint, err := s.GetMint(mint.Address)
	require.NoError(t, err)
	assert.Equal(t, mint, gotMint)

	a := &types.AssetAccount{Address: id("a"), Mint: mint.Address, Owner: id("alice"), Amount: 7}
	b := &types.AssetAccount{Address: id("b"), Mint: mint.Address, Owner: id("bob"), Amount: 3}
	require.NoError(t, s.StoreAccounts([]*types.AssetAccount{a, b}))

	gotA, err := s.GetAccount(a.Address)
	require.NoError(t, err)
	assert.Equal(t, a, gotA)

	ok, err := s.ExistsAccount(b.Address)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVaultStore(t *testing.T) {
	s, err := NewGenericVaultStore(memProvider(t))
	require.NoError(t, err)

	addr := id("state")
	got, err := s.Get(addr)
	require.NoError(t, err)
	assert.Nil(t, got)

	l, err := s.Lifecycle(addr)
	require.NoError(t, err)
	assert.Equal(t, types.LifecycleUninitialized, l)

	st := &types.VaultState{Admin: id("admin"), Mint: id("mint"), TotalDeposits: 42, Bump: 254}
	require.NoError(t, s.Store(addr, st))
	require.NoError(t, s.SetLifecycle(addr, types.LifecycleInitialized))

	got, err = s.Get(addr)
	require.NoError(t, err)
	assert.Equal(t, st, got)
	l, err = s.Lifecycle(addr)
	require.NoError(t, err)
	assert.Equal(t, types.LifecycleInitialized, l)
}

func TestLedgerStoreDefaults(t *testing.T) {
	s, err := NewGenericLedgerStore(memProvider(t), id("ledger"))
	require.NoError(t, err)

	_, ok, err := s.Owner()
	require.NoError(t, err)
	assert.False(t, ok)

	supply, err := s.TotalSupply()
	require.NoError(t, err)
	assert.Zero(t, supply)

	bal, err := s.Balance(id("nobody"))
	require.NoError(t, err)
	assert.Zero(t, bal)

	allowance, err := s.Allowance(id("o"), id("s"))
	require.NoError(t, err)
	assert.Zero(t, allowance)
}

func TestLedgerStoreNamespaces(t *testing.T) {
	p := memProvider(t)
	one, err := NewGenericLedgerStore(p, id("one"))
	require.NoError(t, err)
	two, err := NewGenericLedgerStore(p, id("two"))
	require.NoError(t, err)

	require.NoError(t, one.SetBalance(id("alice"), 100))
	require.NoError(t, one.SetAllowance(id("alice"), id("bob"), 5))
	require.NoError(t, one.SetNonce(id("alice"), 3))
	require.NoError(t, one.SetOwner(id("alice")))

	bal, err := two.Balance(id("alice"))
	require.NoError(t, err)
	assert.Zero(t, bal)

	bal, err = one.Balance(id("alice"))
	require.NoError(t, err)
	assert.Equal(t, uint64(100), bal)

	// allowance is directional
	a, err := one.Allowance(id("bob"), id("alice"))
	require.NoError(t, err)
	assert.Zero(t, a)
	a, err = one.Allowance(id("alice"), id("bob"))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), a)

	n, err := one.Nonce(id("alice"))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)

	owner, ok, err := one.Owner()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, id("alice"), owner)
}

func TestLedgerStoreIterateBalances(t *testing.T) {
	p := memProvider(t)
	s, err := NewGenericLedgerStore(p, id("ledger"))
	require.NoError(t, err)

	require.NoError(t, s.SetBalance(id("a"), 1))
	require.NoError(t, s.SetBalance(id("b"), 2))
	require.NoError(t, s.SetAllowance(id("a"), id("b"), 99))
	require.NoError(t, s.SetTotalSupply(3))

	got := map[types.Identity]uint64{}
	require.NoError(t, s.IterateBalances(func(who types.Identity, balance uint64) bool {
		got[who] = balance
		return true
	}))
	assert.Equal(t, map[types.Identity]uint64{id("a"): 1, id("b"): 2}, got)
}

func TestLedgerStoreThroughOverlay(t *testing.T) {
	p := memProvider(t)
	view := db.NewOverlay(p)
	s, err := NewGenericLedgerStore(view, id("ledger"))
	require.NoError(t, err)

	require.NoError(t, s.SetBalance(id("a"), 10))
	view.Discard()

	base, err := NewGenericLedgerStore(p, id("ledger"))
	require.NoError(t, err)
	bal, err := base.Balance(id("a"))
	require.NoError(t, err)
	assert.Zero(t, bal, "discarded overlay must not reach the base")
}

func TestStoreConfigValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  StoreConfig
		ok   bool
	}{
		{"memory", StoreConfig{Type: MemoryStoreType}, true},
		{"leveldb needs dir", StoreConfig{Type: LevelDBStoreType}, false},
		{"bolt", StoreConfig{Type: BoltStoreType, Directory: "x"}, true},
		{"redis needs addr", StoreConfig{Type: RedisStoreType}, false},
		{"unknown", StoreConfig{Type: "rocksdb", Directory: "x"}, false},
		{"empty", StoreConfig{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestCreateProvider(t *testing.T) {
	p, err := CreateProvider(&StoreConfig{Type: BoltStoreType, Directory: t.TempDir()})
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.Put([]byte("k"), []byte("v")))

	_, err = CreateProvider(nil)
	assert.Error(t, err)
}

func TestNonceStore(t *testing.T) {
	s, err := NewGenericNonceStore(memProvider(t))
	require.NoError(t, err)

	next, err := s.Next(id("alice"))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), next)

	require.NoError(t, s.SetNext(id("alice"), 3))
	next, err = s.Next(id("alice"))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), next)

	next, err = s.Next(id("bob"))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), next, "nonces are per caller")
}
