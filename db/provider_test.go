package db

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemProvider(t *testing.T) *LevelDBProvider {
	t.Helper()
	p, err := NewMemLevelDBProvider()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

// exerciseProvider runs the same contract checks against any backend
func exerciseProvider(t *testing.T, p IterableProvider) {
	v, err := p.Get([]byte("missing"))
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, p.Put([]byte("ledger:bal:a"), []byte{1}))
	require.NoError(t, p.Put([]byte("ledger:bal:b"), []byte{2}))
	require.NoError(t, p.Put([]byte("vault:state:x"), []byte{3}))

	has, err := p.Has([]byte("ledger:bal:a"))
	require.NoError(t, err)
	assert.True(t, has)

	got, err := p.GetBatch([][]byte{[]byte("ledger:bal:a"), []byte("nope")})
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"ledger:bal:a": {1}}, got)

	var keys []string
	require.NoError(t, p.IteratePrefix([]byte("ledger:bal:"), func(key, value []byte) bool {
		keys = append(keys, string(key))
		return true
	}))
	assert.ElementsMatch(t, []string{"ledger:bal:a", "ledger:bal:b"}, keys)

	batch := p.Batch()
	batch.Put([]byte("k1"), []byte("v1"))
	batch.Delete([]byte("ledger:bal:a"))
	require.NoError(t, batch.Write())
	require.NoError(t, batch.Close())

	v, err = p.Get([]byte("k1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), v)
	has, err = p.Has([]byte("ledger:bal:a"))
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, p.Delete([]byte("k1")))
	v, err = p.Get([]byte("k1"))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestLevelDBProvider(t *testing.T) {
	exerciseProvider(t, newMemProvider(t))
}

func TestLevelDBProviderOnDisk(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "leveldb")
	p, err := NewLevelDBProvider(dir)
	require.NoError(t, err)
	defer p.Close()
	exerciseProvider(t, p)

	require.NoError(t, p.Close())
	assert.NoError(t, p.Close(), "double close must be a no-op")
}

func TestBoltProvider(t *testing.T) {
	p, err := NewBoltProvider(filepath.Join(t.TempDir(), "custody.db"))
	require.NoError(t, err)
	defer p.Close()
	exerciseProvider(t, p)
}

func TestRedisProvider(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	p, err := NewRedisProvider(addr, 15)
	require.NoError(t, err)
	defer p.Close()
	exerciseProvider(t, p)
}

func TestOverlayReadYourWrites(t *testing.T) {
	base := newMemProvider(t)
	require.NoError(t, base.Put([]byte("a"), []byte("base-a")))
	require.NoError(t, base.Put([]byte("b"), []byte("base-b")))

	o := NewOverlay(base)
	require.NoError(t, o.Put([]byte("a"), []byte("new-a")))
	require.NoError(t, o.Delete([]byte("b")))
	require.NoError(t, o.Put([]byte("c"), []byte("new-c")))

	v, _ := o.Get([]byte("a"))
	assert.Equal(t, []byte("new-a"), v)
	v, _ = o.Get([]byte("b"))
	assert.Nil(t, v)
	has, _ := o.Has([]byte("b"))
	assert.False(t, has)

	// base untouched until commit
	v, _ = base.Get([]byte("a"))
	assert.Equal(t, []byte("base-a"), v)
	assert.Equal(t, 3, o.Pending())

	require.NoError(t, o.Commit())
	assert.Equal(t, 0, o.Pending())

	v, _ = base.Get([]byte("a"))
	assert.Equal(t, []byte("new-a"), v)
	has, _ = base.Has([]byte("b"))
	assert.False(t, has)
	v, _ = base.Get([]byte("c"))
	assert.Equal(t, []byte("new-c"), v)
}

func TestOverlayDiscard(t *testing.T) {
	base := newMemProvider(t)
	o := NewOverlay(base)
	require.NoError(t, o.Put([]byte("x"), []byte("1")))
	o.Discard()
	require.NoError(t, o.Commit())

	has, err := base.Has([]byte("x"))
	require.NoError(t, err)
	assert.False(t, has)
}

func TestNestedOverlay(t *testing.T) {
	base := newMemProvider(t)
	parent := NewOverlay(base)
	require.NoError(t, parent.Put([]byte("p"), []byte("1")))

	child := NewOverlay(parent)
	v, _ := child.Get([]byte("p"))
	assert.Equal(t, []byte("1"), v, "child must see parent writes")

	require.NoError(t, child.Put([]byte("c"), []byte("2")))
	require.NoError(t, child.Commit())

	has, _ := base.Has([]byte("c"))
	assert.False(t, has, "child commit folds into parent only")
	v, _ = parent.Get([]byte("c"))
	assert.Equal(t, []byte("2"), v)

	discarded := NewOverlay(parent)
	require.NoError(t, discarded.Put([]byte("d"), []byte("3")))
	discarded.Discard()

	require.NoError(t, parent.Commit())
	v, _ = base.Get([]byte("c"))
	assert.Equal(t, []byte("2"), v)
	has, _ = base.Has([]byte("d"))
	assert.False(t, has)
}

func TestOverlayIteratePrefix(t *testing.T) {
	base := newMemProvider(t)
	require.NoError(t, base.Put([]byte("bal:a"), []byte{1}))
	require.NoError(t, base.Put([]byte("bal:b"), []byte{2}))
	require.NoError(t, base.Put([]byte("other"), []byte{9}))

	o := NewOverlay(base)
	require.NoError(t, o.Delete([]byte("bal:a")))
	require.NoError(t, o.Put([]byte("bal:c"), []byte{3}))

	var keys []string
	var sum int
	require.NoError(t, o.IteratePrefix([]byte("bal:"), func(key, value []byte) bool {
		keys = append(keys, string(key))
		sum += int(value[0])
		return true
	}))
	assert.Equal(t, []string{"bal:b", "bal:c"}, keys)
	assert.Equal(t, 5, sum)

	nested := NewOverlay(o)
	keys = nil
	require.NoError(t, nested.IteratePrefix([]byte("bal:"), func(key, value []byte) bool {
		keys = append(keys, string(key))
		return false
	}))
	assert.Equal(t, []string{"bal:b"}, keys)
}

type plainProvider struct{ DatabaseProvider }

func TestOverlayIterateRequiresIterableBase(t *testing.T) {
	o := NewOverlay(plainProvider{newMemProvider(t)})
	err := o.IteratePrefix([]byte("x"), func(_, _ []byte) bool { return true })
	assert.True(t, errors.Is(err, ErrNotIterable))
}

func TestDBTxManager(t *testing.T) {
	base := newMemProvider(t)
	tm := NewDBTxManager(base)

	boom := errors.New("boom")
	err := tm.WithOverlay(func(view *Overlay) error {
		require.NoError(t, view.Put([]byte("k"), []byte("v")))
		return boom
	})
	assert.Same(t, boom, err)
	has, _ := base.Has([]byte("k"))
	assert.False(t, has)

	require.NoError(t, tm.WithOverlay(func(view *Overlay) error {
		return view.Put([]byte("k"), []byte("v"))
	}))
	has, _ = base.Has([]byte("k"))
	assert.True(t, has)

	err = tm.WithBatch(func(batch DatabaseBatch) error {
		batch.Put([]byte("b"), []byte("1"))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	has, _ = base.Has([]byte("b"))
	assert.False(t, has)
}
