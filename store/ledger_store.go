package store

import (
	"encoding/binary"
	"fmt"

	"github.com/mezonai/custody/db"
	"github.com/mezonai/custody/types"
)

// LedgerStore owns the data of one fungible ledger instance.
// Missing u64 values read as zero; missing owner/admin read as (zero, false).
type LedgerStore interface {
	Owner() (types.Identity, bool, error)
	SetOwner(id types.Identity) error
	Admin() (types.Identity, bool, error)
	SetAdmin(id types.Identity) error

	TotalSupply() (uint64, error)
	SetTotalSupply(v uint64) error

	Balance(who types.Identity) (uint64, error)
	SetBalance(who types.Identity, v uint64) error

	Allowance(owner, spender types.Identity) (uint64, error)
	SetAllowance(owner, spender types.Identity, v uint64) error

	Nonce(who types.Identity) (uint64, error)
	SetNonce(who types.Identity, v uint64) error

	Lifecycle() (types.Lifecycle, error)
	SetLifecycle(l types.Lifecycle) error

	// IterateBalances visits every stored balance; fn returns false to stop
	IterateBalances(fn func(who types.Identity, balance uint64) bool) error
}

type GenericLedgerStore struct {
	dbProvider db.DatabaseProvider
	namespace  string
}

// NewGenericLedgerStore scopes all keys under the ledger identity
func NewGenericLedgerStore(dbProvider db.DatabaseProvider, ledgerID types.Identity) (*GenericLedgerStore, error) {
	if dbProvider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}
	return &GenericLedgerStore{
		dbProvider: dbProvider,
		namespace:  PrefixLedger + ledgerID.String() + ":",
	}, nil
}

func (ls *GenericLedgerStore) key(suffix string) []byte {
	return []byte(ls.namespace + suffix)
}

func (ls *GenericLedgerStore) readIdentity(suffix string) (types.Identity, bool, error) {
	var id types.Identity
	data, err := ls.dbProvider.Get(ls.key(suffix))
	if err != nil {
		return id, false, fmt.Errorf("could not read %s: %w", suffix, err)
	}
	if data == nil {
		return id, false, nil
	}
	if len(data) != types.IdentitySize {
		return id, false, fmt.Errorf("corrupt %s record: %d bytes", suffix, len(data))
	}
	copy(id[:], data)
	return id, true, nil
}

func (ls *GenericLedgerStore) readU64(suffix string) (uint64, error) {
	data, err := ls.dbProvider.Get(ls.key(suffix))
	if err != nil {
		return 0, fmt.Errorf("could not read %s: %w", suffix, err)
	}
	if data == nil {
		return 0, nil
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("corrupt %s record: %d bytes", suffix, len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

func (ls *GenericLedgerStore) writeU64(suffix string, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	if err := ls.dbProvider.Put(ls.key(suffix), buf[:]); err != nil {
		return fmt.Errorf("failed to write %s: %w", suffix, err)
	}
	return nil
}

func (ls *GenericLedgerStore) Owner() (types.Identity, bool, error) {
	return ls.readIdentity(LedgerKeyOwner)
}

func (ls *GenericLedgerStore) SetOwner(id types.Identity) error {
	return ls.dbProvider.Put(ls.key(LedgerKeyOwner), id.Bytes())
}

func (ls *GenericLedgerStore) Admin() (types.Identity, bool, error) {
	return ls.readIdentity(LedgerKeyAdmin)
}

func (ls *GenericLedgerStore) SetAdmin(id types.Identity) error {
	return ls.dbProvider.Put(ls.key(LedgerKeyAdmin), id.Bytes())
}

func (ls *GenericLedgerStore) TotalSupply() (uint64, error) {
	return ls.readU64(LedgerKeyTotalSupply)
}

func (ls *GenericLedgerStore) SetTotalSupply(v uint64) error {
	return ls.writeU64(LedgerKeyTotalSupply, v)
}

func (ls *GenericLedgerStore) Balance(who types.Identity) (uint64, error) {
	return ls.readU64(LedgerPrefixBalance + who.String())
}

func (ls *GenericLedgerStore) SetBalance(who types.Identity, v uint64) error {
	return ls.writeU64(LedgerPrefixBalance+who.String(), v)
}

func (ls *GenericLedgerStore) Allowance(owner, spender types.Identity) (uint64, error) {
	return ls.readU64(allowanceSuffix(owner, spender))
}

func (ls *GenericLedgerStore) SetAllowance(owner, spender types.Identity, v uint64) error {
	return ls.writeU64(allowanceSuffix(owner, spender), v)
}

func (ls *GenericLedgerStore) Nonce(who types.Identity) (uint64, error) {
	return ls.readU64(LedgerPrefixNonce + who.String())
}

func (ls *GenericLedgerStore) SetNonce(who types.Identity, v uint64) error {
	return ls.writeU64(LedgerPrefixNonce+who.String(), v)
}

func (ls *GenericLedgerStore) Lifecycle() (types.Lifecycle, error) {
	data, err := ls.dbProvider.Get(ls.key(LedgerKeyLifecycle))
	if err != nil {
		return types.LifecycleUninitialized, fmt.Errorf("could not read lifecycle: %w", err)
	}
	if len(data) == 0 {
		return types.LifecycleUninitialized, nil
	}
	return types.Lifecycle(data[0]), nil
}

func (ls *GenericLedgerStore) SetLifecycle(l types.Lifecycle) error {
	return ls.dbProvider.Put(ls.key(LedgerKeyLifecycle), []byte{byte(l)})
}

func (ls *GenericLedgerStore) IterateBalances(fn func(who types.Identity, balance uint64) bool) error {
	iterable, ok := ls.dbProvider.(db.IterableProvider)
	if !ok {
		return db.ErrNotIterable
	}
	prefix := ls.key(LedgerPrefixBalance)
	var decodeErr error
	err := iterable.IteratePrefix(prefix, func(key, value []byte) bool {
		who, err := types.ParseIdentity(string(key[len(prefix):]))
		if err != nil {
			decodeErr = fmt.Errorf("corrupt balance key %q: %w", key, err)
			return false
		}
		if len(value) != 8 {
			decodeErr = fmt.Errorf("corrupt balance for %s: %d bytes", who, len(value))
			return false
		}
		return fn(who, binary.BigEndian.Uint64(value))
	})
	if err != nil {
		return err
	}
	return decodeErr
}

func allowanceSuffix(owner, spender types.Identity) string {
	return LedgerPrefixAllowance + owner.String() + ":" + spender.String()
}
