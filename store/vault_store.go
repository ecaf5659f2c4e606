package store

import (
	"fmt"

	"github.com/mezonai/custody/db"
	"github.com/mezonai/custody/types"
)

// VaultStore persists VaultState records at their derived state address
type VaultStore interface {
	Store(addr types.Identity, state *types.VaultState) error
	Get(addr types.Identity) (*types.VaultState, error)
	Lifecycle(addr types.Identity) (types.Lifecycle, error)
	SetLifecycle(addr types.Identity, l types.Lifecycle) error
}

type GenericVaultStore struct {
	dbProvider db.DatabaseProvider
}

func NewGenericVaultStore(dbProvider db.DatabaseProvider) (*GenericVaultStore, error) {
	if dbProvider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}
	return &GenericVaultStore{dbProvider: dbProvider}, nil
}

func (vs *GenericVaultStore) Store(addr types.Identity, state *types.VaultState) error {
	data, err := state.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal vault state: %w", err)
	}
	if err := vs.dbProvider.Put([]byte(PrefixVaultState+addr.String()), data); err != nil {
		return fmt.Errorf("failed to write vault state %s: %w", addr, err)
	}
	return nil
}

// Get returns the vault state at addr, return both nil if not exist
func (vs *GenericVaultStore) Get(addr types.Identity) (*types.VaultState, error) {
	data, err := vs.dbProvider.Get([]byte(PrefixVaultState + addr.String()))
	if err != nil {
		return nil, fmt.Errorf("could not get vault state %s: %w", addr, err)
	}
	if data == nil {
		return nil, nil
	}
	var state types.VaultState
	if err := state.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal vault state %s: %w", addr, err)
	}
	return &state, nil
}

func (vs *GenericVaultStore) Lifecycle(addr types.Identity) (types.Lifecycle, error) {
	data, err := vs.dbProvider.Get([]byte(PrefixVaultLifecycle + addr.String()))
	if err != nil {
		return types.LifecycleUninitialized, fmt.Errorf("could not get vault lifecycle %s: %w", addr, err)
	}
	if len(data) == 0 {
		return types.LifecycleUninitialized, nil
	}
	return types.Lifecycle(data[0]), nil
}

func (vs *GenericVaultStore) SetLifecycle(addr types.Identity, l types.Lifecycle) error {
	return vs.dbProvider.Put([]byte(PrefixVaultLifecycle+addr.String()), []byte{byte(l)})
}
