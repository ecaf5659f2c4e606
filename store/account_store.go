package store

import (
	"fmt"

	"github.com/mezonai/custody/db"
	"github.com/mezonai/custody/types"
)

// AssetStore persists asset mints and asset accounts of the external asset program
type AssetStore interface {
	StoreMint(mint *types.AssetMint) error
	GetMint(addr types.Identity) (*types.AssetMint, error)
	StoreAccount(account *types.AssetAccount) error
	StoreAccounts(accounts []*types.AssetAccount) error
	GetAccount(addr types.Identity) (*types.AssetAccount, error)
	ExistsAccount(addr types.Identity) (bool, error)
}

type GenericAssetStore struct {
	dbProvider db.DatabaseProvider
}

func NewGenericAssetStore(dbProvider db.DatabaseProvider) (*GenericAssetStore, error) {
	if dbProvider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}

	return &GenericAssetStore{
		dbProvider: dbProvider,
	}, nil
}

func (as *GenericAssetStore) StoreMint(mint *types.AssetMint) error {
	data, err := mint.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal mint: %w", err)
	}
	if err := as.dbProvider.Put(mintKey(mint.Address), data); err != nil {
		return fmt.Errorf("failed to write mint to db: %w", err)
	}
	return nil
}

// GetMint returns the mint from db, return both nil if not exist
func (as *GenericAssetStore) GetMint(addr types.Identity) (*types.AssetMint, error) {
	data, err := as.dbProvider.Get(mintKey(addr))
	if err != nil {
		return nil, fmt.Errorf("could not get mint %s from db: %w", addr, err)
	}
	if data == nil {
		return nil, nil
	}
	mint := &types.AssetMint{Address: addr}
	if err := mint.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal mint %s: %w", addr, err)
	}
	return mint, nil
}

func (as *GenericAssetStore) StoreAccount(account *types.AssetAccount) error {
	return as.StoreAccounts([]*types.AssetAccount{account})
}

func (as *GenericAssetStore) StoreAccounts(accounts []*types.AssetAccount) error {
	batch := as.dbProvider.Batch()
	defer batch.Close()

	for _, account := range accounts {
		data, err := account.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal asset account: %w", err)
		}
		batch.Put(accountKey(account.Address), data)
	}

	if err := batch.Write(); err != nil {
		return fmt.Errorf("failed to write batch of asset accounts to database: %w", err)
	}
	return nil
}

// GetAccount returns the asset account from db, return both nil if not exist
func (as *GenericAssetStore) GetAccount(addr types.Identity) (*types.AssetAccount, error) {
	data, err := as.dbProvider.Get(accountKey(addr))
	if err != nil {
		return nil, fmt.Errorf("could not get asset account %s from db: %w", addr, err)
	}

	// Account doesn't exist
	if data == nil {
		return nil, nil
	}

	account := &types.AssetAccount{Address: addr}
	if err := account.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal asset account %s: %w", addr, err)
	}
	return account, nil
}

func (as *GenericAssetStore) ExistsAccount(addr types.Identity) (bool, error) {
	return as.dbProvider.Has(accountKey(addr))
}

func mintKey(addr types.Identity) []byte {
	return []byte(PrefixAssetMint + addr.String())
}

func accountKey(addr types.Identity) []byte {
	return []byte(PrefixAssetAccount + addr.String())
}
