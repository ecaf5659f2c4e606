package store

import (
	"encoding/binary"
	"fmt"

	"github.com/mezonai/custody/db"
	"github.com/mezonai/custody/types"
)

// NonceStore tracks the next request nonce each caller must sign. A caller with no
// record starts at zero.
type NonceStore interface {
	Next(caller types.Identity) (uint64, error)
	SetNext(caller types.Identity, next uint64) error
}

type GenericNonceStore struct {
	dbProvider db.DatabaseProvider
}

func NewGenericNonceStore(dbProvider db.DatabaseProvider) (*GenericNonceStore, error) {
	if dbProvider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}
	return &GenericNonceStore{dbProvider: dbProvider}, nil
}

func (ns *GenericNonceStore) Next(caller types.Identity) (uint64, error) {
	data, err := ns.dbProvider.Get([]byte(PrefixEnvelopeNonce + caller.String()))
	if err != nil {
		return 0, fmt.Errorf("could not read nonce of %s: %w", caller, err)
	}
	if data == nil {
		return 0, nil
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("corrupt nonce record for %s: %d bytes", caller, len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

func (ns *GenericNonceStore) SetNext(caller types.Identity, next uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], next)
	if err := ns.dbProvider.Put([]byte(PrefixEnvelopeNonce+caller.String()), buf[:]); err != nil {
		return fmt.Errorf("failed to write nonce of %s: %w", caller, err)
	}
	return nil
}
