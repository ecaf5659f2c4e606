package types

import (
	"encoding/binary"
	"fmt"
)

// AssetAccountSize is mint (32) + owner (32) + amount (8).
const AssetAccountSize = IdentitySize + IdentitySize + 8

// AssetMintSize is authority (32) + supply (8).
const AssetMintSize = IdentitySize + 8

// AssetAccount holds an amount of one asset type on behalf of Owner.
type AssetAccount struct {
	Address Identity `json:"address"`
	Mint    Identity `json:"mint"`
	Owner   Identity `json:"owner"`
	Amount  uint64   `json:"amount"`
}

// AssetMint describes an asset type and who may create new units of it.
type AssetMint struct {
	Address   Identity `json:"address"`
	Authority Identity `json:"authority"`
	Supply    uint64   `json:"supply"`
}

// MarshalBinary encodes the account without its address (the address is the storage key).
func (a *AssetAccount) MarshalBinary() ([]byte, error) {
	buf := make([]byte, AssetAccountSize)
	copy(buf[0:32], a.Mint[:])
	copy(buf[32:64], a.Owner[:])
	binary.LittleEndian.PutUint64(buf[64:72], a.Amount)
	return buf, nil
}

func (a *AssetAccount) UnmarshalBinary(data []byte) error {
	if len(data) != AssetAccountSize {
		return fmt.Errorf("invalid asset account length: %d", len(data))
	}
	copy(a.Mint[:], data[0:32])
	copy(a.Owner[:], data[32:64])
	a.Amount = binary.LittleEndian.Uint64(data[64:72])
	return nil
}

func (m *AssetMint) MarshalBinary() ([]byte, error) {
	buf := make([]byte, AssetMintSize)
	copy(buf[0:32], m.Authority[:])
	binary.LittleEndian.PutUint64(buf[32:40], m.Supply)
	return buf, nil
}

func (m *AssetMint) UnmarshalBinary(data []byte) error {
	if len(data) != AssetMintSize {
		return fmt.Errorf("invalid asset mint length: %d", len(data))
	}
	copy(m.Authority[:], data[0:32])
	m.Supply = binary.LittleEndian.Uint64(data[32:40])
	return nil
}
