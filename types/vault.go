package types

import (
	"encoding/binary"
	"fmt"
)

// VaultStateSize is the logical payload of a persisted VaultState:
// admin (32) + mint (32) + total_deposits (8) + bump (1).
const VaultStateSize = IdentitySize + IdentitySize + 8 + 1

// VaultState is one vault per custodied asset type.
type VaultState struct {
	Admin         Identity `json:"admin"`
	Mint          Identity `json:"mint"`
	TotalDeposits uint64   `json:"total_deposits"`
	Bump          uint8    `json:"bump"`
}

// MarshalBinary encodes the state in its fixed 73-byte layout
func (s *VaultState) MarshalBinary() ([]byte, error) {
	buf := make([]byte, VaultStateSize)
	copy(buf[0:32], s.Admin[:])
	copy(buf[32:64], s.Mint[:])
	binary.LittleEndian.PutUint64(buf[64:72], s.TotalDeposits)
	buf[72] = s.Bump
	return buf, nil
}

func (s *VaultState) UnmarshalBinary(data []byte) error {
	if len(data) != VaultStateSize {
		return fmt.Errorf("invalid vault state length: %d", len(data))
	}
	copy(s.Admin[:], data[0:32])
	copy(s.Mint[:], data[32:64])
	s.TotalDeposits = binary.LittleEndian.Uint64(data[64:72])
	s.Bump = data[72]
	return nil
}
