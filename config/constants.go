package config

import "github.com/mezonai/custody/store"

const (
	DefaultProfile      = ProfileAsBuilt
	DefaultMaxCallDepth = 4
	DefaultListenAddr   = "127.0.0.1:8545"
	DefaultDataDir      = "./data"
	DefaultConfigFile   = "config.ini"
	DefaultGenesisFile  = "genesis.yml"
	DefaultVaultBump    = 255
)

// DefaultConfig is used when no config.ini is given
func DefaultConfig() *Config {
	return &Config{
		Custody: CustodyConfig{
			Profile:      string(DefaultProfile),
			MaxCallDepth: DefaultMaxCallDepth,
		},
		Store: store.StoreConfig{
			Type:      store.LevelDBStoreType,
			Directory: DefaultDataDir,
		},
		RPC: RPCConfig{ListenAddr: DefaultListenAddr},
	}
}
