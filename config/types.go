package config

import (
	"github.com/mezonai/custody/logx"
	"github.com/mezonai/custody/store"
)

// Profile selects between reproducing the programs as built and the hardened variants
type Profile string

const (
	ProfileAsBuilt  Profile = "as-built"
	ProfileHardened Profile = "hardened"
)

func (p Profile) Hardened() bool {
	return p == ProfileHardened
}

func (p Profile) String() string {
	return string(p)
}

// CustodyConfig is the [custody] section of config.ini
type CustodyConfig struct {
	Profile string `ini:"profile"`
	// ExecAllowList holds the permitted exec selectors (first byte of the data buffer)
	ExecAllowList []uint `ini:"exec_allow_list" delim:","`
	MaxCallDepth  int    `ini:"max_call_depth"`
}

// RPCConfig is the [rpc] section of config.ini
type RPCConfig struct {
	ListenAddr string `ini:"listen_addr"`
	// RateLimit is the number of requests per second allowed per client IP, 0 disables it
	RateLimit int `ini:"rate_limit"`
	// TrustedProxies lists proxy IPs or CIDRs allowed to report the client in X-Forwarded-For
	TrustedProxies []string `ini:"trusted_proxies" delim:","`
}

// Config holds the runtime configuration read from config.ini
type Config struct {
	Custody CustodyConfig
	Store   store.StoreConfig
	RPC     RPCConfig
	Log     logx.FileConfig
	// LogToFile is set when the [log] section is present
	LogToFile bool
}

// LedgerGenesis seeds the fungible ledger
type LedgerGenesis struct {
	// ID is a base58 identity; empty means the built-in ledger program identity
	ID     string `yaml:"id"`
	Owner  string `yaml:"owner"`
	Admin  string `yaml:"admin"`
	Supply uint64 `yaml:"supply"`
}

// MintGenesis describes the custodied asset type
type MintGenesis struct {
	Address   string `yaml:"address"`
	Authority string `yaml:"authority"`
}

// VaultGenesis seeds the vault for the genesis mint
type VaultGenesis struct {
	Admin string `yaml:"admin"`
	Bump  uint8  `yaml:"bump"`
}

// AssetAccountGenesis creates and funds an asset account for owner
type AssetAccountGenesis struct {
	Owner  string `yaml:"owner"`
	Amount uint64 `yaml:"amount"`
}

// GenesisConfig holds the configuration from genesis.yml
type GenesisConfig struct {
	Ledger   LedgerGenesis         `yaml:"ledger"`
	Mint     MintGenesis           `yaml:"mint"`
	Vault    VaultGenesis          `yaml:"vault"`
	Accounts []AssetAccountGenesis `yaml:"accounts"`
}

// ConfigFile is the top-level structure for genesis.yml
type ConfigFile struct {
	Config GenesisConfig `yaml:"config"`
}
