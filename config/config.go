package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/mezonai/custody/logx"
	"github.com/mezonai/custody/types"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// ParseProfile accepts "as-built" or "hardened"; empty means the default profile
func ParseProfile(s string) (Profile, error) {
	switch Profile(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return DefaultProfile, nil
	case ProfileAsBuilt:
		return ProfileAsBuilt, nil
	case ProfileHardened:
		return ProfileHardened, nil
	default:
		return "", fmt.Errorf("unknown profile %q (want %s or %s)", s, ProfileAsBuilt, ProfileHardened)
	}
}

// LoadConfig reads config.ini, keeping defaults for missing sections and keys
func LoadConfig(path string) (*Config, error) {
	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := file.Section("custody").MapTo(&cfg.Custody); err != nil {
		return nil, fmt.Errorf("invalid [custody] section: %w", err)
	}
	if err := file.Section("store").MapTo(&cfg.Store); err != nil {
		return nil, fmt.Errorf("invalid [store] section: %w", err)
	}
	if err := file.Section("rpc").MapTo(&cfg.RPC); err != nil {
		return nil, fmt.Errorf("invalid [rpc] section: %w", err)
	}
	if file.HasSection("log") {
		cfg.LogToFile = true
		if err := file.Section("log").MapTo(&cfg.Log); err != nil {
			return nil, fmt.Errorf("invalid [log] section: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logx.Info("CONFIG", fmt.Sprintf("Loaded %s | profile=%s | store=%s | rpc=%s", path, cfg.Custody.Profile, cfg.Store.Type, cfg.RPC.ListenAddr))
	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := ParseProfile(c.Custody.Profile); err != nil {
		return err
	}
	for _, sel := range c.Custody.ExecAllowList {
		if sel > 0xff {
			return fmt.Errorf("exec selector %d does not fit in a byte", sel)
		}
	}
	if c.Custody.MaxCallDepth < 1 {
		return fmt.Errorf("max_call_depth must be positive, got %d", c.Custody.MaxCallDepth)
	}
	if c.RPC.RateLimit < 0 {
		return fmt.Errorf("rate_limit cannot be negative, got %d", c.RPC.RateLimit)
	}
	for _, proxy := range c.RPC.TrustedProxies {
		if net.ParseIP(proxy) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(proxy); err != nil {
			return fmt.Errorf("invalid trusted proxy %q", proxy)
		}
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("invalid [store] section: %w", err)
	}
	return nil
}

// Profile returns the parsed profile; Validate has already rejected bad values
func (c *Config) Profile() Profile {
	p, err := ParseProfile(c.Custody.Profile)
	if err != nil {
		return DefaultProfile
	}
	return p
}

// ExecSelectors returns the exec allow-list as bytes
func (c *Config) ExecSelectors() []byte {
	out := make([]byte, 0, len(c.Custody.ExecAllowList))
	for _, sel := range c.Custody.ExecAllowList {
		out = append(out, byte(sel))
	}
	return out
}

// LoadGenesisConfig reads and parses the genesis.yml file
func LoadGenesisConfig(path string) (*GenesisConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open genesis file: %w", err)
	}
	defer file.Close()

	var cfgFile ConfigFile
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfgFile); err != nil {
		return nil, fmt.Errorf("failed to decode genesis YAML: %w", err)
	}
	if err := cfgFile.Config.Validate(); err != nil {
		return nil, err
	}
	logx.Info("CONFIG", fmt.Sprintf("Loaded genesis | ledger_owner=%s | supply=%d | accounts=%d", cfgFile.Config.Ledger.Owner, cfgFile.Config.Ledger.Supply, len(cfgFile.Config.Accounts)))
	return &cfgFile.Config, nil
}

// Validate checks that every identity in the genesis file decodes
func (g *GenesisConfig) Validate() error {
	required := map[string]string{
		"ledger.owner":   g.Ledger.Owner,
		"ledger.admin":   g.Ledger.Admin,
		"mint.address":   g.Mint.Address,
		"mint.authority": g.Mint.Authority,
		"vault.admin":    g.Vault.Admin,
	}
	for field, v := range required {
		if _, err := types.ParseIdentity(v); err != nil {
			return fmt.Errorf("genesis %s: %w", field, err)
		}
	}
	if g.Ledger.ID != "" {
		if _, err := types.ParseIdentity(g.Ledger.ID); err != nil {
			return fmt.Errorf("genesis ledger.id: %w", err)
		}
	}
	for i, acc := range g.Accounts {
		if _, err := types.ParseIdentity(acc.Owner); err != nil {
			return fmt.Errorf("genesis accounts[%d].owner: %w", i, err)
		}
	}
	return nil
}

// LedgerID resolves the ledger identity, defaulting to the built-in program identity
func (g *GenesisConfig) LedgerID(fallback types.Identity) types.Identity {
	if g.Ledger.ID == "" {
		return fallback
	}
	return types.MustParseIdentity(g.Ledger.ID)
}

// LoadEd25519PrivKey loads an Ed25519 private key from a file (expects hex encoding)
func LoadEd25519PrivKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("invalid key encoding in %s: %w", path, err)
	}
	switch len(key) {
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(key), nil
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(key), nil
	default:
		return nil, fmt.Errorf("invalid key length %d in %s", len(key), path)
	}
}

// SaveEd25519PrivKey writes the 32-byte seed hex encoded with owner-only permissions
func SaveEd25519PrivKey(path string, key ed25519.PrivateKey) error {
	return os.WriteFile(path, []byte(hex.EncodeToString(key.Seed())), 0o600)
}
