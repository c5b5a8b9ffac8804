// Package config loads validator configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Peer describes another party in the cohort.
type Peer struct {
	ID   int    `yaml:"id"`
	Host string `yaml:"host"`
}

// EVMChain holds configuration for the EVM-style chain leg of the bridge.
type EVMChain struct {
	RPCURL                string `yaml:"rpc_url"`
	BridgeContractAddress string `yaml:"bridge_contract_address"`
	TokenOfInterest       string `yaml:"token_of_interest"`
	RequiredConfirmations int    `yaml:"required_confirmations"`
	ChainID               int64  `yaml:"chain_id"`
	ChainTag              string `yaml:"chain_tag"`
	// RelayKeyHex funds the withdrawal submission transaction's gas; it
	// authorizes nothing, the TSS group signature does.
	RelayKeyHex string `yaml:"relay_key_hex"`
}

// AssetChain holds configuration for the UTXO-style asset chain leg.
type AssetChain struct {
	DaemonRPCURL          string `yaml:"daemon_rpc_url"`
	WalletRPCURL          string `yaml:"wallet_rpc_url"`
	AssetID               string `yaml:"asset_id"`
	RequiredConfirmations int    `yaml:"required_confirmations"`
	ChainTag              string `yaml:"chain_tag"`
}

// Config is the root configuration object for one party process.
type Config struct {
	PartyID      int    `yaml:"party_id"`
	TotalParties int    `yaml:"total_parties"`
	Threshold    int    `yaml:"threshold"`
	BasePort     int    `yaml:"base_port"`
	BusSecret    string `yaml:"bus_shared_secret"`
	Peers        []Peer `yaml:"peers"`

	EVM   EVMChain   `yaml:"evm"`
	Asset AssetChain `yaml:"asset"`

	// TokenIDMapping maps asset-chain asset ids to their EVM token address
	// counterpart.
	TokenIDMapping map[string]string `yaml:"token_id_mapping"`

	SessionIntervalMS  Duration `yaml:"session_interval_ms"`
	ConsensusTimeoutMS Duration `yaml:"consensus_timeout_ms"`
	SigningTimeoutMS   Duration `yaml:"signing_timeout_ms"`

	DataDir  string `yaml:"data_dir"`
	LogLevel string `yaml:"log_level"`

	HealthAddr string `yaml:"health_addr"`

	reverseTokenMapping map[string]string
}

// Duration wraps time.Duration so it can be loaded from a plain
// millisecond integer in YAML, matching the millisecond-suffixed field
// names used throughout this config (session_interval_ms, etc).
type Duration time.Duration

// UnmarshalYAML accepts a bare integer (milliseconds) or a Go duration
// string ("1500ms").
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var asInt int64
	if err := value.Decode(&asInt); err == nil {
		*d = Duration(time.Duration(asInt) * time.Millisecond)
		return nil
	}
	var asString string
	if err := value.Decode(&asString); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	parsed, err := time.ParseDuration(asString)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", asString, err)
	}
	*d = Duration(parsed)
	return nil
}

// Dur returns the time.Duration value.
func (d Duration) Dur() time.Duration { return time.Duration(d) }

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-[^}]*)?\}`)

// expandEnv substitutes ${VAR} and ${VAR:-default} references in raw YAML
// bytes before parsing, layering environment overrides on top of
// file-based settings.
func expandEnv(raw []byte) []byte {
	return envVarPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		groups := envVarPattern.FindSubmatch(match)
		name := string(groups[1])
		def := ""
		if len(groups[2]) > 2 {
			def = string(groups[2][2:])
		}
		if v := os.Getenv(name); v != "" {
			return []byte(v)
		}
		return []byte(def)
	})
}

// Load reads configuration from a YAML file at path, applying
// ${VAR}/${VAR:-default} environment substitution, then validates it.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	raw = expandEnv(raw)

	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.BasePort == 0 {
		cfg.BasePort = 9100
	}
	if cfg.SessionIntervalMS == 0 {
		cfg.SessionIntervalMS = Duration(30 * time.Second)
	}
	if cfg.ConsensusTimeoutMS == 0 {
		cfg.ConsensusTimeoutMS = Duration(10 * time.Second)
	}
	if cfg.SigningTimeoutMS == 0 {
		cfg.SigningTimeoutMS = Duration(15 * time.Second)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.HealthAddr == "" {
		cfg.HealthAddr = "0.0.0.0:8090"
	}
	if cfg.EVM.RequiredConfirmations == 0 {
		cfg.EVM.RequiredConfirmations = 64
	}
	if cfg.EVM.ChainTag == "" {
		cfg.EVM.ChainTag = "evm"
	}
	if cfg.Asset.RequiredConfirmations == 0 {
		cfg.Asset.RequiredConfirmations = 10
	}
	if cfg.Asset.ChainTag == "" {
		cfg.Asset.ChainTag = "asset"
	}
}

// Validate ensures the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.TotalParties <= 0 {
		return fmt.Errorf("total_parties must be positive")
	}
	if c.Threshold <= 0 || c.Threshold > c.TotalParties {
		return fmt.Errorf("threshold must be in (0, total_parties]")
	}
	if c.PartyID < 0 || c.PartyID >= c.TotalParties {
		return fmt.Errorf("party_id %d out of range [0, %d)", c.PartyID, c.TotalParties)
	}
	if len(c.Peers) != c.TotalParties {
		return fmt.Errorf("expected %d peer entries, got %d", c.TotalParties, len(c.Peers))
	}
	if c.BusSecret == "" {
		return fmt.Errorf("bus_shared_secret must not be empty")
	}
	if c.EVM.BridgeContractAddress == "" {
		return fmt.Errorf("evm.bridge_contract_address must not be empty")
	}

	c.reverseTokenMapping = make(map[string]string, len(c.TokenIDMapping))
	for assetID, evmToken := range c.TokenIDMapping {
		c.reverseTokenMapping[evmToken] = assetID
	}
	return nil
}

// ListenPort is this party's bus listener port: base_port + party_id.
func (c *Config) ListenPort() int {
	return c.BasePort + c.PartyID
}

// PeerHost returns the host table entry for the given party id.
func (c *Config) PeerHost(partyID int) (string, error) {
	for _, p := range c.Peers {
		if p.ID == partyID {
			return p.Host, nil
		}
	}
	return "", fmt.Errorf("no peer host configured for party %d", partyID)
}

// MapAssetToEVMToken maps an asset-chain asset id to its EVM token address
// using the static configuration table.
func (c *Config) MapAssetToEVMToken(assetID string) (string, error) {
	token, ok := c.TokenIDMapping[assetID]
	if !ok {
		return "", fmt.Errorf("no token mapping configured for asset id %q", assetID)
	}
	return token, nil
}

// MapEVMTokenToAsset is the reverse lookup of MapAssetToEVMToken, used when
// observing an EVM-side deposit destined for the asset chain.
func (c *Config) MapEVMTokenToAsset(evmToken string) (string, error) {
	assetID, ok := c.reverseTokenMapping[evmToken]
	if !ok {
		return "", fmt.Errorf("no asset mapping configured for token address %q", evmToken)
	}
	return assetID, nil
}
