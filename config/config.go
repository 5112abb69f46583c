// Package config holds node configuration and genesis construction.
package config

import (
	"encoding/json"
	"os"
)

// GenesisConfig describes the chain's initial state.
type GenesisConfig struct {
	ChainID string                       `json:"chain_id"`
	Alloc   map[string]map[string]uint64 `json:"alloc"` // pubkey hex → currency → initial balance
	Rates   map[string]uint64            `json:"rates"` // currency → base units per USD cent
}

// RolesConfig names the pubkeys trusted for privileged transactions.
type RolesConfig struct {
	Operator string `json:"operator"`
	Oracle   string `json:"oracle"`
	Issuer   string `json:"issuer"`
}

// TLSConfig holds PEM paths for mutual-TLS p2p connections.
type TLSConfig struct {
	CACert   string `json:"ca_cert"`
	NodeCert string `json:"node_cert"`
	NodeKey  string `json:"node_key"`
}

// Config holds all node configuration.
type Config struct {
	NodeID       string        `json:"node_id"`
	DataDir      string        `json:"data_dir"`
	RPCPort      int           `json:"rpc_port"`
	P2PPort      int           `json:"p2p_port"`
	RPCAuthToken string        `json:"rpc_auth_token"` // empty → no RPC auth
	MaxBlockTxs  int           `json:"max_block_txs"`  // max transactions per block; 0 → 500
	Validators   []string      `json:"validators"`     // authorised proposer pubkey hexes
	SeedPeers    []string      `json:"seed_peers"`     // "id@host:port" entries dialed at startup
	TLS          *TLSConfig    `json:"tls,omitempty"`
	LogLevel     string        `json:"log_level"`   // debug, info, warn, error; empty → info
	ParamsFile   string        `json:"params_file"` // YAML game parameters; empty → built-in defaults
	Roles        RolesConfig   `json:"roles"`
	OracleURL    string        `json:"oracle_url"` // randomness service; empty + DevMode → in-process dev oracle
	IssuerURL    string        `json:"issuer_url"` // reward issuer service; empty + DevMode → in-process dev issuer
	DevMode      bool          `json:"dev_mode"`
	Genesis      GenesisConfig `json:"genesis"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:      "node0",
		DataDir:     "./data",
		RPCPort:     8545,
		P2PPort:     30303,
		MaxBlockTxs: 500,
		LogLevel:    "info",
		DevMode:     true,
		Genesis: GenesisConfig{
			ChainID: "wildchain-dev",
			Alloc:   map[string]map[string]uint64{},
			Rates:   map[string]uint64{},
		},
	}
}

// Load reads a JSON config file from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
