package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/alznet/niev/internal/types"
)

// EnvPrefix is the prefix of every environment override
const EnvPrefix = "NIEV"

// Config represents the application configuration
type Config struct {
	SourceChain string          `yaml:"source_chain" envconfig:"SOURCE_CHAIN"`
	Logging     LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Connector   ConnectorConfig `yaml:"connector" envconfig:"CONNECTOR"`
	Consensus   ConsensusConfig `yaml:"consensus" envconfig:"CONSENSUS"`
	ZK          ZKConfig        `yaml:"zk" envconfig:"ZK"`
	Registry    RegistryConfig  `yaml:"registry" envconfig:"REGISTRY"`
	Atomic      AtomicConfig    `yaml:"atomic" envconfig:"ATOMIC"`
	Metrics     MetricsConfig   `yaml:"metrics" envconfig:"METRICS"`
}

// LoggingConfig represents the logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level" envconfig:"LEVEL"`
	Format     string `yaml:"format" envconfig:"FORMAT"`
	File       string `yaml:"file" envconfig:"FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" envconfig:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" envconfig:"MAX_BACKUPS"`
}

// ConnectorConfig represents the chain connector configuration
type ConnectorConfig struct {
	Timeout    time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	Latency    time.Duration `yaml:"latency" envconfig:"LATENCY"`
	FailChains []string      `yaml:"fail_chains" envconfig:"FAIL_CHAINS"`
	EVM        []EVMEndpoint `yaml:"evm" ignored:"true"`
}

// EVMEndpoint represents one JSON-RPC backed chain
type EVMEndpoint struct {
	Chain     string  `yaml:"chain"`
	URL       string  `yaml:"url"`
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

// ConsensusConfig represents the chain to consensus family mapping
type ConsensusConfig struct {
	Default    string            `yaml:"default" envconfig:"DEFAULT"`
	ChainTypes map[string]string `yaml:"chain_types" envconfig:"CHAIN_TYPES"`
}

// ZKConfig represents the proof backend configuration
type ZKConfig struct {
	Backend   string `yaml:"backend" envconfig:"BACKEND"`
	ProofType string `yaml:"proof_type" envconfig:"PROOF_TYPE"`
}

// RegistryConfig represents the proof registry configuration
type RegistryConfig struct {
	Backend string        `yaml:"backend" envconfig:"BACKEND"`
	TTL     time.Duration `yaml:"ttl" envconfig:"TTL"`
	Redis   RedisConfig   `yaml:"redis" envconfig:"REDIS"`
}

// RedisConfig represents the redis connection settings
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"ADDR"`
	Password string `yaml:"password" envconfig:"PASSWORD"`
	DB       int    `yaml:"db" envconfig:"DB"`
	Prefix   string `yaml:"prefix" envconfig:"PREFIX"`
}

// AtomicConfig represents the orchestrator configuration
type AtomicConfig struct {
	Parallel  bool   `yaml:"parallel" envconfig:"PARALLEL"`
	RecordDir string `yaml:"record_dir" envconfig:"RECORD_DIR"`
}

// MetricsConfig represents the metrics configuration
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" envconfig:"ENABLED"`
	Namespace string `yaml:"namespace" envconfig:"NAMESPACE"`
}

// DefaultConfig returns a configuration that runs fully in memory
func DefaultConfig() *Config {
	return &Config{
		SourceChain: "allianza",
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
		Connector: ConnectorConfig{
			Timeout: 30 * time.Second,
		},
		Consensus: ConsensusConfig{
			Default: "pow",
			ChainTypes: map[string]string{
				"polygon":  "pos",
				"ethereum": "pos",
				"bsc":      "pos",
				"base":     "pos",
				"solana":   "parallel",
				"cosmos":   "tendermint",
				"bitcoin":  "pow",
			},
		},
		ZK: ZKConfig{
			Backend:   "placeholder",
			ProofType: "snark",
		},
		Registry: RegistryConfig{
			Backend: "memory",
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "niev:",
			},
		},
		Metrics: MetricsConfig{
			Namespace: "niev",
		},
	}
}

// LoadConfig loads the configuration from a file and the environment.
// An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %v", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %v", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, config); err != nil {
		return nil, fmt.Errorf("failed to read environment: %v", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the configuration for unsupported values
func (c *Config) Validate() error {
	if c.SourceChain == "" {
		return fmt.Errorf("source_chain must be set")
	}
	if c.Connector.Timeout < 0 {
		return fmt.Errorf("connector timeout must not be negative")
	}
	if _, err := types.ParseConsensusType(c.Consensus.Default); err != nil {
		return fmt.Errorf("consensus default: %v", err)
	}
	for chain, name := range c.Consensus.ChainTypes {
		if _, err := types.ParseConsensusType(name); err != nil {
			return fmt.Errorf("consensus type for %s: %v", chain, err)
		}
	}
	switch c.ZK.Backend {
	case "placeholder", "groth16":
	default:
		return fmt.Errorf("unknown zk backend %q", c.ZK.Backend)
	}
	switch c.ZK.ProofType {
	case "snark", "stark":
	default:
		return fmt.Errorf("unknown zk proof type %q", c.ZK.ProofType)
	}
	switch c.Registry.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown registry backend %q", c.Registry.Backend)
	}
	for _, endpoint := range c.Connector.EVM {
		if endpoint.Chain == "" || endpoint.URL == "" {
			return fmt.Errorf("evm endpoint requires chain and url")
		}
	}
	return nil
}

// ConsensusTypes returns the parsed chain to consensus mapping and the default type
func (c *Config) ConsensusTypes() (map[string]types.ConsensusType, types.ConsensusType, error) {
	def, err := types.ParseConsensusType(c.Consensus.Default)
	if err != nil {
		return nil, "", err
	}
	mapping := make(map[string]types.ConsensusType, len(c.Consensus.ChainTypes))
	for chain, name := range c.Consensus.ChainTypes {
		t, err := types.ParseConsensusType(name)
		if err != nil {
			return nil, "", err
		}
		mapping[chain] = t
	}
	return mapping, def, nil
}

// ZKProofType returns the configured proof family
func (c *Config) ZKProofType() types.ProofType {
	if c.ZK.ProofType == "stark" {
		return types.ProofTypeSTARK
	}
	return types.ProofTypeSNARK
}
