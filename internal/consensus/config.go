package consensus

import (
	"fmt"
	"strings"

	"github.com/alznet/niev/internal/types"
)

// Config represents the consensus layer configuration
type Config struct {
	// Default is used for chains missing from ChainTypes
	Default types.ConsensusType

	// ChainTypes maps a chain id to its consensus family
	ChainTypes map[string]types.ConsensusType
}

// NewConfig creates a new consensus configuration with default values
func NewConfig() *Config {
	return &Config{
		Default: types.ConsensusPoW,
		ChainTypes: map[string]types.ConsensusType{
			"bitcoin":  types.ConsensusPoW,
			"ethereum": types.ConsensusPoS,
			"polygon":  types.ConsensusPoS,
			"bsc":      types.ConsensusPoS,
			"base":     types.ConsensusPoS,
			"solana":   types.ConsensusParallel,
			"cosmos":   types.ConsensusTendermint,
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if !known(c.Default) {
		return fmt.Errorf("invalid default consensus type %q", c.Default)
	}
	for chain, t := range c.ChainTypes {
		if chain == "" {
			return fmt.Errorf("chain id cannot be empty")
		}
		if !known(t) {
			return fmt.Errorf("invalid consensus type %q for chain %s", t, chain)
		}
	}
	return nil
}

// TypeFor returns the consensus type of chain
func (c *Config) TypeFor(chain string) types.ConsensusType {
	if t, ok := c.ChainTypes[strings.ToLower(chain)]; ok {
		return t
	}
	return c.Default
}

func known(t types.ConsensusType) bool {
	for _, k := range types.ConsensusTypes {
		if k == t {
			return true
		}
	}
	return false
}
