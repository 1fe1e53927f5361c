package genesis

import (
	"fmt"
	"time"

	"ehrchain/core/block"
	"ehrchain/core/record"
)

// DefaultMessage is written into the genesis payload when none is configured.
const DefaultMessage = "Genesis Block"

// DefaultTime keeps the genesis hash stable across nodes that do not configure one.
var DefaultTime = time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC)

// Config holds the values that determine the genesis block.
type Config struct {
	ChainID string    `json:"chainId" yaml:"chainId"`
	Time    time.Time `json:"genesisTime" yaml:"genesisTime"`
	Message string    `json:"message" yaml:"message"`
}

// Body is the genesis payload.
type Body struct {
	ChainID string `json:"chainId"`
	Message string `json:"message"`
}

func (c Config) withDefaults() Config {
	if c.Time.IsZero() {
		c.Time = DefaultTime
	}
	if c.Message == "" {
		c.Message = DefaultMessage
	}
	if c.ChainID == "" {
		c.ChainID = "ehrchain"
	}
	return c
}

// Block builds the genesis block for cfg. The same config always yields the same block.
func Block(cfg Config) (*block.Block, error) {
	cfg = cfg.withDefaults()
	payload, err := record.NewCodec(nil).Encode(block.KindGenesis, Body{ChainID: cfg.ChainID, Message: cfg.Message})
	if err != nil {
		return nil, fmt.Errorf("encode genesis: %w", err)
	}
	return block.New(nil, cfg.Time, block.KindGenesis, payload), nil
}

// IsGenesis reports whether b has the structural shape of a genesis block.
func IsGenesis(b *block.Block) bool {
	return b.Index == 0 && b.PrevHash == block.GenesisPrevHash && b.Kind == block.KindGenesis && b.Signer == "" && len(b.Signature) == 0
}
