package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	RelayModeJito = "jito"
	RelayModeRPC  = "rpc"
)

type ChainConfig struct {
	RPCURL   string `env:"RPC_URL" envDefault:"https://api.mainnet-beta.solana.com"`
	RPCWSURL string `env:"RPC_WS_URL"`

	ProgramID string `env:"ORE_PROGRAM_ID" envDefault:"oreV3EG1i9BEgiAJ8b177Z2S2rMarzak4NMv1kULvWv"`
	OREMint   string `env:"ORE_MINT" envDefault:"oreoU2P8bN6jkk3jbaiVxYnG1dCXcYxwhwyK9jSybcp"`

	RelayMode   string `env:"RELAY_MODE" envDefault:"jito"`
	JitoURL     string `env:"JITO_URL" envDefault:"https://mainnet.block-engine.jito.wtf"`
	TipFloorURL string `env:"JITO_TIP_FLOOR_URL" envDefault:"https://bundles.jito.wtf/api/v1/bundles/tip_floor"`

	RPCTimeout    time.Duration `env:"RPC_TIMEOUT" envDefault:"1s"`
	RPCMaxRetries int           `env:"RPC_MAX_RETRIES" envDefault:"2"`

	ComputeUnitPrice uint64 `env:"COMPUTE_UNIT_PRICE" envDefault:"100000"`
	TipFloorLamports uint64 `env:"TIP_FLOOR_LAMPORTS" envDefault:"500000"`
	TipDefault       uint64 `env:"TIP_DEFAULT_LAMPORTS" envDefault:"1000000"`
}

func LoadChain() (ChainConfig, error) {
	var cfg ChainConfig
	err := env.Parse(&cfg)
	return cfg, err
}

// WebsocketURL is RPC_WS_URL, or RPC_URL with its scheme swapped to ws/wss.
func (c ChainConfig) WebsocketURL() string {
	if c.RPCWSURL != "" {
		return c.RPCWSURL
	}
	switch {
	case strings.HasPrefix(c.RPCURL, "https://"):
		return "wss://" + strings.TrimPrefix(c.RPCURL, "https://")
	case strings.HasPrefix(c.RPCURL, "http://"):
		return "ws://" + strings.TrimPrefix(c.RPCURL, "http://")
	}
	return c.RPCURL
}
