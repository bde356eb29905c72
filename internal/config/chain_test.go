package config

import (
	"testing"
	"time"
)

func TestLoadChainDefaults(t *testing.T) {
	cfg, err := LoadChain()
	if err != nil {
		t.Fatalf("LoadChain() error = %v", err)
	}
	if cfg.RelayMode != RelayModeJito {
		t.Fatalf("RelayMode = %q, want jito", cfg.RelayMode)
	}
	if cfg.RPCTimeout != time.Second {
		t.Fatalf("RPCTimeout = %v, want 1s", cfg.RPCTimeout)
	}
	if cfg.TipFloorLamports != 500_000 || cfg.TipDefault != 1_000_000 {
		t.Fatalf("unexpected tip defaults: %+v", cfg)
	}
	if cfg.ComputeUnitPrice != 100_000 {
		t.Fatalf("ComputeUnitPrice = %d, want 100000", cfg.ComputeUnitPrice)
	}
}

func TestLoadChainOverrides(t *testing.T) {
	t.Setenv("RELAY_MODE", "rpc")
	t.Setenv("RPC_URL", "http://127.0.0.1:8899")
	t.Setenv("RPC_TIMEOUT", "750ms")

	cfg, err := LoadChain()
	if err != nil {
		t.Fatalf("LoadChain() error = %v", err)
	}
	if cfg.RelayMode != RelayModeRPC || cfg.RPCURL != "http://127.0.0.1:8899" {
		t.Fatalf("unexpected chain config: %+v", cfg)
	}
	if cfg.RPCTimeout != 750*time.Millisecond {
		t.Fatalf("RPCTimeout = %v, want 750ms", cfg.RPCTimeout)
	}
}

func TestChainWebsocketURL(t *testing.T) {
	cases := map[ChainConfig]string{
		{RPCURL: "https://rpc.example"}:                             "wss://rpc.example",
		{RPCURL: "http://127.0.0.1:8899"}:                           "ws://127.0.0.1:8899",
		{RPCURL: "https://rpc.example", RPCWSURL: "wss://ws.other"}: "wss://ws.other",
	}
	for cfg, want := range cases {
		if got := cfg.WebsocketURL(); got != want {
			t.Fatalf("WebsocketURL(%q) = %q, want %q", cfg.RPCURL, got, want)
		}
	}
}
