package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	valid := Config{Chains: []ChainEntry{{
		ChainID:          42161,
		Name:             "arbitrum",
		RPCURL:           "https://arb1.example.org",
		RegistryContract: "0x1",
	}}}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name string
		cfg  Config
	}{
		{"no chains", Config{}},
		{"missing chain id", Config{Chains: []ChainEntry{{RPCURL: "https://x", RegistryContract: "0x1"}}}},
		{"missing rpc", Config{Chains: []ChainEntry{{ChainID: 1, RegistryContract: "0x1"}}}},
		{"no discovery source", Config{Chains: []ChainEntry{{ChainID: 1, RPCURL: "https://x"}}}},
	}
	for _, tc := range cases {
		if err := tc.cfg.Validate(); err == nil {
			t.Fatalf("%s: want error", tc.name)
		}
	}

	fallbackOnly := Config{Chains: []ChainEntry{{
		ChainID:       1,
		RPCURL:        "https://x",
		FallbackPools: []string{"0xpool"},
	}}}
	if err := fallbackOnly.Validate(); err != nil {
		t.Fatalf("fallback-only chain rejected: %v", err)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
pg-dsn: postgres://localhost/leverscope
refresh-schedule: "@every 5m"
journal: /var/lib/leverscope/journal.jsonl
confirm-timeout: 90s
poll-interval: 2s
session-ttl: 12h
price-cache-ttl: 30s
chains:
  - chain-id: 42161
    name: arbitrum
    rpc: https://arb1.example.org
    registry-contract: "0xabc"
    leveraged-enabled: true
    requests-per-second: 8
  - chain-id: 10
    name: optimism
    rpc: https://op.example.org
    fallback-pools: ["0x1", "0x2"]
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if len(cfg.Chains) != 2 {
		t.Fatalf("chains = %d, want 2", len(cfg.Chains))
	}
	if cfg.Chains[0].ChainID != 42161 || !cfg.Chains[0].LeveragedEnabled {
		t.Fatalf("first chain parsed wrong: %+v", cfg.Chains[0])
	}
	if got := cfg.Chains[1].FallbackPools; len(got) != 2 {
		t.Fatalf("fallback pools = %v, want 2", got)
	}
	if cfg.PGDSN != "postgres://localhost/leverscope" {
		t.Fatalf("pg dsn = %q", cfg.PGDSN)
	}
	if cfg.RefreshSchedule != "@every 5m" {
		t.Fatalf("schedule = %q", cfg.RefreshSchedule)
	}
	if cfg.JournalPath != "/var/lib/leverscope/journal.jsonl" {
		t.Fatalf("journal = %q", cfg.JournalPath)
	}
	if cfg.ConfirmTimeout != 90*time.Second {
		t.Fatalf("confirm timeout = %v", cfg.ConfirmTimeout)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Fatalf("poll interval = %v", cfg.PollInterval)
	}
	if cfg.SessionTTL != 12*time.Hour {
		t.Fatalf("session ttl = %v", cfg.SessionTTL)
	}
	if cfg.PriceCacheTTL != 30*time.Second {
		t.Fatalf("price cache ttl = %v", cfg.PriceCacheTTL)
	}
	// Defaults survive the file merge.
	if cfg.RetryBackoff != 500*time.Millisecond {
		t.Fatalf("retry backoff = %v, want default", cfg.RetryBackoff)
	}

	converted := cfg.ChainConfigs()
	if len(converted) != 2 || converted[0].RequestsPerSecond != 8 {
		t.Fatalf("chain configs conversion wrong: %+v", converted)
	}
}
