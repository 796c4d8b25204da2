package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"poolScope/internal/model"
)

const sampleYAML = `
log-level: debug
listen: ":9090"
cache:
  backend: memory
  onchain_ttl: 15s
chains:
  - name: base
    rpc: https://mainnet.base.org
    voter: "0x16613524e02ad97eDfeF371bC883F2F5d6C480A5"
    timeout: 8s
indexers:
  - name: defillama
    kind: defillama
    chain_names:
      base: Base
  - name: indexer-a
    kind: json
    base_url: http://localhost:9000
    chains: [base]
prices:
  static:
    "base:0x833589fcd6edb6e08f4c7c32d4f71b54bda02913": 1
risk:
  protocols:
    Aerodrome:
      audits: 3
      last_audit: "2024-01-15"
      launched: "2023-08-28"
      tier: 1
  blacklist: [rugdex]
watch:
  schedule: "@every 10m"
  pools:
    - base:0xcDAC0d6c6C59727a65F871236188350531885C43:aerodrome:cp
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.LogLevel != "debug" || cfg.Listen != ":9090" {
		t.Fatalf("unexpected top level: %+v", cfg)
	}
	if cfg.Cache.OnchainTTL != 15*time.Second || cfg.Cache.ExternalTTL != 5*time.Minute {
		t.Fatalf("unexpected ttls: %+v", cfg.Cache)
	}
	ch, ok := cfg.Chain("base")
	if !ok || ch.Timeout != 8*time.Second || ch.Voter == "" {
		t.Fatalf("unexpected chain: %+v", ch)
	}
	if len(cfg.Indexers) != 2 || cfg.Indexers[0].ChainNames["base"] != "Base" {
		t.Fatalf("unexpected indexers: %+v", cfg.Indexers)
	}
	if cfg.Prices.Static["base:0x833589fcd6edb6e08f4c7c32d4f71b54bda02913"] != 1 {
		t.Fatalf("unexpected static prices: %+v", cfg.Prices.Static)
	}

	meta, err := cfg.RiskMetadata()
	if err != nil {
		t.Fatalf("risk metadata: %v", err)
	}
	aero, ok := meta.Protocols["aerodrome"]
	if !ok || aero.Audits != 3 || aero.Tier != 1 {
		t.Fatalf("unexpected protocol: %+v", meta.Protocols)
	}
	if want := time.Date(2023, 8, 28, 0, 0, 0, 0, time.UTC); !aero.Launched.Equal(want) {
		t.Fatalf("launched = %v, want %v", aero.Launched, want)
	}

	refs, err := ParseWatchlist(cfg.Watch.Pools)
	if err != nil {
		t.Fatalf("watchlist: %v", err)
	}
	if len(refs) != 1 || refs[0].Protocol != "aerodrome" || refs[0].TypeHint != model.PoolTypeConstantProduct {
		t.Fatalf("unexpected refs: %+v", refs)
	}
}

func TestLoadEnvAndFlags(t *testing.T) {
	t.Setenv("POOLSCOPE_RPC", "http://localhost:8545")
	t.Setenv("POOLSCOPE_WATCH_POOLS", "base:0xcDAC0d6c6C59727a65F871236188350531885C43, base:0x1111111111111111111111111111111111111111")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "info", "")
	flags.String("chain-name", "base", "")
	if err := flags.Parse([]string{"--log-level=warn", "--chain-name=optimism"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(writeConfig(t, "listen: \":7000\"\n"), flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("log level = %s", cfg.LogLevel)
	}
	if len(cfg.Chains) != 1 || cfg.Chains[0].Name != "optimism" || cfg.Chains[0].RPC != "http://localhost:8545" {
		t.Fatalf("unexpected chains: %+v", cfg.Chains)
	}
	if len(cfg.Watch.Pools) != 2 {
		t.Fatalf("unexpected pools: %v", cfg.Watch.Pools)
	}
	if cfg.Cache.Backend != "memory" {
		t.Fatalf("backend = %s", cfg.Cache.Backend)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"chain without rpc", Config{Chains: []ChainConfig{{Name: "base"}}}},
		{"duplicate chain", Config{Chains: []ChainConfig{{Name: "base", RPC: "x"}, {Name: "base", RPC: "y"}}}},
		{"json indexer without url", Config{Indexers: []IndexerConfig{{Name: "a", Kind: IndexerJSON}}}},
		{"unknown indexer kind", Config{Indexers: []IndexerConfig{{Name: "a", Kind: "graphql"}}}},
		{"redis without addr", Config{Cache: CacheConfig{Backend: "redis"}}},
		{"bad watch entry", Config{Watch: WatchConfig{Pools: []string{"base"}}}},
		{"bad date", Config{Risk: RiskConfig{Protocols: map[string]ProtocolConfig{"x": {Launched: "last spring"}}}}},
	}
	for _, tt := range tests {
		if err := tt.cfg.Validate(); err == nil {
			t.Fatalf("%s: expected error", tt.name)
		}
	}
	if err := (Config{}).Validate(); err != nil {
		t.Fatalf("empty config: %v", err)
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{"", time.Time{}},
		{"1700000000", time.Unix(1700000000, 0).UTC()},
		{"2024-01-15T10:00:00Z", time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)},
		{"2024-01-15", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseDate(tt.input)
		if err != nil {
			t.Fatalf("ParseDate(%q): %v", tt.input, err)
		}
		if !got.Equal(tt.want) {
			t.Fatalf("ParseDate(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
	if _, err := ParseDate("yesterday"); err == nil {
		t.Fatalf("expected error")
	}
}
