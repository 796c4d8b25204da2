package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	LogLevel     string
	Listen       string
	QueryTimeout time.Duration
	Threshold    float64
	MaxRetries   int
	RetryBackoff time.Duration
	PGDSN        string
	Out          string
	StateFile    string

	Cache    CacheConfig
	Chains   []ChainConfig
	Indexers []IndexerConfig
	Prices   PriceConfig
	Risk     RiskConfig
	Watch    WatchConfig
}

// ChainConfig describes one EVM chain.
type ChainConfig struct {
	Name               string        `mapstructure:"name"`
	RPC                string        `mapstructure:"rpc"`
	Multicall          string        `mapstructure:"multicall"`
	Voter              string        `mapstructure:"voter"`
	Index              string        `mapstructure:"index"`
	Comptroller        string        `mapstructure:"comptroller"`
	LendingRewardToken string        `mapstructure:"lending_reward_token"`
	BlocksPerYear      int64         `mapstructure:"blocks_per_year"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

const (
	IndexerDefiLlama = "defillama"
	IndexerJSON      = "json"
)

// IndexerConfig describes one external HTTP indexer.
type IndexerConfig struct {
	Name       string            `mapstructure:"name"`
	Kind       string            `mapstructure:"kind"`
	BaseURL    string            `mapstructure:"base_url"`
	Timeout    time.Duration     `mapstructure:"timeout"`
	RPS        float64           `mapstructure:"rps"`
	Burst      int               `mapstructure:"burst"`
	Chains     []string          `mapstructure:"chains"`
	ChainNames map[string]string `mapstructure:"chain_names"`
}

// CacheConfig selects the cache store and per-source TTLs.
type CacheConfig struct {
	Backend     string        `mapstructure:"backend"`
	Redis       RedisConfig   `mapstructure:"redis"`
	OnchainTTL  time.Duration `mapstructure:"onchain_ttl"`
	IndexTTL    time.Duration `mapstructure:"index_ttl"`
	ExternalTTL time.Duration `mapstructure:"external_ttl"`
	PriceTTL    time.Duration `mapstructure:"price_ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PriceConfig configures token pricing. Static prices are keyed "chain:token".
type PriceConfig struct {
	Static     map[string]float64 `mapstructure:"static"`
	Llama      bool               `mapstructure:"llama"`
	LlamaURL   string             `mapstructure:"llama_url"`
	RPS        float64            `mapstructure:"rps"`
	ChainNames map[string]string  `mapstructure:"chain_names"`
}

// RiskConfig is the static protocol metadata used for scoring.
type RiskConfig struct {
	Protocols map[string]ProtocolConfig `mapstructure:"protocols"`
	Blacklist []string                  `mapstructure:"blacklist"`
}

// ProtocolConfig dates accept unix seconds, RFC3339 or YYYY-MM-DD.
type ProtocolConfig struct {
	Audits    int    `mapstructure:"audits"`
	LastAudit string `mapstructure:"last_audit"`
	Launched  string `mapstructure:"launched"`
	Tier      int    `mapstructure:"tier"`
}

// WatchConfig drives the refresher. Pools use the chain:address[:protocol[:type]] form.
type WatchConfig struct {
	Schedule    string   `mapstructure:"schedule"`
	Concurrency int      `mapstructure:"concurrency"`
	Pools       []string `mapstructure:"pools"`
}

// Load merges .env, config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	// a missing .env is fine
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("POOLSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	v.SetDefault("listen", ":8080")
	v.SetDefault("query-timeout", 30*time.Second)
	v.SetDefault("threshold", 0.20)
	v.SetDefault("max-retries", 3)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("chain-name", "base")
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.onchain_ttl", 30*time.Second)
	v.SetDefault("cache.index_ttl", time.Minute)
	v.SetDefault("cache.external_ttl", 5*time.Minute)
	v.SetDefault("cache.price_ttl", time.Minute)
	v.SetDefault("watch.schedule", "@every 5m")
	v.SetDefault("watch.concurrency", 4)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		LogLevel:     v.GetString("log-level"),
		Listen:       v.GetString("listen"),
		QueryTimeout: v.GetDuration("query-timeout"),
		Threshold:    v.GetFloat64("threshold"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		PGDSN:        v.GetString("pg-dsn"),
		Out:          v.GetString("out"),
		StateFile:    v.GetString("state-file"),
	}

	sections := []struct {
		key string
		out interface{}
	}{
		{"cache", &cfg.Cache},
		{"chains", &cfg.Chains},
		{"indexers", &cfg.Indexers},
		{"prices", &cfg.Prices},
		{"risk", &cfg.Risk},
		{"watch", &cfg.Watch},
	}
	for _, s := range sections {
		if err := v.UnmarshalKey(s.key, s.out); err != nil {
			return Config{}, fmt.Errorf("decode %s: %w", s.key, err)
		}
	}

	// env and flags cannot express nested lists, so a single chain and watchlist
	// may also come from flat keys
	if len(cfg.Chains) == 0 && v.GetString("rpc") != "" {
		cfg.Chains = []ChainConfig{{Name: v.GetString("chain-name"), RPC: v.GetString("rpc")}}
	}
	if pools := getStringSlice(v, "watch-pools"); len(pools) > 0 {
		cfg.Watch.Pools = pools
	}
	if redisAddr := v.GetString("redis-addr"); redisAddr != "" {
		cfg.Cache.Backend = "redis"
		cfg.Cache.Redis.Addr = redisAddr
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	seen := map[string]bool{}
	for i, ch := range c.Chains {
		if ch.Name == "" {
			return fmt.Errorf("chains[%d]: name is required", i)
		}
		if seen[ch.Name] {
			return fmt.Errorf("chains[%d]: duplicate chain %s", i, ch.Name)
		}
		seen[ch.Name] = true
		if ch.RPC == "" {
			return fmt.Errorf("chain %s: rpc is required", ch.Name)
		}
	}
	for i, idx := range c.Indexers {
		if idx.Name == "" {
			return fmt.Errorf("indexers[%d]: name is required", i)
		}
		switch idx.Kind {
		case IndexerDefiLlama:
		case IndexerJSON:
			if idx.BaseURL == "" {
				return fmt.Errorf("indexer %s: base_url is required", idx.Name)
			}
		default:
			return fmt.Errorf("indexer %s: unknown kind %q", idx.Name, idx.Kind)
		}
	}
	switch c.Cache.Backend {
	case "", "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache: redis backend needs redis.addr")
		}
	default:
		return fmt.Errorf("cache: unknown backend %q", c.Cache.Backend)
	}
	if _, err := ParseWatchlist(c.Watch.Pools); err != nil {
		return err
	}
	if _, err := c.RiskMetadata(); err != nil {
		return err
	}
	return nil
}

// Chain returns the configuration of a named chain.
func (c Config) Chain(name string) (ChainConfig, bool) {
	for _, ch := range c.Chains {
		if ch.Name == name {
			return ch, true
		}
	}
	return ChainConfig{}, false
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
