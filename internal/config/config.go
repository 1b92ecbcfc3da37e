package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"leverscope/internal/chain"
)

// ChainEntry is one supported chain as written in the config file.
type ChainEntry struct {
	ChainID           uint64   `mapstructure:"chain-id"`
	Name              string   `mapstructure:"name"`
	RPCURL            string   `mapstructure:"rpc"`
	RegistryContract  string   `mapstructure:"registry-contract"`
	FallbackPools     []string `mapstructure:"fallback-pools"`
	LeveragedEnabled  bool     `mapstructure:"leveraged-enabled"`
	RequestsPerSecond float64  `mapstructure:"requests-per-second"`
}

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Chains            []ChainEntry
	PGDSN             string
	JournalPath       string
	Checkpoint        string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
	ConfirmTimeout    time.Duration
	PollInterval      time.Duration
	SessionTTL        time.Duration
	RefreshSchedule   string
	PriceAPIURL       string
	PriceCacheTTL     time.Duration
	LogLevel          string
}

// ChainConfigs converts the file entries to the chain registry's form.
func (c Config) ChainConfigs() []chain.ChainConfig {
	configs := make([]chain.ChainConfig, 0, len(c.Chains))
	for _, entry := range c.Chains {
		configs = append(configs, chain.ChainConfig{
			ChainID:           entry.ChainID,
			Name:              entry.Name,
			RPCURL:            entry.RPCURL,
			RegistryContract:  entry.RegistryContract,
			FallbackPools:     entry.FallbackPools,
			LeveragedEnabled:  entry.LeveragedEnabled,
			RequestsPerSecond: entry.RequestsPerSecond,
		})
	}
	return configs
}

// Retry returns the registry's backoff bounds.
func (c Config) Retry() chain.RetryConfig {
	return chain.RetryConfig{MaxRetries: c.MaxRetries, BaseDelay: c.RetryBackoff}
}

// Validate rejects configurations the process cannot start with.
func (c Config) Validate() error {
	if len(c.Chains) == 0 {
		return fmt.Errorf("at least one chain must be configured")
	}
	for _, entry := range c.Chains {
		if entry.ChainID == 0 {
			return fmt.Errorf("chain %q: chain-id is required", entry.Name)
		}
		if entry.RPCURL == "" {
			return fmt.Errorf("chain %d: rpc is required", entry.ChainID)
		}
		if entry.RegistryContract == "" && len(entry.FallbackPools) == 0 {
			return fmt.Errorf("chain %d: registry-contract or fallback-pools is required", entry.ChainID)
		}
	}
	return nil
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEVERSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("journal", "./data/journal.jsonl")
	v.SetDefault("checkpoint", "./data/checkpoint.json")
	v.SetDefault("checkpoint-enabled", true)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("confirm-timeout", 3*time.Minute)
	v.SetDefault("poll-interval", 3*time.Second)
	v.SetDefault("session-ttl", 24*time.Hour)
	v.SetDefault("refresh-schedule", "@every 10m")
	v.SetDefault("price-api", "https://coins.llama.fi/prices/current")
	v.SetDefault("price-cache-ttl", time.Minute)
	v.SetDefault("log-level", "info")

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

	var chains []ChainEntry
	if err := v.UnmarshalKey("chains", &chains); err != nil {
		return Config{}, fmt.Errorf("parse chains: %w", err)
	}

	cfg := Config{
		Chains:            chains,
		PGDSN:             v.GetString("pg-dsn"),
		JournalPath:       v.GetString("journal"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		ConfirmTimeout:    v.GetDuration("confirm-timeout"),
		PollInterval:      v.GetDuration("poll-interval"),
		SessionTTL:        v.GetDuration("session-ttl"),
		RefreshSchedule:   v.GetString("refresh-schedule"),
		PriceAPIURL:       v.GetString("price-api"),
		PriceCacheTTL:     v.GetDuration("price-cache-ttl"),
		LogLevel:          v.GetString("log-level"),
	}

	return cfg, nil
}
