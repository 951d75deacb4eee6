package core

// Configuration loading, adapted from the teacher's pkg/config/config.go:
// same viper-based Load/LoadFromEnv shape, env-file merging, and
// AutomaticEnv() overrides, but unmarshalling into the fields spec.md §6
// actually names (TOML rather than YAML, since §6 specifies a
// "TOML-parsed record").

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/veridian-chain/veridian/pkg/utils"
)

// Config is the node's TOML-backed configuration record, exposing exactly
// the options spec.md §6 names plus the chain-id and signature-algorithm
// selection needed to make the engine runnable.
type Config struct {
	MaxGasPerViewTransaction uint64 `mapstructure:"max_gas_per_view_transaction"`
	Dir                      string `mapstructure:"dir"`
	MaxPollingAttempts       int    `mapstructure:"max_polling_attempts"`
	PollingDelayMS           int    `mapstructure:"polling_delay"`
	RequestCacheSize         int    `mapstructure:"request_cache_size"`
	ResponseCacheSize        int    `mapstructure:"response_cache_size"`
	CheckableDepth           int    `mapstructure:"checkable_depth"`

	ChainID            string `mapstructure:"chain_id"`
	SignatureAlgorithm string `mapstructure:"signature_algorithm"`
}

// DefaultConfig mirrors §6's parenthesized defaults.
func DefaultConfig() Config {
	return Config{
		MaxGasPerViewTransaction: 100_000_000,
		Dir:                      "./chain",
		MaxPollingAttempts:       60,
		PollingDelayMS:           10,
		RequestCacheSize:         1000,
		ResponseCacheSize:        1000,
		CheckableDepth:           -1,
		ChainID:                 "veridian",
		SignatureAlgorithm:       "ed25519",
	}
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig = DefaultConfig()

// Load reads the TOML configuration (defaulting every field to
// DefaultConfig first) and merges any environment-specific overrides named
// by env, the same two-pass default-then-merge shape as the teacher's
// Load(env). If env is empty, only the default file is loaded.
func Load(env string) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	v := viper.New()
	for key, val := range defaultsAsMap() {
		v.SetDefault(key, val)
	}
	v.SetConfigName("default")
	v.SetConfigType("toml")
	v.AddConfigPath("config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, utils.Wrap(err, "load config")
		}
	}

	if env != "" {
		v.SetConfigName(env)
		if err := v.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	v.AutomaticEnv()

	if err := v.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the VERIDIAN_ENV environment
// variable, matching the teacher's SYNN_ENV convention.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("VERIDIAN_ENV", ""))
}

func defaultsAsMap() map[string]any {
	d := DefaultConfig()
	return map[string]any{
		"max_gas_per_view_transaction": d.MaxGasPerViewTransaction,
		"dir":                          d.Dir,
		"max_polling_attempts":         d.MaxPollingAttempts,
		"polling_delay":                d.PollingDelayMS,
		"request_cache_size":           d.RequestCacheSize,
		"response_cache_size":          d.ResponseCacheSize,
		"checkable_depth":              d.CheckableDepth,
		"chain_id":                     d.ChainID,
		"signature_algorithm":          d.SignatureAlgorithm,
	}
}
