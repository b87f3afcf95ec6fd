package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. TRUSTSCOPE_PG_DSN.
const EnvPrefix = "TRUSTSCOPE"

// ChainConfig locates the RPC endpoint and the deployed contracts.
type ChainConfig struct {
	RPCURL                 string
	AttestationAddress     string
	ProjectRegistryAddress string
	ProjectRewardsAddress  string
	DeployBlock            uint64
	PrivateKey             string
}

// ServeConfig holds configuration for the serve command.
type ServeConfig struct {
	Listen          string
	PGDSN           string
	UseMemory       bool
	RedisURL        string
	Chain           ChainConfig
	RateLimit       float64
	RateBurst       int
	CacheFresh      time.Duration
	CacheStale      time.Duration
	ShutdownTimeout time.Duration
	LogLevel        string
}

// ClientConfig holds configuration for the attest, revoke and sync-project commands.
type ClientConfig struct {
	Chain     ChainConfig
	MirrorURL string
	Timeout   time.Duration
	LogLevel  string
}

// BackfillConfig holds configuration for the backfill command.
type BackfillConfig struct {
	Chain        ChainConfig
	MirrorURL    string
	Out          string
	PGDSN        string
	FromBlock    uint64
	ToBlock      uint64
	BatchSize    uint64
	Checkpoint   string
	MaxRetries   int
	RetryBackoff time.Duration
	LogLevel     string
}

// MigrateConfig holds configuration for the migrate command.
type MigrateConfig struct {
	PGDSN    string
	LogLevel string
}

// LoadServe merges config file, environment variables, and flags into ServeConfig.
func LoadServe(cfgFile string, flags *pflag.FlagSet) (ServeConfig, error) {
	v, err := load(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("listen", ":8080")
		v.SetDefault("use-memory", false)
		v.SetDefault("rate-limit", 5.0)
		v.SetDefault("rate-burst", 10)
		v.SetDefault("cache-fresh", 5*time.Second)
		v.SetDefault("cache-stale", 10*time.Second)
		v.SetDefault("shutdown-timeout", 10*time.Second)
	})
	if err != nil {
		return ServeConfig{}, err
	}

	return ServeConfig{
		Listen:          v.GetString("listen"),
		PGDSN:           v.GetString("pg-dsn"),
		UseMemory:       v.GetBool("use-memory"),
		RedisURL:        v.GetString("redis-url"),
		Chain:           chainConfig(v),
		RateLimit:       v.GetFloat64("rate-limit"),
		RateBurst:       v.GetInt("rate-burst"),
		CacheFresh:      v.GetDuration("cache-fresh"),
		CacheStale:      v.GetDuration("cache-stale"),
		ShutdownTimeout: v.GetDuration("shutdown-timeout"),
		LogLevel:        v.GetString("log-level"),
	}, nil
}

// LoadClient merges config file, environment variables, and flags into ClientConfig.
func LoadClient(cfgFile string, flags *pflag.FlagSet) (ClientConfig, error) {
	v, err := load(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("mirror-url", "http://localhost:8080")
		v.SetDefault("timeout", 5*time.Minute)
	})
	if err != nil {
		return ClientConfig{}, err
	}

	return ClientConfig{
		Chain:     chainConfig(v),
		MirrorURL: v.GetString("mirror-url"),
		Timeout:   v.GetDuration("timeout"),
		LogLevel:  v.GetString("log-level"),
	}, nil
}

// LoadChain loads only the chain settings, for read-only commands.
func LoadChain(cfgFile string, flags *pflag.FlagSet) (ChainConfig, string, error) {
	v, err := load(cfgFile, flags, nil)
	if err != nil {
		return ChainConfig{}, "", err
	}
	return chainConfig(v), v.GetString("log-level"), nil
}

// LoadBackfill merges config file, environment variables, and flags into BackfillConfig.
func LoadBackfill(cfgFile string, flags *pflag.FlagSet) (BackfillConfig, error) {
	v, err := load(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("mirror-url", "http://localhost:8080")
		v.SetDefault("batch-size", uint64(2000))
		v.SetDefault("checkpoint", "./data/backfill_checkpoint.json")
		v.SetDefault("max-retries", 5)
		v.SetDefault("retry-backoff", 500*time.Millisecond)
	})
	if err != nil {
		return BackfillConfig{}, err
	}

	return BackfillConfig{
		Chain:        chainConfig(v),
		MirrorURL:    v.GetString("mirror-url"),
		Out:          v.GetString("out"),
		PGDSN:        v.GetString("pg-dsn"),
		FromBlock:    v.GetUint64("from"),
		ToBlock:      v.GetUint64("to"),
		BatchSize:    v.GetUint64("batch-size"),
		Checkpoint:   v.GetString("checkpoint"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		LogLevel:     v.GetString("log-level"),
	}, nil
}

// LoadMigrate merges config file, environment variables, and flags into MigrateConfig.
func LoadMigrate(cfgFile string, flags *pflag.FlagSet) (MigrateConfig, error) {
	v, err := load(cfgFile, flags, nil)
	if err != nil {
		return MigrateConfig{}, err
	}
	return MigrateConfig{
		PGDSN:    v.GetString("pg-dsn"),
		LogLevel: v.GetString("log-level"),
	}, nil
}

func load(cfgFile string, flags *pflag.FlagSet, defaults func(*viper.Viper)) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	v.SetDefault("deploy-block", uint64(0))
	if defaults != nil {
		defaults(v)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func chainConfig(v *viper.Viper) ChainConfig {
	return ChainConfig{
		RPCURL:                 strings.TrimSpace(v.GetString("rpc")),
		AttestationAddress:     strings.TrimSpace(v.GetString("attestation-address")),
		ProjectRegistryAddress: strings.TrimSpace(v.GetString("project-registry-address")),
		ProjectRewardsAddress:  strings.TrimSpace(v.GetString("project-rewards-address")),
		DeployBlock:            v.GetUint64("deploy-block"),
		PrivateKey:             strings.TrimSpace(v.GetString("private-key")),
	}
}
