// Package config loads command configuration from flags, OPTIONPOOL_*
// environment variables, an optional .env file and an optional config file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "OPTIONPOOL"

// PoolParams describes the pool a command builds or restores.
type PoolParams struct {
	Direction          string
	Asset              string
	Owner              string
	PoolAddress        string
	Durations          []uint64
	UtilizationRate    uint64
	MaxUtilizationRate uint64
	Sigma              uint64
	SigmaPeriod        uint64
	PriceDecimals      uint8
	PremiumFeeRate     uint64
	FeeRecipient       string
	MaxSettleRounds    uint64
	CDFTable           string
}

// KeeperConfig holds configuration for the keeper command.
type KeeperConfig struct {
	Pool          PoolParams
	RPCURL        string
	OracleAddress string
	StateFile     string
	EventsOut     string
	PGDSN         string
	Interval      time.Duration
	Once          bool
	MaxRetries    int
	RetryBackoff  time.Duration
	MetricsAddr   string
	Clock         string
	LogLevel      string
}

// SimulateConfig holds configuration for the simulate command.
type SimulateConfig struct {
	Pool      PoolParams
	Prices    []string
	Deposits  []string
	BuyAmount string
	Rounds    int
	Start     uint64
	EventsOut string
	LogLevel  string
}

// Load merges config file, environment variables, and flags into KeeperConfig.
func Load(cfgFile string, flags *pflag.FlagSet) (KeeperConfig, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("state-file", "./data/pool_state.json")
		v.SetDefault("events-out", "./data/events.jsonl")
		v.SetDefault("interval", time.Minute)
		v.SetDefault("max-retries", 5)
		v.SetDefault("retry-backoff", 500*time.Millisecond)
		v.SetDefault("clock", "chain")
	})
	if err != nil {
		return KeeperConfig{}, err
	}

	pool, err := loadPoolParams(v)
	if err != nil {
		return KeeperConfig{}, err
	}
	cfg := KeeperConfig{
		Pool:          pool,
		RPCURL:        v.GetString("rpc"),
		OracleAddress: v.GetString("oracle-address"),
		StateFile:     v.GetString("state-file"),
		EventsOut:     v.GetString("events-out"),
		PGDSN:         v.GetString("pg-dsn"),
		Interval:      v.GetDuration("interval"),
		Once:          v.GetBool("once"),
		MaxRetries:    v.GetInt("max-retries"),
		RetryBackoff:  v.GetDuration("retry-backoff"),
		MetricsAddr:   v.GetString("metrics-addr"),
		Clock:         strings.ToLower(v.GetString("clock")),
		LogLevel:      v.GetString("log-level"),
	}
	if cfg.Clock != "chain" && cfg.Clock != "local" {
		return KeeperConfig{}, fmt.Errorf("invalid clock %q: want chain or local", cfg.Clock)
	}
	return cfg, nil
}

// LoadSimulate merges config file, environment variables, and flags into SimulateConfig.
func LoadSimulate(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("rounds", 5)
		v.SetDefault("start", uint64(1_700_000_000))
		v.SetDefault("buy-amount", "10000")
		v.SetDefault("prices", []string{"2000", "2100", "1950", "2050", "2200"})
		v.SetDefault("deposits", []string{"1000000", "500000"})
	})
	if err != nil {
		return SimulateConfig{}, err
	}

	pool, err := loadPoolParams(v)
	if err != nil {
		return SimulateConfig{}, err
	}
	cfg := SimulateConfig{
		Pool:      pool,
		Prices:    getStringSlice(v, "prices"),
		Deposits:  getStringSlice(v, "deposits"),
		BuyAmount: v.GetString("buy-amount"),
		Rounds:    v.GetInt("rounds"),
		Start:     v.GetUint64("start"),
		EventsOut: v.GetString("events-out"),
		LogLevel:  v.GetString("log-level"),
	}
	if cfg.Rounds <= 0 {
		return SimulateConfig{}, fmt.Errorf("rounds must be positive")
	}
	if len(cfg.Prices) == 0 {
		return SimulateConfig{}, fmt.Errorf("at least one price is required")
	}
	return cfg, nil
}

// LoadPool reads only the pool parameters, for commands that need nothing else.
func LoadPool(cfgFile string, flags *pflag.FlagSet) (PoolParams, string, error) {
	v, err := newViper(cfgFile, flags, nil)
	if err != nil {
		return PoolParams{}, "", err
	}
	pool, err := loadPoolParams(v)
	if err != nil {
		return PoolParams{}, "", err
	}
	return pool, v.GetString("log-level"), nil
}

func newViper(cfgFile string, flags *pflag.FlagSet, defaults func(*viper.Viper)) (*viper.Viper, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("direction", "call")
	v.SetDefault("asset", "ETH")
	v.SetDefault("owner", "0x00000000000000000000000000000000000000f0")
	v.SetDefault("pool-address", "0x00000000000000000000000000000000000000e0")
	v.SetDefault("durations", []string{"3600"})
	v.SetDefault("utilization-rate", uint64(50))
	v.SetDefault("max-utilization-rate", uint64(80))
	v.SetDefault("sigma", uint64(70))
	v.SetDefault("sigma-period", uint64(3600))
	v.SetDefault("price-decimals", 6)
	v.SetDefault("premium-fee-rate", uint64(0))
	v.SetDefault("max-settle-rounds", uint64(0))
	v.SetDefault("log-level", "info")
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

func loadPoolParams(v *viper.Viper) (PoolParams, error) {
	durations, err := parseUints(getStringSlice(v, "durations"))
	if err != nil {
		return PoolParams{}, fmt.Errorf("parse durations: %w", err)
	}
	decimals := v.GetUint("price-decimals")
	if decimals > 36 {
		return PoolParams{}, fmt.Errorf("price decimals %d out of range", decimals)
	}
	return PoolParams{
		Direction:          v.GetString("direction"),
		Asset:              v.GetString("asset"),
		Owner:              v.GetString("owner"),
		PoolAddress:        v.GetString("pool-address"),
		Durations:          durations,
		UtilizationRate:    v.GetUint64("utilization-rate"),
		MaxUtilizationRate: v.GetUint64("max-utilization-rate"),
		Sigma:              v.GetUint64("sigma"),
		SigmaPeriod:        v.GetUint64("sigma-period"),
		PriceDecimals:      uint8(decimals),
		PremiumFeeRate:     v.GetUint64("premium-fee-rate"),
		FeeRecipient:       v.GetString("fee-recipient"),
		MaxSettleRounds:    v.GetUint64("max-settle-rounds"),
		CDFTable:           v.GetString("cdf-table"),
	}, nil
}

func parseUints(items []string) ([]uint64, error) {
	out := make([]uint64, 0, len(items))
	for _, item := range items {
		n, err := strconv.ParseUint(item, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", item)
		}
		out = append(out, n)
	}
	return out, nil
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
