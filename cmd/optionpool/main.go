package main

import (
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"optionPool/internal/cdf"
	"optionPool/internal/config"
	"optionPool/internal/pool"
)

func main() {
	root := &cobra.Command{
		Use:          "optionpool",
		Short:        "Pooled option writer: keeper, simulator and table tools",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	keeperCmd := &cobra.Command{
		Use:   "keeper",
		Short: "Settle expired option rounds on a schedule",
		RunE:  runKeeper,
	}

	addPoolFlags(keeperCmd.Flags())
	keeperCmd.Flags().String("rpc", "", "RPC URL used for the price feed and chain clock")
	keeperCmd.Flags().String("oracle-address", "", "price aggregator contract address")
	keeperCmd.Flags().String("state-file", "./data/pool_state.json", "pool snapshot path")
	keeperCmd.Flags().String("events-out", "./data/events.jsonl", "output JSONL path for pool events (empty disables)")
	keeperCmd.Flags().String("pg-dsn", "", "Postgres DSN for events and keeper state")
	keeperCmd.Flags().Duration("interval", time.Minute, "time between keeper runs")
	keeperCmd.Flags().Bool("once", false, "run a single update and exit")
	keeperCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	keeperCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	keeperCmd.Flags().String("metrics-addr", "", "listen address for Prometheus metrics (empty disables)")
	keeperCmd.Flags().String("clock", "chain", "time source (chain, local)")
	keeperCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(keeperCmd)

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay a price path through an in-memory pool",
		RunE:  runSimulate,
	}

	addPoolFlags(simulateCmd.Flags())
	simulateCmd.Flags().StringSlice("prices", nil, "settlement prices, one per round (decimal)")
	simulateCmd.Flags().StringSlice("deposits", nil, "liquidity deposits in collateral base units, one per pooler")
	simulateCmd.Flags().String("buy-amount", "10000", "option units bought per slot and round (0 disables)")
	simulateCmd.Flags().Int("rounds", 5, "number of rounds to simulate")
	simulateCmd.Flags().Uint64("start", 1_700_000_000, "start timestamp (unix seconds)")
	simulateCmd.Flags().String("events-out", "", "output JSONL path for pool events (empty disables)")
	simulateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(simulateCmd)
	root.AddCommand(newCDFCommand())
	root.AddCommand(newInspectCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addPoolFlags(flags *pflag.FlagSet) {
	flags.String("direction", "call", "pool direction (call, put)")
	flags.String("asset", "ETH", "underlying asset symbol")
	flags.String("owner", "", "pool administrator address")
	flags.String("pool-address", "", "pool account address")
	flags.StringSlice("durations", nil, "option durations in seconds (comma-separated)")
	flags.Uint64("utilization-rate", 50, "share of collateral offered each round (percent)")
	flags.Uint64("max-utilization-rate", 80, "withdrawal utilization bound (percent)")
	flags.Uint64("sigma", 70, "initial sigma (15..145, multiple of 5)")
	flags.Uint64("sigma-period", 3600, "seconds between sigma refreshes")
	flags.Uint8("price-decimals", 6, "decimals of the pool's price unit")
	flags.Uint64("premium-fee-rate", 0, "platform share of premiums (percent)")
	flags.String("fee-recipient", "", "account that receives withdrawn fees")
	flags.Uint64("max-settle-rounds", 0, "premium rounds a pooler may leave unsettled (0 disables)")
	flags.String("cdf-table", "", "CDF table JSON file (empty uses the built-in table)")
}

// loadTable reads the CDF table from path, or returns the built-in one.
func loadTable(path string) (*cdf.Table, error) {
	if path == "" {
		return cdf.Default(), nil
	}
	return cdf.Load(path)
}

func parseAddress(name, input string) (common.Address, error) {
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid %s address: %q", name, input)
	}
	return common.HexToAddress(input), nil
}

func poolConfig(params config.PoolParams) (pool.Config, error) {
	dir, err := pool.ParseDirection(params.Direction)
	if err != nil {
		return pool.Config{}, err
	}
	addr, err := parseAddress("pool", params.PoolAddress)
	if err != nil {
		return pool.Config{}, err
	}
	return pool.Config{
		Address:            addr,
		Asset:              params.Asset,
		Direction:          dir,
		NumOptions:         len(params.Durations),
		PriceDecimals:      params.PriceDecimals,
		UtilizationRate:    params.UtilizationRate,
		MaxUtilizationRate: params.MaxUtilizationRate,
		Sigma:              params.Sigma,
		SigmaPeriod:        params.SigmaPeriod,
		PremiumFeeRate:     params.PremiumFeeRate,
		MaxSettleRounds:    params.MaxSettleRounds,
	}, nil
}

// newPool builds a fresh pool with one option per configured duration.
func newPool(params config.PoolParams, admin *pool.Administration, deps pool.Deps) (*pool.Pool, error) {
	cfg, err := poolConfig(params)
	if err != nil {
		return nil, err
	}
	p, err := pool.New(cfg, admin, deps)
	if err != nil {
		return nil, err
	}
	for slot, duration := range params.Durations {
		if err := p.SetOption(admin, slot, duration); err != nil {
			return nil, fmt.Errorf("option %d: %w", duration, err)
		}
	}
	return p, nil
}

func newAdministration(params config.PoolParams) (*pool.Administration, error) {
	owner, err := parseAddress("owner", params.Owner)
	if err != nil {
		return nil, err
	}
	return pool.NewAdministration(owner), nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
