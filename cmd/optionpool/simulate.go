package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"optionPool/internal/config"
	"optionPool/internal/custody"
	"optionPool/internal/fixedpoint"
	"optionPool/internal/model"
	"optionPool/internal/oracle"
	"optionPool/internal/pool"
	"optionPool/internal/storage"
)

// simulated accounts; poolers are numbered from poolerBase
var (
	buyerAddr  = common.HexToAddress("0x000000000000000000000000000000000000b0b0")
	poolerBase = big.NewInt(0x1000)
)

type simulation struct {
	cfg     config.SimulateConfig
	pool    *pool.Pool
	admin   *pool.Administration
	ledger  *custody.Ledger
	poolers []common.Address
	sinks   []storage.EventSink
	logger  *zap.Logger
	now     uint64
	events  int
}

// simulationSummary is what a finished simulation reports.
type simulationSummary struct {
	Settlements int
	Purchases   int
	Events      int
	Collateral  *uint256.Int
	Sigma       uint64
	Fees        *uint256.Int
	Paid        map[common.Address]*uint256.Int
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSimulate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	summary, err := simulate(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}

	logger.Info("simulation complete",
		zap.Int("settlements", summary.Settlements),
		zap.Int("purchases", summary.Purchases),
		zap.Int("events", summary.Events),
		zap.String("collateral", fixedpoint.FormatDec(summary.Collateral)),
		zap.Uint64("sigma", summary.Sigma),
		zap.String("fees", fixedpoint.FormatDec(summary.Fees)),
	)
	for account, paid := range summary.Paid {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", account.Hex(), fixedpoint.FormatDec(paid))
	}
	return nil
}

func simulate(ctx context.Context, cfg config.SimulateConfig, logger *zap.Logger) (simulationSummary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	prices, err := parsePrices(cfg.Prices, cfg.Pool.PriceDecimals)
	if err != nil {
		return simulationSummary{}, err
	}
	deposits, err := parseAmounts(cfg.Deposits)
	if err != nil {
		return simulationSummary{}, fmt.Errorf("deposits: %w", err)
	}
	buyAmount, err := parseAmount(cfg.BuyAmount)
	if err != nil {
		return simulationSummary{}, fmt.Errorf("buy amount: %w", err)
	}
	table, err := loadTable(cfg.Pool.CDFTable)
	if err != nil {
		return simulationSummary{}, err
	}
	admin, err := newAdministration(cfg.Pool)
	if err != nil {
		return simulationSummary{}, err
	}

	ledger := custody.NewLedger()
	p, err := newPool(cfg.Pool, admin, pool.Deps{
		Table:  table,
		Feed:   oracle.NewPath(cfg.Pool.PriceDecimals, prices...),
		Asset:  ledger,
		Logger: logger,
	})
	if err != nil {
		return simulationSummary{}, err
	}

	s := &simulation{
		cfg:    cfg,
		pool:   p,
		admin:  admin,
		ledger: ledger,
		logger: logger,
		now:    cfg.Start,
	}
	if cfg.EventsOut != "" {
		s.sinks = append(s.sinks, storage.NewEventLog(cfg.EventsOut))
	}
	return s.run(ctx, deposits, buyAmount)
}

func (s *simulation) run(ctx context.Context, deposits []*uint256.Int, buyAmount *uint256.Int) (simulationSummary, error) {
	summary := simulationSummary{Paid: make(map[common.Address]*uint256.Int)}

	for i, amount := range deposits {
		account := common.BigToAddress(new(big.Int).Add(poolerBase, big.NewInt(int64(i))))
		if err := s.fund(account, amount); err != nil {
			return summary, err
		}
		if _, err := s.pool.Deposit(account, amount); err != nil {
			return summary, fmt.Errorf("deposit %s: %w", account.Hex(), err)
		}
		s.poolers = append(s.poolers, account)
	}

	for round := 0; round < s.cfg.Rounds; round++ {
		res, err := s.pool.Update(ctx, s.now)
		if err != nil {
			return summary, fmt.Errorf("round %d: %w", round, err)
		}
		if err := s.emit(res.Records...); err != nil {
			return summary, err
		}
		summary.Settlements += len(res.Settlements)
		if res.PriceUnavailable {
			s.logger.Warn("price unavailable", zap.Int("round", round))
		}

		if !buyAmount.IsZero() {
			bought, err := s.buyAll(buyAmount)
			if err != nil {
				return summary, fmt.Errorf("round %d: %w", round, err)
			}
			summary.Purchases += bought
		}
		s.advance()
	}

	res, err := s.pool.Update(ctx, s.now)
	if err != nil {
		return summary, fmt.Errorf("final update: %w", err)
	}
	if err := s.emit(res.Records...); err != nil {
		return summary, err
	}
	summary.Settlements += len(res.Settlements)

	if err := s.claimAll(summary.Paid); err != nil {
		return summary, err
	}
	if s.cfg.Pool.FeeRecipient != "" {
		recipient, err := parseAddress("fee recipient", s.cfg.Pool.FeeRecipient)
		if err != nil {
			return summary, err
		}
		fees, err := s.pool.WithdrawFees(s.admin, recipient)
		if err != nil {
			return summary, fmt.Errorf("withdraw fees: %w", err)
		}
		summary.Paid[recipient] = fees
	}

	summary.Events = s.events
	summary.Collateral = s.pool.Collateral()
	summary.Sigma = s.pool.Sigma()
	summary.Fees = s.pool.FeeReserve()
	return summary, nil
}

func (s *simulation) fund(account common.Address, amount *uint256.Int) error {
	if err := s.ledger.Credit(account, amount); err != nil {
		return fmt.Errorf("fund %s: %w", account.Hex(), err)
	}
	s.ledger.Approve(account, s.ledger.BalanceOf(account))
	return nil
}

// buyAll buys amount units of every live option. Slots whose round has too
// little supply left are skipped.
func (s *simulation) buyAll(amount *uint256.Int) (int, error) {
	bought := 0
	for slot, opt := range s.pool.Options() {
		quote, err := s.pool.QuotePremium(slot, amount)
		if err != nil {
			return bought, fmt.Errorf("quote slot %d: %w", slot, err)
		}
		if err := s.fund(buyerAddr, quote); err != nil {
			return bought, err
		}
		res, err := s.pool.Buy(buyerAddr, slot, amount, quote, s.now)
		if errors.Is(err, pool.ErrInsufficientSupply) {
			s.logger.Debug("option sold out", zap.Uint64("duration", opt.Duration()), zap.Uint64("round", opt.CurrentRound()))
			continue
		}
		if err != nil {
			return bought, fmt.Errorf("buy slot %d: %w", slot, err)
		}
		bought++
		if err := s.emit(res.Records...); err != nil {
			return bought, err
		}
	}
	return bought, nil
}

// advance moves the clock to the latest expiry so every live round is due.
func (s *simulation) advance() {
	next := s.now
	for _, opt := range s.pool.Options() {
		if opt.ExpiryDate() > next {
			next = opt.ExpiryDate()
		}
	}
	if next == s.now {
		next++
	}
	s.now = next
}

func (s *simulation) claimAll(paid map[common.Address]*uint256.Int) error {
	profits, err := s.pool.ClaimProfits(buyerAddr)
	if err != nil {
		return fmt.Errorf("claim profits: %w", err)
	}
	paid[buyerAddr] = profits
	if err := s.emitClaim(buyerAddr, "profits", profits, true); err != nil {
		return err
	}

	for _, account := range s.poolers {
		total := fixedpoint.Zero()
		for {
			amount, complete, err := s.pool.ClaimPremium(account, 0)
			if err != nil {
				return fmt.Errorf("claim premium %s: %w", account.Hex(), err)
			}
			if total, err = fixedpoint.Add(total, amount); err != nil {
				return err
			}
			if err := s.emitClaim(account, "premium", amount, complete); err != nil {
				return err
			}
			if complete {
				break
			}
		}
		paid[account] = total
	}
	return nil
}

func (s *simulation) emitClaim(account common.Address, kind string, amount *uint256.Int, complete bool) error {
	claim := model.Claim{
		Account:  account.Hex(),
		Kind:     kind,
		Amount:   fixedpoint.FormatDec(amount),
		Complete: complete,
	}
	return s.emit(s.pool.Record(model.KindClaim, s.now, claim))
}

func (s *simulation) emit(records ...model.EventRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, sink := range s.sinks {
		if err := sink.PutEvents(records); err != nil {
			return fmt.Errorf("store events: %w", err)
		}
	}
	s.events += len(records)
	return nil
}

// parsePrices scales decimal prices such as "2100.5" to the pool's price unit.
func parsePrices(items []string, decimals uint8) ([]*big.Int, error) {
	out := make([]*big.Int, 0, len(items))
	for _, item := range items {
		d, err := decimal.NewFromString(item)
		if err != nil {
			return nil, fmt.Errorf("invalid price %q: %w", item, err)
		}
		if !d.IsPositive() {
			return nil, fmt.Errorf("price must be positive: %q", item)
		}
		scaled := d.Shift(int32(decimals))
		if !scaled.IsInteger() {
			return nil, fmt.Errorf("price %q has more than %d decimals", item, decimals)
		}
		out = append(out, scaled.BigInt())
	}
	return out, nil
}

func parseAmounts(items []string) ([]*uint256.Int, error) {
	out := make([]*uint256.Int, 0, len(items))
	for _, item := range items {
		amount, err := parseAmount(item)
		if err != nil {
			return nil, err
		}
		out = append(out, amount)
	}
	return out, nil
}

// parseAmount accepts whole base units in decimal or exponent notation.
func parseAmount(item string) (*uint256.Int, error) {
	if item == "" {
		return fixedpoint.Zero(), nil
	}
	d, err := decimal.NewFromString(item)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", item, err)
	}
	if d.IsNegative() || !d.IsInteger() {
		return nil, fmt.Errorf("amount must be a non-negative whole number: %q", item)
	}
	z, overflow := uint256.FromBig(d.BigInt())
	if overflow {
		return nil, fmt.Errorf("amount %q: %w", item, fixedpoint.ErrOverflow)
	}
	return z, nil
}
