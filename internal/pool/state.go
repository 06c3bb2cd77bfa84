package pool

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"optionPool/internal/fixedpoint"
	"optionPool/internal/model"
	"optionPool/internal/option"
	"optionPool/internal/token"
)

// State exports the pool, its share ledger and every registered option.
// Empty slots are exported as nil entries.
func (p *Pool) State() *model.PoolState {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := &model.PoolState{
		Address:            p.cfg.Address.Hex(),
		Owner:              p.admin.Owner().Hex(),
		Asset:              p.cfg.Asset,
		Direction:          p.cfg.Direction.String(),
		PriceDecimals:      p.cfg.PriceDecimals,
		NumOptions:         p.cfg.NumOptions,
		Collateral:         fixedpoint.FormatDec(p.collateral),
		UtilizationRate:    p.utilizationRate,
		MaxUtilizationRate: p.maxUtilizationRate,
		Sigma:              p.sigma,
		SigmaSoldOptions:   fixedpoint.FormatDec(p.sigmaSoldOptions),
		SigmaTotalOptions:  fixedpoint.FormatDec(p.sigmaTotalOptions),
		NextSigmaUpdate:    p.nextSigmaUpdate,
		SigmaPeriod:        p.cfg.SigmaPeriod,
		PremiumFeeRate:     p.cfg.PremiumFeeRate,
		FeeReserve:         fixedpoint.FormatDec(p.feeReserve),
		MaxSettleRounds:    p.cfg.MaxSettleRounds,
		PremiumBalance:     exportBalances(p.premiumBalance),
		ProfitBalance:      exportBalances(p.profitBalance),
		Shares:             p.shares.State(),
		Options:            make([]*model.OptionState, len(p.options)),
	}
	for i, opt := range p.options {
		if opt != nil {
			st.Options[i] = opt.State()
		}
	}
	return st
}

// Restore rebuilds a pool exported by State. The configuration, including
// the owner, comes from the snapshot; admin must carry the same owner.
func Restore(st *model.PoolState, admin *Administration, deps Deps) (*Pool, error) {
	if st == nil {
		return nil, fmt.Errorf("restore pool: state is nil")
	}
	address, err := parseAccount(st.Address)
	if err != nil {
		return nil, fmt.Errorf("restore pool: %w", err)
	}
	if admin == nil || admin.Owner().Hex() != st.Owner {
		return nil, fmt.Errorf("restore pool: %w", ErrNotOwner)
	}
	dir, err := ParseDirection(st.Direction)
	if err != nil {
		return nil, fmt.Errorf("restore pool: %w", err)
	}

	p, err := New(Config{
		Address:            address,
		Asset:              st.Asset,
		Direction:          dir,
		NumOptions:         st.NumOptions,
		PriceDecimals:      st.PriceDecimals,
		UtilizationRate:    st.UtilizationRate,
		MaxUtilizationRate: st.MaxUtilizationRate,
		Sigma:              st.Sigma,
		SigmaPeriod:        st.SigmaPeriod,
		PremiumFeeRate:     st.PremiumFeeRate,
		MaxSettleRounds:    st.MaxSettleRounds,
	}, admin, deps)
	if err != nil {
		return nil, fmt.Errorf("restore pool: %w", err)
	}

	if len(st.Options) > st.NumOptions {
		return nil, fmt.Errorf("restore pool: %d options for %d slots", len(st.Options), st.NumOptions)
	}
	for i, os := range st.Options {
		if os == nil {
			continue
		}
		opt, err := option.FromState(os)
		if err != nil {
			return nil, fmt.Errorf("restore pool: %w", err)
		}
		if opt.Pool() != address {
			return nil, fmt.Errorf("restore pool: %w", ErrForeignOption)
		}
		p.options[i] = opt
	}

	if p.shares, err = token.SharesFromState(st.Shares); err != nil {
		return nil, fmt.Errorf("restore pool: %w", err)
	}
	amounts := []struct {
		dst **uint256.Int
		src string
	}{
		{&p.collateral, st.Collateral},
		{&p.sigmaSoldOptions, st.SigmaSoldOptions},
		{&p.sigmaTotalOptions, st.SigmaTotalOptions},
		{&p.feeReserve, st.FeeReserve},
	}
	for _, a := range amounts {
		if *a.dst, err = fixedpoint.ParseDec(a.src); err != nil {
			return nil, fmt.Errorf("restore pool: %w", err)
		}
	}
	p.nextSigmaUpdate = st.NextSigmaUpdate
	if p.premiumBalance, err = importBalances(st.PremiumBalance); err != nil {
		return nil, fmt.Errorf("restore pool: %w", err)
	}
	if p.profitBalance, err = importBalances(st.ProfitBalance); err != nil {
		return nil, fmt.Errorf("restore pool: %w", err)
	}
	return p, nil
}

func exportBalances(m map[common.Address]*uint256.Int) map[string]string {
	out := make(map[string]string, len(m))
	for account, amount := range m {
		out[account.Hex()] = fixedpoint.FormatDec(amount)
	}
	return out
}

func importBalances(m map[string]string) (map[common.Address]*uint256.Int, error) {
	out := make(map[common.Address]*uint256.Int, len(m))
	for key, value := range m {
		account, err := parseAccount(key)
		if err != nil {
			return nil, err
		}
		amount, err := fixedpoint.ParseDec(value)
		if err != nil {
			return nil, err
		}
		if !amount.IsZero() {
			out[account] = amount
		}
	}
	return out, nil
}

func parseAccount(input string) (common.Address, error) {
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid address: %s", input)
	}
	return common.HexToAddress(input), nil
}
