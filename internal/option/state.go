package option

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"optionPool/internal/fixedpoint"
	"optionPool/internal/model"
)

// State exports the option and all of its rounds.
func (o *Option) State() *model.OptionState {
	st := &model.OptionState{
		Pool:                   o.pool.Hex(),
		Duration:               o.duration,
		CurrentRound:           o.currentRound,
		Rounds:                 make([]model.RoundState, 0, len(o.rounds)),
		SettledPremiumRound:    make(map[string]uint64, len(o.settledPremiumRound)),
		UnclaimedProfitsRounds: make(map[string][]uint64, len(o.unclaimedProfitsRounds)),
	}
	for i, rd := range o.rounds {
		rs := model.RoundState{
			Round:           uint64(i),
			ExpiryDate:      rd.expiryDate,
			TotalSupply:     fixedpoint.FormatDec(rd.totalSupply),
			StrikePrice:     fixedpoint.FormatDec(rd.strikePrice),
			SettlePrice:     fixedpoint.FormatDec(rd.settlePrice),
			TotalPremiums:   fixedpoint.FormatDec(rd.totalPremiums),
			PremiumShare:    fixedpoint.FormatDec(rd.premiumShare),
			PremiumShareSet: rd.premiumShareSet,
			Balances:        make(map[string]string, len(rd.balances)),
			Allowances:      make(map[string]map[string]string, len(rd.allowances)),
		}
		for account, bal := range rd.balances {
			rs.Balances[account.Hex()] = fixedpoint.FormatDec(bal)
		}
		for owner, spenders := range rd.allowances {
			m := make(map[string]string, len(spenders))
			for spender, amount := range spenders {
				m[spender.Hex()] = fixedpoint.FormatDec(amount)
			}
			rs.Allowances[owner.Hex()] = m
		}
		st.Rounds = append(st.Rounds, rs)
	}
	for account, r := range o.settledPremiumRound {
		st.SettledPremiumRound[account.Hex()] = r
	}
	for account, rounds := range o.unclaimedProfitsRounds {
		st.UnclaimedProfitsRounds[account.Hex()] = append([]uint64(nil), rounds...)
	}
	return st
}

// FromState rebuilds an option exported by State.
func FromState(st *model.OptionState) (*Option, error) {
	if st == nil {
		return nil, fmt.Errorf("option state is nil")
	}
	pool, err := parseAddress(st.Pool)
	if err != nil {
		return nil, err
	}
	o, err := New(pool, st.Duration)
	if err != nil {
		return nil, err
	}
	if len(st.Rounds) == 0 || st.CurrentRound != uint64(len(st.Rounds)-1) {
		return nil, fmt.Errorf("option %d: current round %d does not match %d rounds", st.Duration, st.CurrentRound, len(st.Rounds))
	}

	o.rounds = make([]*round, 0, len(st.Rounds))
	for i, rs := range st.Rounds {
		if rs.Round != uint64(i) {
			return nil, fmt.Errorf("option %d: round %d out of order", st.Duration, rs.Round)
		}
		rd, err := roundFromState(rs)
		if err != nil {
			return nil, fmt.Errorf("option %d round %d: %w", st.Duration, i, err)
		}
		o.rounds = append(o.rounds, rd)
	}
	o.currentRound = st.CurrentRound

	for key, r := range st.SettledPremiumRound {
		account, err := parseAddress(key)
		if err != nil {
			return nil, err
		}
		o.settledPremiumRound[account] = r
	}
	for key, rounds := range st.UnclaimedProfitsRounds {
		account, err := parseAddress(key)
		if err != nil {
			return nil, err
		}
		for _, r := range rounds {
			if err := o.AddUnclaimedProfitsRound(account, r); err != nil {
				return nil, err
			}
		}
	}
	return o, nil
}

func roundFromState(rs model.RoundState) (*round, error) {
	rd := newRound()
	rd.expiryDate = rs.ExpiryDate
	rd.premiumShareSet = rs.PremiumShareSet

	fields := []struct {
		dst **uint256.Int
		src string
	}{
		{&rd.totalSupply, rs.TotalSupply},
		{&rd.strikePrice, rs.StrikePrice},
		{&rd.settlePrice, rs.SettlePrice},
		{&rd.totalPremiums, rs.TotalPremiums},
		{&rd.premiumShare, rs.PremiumShare},
	}
	for _, f := range fields {
		v, err := fixedpoint.ParseDec(f.src)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}

	for key, amount := range rs.Balances {
		account, err := parseAddress(key)
		if err != nil {
			return nil, err
		}
		v, err := fixedpoint.ParseDec(amount)
		if err != nil {
			return nil, err
		}
		rd.setBalance(account, v)
	}
	for ownerKey, spenders := range rs.Allowances {
		owner, err := parseAddress(ownerKey)
		if err != nil {
			return nil, err
		}
		for spenderKey, amount := range spenders {
			spender, err := parseAddress(spenderKey)
			if err != nil {
				return nil, err
			}
			v, err := fixedpoint.ParseDec(amount)
			if err != nil {
				return nil, err
			}
			rd.setAllowance(owner, spender, v)
		}
	}
	return rd, nil
}

func parseAddress(input string) (common.Address, error) {
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid address: %s", input)
	}
	return common.HexToAddress(input), nil
}
