package option

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type round struct {
	balances        map[common.Address]*uint256.Int
	allowances      map[common.Address]map[common.Address]*uint256.Int
	totalSupply     *uint256.Int
	expiryDate      uint64
	strikePrice     *uint256.Int
	settlePrice     *uint256.Int
	totalPremiums   *uint256.Int
	premiumShare    *uint256.Int
	premiumShareSet bool
}

func newRound() *round {
	return &round{
		balances:      make(map[common.Address]*uint256.Int),
		allowances:    make(map[common.Address]map[common.Address]*uint256.Int),
		totalSupply:   new(uint256.Int),
		strikePrice:   new(uint256.Int),
		settlePrice:   new(uint256.Int),
		totalPremiums: new(uint256.Int),
		premiumShare:  new(uint256.Int),
	}
}

func (r *round) balanceOf(account common.Address) *uint256.Int {
	if bal, ok := r.balances[account]; ok {
		return new(uint256.Int).Set(bal)
	}
	return new(uint256.Int)
}

func (r *round) setBalance(account common.Address, amount *uint256.Int) {
	if amount.IsZero() {
		delete(r.balances, account)
		return
	}
	r.balances[account] = amount
}

func (r *round) allowance(owner, spender common.Address) *uint256.Int {
	if m, ok := r.allowances[owner]; ok {
		if v, ok := m[spender]; ok {
			return new(uint256.Int).Set(v)
		}
	}
	return new(uint256.Int)
}

func (r *round) setAllowance(owner, spender common.Address, amount *uint256.Int) {
	m, ok := r.allowances[owner]
	if amount.IsZero() {
		if ok {
			delete(m, spender)
			if len(m) == 0 {
				delete(r.allowances, owner)
			}
		}
		return
	}
	if !ok {
		m = make(map[common.Address]*uint256.Int)
		r.allowances[owner] = m
	}
	m[spender] = amount
}

// RoundInfo is a read-only copy of a round's metadata.
type RoundInfo struct {
	Round           uint64
	ExpiryDate      uint64
	TotalSupply     *uint256.Int
	StrikePrice     *uint256.Int
	SettlePrice     *uint256.Int
	TotalPremiums   *uint256.Int
	PremiumShare    *uint256.Int
	PremiumShareSet bool
}

func (r *round) info(index uint64) RoundInfo {
	return RoundInfo{
		Round:           index,
		ExpiryDate:      r.expiryDate,
		TotalSupply:     new(uint256.Int).Set(r.totalSupply),
		StrikePrice:     new(uint256.Int).Set(r.strikePrice),
		SettlePrice:     new(uint256.Int).Set(r.settlePrice),
		TotalPremiums:   new(uint256.Int).Set(r.totalPremiums),
		PremiumShare:    new(uint256.Int).Set(r.premiumShare),
		PremiumShareSet: r.premiumShareSet,
	}
}
