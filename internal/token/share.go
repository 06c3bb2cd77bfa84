// Package token implements the pooler share ledger. A share balance is an
// account's claim on pool collateral and the weight of its premium share.
package token

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"optionPool/internal/fixedpoint"
	"optionPool/internal/model"
)

var (
	ErrInsufficientBalance = errors.New("insufficient share balance")
	ErrZeroAddress         = errors.New("zero address")
)

// Shares is a fungible supply ledger. Premium settlement for the touched
// accounts must happen before any mutation; the pool does that explicitly.
type Shares struct {
	totalSupply *uint256.Int
	balances    map[common.Address]*uint256.Int
}

func NewShares() *Shares {
	return &Shares{
		totalSupply: new(uint256.Int),
		balances:    make(map[common.Address]*uint256.Int),
	}
}

func (s *Shares) TotalSupply() *uint256.Int {
	return fixedpoint.Copy(s.totalSupply)
}

func (s *Shares) BalanceOf(account common.Address) *uint256.Int {
	return fixedpoint.Copy(s.balances[account])
}

// Mint credits amount to account.
func (s *Shares) Mint(account common.Address, amount *uint256.Int) error {
	if account == (common.Address{}) {
		return ErrZeroAddress
	}
	supply, err := fixedpoint.Add(s.totalSupply, amount)
	if err != nil {
		return err
	}
	bal, err := fixedpoint.Add(s.BalanceOf(account), amount)
	if err != nil {
		return err
	}
	s.totalSupply = supply
	s.set(account, bal)
	return nil
}

// Burn debits amount from account.
func (s *Shares) Burn(account common.Address, amount *uint256.Int) error {
	bal, err := fixedpoint.Sub(s.BalanceOf(account), amount)
	if err != nil {
		return ErrInsufficientBalance
	}
	supply, err := fixedpoint.Sub(s.totalSupply, amount)
	if err != nil {
		return err
	}
	s.totalSupply = supply
	s.set(account, bal)
	return nil
}

// Transfer moves amount between accounts.
func (s *Shares) Transfer(from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	fromBal, err := fixedpoint.Sub(s.BalanceOf(from), amount)
	if err != nil {
		return ErrInsufficientBalance
	}
	if from == to {
		return nil
	}
	toBal, err := fixedpoint.Add(s.BalanceOf(to), amount)
	if err != nil {
		return err
	}
	s.set(from, fromBal)
	s.set(to, toBal)
	return nil
}

// Holders returns every account with a non-zero balance.
func (s *Shares) Holders() []common.Address {
	out := make([]common.Address, 0, len(s.balances))
	for account := range s.balances {
		out = append(out, account)
	}
	return out
}

func (s *Shares) set(account common.Address, amount *uint256.Int) {
	if amount.IsZero() {
		delete(s.balances, account)
		return
	}
	s.balances[account] = amount
}

// State exports the ledger.
func (s *Shares) State() model.ShareState {
	st := model.ShareState{
		TotalSupply: fixedpoint.FormatDec(s.totalSupply),
		Balances:    make(map[string]string, len(s.balances)),
	}
	for account, bal := range s.balances {
		st.Balances[account.Hex()] = fixedpoint.FormatDec(bal)
	}
	return st
}

// SharesFromState rebuilds a ledger and checks that balances sum to supply.
func SharesFromState(st model.ShareState) (*Shares, error) {
	s := NewShares()
	supply, err := fixedpoint.ParseDec(st.TotalSupply)
	if err != nil {
		return nil, err
	}
	sum := new(uint256.Int)
	for key, amount := range st.Balances {
		if !common.IsHexAddress(key) {
			return nil, fmt.Errorf("invalid address: %s", key)
		}
		bal, err := fixedpoint.ParseDec(amount)
		if err != nil {
			return nil, err
		}
		if sum, err = fixedpoint.Add(sum, bal); err != nil {
			return nil, err
		}
		s.set(common.HexToAddress(key), bal)
	}
	if !sum.Eq(supply) {
		return nil, fmt.Errorf("share balances sum %s, supply %s", fixedpoint.FormatDec(sum), st.TotalSupply)
	}
	s.totalSupply = supply
	return s, nil
}
