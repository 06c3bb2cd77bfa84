// Package custody holds the collateral movement capability consumed by pools.
package custody

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"optionPool/internal/fixedpoint"
)

var (
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

// CollateralAsset moves collateral between external accounts and a pool.
type CollateralAsset interface {
	TransferIn(from common.Address, amount *uint256.Int) error
	TransferOut(to common.Address, amount *uint256.Int) error
}

// Ledger is an in-memory CollateralAsset: wallet balances, allowances
// granted to the pool, and the amount the pool holds.
type Ledger struct {
	mu         sync.Mutex
	wallets    map[common.Address]*uint256.Int
	allowances map[common.Address]*uint256.Int
	held       *uint256.Int
}

func NewLedger() *Ledger {
	return &Ledger{
		wallets:    make(map[common.Address]*uint256.Int),
		allowances: make(map[common.Address]*uint256.Int),
		held:       new(uint256.Int),
	}
}

// Credit adds funds to an external wallet.
func (l *Ledger) Credit(account common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	bal, err := fixedpoint.Add(fixedpoint.Copy(l.wallets[account]), amount)
	if err != nil {
		return err
	}
	l.wallets[account] = bal
	return nil
}

// Approve sets how much the pool may pull from owner.
func (l *Ledger) Approve(owner common.Address, amount *uint256.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allowances[owner] = fixedpoint.Copy(amount)
}

func (l *Ledger) BalanceOf(account common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fixedpoint.Copy(l.wallets[account])
}

// Held returns the amount in pool custody.
func (l *Ledger) Held() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fixedpoint.Copy(l.held)
}

func (l *Ledger) TransferIn(from common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	allowance, err := fixedpoint.Sub(fixedpoint.Copy(l.allowances[from]), amount)
	if err != nil {
		return ErrInsufficientAllowance
	}
	bal, err := fixedpoint.Sub(fixedpoint.Copy(l.wallets[from]), amount)
	if err != nil {
		return ErrInsufficientFunds
	}
	held, err := fixedpoint.Add(l.held, amount)
	if err != nil {
		return err
	}
	l.allowances[from] = allowance
	l.wallets[from] = bal
	l.held = held
	return nil
}

func (l *Ledger) TransferOut(to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	held, err := fixedpoint.Sub(l.held, amount)
	if err != nil {
		return ErrInsufficientFunds
	}
	bal, err := fixedpoint.Add(fixedpoint.Copy(l.wallets[to]), amount)
	if err != nil {
		return err
	}
	l.held = held
	l.wallets[to] = bal
	return nil
}
