package option

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"optionPool/internal/model"
)

// View is a read-only handle on an Option. Every read takes the owner's lock,
// so a View can be used while the owner keeps mutating the option.
type View struct {
	o  *Option
	mu sync.Locker
}

// NewView wraps o for readers outside its owner; mu is the lock the owner
// holds while mutating o.
func NewView(o *Option, mu sync.Locker) View {
	return View{o: o, mu: mu}
}

// Valid reports whether the view refers to an option.
func (v View) Valid() bool { return v.o != nil }

func (v View) Pool() common.Address {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.o.Pool()
}

func (v View) Duration() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.o.Duration()
}

func (v View) CurrentRound() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.o.CurrentRound()
}

func (v View) ExpiryDate() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.o.ExpiryDate()
}

func (v View) StrikePrice() *uint256.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.o.StrikePrice()
}

func (v View) Expired(now uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.o.Expired(now)
}

func (v View) TotalSupply() *uint256.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.o.TotalSupply()
}

func (v View) BalanceOf(account common.Address) *uint256.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.o.BalanceOf(account)
}

func (v View) Allowance(owner, spender common.Address) *uint256.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.o.Allowance(owner, spender)
}

func (v View) Round(r uint64) (RoundInfo, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.o.Round(r)
}

func (v View) RoundBalanceOf(r uint64, account common.Address) (*uint256.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.o.RoundBalanceOf(r, account)
}

func (v View) TotalPremiums() *uint256.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.o.TotalPremiums()
}

func (v View) RoundPremiumShare(r uint64) *uint256.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.o.RoundPremiumShare(r)
}

func (v View) SettledPremiumRound(account common.Address) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.o.SettledPremiumRound(account)
}

func (v View) UnclaimedProfitsRounds(account common.Address) []uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.o.UnclaimedProfitsRounds(account)
}

// State returns a serializable copy of the option.
func (v View) State() *model.OptionState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.o.State()
}
