// Package option holds the round ledger of a single option duration. Every
// round carries its own balances, so units of a settled round can never be
// traded again. An Option is not safe for concurrent use; its owning pool
// serializes access and hands out only read-only Views.
package option

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"optionPool/internal/fixedpoint"
)

// Option is the per-duration round ledger owned by a pool.
type Option struct {
	pool         common.Address
	duration     uint64
	currentRound uint64
	rounds       []*round

	settledPremiumRound    map[common.Address]uint64
	unclaimedProfitsRounds map[common.Address][]uint64
}

// New creates an option at round 0. Round 0 has no strike and expiry 0, so
// it is never tradable and is settled by the first pool update.
func New(pool common.Address, duration uint64) (*Option, error) {
	if pool == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if duration == 0 {
		return nil, ErrInvalidDuration
	}
	return &Option{
		pool:                   pool,
		duration:               duration,
		rounds:                 []*round{newRound()},
		settledPremiumRound:    make(map[common.Address]uint64),
		unclaimedProfitsRounds: make(map[common.Address][]uint64),
	}, nil
}

// Pool returns the owning pool address.
func (o *Option) Pool() common.Address { return o.pool }

// Duration returns the length of one round in seconds.
func (o *Option) Duration() uint64 { return o.duration }

// CurrentRound returns the live round index.
func (o *Option) CurrentRound() uint64 { return o.currentRound }

func (o *Option) current() *round {
	return o.rounds[o.currentRound]
}

func (o *Option) roundAt(r uint64) (*round, error) {
	if r >= uint64(len(o.rounds)) {
		return nil, fmt.Errorf("round %d: %w", r, ErrRoundNotFound)
	}
	return o.rounds[r], nil
}

// ExpiryDate returns the live round's expiry timestamp.
func (o *Option) ExpiryDate() uint64 { return o.current().expiryDate }

// StrikePrice returns the live round's strike.
func (o *Option) StrikePrice() *uint256.Int { return fixedpoint.Copy(o.current().strikePrice) }

// Expired reports whether the live round can no longer be traded.
func (o *Option) Expired(now uint64) bool {
	return o.current().expiryDate <= now
}

// TotalSupply returns the live round's supply.
func (o *Option) TotalSupply() *uint256.Int { return fixedpoint.Copy(o.current().totalSupply) }

// BalanceOf returns the account's balance in the live round.
func (o *Option) BalanceOf(account common.Address) *uint256.Int {
	return o.current().balanceOf(account)
}

// Allowance returns the spender allowance in the live round.
func (o *Option) Allowance(owner, spender common.Address) *uint256.Int {
	return o.current().allowance(owner, spender)
}

// Round returns a copy of round r's metadata.
func (o *Option) Round(r uint64) (RoundInfo, error) {
	rd, err := o.roundAt(r)
	if err != nil {
		return RoundInfo{}, err
	}
	return rd.info(r), nil
}

// RoundBalanceOf returns the account's balance in round r.
func (o *Option) RoundBalanceOf(r uint64, account common.Address) (*uint256.Int, error) {
	rd, err := o.roundAt(r)
	if err != nil {
		return nil, err
	}
	return rd.balanceOf(account), nil
}

// ResetOption closes the live round at settlePrice and opens the next one
// with newSupply held entirely by the pool.
func (o *Option) ResetOption(settlePrice, newSupply *uint256.Int, now uint64) error {
	cur := o.current()
	if cur.expiryDate > now {
		return ErrRoundNotExpired
	}
	expiry := now + o.duration
	if expiry < now {
		return fixedpoint.ErrOverflow
	}

	next := newRound()
	next.expiryDate = expiry
	next.strikePrice = fixedpoint.Copy(settlePrice)
	next.totalSupply = fixedpoint.Copy(newSupply)
	next.setBalance(o.pool, fixedpoint.Copy(newSupply))

	cur.settlePrice = fixedpoint.Copy(settlePrice)
	o.rounds = append(o.rounds, next)
	o.currentRound++
	return nil
}

// Transfer moves live-round units from one account to another.
func (o *Option) Transfer(from, to common.Address, amount *uint256.Int, now uint64) error {
	return o.transfer(from, to, amount, now)
}

// Approve sets spender's live-round allowance over owner's units.
func (o *Option) Approve(owner, spender common.Address, amount *uint256.Int) error {
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return ErrZeroAddress
	}
	o.current().setAllowance(owner, spender, fixedpoint.Copy(amount))
	return nil
}

// TransferFrom moves units on behalf of from, consuming spender's allowance.
func (o *Option) TransferFrom(spender, from, to common.Address, amount *uint256.Int, now uint64) error {
	cur := o.current()
	allowed := cur.allowance(from, spender)
	remaining, err := fixedpoint.Sub(allowed, amount)
	if err != nil {
		return ErrInsufficientAllowance
	}
	if err := o.transfer(from, to, amount, now); err != nil {
		return err
	}
	cur.setAllowance(from, spender, remaining)
	return nil
}

func (o *Option) transfer(from, to common.Address, amount *uint256.Int, now uint64) error {
	if from == (common.Address{}) || to == (common.Address{}) {
		return ErrZeroAddress
	}
	if o.Expired(now) {
		return ErrRoundExpired
	}
	cur := o.current()
	fromBal, err := fixedpoint.Sub(cur.balanceOf(from), amount)
	if err != nil {
		return ErrInsufficientBalance
	}
	if from == to {
		return nil
	}
	toBal, err := fixedpoint.Add(cur.balanceOf(to), amount)
	if err != nil {
		return err
	}
	cur.setBalance(from, fromBal)
	cur.setBalance(to, toBal)
	return nil
}

// AddPremium accumulates a buy's premium into the live round.
func (o *Option) AddPremium(amount *uint256.Int) error {
	cur := o.current()
	total, err := fixedpoint.Add(cur.totalPremiums, amount)
	if err != nil {
		return err
	}
	cur.totalPremiums = total
	return nil
}

// TotalPremiums returns the live round's accumulated premium.
func (o *Option) TotalPremiums() *uint256.Int { return fixedpoint.Copy(o.current().totalPremiums) }

// SetRoundPremiumShare records round r's premium per unit of pooler share,
// scaled by fixedpoint.ShareMultiplier. It can be written once per round.
func (o *Option) SetRoundPremiumShare(r uint64, share *uint256.Int) error {
	rd, err := o.roundAt(r)
	if err != nil {
		return err
	}
	if rd.premiumShareSet {
		return ErrPremiumShareSet
	}
	rd.premiumShare = fixedpoint.Copy(share)
	rd.premiumShareSet = true
	return nil
}

// RoundPremiumShare returns round r's scaled premium share, zero if unset.
func (o *Option) RoundPremiumShare(r uint64) *uint256.Int {
	rd, err := o.roundAt(r)
	if err != nil {
		return new(uint256.Int)
	}
	return fixedpoint.Copy(rd.premiumShare)
}

// SetSettledPremiumRound moves account's premium watermark.
func (o *Option) SetSettledPremiumRound(r uint64, account common.Address) error {
	if r == 0 {
		delete(o.settledPremiumRound, account)
		return nil
	}
	o.settledPremiumRound[account] = r
	return nil
}

// SettledPremiumRound returns the highest round folded into account's premium balance.
func (o *Option) SettledPremiumRound(account common.Address) uint64 {
	return o.settledPremiumRound[account]
}

// UnclaimedProfitsRounds returns the rounds in which account held units and
// has not yet been paid, in ascending order.
func (o *Option) UnclaimedProfitsRounds(account common.Address) []uint64 {
	return append([]uint64(nil), o.unclaimedProfitsRounds[account]...)
}

// AddUnclaimedProfitsRound records that account holds units of round r.
func (o *Option) AddUnclaimedProfitsRound(account common.Address, r uint64) error {
	rounds := o.unclaimedProfitsRounds[account]
	idx := sort.Search(len(rounds), func(i int) bool { return rounds[i] >= r })
	if idx < len(rounds) && rounds[idx] == r {
		return nil
	}
	rounds = append(rounds, 0)
	copy(rounds[idx+1:], rounds[idx:])
	rounds[idx] = r
	o.unclaimedProfitsRounds[account] = rounds
	return nil
}

// ClearUnclaimedProfitsRounds drops every settled round from account's set;
// the live round is kept.
func (o *Option) ClearUnclaimedProfitsRounds(account common.Address) error {
	rounds := o.unclaimedProfitsRounds[account]
	kept := rounds[:0]
	for _, r := range rounds {
		if r >= o.currentRound {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		delete(o.unclaimedProfitsRounds, account)
		return nil
	}
	o.unclaimedProfitsRounds[account] = kept
	return nil
}
