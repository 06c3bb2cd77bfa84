package pool

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"optionPool/internal/fixedpoint"
	"optionPool/internal/option"
)

type watermark struct {
	opt   *option.Option
	round uint64
}

// premiumPlan is the outcome of reconciling an account's premium without
// having written it yet.
type premiumPlan struct {
	account   common.Address
	marks     []watermark
	amount    *uint256.Int
	processed uint64
	complete  bool
}

// accruePremium walks the rounds settled since the account's watermark on
// every option, stopping once maxRounds rounds were processed. Zero
// maxRounds means no bound. An account without shares only moves its
// watermarks to the last settled round so that later deposits earn from the
// next settlement on.
func (p *Pool) accruePremium(account common.Address, maxRounds uint64) (premiumPlan, error) {
	plan := premiumPlan{account: account, amount: fixedpoint.Zero(), complete: true}
	balance := p.shares.BalanceOf(account)

	for _, opt := range p.liveOptions() {
		cur := opt.CurrentRound()
		if cur == 0 {
			continue
		}
		last := cur - 1
		mark := opt.SettledPremiumRound(account)
		if mark >= last {
			continue
		}
		if balance.IsZero() {
			plan.marks = append(plan.marks, watermark{opt: opt, round: last})
			continue
		}

		start := mark
		for r := mark + 1; r <= last; r++ {
			if maxRounds > 0 && plan.processed == maxRounds {
				plan.complete = false
				break
			}
			earned, err := fixedpoint.MulDiv(opt.RoundPremiumShare(r), balance, fixedpoint.ShareMultiplier)
			if err != nil {
				return premiumPlan{}, fmt.Errorf("premium round %d: %w", r, err)
			}
			if plan.amount, err = fixedpoint.Add(plan.amount, earned); err != nil {
				return premiumPlan{}, fmt.Errorf("premium round %d: %w", r, err)
			}
			plan.processed++
			mark = r
		}
		if mark != start {
			plan.marks = append(plan.marks, watermark{opt: opt, round: mark})
		}
		if !plan.complete {
			break
		}
	}
	return plan, nil
}

func (p *Pool) applyPremium(plan premiumPlan) error {
	for _, m := range plan.marks {
		if err := m.opt.SetSettledPremiumRound(m.round, plan.account); err != nil {
			return err
		}
	}
	if plan.amount.IsZero() {
		return nil
	}
	return addTo(p.premiumBalance, plan.account, plan.amount)
}

// pendingPremiumRounds counts the settled rounds not yet folded into the
// account's premium balance.
func (p *Pool) pendingPremiumRounds(account common.Address) uint64 {
	if p.shares.BalanceOf(account).IsZero() {
		return 0
	}
	var pending uint64
	for _, opt := range p.liveOptions() {
		cur := opt.CurrentRound()
		if cur == 0 {
			continue
		}
		if mark := opt.SettledPremiumRound(account); mark < cur-1 {
			pending += cur - 1 - mark
		}
	}
	return pending
}

// fullPremiumPlan reconciles every pending round of account ahead of a share
// balance change. It fails when the configured quota is too small to do so
// in one call; ClaimPremium or SettlePremium must catch up first.
func (p *Pool) fullPremiumPlan(account common.Address) (premiumPlan, error) {
	if limit := p.cfg.MaxSettleRounds; limit > 0 {
		if pending := p.pendingPremiumRounds(account); pending > limit {
			return premiumPlan{}, fmt.Errorf("%w: %s has %d rounds pending", ErrPremiumUnsettled, account.Hex(), pending)
		}
	}
	return p.accruePremium(account, 0)
}

// SettlePremium folds at most maxRounds settled rounds into the account's
// premium balance and reports whether it caught up. Calling it again
// continues from where it stopped.
func (p *Pool) SettlePremium(account common.Address, maxRounds uint64) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	plan, err := p.accruePremium(account, maxRounds)
	if err != nil {
		return false, err
	}
	if err := p.applyPremium(plan); err != nil {
		return false, err
	}
	p.logger.Debug("premium settled",
		zap.String("account", account.Hex()),
		zap.Uint64("rounds", plan.processed),
		zap.Bool("complete", plan.complete),
	)
	return plan.complete, nil
}

// CheckPremium returns everything the account could claim with an unbounded
// quota, without changing state.
func (p *Pool) CheckPremium(account common.Address) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	plan, err := p.accruePremium(account, 0)
	if err != nil {
		return nil, err
	}
	return fixedpoint.Add(fixedpoint.Copy(p.premiumBalance[account]), plan.amount)
}

// ClaimPremium settles up to maxRounds rounds and pays out the reconciled
// premium balance. complete is false when more rounds remain.
func (p *Pool) ClaimPremium(account common.Address, maxRounds uint64) (amount *uint256.Int, complete bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	plan, err := p.accruePremium(account, maxRounds)
	if err != nil {
		return nil, false, err
	}
	amount, err = fixedpoint.Add(fixedpoint.Copy(p.premiumBalance[account]), plan.amount)
	if err != nil {
		return nil, false, err
	}
	if !amount.IsZero() {
		asset, err := p.custody()
		if err != nil {
			return nil, false, err
		}
		if err := asset.TransferOut(account, amount); err != nil {
			return nil, false, fmt.Errorf("claim premium: %w", err)
		}
	}
	if err := p.applyPremium(plan); err != nil {
		return nil, false, err
	}
	delete(p.premiumBalance, account)

	p.logger.Info("premium claimed",
		zap.String("account", account.Hex()),
		zap.String("amount", fixedpoint.FormatDec(amount)),
		zap.Bool("complete", plan.complete),
	)
	return amount, plan.complete, nil
}
