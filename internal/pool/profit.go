package pool

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"optionPool/internal/fixedpoint"
	"optionPool/internal/option"
)

type profitPlan struct {
	account common.Address
	touched []*option.Option
	amount  *uint256.Int
}

// accrueProfits values the account's holdings in every settled round it has
// not been paid for. The live round of each option is left alone.
func (p *Pool) accrueProfits(account common.Address) (profitPlan, error) {
	plan := profitPlan{account: account, amount: fixedpoint.Zero()}
	for _, opt := range p.liveOptions() {
		cur := opt.CurrentRound()
		touched := false
		for _, r := range opt.UnclaimedProfitsRounds(account) {
			if r >= cur {
				continue
			}
			touched = true
			info, err := opt.Round(r)
			if err != nil {
				return profitPlan{}, err
			}
			held, err := opt.RoundBalanceOf(r, account)
			if err != nil {
				return profitPlan{}, err
			}
			profit, err := CalcProfits(p.cfg.Direction, info.SettlePrice, info.StrikePrice, held, p.priceUnit)
			if err != nil {
				return profitPlan{}, fmt.Errorf("profit round %d: %w", r, err)
			}
			if plan.amount, err = fixedpoint.Add(plan.amount, profit); err != nil {
				return profitPlan{}, err
			}
		}
		if touched {
			plan.touched = append(plan.touched, opt)
		}
	}
	return plan, nil
}

func (p *Pool) applyProfits(plan profitPlan) error {
	for _, opt := range plan.touched {
		if err := opt.ClearUnclaimedProfitsRounds(plan.account); err != nil {
			return err
		}
	}
	if plan.amount.IsZero() {
		return nil
	}
	return addTo(p.profitBalance, plan.account, plan.amount)
}

// CheckProfits returns the settled payoff owed to the account.
func (p *Pool) CheckProfits(account common.Address) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	plan, err := p.accrueProfits(account)
	if err != nil {
		return nil, err
	}
	return fixedpoint.Add(fixedpoint.Copy(p.profitBalance[account]), plan.amount)
}

// ClaimProfits pays out every settled payoff owed to the account.
func (p *Pool) ClaimProfits(account common.Address) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	plan, err := p.accrueProfits(account)
	if err != nil {
		return nil, err
	}
	amount, err := fixedpoint.Add(fixedpoint.Copy(p.profitBalance[account]), plan.amount)
	if err != nil {
		return nil, err
	}
	if !amount.IsZero() {
		asset, err := p.custody()
		if err != nil {
			return nil, err
		}
		if err := asset.TransferOut(account, amount); err != nil {
			return nil, fmt.Errorf("claim profits: %w", err)
		}
	}
	if err := p.applyProfits(plan); err != nil {
		return nil, err
	}
	delete(p.profitBalance, account)

	p.logger.Info("profits claimed", zap.String("account", account.Hex()), zap.String("amount", fixedpoint.FormatDec(amount)))
	return amount, nil
}
