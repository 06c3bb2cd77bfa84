package pool

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"optionPool/internal/cdf"
	"optionPool/internal/fixedpoint"
	"optionPool/internal/model"
	"optionPool/internal/option"
)

// quote prices amount units of the option's live round at the current sigma.
func (p *Pool) quote(opt *option.Option, amount *uint256.Int) (*uint256.Int, error) {
	strike := opt.StrikePrice()
	if strike.IsZero() {
		return nil, ErrRoundNotTradable
	}
	value, err := p.table.Lookup(opt.Duration(), p.sigma/cdf.SigmaStep)
	if err != nil {
		return nil, fmt.Errorf("price duration %d: %w", opt.Duration(), err)
	}
	return CalcPremium(amount, strike, value, p.priceUnit)
}

// QuotePremium returns the premium Buy would charge right now.
func (p *Pool) QuotePremium(slot int, amount *uint256.Int) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	opt, err := p.slot(slot)
	if err != nil {
		return nil, err
	}
	return p.quote(opt, amount)
}

// BuyResult carries the premium charged and the events of one purchase. A
// buy that lands after the sigma period also closes the sigma window.
type BuyResult struct {
	Premium  *uint256.Int
	Purchase model.Purchase
	Sigma    *model.SigmaUpdate
	Records  []model.EventRecord
}

// Buy sells amount units of the slot's live round to buyer. The round must
// not have expired: Update has to settle it before trading resumes. A nil
// maxPremium disables the slippage check.
func (p *Pool) Buy(buyer common.Address, slot int, amount, maxPremium *uint256.Int, now uint64) (BuyResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if buyer == (common.Address{}) {
		return BuyResult{}, option.ErrZeroAddress
	}
	if buyer == p.cfg.Address {
		return BuyResult{}, ErrPoolAccount
	}
	if amount == nil || amount.IsZero() {
		return BuyResult{}, ErrInvalidAmount
	}
	opt, err := p.slot(slot)
	if err != nil {
		return BuyResult{}, err
	}
	if opt.Expired(now) {
		return BuyResult{}, fmt.Errorf("buy duration %d: %w", opt.Duration(), option.ErrRoundExpired)
	}
	if opt.BalanceOf(p.cfg.Address).Lt(amount) {
		return BuyResult{}, ErrInsufficientSupply
	}
	premium, err := p.quote(opt, amount)
	if err != nil {
		return BuyResult{}, err
	}
	if maxPremium != nil && premium.Gt(maxPremium) {
		return BuyResult{}, fmt.Errorf("%w: premium %s above %s", ErrSlippage, fixedpoint.FormatDec(premium), fixedpoint.FormatDec(maxPremium))
	}
	sold, err := fixedpoint.Add(p.sigmaSoldOptions, amount)
	if err != nil {
		return BuyResult{}, err
	}
	profits, err := p.accrueProfits(buyer)
	if err != nil {
		return BuyResult{}, err
	}

	if !premium.IsZero() {
		asset, err := p.custody()
		if err != nil {
			return BuyResult{}, err
		}
		if err := asset.TransferIn(buyer, premium); err != nil {
			return BuyResult{}, fmt.Errorf("collect premium: %w", err)
		}
	}

	if err := p.applyProfits(profits); err != nil {
		return BuyResult{}, err
	}
	if err := opt.Transfer(p.cfg.Address, buyer, amount, now); err != nil {
		return BuyResult{}, err
	}
	if err := opt.AddUnclaimedProfitsRound(buyer, opt.CurrentRound()); err != nil {
		return BuyResult{}, err
	}
	if err := opt.AddPremium(premium); err != nil {
		return BuyResult{}, err
	}
	p.sigmaSoldOptions = sold

	p.logger.Info("option bought",
		zap.String("buyer", buyer.Hex()),
		zap.Uint64("duration", opt.Duration()),
		zap.Uint64("round", opt.CurrentRound()),
		zap.String("amount", fixedpoint.FormatDec(amount)),
		zap.String("premium", fixedpoint.FormatDec(premium)),
		zap.Uint64("sigma", p.sigma),
	)

	purchase := model.Purchase{
		Buyer:       buyer.Hex(),
		Duration:    opt.Duration(),
		Round:       opt.CurrentRound(),
		Amount:      fixedpoint.FormatDec(amount),
		Premium:     fixedpoint.FormatDec(premium),
		StrikePrice: fixedpoint.FormatDec(opt.StrikePrice()),
		Sigma:       p.sigma,
	}
	result := BuyResult{
		Premium:  premium,
		Purchase: purchase,
		Records:  []model.EventRecord{p.Record(model.KindPurchase, now, purchase)},
	}
	if p.nextSigmaUpdate > 0 && now >= p.nextSigmaUpdate {
		ev, records := p.closeSigmaWindow(now)
		result.Sigma = ev
		result.Records = append(result.Records, records...)
	}
	return result, nil
}

// TransferOption moves live-round units between two buyers. Both accounts
// have their settled payoffs folded in before balances change.
func (p *Pool) TransferOption(slot int, from, to common.Address, amount *uint256.Int, now uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	opt, err := p.checkOptionTransfer(slot, from, to, amount, now)
	if err != nil {
		return err
	}
	if err := p.settleParties(opt, from, to); err != nil {
		return err
	}
	return opt.Transfer(from, to, amount, now)
}

// ApproveOption sets spender's allowance over owner's live-round units.
func (p *Pool) ApproveOption(slot int, owner, spender common.Address, amount *uint256.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	opt, err := p.slot(slot)
	if err != nil {
		return err
	}
	if owner == p.cfg.Address {
		return ErrPoolAccount
	}
	return opt.Approve(owner, spender, amount)
}

// TransferOptionFrom is TransferOption on behalf of from.
func (p *Pool) TransferOptionFrom(slot int, spender, from, to common.Address, amount *uint256.Int, now uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	opt, err := p.checkOptionTransfer(slot, from, to, amount, now)
	if err != nil {
		return err
	}
	if opt.Allowance(from, spender).Lt(amount) {
		return option.ErrInsufficientAllowance
	}
	if err := p.settleParties(opt, from, to); err != nil {
		return err
	}
	return opt.TransferFrom(spender, from, to, amount, now)
}

func (p *Pool) checkOptionTransfer(slot int, from, to common.Address, amount *uint256.Int, now uint64) (*option.Option, error) {
	opt, err := p.slot(slot)
	if err != nil {
		return nil, err
	}
	if from == p.cfg.Address || to == p.cfg.Address {
		return nil, ErrPoolAccount
	}
	if from == (common.Address{}) || to == (common.Address{}) {
		return nil, option.ErrZeroAddress
	}
	if amount == nil || amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	if opt.Expired(now) {
		return nil, option.ErrRoundExpired
	}
	if opt.BalanceOf(from).Lt(amount) {
		return nil, option.ErrInsufficientBalance
	}
	return opt, nil
}

// settleParties folds both accounts' settled payoffs and records the
// recipient as a holder of the live round.
func (p *Pool) settleParties(opt *option.Option, from, to common.Address) error {
	fromPlan, err := p.accrueProfits(from)
	if err != nil {
		return err
	}
	toPlan, err := p.accrueProfits(to)
	if err != nil {
		return err
	}
	if err := p.applyProfits(fromPlan); err != nil {
		return err
	}
	if from != to {
		if err := p.applyProfits(toPlan); err != nil {
			return err
		}
	}
	return opt.AddUnclaimedProfitsRound(to, opt.CurrentRound())
}
