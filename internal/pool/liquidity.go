package pool

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"optionPool/internal/fixedpoint"
	"optionPool/internal/token"
)

// Deposit adds collateral and mints pooler shares at the current
// collateral-per-share price.
func (p *Pool) Deposit(account common.Address, amount *uint256.Int) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkPooler(account); err != nil {
		return nil, err
	}
	if amount == nil || amount.IsZero() {
		return nil, ErrInvalidAmount
	}

	supply := p.shares.TotalSupply()
	minted := fixedpoint.Copy(amount)
	if !supply.IsZero() {
		if p.collateral.IsZero() {
			return nil, fmt.Errorf("deposit: %w", ErrInsufficientCollateral)
		}
		var err error
		if minted, err = fixedpoint.MulDiv(amount, supply, p.collateral); err != nil {
			return nil, fmt.Errorf("deposit: %w", err)
		}
		if minted.IsZero() {
			return nil, fmt.Errorf("deposit: %w", ErrInvalidAmount)
		}
	}
	collateral, err := fixedpoint.Add(p.collateral, amount)
	if err != nil {
		return nil, fmt.Errorf("deposit: %w", err)
	}
	plan, err := p.fullPremiumPlan(account)
	if err != nil {
		return nil, err
	}

	asset, err := p.custody()
	if err != nil {
		return nil, err
	}
	if err := asset.TransferIn(account, amount); err != nil {
		return nil, fmt.Errorf("deposit: %w", err)
	}
	if err := p.applyPremium(plan); err != nil {
		return nil, err
	}
	if err := p.shares.Mint(account, minted); err != nil {
		return nil, err
	}
	p.collateral = collateral

	p.logger.Info("collateral deposited",
		zap.String("account", account.Hex()),
		zap.String("amount", fixedpoint.FormatDec(amount)),
		zap.String("shares", fixedpoint.FormatDec(minted)),
	)
	return minted, nil
}

// Withdraw burns shares and pays their collateral value. The collateral left
// behind must keep the units sold in live rounds within maxUtilizationRate.
func (p *Pool) Withdraw(account common.Address, shares *uint256.Int) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkPooler(account); err != nil {
		return nil, err
	}
	if shares == nil || shares.IsZero() {
		return nil, ErrInvalidAmount
	}
	if p.shares.BalanceOf(account).Lt(shares) {
		return nil, fmt.Errorf("withdraw: %w", token.ErrInsufficientBalance)
	}

	amount, err := fixedpoint.MulDiv(shares, p.collateral, p.shares.TotalSupply())
	if err != nil {
		return nil, fmt.Errorf("withdraw: %w", err)
	}
	remaining, err := fixedpoint.Sub(p.collateral, amount)
	if err != nil {
		return nil, fmt.Errorf("withdraw: %w", err)
	}
	if err := p.checkUtilization(remaining); err != nil {
		return nil, err
	}
	plan, err := p.fullPremiumPlan(account)
	if err != nil {
		return nil, err
	}

	if err := p.applyPremium(plan); err != nil {
		return nil, err
	}
	if !amount.IsZero() {
		asset, err := p.custody()
		if err != nil {
			return nil, err
		}
		if err := asset.TransferOut(account, amount); err != nil {
			return nil, fmt.Errorf("withdraw: %w", err)
		}
	}
	if err := p.shares.Burn(account, shares); err != nil {
		return nil, err
	}
	p.collateral = remaining

	p.logger.Info("collateral withdrawn",
		zap.String("account", account.Hex()),
		zap.String("amount", fixedpoint.FormatDec(amount)),
		zap.String("shares", fixedpoint.FormatDec(shares)),
	)
	return amount, nil
}

// TransferShares moves pooler shares after settling both accounts' premium.
func (p *Pool) TransferShares(from, to common.Address, amount *uint256.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkPooler(from); err != nil {
		return err
	}
	if err := p.checkPooler(to); err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	if p.shares.BalanceOf(from).Lt(amount) {
		return fmt.Errorf("transfer shares: %w", token.ErrInsufficientBalance)
	}
	fromPlan, err := p.fullPremiumPlan(from)
	if err != nil {
		return err
	}
	toPlan, err := p.fullPremiumPlan(to)
	if err != nil {
		return err
	}

	if err := p.applyPremium(fromPlan); err != nil {
		return err
	}
	if from != to {
		if err := p.applyPremium(toPlan); err != nil {
			return err
		}
	}
	return p.shares.Transfer(from, to, amount)
}

// LockedCollateral values every unit sold in a live round at its strike.
func (p *Pool) LockedCollateral() (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lockedCollateral()
}

func (p *Pool) lockedCollateral() (*uint256.Int, error) {
	locked := fixedpoint.Zero()
	for _, opt := range p.liveOptions() {
		sold, err := fixedpoint.Sub(opt.TotalSupply(), opt.BalanceOf(p.cfg.Address))
		if err != nil {
			return nil, err
		}
		value, err := collateralValue(p.cfg.Direction, sold, opt.StrikePrice(), p.priceUnit)
		if err != nil {
			return nil, err
		}
		if locked, err = fixedpoint.Add(locked, value); err != nil {
			return nil, err
		}
	}
	return locked, nil
}

func (p *Pool) checkUtilization(remaining *uint256.Int) error {
	locked, err := p.lockedCollateral()
	if err != nil {
		return err
	}
	need, err := fixedpoint.Mul(locked, uint256.NewInt(100))
	if err != nil {
		return err
	}
	allowed, err := fixedpoint.Mul(remaining, uint256.NewInt(p.maxUtilizationRate))
	if err != nil {
		return err
	}
	if need.Gt(allowed) {
		return fmt.Errorf("withdraw: %w: locked %s exceeds %d%% of %s",
			ErrInsufficientCollateral, fixedpoint.FormatDec(locked), p.maxUtilizationRate, fixedpoint.FormatDec(remaining))
	}
	return nil
}

func (p *Pool) checkPooler(account common.Address) error {
	if account == (common.Address{}) {
		return token.ErrZeroAddress
	}
	if account == p.cfg.Address {
		return ErrPoolAccount
	}
	return nil
}
