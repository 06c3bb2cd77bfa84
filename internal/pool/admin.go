package pool

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"optionPool/internal/cdf"
	"optionPool/internal/fixedpoint"
	"optionPool/internal/option"
)

// Administration is the owner capability of a pool. Owner-gated operations
// take it explicitly and only accept the instance the pool was built with.
type Administration struct {
	owner common.Address
}

func NewAdministration(owner common.Address) *Administration {
	return &Administration{owner: owner}
}

// Owner returns the owner account.
func (a *Administration) Owner() common.Address {
	if a == nil {
		return common.Address{}
	}
	return a.owner
}

func (p *Pool) checkAdmin(admin *Administration) error {
	if admin == nil || admin != p.admin {
		return ErrNotOwner
	}
	return nil
}

// SetOption creates the option of the given duration in slot. Each slot and
// each duration can be set once, and the duration must be priced by the CDF
// table. The pool keeps the only mutable reference to the option.
func (p *Pool) SetOption(admin *Administration, slot int, duration uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkAdmin(admin); err != nil {
		return err
	}
	if slot < 0 || slot >= len(p.options) {
		return ErrInvalidSlot
	}
	if p.options[slot] != nil {
		return ErrOptionSlotTaken
	}
	for _, existing := range p.options {
		if existing != nil && existing.Duration() == duration {
			return ErrDuplicateDuration
		}
	}
	if !p.table.Has(duration) {
		return fmt.Errorf("option duration %d: %w", duration, cdf.ErrNotFound)
	}
	opt, err := option.New(p.cfg.Address, duration)
	if err != nil {
		return err
	}
	p.options[slot] = opt
	p.logger.Info("option registered", zap.Int("slot", slot), zap.Uint64("duration", duration))
	return nil
}

// WithdrawFees pays the whole fee reserve to the given account.
func (p *Pool) WithdrawFees(admin *Administration, to common.Address) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkAdmin(admin); err != nil {
		return nil, err
	}
	if to == (common.Address{}) {
		return nil, fmt.Errorf("withdraw fees: %w", ErrInvalidConfig)
	}
	amount := fixedpoint.Copy(p.feeReserve)
	if amount.IsZero() {
		return amount, nil
	}
	asset, err := p.custody()
	if err != nil {
		return nil, err
	}
	if err := asset.TransferOut(to, amount); err != nil {
		return nil, fmt.Errorf("withdraw fees: %w", err)
	}
	p.feeReserve = fixedpoint.Zero()
	p.logger.Info("fees withdrawn", zap.String("to", to.Hex()), zap.String("amount", fixedpoint.FormatDec(amount)))
	return amount, nil
}
