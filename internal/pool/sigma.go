package pool

import (
	"fmt"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"optionPool/internal/fixedpoint"
	"optionPool/internal/model"
)

// nextSigma applies one step of the sell-through controller.
func nextSigma(sigma, rate uint64) uint64 {
	switch {
	case rate > sigmaRaiseAbove && sigma < MaxSigma:
		return sigma + sigmaStep
	case rate < sigmaLowerBelow && sigma > MinSigma:
		return sigma - sigmaStep
	default:
		return sigma
	}
}

// refreshSigma closes the current sigma window. The counters of the next
// window are rebuilt from the live rounds of every option. The first call
// only opens a window. Nothing changes when the counters overflow.
func (p *Pool) refreshSigma(now uint64) (*model.SigmaUpdate, error) {
	sold, total := fixedpoint.Zero(), fixedpoint.Zero()
	for _, opt := range p.liveOptions() {
		supply := opt.TotalSupply()
		held := opt.BalanceOf(p.cfg.Address)
		if supply.Lt(held) {
			continue
		}
		var s uint256.Int
		s.Sub(supply, held)
		var err error
		if sold, err = fixedpoint.Add(sold, &s); err != nil {
			return nil, fmt.Errorf("sold options: %w", err)
		}
		if total, err = fixedpoint.Add(total, supply); err != nil {
			return nil, fmt.Errorf("total options: %w", err)
		}
	}

	var ev *model.SigmaUpdate
	if p.nextSigmaUpdate != 0 && !p.sigmaTotalOptions.IsZero() {
		rate := sellThrough(p.sigmaSoldOptions, p.sigmaTotalOptions)
		prev := p.sigma
		p.sigma = nextSigma(prev, rate)
		ev = &model.SigmaUpdate{
			Previous:     prev,
			Current:      p.sigma,
			Rate:         rate,
			SoldOptions:  fixedpoint.FormatDec(p.sigmaSoldOptions),
			TotalOptions: fixedpoint.FormatDec(p.sigmaTotalOptions),
		}
		if prev != p.sigma {
			p.logger.Info("sigma adjusted", zap.Uint64("from", prev), zap.Uint64("to", p.sigma), zap.Uint64("rate", rate))
		}
	}

	p.sigmaSoldOptions = sold
	p.sigmaTotalOptions = total
	p.nextSigmaUpdate = now + p.cfg.SigmaPeriod
	return ev, nil
}

// closeSigmaWindow refreshes sigma and records the update, if any. A window
// that cannot be rebuilt stays open and is retried by the next caller.
func (p *Pool) closeSigmaWindow(now uint64) (*model.SigmaUpdate, []model.EventRecord) {
	ev, err := p.refreshSigma(now)
	if err != nil {
		p.logger.Error("sigma window not refreshed", zap.Uint64("now", now), zap.Error(err))
		return nil, nil
	}
	if ev == nil {
		return nil, nil
	}
	return ev, []model.EventRecord{p.Record(model.KindSigmaUpdate, now, *ev)}
}

// sellThrough returns sold*100/total, saturating on overflow.
func sellThrough(sold, total *uint256.Int) uint64 {
	if total.IsZero() {
		return 0
	}
	rate, err := fixedpoint.MulDiv(sold, uint256.NewInt(100), total)
	if err != nil || !rate.IsUint64() {
		return 100
	}
	return rate.Uint64()
}

// SetSigma force-sets sigma. The periodic window is left untouched.
func (p *Pool) SetSigma(admin *Administration, sigma uint64, now uint64) (model.EventRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkAdmin(admin); err != nil {
		return model.EventRecord{}, err
	}
	if !ValidSigma(sigma) {
		return model.EventRecord{}, ErrInvalidSigma
	}
	ev := model.SigmaUpdate{
		Previous:     p.sigma,
		Current:      sigma,
		SoldOptions:  fixedpoint.FormatDec(p.sigmaSoldOptions),
		TotalOptions: fixedpoint.FormatDec(p.sigmaTotalOptions),
		Manual:       true,
	}
	p.sigma = sigma
	p.logger.Info("sigma set", zap.Uint64("from", ev.Previous), zap.Uint64("to", sigma))
	return p.Record(model.KindSigmaUpdate, now, ev), nil
}

// SetUtilizationRate changes the share of collateral issued per round.
func (p *Pool) SetUtilizationRate(admin *Administration, rate uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkAdmin(admin); err != nil {
		return err
	}
	if !validRate(rate) {
		return ErrInvalidRate
	}
	p.utilizationRate = rate
	return nil
}

// SetMaxUtilizationRate changes the bound applied to withdrawals.
func (p *Pool) SetMaxUtilizationRate(admin *Administration, rate uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkAdmin(admin); err != nil {
		return err
	}
	if !validRate(rate) {
		return ErrInvalidRate
	}
	p.maxUtilizationRate = rate
	return nil
}
