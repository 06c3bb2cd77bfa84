package pool

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"optionPool/internal/fixedpoint"
	"optionPool/internal/model"
	"optionPool/internal/option"
	"optionPool/internal/oracle"
)

// UpdateResult describes what one Update call did.
type UpdateResult struct {
	SettlePrice      *uint256.Int
	Settlements      []model.Settlement
	Rounds           []model.RoundOpened
	Sigma            *model.SigmaUpdate
	PriceUnavailable bool
	Records          []model.EventRecord
}

// Settled reports whether any option round was closed.
func (r UpdateResult) Settled() bool { return len(r.Settlements) > 0 }

type settlement struct {
	opt     *option.Option
	round   uint64
	strike  *uint256.Int
	sold    *uint256.Int
	profits *uint256.Int
	premium *uint256.Int
	share   *uint256.Int
	fee     *uint256.Int
}

// Update settles every expired option round against the oracle and opens
// the next rounds, then refreshes sigma when its period has elapsed. It is
// permissionless and a no-op when nothing is expired and sigma is not due.
//
// A non-positive oracle reading is not an error: nothing is settled and the
// result carries PriceUnavailable. Transport errors from the feed are
// returned for the caller to retry.
func (p *Pool) Update(ctx context.Context, now uint64) (UpdateResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var result UpdateResult
	live := p.liveOptions()
	expired := make([]*option.Option, 0, len(live))
	for _, opt := range live {
		if opt.Expired(now) {
			expired = append(expired, opt)
		}
	}

	if len(expired) > 0 {
		price, err := p.fetchPrice(ctx)
		if err != nil {
			return UpdateResult{}, err
		}
		if price.IsZero() {
			p.logger.Warn("oracle price unavailable, settlement skipped", zap.Int("expired", len(expired)))
			result.PriceUnavailable = true
		} else {
			if err := p.settleExpired(expired, len(live), price, now, &result); err != nil {
				return UpdateResult{}, err
			}
		}
	}

	if now >= p.nextSigmaUpdate {
		ev, records := p.closeSigmaWindow(now)
		result.Sigma = ev
		result.Records = append(result.Records, records...)
	}
	return result, nil
}

func (p *Pool) fetchPrice(ctx context.Context) (*uint256.Int, error) {
	if p.feed == nil {
		return nil, fmt.Errorf("fetch price: %w", oracle.ErrPriceUnavailable)
	}
	raw, decimals, err := p.feed.LatestPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch price: %w", err)
	}
	return oracle.Normalize(raw, decimals, p.cfg.PriceDecimals), nil
}

// settleExpired runs both passes of a settlement: every expired round is
// resolved against the pre-settlement state first, and the next rounds are
// sized once from the collateral left after all payouts.
func (p *Pool) settleExpired(expired []*option.Option, slots int, price *uint256.Int, now uint64, result *UpdateResult) error {
	shareSupply := p.shares.TotalSupply()
	collateral := fixedpoint.Copy(p.collateral)
	feeReserve := fixedpoint.Copy(p.feeReserve)

	plans := make([]settlement, 0, len(expired))
	for _, opt := range expired {
		s, err := p.planSettlement(opt, price, shareSupply)
		if err != nil {
			return fmt.Errorf("settle option %d: %w", opt.Duration(), err)
		}
		if collateral, err = fixedpoint.Sub(collateral, s.profits); err != nil {
			return fmt.Errorf("settle option %d: %w", opt.Duration(), ErrInsufficientCollateral)
		}
		if feeReserve, err = fixedpoint.Add(feeReserve, s.fee); err != nil {
			return fmt.Errorf("settle option %d: %w", opt.Duration(), err)
		}
		plans = append(plans, s)
	}

	supply, err := SlotSupply(p.cfg.Direction, collateral, p.utilizationRate, slots, price, p.priceUnit)
	if err != nil {
		return fmt.Errorf("slot supply: %w", err)
	}
	issued := fixedpoint.Copy(p.sigmaTotalOptions)
	for range plans {
		if issued, err = fixedpoint.Add(issued, supply); err != nil {
			return fmt.Errorf("slot supply: %w", err)
		}
	}

	for _, s := range plans {
		if err := s.opt.SetRoundPremiumShare(s.round, s.share); err != nil {
			return fmt.Errorf("set premium share: %w", err)
		}
		if err := s.opt.ResetOption(price, supply, now); err != nil {
			return fmt.Errorf("reset option: %w", err)
		}

		settled := model.Settlement{
			Asset:         p.cfg.Asset,
			Direction:     p.cfg.Direction.String(),
			Duration:      s.opt.Duration(),
			Round:         s.round,
			StrikePrice:   fixedpoint.FormatDec(s.strike),
			SettlePrice:   fixedpoint.FormatDec(price),
			TotalSold:     fixedpoint.FormatDec(s.sold),
			TotalProfits:  fixedpoint.FormatDec(s.profits),
			TotalPremiums: fixedpoint.FormatDec(s.premium),
			PremiumShare:  fixedpoint.FormatDec(s.share),
			Fee:           fixedpoint.FormatDec(s.fee),
		}
		opened := model.RoundOpened{
			Duration:    s.opt.Duration(),
			Round:       s.opt.CurrentRound(),
			StrikePrice: fixedpoint.FormatDec(price),
			TotalSupply: fixedpoint.FormatDec(supply),
			ExpiryDate:  s.opt.ExpiryDate(),
		}
		result.Settlements = append(result.Settlements, settled)
		result.Rounds = append(result.Rounds, opened)
		result.Records = append(result.Records,
			p.Record(model.KindSettlement, now, settled),
			p.Record(model.KindRoundOpened, now, opened),
		)

		p.logger.Info("option settled",
			zap.Uint64("duration", s.opt.Duration()),
			zap.Uint64("round", s.round),
			zap.String("settle_price", settled.SettlePrice),
			zap.String("total_sold", settled.TotalSold),
			zap.String("total_profits", settled.TotalProfits),
		)
		p.logger.Debug("round opened",
			zap.Uint64("duration", opened.Duration),
			zap.Uint64("round", opened.Round),
			zap.String("supply", opened.TotalSupply),
			zap.Uint64("expiry", opened.ExpiryDate),
		)
	}

	p.collateral = collateral
	p.feeReserve = feeReserve
	p.sigmaTotalOptions = issued
	result.SettlePrice = fixedpoint.Copy(price)
	return nil
}

func (p *Pool) planSettlement(opt *option.Option, price, shareSupply *uint256.Int) (settlement, error) {
	r := opt.CurrentRound()
	info, err := opt.Round(r)
	if err != nil {
		return settlement{}, err
	}
	if info.PremiumShareSet {
		return settlement{}, option.ErrPremiumShareSet
	}
	sold, err := fixedpoint.Sub(info.TotalSupply, opt.BalanceOf(p.cfg.Address))
	if err != nil {
		return settlement{}, err
	}
	profits, err := CalcProfits(p.cfg.Direction, price, info.StrikePrice, sold, p.priceUnit)
	if err != nil {
		return settlement{}, err
	}

	fee, err := fixedpoint.MulDiv(info.TotalPremiums, uint256.NewInt(p.cfg.PremiumFeeRate), uint256.NewInt(100))
	if err != nil {
		return settlement{}, err
	}
	net, err := fixedpoint.Sub(info.TotalPremiums, fee)
	if err != nil {
		return settlement{}, err
	}
	share := fixedpoint.Zero()
	if shareSupply.IsZero() {
		// nobody to distribute to
		fee = fixedpoint.Copy(info.TotalPremiums)
	} else if share, err = fixedpoint.MulDiv(net, fixedpoint.ShareMultiplier, shareSupply); err != nil {
		return settlement{}, err
	}

	return settlement{
		opt:     opt,
		round:   r,
		strike:  info.StrikePrice,
		sold:    sold,
		profits: profits,
		premium: info.TotalPremiums,
		share:   share,
		fee:     fee,
	}, nil
}
