package pool

import (
	"github.com/holiman/uint256"

	"optionPool/internal/cdf"
	"optionPool/internal/fixedpoint"
)

// CalcProfits returns the buyer payoff of amount option units settled at
// settlePrice against strikePrice, in collateral units. A zero strike (an
// uninitialized round) always pays zero.
func CalcProfits(dir Direction, settlePrice, strikePrice, amount, priceUnit *uint256.Int) (*uint256.Int, error) {
	if strikePrice.IsZero() || amount.IsZero() {
		return fixedpoint.Zero(), nil
	}

	switch dir {
	case Call:
		if !settlePrice.Gt(strikePrice) {
			return fixedpoint.Zero(), nil
		}
		gain, err := fixedpoint.Sub(settlePrice, strikePrice)
		if err != nil {
			return nil, err
		}
		ratio, err := fixedpoint.MulDiv(gain, fixedpoint.RatioScale, strikePrice)
		if err != nil {
			return nil, err
		}
		return fixedpoint.MulDiv(amount, ratio, fixedpoint.RatioScale)

	case Put:
		if !settlePrice.Lt(strikePrice) {
			return fixedpoint.Zero(), nil
		}
		drop, err := fixedpoint.Sub(strikePrice, settlePrice)
		if err != nil {
			return nil, err
		}
		ratio, err := fixedpoint.MulDiv(drop, fixedpoint.RatioScale, strikePrice)
		if err != nil {
			return nil, err
		}
		// units lost in asset terms, converted back at the strike
		scaled, err := fixedpoint.Mul(amount, ratio)
		if err != nil {
			return nil, err
		}
		if scaled, err = fixedpoint.Mul(scaled, strikePrice); err != nil {
			return nil, err
		}
		if scaled, err = fixedpoint.Div(scaled, fixedpoint.RatioScale); err != nil {
			return nil, err
		}
		return fixedpoint.Div(scaled, priceUnit)
	}
	return nil, ErrInvalidConfig
}

// CalcPremium prices amount units at strikePrice using a CDF multiplier.
func CalcPremium(amount, strikePrice *uint256.Int, cdfValue uint32, priceUnit *uint256.Int) (*uint256.Int, error) {
	v, err := fixedpoint.Mul(amount, strikePrice)
	if err != nil {
		return nil, err
	}
	if v, err = fixedpoint.Mul(v, uint256.NewInt(uint64(cdfValue))); err != nil {
		return nil, err
	}
	if v, err = fixedpoint.Div(v, priceUnit); err != nil {
		return nil, err
	}
	return fixedpoint.Div(v, uint256.NewInt(cdf.Amplifier))
}

// SlotSupply sizes one option's next round from the pool collateral.
func SlotSupply(dir Direction, collateral *uint256.Int, utilizationRate uint64, slots int, settlePrice, priceUnit *uint256.Int) (*uint256.Int, error) {
	if slots <= 0 {
		return fixedpoint.Zero(), nil
	}
	v, err := fixedpoint.MulDiv(collateral, uint256.NewInt(utilizationRate), uint256.NewInt(100))
	if err != nil {
		return nil, err
	}
	if v, err = fixedpoint.Div(v, uint256.NewInt(uint64(slots))); err != nil {
		return nil, err
	}
	if dir == Put {
		if settlePrice.IsZero() {
			return fixedpoint.Zero(), nil
		}
		return fixedpoint.MulDiv(v, priceUnit, settlePrice)
	}
	return v, nil
}

// collateralValue converts option units to collateral units at price.
func collateralValue(dir Direction, units, price, priceUnit *uint256.Int) (*uint256.Int, error) {
	if dir == Put {
		return fixedpoint.MulDiv(units, price, priceUnit)
	}
	return fixedpoint.Copy(units), nil
}
