package oracle

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/holiman/uint256"
)

var ErrPriceUnavailable = errors.New("oracle price unavailable")

// PriceFeed reports the latest asset price and the decimals it is quoted in.
type PriceFeed interface {
	LatestPrice(ctx context.Context) (*big.Int, uint8, error)
}

// Normalize rescales price from decimals to quoteDecimals. A non-positive or
// missing price normalizes to zero, which callers treat as unavailable.
func Normalize(price *big.Int, decimals, quoteDecimals uint8) *uint256.Int {
	if price == nil || price.Sign() <= 0 {
		return new(uint256.Int)
	}
	scaled := new(big.Int).Set(price)
	switch {
	case decimals > quoteDecimals:
		scaled.Quo(scaled, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals-quoteDecimals)), nil))
	case decimals < quoteDecimals:
		scaled.Mul(scaled, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(quoteDecimals-decimals)), nil))
	}
	out, overflow := uint256.FromBig(scaled)
	if overflow {
		return new(uint256.Int)
	}
	return out
}

// Static always reports the same price.
type Static struct {
	Price    *big.Int
	Decimals uint8
}

func (s Static) LatestPrice(context.Context) (*big.Int, uint8, error) {
	if s.Price == nil {
		return nil, s.Decimals, ErrPriceUnavailable
	}
	return new(big.Int).Set(s.Price), s.Decimals, nil
}

// Path reports one price per call, repeating the last one when exhausted.
type Path struct {
	mu       sync.Mutex
	prices   []*big.Int
	next     int
	decimals uint8
}

func NewPath(decimals uint8, prices ...*big.Int) *Path {
	return &Path{prices: prices, decimals: decimals}
}

func (p *Path) LatestPrice(context.Context) (*big.Int, uint8, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.prices) == 0 {
		return nil, p.decimals, ErrPriceUnavailable
	}
	idx := p.next
	if idx >= len(p.prices) {
		idx = len(p.prices) - 1
	} else {
		p.next++
	}
	return new(big.Int).Set(p.prices[idx]), p.decimals, nil
}
