package fixedpoint

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	ErrOverflow       = errors.New("arithmetic overflow")
	ErrUnderflow      = errors.New("arithmetic underflow")
	ErrDivisionByZero = errors.New("division by zero")
)

// ShareMultiplier scales per-unit premium shares so that repeated
// multiply-then-divide keeps its precision.
var ShareMultiplier = uint256.NewInt(1_000_000_000_000_000_000)

// RatioScale is the intermediate scale used by payoff ratios.
var RatioScale = uint256.NewInt(1_000_000_000_000)

// Zero returns a fresh zero value.
func Zero() *uint256.Int {
	return new(uint256.Int)
}

// Copy returns a copy of x, treating nil as zero.
func Copy(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(x)
}

// Pow10 returns 10^n.
func Pow10(n uint8) *uint256.Int {
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(n)))
}

// Add returns a+b or ErrOverflow.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// Sub returns a-b or ErrUnderflow.
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, ErrUnderflow
	}
	return z, nil
}

// Mul returns a*b or ErrOverflow.
func Mul(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// Div truncates toward zero.
func Div(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, ErrDivisionByZero
	}
	return new(uint256.Int).Div(a, b), nil
}

// MulDiv returns a*b/d, failing if the product overflows 256 bits.
func MulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	prod, err := Mul(a, b)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Div(prod, d), nil
}

// FormatDec renders x in base 10.
func FormatDec(x *uint256.Int) string {
	if x == nil {
		return "0"
	}
	return x.ToBig().String()
}

// Float approximates x as a float64 for gauges and reports.
func Float(x *uint256.Int) float64 {
	if x == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(x.ToBig()).Float64()
	return f
}

// ParseDec parses a base-10 string. Empty input is zero.
func ParseDec(s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", s)
	}
	if b.Sign() < 0 {
		return nil, fmt.Errorf("negative amount: %s", s)
	}
	z, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("parse %s: %w", s, ErrOverflow)
	}
	return z, nil
}
