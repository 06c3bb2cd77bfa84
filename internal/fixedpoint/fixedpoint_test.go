package fixedpoint

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func TestSubUnderflow(t *testing.T) {
	if _, err := Sub(uint256.NewInt(1), uint256.NewInt(2)); !errors.Is(err, ErrUnderflow) {
		t.Fatalf("expected underflow, got %v", err)
	}
	got, err := Sub(uint256.NewInt(5), uint256.NewInt(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Uint64() != 3 {
		t.Fatalf("sub mismatch: %d", got.Uint64())
	}
}

func TestMulOverflow(t *testing.T) {
	max := new(uint256.Int).SetAllOne()
	if _, err := Mul(max, uint256.NewInt(2)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := Add(max, uint256.NewInt(1)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestMulDivTruncates(t *testing.T) {
	got, err := MulDiv(uint256.NewInt(7), uint256.NewInt(10), uint256.NewInt(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Uint64() != 23 {
		t.Fatalf("muldiv mismatch: %d", got.Uint64())
	}
	if _, err := MulDiv(uint256.NewInt(1), uint256.NewInt(1), Zero()); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected division by zero, got %v", err)
	}
}

func TestParseFormatDec(t *testing.T) {
	in := "115792089237316195423570985008687907853269984665640564039457584007913129639935"
	x, err := ParseDec(in)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if FormatDec(x) != in {
		t.Fatalf("format mismatch: %s", FormatDec(x))
	}
	if _, err := ParseDec(in + "0"); err == nil {
		t.Fatalf("expected overflow error")
	}
	if _, err := ParseDec("-1"); err == nil {
		t.Fatalf("expected negative error")
	}
	if _, err := ParseDec("abc"); err == nil {
		t.Fatalf("expected invalid error")
	}
}

func TestPow10(t *testing.T) {
	if Pow10(6).Uint64() != 1_000_000 {
		t.Fatalf("pow10 mismatch: %d", Pow10(6).Uint64())
	}
	if Pow10(0).Uint64() != 1 {
		t.Fatalf("pow10(0) mismatch")
	}
}

func TestFloat(t *testing.T) {
	if got := Float(uint256.NewInt(1500)); got != 1500 {
		t.Fatalf("float %v", got)
	}
	if got := Float(nil); got != 0 {
		t.Fatalf("nil float %v", got)
	}
}
