package custody

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func TestLedgerTransfers(t *testing.T) {
	alice := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	l := NewLedger()
	if err := l.Credit(alice, uint256.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}

	if err := l.TransferIn(alice, uint256.NewInt(10)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected allowance error, got %v", err)
	}
	l.Approve(alice, uint256.NewInt(1000))
	if err := l.TransferIn(alice, uint256.NewInt(101)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected funds error, got %v", err)
	}
	if err := l.TransferIn(alice, uint256.NewInt(60)); err != nil {
		t.Fatalf("transfer in: %v", err)
	}
	if l.Held().Uint64() != 60 || l.BalanceOf(alice).Uint64() != 40 {
		t.Fatalf("balances mismatch after transfer in")
	}

	if err := l.TransferOut(alice, uint256.NewInt(61)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected funds error, got %v", err)
	}
	if err := l.TransferOut(alice, uint256.NewInt(25)); err != nil {
		t.Fatalf("transfer out: %v", err)
	}
	if l.Held().Uint64() != 35 || l.BalanceOf(alice).Uint64() != 65 {
		t.Fatalf("balances mismatch after transfer out")
	}
}
