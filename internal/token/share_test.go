package token

import (
	"errors"
	"reflect"
	"sort"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"optionPool/internal/model"
)

var (
	alice = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	bob   = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

func TestMintBurnTransfer(t *testing.T) {
	s := NewShares()
	if err := s.Mint(alice, uint256.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := s.Transfer(alice, bob, uint256.NewInt(40)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := s.Burn(bob, uint256.NewInt(41)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if err := s.Burn(bob, uint256.NewInt(40)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if s.TotalSupply().Uint64() != 60 || s.BalanceOf(alice).Uint64() != 60 || !s.BalanceOf(bob).IsZero() {
		t.Fatalf("ledger mismatch")
	}
	holders := s.Holders()
	sort.Slice(holders, func(i, j int) bool { return holders[i].Hex() < holders[j].Hex() })
	if !reflect.DeepEqual(holders, []common.Address{alice}) {
		t.Fatalf("holders mismatch: %v", holders)
	}
}

func TestSharesStateRoundTrip(t *testing.T) {
	s := NewShares()
	_ = s.Mint(alice, uint256.NewInt(7))
	_ = s.Mint(bob, uint256.NewInt(5))

	restored, err := SharesFromState(s.State())
	if err != nil {
		t.Fatalf("from state: %v", err)
	}
	if !reflect.DeepEqual(s.State(), restored.State()) {
		t.Fatalf("state mismatch")
	}

	bad := model.ShareState{TotalSupply: "13", Balances: map[string]string{alice.Hex(): "7", bob.Hex(): "5"}}
	if _, err := SharesFromState(bad); err == nil {
		t.Fatalf("expected supply mismatch error")
	}
}
