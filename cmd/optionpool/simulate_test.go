package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"optionPool/internal/config"
	"optionPool/internal/model"
	"optionPool/internal/storage"
)

func testSimulateConfig(out string) config.SimulateConfig {
	return config.SimulateConfig{
		Pool: config.PoolParams{
			Direction:          "call",
			Asset:              "ETH",
			Owner:              "0x00000000000000000000000000000000000000f0",
			PoolAddress:        "0x00000000000000000000000000000000000000e0",
			Durations:          []uint64{3600},
			UtilizationRate:    50,
			MaxUtilizationRate: 80,
			Sigma:              70,
			SigmaPeriod:        3600,
			PriceDecimals:      6,
		},
		Prices:    []string{"2000", "2100", "1950", "2050", "2200"},
		Deposits:  []string{"1000000", "500000"},
		BuyAmount: "10000",
		Rounds:    5,
		Start:     1_700_000_000,
		EventsOut: out,
	}
}

func TestSimulateCallPath(t *testing.T) {
	out := filepath.Join(t.TempDir(), "events.jsonl")
	summary, err := simulate(context.Background(), testSimulateConfig(out), zap.NewNop())
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if summary.Settlements != 6 {
		t.Fatalf("expected 6 settlements, got %d", summary.Settlements)
	}
	if summary.Purchases != 5 {
		t.Fatalf("expected 5 purchases, got %d", summary.Purchases)
	}
	// 2000->2100, 1950->2050 and 2050->2200 pay out; the rest expire worthless
	if got := summary.Paid[buyerAddr]; got == nil || got.Uint64() != 500+512+731 {
		t.Fatalf("unexpected buyer payout %v", got)
	}
	first := common.BigToAddress(poolerBase)
	if got := summary.Paid[first]; got == nil || got.IsZero() {
		t.Fatalf("expected premium for first pooler")
	}

	events, err := storage.ReadEvents(out)
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	if len(events) != summary.Events {
		t.Fatalf("file has %d events, summary %d", len(events), summary.Events)
	}
	kinds := map[string]int{}
	for _, ev := range events {
		kinds[ev.Kind]++
	}
	if kinds[model.KindSettlement] != 6 || kinds[model.KindPurchase] != 5 {
		t.Fatalf("unexpected kinds: %v", kinds)
	}
	if kinds[model.KindClaim] != 3 {
		t.Fatalf("expected three claims, got %v", kinds)
	}
}

func TestParsePrices(t *testing.T) {
	prices, err := parsePrices([]string{"2100.5", "3e3"}, 6)
	if err != nil {
		t.Fatalf("parse prices: %v", err)
	}
	if prices[0].String() != "2100500000" || prices[1].String() != "3000000000" {
		t.Fatalf("unexpected prices %v", prices)
	}
	if _, err := parsePrices([]string{"1.0000001"}, 6); err == nil {
		t.Fatalf("expected precision error")
	}
	if _, err := parsePrices([]string{"-1"}, 6); err == nil {
		t.Fatalf("expected sign error")
	}
}

func TestParseAmount(t *testing.T) {
	got, err := parseAmount("1e6")
	if err != nil || got.Uint64() != 1_000_000 {
		t.Fatalf("parse amount: %v %v", got, err)
	}
	if _, err := parseAmount("1.5"); err == nil {
		t.Fatalf("expected fractional amount error")
	}
}
