package oracle

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

func TestNormalize(t *testing.T) {
	if got := Normalize(big.NewInt(200012345678), 8, 6); got.Uint64() != 2000123456 {
		t.Fatalf("downscale mismatch: %d", got.Uint64())
	}
	if got := Normalize(big.NewInt(2000), 0, 6); got.Uint64() != 2000_000000 {
		t.Fatalf("upscale mismatch: %d", got.Uint64())
	}
	if got := Normalize(big.NewInt(-5), 6, 6); !got.IsZero() {
		t.Fatalf("negative price should normalize to zero")
	}
	if got := Normalize(nil, 6, 6); !got.IsZero() {
		t.Fatalf("nil price should normalize to zero")
	}
}

func TestPathRepeatsLastPrice(t *testing.T) {
	p := NewPath(6, big.NewInt(1), big.NewInt(2))
	want := []int64{1, 2, 2, 2}
	for i, w := range want {
		got, decimals, err := p.LatestPrice(context.Background())
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if got.Int64() != w || decimals != 6 {
			t.Fatalf("call %d: got %d", i, got.Int64())
		}
	}
	if _, _, err := NewPath(6).LatestPrice(context.Background()); !errors.Is(err, ErrPriceUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

type fakeCaller struct {
	decimals uint8
	answer   *big.Int
	calls    map[string]int
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	aggABI, err := AggregatorABI()
	if err != nil {
		return nil, err
	}
	method, err := aggABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	f.calls[method.Name]++
	switch method.Name {
	case "decimals":
		return method.Outputs.Pack(f.decimals)
	default:
		return method.Outputs.Pack(big.NewInt(1), f.answer, big.NewInt(0), big.NewInt(0), big.NewInt(1))
	}
}

func TestAggregatorLatestPrice(t *testing.T) {
	caller := &fakeCaller{decimals: 8, answer: big.NewInt(350000000000), calls: map[string]int{}}
	agg := NewAggregator(caller, common.HexToAddress("0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419"))

	for i := 0; i < 2; i++ {
		price, decimals, err := agg.LatestPrice(context.Background())
		if err != nil {
			t.Fatalf("latest price: %v", err)
		}
		if price.Cmp(big.NewInt(350000000000)) != 0 || decimals != 8 {
			t.Fatalf("price mismatch: %s/%d", price, decimals)
		}
	}
	if caller.calls["decimals"] != 1 {
		t.Fatalf("decimals should be cached, called %d times", caller.calls["decimals"])
	}
	if caller.calls["latestRoundData"] != 2 {
		t.Fatalf("latestRoundData calls mismatch: %d", caller.calls["latestRoundData"])
	}
}
