package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const aggregatorABIJSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"internalType": "uint8", "name": "", "type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "latestRoundData", "outputs": [
    {"internalType": "uint80", "name": "roundId", "type": "uint80"},
    {"internalType": "int256", "name": "answer", "type": "int256"},
    {"internalType": "uint256", "name": "startedAt", "type": "uint256"},
    {"internalType": "uint256", "name": "updatedAt", "type": "uint256"},
    {"internalType": "uint80", "name": "answeredInRound", "type": "uint80"}
  ], "stateMutability": "view", "type": "function"}
]`

var (
	aggregatorABI     abi.ABI
	aggregatorABIOnce sync.Once
	aggregatorABIErr  error
)

// AggregatorABI returns the parsed price aggregator ABI.
func AggregatorABI() (abi.ABI, error) {
	aggregatorABIOnce.Do(func() {
		aggregatorABI, aggregatorABIErr = abi.JSON(strings.NewReader(aggregatorABIJSON))
	})
	return aggregatorABI, aggregatorABIErr
}

// Caller performs eth_call; chain.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Aggregator reads an on-chain price aggregator.
type Aggregator struct {
	caller  Caller
	address common.Address

	mu          sync.Mutex
	decimals    uint8
	hasDecimals bool
}

func NewAggregator(caller Caller, address common.Address) *Aggregator {
	return &Aggregator{caller: caller, address: address}
}

// LatestPrice returns the latest answer; answers are not validated here.
func (a *Aggregator) LatestPrice(ctx context.Context) (*big.Int, uint8, error) {
	decimals, err := a.fetchDecimals(ctx)
	if err != nil {
		return nil, 0, err
	}
	values, err := a.call(ctx, "latestRoundData")
	if err != nil {
		return nil, 0, err
	}
	if len(values) != 5 {
		return nil, 0, fmt.Errorf("latestRoundData return size %d", len(values))
	}
	answer, ok := values[1].(*big.Int)
	if !ok {
		return nil, 0, fmt.Errorf("latestRoundData unexpected answer type %T", values[1])
	}
	return answer, decimals, nil
}

func (a *Aggregator) fetchDecimals(ctx context.Context) (uint8, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.hasDecimals {
		return a.decimals, nil
	}
	values, err := a.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	if len(values) != 1 {
		return 0, fmt.Errorf("decimals return size %d", len(values))
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals unexpected type %T", values[0])
	}
	a.decimals = decimals
	a.hasDecimals = true
	return decimals, nil
}

func (a *Aggregator) call(ctx context.Context, method string) ([]interface{}, error) {
	if a.caller == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	aggABI, err := AggregatorABI()
	if err != nil {
		return nil, err
	}
	data, err := aggABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &a.address, Data: data}
	resp, err := a.caller.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := aggABI.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}
