// Package pool implements the option pool aggregate: pooler collateral, the
// round settlement engine, the sigma controller and the lazy premium and
// profit accounting.
//
// A Pool is a serialized state machine. Every exported method holds the pool
// lock for its whole duration and either completes or returns an error
// without changing pool state. Premium and profit reconciliation may run
// ahead of a failing mutation; it only changes how claimable value is
// recorded, never how much.
package pool

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"optionPool/internal/cdf"
	"optionPool/internal/custody"
	"optionPool/internal/fixedpoint"
	"optionPool/internal/model"
	"optionPool/internal/option"
	"optionPool/internal/oracle"
	"optionPool/internal/token"
)

const (
	MinSigma = 15
	MaxSigma = 145

	sigmaStep          = 5
	sigmaRaiseAbove    = 90
	sigmaLowerBelow    = 50
	defaultSigmaPeriod = 3600
)

// Config holds the immutable and initial parameters of a pool.
type Config struct {
	Address            common.Address
	Asset              string
	Direction          Direction
	NumOptions         int
	PriceDecimals      uint8
	UtilizationRate    uint64
	MaxUtilizationRate uint64
	Sigma              uint64
	SigmaPeriod        uint64
	PremiumFeeRate     uint64
	// MaxSettleRounds bounds the premium rounds reconciled implicitly by
	// deposit, withdraw and share transfers. Zero means unbounded.
	MaxSettleRounds uint64
}

// Deps are the external collaborators of a pool.
type Deps struct {
	Table  *cdf.Table
	Feed   oracle.PriceFeed
	Asset  custody.CollateralAsset
	Logger *zap.Logger
}

// Pool is the option pool aggregate.
type Pool struct {
	mu     sync.Mutex
	cfg    Config
	admin  *Administration
	table  *cdf.Table
	feed   oracle.PriceFeed
	asset  custody.CollateralAsset
	logger *zap.Logger

	priceUnit *uint256.Int
	options   []*option.Option
	shares    *token.Shares

	collateral         *uint256.Int
	utilizationRate    uint64
	maxUtilizationRate uint64

	sigma             uint64
	sigmaSoldOptions  *uint256.Int
	sigmaTotalOptions *uint256.Int
	nextSigmaUpdate   uint64

	premiumBalance map[common.Address]*uint256.Int
	profitBalance  map[common.Address]*uint256.Int
	feeReserve     *uint256.Int
}

// ValidSigma reports whether s is a reachable sigma value.
func ValidSigma(s uint64) bool {
	return s >= MinSigma && s <= MaxSigma && s%sigmaStep == 0
}

func validRate(rate uint64) bool {
	return rate >= 1 && rate <= 100
}

func (c Config) validate() error {
	if c.Address == (common.Address{}) {
		return fmt.Errorf("%w: pool address is required", ErrInvalidConfig)
	}
	if c.NumOptions <= 0 {
		return fmt.Errorf("%w: num options must be positive", ErrInvalidConfig)
	}
	if c.Direction != Call && c.Direction != Put {
		return fmt.Errorf("%w: unsupported direction %s", ErrInvalidConfig, c.Direction)
	}
	if !validRate(c.UtilizationRate) || !validRate(c.MaxUtilizationRate) {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, ErrInvalidRate)
	}
	if !ValidSigma(c.Sigma) {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, ErrInvalidSigma)
	}
	if c.PremiumFeeRate > 100 {
		return fmt.Errorf("%w: premium fee rate above 100", ErrInvalidConfig)
	}
	return nil
}

// New builds an empty pool owned by admin.
func New(cfg Config, admin *Administration, deps Deps) (*Pool, error) {
	if cfg.SigmaPeriod == 0 {
		cfg.SigmaPeriod = defaultSigmaPeriod
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if admin == nil {
		return nil, fmt.Errorf("%w: administration is required", ErrInvalidConfig)
	}
	if deps.Table == nil {
		return nil, fmt.Errorf("%w: cdf table is required", ErrInvalidConfig)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pool{
		cfg:                cfg,
		admin:              admin,
		table:              deps.Table,
		feed:               deps.Feed,
		asset:              deps.Asset,
		logger:             logger.With(zap.String("pool", cfg.Address.Hex()), zap.String("asset", cfg.Asset)),
		priceUnit:          fixedpoint.Pow10(cfg.PriceDecimals),
		options:            make([]*option.Option, cfg.NumOptions),
		shares:             token.NewShares(),
		collateral:         fixedpoint.Zero(),
		utilizationRate:    cfg.UtilizationRate,
		maxUtilizationRate: cfg.MaxUtilizationRate,
		sigma:              cfg.Sigma,
		sigmaSoldOptions:   fixedpoint.Zero(),
		sigmaTotalOptions:  fixedpoint.Zero(),
		premiumBalance:     make(map[common.Address]*uint256.Int),
		profitBalance:      make(map[common.Address]*uint256.Int),
		feeReserve:         fixedpoint.Zero(),
	}, nil
}

// Address returns the pool account.
func (p *Pool) Address() common.Address { return p.cfg.Address }

// Direction returns the pool payoff direction.
func (p *Pool) Direction() Direction { return p.cfg.Direction }

// PriceUnit returns 10^PriceDecimals.
func (p *Pool) PriceUnit() *uint256.Int { return fixedpoint.Copy(p.priceUnit) }

func (p *Pool) Collateral() *uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fixedpoint.Copy(p.collateral)
}

func (p *Pool) Sigma() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sigma
}

// SigmaWindow returns the sold and issued counters and the next refresh time.
func (p *Pool) SigmaWindow() (sold, total *uint256.Int, next uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fixedpoint.Copy(p.sigmaSoldOptions), fixedpoint.Copy(p.sigmaTotalOptions), p.nextSigmaUpdate
}

func (p *Pool) UtilizationRate() (rate, maxRate uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.utilizationRate, p.maxUtilizationRate
}

func (p *Pool) FeeReserve() *uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fixedpoint.Copy(p.feeReserve)
}

func (p *Pool) ShareBalance(account common.Address) *uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shares.BalanceOf(account)
}

func (p *Pool) ShareSupply() *uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shares.TotalSupply()
}

// PremiumBalance returns premium already reconciled for account.
func (p *Pool) PremiumBalance(account common.Address) *uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fixedpoint.Copy(p.premiumBalance[account])
}

// Option returns a read-only view of the option in slot.
func (p *Pool) Option(slot int) (option.View, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if slot < 0 || slot >= len(p.options) || p.options[slot] == nil {
		return option.View{}, false
	}
	return option.NewView(p.options[slot], &p.mu), true
}

// Options returns read-only views of the registered options in slot order.
func (p *Pool) Options() []option.View {
	p.mu.Lock()
	defer p.mu.Unlock()
	live := p.liveOptions()
	out := make([]option.View, len(live))
	for i, opt := range live {
		out[i] = option.NewView(opt, &p.mu)
	}
	return out
}

func (p *Pool) liveOptions() []*option.Option {
	out := make([]*option.Option, 0, len(p.options))
	for _, opt := range p.options {
		if opt != nil {
			out = append(out, opt)
		}
	}
	return out
}

func (p *Pool) slot(slot int) (*option.Option, error) {
	if slot < 0 || slot >= len(p.options) {
		return nil, ErrInvalidSlot
	}
	opt := p.options[slot]
	if opt == nil {
		return nil, ErrOptionNotSet
	}
	return opt, nil
}

// Record wraps an emitted event for sinks.
func (p *Pool) Record(kind string, ts uint64, data interface{}) model.EventRecord {
	return model.EventRecord{
		ID:        uuid.NewString(),
		Kind:      kind,
		Pool:      p.cfg.Address.Hex(),
		Timestamp: ts,
		Data:      data,
	}
}

func addTo(m map[common.Address]*uint256.Int, account common.Address, amount *uint256.Int) error {
	total, err := fixedpoint.Add(fixedpoint.Copy(m[account]), amount)
	if err != nil {
		return err
	}
	if total.IsZero() {
		delete(m, account)
		return nil
	}
	m[account] = total
	return nil
}

func (p *Pool) custody() (custody.CollateralAsset, error) {
	if p.asset == nil {
		return nil, fmt.Errorf("%w: no collateral asset", ErrInvalidConfig)
	}
	return p.asset, nil
}
