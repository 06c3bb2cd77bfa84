package pool

import (
	"context"
	"errors"
	"math/big"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"optionPool/internal/cdf"
	"optionPool/internal/custody"
	"optionPool/internal/option"
)

var (
	testPool  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testOwner = common.HexToAddress("0x0000000000000000000000000000000000000f0f")
	alice     = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	bob       = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	carol     = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	dave      = common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd")
)

const testDuration = 3600

type stubFeed struct {
	price    int64
	decimals uint8
	err      error
}

func (f *stubFeed) LatestPrice(context.Context) (*big.Int, uint8, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	return big.NewInt(f.price), f.decimals, nil
}

type fixture struct {
	pool   *Pool
	admin  *Administration
	ledger *custody.Ledger
	feed   *stubFeed
	opt    option.View
	now    uint64
}

func u(x uint64) *uint256.Int { return uint256.NewInt(x) }

func newFixture(t *testing.T, dir Direction, decimals uint8, price int64, mutate func(*Config)) *fixture {
	t.Helper()
	cfg := Config{
		Address:            testPool,
		Asset:              "ETH",
		Direction:          dir,
		NumOptions:         1,
		PriceDecimals:      decimals,
		UtilizationRate:    50,
		MaxUtilizationRate: 80,
		Sigma:              70,
		SigmaPeriod:        600,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	f := &fixture{
		admin:  NewAdministration(testOwner),
		ledger: custody.NewLedger(),
		feed:   &stubFeed{price: price, decimals: decimals},
		now:    1000,
	}
	p, err := New(cfg, f.admin, Deps{Table: cdf.Default(), Feed: f.feed, Asset: f.ledger})
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	if err := p.SetOption(f.admin, 0, testDuration); err != nil {
		t.Fatalf("set option: %v", err)
	}
	opt, ok := p.Option(0)
	if !ok {
		t.Fatalf("option 0 not registered")
	}
	f.pool = p
	f.opt = opt
	return f
}

func (f *fixture) fund(t *testing.T, account common.Address, amount uint64) {
	t.Helper()
	if err := f.ledger.Credit(account, u(amount)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	f.ledger.Approve(account, f.ledger.BalanceOf(account))
}

func (f *fixture) deposit(t *testing.T, account common.Address, amount uint64) {
	t.Helper()
	f.fund(t, account, amount)
	if _, err := f.pool.Deposit(account, u(amount)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
}

// settle runs Update at the live round's expiry.
func (f *fixture) settle(t *testing.T) UpdateResult {
	t.Helper()
	if expiry := f.opt.ExpiryDate(); expiry > f.now {
		f.now = expiry
	}
	res, err := f.pool.Update(context.Background(), f.now)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	return res
}

func (f *fixture) buy(t *testing.T, buyer common.Address, amount uint64) *uint256.Int {
	t.Helper()
	res, err := f.pool.Buy(buyer, 0, u(amount), nil, f.now+100)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	return res.Premium
}

func TestNewValidatesConfig(t *testing.T) {
	base := Config{Address: testPool, Direction: Call, NumOptions: 1, UtilizationRate: 50, MaxUtilizationRate: 80, Sigma: 70}
	deps := Deps{Table: cdf.Default()}
	admin := NewAdministration(testOwner)

	cases := map[string]func(*Config){
		"zero address": func(c *Config) { c.Address = common.Address{} },
		"no slots":     func(c *Config) { c.NumOptions = 0 },
		"rate":         func(c *Config) { c.UtilizationRate = 101 },
		"sigma":        func(c *Config) { c.Sigma = 72 },
		"fee":          func(c *Config) { c.PremiumFeeRate = 120 },
	}
	for name, mutate := range cases {
		cfg := base
		mutate(&cfg)
		if _, err := New(cfg, admin, deps); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
	}
	if _, err := New(base, admin, deps); err != nil {
		t.Fatalf("valid config: %v", err)
	}
}

func TestFirstUpdateOpensRoundFromCollateral(t *testing.T) {
	f := newFixture(t, Call, 0, 3, nil)
	f.deposit(t, alice, 1000)

	res := f.settle(t)
	if len(res.Settlements) != 1 || res.Settlements[0].Round != 0 {
		t.Fatalf("unexpected settlements: %+v", res.Settlements)
	}
	if len(res.Rounds) != 1 || res.Rounds[0].TotalSupply != "500" {
		t.Fatalf("unexpected rounds: %+v", res.Rounds)
	}
	if f.opt.CurrentRound() != 1 {
		t.Fatalf("expected round 1, got %d", f.opt.CurrentRound())
	}
	if got := f.opt.TotalSupply(); !got.Eq(u(500)) {
		t.Fatalf("expected supply 500, got %s", got)
	}
	if got := f.opt.BalanceOf(testPool); !got.Eq(u(500)) {
		t.Fatalf("expected pool to hold 500, got %s", got)
	}
	if got := f.opt.StrikePrice(); !got.Eq(u(3)) {
		t.Fatalf("expected strike 3, got %s", got)
	}
	if got := f.opt.ExpiryDate(); got != 1000+testDuration {
		t.Fatalf("unexpected expiry %d", got)
	}
	if len(res.Records) == 0 || res.Records[0].ID == "" {
		t.Fatalf("expected event records with ids")
	}
}

func TestBuyChargesTablePremium(t *testing.T) {
	f := newFixture(t, Call, 6, 2000_000_000, nil)
	f.deposit(t, alice, 1_000_000)
	f.settle(t)

	value, err := cdf.Default().Lookup(testDuration, 14)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	want := 100 * uint64(2000_000_000) * uint64(value) / 1_000_000 / cdf.Amplifier
	if want == 0 {
		t.Fatalf("expected a non-zero premium")
	}

	f.fund(t, carol, 1_000_000)
	quoted, err := f.pool.QuotePremium(0, u(100))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	premium := f.buy(t, carol, 100)
	if !premium.Eq(u(want)) || !quoted.Eq(premium) {
		t.Fatalf("expected premium %d, got %s (quoted %s)", want, premium, quoted)
	}
	if got := f.opt.BalanceOf(carol); !got.Eq(u(100)) {
		t.Fatalf("expected buyer balance 100, got %s", got)
	}
	if got := f.opt.BalanceOf(testPool); !got.Eq(u(499_900)) {
		t.Fatalf("expected pool balance 499900, got %s", got)
	}
	if got := f.opt.TotalPremiums(); !got.Eq(premium) {
		t.Fatalf("expected round premiums %s, got %s", premium, got)
	}
	if got := f.ledger.BalanceOf(carol); !got.Eq(u(1_000_000 - want)) {
		t.Fatalf("unexpected buyer wallet %s", got)
	}
}

func TestBuyRejections(t *testing.T) {
	f := newFixture(t, Call, 6, 2000_000_000, nil)
	f.deposit(t, alice, 1_000_000)
	f.fund(t, carol, 1_000_000)

	if _, err := f.pool.Buy(carol, 0, u(1), nil, 10); !errors.Is(err, option.ErrRoundExpired) {
		t.Fatalf("round 0 should not be tradable, got %v", err)
	}
	f.settle(t)

	if _, err := f.pool.Buy(carol, 0, u(1), nil, f.opt.ExpiryDate()); !errors.Is(err, option.ErrRoundExpired) {
		t.Fatalf("expected ErrRoundExpired at expiry, got %v", err)
	}
	if _, err := f.pool.Buy(carol, 0, u(500_001), nil, f.now); !errors.Is(err, ErrInsufficientSupply) {
		t.Fatalf("expected ErrInsufficientSupply, got %v", err)
	}
	if _, err := f.pool.Buy(carol, 0, u(100), u(1), f.now); !errors.Is(err, ErrSlippage) {
		t.Fatalf("expected ErrSlippage, got %v", err)
	}
	if got := f.opt.BalanceOf(testPool); !got.Eq(u(500_000)) {
		t.Fatalf("failed buys must not move units, pool holds %s", got)
	}
	if _, err := f.pool.Buy(testPool, 0, u(1), nil, f.now); !errors.Is(err, ErrPoolAccount) {
		t.Fatalf("expected ErrPoolAccount, got %v", err)
	}
	if _, err := f.pool.Buy(carol, 1, u(1), nil, f.now); !errors.Is(err, ErrInvalidSlot) {
		t.Fatalf("expected ErrInvalidSlot, got %v", err)
	}
	if _, err := f.pool.Buy(carol, 0, u(0), nil, f.now); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := f.pool.Buy(dave, 0, u(100), nil, f.now); !errors.Is(err, custody.ErrInsufficientAllowance) {
		t.Fatalf("expected custody error for unfunded buyer, got %v", err)
	}
	if got := f.opt.BalanceOf(dave); !got.IsZero() {
		t.Fatalf("unfunded buyer received %s", got)
	}
}

func TestCallSettlementConservesCollateral(t *testing.T) {
	f := newFixture(t, Call, 0, 3, nil)
	f.deposit(t, alice, 1000)
	f.settle(t)
	f.buy(t, carol, 7)

	f.feed.price = 4
	res := f.settle(t)
	if len(res.Settlements) != 1 {
		t.Fatalf("expected one settlement, got %d", len(res.Settlements))
	}
	s := res.Settlements[0]
	if s.TotalSold != "7" || s.TotalProfits != "2" || s.Round != 1 {
		t.Fatalf("unexpected settlement %+v", s)
	}
	if got := f.pool.Collateral(); !got.Eq(u(998)) {
		t.Fatalf("expected collateral 998, got %s", got)
	}
	if got := f.opt.TotalSupply(); !got.Eq(u(499)) {
		t.Fatalf("expected next supply 499, got %s", got)
	}
	if info, _ := f.opt.Round(1); !info.SettlePrice.Eq(u(4)) {
		t.Fatalf("expected settle price 4, got %s", info.SettlePrice)
	}
	if got := f.opt.StrikePrice(); !got.Eq(u(4)) {
		t.Fatalf("next strike must equal the settle price, got %s", got)
	}

	owed, err := f.pool.CheckProfits(carol)
	if err != nil || !owed.Eq(u(2)) {
		t.Fatalf("expected 2 owed, got %v %v", owed, err)
	}
	paid, err := f.pool.ClaimProfits(carol)
	if err != nil || !paid.Eq(u(2)) {
		t.Fatalf("expected claim of 2, got %v %v", paid, err)
	}
	if got := f.ledger.BalanceOf(carol); !got.Eq(u(2)) {
		t.Fatalf("expected wallet 2, got %s", got)
	}
	if paid, _ := f.pool.ClaimProfits(carol); !paid.IsZero() {
		t.Fatalf("second claim paid %s", paid)
	}
}

func TestPutSettlement(t *testing.T) {
	f := newFixture(t, Put, 0, 2000, nil)
	f.deposit(t, alice, 1_000_000)
	f.settle(t)
	f.fund(t, carol, 1000)
	if got := f.opt.TotalSupply(); !got.Eq(u(250)) {
		t.Fatalf("expected put supply 250, got %s", got)
	}
	f.buy(t, carol, 10)

	f.feed.price = 1500
	res := f.settle(t)
	if res.Settlements[0].TotalProfits != "5000" {
		t.Fatalf("expected profits 5000, got %s", res.Settlements[0].TotalProfits)
	}
	if got := f.pool.Collateral(); !got.Eq(u(995_000)) {
		t.Fatalf("expected collateral 995000, got %s", got)
	}
	if got := f.opt.TotalSupply(); !got.Eq(u(331)) {
		t.Fatalf("expected next supply 331, got %s", got)
	}
	if owed, _ := f.pool.CheckProfits(carol); !owed.Eq(u(5000)) {
		t.Fatalf("expected 5000 owed, got %s", owed)
	}
}

func TestUpdateIsIdempotent(t *testing.T) {
	f := newFixture(t, Call, 0, 3, nil)
	f.deposit(t, alice, 1000)
	f.settle(t)
	f.buy(t, carol, 10)
	f.settle(t)

	before := f.pool.State()
	res, err := f.pool.Update(context.Background(), f.now)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.Settled() || res.Sigma != nil || len(res.Records) != 0 {
		t.Fatalf("second update should be a no-op, got %+v", res)
	}
	if after := f.pool.State(); !reflect.DeepEqual(before, after) {
		t.Fatalf("state changed on repeated update")
	}

	res, err = f.pool.Update(context.Background(), f.now+10)
	if err != nil || res.Settled() {
		t.Fatalf("unexpired options must not settle: %+v %v", res, err)
	}
}

func TestUpdateWithoutPrice(t *testing.T) {
	f := newFixture(t, Call, 0, 0, nil)
	res, err := f.pool.Update(context.Background(), 1000)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !res.PriceUnavailable || res.Settled() {
		t.Fatalf("expected skipped settlement, got %+v", res)
	}
	if f.opt.CurrentRound() != 0 {
		t.Fatalf("round advanced without a price")
	}

	boom := errors.New("rpc down")
	f.feed.err = boom
	if _, err := f.pool.Update(context.Background(), 1000); !errors.Is(err, boom) {
		t.Fatalf("expected feed error, got %v", err)
	}
}

func TestWithdrawBoundedByUtilization(t *testing.T) {
	f := newFixture(t, Call, 0, 3, nil)
	f.deposit(t, alice, 1000)
	f.settle(t)
	f.fund(t, carol, 1000)
	f.buy(t, carol, 400)

	if locked, _ := f.pool.LockedCollateral(); !locked.Eq(u(400)) {
		t.Fatalf("expected 400 locked, got %s", locked)
	}
	if _, err := f.pool.Withdraw(alice, u(1000)); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("expected ErrInsufficientCollateral, got %v", err)
	}
	paid, err := f.pool.Withdraw(alice, u(400))
	if err != nil || !paid.Eq(u(400)) {
		t.Fatalf("withdraw 400: %v %v", paid, err)
	}
	if _, err := f.pool.Withdraw(alice, u(100)); err != nil {
		t.Fatalf("withdraw to the bound: %v", err)
	}
	if _, err := f.pool.Withdraw(alice, u(1)); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("expected bound violation, got %v", err)
	}
	if got := f.pool.Collateral(); !got.Eq(u(500)) {
		t.Fatalf("expected collateral 500, got %s", got)
	}
	if got := f.ledger.BalanceOf(alice); !got.Eq(u(500)) {
		t.Fatalf("expected wallet 500, got %s", got)
	}
	if got := f.pool.ShareBalance(alice); !got.Eq(u(500)) {
		t.Fatalf("expected 500 shares, got %s", got)
	}
}

func TestDepositMintsAtSharePrice(t *testing.T) {
	f := newFixture(t, Call, 0, 3, nil)
	f.deposit(t, alice, 1000)
	f.settle(t)
	f.buy(t, carol, 100)
	f.feed.price = 6
	f.settle(t)
	// 100 units doubled in price: 100 paid out
	if got := f.pool.Collateral(); !got.Eq(u(900)) {
		t.Fatalf("expected collateral 900, got %s", got)
	}

	f.fund(t, bob, 450)
	minted, err := f.pool.Deposit(bob, u(450))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if !minted.Eq(u(500)) {
		t.Fatalf("expected 500 shares, got %s", minted)
	}
	if got := f.pool.ShareSupply(); !got.Eq(u(1500)) {
		t.Fatalf("expected supply 1500, got %s", got)
	}
}

func TestTransferredUnitsPayTheRecipient(t *testing.T) {
	f := newFixture(t, Call, 0, 3, nil)
	f.deposit(t, alice, 1000)
	f.settle(t)
	f.buy(t, carol, 10)
	round := f.opt.CurrentRound()
	if err := f.pool.TransferOption(0, carol, dave, u(10), f.now+200); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := f.opt.UnclaimedProfitsRounds(dave); len(got) != 1 || got[0] != round {
		t.Fatalf("dave should be tracked for round %d, got %v", round, got)
	}

	f.feed.price = 4
	f.settle(t)
	// 10 units, strike 3, settle 4
	if owed, _ := f.pool.CheckProfits(carol); !owed.IsZero() {
		t.Fatalf("carol gave away her units, owed %s", owed)
	}
	paid, err := f.pool.ClaimProfits(dave)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !paid.Eq(u(3)) {
		t.Fatalf("expected dave paid 3, got %s", paid)
	}
	if got := f.ledger.BalanceOf(dave); !got.Eq(u(3)) {
		t.Fatalf("expected dave to hold 3 of the asset, got %s", got)
	}
	if got := f.opt.UnclaimedProfitsRounds(dave); len(got) != 0 {
		t.Fatalf("claimed rounds should be cleared, got %v", got)
	}
}

func TestTransferOptionFoldsProfits(t *testing.T) {
	f := newFixture(t, Call, 0, 3, nil)
	f.deposit(t, alice, 1000)
	f.settle(t)
	f.buy(t, carol, 10)
	f.feed.price = 4
	f.settle(t)

	f.buy(t, carol, 5)
	if err := f.pool.TransferOption(0, carol, dave, u(5), f.now+200); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := f.opt.BalanceOf(dave); !got.Eq(u(5)) {
		t.Fatalf("expected dave to hold 5, got %s", got)
	}
	if owed, _ := f.pool.CheckProfits(carol); !owed.Eq(u(3)) {
		t.Fatalf("expected carol owed 3, got %s", owed)
	}
	if err := f.pool.TransferOption(0, dave, testPool, u(1), f.now+200); !errors.Is(err, ErrPoolAccount) {
		t.Fatalf("expected ErrPoolAccount, got %v", err)
	}
	if err := f.pool.TransferOption(0, dave, carol, u(6), f.now+200); !errors.Is(err, option.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	if err := f.pool.ApproveOption(0, dave, bob, u(2)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := f.pool.TransferOptionFrom(0, bob, dave, carol, u(3), f.now+200); !errors.Is(err, option.ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}
	if err := f.pool.TransferOptionFrom(0, bob, dave, carol, u(2), f.now+200); err != nil {
		t.Fatalf("transfer from: %v", err)
	}

	f.feed.price = 5
	f.settle(t)
	if err := f.pool.TransferOption(0, dave, carol, u(1), f.now); !errors.Is(err, option.ErrRoundExpired) && !errors.Is(err, option.ErrInsufficientBalance) {
		t.Fatalf("units of a settled round must not move, got %v", err)
	}
	// round 2: strike 4, settle 5, ratio 0.25
	if owed, _ := f.pool.CheckProfits(dave); !owed.IsZero() {
		t.Fatalf("3 units at 0.25 truncate to 0, got %s", owed)
	}
	if owed, _ := f.pool.CheckProfits(carol); !owed.Eq(u(3)) {
		t.Fatalf("2 units at 0.25 add nothing, carol owed %s", owed)
	}
}

func TestSetOptionValidation(t *testing.T) {
	f := newFixture(t, Call, 0, 3, func(c *Config) { c.NumOptions = 3 })

	if err := f.pool.SetOption(f.admin, 1, testDuration); !errors.Is(err, ErrDuplicateDuration) {
		t.Fatalf("expected ErrDuplicateDuration, got %v", err)
	}
	if err := f.pool.SetOption(f.admin, 0, 600); !errors.Is(err, ErrOptionSlotTaken) {
		t.Fatalf("expected ErrOptionSlotTaken, got %v", err)
	}
	if err := f.pool.SetOption(NewAdministration(testOwner), 1, 600); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := f.pool.SetOption(f.admin, 1, 61); !errors.Is(err, cdf.ErrNotFound) {
		t.Fatalf("expected cdf.ErrNotFound, got %v", err)
	}
	if err := f.pool.SetOption(f.admin, 3, 600); !errors.Is(err, ErrInvalidSlot) {
		t.Fatalf("expected ErrInvalidSlot, got %v", err)
	}
	if _, ok := f.pool.Option(1); ok {
		t.Fatalf("slot 1 should still be empty")
	}
	if err := f.pool.SetOption(f.admin, 1, 600); err != nil {
		t.Fatalf("set option: %v", err)
	}
	opt, ok := f.pool.Option(1)
	if !ok || opt.Pool() != testPool || opt.Duration() != 600 {
		t.Fatalf("slot 1 should hold a 600s option owned by the pool")
	}
	if got := len(f.pool.Options()); got != 2 {
		t.Fatalf("expected 2 options, got %d", got)
	}
}

func TestSlotSupplySplitsAcrossRegisteredOptions(t *testing.T) {
	f := newFixture(t, Call, 0, 3, func(c *Config) { c.NumOptions = 2 })
	if err := f.pool.SetOption(f.admin, 1, 600); err != nil {
		t.Fatalf("set option: %v", err)
	}
	f.deposit(t, alice, 1000)
	res := f.settle(t)
	if len(res.Settlements) != 2 {
		t.Fatalf("expected both round-0 options to settle, got %d", len(res.Settlements))
	}
	for _, opt := range f.pool.Options() {
		if got := opt.TotalSupply(); !got.Eq(u(250)) {
			t.Fatalf("duration %d: expected 250, got %s", opt.Duration(), got)
		}
	}
}
