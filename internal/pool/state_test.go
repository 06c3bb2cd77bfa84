package pool

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"optionPool/internal/cdf"
	"optionPool/internal/model"
)

func TestStateRoundTrip(t *testing.T) {
	f := premiumFixture(t, 5)
	f.deposit(t, alice, 600_000)
	f.deposit(t, bob, 400_000)
	f.settle(t)
	f.buy(t, carol, 50_000)
	if err := f.pool.ApproveOption(0, carol, dave, u(10)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	f.feed.price = 2100_000_000
	f.settle(t)
	f.buy(t, carol, 10_000)
	if _, err := f.pool.SettlePremium(alice, 0); err != nil {
		t.Fatalf("settle premium: %v", err)
	}

	st := f.pool.State()
	raw, err := json.Marshal(st)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded model.PoolState
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	restored, err := Restore(&decoded, f.admin, Deps{Table: cdf.Default(), Feed: f.feed, Asset: f.ledger})
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got := restored.State(); !reflect.DeepEqual(got, st) {
		t.Fatalf("restored state differs\n got %+v\nwant %+v", got, st)
	}

	want, _ := f.pool.CheckProfits(carol)
	got, _ := restored.CheckProfits(carol)
	if !got.Eq(want) {
		t.Fatalf("restored profits %s, want %s", got, want)
	}
}

func TestRestoreChecksOwner(t *testing.T) {
	f := newFixture(t, Call, 0, 3, nil)
	st := f.pool.State()
	if _, err := Restore(st, NewAdministration(alice), Deps{Table: cdf.Default()}); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if _, err := Restore(nil, f.admin, Deps{Table: cdf.Default()}); err == nil {
		t.Fatalf("expected error for nil state")
	}
}
