package postgres

import (
	"context"
	"testing"

	"optionPool/internal/model"
)

func TestSettlementOf(t *testing.T) {
	settled := model.Settlement{Duration: 3600, Round: 2}
	if got, ok := settlementOf(model.EventRecord{Kind: model.KindSettlement, Data: settled}); !ok || got.Round != 2 {
		t.Fatalf("value payload: %+v %v", got, ok)
	}
	if got, ok := settlementOf(model.EventRecord{Kind: model.KindSettlement, Data: &settled}); !ok || got.Duration != 3600 {
		t.Fatalf("pointer payload: %+v %v", got, ok)
	}
	if _, ok := settlementOf(model.EventRecord{Kind: model.KindSigmaUpdate, Data: model.SigmaUpdate{}}); ok {
		t.Fatalf("sigma update is not a settlement")
	}
	var nilSettlement *model.Settlement
	if _, ok := settlementOf(model.EventRecord{Data: nilSettlement}); ok {
		t.Fatalf("nil pointer is not a settlement")
	}
}

func TestNewStoreRequiresDSN(t *testing.T) {
	if _, err := NewStore(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}

func TestSchemaEmbedded(t *testing.T) {
	if schema == "" {
		t.Fatalf("schema not embedded")
	}
}
