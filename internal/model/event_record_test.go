package model

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestEventRecordDecodesConcretePayload(t *testing.T) {
	original := EventRecord{
		ID:        "7f9c1d2e-0000-4000-8000-000000000001",
		Kind:      KindSettlement,
		Pool:      "0x1111111111111111111111111111111111111111",
		Timestamp: 1700000000,
		Data: &Settlement{
			Asset:         "ETH",
			Direction:     "call",
			Duration:      300,
			Round:         4,
			StrikePrice:   "3",
			SettlePrice:   "4",
			TotalSold:     "7",
			TotalProfits:  "2",
			TotalPremiums: "10",
			PremiumShare:  "1000000000000000000",
			Fee:           "0",
		},
	}

	b, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded EventRecord
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if !reflect.DeepEqual(original, decoded) {
		t.Fatalf("decode mismatch: %+v != %+v", original, decoded)
	}
}

func TestEventRecordRejectsUnknownKind(t *testing.T) {
	var decoded EventRecord
	if err := json.Unmarshal([]byte(`{"kind":"nope","data":{}}`), &decoded); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestSettlementAmountsAreStrings(t *testing.T) {
	data, err := json.Marshal(Settlement{TotalProfits: "12345678901234567890123"})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if _, ok := decoded["total_profits"].(string); !ok {
		t.Fatalf("total_profits should be string")
	}
}
