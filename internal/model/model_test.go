package model

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestClaimEventDecodesLegacyActivity(t *testing.T) {
	legacy := `{"type":"claim","address":"0x2222222222222222222222222222222222222222","amount":100,"time":1700000000123}`

	var ev ClaimEvent
	if err := json.Unmarshal([]byte(legacy), &ev); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !ev.Amount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("amount mismatch: %s", ev.Amount)
	}
	if ev.TimestampMs != 1700000000123 {
		t.Fatalf("time mismatch: %d", ev.TimestampMs)
	}
	if ev.TxHash != "" || ev.BlockNumber != 0 {
		t.Fatalf("unexpected optional fields: %+v", ev)
	}
}

func TestClaimEventMissingFields(t *testing.T) {
	var ev ClaimEvent
	if err := json.Unmarshal([]byte(`{"address":"0xabc","time":1.7e12}`), &ev); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !ev.Amount.IsZero() {
		t.Fatalf("amount should default to zero: %s", ev.Amount)
	}
	if ev.TimestampMs != 1700000000000 {
		t.Fatalf("float time mismatch: %d", ev.TimestampMs)
	}
}

func TestClaimEventMarshalKeepsTypeMarker(t *testing.T) {
	ev := ClaimEvent{Claimer: "0xabc", Amount: decimal.RequireFromString("1.5"), TimestampMs: 42, TxHash: "0xdef"}
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded["type"] != "claim" {
		t.Fatalf("type marker missing: %s", data)
	}
	if decoded["amount"] != "1.5" {
		t.Fatalf("amount should be a string: %s", data)
	}
}

func TestDeploymentRecordTolerantDecode(t *testing.T) {
	legacy := `{"chainId":1,"createdAt":1700000000000,"token":"0xAbC","pool":"","name":"Token","symbol":"TKN","logoId":"2","poolCreationBlock":1234}`

	var rec DeploymentRecord
	if err := json.Unmarshal([]byte(legacy), &rec); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if rec.PoolAddress != "0xAbC" {
		t.Fatalf("pool should default to token: %+v", rec)
	}
	if rec.LogoID != 2 || rec.PoolCreationBlock != 1234 || rec.ChainID != 1 {
		t.Fatalf("numeric fields mismatch: %+v", rec)
	}
	if rec.Key() != "0xabc" {
		t.Fatalf("key mismatch: %s", rec.Key())
	}
}

func TestSessionWrongNetwork(t *testing.T) {
	if (Session{}).WrongNetwork(1) {
		t.Fatalf("unknown chain must not be wrong network")
	}
	if !(Session{ChainID: 5}).WrongNetwork(1) {
		t.Fatalf("chain 5 should be wrong network for expected 1")
	}
	if (Session{ChainID: 1}).WrongNetwork(1) {
		t.Fatalf("expected chain flagged as wrong")
	}
}
