package model

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const activityTypeClaim = "claim"

// ClaimEvent is a single claim observed on a pool.
type ClaimEvent struct {
	Claimer     string          `json:"address"`
	Amount      decimal.Decimal `json:"amount"`
	TimestampMs int64           `json:"time"`
	TxHash      string          `json:"tx_hash,omitempty"`
	BlockNumber uint64          `json:"block_number,omitempty"`
	LogIndex    uint64          `json:"log_index,omitempty"`
}

// MarshalJSON writes the event with the activity type marker.
func (e ClaimEvent) MarshalJSON() ([]byte, error) {
	type Alias ClaimEvent
	return json.Marshal(struct {
		Type string `json:"type"`
		Alias
	}{Type: activityTypeClaim, Alias: Alias(e)})
}

// UnmarshalJSON decodes an event, tolerating missing fields and numbers stored as strings or floats.
func (e *ClaimEvent) UnmarshalJSON(data []byte) error {
	var raw struct {
		Claimer     string          `json:"address"`
		Amount      json.RawMessage `json:"amount"`
		Time        json.Number     `json:"time"`
		TxHash      string          `json:"tx_hash"`
		BlockNumber json.Number     `json:"block_number"`
		LogIndex    json.Number     `json:"log_index"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := ClaimEvent{Claimer: raw.Claimer, TxHash: raw.TxHash}
	if len(raw.Amount) > 0 && string(raw.Amount) != "null" {
		if err := out.Amount.UnmarshalJSON(raw.Amount); err != nil {
			return err
		}
	}
	out.TimestampMs = int64(parseFlexUint(raw.Time))
	out.BlockNumber = parseFlexUint(raw.BlockNumber)
	out.LogIndex = parseFlexUint(raw.LogIndex)
	*e = out
	return nil
}

// parseFlexUint accepts integer or float encodings and returns 0 for anything else.
func parseFlexUint(n json.Number) uint64 {
	text := strings.TrimSpace(n.String())
	if text == "" {
		return 0
	}
	if v, err := strconv.ParseUint(text, 10, 64); err == nil {
		return v
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil && f > 0 {
		return uint64(f)
	}
	return 0
}
