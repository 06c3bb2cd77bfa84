package model

import (
	"encoding/json"
	"fmt"
)

// EventRecord is the envelope written to event sinks.
type EventRecord struct {
	ID        string      `json:"id"`
	Kind      string      `json:"kind"`
	Pool      string      `json:"pool"`
	Timestamp uint64      `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// UnmarshalJSON decodes Data into the concrete type named by Kind.
func (r *EventRecord) UnmarshalJSON(data []byte) error {
	type envelope struct {
		ID        string          `json:"id"`
		Kind      string          `json:"kind"`
		Pool      string          `json:"pool"`
		Timestamp uint64          `json:"timestamp"`
		Data      json.RawMessage `json:"data"`
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	var payload interface{}
	switch env.Kind {
	case KindSettlement:
		payload = &Settlement{}
	case KindRoundOpened:
		payload = &RoundOpened{}
	case KindSigmaUpdate:
		payload = &SigmaUpdate{}
	case KindPurchase:
		payload = &Purchase{}
	case KindClaim:
		payload = &Claim{}
	default:
		return fmt.Errorf("unknown event kind: %s", env.Kind)
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, payload); err != nil {
			return fmt.Errorf("decode %s: %w", env.Kind, err)
		}
	}

	*r = EventRecord{
		ID:        env.ID,
		Kind:      env.Kind,
		Pool:      env.Pool,
		Timestamp: env.Timestamp,
		Data:      payload,
	}
	return nil
}
