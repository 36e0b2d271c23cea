// Package journal records the scheduler's timing history: a rate-limited
// event log persisted as snappy-compressed JSONL and a cadence-limited
// frame track persisted as a zstd stream, bundled under one directory with
// a manifest so tooling can locate both.
package journal

import (
	"encoding/json"
	"time"
)

// EventVersion is the schema version stamped on every event for replay
// compatibility.
const EventVersion uint8 = 1

// Well-known event kinds emitted by the loop and its host.
const (
	KindLoopStart  = "loop_start"
	KindTick       = "tick"
	KindPause      = "pause"
	KindResume     = "resume"
	KindRateChange = "rate_change"
	KindFault      = "fault"
	KindStop       = "stop"
)

// Event is one journal entry.
type Event struct {
	Version   uint8           `json:"version"`
	Kind      string          `json:"kind"`
	Timestamp int64           `json:"timestamp"` // Unix nano
	Sequence  uint64          `json:"sequence"`  // Monotonic, assigned by the recorder
	Tick      uint64          `json:"tick"`      // Loop tick this occurred in
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Typed payloads for the well-known kinds.

// TickPayload carries per-tick timing detail.
type TickPayload struct {
	DeltaSec float64 `json:"deltaSec"`
	UpdateMs float64 `json:"updateMs"`
	RenderMs float64 `json:"renderMs"`
}

// FaultPayload carries a contained failure.
type FaultPayload struct {
	Phase string `json:"phase"`
	Error string `json:"error"`
}

// RateChangePayload carries a tick-rate transition.
type RateChangePayload struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// EncodePayload marshals a payload, returning nil on failure so emit paths
// never have to branch on encoding errors.
func EncodePayload(payload interface{}) json.RawMessage {
	if payload == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

// NewEvent creates an event stamped with the current time. The sequence is
// assigned when the recorder accepts it.
func NewEvent(kind string, tick uint64, payload interface{}) Event {
	return Event{
		Version:   EventVersion,
		Kind:      kind,
		Timestamp: time.Now().UnixNano(),
		Tick:      tick,
		Payload:   EncodePayload(payload),
	}
}
