// Package protocol defines the observation/command messages exchanged
// between PLC agents and the SCADA coordinator, plus their JSON wire
// codec. The exchange is an in-process analogue of a fieldbus
// request/reply cycle; recoverable faults travel in the reply Error
// field, never as transport errors.
package protocol

import (
	"encoding/json"
	"errors"
)

// Reply error kinds understood by agents.
const (
	ErrorUnknownPLC  = "unknown_plc"
	ErrorUnknownRole = "unknown_role"
	ErrorBadRequest  = "bad_request"
)

// Observation and response keys. The tank_level key is the legacy
// variant of level and still accepted on ingest.
const (
	KeyLevel          = "level"
	KeyLegacyLevel    = "tank_level"
	KeyCurrentStatus  = "current_status"
	KeyCurrentSetting = "current_setting"
	KeyPumpCommand    = "pump_command"
	KeyValveSetting   = "valve_setting"
	KeyOverrideAction = "override_action"
)

// ObservationRequest is built fresh by an agent each step and consumed
// once by the coordinator.
type ObservationRequest struct {
	PlcID        string         `json:"plc_id"`
	Role         string         `json:"role"`
	Time         float64        `json:"time"`
	Observations map[string]any `json:"observations"`
}

// CoordinatorReply is built fresh by the coordinator for each request.
type CoordinatorReply struct {
	PlcID     string         `json:"plc_id"`
	Responses map[string]any `json:"responses"`
	Error     string         `json:"error,omitempty"`
}

// EncodeRequest serializes a request for the wire.
func EncodeRequest(req ObservationRequest) ([]byte, error) {
	return json.Marshal(req)
}

// DecodeRequest parses a wire payload into a request.
func DecodeRequest(payload []byte) (ObservationRequest, error) {
	var req ObservationRequest
	if len(payload) == 0 {
		return req, errors.New("protocol: empty request payload")
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return req, err
	}
	return req, nil
}

// EncodeReply serializes a reply for the wire.
func EncodeReply(reply CoordinatorReply) ([]byte, error) {
	return json.Marshal(reply)
}

// DecodeReply parses a wire payload into a reply.
func DecodeReply(payload []byte) (CoordinatorReply, error) {
	var reply CoordinatorReply
	if len(payload) == 0 {
		return reply, errors.New("protocol: empty reply payload")
	}
	if err := json.Unmarshal(payload, &reply); err != nil {
		return reply, err
	}
	return reply, nil
}

// Number coerces a JSON-decoded observation value to float64. Levels
// arrive as float64 in-process but as json.Number-ish values off the
// wire.
func Number(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
